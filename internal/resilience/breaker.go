// Package resilience guards synthesis backends with circuit breakers and
// fails over between them.
//
// A [Breaker] stops calling a backend after a run of failures and lets a few
// probe calls through once a cooldown has passed. [SynthFallback] chains a
// primary backend and its fallbacks, each behind its own breaker.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the circuit rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cooldown ends.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through. One
	// failure reopens the circuit; enough successes close it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker defaults applied by [NewBreaker] for zero config fields.
const (
	DefaultThreshold = 5
	DefaultCooldown  = 30 * time.Second
	DefaultProbes    = 3
)

// BreakerConfig tunes a [Breaker].
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	Threshold int

	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration

	// Probes is both the number of concurrent probe calls allowed while
	// half-open and the number of probe successes that close the circuit.
	Probes int

	// IsFailure reports whether err counts against the backend. The
	// default counts everything except [context.Canceled], which means the
	// caller went away.
	IsFailure func(error) bool

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(from, to State)
}

// Breaker is a three-state circuit breaker. It is safe for concurrent use.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     State
	gen       uint64
	failures  int // consecutive, while closed
	openedAt  time.Time
	probing   int // probe calls in flight, while half-open
	successes int // probe successes, while half-open
}

// NewBreaker returns a closed [Breaker].
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Probes <= 0 {
		cfg.Probes = DefaultProbes
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

type transition struct{ from, to State }

// Do calls fn unless the circuit is open and returns its error unchanged.
func (b *Breaker) Do(fn func() error) error {
	tk, moved, err := b.admit()
	b.notify(moved)
	if err != nil {
		return err
	}

	err = fn()

	b.notify(b.settle(tk, err))
	return err
}

// ticket identifies an admitted call. Outcomes of calls admitted before the
// last transition are ignored.
type ticket struct {
	gen   uint64
	probe bool
}

// admit decides whether a call may proceed and whether it is a probe.
func (b *Breaker) admit() (tk ticket, moved []transition, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return tk, nil, ErrCircuitOpen
		}
		moved = append(moved, b.set(StateHalfOpen))
	}
	tk.gen = b.gen
	if b.state == StateHalfOpen {
		if b.probing >= b.cfg.Probes {
			return tk, moved, ErrCircuitOpen
		}
		b.probing++
		tk.probe = true
	}
	return tk, moved, nil
}

// settle records the outcome of an admitted call.
func (b *Breaker) settle(tk ticket, err error) []transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	if tk.gen != b.gen {
		return nil
	}
	failed := err != nil && b.cfg.IsFailure(err)

	if tk.probe {
		b.probing--
		switch {
		case failed:
			return []transition{b.open()}
		case err == nil:
			b.successes++
			if b.successes >= b.cfg.Probes {
				return []transition{b.set(StateClosed)}
			}
		}
		return nil
	}

	switch {
	case failed:
		b.failures++
		if b.failures >= b.cfg.Threshold {
			return []transition{b.open()}
		}
	case err == nil:
		b.failures = 0
	}
	return nil
}

func (b *Breaker) open() transition {
	b.openedAt = b.now()
	return b.set(StateOpen)
}

// set switches state, clears all counters and starts a new generation.
func (b *Breaker) set(to State) transition {
	t := transition{from: b.state, to: to}
	b.state = to
	b.gen++
	b.failures = 0
	b.probing = 0
	b.successes = 0
	return t
}

func (b *Breaker) notify(moved []transition) {
	if b.cfg.OnStateChange == nil {
		return
	}
	for _, t := range moved {
		b.cfg.OnStateChange(t.from, t.to)
	}
}

// State returns the current state. An open circuit whose cooldown has
// passed reports [StateHalfOpen]; the switch itself happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset closes the circuit and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	var moved []transition
	if b.state != StateClosed {
		moved = append(moved, b.set(StateClosed))
	} else {
		b.failures = 0
	}
	b.mu.Unlock()
	b.notify(moved)
}
