package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/storyvoice/internal/observe"
	"github.com/MrWong99/storyvoice/pkg/provider/tts"
)

// ErrAllFailed is returned when no backend of a [SynthFallback] produced
// audio, either because each one failed or because its circuit was open.
var ErrAllFailed = errors.New("all synthesizers failed")

// backend is one synthesizer behind its own breaker.
type backend struct {
	name    string
	synth   tts.Synthesizer
	breaker *Breaker
}

// SynthFallback implements [tts.Synthesizer] by trying a primary backend and
// then each fallback in registration order. Backends are added during setup;
// after that SynthFallback is safe for concurrent use.
type SynthFallback struct {
	backends []*backend
	breaker  BreakerConfig
	metrics  *observe.Metrics
}

var _ tts.Synthesizer = (*SynthFallback)(nil)

// Option configures a [SynthFallback].
type Option func(*SynthFallback)

// WithBreaker sets the breaker configuration used for every backend.
// OnStateChange is wrapped, not replaced.
func WithBreaker(cfg BreakerConfig) Option {
	return func(f *SynthFallback) { f.breaker = cfg }
}

// WithMetrics records per-backend calls and circuit transitions on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(f *SynthFallback) { f.metrics = m }
}

// NewSynthFallback creates a [SynthFallback] whose preferred backend is
// primary, registered under name.
func NewSynthFallback(name string, primary tts.Synthesizer, opts ...Option) *SynthFallback {
	f := &SynthFallback{}
	for _, o := range opts {
		o(f)
	}
	f.AddFallback(name, primary)
	return f
}

// AddFallback appends a backend tried after every backend added before it.
func (f *SynthFallback) AddFallback(name string, synth tts.Synthesizer) {
	cfg := f.breaker
	user := cfg.OnStateChange
	cfg.OnStateChange = func(from, to State) {
		f.circuitChanged(name, from, to)
		if user != nil {
			user(from, to)
		}
	}
	f.backends = append(f.backends, &backend{
		name:    name,
		synth:   synth,
		breaker: NewBreaker(cfg),
	})
}

// Synthesize returns audio from the first backend that succeeds. A done ctx
// ends the chain and its error is returned as is.
func (f *SynthFallback) Synthesize(ctx context.Context, text string, params tts.Params) ([]byte, error) {
	var errs []error
	for _, b := range f.backends {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var audio []byte
		err := b.breaker.Do(func() error {
			start := time.Now()
			var err error
			audio, err = b.synth.Synthesize(ctx, text, params)
			f.recordCall(ctx, b.name, err, time.Since(start))
			return err
		})
		if err == nil {
			return audio, nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if !errors.Is(err, ErrCircuitOpen) {
			observe.Logger(ctx).Warn("synthesizer failed, trying next",
				"provider", b.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
	}
	return nil, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

// Ready returns an error when every backend's circuit is open. It backs the
// readiness probe.
func (f *SynthFallback) Ready(context.Context) error {
	for _, b := range f.backends {
		if b.breaker.State() != StateOpen {
			return nil
		}
	}
	return fmt.Errorf("%w: every synthesizer circuit is open", ErrAllFailed)
}

// BackendState names a backend and the state of its circuit.
type BackendState struct {
	Name  string
	State State
}

// States reports every backend's circuit in failover order.
func (f *SynthFallback) States() []BackendState {
	out := make([]BackendState, len(f.backends))
	for i, b := range f.backends {
		out[i] = BackendState{Name: b.name, State: b.breaker.State()}
	}
	return out
}

func (f *SynthFallback) recordCall(ctx context.Context, name string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	observe.Logger(ctx).Debug("synthesizer call",
		"provider", name,
		"status", status,
		"elapsed", elapsed,
	)
	if f.metrics == nil {
		return
	}
	if err != nil {
		f.metrics.RecordProviderError(ctx, name)
	}
	f.metrics.RecordProviderRequest(ctx, name, status)
}

func (f *SynthFallback) circuitChanged(name string, from, to State) {
	log := observe.Logger(context.Background()).With("provider", name, "from", from.String(), "to", to.String())
	if to == StateOpen {
		log.Warn("synthesizer circuit opened")
	} else {
		log.Info("synthesizer circuit changed")
	}
	if f.metrics != nil {
		f.metrics.RecordCircuitTransition(context.Background(), name, to.String())
	}
}
