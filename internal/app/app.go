// Package app wires the storyvoice subsystems into a running service.
//
// The App struct owns the full lifecycle: New builds the planner, assembler
// and engine from the config and starts the voice file watcher, Run serves
// the HTTP API until the context is cancelled, and Shutdown tears everything
// down in order.
//
// For testing, inject doubles via functional options (WithMetrics,
// WithMetricsHandler). The synthesizer is always passed in by the caller.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/storyvoice/internal/assemble"
	"github.com/MrWong99/storyvoice/internal/assign"
	"github.com/MrWong99/storyvoice/internal/config"
	"github.com/MrWong99/storyvoice/internal/health"
	"github.com/MrWong99/storyvoice/internal/httpapi"
	"github.com/MrWong99/storyvoice/internal/narrator"
	"github.com/MrWong99/storyvoice/internal/observe"
	"github.com/MrWong99/storyvoice/pkg/provider/tts"
	"github.com/MrWong99/storyvoice/pkg/types"
)

// shutdownTimeout bounds how long in-flight HTTP requests may take to finish
// once Run's context is cancelled.
const shutdownTimeout = 10 * time.Second

// readyChecker is implemented by synthesizers that can report readiness,
// such as [resilience.SynthFallback].
type readyChecker interface {
	Ready(ctx context.Context) error
}

// App owns all subsystem lifetimes of the narration service.
type App struct {
	cfg   *config.Config
	synth tts.Synthesizer

	metrics        *observe.Metrics
	metricsHandler http.Handler

	engine  *narrator.Engine
	watcher *config.Watcher[[]types.VoiceProfile]
	handler http.Handler

	// addr is the bound listener address, set once Run is serving.
	addrMu sync.Mutex
	addr   net.Addr

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics records metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics instead of the Prometheus default
// registry handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App around synth. The synthesizer usually comes from
// main.go (built via the config registry and wrapped for failover).
//
// When cfg.Voices.Path is set, the file is loaded synchronously and watched
// for changes; a missing or invalid file is an error.
func New(cfg *config.Config, synth tts.Synthesizer, opts ...Option) (*App, error) {
	if synth == nil {
		return nil, errors.New("app: synthesizer is required")
	}
	a := &App{
		cfg:   cfg,
		synth: synth,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}

	// ── 1. Engine ────────────────────────────────────────────────────────
	a.engine = narrator.New(a.newPlanner(), a.newAssembler(), narrator.WithMetrics(a.metrics))

	// ── 2. Voice configuration ───────────────────────────────────────────
	if err := a.initVoices(); err != nil {
		return nil, fmt.Errorf("app: init voices: %w", err)
	}

	// ── 3. HTTP routes ───────────────────────────────────────────────────
	a.handler = a.routes()

	return a, nil
}

// newPlanner selects the assignment policy from the engine mode.
func (a *App) newPlanner() narrator.Planner {
	if a.cfg.Engine.Mode == config.ModeDefaultStyle {
		fallback := assign.FallbackProfile()
		if v := a.cfg.Engine.FallbackVoice; v != "" {
			fallback.VoiceID = v
		}
		return narrator.NewDefaultStylePlanner(nil, fallback)
	}
	return narrator.NewRoundRobinPlanner(nil)
}

func (a *App) newAssembler() *assemble.Assembler {
	return assemble.New(a.synth,
		assemble.WithSegmentTimeout(a.cfg.Engine.SynthesisTimeout),
		assemble.WithMaxBytes(a.cfg.Engine.MaxOutputBytes),
		assemble.WithJoinMode(assemble.JoinMode(a.cfg.Engine.Join)),
	)
}

// initVoices loads the voice file and starts watching it. Reloads are
// diffed against the previous profiles for the log line.
func (a *App) initVoices() error {
	path := a.cfg.Voices.Path
	if path == "" {
		slog.Info("no voice file configured, waiting for PUT /v1/voices")
		return nil
	}

	w, err := config.NewVoicesWatcher(path, a.onVoicesChanged, config.WithInterval(a.cfg.Voices.PollInterval))
	if err != nil {
		return err
	}
	a.watcher = w
	a.closers = append(a.closers, func() error {
		w.Stop()
		return nil
	})

	a.engine.UpdateProfiles(w.Current())
	slog.Info("voice file loaded", "path", path, "profiles", len(w.Current()))
	return nil
}

func (a *App) onVoicesChanged(old, new []types.VoiceProfile) {
	diff := config.DiffProfiles(old, new)
	if diff.Empty() {
		slog.Debug("voice file rewritten without profile changes")
		return
	}
	slog.Info("voice file changed",
		"added", len(diff.Added),
		"removed", len(diff.Removed),
		"changed", len(diff.Changed),
		"partitions_changed", diff.PartitionsChanged(),
	)
	a.engine.UpdateProfiles(new)
}

// ReloadVoices re-reads the voice file now instead of waiting for the next
// poll. It is a no-op when no voice file is configured.
func (a *App) ReloadVoices() error {
	if a.watcher == nil {
		return nil
	}
	changed, err := a.watcher.Reload()
	if err != nil {
		return fmt.Errorf("app: reload voices: %w", err)
	}
	if !changed {
		slog.Info("voice file unchanged", "path", a.cfg.Voices.Path)
	}
	return nil
}

// routes builds the HTTP handler tree: API, health probes and metrics, all
// behind the observability middleware.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	httpapi.New(a.engine).Register(mux)

	checkers := []health.Checker{
		{Name: "voices", Check: a.checkVoices},
	}
	if rc, ok := a.synth.(readyChecker); ok {
		checkers = append(checkers, health.Checker{Name: "synthesizer", Check: rc.Ready})
	}
	health.New(checkers...).Register(mux)

	mux.Handle("GET /metrics", a.metricsHandler)

	return observe.Middleware(a.metrics)(mux)
}

// checkVoices fails while no enabled profile is configured.
func (a *App) checkVoices(context.Context) error {
	if a.engine.Voices().Empty() {
		return errors.New("no enabled voice profiles")
	}
	return nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Engine returns the narration engine.
func (a *App) Engine() *narrator.Engine { return a.engine }

// Addr returns the address the server is listening on, or nil before Run
// has bound its listener.
func (a *App) Addr() net.Addr {
	a.addrMu.Lock()
	defer a.addrMu.Unlock()
	return a.addr
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on cfg.Server.ListenAddr until ctx is cancelled, then
// drains in-flight requests for up to [shutdownTimeout]. It returns nil on a
// clean stop.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	a.addrMu.Lock()
	a.addr = ln.Addr()
	a.addrMu.Unlock()

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})

	slog.Info("app running", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases background resources in order. It is safe to call more
// than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
