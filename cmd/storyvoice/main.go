// Command storyvoice is the main entry point for the storyvoice narration
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrWong99/storyvoice/internal/app"
	"github.com/MrWong99/storyvoice/internal/config"
	"github.com/MrWong99/storyvoice/internal/observe"
	"github.com/MrWong99/storyvoice/internal/resilience"
	"github.com/MrWong99/storyvoice/pkg/provider/tts"
	"github.com/MrWong99/storyvoice/pkg/provider/tts/edge"
	"github.com/MrWong99/storyvoice/pkg/provider/tts/elevenlabs"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the configuration")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "storyvoice: load %s: %v\n", *envPath, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "storyvoice: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "storyvoice: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("storyvoice starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	synth, err := buildSynthesizer(cfg, reg, tel.Metrics)
	if err != nil {
		slog.Error("failed to build synthesizer", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(cfg, synth,
		app.WithMetrics(tel.Metrics),
		app.WithMetricsHandler(tel.MetricsHandler),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	go reloadOnHangup(ctx, application)

	slog.Info("server ready, press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}

	slog.Info("goodbye")
	return code
}

// reloadOnHangup re-reads the voice file on every SIGHUP until ctx is done.
func reloadOnHangup(ctx context.Context, a *app.App) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := a.ReloadVoices(); err != nil {
				slog.Warn("voice reload failed, keeping previous profiles", "err", err)
			}
		}
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the synthesizer factories that ship with
// storyvoice into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// edge needs no credentials; options tune the websocket call.
	reg.RegisterSynthesizer("edge", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		opts := []edge.Option{
			edge.WithReceiveTimeout(entry.IntOption("receive_timeout", 0)),
		}
		if proxy := entry.StringOption("proxy"); proxy != "" {
			opts = append(opts, edge.WithProxy(proxy))
		}
		if v := entry.StringOption("default_voice"); v != "" {
			opts = append(opts, edge.WithDefaultVoice(v))
		}
		return edge.New(opts...), nil
	})

	reg.RegisterSynthesizer("elevenlabs", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if outputFmt := entry.StringOption("output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	for _, name := range reg.Names() {
		slog.Debug("registered provider", "kind", "synthesizer", "name", name)
	}
}

// buildSynthesizer instantiates the primary synthesizer and its fallbacks
// and wraps them in a [resilience.SynthFallback].
func buildSynthesizer(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*resilience.SynthFallback, error) {
	primary, err := reg.CreateSynthesizer(cfg.Synthesizer.ProviderEntry)
	if err != nil {
		return nil, fmt.Errorf("create synthesizer %q: %w", cfg.Synthesizer.Name, err)
	}
	slog.Info("provider created", "kind", "synthesizer", "name", cfg.Synthesizer.Name)

	b := cfg.Synthesizer.Breaker
	fb := resilience.NewSynthFallback(cfg.Synthesizer.Name, primary,
		resilience.WithBreaker(resilience.BreakerConfig{
			Threshold: b.FailureThreshold,
			Cooldown:  b.Cooldown,
			Probes:    b.Probes,
		}),
		resilience.WithMetrics(metrics),
	)
	for _, entry := range cfg.Synthesizer.Fallbacks {
		s, err := reg.CreateSynthesizer(entry)
		if err != nil {
			return nil, fmt.Errorf("create fallback synthesizer %q: %w", entry.Name, err)
		}
		fb.AddFallback(entry.Name, s)
		slog.Info("provider created", "kind", "synthesizer", "name", entry.Name, "role", "fallback")
	}
	return fb, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       storyvoice startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Synthesizer", describeProvider(cfg.Synthesizer.Name, cfg.Synthesizer.Model))
	for _, f := range cfg.Synthesizer.Fallbacks {
		printRow("  fallback", describeProvider(f.Name, f.Model))
	}
	printRow("Mode", string(cfg.Engine.Mode))
	printRow("Join", string(cfg.Engine.Join))
	printRow("Seg. timeout", cfg.Engine.SynthesisTimeout.String())
	printRow("Max output", fmt.Sprintf("%d MiB", cfg.Engine.MaxOutputBytes>>20))
	if cfg.Voices.Path != "" {
		printRow("Voice file", cfg.Voices.Path)
	} else {
		printRow("Voice file", "(none)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	if cfg.Server.TLS != nil {
		printRow("TLS", "enabled")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func describeProvider(name, model string) string {
	if name == "" {
		return "(not configured)"
	}
	if model != "" {
		return name + " / " + model
	}
	return name
}

func printRow(label, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
