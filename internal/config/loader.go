package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the synthesizer names registered by the server.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"edge", "elevenlabs"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. ${VAR} and $VAR references are expanded from the
// process environment before decoding.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Engine
	if cfg.Engine.Mode != "" && !cfg.Engine.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("engine.mode %q is invalid; valid values: round_robin, default_style", cfg.Engine.Mode))
	}
	if cfg.Engine.Join != "" && !cfg.Engine.Join.IsValid() {
		errs = append(errs, fmt.Errorf("engine.join %q is invalid; valid values: concat, mp3join", cfg.Engine.Join))
	}
	if cfg.Engine.SynthesisTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.synthesis_timeout %s must not be negative", cfg.Engine.SynthesisTimeout))
	}
	if cfg.Engine.MaxOutputBytes < 0 {
		errs = append(errs, fmt.Errorf("engine.max_output_bytes %d must not be negative", cfg.Engine.MaxOutputBytes))
	}
	if cfg.Engine.FallbackVoice != "" && cfg.Engine.Mode == ModeRoundRobin {
		slog.Warn("engine.fallback_voice only applies to default_style mode; ignoring")
	}

	// Synthesizers
	if cfg.Synthesizer.Name == "" {
		errs = append(errs, errors.New("synthesizer.name is required"))
	}
	validateProviderName(cfg.Synthesizer.Name)
	seen := map[string]int{cfg.Synthesizer.Name: -1}
	for i, fb := range cfg.Synthesizer.Fallbacks {
		prefix := fmt.Sprintf("synthesizer.fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[fb.Name]; ok {
			what := "synthesizer"
			if prev >= 0 {
				what = fmt.Sprintf("synthesizer.fallbacks[%d]", prev)
			}
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of %s", prefix, fb.Name, what))
		}
		seen[fb.Name] = i
		validateProviderName(fb.Name)
	}
	if b := cfg.Synthesizer.Breaker; b.FailureThreshold < 0 || b.Cooldown < 0 || b.Probes < 0 {
		errs = append(errs, errors.New("synthesizer.breaker values must not be negative"))
	}

	// Voices
	if cfg.Voices.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("voices.poll_interval %s must not be negative", cfg.Voices.PollInterval))
	}
	if cfg.Voices.Path == "" {
		slog.Warn("voices.path is empty; no voice profiles until a configuration is uploaded")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not one of
// [ValidProviderNames].
func validateProviderName(name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown synthesizer name, may be a typo or third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}
