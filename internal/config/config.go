// Package config provides the configuration schema, loader, voice file
// watcher and synthesizer registry for the storyvoice server.
package config

import (
	"fmt"
	"strconv"
	"time"
)

// LogLevel controls log verbosity for the storyvoice server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Mode selects the voice assignment policy.
type Mode string

const (
	// ModeRoundRobin rotates through the profiles of each scope and keeps
	// the rotation across voice configuration updates.
	ModeRoundRobin Mode = "round_robin"

	// ModeDefaultStyle reads everything with one default profile and lets
	// dialogue-only profiles claim quoted text.
	ModeDefaultStyle Mode = "default_style"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	return m == ModeRoundRobin || m == ModeDefaultStyle
}

// JoinMode selects how segment audio is combined.
type JoinMode string

const (
	JoinConcat JoinMode = "concat"
	JoinMP3    JoinMode = "mp3join"
)

// IsValid reports whether j is a recognised join mode.
func (j JoinMode) IsValid() bool {
	return j == JoinConcat || j == JoinMP3
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr       = ":8080"
	DefaultSynthesisTimeout = 30 * time.Second
	DefaultMaxOutputBytes   = 50 << 20
	DefaultSynthesizer      = "edge"
	DefaultPollInterval     = 5 * time.Second
)

// Config is the root configuration structure for storyvoice.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Engine      EngineConfig      `yaml:"engine"`
	Synthesizer SynthesizerConfig `yaml:"synthesizer"`
	Voices      VoicesConfig      `yaml:"voices"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// EngineConfig tunes segmentation, assignment and assembly.
type EngineConfig struct {
	// Mode selects the assignment policy. Default: round_robin.
	Mode Mode `yaml:"mode"`

	// SynthesisTimeout bounds each segment's synthesis call. Default: 30s.
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout"`

	// MaxOutputBytes is the cumulative audio ceiling per request.
	// Default: 50 MiB.
	MaxOutputBytes int `yaml:"max_output_bytes"`

	// Join selects the join strategy. Default: concat.
	Join JoinMode `yaml:"join"`

	// FallbackVoice is the voice used by default_style mode when no
	// narrator-only or read-all profile is enabled.
	// Default: zh-CN-XiaoxiaoNeural.
	FallbackVoice string `yaml:"fallback_voice"`
}

// SynthesizerConfig selects the primary synthesis backend and optional
// failover backends tried in order.
type SynthesizerConfig struct {
	ProviderEntry `yaml:",inline"`

	// Fallbacks are tried after the primary fails or its circuit is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Breaker tunes the circuit breaker guarding each backend.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes a per-backend circuit breaker. Zero values select the
// resilience package defaults.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. Default: 5.
	FailureThreshold int `yaml:"failure_threshold"`

	// Cooldown is how long an open circuit rejects calls before letting
	// probe calls through. Default: 30s.
	Cooldown time.Duration `yaml:"cooldown"`

	// Probes is the number of successful probe calls that close the
	// circuit again. Default: 3.
	Probes int `yaml:"probes"`
}

// ProviderEntry is the configuration block for one synthesis backend.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "edge").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// StringOption returns Options[key] formatted as a string, or "".
func (e ProviderEntry) StringOption(key string) string {
	v, ok := e.Options[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// IntOption returns Options[key] as an int, or def when the key is missing
// or not a number.
func (e ProviderEntry) IntOption(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// VoicesConfig locates the voice configuration JSON array.
type VoicesConfig struct {
	// Path is the voice configuration file. When empty the server starts
	// with no profiles and waits for PUT /v1/voices.
	Path string `yaml:"path"`

	// PollInterval is how often Path is checked for changes. Default: 5s.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Engine.Mode == "" {
		cfg.Engine.Mode = ModeRoundRobin
	}
	if cfg.Engine.SynthesisTimeout == 0 {
		cfg.Engine.SynthesisTimeout = DefaultSynthesisTimeout
	}
	if cfg.Engine.MaxOutputBytes == 0 {
		cfg.Engine.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if cfg.Engine.Join == "" {
		cfg.Engine.Join = JoinConcat
	}
	if cfg.Synthesizer.Name == "" {
		cfg.Synthesizer.Name = DefaultSynthesizer
	}
	if cfg.Voices.PollInterval == 0 {
		cfg.Voices.PollInterval = DefaultPollInterval
	}
}
