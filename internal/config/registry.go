package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/storyvoice/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by [Registry.CreateSynthesizer] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// SynthesizerFactory builds a synthesizer from its configuration entry.
type SynthesizerFactory func(ProviderEntry) (tts.Synthesizer, error)

// Registry maps provider names to synthesizer constructors. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	synth map[string]SynthesizerFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{synth: make(map[string]SynthesizerFactory)}
}

// RegisterSynthesizer registers a synthesizer factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSynthesizer(name string, factory SynthesizerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synth[name] = factory
}

// CreateSynthesizer instantiates a synthesizer using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateSynthesizer(entry ProviderEntry) (tts.Synthesizer, error) {
	r.mu.RLock()
	factory, ok := r.synth[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: synthesizer/%q", ErrProviderNotRegistered, entry.Name)
	}
	s, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create synthesizer %q: %w", entry.Name, err)
	}
	return s, nil
}

// Names returns the registered synthesizer names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.synth))
	for name := range r.synth {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
