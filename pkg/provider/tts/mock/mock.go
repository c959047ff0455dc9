// Package mock provides a test double for the tts.Synthesizer interface.
//
// Use Synthesizer to return controlled audio for each call and to verify that
// the correct text and parameters reach the TTS backend.
//
// Example:
//
//	s := &mock.Synthesizer{
//	    Audio: []byte("mp3"),
//	    ErrFor: map[string]error{"bad": errors.New("boom")},
//	}
//	audio, _ := s.Synthesize(ctx, "hello", tts.Params{VoiceID: "v1"})
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/storyvoice/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
	// Params are the parameters passed to Synthesize.
	Params tts.Params
}

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Audio is returned for every call not overridden by AudioFor or ErrFor.
	// When nil and Echo is false, an empty slice is returned.
	Audio []byte

	// Echo, when true, returns the input text as the audio payload. Handy for
	// asserting concatenation order.
	Echo bool

	// AudioFor overrides the returned audio per input text.
	AudioFor map[string][]byte

	// Err, if non-nil, is returned from every call.
	Err error

	// ErrFor overrides the returned error per input text.
	ErrFor map[string]error

	// Delay, if positive, blocks each call until the delay elapses or ctx is
	// done. A cancelled ctx yields ctx.Err().
	Delay time.Duration

	// DelayFor overrides Delay per input text.
	DelayFor map[string]time.Duration

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns the configured response.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, params tts.Params) ([]byte, error) {
	s.mu.Lock()
	s.SynthesizeCalls = append(s.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text, Params: params})
	delay := s.Delay
	if d, ok := s.DelayFor[text]; ok {
		delay = d
	}
	err := s.Err
	if e, ok := s.ErrFor[text]; ok {
		err = e
	}
	audio := s.Audio
	if s.Echo {
		audio = []byte(text)
	}
	if a, ok := s.AudioFor[text]; ok {
		audio = a
	}
	s.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(audio))
	copy(out, audio)
	return out, nil
}

// Calls returns a snapshot of the recorded calls. Thread-safe.
func (s *Synthesizer) Calls() []SynthesizeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SynthesizeCall, len(s.SynthesizeCalls))
	copy(out, s.SynthesizeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (s *Synthesizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SynthesizeCalls = nil
}

// Ensure Synthesizer implements tts.Synthesizer at compile time.
var _ tts.Synthesizer = (*Synthesizer)(nil)
