// Package tts defines the Synthesizer interface for text-to-speech backends.
//
// A Synthesizer wraps a remote or local speech synthesis service (e.g., the
// Edge read-aloud service or ElevenLabs) and presents a uniform batch interface:
// one call turns one piece of text into one encoded audio payload. Callers that
// need to voice a whole story split it first and synthesize segment by segment.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned by implementations when the service answered
// successfully but produced no audio bytes.
var ErrEmptyAudio = errors.New("tts: empty audio")

// Synthesizer is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use.
type Synthesizer interface {
	// Synthesize renders text with the voice and prosody described by params
	// and returns the encoded audio (MP3 for all built-in backends).
	//
	// Implementations must honour ctx cancellation and deadlines. A nil error
	// with an empty slice is allowed but callers treat it like a failure.
	Synthesize(ctx context.Context, text string, params Params) ([]byte, error)
}

// SynthesizerFunc adapts an ordinary function to the [Synthesizer] interface.
type SynthesizerFunc func(ctx context.Context, text string, params Params) ([]byte, error)

// Synthesize calls f(ctx, text, params).
func (f SynthesizerFunc) Synthesize(ctx context.Context, text string, params Params) ([]byte, error) {
	return f(ctx, text, params)
}
