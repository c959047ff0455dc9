// Package edge provides a Microsoft Edge read-aloud backed TTS synthesizer built
// on github.com/wujunwei928/edge-tts-go. It implements the tts.Synthesizer
// interface and returns MP3 audio.
//
// The read-aloud endpoint accepts voice and prosody (rate, pitch, volume) only.
// Style, role and style degree in [tts.Params] are ignored by this backend.
//
// Typical usage:
//
//	p := edge.New(edge.WithReceiveTimeout(20))
//	audio, err := p.Synthesize(ctx, "你好", tts.Params{VoiceID: "zh-CN-XiaoxiaoNeural"})
package edge

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/storyvoice/pkg/provider/tts"
	"github.com/wujunwei928/edge-tts-go/edge_tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Provider)(nil)

const (
	// DefaultVoice is used when a call carries no voice identifier.
	DefaultVoice = "zh-CN-XiaoxiaoNeural"

	defaultReceiveTimeout = 20
)

// request is the fully resolved input of one read-aloud call.
type request struct {
	Text           string
	Voice          string
	Rate           string
	Pitch          string
	Volume         string
	Proxy          string
	ReceiveTimeout int
}

// communicateFunc performs one read-aloud call and returns the MP3 stream.
type communicateFunc func(req request) ([]byte, error)

// Option is a functional option for configuring the Edge Provider.
type Option func(*Provider)

// WithReceiveTimeout sets the websocket receive timeout in seconds.
// Defaults to 20 s.
func WithReceiveTimeout(seconds int) Option {
	return func(p *Provider) {
		if seconds > 0 {
			p.receiveTimeout = seconds
		}
	}
}

// WithProxy routes the websocket connection through the given proxy URL.
func WithProxy(proxy string) Option {
	return func(p *Provider) {
		p.proxy = proxy
	}
}

// WithDefaultVoice overrides the voice used when a call carries none.
func WithDefaultVoice(voice string) Option {
	return func(p *Provider) {
		if voice != "" {
			p.defaultVoice = voice
		}
	}
}

// Provider implements tts.Synthesizer backed by the Edge read-aloud service.
// It is safe for concurrent use.
type Provider struct {
	receiveTimeout int
	proxy          string
	defaultVoice   string
	communicate    communicateFunc
}

// New creates a new Edge Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		receiveTimeout: defaultReceiveTimeout,
		defaultVoice:   DefaultVoice,
		communicate:    communicateEdge,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Synthesize renders text through the read-aloud service. The library call
// does not accept a context, so it runs in its own goroutine and an expired
// ctx abandons it.
func (p *Provider) Synthesize(ctx context.Context, text string, params tts.Params) ([]byte, error) {
	if text == "" {
		return nil, errors.New("edge: text must not be empty")
	}
	req := p.buildRequest(text, params)

	type result struct {
		audio []byte
		err   error
	}
	done := make(chan result, 1)
	go func() {
		audio, err := p.communicate(req)
		done <- result{audio: audio, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("edge: synthesize: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("edge: synthesize voice %q: %w", req.Voice, r.err)
		}
		if len(r.audio) == 0 {
			return nil, fmt.Errorf("edge: voice %q: %w", req.Voice, tts.ErrEmptyAudio)
		}
		return r.audio, nil
	}
}

// buildRequest resolves params into the string form the service expects.
func (p *Provider) buildRequest(text string, params tts.Params) request {
	voice := params.VoiceID
	if voice == "" {
		voice = p.defaultVoice
	}
	return request{
		Text:           text,
		Voice:          voice,
		Rate:           params.RateString(),
		Pitch:          params.PitchString(),
		Volume:         params.VolumeString(),
		Proxy:          p.proxy,
		ReceiveTimeout: p.receiveTimeout,
	}
}

// communicateEdge is the production communicateFunc.
func communicateEdge(req request) ([]byte, error) {
	opts := []edge_tts.CommunicateOption{
		edge_tts.SetVoice(req.Voice),
		edge_tts.SetRate(req.Rate),
		edge_tts.SetVolume(req.Volume),
		edge_tts.SetPitch(req.Pitch),
		edge_tts.SetReceiveTimeout(req.ReceiveTimeout),
	}
	if req.Proxy != "" {
		opts = append(opts, edge_tts.SetProxy(req.Proxy))
	}
	c, err := edge_tts.NewCommunicate(req.Text, opts...)
	if err != nil {
		return nil, fmt.Errorf("new communicate: %w", err)
	}
	return c.Stream()
}
