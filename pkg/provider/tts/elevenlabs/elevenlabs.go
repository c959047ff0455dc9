// Package elevenlabs provides an ElevenLabs-backed TTS synthesizer using the
// ElevenLabs stream-input WebSocket API. It implements the tts.Synthesizer
// interface and returns MP3 audio by default.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/storyvoice/pkg/provider/tts"
	"github.com/coder/websocket"
)

const (
	wsEndpointFmt    = "%s/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=%s"
	defaultBaseURL   = "wss://api.elevenlabs.io"
	defaultModel     = "eleven_multilingual_v2"
	defaultOutputFmt = "mp3_44100_128"

	minSpeed = 0.7
	maxSpeed = 1.2
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "mp3_44100_128").
// Only MP3 formats can be joined by the assembler.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithBaseURL overrides the WebSocket base URL. Used by tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// Provider implements tts.Synthesizer backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	baseURL      string
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		baseURL:      defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text string `json:"text"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded audio
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"` // error or info
	Error   string `json:"error,omitempty"`
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// Synthesize opens a WebSocket to ElevenLabs, sends text as a single
// generation and collects the audio until the server marks it final.
func (p *Provider) Synthesize(ctx context.Context, text string, params tts.Params) ([]byte, error) {
	if params.VoiceID == "" {
		return nil, errors.New("elevenlabs: voice ID must not be empty")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, p.urlForVoice(params.VoiceID), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(-1)

	msgs := [][]byte{}
	boi, err := buildBOI(p.apiKey, settingsFor(params))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: encode BOI: %w", err)
	}
	msgs = append(msgs, boi)
	for _, t := range []string{ensureTrailingSpace(text), ""} {
		b, err := buildWSMessage(t)
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: encode text: %w", err)
		}
		msgs = append(msgs, b)
	}
	for _, m := range msgs {
		if err := conn.Write(ctx, websocket.MessageText, m); err != nil {
			return nil, fmt.Errorf("elevenlabs: write: %w", err)
		}
	}

	var out bytes.Buffer
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("elevenlabs: server error: %s", resp.Error)
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			out.Write(chunk)
		}
		if resp.IsFinal {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	if out.Len() == 0 {
		return nil, fmt.Errorf("elevenlabs: voice %q: %w", params.VoiceID, tts.ErrEmptyAudio)
	}
	return out.Bytes(), nil
}

// ---- helpers ----

// settingsFor maps prosody parameters onto ElevenLabs voice settings. Rate is
// a percentage offset; ElevenLabs accepts a speed multiplier in [0.7, 1.2].
func settingsFor(params tts.Params) *voiceSettings {
	speed := 1 + params.Rate/100
	speed = max(minSpeed, min(maxSpeed, speed))
	return &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Speed: speed}
}

// ensureTrailingSpace appends the single space ElevenLabs expects at the end
// of every text chunk.
func ensureTrailingSpace(s string) string {
	if strings.HasSuffix(s, " ") {
		return s
	}
	return s + " "
}

// buildBOI constructs the initial handshake message.
func buildBOI(apiKey string, vs *voiceSettings) ([]byte, error) {
	return json.Marshal(boiMessage{Text: " ", VoiceSettings: vs, XiAPIKey: apiKey})
}

// buildWSMessage constructs the JSON text payload for a single text fragment.
// An empty text is the flush command.
func buildWSMessage(text string) ([]byte, error) {
	return json.Marshal(textMessage{Text: text})
}

// urlForVoice constructs the WebSocket URL for a given voice.
func (p *Provider) urlForVoice(voiceID string) string {
	return fmt.Sprintf(wsEndpointFmt, p.baseURL, voiceID, p.model, p.outputFormat)
}
