package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/storyvoice/pkg/provider/tts"
	"github.com/coder/websocket"
)

// ---- WebSocket message construction ----

func TestBuildWSMessage_FlushCommand(t *testing.T) {
	// ElevenLabs flush = {"text":""} with no other fields.
	data, err := buildWSMessage("")
	if err != nil {
		t.Fatalf("buildWSMessage: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal flush: %v", err)
	}
	if string(raw["text"]) != `""` {
		t.Errorf("expected empty string for text, got %s", raw["text"])
	}
	if len(raw) != 1 {
		t.Errorf("flush message should only contain text, got %d fields", len(raw))
	}
}

func TestBuildBOI(t *testing.T) {
	data, err := buildBOI("key", &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Speed: 1.1})
	if err != nil {
		t.Fatalf("buildBOI: %v", err)
	}
	var msg boiMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Text != " " {
		t.Errorf("expected BOI text to be a single space, got %q", msg.Text)
	}
	if msg.XiAPIKey != "key" {
		t.Errorf("expected api key 'key', got %q", msg.XiAPIKey)
	}
	if msg.VoiceSettings == nil || msg.VoiceSettings.Speed != 1.1 {
		t.Errorf("unexpected voice settings: %+v", msg.VoiceSettings)
	}
}

func TestSettingsFor_ClampsSpeed(t *testing.T) {
	tests := []struct {
		rate float64
		want float64
	}{
		{rate: 0, want: 1},
		{rate: 10, want: 1.1},
		{rate: 100, want: maxSpeed},
		{rate: -80, want: minSpeed},
	}
	for _, tt := range tests {
		got := settingsFor(tts.Params{Rate: tt.rate}).Speed
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("settingsFor(rate=%v).Speed = %v, want %v", tt.rate, got, tt.want)
		}
	}
}

// ---- URL construction ----

func TestURLForVoice(t *testing.T) {
	p, err := New("key", WithModel("eleven_flash_v2_5"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	url := p.urlForVoice("voice-abc123")
	for _, want := range []string{"voice-abc123", "eleven_flash_v2_5", "output_format=mp3_44100_128"} {
		if !strings.Contains(url, want) {
			t.Errorf("URL should contain %q, got: %s", want, url)
		}
	}
	if !strings.HasPrefix(url, "wss://") {
		t.Errorf("URL should be a WebSocket URL, got: %s", url)
	}
}

// ---- Synthesize against a local WebSocket server ----

func newTestServer(t *testing.T, chunks [][]byte, serverErr string) (*httptest.Server, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var received []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		// BOI, text, flush.
		for range 3 {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			mu.Lock()
			received = append(received, string(msg))
			mu.Unlock()
		}

		if serverErr != "" {
			b, _ := json.Marshal(audioResponse{Error: serverErr})
			_ = conn.Write(ctx, websocket.MessageText, b)
			return
		}
		for _, c := range chunks {
			b, _ := json.Marshal(audioResponse{Audio: base64.StdEncoding.EncodeToString(c)})
			if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
				return
			}
		}
		b, _ := json.Marshal(audioResponse{IsFinal: true})
		_ = conn.Write(ctx, websocket.MessageText, b)
		_, _, _ = conn.Read(ctx)
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSynthesize_CollectsChunks(t *testing.T) {
	srv, received := newTestServer(t, [][]byte{[]byte("ID3"), []byte("frame")}, "")
	p, err := New("secret", WithBaseURL(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	audio, err := p.Synthesize(context.Background(), "Hello there", tts.Params{VoiceID: "v1"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "ID3frame" {
		t.Errorf("audio = %q, want %q", audio, "ID3frame")
	}
	if len(*received) != 3 {
		t.Fatalf("server received %d messages, want 3", len(*received))
	}
	if !strings.Contains((*received)[0], `"xi_api_key":"secret"`) {
		t.Errorf("first message should be BOI with api key, got %s", (*received)[0])
	}
	if (*received)[1] != `{"text":"Hello there "}` {
		t.Errorf("text message = %s", (*received)[1])
	}
	if (*received)[2] != `{"text":""}` {
		t.Errorf("flush message = %s", (*received)[2])
	}
}

func TestSynthesize_EmptyAudio(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	p, _ := New("secret", WithBaseURL(wsURL(srv)))

	_, err := p.Synthesize(context.Background(), "Hello", tts.Params{VoiceID: "v1"})
	if !errors.Is(err, tts.ErrEmptyAudio) {
		t.Fatalf("error = %v, want tts.ErrEmptyAudio", err)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv, _ := newTestServer(t, nil, "quota exceeded")
	p, _ := New("secret", WithBaseURL(wsURL(srv)))

	_, err := p.Synthesize(context.Background(), "Hello", tts.Params{VoiceID: "v1"})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("error = %v, want server error", err)
	}
}

func TestSynthesize_RequiresVoice(t *testing.T) {
	p, _ := New("secret")
	if _, err := p.Synthesize(context.Background(), "Hello", tts.Params{}); err == nil {
		t.Error("expected error for empty voice ID")
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("expected model %q, got %q", defaultModel, p.model)
	}
	if p.outputFormat != defaultOutputFmt {
		t.Errorf("expected outputFormat %q, got %q", defaultOutputFmt, p.outputFormat)
	}
}

func TestNew_WithOptions(t *testing.T) {
	p, err := New("key", WithModel("eleven_flash_v2_5"), WithOutputFormat("mp3_22050_32"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "eleven_flash_v2_5" {
		t.Errorf("expected model 'eleven_flash_v2_5', got %q", p.model)
	}
	if p.outputFormat != "mp3_22050_32" {
		t.Errorf("expected outputFormat 'mp3_22050_32', got %q", p.outputFormat)
	}
}
