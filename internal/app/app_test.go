package app_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/storyvoice/internal/app"
	"github.com/MrWong99/storyvoice/internal/config"
	"github.com/MrWong99/storyvoice/internal/observe"
	"github.com/MrWong99/storyvoice/internal/resilience"
	ttsmock "github.com/MrWong99/storyvoice/pkg/provider/tts/mock"
)

const twoVoices = `[
  {"id": 1, "name": "对话", "scope": "仅对话", "enabled": true, "voice": {"name": "dlg-voice"}},
  {"id": 2, "name": "旁白", "scope": "仅旁白", "enabled": true, "voice": {"name": "nar-voice"}}
]`

// testConfig returns a minimal config with defaults applied.
func testConfig(voicesPath string) *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		Synthesizer: config.SynthesizerConfig{
			ProviderEntry: config.ProviderEntry{Name: "mock"},
		},
		Voices: config.VoicesConfig{
			Path:         voicesPath,
			PollInterval: 20 * time.Millisecond,
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newApp(t *testing.T, cfg *config.Config, synth *ttsmock.Synthesizer) *app.App {
	t.Helper()
	metricsBody := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "# metrics\n")
	})
	a, err := app.New(cfg, synth, app.WithMetrics(testMetrics(t)), app.WithMetricsHandler(metricsBody))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func writeVoices(t *testing.T, path, payload string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write voices: %v", err)
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNew_RequiresSynthesizer(t *testing.T) {
	t.Parallel()

	if _, err := app.New(testConfig(""), nil); err == nil {
		t.Fatal("expected error for nil synthesizer")
	}
}

func TestNew_LoadsVoiceFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voices.json")
	writeVoices(t, path, twoVoices)

	a := newApp(t, testConfig(path), &ttsmock.Synthesizer{Echo: true})
	set := a.Engine().Voices()
	if set.Enabled() != 2 {
		t.Fatalf("enabled profiles = %d, want 2", set.Enabled())
	}
	if set.Narrator[0].VoiceID != "nar-voice" {
		t.Errorf("narrator voice = %q", set.Narrator[0].VoiceID)
	}
}

func TestNew_InvalidVoiceFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	writeVoices(t, bad, `{"voices": []}`)

	tests := []struct {
		name string
		path string
	}{
		{name: "missing", path: filepath.Join(dir, "missing.json")},
		{name: "not an array", path: bad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := app.New(testConfig(tt.path), &ttsmock.Synthesizer{}, app.WithMetrics(testMetrics(t))); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestApp_VoiceFileHotReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voices.json")
	writeVoices(t, path, twoVoices)
	a := newApp(t, testConfig(path), &ttsmock.Synthesizer{Echo: true})

	writeVoices(t, path, `[
  {"id": 1, "name": "a", "scope": "read-all", "voice": {"name": "v1"}},
  {"id": 3, "name": "b", "scope": "read-all", "voice": {"name": "v3"}},
  {"id": 4, "name": "c", "scope": "read-all", "voice": {"name": "v4"}}
]`)
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for len(a.Engine().Voices().ReadAll) != 3 {
		select {
		case <-deadline:
			t.Fatalf("voice file change not applied, read-all = %d", len(a.Engine().Voices().ReadAll))
		case <-time.After(20 * time.Millisecond):
		}
	}
	if n := len(a.Engine().Voices().Narrator); n != 0 {
		t.Errorf("narrator profiles after reload = %d, want 0", n)
	}
}

func TestApp_ReloadVoices(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voices.json")
	writeVoices(t, path, twoVoices)
	cfg := testConfig(path)
	cfg.Voices.PollInterval = time.Hour
	a := newApp(t, cfg, &ttsmock.Synthesizer{Echo: true})

	writeVoices(t, path, `[{"id": 9, "name": "all", "scope": "read-all", "voice": {"name": "v9"}}]`)
	if err := a.ReloadVoices(); err != nil {
		t.Fatalf("ReloadVoices: %v", err)
	}
	if n := len(a.Engine().Voices().ReadAll); n != 1 {
		t.Fatalf("read-all after reload = %d, want 1", n)
	}

	writeVoices(t, path, `{"broken": true}`)
	if err := a.ReloadVoices(); err == nil {
		t.Fatal("expected an error for an invalid voice file")
	}
	if n := len(a.Engine().Voices().ReadAll); n != 1 {
		t.Errorf("invalid reload replaced the profiles: read-all = %d", n)
	}

	noFile := newApp(t, testConfig(""), &ttsmock.Synthesizer{})
	if err := noFile.ReloadVoices(); err != nil {
		t.Errorf("ReloadVoices without a voice file = %v, want nil", err)
	}
}

func TestApp_Routes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voices.json")
	writeVoices(t, path, twoVoices)
	a := newApp(t, testConfig(path), &ttsmock.Synthesizer{Echo: true})
	h := a.Handler()

	tests := []struct {
		path string
		want int
	}{
		{path: "/healthz", want: http.StatusOK},
		{path: "/readyz", want: http.StatusOK},
		{path: "/metrics", want: http.StatusOK},
		{path: "/v1/voices", want: http.StatusOK},
		{path: "/nope", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := get(t, h, tt.path); rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}

	rec := get(t, h, "/healthz")
	if rec.Header().Get(observe.RequestIDHeader) == "" {
		t.Error("response carries no request ID")
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/synthesize", strings.NewReader("一段旁白"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "一段旁白" {
		t.Errorf("synthesize = %d %q", rec.Code, rec.Body.String())
	}
}

func TestApp_ReadyzWithoutVoices(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(""), &ttsmock.Synthesizer{})
	rec := get(t, a.Handler(), "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"voices"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestApp_ReadyzSynthesizerCircuitOpen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voices.json")
	writeVoices(t, path, twoVoices)

	failing := &ttsmock.Synthesizer{Err: errors.New("backend down")}
	fb := resilience.NewSynthFallback("mock", failing,
		resilience.WithBreaker(resilience.BreakerConfig{Threshold: 1, Cooldown: time.Hour}),
	)

	a, err := app.New(testConfig(path), fb, app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	if rec := get(t, a.Handler(), "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("readyz before failures = %d, want 200", rec.Code)
	}
	if _, ok := a.Engine().Synthesize(context.Background(), "一段旁白"); ok {
		t.Fatal("expected no output from failing synthesizer")
	}
	rec := get(t, a.Handler(), "/readyz")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), `"synthesizer"`) {
		t.Errorf("readyz after open circuit = %d %s", rec.Code, rec.Body.String())
	}
}

func TestApp_DefaultStyleMode(t *testing.T) {
	t.Parallel()

	cfg := testConfig("")
	cfg.Engine.Mode = config.ModeDefaultStyle
	cfg.Engine.FallbackVoice = "en-US-AriaNeural"

	synth := &ttsmock.Synthesizer{Echo: true}
	a := newApp(t, cfg, synth)
	if _, ok := a.Engine().Synthesize(context.Background(), "只有旁白"); !ok {
		t.Fatal("Synthesize reported no output")
	}
	calls := synth.Calls()
	if len(calls) != 1 || calls[0].Params.VoiceID != "en-US-AriaNeural" {
		t.Errorf("calls = %+v, want one call on the fallback voice", calls)
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voices.json")
	writeVoices(t, path, twoVoices)
	a := newApp(t, testConfig(path), &ttsmock.Synthesizer{Echo: true})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for a.Addr() == nil {
		select {
		case err := <-errCh:
			t.Fatalf("Run returned early: %v", err)
		case <-deadline:
			t.Fatal("server did not start")
		case <-time.After(10 * time.Millisecond):
		}
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", a.Addr()))
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestApp_RunListenError(t *testing.T) {
	t.Parallel()

	cfg := testConfig("")
	cfg.Server.ListenAddr = "256.0.0.1:bad"
	a := newApp(t, cfg, &ttsmock.Synthesizer{})
	if err := a.Run(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
}
