package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/storyvoice/internal/observe"
	"github.com/MrWong99/storyvoice/pkg/provider/tts"
	ttsmock "github.com/MrWong99/storyvoice/pkg/provider/tts/mock"
)

func TestSynthFallback_Chain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		primaryErr    error
		secondaryErr  error
		wantAudio     string
		wantAllFailed bool
		wantSecondary int
	}{
		{name: "primary answers", wantAudio: "edge-audio"},
		{name: "fails over", primaryErr: errBackend, wantAudio: "eleven-audio", wantSecondary: 1},
		{
			name:          "every backend fails",
			primaryErr:    errBackend,
			secondaryErr:  errors.New("quota exceeded"),
			wantAllFailed: true,
			wantSecondary: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			primary := &ttsmock.Synthesizer{Audio: []byte("edge-audio"), Err: tt.primaryErr}
			secondary := &ttsmock.Synthesizer{Audio: []byte("eleven-audio"), Err: tt.secondaryErr}
			fb := NewSynthFallback("edge", primary)
			fb.AddFallback("elevenlabs", secondary)

			params := tts.Params{VoiceID: "zh-CN-YunxiNeural", Style: "cheerful", StyleDegree: 1.5}
			audio, err := fb.Synthesize(context.Background(), "你好", params)

			if tt.wantAllFailed {
				if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errBackend) {
					t.Fatalf("err = %v, want ErrAllFailed wrapping each backend error", err)
				}
				for _, name := range []string{"edge:", "elevenlabs:"} {
					if !strings.Contains(err.Error(), name) {
						t.Errorf("error %q does not name %s", err, name)
					}
				}
			} else if err != nil || string(audio) != tt.wantAudio {
				t.Fatalf("Synthesize = %q, %v; want %q", audio, err, tt.wantAudio)
			}

			calls := primary.Calls()
			if len(calls) != 1 || calls[0].Text != "你好" || calls[0].Params != params {
				t.Errorf("primary calls = %+v", calls)
			}
			if n := len(secondary.Calls()); n != tt.wantSecondary {
				t.Errorf("secondary calls = %d, want %d", n, tt.wantSecondary)
			}
		})
	}
}

func TestSynthFallback_SkipsOpenCircuit(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Synthesizer{Err: errBackend}
	secondary := &ttsmock.Synthesizer{Audio: []byte("ok")}
	fb := NewSynthFallback("edge", primary, WithBreaker(BreakerConfig{Threshold: 2, Cooldown: time.Hour}))
	fb.AddFallback("elevenlabs", secondary)

	for range 4 {
		if _, err := fb.Synthesize(context.Background(), "x", tts.Params{}); err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
	}
	if n := len(primary.Calls()); n != 2 {
		t.Errorf("primary calls = %d, want 2 before its circuit opened", n)
	}
	states := fb.States()
	if len(states) != 2 || states[0] != (BackendState{"edge", StateOpen}) || states[1] != (BackendState{"elevenlabs", StateClosed}) {
		t.Errorf("States() = %+v", states)
	}
}

func TestSynthFallback_DoneContextStopsChain(t *testing.T) {
	t.Parallel()

	t.Run("cancelled before the call", func(t *testing.T) {
		t.Parallel()

		primary := &ttsmock.Synthesizer{Audio: []byte("a")}
		fb := NewSynthFallback("edge", primary)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := fb.Synthesize(ctx, "x", tts.Params{}); !errors.Is(err, context.Canceled) || errors.Is(err, ErrAllFailed) {
			t.Fatalf("err = %v, want bare context.Canceled", err)
		}
		if n := len(primary.Calls()); n != 0 {
			t.Errorf("primary called %d times with a cancelled context", n)
		}
	})

	t.Run("backend returns cancellation", func(t *testing.T) {
		t.Parallel()

		primary := &ttsmock.Synthesizer{Err: context.Canceled}
		secondary := &ttsmock.Synthesizer{Audio: []byte("b")}
		fb := NewSynthFallback("edge", primary, WithBreaker(BreakerConfig{Threshold: 1}))
		fb.AddFallback("elevenlabs", secondary)

		if _, err := fb.Synthesize(context.Background(), "x", tts.Params{}); !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
		if n := len(secondary.Calls()); n != 0 {
			t.Errorf("secondary called %d times after cancellation", n)
		}
		if err := fb.Ready(context.Background()); err != nil {
			t.Errorf("cancellation tripped the breaker: %v", err)
		}
	})
}

func TestSynthFallback_Ready(t *testing.T) {
	t.Parallel()

	var moves []string
	primary := &ttsmock.Synthesizer{Err: errBackend}
	fb := NewSynthFallback("edge", primary, WithBreaker(BreakerConfig{
		Threshold:     1,
		Cooldown:      time.Hour,
		OnStateChange: func(from, to State) { moves = append(moves, to.String()) },
	}))

	if err := fb.Ready(context.Background()); err != nil {
		t.Fatalf("fresh fallback not ready: %v", err)
	}
	_, _ = fb.Synthesize(context.Background(), "x", tts.Params{})
	if err := fb.Ready(context.Background()); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("Ready() = %v, want ErrAllFailed once the only circuit is open", err)
	}
	if len(moves) != 1 || moves[0] != "open" {
		t.Errorf("OnStateChange saw %v, want [open]", moves)
	}
}

func TestSynthFallback_Metrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	primary := &ttsmock.Synthesizer{Err: errBackend}
	secondary := &ttsmock.Synthesizer{Audio: []byte("ok")}
	fb := NewSynthFallback("edge", primary,
		WithBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Hour}),
		WithMetrics(m),
	)
	fb.AddFallback("elevenlabs", secondary)

	for range 2 {
		if _, err := fb.Synthesize(context.Background(), "x", tts.Params{}); err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	// counter name -> attribute values -> sum
	got := map[string]map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if got[met.Name] == nil {
					got[met.Name] = map[string]int64{}
				}
				got[met.Name][attrKey(dp.Attributes)] += dp.Value
			}
		}
	}

	want := map[string]map[string]int64{
		"storyvoice.provider.requests": {
			"provider=edge,status=error":    1,
			"provider=elevenlabs,status=ok": 2,
		},
		"storyvoice.provider.errors": {
			"provider=edge": 1,
		},
		"storyvoice.provider.circuit.transitions": {
			"provider=edge,state=open": 1,
		},
	}
	for name, series := range want {
		for attrs, v := range series {
			if got[name][attrs] != v {
				t.Errorf("%s{%s} = %d, want %d (all: %v)", name, attrs, got[name][attrs], v, got[name])
			}
		}
	}
}

func attrKey(set attribute.Set) string {
	parts := make([]string, 0, set.Len())
	for _, kv := range set.ToSlice() {
		parts = append(parts, string(kv.Key)+"="+kv.Value.Emit())
	}
	return strings.Join(parts, ",")
}
