package observe

import (
	"bytes"
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTracer installs an in-memory tracer provider as the global one for the
// duration of the test.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestStartSpan_ChildOfParent(t *testing.T) {
	exp := useTracer(t)

	ctx, parent := StartSpan(context.Background(), "narrator.synthesize")
	_, child := StartSpan(ctx, "assemble.segment")
	child.End()
	parent.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Name != "assemble.segment" || spans[1].Name != "narrator.synthesize" {
		t.Errorf("span names = %q, %q", spans[0].Name, spans[1].Name)
	}
	if spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("child span is not parented to the outer span")
	}
	if spans[0].InstrumentationScope.Name != tracerName {
		t.Errorf("scope = %q, want %q", spans[0].InstrumentationScope.Name, tracerName)
	}
}

func TestCorrelationID(t *testing.T) {
	useTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without span = %q, want empty", got)
	}

	seen := map[string]bool{}
	for range 50 {
		ctx, span := StartSpan(context.Background(), "request")
		id := CorrelationID(ctx)
		span.End()

		if _, err := hex.DecodeString(id); err != nil || len(id) != 32 {
			t.Fatalf("correlation ID %q is not 32 hex chars", id)
		}
		if seen[id] {
			t.Fatalf("duplicate correlation ID %s", id)
		}
		seen[id] = true
	}
}

func TestLogger_Attributes(t *testing.T) {
	useTracer(t)

	tests := []struct {
		name    string
		ctx     func() context.Context
		want    []string
		notWant []string
	}{
		{
			name:    "bare context",
			ctx:     context.Background,
			notWant: []string{"trace_id", "span_id", "request_id"},
		},
		{
			name: "span only",
			ctx: func() context.Context {
				ctx, _ := StartSpan(context.Background(), "op")
				return ctx
			},
			want:    []string{"trace_id=", "span_id="},
			notWant: []string{"request_id"},
		},
		{
			name: "span and request ID",
			ctx: func() context.Context {
				ctx, _ := StartSpan(context.Background(), "op")
				return WithRequestID(ctx, "req-7")
			},
			want: []string{"trace_id=", "span_id=", "request_id=req-7"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			Logger(tt.ctx()).Info("synthesizing")

			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("log line missing %q: %s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("log line should not contain %q: %s", w, out)
				}
			}
		})
	}
}

func TestEllipsize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "short", in: "hello", max: 30, want: "hello"},
		{name: "exact", in: "abcdefghij", max: 10, want: "abcdefghij"},
		{name: "long ascii", in: "abcdefghijklmnopqrstuvwxyz0123456789", max: 30, want: "abcdefghijklmnopqrstuvwxy...56789"},
		{name: "runes", in: "一二三四五六七八九十", max: 6, want: "一二三...八九十"},
		{name: "disabled", in: "abcdef", max: 0, want: "abcdef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Ellipsize(tt.in, tt.max); got != tt.want {
				t.Errorf("Ellipsize(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestRequestID_RoundTrip(t *testing.T) {
	t.Parallel()

	if got := RequestID(context.Background()); got != "" {
		t.Errorf("RequestID(background) = %q, want empty", got)
	}
	ctx := WithRequestID(context.Background(), "req-1")
	if got := RequestID(ctx); got != "req-1" {
		t.Errorf("RequestID = %q, want %q", got, "req-1")
	}
}
