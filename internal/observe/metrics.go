// Package observe provides application-wide observability primitives for
// storyvoice: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all storyvoice metrics.
const meterName = "github.com/MrWong99/storyvoice"

// Segment outcome labels used with [Metrics.RecordSegment].
const (
	SegmentOK        = "ok"
	SegmentFailed    = "failed"
	SegmentSkipped   = "skipped"
	SegmentTruncated = "truncated"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TTSDuration tracks the latency of a single segment synthesis call.
	TTSDuration metric.Float64Histogram

	// RequestDuration tracks the latency of a whole narration request, from
	// segmentation to the assembled buffer.
	RequestDuration metric.Float64Histogram

	// --- Counters ---

	// Requests counts narration requests. Use with attribute:
	//   attribute.String("result", "audio"|"no_output")
	Requests metric.Int64Counter

	// Segments counts assigned segments by outcome. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("status", ...)
	Segments metric.Int64Counter

	// OutputBytes counts bytes of assembled audio returned to callers.
	OutputBytes metric.Int64Counter

	// CeilingHits counts requests stopped early by the output byte ceiling.
	CeilingHits metric.Int64Counter

	// ConfigUpdates counts voice configuration updates. Use with attribute:
	//   attribute.String("status", "ok"|"invalid")
	ConfigUpdates metric.Int64Counter

	// ProviderRequests counts synthesizer calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts synthesizer errors. Use with attribute:
	//   attribute.String("provider", ...)
	ProviderErrors metric.Int64Counter

	// CircuitTransitions counts circuit breaker state changes. Use with
	// attributes: attribute.String("provider", ...), attribute.String("state", ...)
	CircuitTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveRequests tracks the number of narration requests in flight.
	ActiveRequests metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...),
	//   attribute.String("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for a
// single synthesis call.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30,
}

// requestBuckets defines histogram bucket boundaries (in seconds) for whole
// narration requests, which scale with the number of segments.
var requestBuckets = []float64{
	0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TTSDuration, err = m.Float64Histogram("storyvoice.tts.duration",
		metric.WithDescription("Latency of a single segment synthesis call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RequestDuration, err = m.Float64Histogram("storyvoice.request.duration",
		metric.WithDescription("Latency of a whole narration request."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(requestBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Requests, err = m.Int64Counter("storyvoice.requests",
		metric.WithDescription("Total narration requests by result."),
	); err != nil {
		return nil, err
	}
	if met.Segments, err = m.Int64Counter("storyvoice.segments",
		metric.WithDescription("Total assigned segments by kind and outcome."),
	); err != nil {
		return nil, err
	}
	if met.OutputBytes, err = m.Int64Counter("storyvoice.output.bytes",
		metric.WithDescription("Total bytes of assembled audio."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.CeilingHits, err = m.Int64Counter("storyvoice.ceiling.hits",
		metric.WithDescription("Requests stopped early by the output byte ceiling."),
	); err != nil {
		return nil, err
	}
	if met.ConfigUpdates, err = m.Int64Counter("storyvoice.config.updates",
		metric.WithDescription("Voice configuration updates by status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("storyvoice.provider.requests",
		metric.WithDescription("Total synthesizer requests by provider and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("storyvoice.provider.errors",
		metric.WithDescription("Total synthesizer errors by provider."),
	); err != nil {
		return nil, err
	}
	if met.CircuitTransitions, err = m.Int64Counter("storyvoice.provider.circuit.transitions",
		metric.WithDescription("Circuit breaker state changes by provider and new state."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRequests, err = m.Int64UpDownCounter("storyvoice.active_requests",
		metric.WithDescription("Number of narration requests in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("storyvoice.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSegment records one segment outcome and, for synthesized segments,
// the call latency.
func (m *Metrics) RecordSegment(ctx context.Context, kind, status string, elapsed time.Duration) {
	m.Segments.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
	if status == SegmentOK || status == SegmentFailed {
		m.TTSDuration.Record(ctx, elapsed.Seconds(),
			metric.WithAttributes(attribute.String("status", status)),
		)
	}
}

// RecordRequest records a finished narration request.
func (m *Metrics) RecordRequest(ctx context.Context, bytes int, truncated bool, elapsed time.Duration) {
	result := "audio"
	if bytes == 0 {
		result = "no_output"
	}
	m.Requests.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	m.RequestDuration.Record(ctx, elapsed.Seconds())
	if bytes > 0 {
		m.OutputBytes.Add(ctx, int64(bytes))
	}
	if truncated {
		m.CeilingHits.Add(ctx, 1)
	}
}

// RecordConfigUpdate records a voice configuration update attempt.
func (m *Metrics) RecordConfigUpdate(ctx context.Context, ok bool) {
	status := "ok"
	if !ok {
		status = "invalid"
	}
	m.ConfigUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordCircuitTransition records a provider's circuit breaker entering state.
func (m *Metrics) RecordCircuitTransition(ctx context.Context, provider, state string) {
	m.CircuitTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("state", state),
		),
	)
}
