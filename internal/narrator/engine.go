// Package narrator is the host-facing entry point: it owns the voice
// configuration and the assignment state and turns a story into one audio
// buffer.
//
// An [Engine] exposes the two host operations, [Engine.UpdateConfig] and
// [Engine.Synthesize]. Planning (segmentation and voice assignment) is
// serialised by a mutex so concurrent requests observe a well-defined
// rotation; synthesis runs outside the lock.
package narrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/storyvoice/internal/assemble"
	"github.com/MrWong99/storyvoice/internal/observe"
	"github.com/MrWong99/storyvoice/internal/voice"
	"github.com/MrWong99/storyvoice/pkg/types"
)

// logTextRunes is how much of a story is shown in log lines.
const logTextRunes = 30

// Engine binds a [Planner] to an [assemble.Assembler]. It is safe for
// concurrent use.
type Engine struct {
	mu      sync.Mutex
	planner Planner

	asm     *assemble.Assembler
	metrics *observe.Metrics
}

// Option configures an [Engine].
type Option func(*Engine)

// WithMetrics records request, segment and configuration metrics on m.
// The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an [Engine]. The planner must not be used by anyone else
// afterwards.
func New(planner Planner, asm *assemble.Assembler, opts ...Option) *Engine {
	e := &Engine{planner: planner, asm: asm}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// UpdateConfig replaces the voice configuration with the JSON array in
// payload. An invalid payload is logged and returned as an error wrapping
// [voice.ErrInvalidConfig]; the previous configuration stays active.
func (e *Engine) UpdateConfig(payload string) error {
	ctx := context.Background()
	set, err := voice.Load([]byte(payload))
	if err != nil {
		e.metrics.RecordConfigUpdate(ctx, false)
		observe.Logger(ctx).Warn("voice configuration rejected", "err", err)
		return err
	}
	e.apply(ctx, set)
	return nil
}

// UpdateProfiles replaces the voice configuration with already decoded
// profiles.
func (e *Engine) UpdateProfiles(profiles []types.VoiceProfile) {
	e.apply(context.Background(), voice.NewConfigSet(profiles))
}

func (e *Engine) apply(ctx context.Context, set *voice.ConfigSet) {
	e.mu.Lock()
	e.planner.Update(set)
	e.mu.Unlock()

	e.metrics.RecordConfigUpdate(ctx, true)
	observe.Logger(ctx).Info("voice configuration updated",
		"profiles", len(set.Profiles),
		"narrator", len(set.Narrator),
		"dialogue", len(set.Dialogue),
		"read_all", len(set.ReadAll),
	)
}

// Voices returns the active configuration set. It may be nil before the
// first update.
func (e *Engine) Voices() *voice.ConfigSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.planner.Set()
}

// Plan returns the segments text would be voiced as, without advancing the
// rotation.
func (e *Engine) Plan(text string) []types.AssignedSegment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.planner.Preview(text)
}

// Synthesize voices text and returns the joined audio. The boolean is false
// when no segment produced audio. Cancelling ctx does not stop a request
// that has started; ctx only carries request-scoped values.
func (e *Engine) Synthesize(ctx context.Context, text string) ([]byte, bool) {
	out, _ := e.SynthesizeReport(ctx, text)
	return out, out != nil
}

// SynthesizeReport is [Engine.Synthesize] with the assembly report.
func (e *Engine) SynthesizeReport(ctx context.Context, text string) ([]byte, assemble.Report) {
	ctx, span := observe.StartSpan(ctx, "narrator.synthesize")
	defer span.End()

	e.metrics.ActiveRequests.Add(ctx, 1)
	defer e.metrics.ActiveRequests.Add(ctx, -1)

	start := time.Now()
	log := observe.Logger(ctx)

	if strings.TrimSpace(text) == "" {
		e.metrics.RecordRequest(ctx, 0, false, time.Since(start))
		return nil, assemble.Report{}
	}

	e.mu.Lock()
	segs := e.planner.Plan(text)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Int("text.runes", len([]rune(text))),
		attribute.Int("segments", len(segs)),
	)
	log.Info("synthesizing",
		"text", observe.Ellipsize(text, logTextRunes),
		"segments", len(segs),
	)

	// A request runs to completion once planned; only the per-segment
	// timeout and the byte ceiling end it early.
	out, rep := e.asm.Assemble(context.WithoutCancel(ctx), segs)

	for _, r := range rep.Results {
		e.metrics.RecordSegment(ctx, r.Kind.String(), r.Status, r.Elapsed)
	}
	elapsed := time.Since(start)
	e.metrics.RecordRequest(ctx, len(out), rep.Truncated, elapsed)

	if out == nil {
		log.Warn("no audio produced",
			"text", observe.Ellipsize(text, logTextRunes),
			"segments", rep.Segments,
			"failed", rep.Failed,
			"skipped", rep.Skipped,
		)
		return nil, rep
	}
	log.Info("synthesis complete",
		"bytes", rep.Bytes,
		"synthesized", rep.Synthesized,
		"failed", rep.Failed,
		"truncated", rep.Truncated,
		"duration", rep.Duration,
		"elapsed", elapsed,
	)
	return out, rep
}
