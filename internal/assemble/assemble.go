// Package assemble turns an ordered list of voice-assigned segments into one
// audio buffer.
//
// The [Assembler] calls a [tts.Synthesizer] once per segment, strictly in
// order and one call at a time. Failed, timed-out and empty results are
// logged and skipped. A cumulative byte ceiling bounds memory: once the
// collected audio already exceeds it, the remaining segments are dropped and
// the partial result is returned.
package assemble

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/storyvoice/internal/observe"
	"github.com/MrWong99/storyvoice/pkg/provider/tts"
	"github.com/MrWong99/storyvoice/pkg/types"
)

// Defaults applied by [New].
const (
	DefaultSegmentTimeout = 30 * time.Second
	DefaultMaxBytes       = 50 << 20
)

// JoinMode selects how multiple segment results are combined.
type JoinMode string

const (
	// JoinModeConcat appends the raw bytes of each result.
	JoinModeConcat JoinMode = "concat"

	// JoinModeMP3 re-frames the results into one MP3 stream, dropping the
	// per-segment ID3 and Xing headers. See [JoinMP3].
	JoinModeMP3 JoinMode = "mp3join"
)

// Status is the outcome of one segment.
type Status = string

// Segment outcomes reported in [SegmentResult.Status].
const (
	StatusOK        Status = observe.SegmentOK
	StatusFailed    Status = observe.SegmentFailed
	StatusSkipped   Status = observe.SegmentSkipped
	StatusTruncated Status = observe.SegmentTruncated
)

// SegmentResult records what happened to one segment.
type SegmentResult struct {
	Index   int
	Kind    types.SpanKind
	Voice   string
	Status  Status
	Bytes   int
	Elapsed time.Duration
	Err     error
}

// Report summarises one [Assembler.Assemble] run.
type Report struct {
	// Segments is the number of segments handed to the assembler.
	Segments int

	// Synthesized, Skipped and Failed count segment outcomes. Segments
	// dropped by the ceiling are counted in none of them.
	Synthesized int
	Skipped     int
	Failed      int

	// Truncated is set when the byte ceiling stopped the run early.
	Truncated bool

	// Bytes is the size of the returned buffer.
	Bytes int

	// Duration is the decoded play time of the output. It is zero when the
	// output could not be decoded as MP3.
	Duration time.Duration

	// Results holds one entry per segment in input order.
	Results []SegmentResult
}

// Assembler synthesizes and joins segments. It holds no per-request state
// and is safe for concurrent use.
type Assembler struct {
	synth          tts.Synthesizer
	segmentTimeout time.Duration
	maxBytes       int
	join           JoinMode
}

// Option configures an [Assembler].
type Option func(*Assembler)

// WithSegmentTimeout bounds each synthesis call. Non-positive values keep the
// default.
func WithSegmentTimeout(d time.Duration) Option {
	return func(a *Assembler) {
		if d > 0 {
			a.segmentTimeout = d
		}
	}
}

// WithMaxBytes sets the cumulative byte ceiling. Non-positive values keep the
// default.
func WithMaxBytes(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.maxBytes = n
		}
	}
}

// WithJoinMode selects the join strategy. Unknown modes fall back to
// [JoinModeConcat].
func WithJoinMode(m JoinMode) Option {
	return func(a *Assembler) {
		if m == JoinModeMP3 {
			a.join = JoinModeMP3
		} else {
			a.join = JoinModeConcat
		}
	}
}

// New creates an [Assembler] that synthesizes through synth.
func New(synth tts.Synthesizer, opts ...Option) *Assembler {
	a := &Assembler{
		synth:          synth,
		segmentTimeout: DefaultSegmentTimeout,
		maxBytes:       DefaultMaxBytes,
		join:           JoinModeConcat,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assemble synthesizes segs in order and returns the joined audio. A nil
// result means no segment produced audio.
//
// Cancelling ctx does not abort a call in flight; each call is bounded only
// by the segment timeout. A cancelled ctx stops the run before the next
// segment.
func (a *Assembler) Assemble(ctx context.Context, segs []types.AssignedSegment) ([]byte, Report) {
	ctx, span := observe.StartSpan(ctx, "assemble")
	defer span.End()

	log := observe.Logger(ctx)
	rep := Report{Segments: len(segs), Results: make([]SegmentResult, 0, len(segs))}

	var (
		parts [][]byte
		total int
	)
	for i, seg := range segs {
		if ctx.Err() != nil {
			log.Warn("assembly stopped", "segment", i, "err", ctx.Err())
			break
		}
		res := SegmentResult{Index: i, Kind: seg.Kind, Voice: seg.Profile.VoiceID}

		if strings.TrimSpace(seg.Text) == "" || seg.Profile.VoiceID == "" {
			res.Status = StatusSkipped
			rep.Skipped++
			rep.Results = append(rep.Results, res)
			continue
		}

		audio, err := a.synthesize(ctx, seg, &res)
		if err != nil {
			res.Status, res.Err = StatusFailed, err
			rep.Failed++
			rep.Results = append(rep.Results, res)
			log.Warn("segment synthesis failed",
				"segment", i,
				"voice", seg.Profile.VoiceID,
				"text", observe.Ellipsize(seg.Text, 30),
				"elapsed", res.Elapsed,
				"err", err,
			)
			continue
		}
		if total > a.maxBytes {
			res.Status = StatusTruncated
			rep.Truncated = true
			rep.Results = append(rep.Results, res)
			log.Warn("output ceiling reached, dropping remaining segments",
				"segment", i,
				"bytes", total,
				"max_bytes", a.maxBytes,
				"dropped", len(segs)-i,
			)
			break
		}

		res.Status, res.Bytes = StatusOK, len(audio)
		rep.Synthesized++
		rep.Results = append(rep.Results, res)
		parts = append(parts, audio)
		total += len(audio)
		log.Debug("segment synthesized",
			"segment", i,
			"kind", seg.Kind,
			"voice", seg.Profile.VoiceID,
			"text", observe.Ellipsize(seg.Text, 30),
			"bytes", len(audio),
			"elapsed", res.Elapsed,
		)
	}

	out := a.combine(ctx, parts, total)
	rep.Bytes = len(out)
	if len(out) > 0 {
		if d, err := ProbeDuration(out); err == nil {
			rep.Duration = d
		} else {
			log.Debug("could not probe output duration", "err", err)
		}
	}

	span.SetAttributes(
		attribute.Int("segments", rep.Segments),
		attribute.Int("synthesized", rep.Synthesized),
		attribute.Int("failed", rep.Failed),
		attribute.Int("bytes", rep.Bytes),
		attribute.Bool("truncated", rep.Truncated),
	)
	if out == nil {
		span.SetStatus(codes.Error, "no output")
	}
	return out, rep
}

// synthesize runs one bounded synthesis call. The call context keeps ctx's
// values but not its cancellation.
func (a *Assembler) synthesize(ctx context.Context, seg types.AssignedSegment, res *SegmentResult) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.segmentTimeout)
	defer cancel()

	callCtx, span := observe.StartSpan(callCtx, "assemble.segment")
	defer span.End()
	span.SetAttributes(
		attribute.Int("segment.index", res.Index),
		attribute.String("segment.kind", seg.Kind.String()),
		attribute.String("voice", seg.Profile.VoiceID),
	)

	start := time.Now()
	audio, err := a.synth.Synthesize(callCtx, seg.Text, tts.ParamsFor(seg.Profile))
	res.Elapsed = time.Since(start)
	if err == nil && len(audio) == 0 {
		err = tts.ErrEmptyAudio
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return audio, nil
}

// combine joins the collected parts. Zero parts yield nil and one part is
// returned without copying.
func (a *Assembler) combine(ctx context.Context, parts [][]byte, total int) []byte {
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	}
	if a.join == JoinModeMP3 {
		out, err := JoinMP3(parts)
		if err == nil {
			return out
		}
		observe.Logger(ctx).Warn("mp3 join failed, falling back to concatenation", "err", err)
	}
	return Concat(parts, total)
}

// Concat appends parts into one buffer of the given capacity hint.
func Concat(parts [][]byte, size int) []byte {
	out := make([]byte, 0, size)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
