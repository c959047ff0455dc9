// Package assign binds segmented spans to voice profiles.
//
// Two policies are provided. [Assign] is the round-robin policy: each scope
// partition is rotated with its own counter and empty partitions fall back to
// the read-all partition. [DefaultStyle] is the rule-scan policy: a single
// default profile reads all narration and every dialogue-only profile claims
// quoted text in configuration order.
//
// Both are pure: all mutable state is passed in and returned explicitly.
package assign

import (
	"github.com/MrWong99/storyvoice/internal/voice"
	"github.com/MrWong99/storyvoice/pkg/types"
)

// Rotation is the round-robin state: one monotonically increasing counter per
// partition. The zero value starts every rotation at the first profile.
type Rotation struct {
	Narrator uint64 `json:"narrator"`
	Dialogue uint64 `json:"dialogue"`
	ReadAll  uint64 `json:"readAll"`
}

// Assign binds every span to a profile and returns the advanced rotation.
//
// Narration picks from set.Narrator, dialogue from set.Dialogue; an empty
// partition falls back to set.ReadAll, whose counter is shared by both kinds.
// When neither partition has a profile the span gets the zero profile and no
// counter moves. Dialogue keeps its inferred role; narration never carries
// one.
func Assign(spans []types.Span, set *voice.ConfigSet, rot Rotation) ([]types.AssignedSegment, Rotation) {
	if set == nil {
		set = &voice.ConfigSet{}
	}
	out := make([]types.AssignedSegment, 0, len(spans))
	for _, s := range spans {
		seg := types.AssignedSegment{Kind: s.Kind, Text: s.Text}
		switch s.Kind {
		case types.SpanDialogue:
			seg.Profile = pick(set.Dialogue, &rot.Dialogue, set.ReadAll, &rot.ReadAll)
			seg.Role = s.Role
		default:
			seg.Profile = pick(set.Narrator, &rot.Narrator, set.ReadAll, &rot.ReadAll)
		}
		out = append(out, seg)
	}
	return out, rot
}

// pick selects the next profile from primary, or from fallback when primary
// is empty, advancing the counter it used.
func pick(primary []types.VoiceProfile, pc *uint64, fallback []types.VoiceProfile, fc *uint64) types.VoiceProfile {
	switch {
	case len(primary) > 0:
		p := primary[*pc%uint64(len(primary))]
		*pc++
		return p
	case len(fallback) > 0:
		p := fallback[*fc%uint64(len(fallback))]
		*fc++
		return p
	}
	return types.VoiceProfile{}
}
