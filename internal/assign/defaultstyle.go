package assign

import (
	"regexp"

	"github.com/MrWong99/storyvoice/internal/voice"
	"github.com/MrWong99/storyvoice/pkg/types"
)

// Fallback default style used when no narrator-only or read-all profile is
// enabled.
const (
	FallbackVoice = "zh-CN-XiaoxiaoNeural"
	FallbackStyle = "novel"
)

// dialoguePattern captures the text between two quotation marks. Colons are
// excluded from the capture so "name: text" constructs are not swallowed.
// Single curly quotes are neither delimiters nor excluded, so a quote nested
// in ‘’ stays inside the outer capture. Every dialogue rule shares this
// pattern.
var dialoguePattern = regexp.MustCompile(`["'“”]([^"'“”:]*?)["'“”]`)

// Rule pairs the shared dialogue pattern with the profile that voices its
// captures.
type Rule struct {
	Profile types.VoiceProfile
}

// DefaultStyle is the compiled rule-scan policy. It is immutable; a
// configuration update compiles a new one.
type DefaultStyle struct {
	// Default reads all text not claimed by a rule.
	Default types.VoiceProfile

	// Rules are applied in configuration order.
	Rules []Rule
}

// FallbackProfile returns the built-in default profile.
func FallbackProfile() types.VoiceProfile {
	return types.VoiceProfile{
		ID:             "default",
		Name:           "default",
		VoiceID:        FallbackVoice,
		Style:          FallbackStyle,
		StyleIntensity: 100,
		Enabled:        true,
	}
}

// CompileDefaultStyle selects the default profile and builds one rule per
// dialogue-only profile. The first narrator-only profile wins over any
// read-all profile; with neither, fallback is used. A zero fallback selects
// [FallbackProfile].
func CompileDefaultStyle(set *voice.ConfigSet, fallback types.VoiceProfile) *DefaultStyle {
	if fallback.IsZero() {
		fallback = FallbackProfile()
	}
	ds := &DefaultStyle{Default: fallback}
	if set == nil {
		return ds
	}
	switch {
	case len(set.Narrator) > 0:
		ds.Default = set.Narrator[0]
	case len(set.ReadAll) > 0:
		ds.Default = set.ReadAll[0]
	}
	for _, p := range set.Dialogue {
		ds.Rules = append(ds.Rules, Rule{Profile: p})
	}
	return ds
}

// Parse runs every rule over the whole text in order with one shared cursor.
// Text between the cursor and a match start is emitted as default narration,
// then the match capture is emitted with the rule's profile and the cursor
// moves to the match end. The untouched suffix is emitted last.
//
// Later rules rescan text that earlier rules already claimed. A match that
// starts before the cursor still emits its capture, so with two or more
// rules the same quoted text is voiced once per rule. This is a known
// limitation of the rule-scan policy.
func (d *DefaultStyle) Parse(text string) []types.AssignedSegment {
	var out []types.AssignedSegment
	lastEnd := 0
	for _, rule := range d.Rules {
		for _, m := range dialoguePattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[0], m[1]
			if start > lastEnd {
				out = append(out, d.narration(text[lastEnd:start]))
			}
			out = append(out, types.AssignedSegment{
				Kind:    types.SpanDialogue,
				Text:    text[m[2]:m[3]],
				Profile: rule.Profile,
			})
			lastEnd = end
		}
	}
	if lastEnd < len(text) {
		out = append(out, d.narration(text[lastEnd:]))
	}
	return out
}

func (d *DefaultStyle) narration(text string) types.AssignedSegment {
	return types.AssignedSegment{Kind: types.SpanNarrator, Text: text, Profile: d.Default}
}
