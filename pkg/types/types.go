// Package types defines the shared types used across all storyvoice packages.
//
// These types form the lingua franca between the voice store, the segmenter,
// the assigner and the audio assembler. Each package defines its own domain
// types, but cross-cutting data structures live here to avoid circular imports.
package types

import "strings"

// Scope classifies which kind of text a voice profile may read.
type Scope string

const (
	// ScopeNarrator marks a profile that only reads narration.
	ScopeNarrator Scope = "narrator-only"

	// ScopeDialogue marks a profile that only reads quoted dialogue.
	ScopeDialogue Scope = "dialogue-only"

	// ScopeReadAll marks a profile that may read either kind of text.
	ScopeReadAll Scope = "read-all"

	// ScopeNone marks a profile whose scope string was not recognised. Such
	// profiles never take part in assignment.
	ScopeNone Scope = ""
)

// scopeKeywords lists the substrings recognised per scope. The Chinese
// keywords are the labels written by the companion settings UI.
var scopeKeywords = []struct {
	scope    Scope
	keywords []string
}{
	{ScopeNarrator, []string{"仅旁白", "narrator-only", "narrator only"}},
	{ScopeDialogue, []string{"仅对话", "dialogue-only", "dialogue only"}},
	{ScopeReadAll, []string{"朗读全部", "read-all", "read all"}},
}

// ParseScope classifies a free-form scope string by keyword substring. The
// first matching scope wins; an unrecognised string yields [ScopeNone].
func ParseScope(s string) Scope {
	lower := strings.ToLower(s)
	for _, sk := range scopeKeywords {
		for _, kw := range sk.keywords {
			if strings.Contains(lower, kw) {
				return sk.scope
			}
		}
	}
	return ScopeNone
}

// VoiceProfile is one user-configured voice. Profiles are immutable once
// loaded; a configuration update replaces the whole set.
type VoiceProfile struct {
	// ID is the configuration-assigned identifier.
	ID string `json:"id"`

	// Name is the human-readable label.
	Name string `json:"name"`

	// Scope is the classified scope of RawScope.
	Scope Scope `json:"scope"`

	// RawScope is the scope string exactly as configured.
	RawScope string `json:"rawScope,omitempty"`

	// VoiceID is the synthesis-service voice identifier, e.g. "zh-CN-YunxiNeural".
	VoiceID string `json:"voice"`

	// Role is the optional speaking role requested from the service.
	Role string `json:"role,omitempty"`

	// Style is the optional speaking style, e.g. "cheerful".
	Style string `json:"style,omitempty"`

	// Rate is the relative speed adjustment in percent.
	Rate float64 `json:"rate"`

	// Pitch is the pitch adjustment in Hz.
	Pitch float64 `json:"pitch"`

	// Volume is the relative volume adjustment in percent.
	Volume float64 `json:"volume"`

	// StyleIntensity is the style strength in percent (100 = neutral).
	StyleIntensity float64 `json:"styleIntensity"`

	// Enabled reports whether the profile takes part in assignment.
	Enabled bool `json:"enabled"`

	// APIName names the synthesis backend the profile was created for.
	APIName string `json:"apiName,omitempty"`

	// AudioFormat is the requested output format label.
	AudioFormat string `json:"audioFormat,omitempty"`
}

// IsZero reports whether p is the empty profile assigned when no candidate
// voice exists.
func (p VoiceProfile) IsZero() bool {
	return p.ID == "" && p.VoiceID == "" && p.Name == ""
}

// StyleDegree converts StyleIntensity to the service's style degree scale.
func (p VoiceProfile) StyleDegree() float64 {
	return p.StyleIntensity / 100
}

// SpanKind tells narrator text apart from dialogue.
type SpanKind int

const (
	// SpanNarrator is text outside quotation marks.
	SpanNarrator SpanKind = iota

	// SpanDialogue is text enclosed in quotation marks.
	SpanDialogue
)

// String returns "narrator" or "dialogue".
func (k SpanKind) String() string {
	if k == SpanDialogue {
		return "dialogue"
	}
	return "narrator"
}

// MarshalText implements [encoding.TextMarshaler].
func (k SpanKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Span is a contiguous piece of input text classified as narrator or dialogue.
type Span struct {
	// Kind classifies the span.
	Kind SpanKind `json:"kind"`

	// Text is the span content without the surrounding quote marks.
	Text string `json:"text"`

	// Role is the inferred speaker. Only dialogue spans carry a role.
	Role string `json:"role,omitempty"`
}

// AssignedSegment is a span bound to the voice profile that will read it.
type AssignedSegment struct {
	// Kind is the kind of the source span.
	Kind SpanKind `json:"kind"`

	// Text is the text to synthesize.
	Text string `json:"text"`

	// Profile is the chosen voice. It is the zero value when no candidate
	// profile existed.
	Profile VoiceProfile `json:"profile"`

	// Role is the inferred speaker. It is always empty for narration.
	Role string `json:"role,omitempty"`
}
