package segment

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/MrWong99/storyvoice/pkg/types"
)

// speechVerbs is the closed set of verbs that introduce dialogue. Compound
// "-道" forms precede their bare forms.
var speechVerbs = []string{
	"说道", "问道", "答道", "讲道", "喊道", "叫道", "笑道", "哭道", "叹道",
	"说", "问", "答", "讲", "喊", "叫", "笑", "哭", "叹",
}

// rolePattern matches a speaker name, an optional "又" and a speech verb at
// the end of the narration. The name is matched lazily so "又" is never
// absorbed into it.
var rolePattern = regexp.MustCompile(`([\p{L}\p{N}_]+?)又?(?:` + strings.Join(speechVerbs, "|") + `)$`)

// ExtractRole infers the speaker from narration that precedes dialogue,
// e.g. "，他又说，" yields "他". Trailing punctuation and whitespace are
// stripped before matching. It returns "" when no speech verb ends the text.
func ExtractRole(narration string) string {
	trimmed := strings.TrimRightFunc(narration, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
	})
	m := rolePattern.FindStringSubmatch(trimmed)
	if m == nil {
		return ""
	}
	return m[1]
}

// InferRoles sets the Role of every dialogue span whose immediately preceding
// span is narration with a trailing speech verb. It never looks further back
// than one span and never uses dialogue as a role source. spans is modified
// in place and returned.
func InferRoles(spans []types.Span) []types.Span {
	for i := 1; i < len(spans); i++ {
		if spans[i].Kind != types.SpanDialogue || spans[i-1].Kind != types.SpanNarrator {
			continue
		}
		spans[i].Role = ExtractRole(spans[i-1].Text)
	}
	return spans
}

// Segment splits text into non-blank spans and infers dialogue roles.
func Segment(text string) []types.Span {
	return InferRoles(Split(text))
}
