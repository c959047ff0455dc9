// Package segment splits narrative text into narrator and dialogue spans and
// infers the speaker of each dialogue span from the narration before it.
//
// Splitting is a two-state heuristic, not a balanced-quote parser: every
// quotation character toggles between narration and dialogue, regardless of
// whether it opens or closes. Unbalanced quotation marks misclassify every
// span after the imbalance.
package segment

import (
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/storyvoice/pkg/types"
)

// IsQuote reports whether r delimits dialogue. Straight, curly and
// full-width quotation marks are recognised.
func IsQuote(r rune) bool {
	switch r {
	case '"', '\'', '“', '”', '‘', '’', '＂', '＇':
		return true
	}
	return false
}

// SplitRaw splits text on every quotation character and classifies each raw
// chunk by its index: even chunks are narration, odd chunks are dialogue.
// Empty chunks are kept, so the result strictly alternates starting with
// narration.
func SplitRaw(text string) []types.Span {
	var spans []types.Span
	start := 0
	for i, r := range text {
		if !IsQuote(r) {
			continue
		}
		spans = append(spans, types.Span{Kind: kindAt(len(spans)), Text: text[start:i]})
		start = i + utf8.RuneLen(r)
	}
	return append(spans, types.Span{Kind: kindAt(len(spans)), Text: text[start:]})
}

// Split returns the non-blank spans of text in input order. Blank chunks are
// dropped after classification, so dropping one never changes the kind of
// its neighbours.
func Split(text string) []types.Span {
	raw := SplitRaw(text)
	spans := raw[:0]
	for _, s := range raw {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		spans = append(spans, s)
	}
	return spans
}

// Reconstruct joins raw spans, re-inserting open before and close after
// every dialogue span. For balanced input that used open and close
// consistently, Reconstruct(SplitRaw(text), open, close) == text.
func Reconstruct(spans []types.Span, open, close string) string {
	var b strings.Builder
	for _, s := range spans {
		if s.Kind == types.SpanDialogue {
			b.WriteString(open)
			b.WriteString(s.Text)
			b.WriteString(close)
			continue
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

func kindAt(index int) types.SpanKind {
	if index%2 == 1 {
		return types.SpanDialogue
	}
	return types.SpanNarrator
}
