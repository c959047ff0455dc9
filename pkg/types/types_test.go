package types

import "testing"

func TestParseScope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Scope
	}{
		{in: "仅旁白", want: ScopeNarrator},
		{in: "仅对话", want: ScopeDialogue},
		{in: "朗读全部", want: ScopeReadAll},
		{in: "[仅对话] 女声", want: ScopeDialogue},
		{in: "Narrator-Only", want: ScopeNarrator},
		{in: "dialogue only", want: ScopeDialogue},
		{in: "read-all", want: ScopeReadAll},
		{in: "旁白", want: ScopeNone},
		{in: "", want: ScopeNone},
	}

	for _, tt := range tests {
		if got := ParseScope(tt.in); got != tt.want {
			t.Errorf("ParseScope(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVoiceProfile_StyleDegree(t *testing.T) {
	t.Parallel()

	if got := (VoiceProfile{StyleIntensity: 70}).StyleDegree(); got != 0.7 {
		t.Errorf("StyleDegree() = %v, want 0.7", got)
	}
	if !(VoiceProfile{}).IsZero() {
		t.Error("zero profile should report IsZero")
	}
	if (VoiceProfile{VoiceID: "v"}).IsZero() {
		t.Error("profile with a voice should not report IsZero")
	}
}
