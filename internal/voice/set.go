// Package voice holds the voice profile store: decoding of the user's voice
// configuration and its partitioning by scope.
//
// A [ConfigSet] is immutable. Configuration updates build a new set and swap
// it in; readers never observe a partially built set.
package voice

import (
	"github.com/MrWong99/storyvoice/pkg/types"
)

// ConfigSet is the ordered collection of enabled profiles, partitioned by
// scope. Each partition preserves configuration order. Profiles with an
// unrecognised scope appear in no partition.
type ConfigSet struct {
	// Narrator lists enabled narrator-only profiles.
	Narrator []types.VoiceProfile `json:"narrator"`

	// Dialogue lists enabled dialogue-only profiles.
	Dialogue []types.VoiceProfile `json:"dialogue"`

	// ReadAll lists enabled read-all profiles.
	ReadAll []types.VoiceProfile `json:"readAll"`

	// Profiles lists every decoded profile in configuration order, disabled
	// and unclassified ones included.
	Profiles []types.VoiceProfile `json:"profiles"`
}

// NewConfigSet partitions profiles by scope, dropping disabled profiles.
func NewConfigSet(profiles []types.VoiceProfile) *ConfigSet {
	s := &ConfigSet{Profiles: profiles}
	for _, p := range profiles {
		if !p.Enabled {
			continue
		}
		switch p.Scope {
		case types.ScopeNarrator:
			s.Narrator = append(s.Narrator, p)
		case types.ScopeDialogue:
			s.Dialogue = append(s.Dialogue, p)
		case types.ScopeReadAll:
			s.ReadAll = append(s.ReadAll, p)
		}
	}
	return s
}

// Load decodes a configuration payload and partitions it. On error the
// returned set is nil and the caller keeps its previous set.
func Load(data []byte) (*ConfigSet, error) {
	profiles, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return NewConfigSet(profiles), nil
}

// Empty reports whether no partition holds a profile.
func (s *ConfigSet) Empty() bool {
	return s == nil || len(s.Narrator)+len(s.Dialogue)+len(s.ReadAll) == 0
}

// Enabled returns the number of enabled, classified profiles.
func (s *ConfigSet) Enabled() int {
	if s == nil {
		return 0
	}
	return len(s.Narrator) + len(s.Dialogue) + len(s.ReadAll)
}
