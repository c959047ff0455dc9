package config

import "github.com/MrWong99/storyvoice/pkg/types"

// ProfileDiff describes what changed between two voice configurations.
// Profiles are matched by ID.
type ProfileDiff struct {
	Added   []string // IDs present only in the new configuration
	Removed []string // IDs present only in the old configuration
	Changed []ProfileChange
}

// ProfileChange describes what changed for a single profile.
type ProfileChange struct {
	ID             string
	ScopeChanged   bool
	VoiceChanged   bool // voice ID, style or role
	ProsodyChanged bool // rate, pitch, volume or style intensity
	EnabledChanged bool
	NameChanged    bool
}

// Empty reports whether the two configurations were identical.
func (d ProfileDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// PartitionsChanged reports whether any change can move a profile between
// scope partitions, which shifts the round-robin rotation.
func (d ProfileDiff) PartitionsChanged() bool {
	if len(d.Added) > 0 || len(d.Removed) > 0 {
		return true
	}
	for _, c := range d.Changed {
		if c.ScopeChanged || c.EnabledChanged {
			return true
		}
	}
	return false
}

// DiffProfiles compares two voice configurations. Added and Removed keep
// the configuration order; Changed follows the new configuration's order.
func DiffProfiles(old, new []types.VoiceProfile) ProfileDiff {
	d := ProfileDiff{}

	oldByID := make(map[string]*types.VoiceProfile, len(old))
	for i := range old {
		oldByID[old[i].ID] = &old[i]
	}
	newByID := make(map[string]*types.VoiceProfile, len(new))
	for i := range new {
		newByID[new[i].ID] = &new[i]
	}

	for i := range old {
		if _, ok := newByID[old[i].ID]; !ok {
			d.Removed = append(d.Removed, old[i].ID)
		}
	}
	for i := range new {
		p := &new[i]
		prev, ok := oldByID[p.ID]
		if !ok {
			d.Added = append(d.Added, p.ID)
			continue
		}
		if c := diffProfile(prev, p); c != (ProfileChange{ID: p.ID}) {
			d.Changed = append(d.Changed, c)
		}
	}
	return d
}

// diffProfile compares two profiles with the same ID.
func diffProfile(old, new *types.VoiceProfile) ProfileChange {
	c := ProfileChange{ID: new.ID}
	c.ScopeChanged = old.Scope != new.Scope
	c.VoiceChanged = old.VoiceID != new.VoiceID || old.Style != new.Style || old.Role != new.Role
	c.ProsodyChanged = old.Rate != new.Rate || old.Pitch != new.Pitch ||
		old.Volume != new.Volume || old.StyleIntensity != new.StyleIntensity
	c.EnabledChanged = old.Enabled != new.Enabled
	c.NameChanged = old.Name != new.Name
	return c
}
