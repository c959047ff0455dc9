package narrator

import (
	"github.com/MrWong99/storyvoice/internal/assign"
	"github.com/MrWong99/storyvoice/internal/segment"
	"github.com/MrWong99/storyvoice/internal/voice"
	"github.com/MrWong99/storyvoice/pkg/types"
)

// Planner turns text into voice-assigned segments under one assignment
// policy. Planners are not safe for concurrent use; [Engine] serialises
// every call.
type Planner interface {
	// Plan assigns a voice to every segment of text and advances any
	// rotation state.
	Plan(text string) []types.AssignedSegment

	// Preview is Plan without side effects.
	Preview(text string) []types.AssignedSegment

	// Update replaces the configuration set.
	Update(set *voice.ConfigSet)

	// Set returns the current configuration set.
	Set() *voice.ConfigSet
}

// RoundRobinPlanner segments text, infers dialogue roles and rotates through
// the profiles of each scope. Updates keep the rotation counters, so a new
// configuration continues where the previous one left off.
type RoundRobinPlanner struct {
	set *voice.ConfigSet
	rot assign.Rotation
}

var _ Planner = (*RoundRobinPlanner)(nil)

// NewRoundRobinPlanner creates a planner over set. A nil set assigns nothing.
func NewRoundRobinPlanner(set *voice.ConfigSet) *RoundRobinPlanner {
	return &RoundRobinPlanner{set: set}
}

// Plan implements [Planner].
func (p *RoundRobinPlanner) Plan(text string) []types.AssignedSegment {
	segs, rot := assign.Assign(segment.Segment(text), p.set, p.rot)
	p.rot = rot
	return segs
}

// Preview implements [Planner].
func (p *RoundRobinPlanner) Preview(text string) []types.AssignedSegment {
	segs, _ := assign.Assign(segment.Segment(text), p.set, p.rot)
	return segs
}

// Update implements [Planner]. The rotation is kept.
func (p *RoundRobinPlanner) Update(set *voice.ConfigSet) { p.set = set }

// Set implements [Planner].
func (p *RoundRobinPlanner) Set() *voice.ConfigSet { return p.set }

// Rotation returns the current counters.
func (p *RoundRobinPlanner) Rotation() assign.Rotation { return p.rot }

// DefaultStylePlanner reads all text with one default profile and lets
// dialogue-only profiles claim quoted text. It has no rotation; an update
// recompiles the default profile and rules together.
type DefaultStylePlanner struct {
	fallback types.VoiceProfile
	set      *voice.ConfigSet
	style    *assign.DefaultStyle
}

var _ Planner = (*DefaultStylePlanner)(nil)

// NewDefaultStylePlanner creates a planner over set. fallback is used when
// set has no narrator-only or read-all profile; a zero fallback selects
// [assign.FallbackProfile].
func NewDefaultStylePlanner(set *voice.ConfigSet, fallback types.VoiceProfile) *DefaultStylePlanner {
	return &DefaultStylePlanner{
		fallback: fallback,
		set:      set,
		style:    assign.CompileDefaultStyle(set, fallback),
	}
}

// Plan implements [Planner].
func (p *DefaultStylePlanner) Plan(text string) []types.AssignedSegment {
	return p.style.Parse(text)
}

// Preview implements [Planner].
func (p *DefaultStylePlanner) Preview(text string) []types.AssignedSegment {
	return p.style.Parse(text)
}

// Update implements [Planner].
func (p *DefaultStylePlanner) Update(set *voice.ConfigSet) {
	p.set = set
	p.style = assign.CompileDefaultStyle(set, p.fallback)
}

// Set implements [Planner].
func (p *DefaultStylePlanner) Set() *voice.ConfigSet { return p.set }

// Style returns the compiled default profile and rules.
func (p *DefaultStylePlanner) Style() *assign.DefaultStyle { return p.style }
