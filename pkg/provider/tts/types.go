package tts

import (
	"fmt"

	"github.com/MrWong99/storyvoice/pkg/types"
)

// Params describes the voice and prosody for a single synthesis call.
type Params struct {
	// VoiceID is the service voice identifier, e.g. "zh-CN-XiaoxiaoNeural".
	VoiceID string

	// Rate is the relative speed adjustment in percent (0 = default).
	Rate float64

	// Pitch is the pitch adjustment in Hz (0 = default).
	Pitch float64

	// Volume is the relative volume adjustment in percent (0 = default).
	Volume float64

	// Style is the optional speaking style.
	Style string

	// Role is the optional role-play role.
	Role string

	// StyleDegree scales the style strength (1.0 = neutral).
	StyleDegree float64
}

// ParamsFor builds the synthesis parameters for a voice profile.
func ParamsFor(p types.VoiceProfile) Params {
	return Params{
		VoiceID:     p.VoiceID,
		Rate:        p.Rate,
		Pitch:       p.Pitch,
		Volume:      p.Volume,
		Style:       p.Style,
		Role:        p.Role,
		StyleDegree: p.StyleDegree(),
	}
}

// RateString formats Rate as a signed percentage, e.g. "+10%" or "-5%".
// Fractions are truncated toward zero.
func (p Params) RateString() string {
	return fmt.Sprintf("%+d%%", int(p.Rate))
}

// PitchString formats Pitch as a signed Hz offset, e.g. "+0Hz".
// Fractions are truncated toward zero.
func (p Params) PitchString() string {
	return fmt.Sprintf("%+dHz", int(p.Pitch))
}

// VolumeString formats Volume as a signed percentage.
// Fractions are truncated toward zero.
func (p Params) VolumeString() string {
	return fmt.Sprintf("%+d%%", int(p.Volume))
}
