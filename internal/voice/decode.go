package voice

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrWong99/storyvoice/pkg/types"
)

// ErrInvalidConfig is returned when a voice configuration payload cannot be
// used. The previous configuration should stay active.
var ErrInvalidConfig = errors.New("voice: invalid configuration")

// DefaultVoiceID is used for profiles whose voice object carries no name.
const DefaultVoiceID = "zh-CN-XiaoxiaoNeural"

// defaultStyleIntensity is the neutral style strength in percent.
const defaultStyleIntensity = 100

// profileJSON is one element of the configuration array. Pointer fields
// distinguish "absent" from the zero value so defaults can apply.
type profileJSON struct {
	ID             flexString `json:"id"`
	Name           string     `json:"name"`
	Scope          string     `json:"scope"`
	Enabled        *bool      `json:"enabled"`
	Rate           float64    `json:"rate"`
	Pitch          float64    `json:"pitch"`
	Volume         float64    `json:"volume"`
	StyleIntensity *float64   `json:"styleIntensity"`
	APIName        string     `json:"apiName"`
	AudioFormat    string     `json:"audioFormat"`
	Voice          voiceJSON  `json:"voice"`
}

type voiceJSON struct {
	Name  string `json:"name"`
	Style string `json:"style"`
	Role  string `json:"role"`
}

// flexString accepts either a JSON string or a JSON number.
type flexString string

// UnmarshalJSON implements [json.Unmarshaler].
func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

// Decode parses a voice configuration payload: a JSON array of profile
// objects. Unknown fields (such as the sample "text") are ignored. Profiles
// are returned in payload order, disabled ones included.
//
// A malformed payload or a non-array top level yields an error wrapping
// [ErrInvalidConfig].
func Decode(data []byte) ([]types.VoiceProfile, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: top level must be a JSON array", ErrInvalidConfig)
	}

	var raw []profileJSON
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	profiles := make([]types.VoiceProfile, 0, len(raw))
	for i, r := range raw {
		profiles = append(profiles, r.toProfile(i))
	}
	return profiles, nil
}

// toProfile converts the wire form, applying defaults for absent fields.
// index is used as the ID when the payload carries none.
func (r profileJSON) toProfile(index int) types.VoiceProfile {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	intensity := float64(defaultStyleIntensity)
	if r.StyleIntensity != nil {
		intensity = *r.StyleIntensity
	}
	voiceID := r.Voice.Name
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	id := string(r.ID)
	if id == "" {
		id = strconv.Itoa(index)
	}
	return types.VoiceProfile{
		ID:             id,
		Name:           r.Name,
		Scope:          types.ParseScope(r.Scope),
		RawScope:       r.Scope,
		VoiceID:        voiceID,
		Role:           r.Voice.Role,
		Style:          r.Voice.Style,
		Rate:           r.Rate,
		Pitch:          r.Pitch,
		Volume:         r.Volume,
		StyleIntensity: intensity,
		Enabled:        enabled,
		APIName:        r.APIName,
		AudioFormat:    r.AudioFormat,
	}
}
