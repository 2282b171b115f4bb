// Package catalog holds the voice library and the built-in effect presets:
// the static data the session layer selects from. Stores are safe for
// concurrent use.
package catalog

import (
	"errors"
	"fmt"

	"github.com/voxmorph/voxmorph/internal/dsp"
)

// ErrPresetNotFound is returned when a preset ID is unknown.
var ErrPresetNotFound = errors.New("preset not found")

// Preset is a named, immutable effect-parameter snapshot.
type Preset struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	Params      dsp.Params `json:"params"`
}

// presetOrder fixes the listing order; maps would shuffle it per process.
var presetOrder = []string{
	"none", "robot", "chipmunk", "deep_voice", "monster", "radio",
	"cave", "telephone", "alien", "echo_chamber", "helium", "demon",
}

var presets = map[string]Preset{
	"none": {
		ID:          "none",
		Name:        "None (Bypass)",
		Description: "No effects applied - original voice",
		Icon:        "🔇",
		Params:      dsp.DefaultParams(),
	},
	"robot": {
		ID:          "robot",
		Name:        "Robot",
		Description: "Metallic robotic voice with distortion",
		Icon:        "🤖",
		Params: with(func(p *dsp.Params) {
			p.PitchShift = -3
			p.FormantShift = 0.8
			p.DistortionEnabled = true
			p.DistortionGain = 8
			p.DistortionMix = 0.6
			p.ChorusEnabled = true
			p.ChorusRate = 5
			p.ChorusDepth = 0.015
			p.ChorusMix = 0.4
			p.EQEnabled = true
			p.EQLowGain = -3
			p.EQMidGain = 2
			p.EQHighGain = 4
		}),
	},
	"chipmunk": {
		ID:          "chipmunk",
		Name:        "Chipmunk",
		Description: "High-pitched squeaky voice",
		Icon:        "🐿️",
		Params: with(func(p *dsp.Params) {
			p.PitchShift = 8
			p.FormantShift = 1.6
			p.EQEnabled = true
			p.EQLowGain = -6
			p.EQHighGain = 3
		}),
	},
	"deep_voice": {
		ID:          "deep_voice",
		Name:        "Deep Voice",
		Description: "Deep, bass-heavy voice",
		Icon:        "🎙️",
		Params: with(func(p *dsp.Params) {
			p.PitchShift = -6
			p.FormantShift = 0.6
			p.EQEnabled = true
			p.EQLowGain = 6
			p.EQMidGain = -2
			p.EQHighGain = -4
			p.ReverbEnabled = true
			p.ReverbRoomSize = 0.3
			p.ReverbDamping = 0.7
			p.ReverbWet = 0.2
		}),
	},
	"monster": {
		ID:          "monster",
		Name:        "Monster",
		Description: "Terrifying monster voice",
		Icon:        "👹",
		Params: with(func(p *dsp.Params) {
			p.PitchShift = -10
			p.FormantShift = 0.5
			p.DistortionEnabled = true
			p.DistortionGain = 12
			p.DistortionMix = 0.5
			p.ReverbEnabled = true
			p.ReverbRoomSize = 0.7
			p.ReverbDamping = 0.4
			p.ReverbWet = 0.4
			p.EQEnabled = true
			p.EQLowGain = 8
			p.EQMidGain = -3
			p.EQHighGain = -6
		}),
	},
	"radio": {
		ID:          "radio",
		Name:        "Radio",
		Description: "Old radio transmission effect",
		Icon:        "📻",
		Params: with(func(p *dsp.Params) {
			p.DistortionEnabled = true
			p.DistortionGain = 3
			p.DistortionMix = 0.3
			p.EQEnabled = true
			p.EQLowGain = -8
			p.EQMidGain = 4
			p.EQHighGain = -8
			p.NoiseGateEnabled = true
			p.NoiseGateThreshold = -35
		}),
	},
	"cave": {
		ID:          "cave",
		Name:        "Cave",
		Description: "Large cave reverb",
		Icon:        "🏔️",
		Params: with(func(p *dsp.Params) {
			p.PitchShift = -2
			p.ReverbEnabled = true
			p.ReverbRoomSize = 0.9
			p.ReverbDamping = 0.3
			p.ReverbWet = 0.6
			p.DelayEnabled = true
			p.DelayTime = 0.15
			p.DelayFeedback = 0.3
			p.DelayMix = 0.3
			p.EQEnabled = true
			p.EQLowGain = 2
			p.EQMidGain = -1
			p.EQHighGain = -3
		}),
	},
	"telephone": {
		ID:          "telephone",
		Name:        "Telephone",
		Description: "Phone call quality",
		Icon:        "☎️",
		Params: with(func(p *dsp.Params) {
			p.EQEnabled = true
			p.EQLowGain = -10
			p.EQMidGain = 5
			p.EQHighGain = -10
			p.DistortionEnabled = true
			p.DistortionGain = 2
			p.DistortionMix = 0.2
		}),
	},
	"alien": {
		ID:          "alien",
		Name:        "Alien",
		Description: "Extraterrestrial voice",
		Icon:        "👽",
		Params: with(func(p *dsp.Params) {
			p.PitchShift = 4
			p.FormantShift = 1.3
			p.ChorusEnabled = true
			p.ChorusRate = 3
			p.ChorusDepth = 0.03
			p.ChorusMix = 0.5
			p.ReverbEnabled = true
			p.ReverbRoomSize = 0.5
			p.ReverbWet = 0.3
			p.EQEnabled = true
			p.EQLowGain = -2
			p.EQMidGain = 3
			p.EQHighGain = 5
		}),
	},
	"echo_chamber": {
		ID:          "echo_chamber",
		Name:        "Echo Chamber",
		Description: "Strong echo effect",
		Icon:        "🔊",
		Params: with(func(p *dsp.Params) {
			p.DelayEnabled = true
			p.DelayTime = 0.4
			p.DelayFeedback = 0.6
			p.DelayMix = 0.5
			p.ReverbEnabled = true
			p.ReverbRoomSize = 0.6
			p.ReverbWet = 0.3
		}),
	},
	"helium": {
		ID:          "helium",
		Name:        "Helium",
		Description: "Like inhaling helium gas",
		Icon:        "🎈",
		Params: with(func(p *dsp.Params) {
			p.PitchShift = 10
			p.FormantShift = 1.8
			p.EQEnabled = true
			p.EQLowGain = -8
			p.EQMidGain = 1
			p.EQHighGain = 4
		}),
	},
	"demon": {
		ID:          "demon",
		Name:        "Demon",
		Description: "Demonic voice from hell",
		Icon:        "😈",
		Params: with(func(p *dsp.Params) {
			p.PitchShift = -12
			p.FormantShift = 0.5
			p.DistortionEnabled = true
			p.DistortionGain = 15
			p.DistortionMix = 0.7
			p.ReverbEnabled = true
			p.ReverbRoomSize = 0.8
			p.ReverbDamping = 0.2
			p.ReverbWet = 0.5
			p.EQEnabled = true
			p.EQLowGain = 10
			p.EQMidGain = -4
			p.EQHighGain = -8
		}),
	},
}

// with derives a preset parameter set from the defaults. Values are clamped
// so a table typo can never publish an out-of-range snapshot.
func with(edit func(*dsp.Params)) dsp.Params {
	p := dsp.DefaultParams()
	edit(&p)
	return p.Clamp()
}

// Presets lists all built-in presets in their canonical order.
func Presets() []Preset {
	out := make([]Preset, 0, len(presetOrder))
	for _, id := range presetOrder {
		out = append(out, presets[id])
	}
	return out
}

// PresetByID looks up one preset.
func PresetByID(id string) (Preset, error) {
	p, ok := presets[id]
	if !ok {
		return Preset{}, fmt.Errorf("%q: %w", id, ErrPresetNotFound)
	}
	return p, nil
}
