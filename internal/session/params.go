package session

import (
	"encoding/json"
	"fmt"

	"github.com/voxmorph/voxmorph/internal/dsp"
)

// applyParam sets one field of p addressed by its wire name. Numeric values
// arrive as float64 (or json.Number from the decoder), toggles as bool.
// Range clamping is the store's job; this only validates name and type.
func applyParam(p *dsp.Params, name string, value any) error {
	switch name {
	case "noise_gate_enabled":
		return setBool(&p.NoiseGateEnabled, name, value)
	case "eq_enabled":
		return setBool(&p.EQEnabled, name, value)
	case "distortion_enabled":
		return setBool(&p.DistortionEnabled, name, value)
	case "chorus_enabled":
		return setBool(&p.ChorusEnabled, name, value)
	case "delay_enabled":
		return setBool(&p.DelayEnabled, name, value)
	case "reverb_enabled":
		return setBool(&p.ReverbEnabled, name, value)

	case "pitch_shift":
		return setFloat(&p.PitchShift, name, value)
	case "formant_shift":
		return setFloat(&p.FormantShift, name, value)
	case "noise_gate_threshold":
		return setFloat(&p.NoiseGateThreshold, name, value)
	case "noise_gate_ratio":
		return setFloat(&p.NoiseGateRatio, name, value)
	case "eq_low_gain":
		return setFloat(&p.EQLowGain, name, value)
	case "eq_mid_gain":
		return setFloat(&p.EQMidGain, name, value)
	case "eq_high_gain":
		return setFloat(&p.EQHighGain, name, value)
	case "distortion_gain":
		return setFloat(&p.DistortionGain, name, value)
	case "distortion_mix":
		return setFloat(&p.DistortionMix, name, value)
	case "chorus_rate":
		return setFloat(&p.ChorusRate, name, value)
	case "chorus_depth":
		return setFloat(&p.ChorusDepth, name, value)
	case "chorus_mix":
		return setFloat(&p.ChorusMix, name, value)
	case "delay_time":
		return setFloat(&p.DelayTime, name, value)
	case "delay_feedback":
		return setFloat(&p.DelayFeedback, name, value)
	case "delay_mix":
		return setFloat(&p.DelayMix, name, value)
	case "reverb_room_size":
		return setFloat(&p.ReverbRoomSize, name, value)
	case "reverb_damping":
		return setFloat(&p.ReverbDamping, name, value)
	case "reverb_wet":
		return setFloat(&p.ReverbWet, name, value)
	}
	return fmt.Errorf("%q: %w", name, ErrUnknownParameter)
}

func setFloat(dst *float64, name string, value any) error {
	switch v := value.(type) {
	case float64:
		*dst = v
	case int:
		*dst = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return fmt.Errorf("parameter %q: %w", name, err)
		}
		*dst = f
	default:
		return fmt.Errorf("parameter %q wants a number, got %T", name, value)
	}
	return nil
}

func setBool(dst *bool, name string, value any) error {
	v, ok := value.(bool)
	if !ok {
		return fmt.Errorf("parameter %q wants a boolean, got %T", name, value)
	}
	*dst = v
	return nil
}
