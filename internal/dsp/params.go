// Package dsp implements the real-time effect chain: parameter snapshots,
// the individual effect stages, and the fixed-order Chain that applies them
// to audio blocks. Everything on the block path is allocation-free after
// construction; per-sample state lives inside the stages and is never shared.
package dsp

// Params is one immutable snapshot of every user-facing effect parameter.
// The control path builds a new value, clamps it and publishes a pointer;
// the audio path only ever reads through that pointer. Field tags double
// as the wire names used by the control protocol.
type Params struct {
	// PitchShift is the pitch offset in semitones, [-12, 12]. 0 is bypass.
	PitchShift float64 `json:"pitch_shift" yaml:"pitch_shift"`
	// FormantShift is the spectral-envelope scale factor, [0.5, 2.0].
	// 1.0 is bypass.
	FormantShift float64 `json:"formant_shift" yaml:"formant_shift"`

	NoiseGateEnabled bool `json:"noise_gate_enabled" yaml:"noise_gate_enabled"`
	// NoiseGateThreshold in dBFS, [-80, 0].
	NoiseGateThreshold float64 `json:"noise_gate_threshold" yaml:"noise_gate_threshold"`
	// NoiseGateRatio is the below-threshold attenuation ratio, [1, 20].
	NoiseGateRatio float64 `json:"noise_gate_ratio" yaml:"noise_gate_ratio"`

	EQEnabled bool `json:"eq_enabled" yaml:"eq_enabled"`
	// Band gains in dB, [-12, 12].
	EQLowGain  float64 `json:"eq_low_gain" yaml:"eq_low_gain"`
	EQMidGain  float64 `json:"eq_mid_gain" yaml:"eq_mid_gain"`
	EQHighGain float64 `json:"eq_high_gain" yaml:"eq_high_gain"`

	DistortionEnabled bool `json:"distortion_enabled" yaml:"distortion_enabled"`
	// DistortionGain is the pre-saturation drive, [1, 50].
	DistortionGain float64 `json:"distortion_gain" yaml:"distortion_gain"`
	DistortionMix  float64 `json:"distortion_mix" yaml:"distortion_mix"`

	ChorusEnabled bool `json:"chorus_enabled" yaml:"chorus_enabled"`
	// ChorusRate is the LFO frequency in Hz, [0.1, 10].
	ChorusRate float64 `json:"chorus_rate" yaml:"chorus_rate"`
	// ChorusDepth is the modulation amount, [0, 1].
	ChorusDepth float64 `json:"chorus_depth" yaml:"chorus_depth"`
	ChorusMix   float64 `json:"chorus_mix" yaml:"chorus_mix"`

	DelayEnabled bool `json:"delay_enabled" yaml:"delay_enabled"`
	// DelayTime is the tap time in seconds, [0.01, 2.0].
	DelayTime     float64 `json:"delay_time" yaml:"delay_time"`
	DelayFeedback float64 `json:"delay_feedback" yaml:"delay_feedback"`
	DelayMix      float64 `json:"delay_mix" yaml:"delay_mix"`

	ReverbEnabled bool `json:"reverb_enabled" yaml:"reverb_enabled"`
	// ReverbRoomSize in [0, 1] scales the comb feedback.
	ReverbRoomSize float64 `json:"reverb_room_size" yaml:"reverb_room_size"`
	ReverbDamping  float64 `json:"reverb_damping" yaml:"reverb_damping"`
	ReverbWet      float64 `json:"reverb_wet" yaml:"reverb_wet"`
}

// MaxDelayTime is the largest delay tap time in seconds. Delay lines are
// sized for this value at construction so changing DelayTime never allocates.
const MaxDelayTime = 2.0

// DefaultParams returns the neutral parameter set: all effects disabled and
// every knob at its resting value. The chain is an identity transform under
// these parameters.
func DefaultParams() Params {
	return Params{
		PitchShift:         0,
		FormantShift:       1.0,
		NoiseGateThreshold: -40,
		NoiseGateRatio:     4,
		DistortionGain:     5,
		DistortionMix:      0.5,
		ChorusRate:         1.5,
		ChorusDepth:        0.025,
		ChorusMix:          0.5,
		DelayTime:          0.3,
		DelayFeedback:      0.4,
		DelayMix:           0.3,
		ReverbRoomSize:     0.5,
		ReverbDamping:      0.5,
		ReverbWet:          0.3,
	}
}

// Clamp returns a copy of p with every numeric field forced into its
// documented range. Out-of-range input is never an error on the control
// path; it is corrected silently so the audio path can trust every snapshot
// it loads.
func (p Params) Clamp() Params {
	p.PitchShift = clamp(p.PitchShift, -12, 12)
	p.FormantShift = clamp(p.FormantShift, 0.5, 2.0)
	p.NoiseGateThreshold = clamp(p.NoiseGateThreshold, -80, 0)
	p.NoiseGateRatio = clamp(p.NoiseGateRatio, 1, 20)
	p.EQLowGain = clamp(p.EQLowGain, -12, 12)
	p.EQMidGain = clamp(p.EQMidGain, -12, 12)
	p.EQHighGain = clamp(p.EQHighGain, -12, 12)
	p.DistortionGain = clamp(p.DistortionGain, 1, 50)
	p.DistortionMix = clamp(p.DistortionMix, 0, 1)
	p.ChorusRate = clamp(p.ChorusRate, 0.1, 10)
	p.ChorusDepth = clamp(p.ChorusDepth, 0, 1)
	p.ChorusMix = clamp(p.ChorusMix, 0, 1)
	p.DelayTime = clamp(p.DelayTime, 0.01, MaxDelayTime)
	p.DelayFeedback = clamp(p.DelayFeedback, 0, 0.9)
	p.DelayMix = clamp(p.DelayMix, 0, 1)
	p.ReverbRoomSize = clamp(p.ReverbRoomSize, 0, 1)
	p.ReverbDamping = clamp(p.ReverbDamping, 0, 1)
	p.ReverbWet = clamp(p.ReverbWet, 0, 1)
	return p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
