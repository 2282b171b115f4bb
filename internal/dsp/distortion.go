package dsp

import "math"

// distortion is a tanh soft clipper with a dry/wet blend. The drive pushes
// the signal into the saturating region; tanh keeps the output bounded so
// the stage can never overload the chain regardless of gain.
type distortion struct {
	gain float64
	mix  float64
}

func newDistortion() *distortion {
	return &distortion{gain: 5, mix: 0.5}
}

func (d *distortion) retune(p *Params) {
	d.gain = p.DistortionGain
	d.mix = p.DistortionMix
}

func (d *distortion) process(block []float64, p *Params) {
	if !p.DistortionEnabled {
		return
	}
	dry := 1 - d.mix
	for i, x := range block {
		block[i] = x*dry + math.Tanh(x*d.gain)*d.mix
	}
}

func (d *distortion) reset() {}
