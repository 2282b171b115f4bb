package dsp

import "math"

// Gate envelope time constants. Fast attack keeps speech onsets intact;
// the slow release avoids chattering on word gaps.
const (
	gateAttackTime  = 0.005
	gateReleaseTime = 0.100
)

// noiseGate attenuates the signal by 1/ratio while a smoothed envelope of
// the input stays below the threshold. It is a downward expander rather than
// a hard mute, so low-level room noise ducks without clicking.
type noiseGate struct {
	attackCoeff  float64
	releaseCoeff float64

	threshold float64 // linear amplitude
	ratio     float64

	envelope float64
}

func newNoiseGate(sampleRate int) *noiseGate {
	sr := float64(sampleRate)
	return &noiseGate{
		attackCoeff:  math.Exp(-1 / (gateAttackTime * sr)),
		releaseCoeff: math.Exp(-1 / (gateReleaseTime * sr)),
		threshold:    dbToLinear(-40),
		ratio:        4,
	}
}

func (g *noiseGate) retune(p *Params) {
	g.threshold = dbToLinear(p.NoiseGateThreshold)
	g.ratio = math.Max(p.NoiseGateRatio, 1)
}

func (g *noiseGate) process(block []float64, p *Params) {
	if !p.NoiseGateEnabled {
		return
	}
	for i, x := range block {
		level := math.Abs(x)
		if level > g.envelope {
			g.envelope = g.attackCoeff*g.envelope + (1-g.attackCoeff)*level
		} else {
			g.envelope = g.releaseCoeff*g.envelope + (1-g.releaseCoeff)*level
		}
		if g.envelope < g.threshold {
			block[i] = x / g.ratio
		}
	}
}

func (g *noiseGate) reset() { g.envelope = 0 }

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}
