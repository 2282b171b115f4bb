package dsp

import "math"

const (
	// chorusBaseDelay is the center of the modulated delay in seconds.
	chorusBaseDelay = 0.02
	// chorusMaxSwing bounds the LFO excursion at full depth, in seconds.
	// The delay line is sized for base + swing once at construction.
	chorusMaxSwing = 0.015
)

// chorus mixes the input with a copy read through a sine-modulated delay
// line centered at 20 ms. A single LFO voice is enough for the thickening
// the presets use; depth maps linearly onto the bounded swing.
type chorus struct {
	sampleRate float64
	buf        []float64
	mask       int
	write      int
	phase      float64
	phaseInc   float64
	swing      float64 // samples
	mix        float64
}

func newChorus(sampleRate int) *chorus {
	sr := float64(sampleRate)
	need := int((chorusBaseDelay+chorusMaxSwing)*sr) + 2
	size := 1
	for size < need {
		size <<= 1
	}
	return &chorus{
		sampleRate: sr,
		buf:        make([]float64, size),
		mask:       size - 1,
		phaseInc:   2 * math.Pi * 1.5 / sr,
		mix:        0.5,
	}
}

func (c *chorus) retune(p *Params) {
	c.phaseInc = 2 * math.Pi * p.ChorusRate / c.sampleRate
	c.swing = p.ChorusDepth * chorusMaxSwing * c.sampleRate
	c.mix = p.ChorusMix
}

func (c *chorus) process(block []float64, p *Params) {
	if !p.ChorusEnabled {
		// Advance the line so a mid-stream enable reads real history.
		for _, x := range block {
			c.buf[c.write] = x
			c.write = (c.write + 1) & c.mask
		}
		return
	}
	base := chorusBaseDelay * c.sampleRate
	dry := 1 - c.mix
	for i, x := range block {
		c.buf[c.write] = x

		delay := base + math.Sin(c.phase)*c.swing
		idx := float64(c.write) - delay
		lo := int(math.Floor(idx))
		frac := idx - float64(lo)
		a := c.buf[lo&c.mask]
		b := c.buf[(lo+1)&c.mask]
		wet := a + frac*(b-a)

		block[i] = x*dry + wet*c.mix

		c.write = (c.write + 1) & c.mask
		c.phase += c.phaseInc
		if c.phase >= 2*math.Pi {
			c.phase -= 2 * math.Pi
		}
	}
}

func (c *chorus) reset() {
	clear(c.buf)
	c.write = 0
	c.phase = 0
}
