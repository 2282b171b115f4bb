package dsp

// delay is a single-tap feedback echo. The circular buffer is sized for
// MaxDelayTime up front, so retuning the tap time only moves the read
// offset — it never reallocates or clears history.
type delay struct {
	sampleRate float64
	buf        []float64
	mask       int
	write      int
	tap        int
	feedback   float64
	mix        float64
}

func newDelay(sampleRate int) *delay {
	need := int(MaxDelayTime*float64(sampleRate)) + 1
	size := 1
	for size < need {
		size <<= 1
	}
	return &delay{
		sampleRate: float64(sampleRate),
		buf:        make([]float64, size),
		mask:       size - 1,
		tap:        int(0.3 * float64(sampleRate)),
		feedback:   0.4,
		mix:        0.3,
	}
}

func (d *delay) retune(p *Params) {
	tap := int(p.DelayTime * d.sampleRate)
	if tap < 1 {
		tap = 1
	}
	if tap > d.mask {
		tap = d.mask
	}
	d.tap = tap
	d.feedback = p.DelayFeedback
	d.mix = p.DelayMix
}

func (d *delay) process(block []float64, p *Params) {
	if !p.DelayEnabled {
		return
	}
	dry := 1 - d.mix
	for i, x := range block {
		wet := d.buf[(d.write-d.tap)&d.mask]
		d.buf[d.write] = x + wet*d.feedback
		d.write = (d.write + 1) & d.mask
		block[i] = x*dry + wet*d.mix
	}
}

func (d *delay) reset() {
	clear(d.buf)
	d.write = 0
}
