package dsp

// Freeverb tunings, given in samples at 44.1 kHz and rescaled to the
// configured rate at construction. The comb delays are mutually prime so
// the tail stays diffuse.
var (
	reverbCombTuning    = [8]int{1116, 1188, 1277, 1356, 1422, 1491, 1557, 1617}
	reverbAllpassTuning = [4]int{556, 441, 341, 225}
)

const (
	reverbFixedGain     = 0.015
	reverbScaleRoom     = 0.28
	reverbOffsetRoom    = 0.7
	reverbScaleDamp     = 0.4
	reverbAllpassFeedbk = 0.5
)

type combFilter struct {
	buf      []float64
	pos      int
	feedback float64
	damp     float64
	store    float64
}

func (c *combFilter) processSample(x float64) float64 {
	out := c.buf[c.pos]
	c.store = out*(1-c.damp) + c.store*c.damp
	c.buf[c.pos] = x + c.store*c.feedback
	c.pos++
	if c.pos >= len(c.buf) {
		c.pos = 0
	}
	return out
}

type allpassFilter struct {
	buf []float64
	pos int
}

func (a *allpassFilter) processSample(x float64) float64 {
	buffered := a.buf[a.pos]
	a.buf[a.pos] = x + buffered*reverbAllpassFeedbk
	a.pos++
	if a.pos >= len(a.buf) {
		a.pos = 0
	}
	return buffered - x
}

// reverb is a Schroeder/Freeverb tail: eight parallel damped feedback combs
// followed by four series allpasses, blended onto the dry signal by the wet
// amount. Room size drives comb feedback, damping the in-loop lowpass.
type reverb struct {
	combs   [8]combFilter
	allpass [4]allpassFilter
	wet     float64
}

func newReverb(sampleRate int) *reverb {
	r := &reverb{wet: 0.3}
	scale := float64(sampleRate) / 44100
	for i := range r.combs {
		n := int(float64(reverbCombTuning[i]) * scale)
		if n < 1 {
			n = 1
		}
		r.combs[i].buf = make([]float64, n)
		r.combs[i].feedback = reverbOffsetRoom + reverbScaleRoom*0.5
		r.combs[i].damp = 0.5 * reverbScaleDamp
	}
	for i := range r.allpass {
		n := int(float64(reverbAllpassTuning[i]) * scale)
		if n < 1 {
			n = 1
		}
		r.allpass[i].buf = make([]float64, n)
	}
	return r
}

func (r *reverb) retune(p *Params) {
	feedback := reverbOffsetRoom + reverbScaleRoom*p.ReverbRoomSize
	damp := p.ReverbDamping * reverbScaleDamp
	for i := range r.combs {
		r.combs[i].feedback = feedback
		r.combs[i].damp = damp
	}
	r.wet = p.ReverbWet
}

func (r *reverb) process(block []float64, p *Params) {
	if !p.ReverbEnabled {
		return
	}
	for i, x := range block {
		in := x * reverbFixedGain
		acc := 0.0
		for c := range r.combs {
			acc += r.combs[c].processSample(in)
		}
		for a := range r.allpass {
			acc = r.allpass[a].processSample(acc)
		}
		block[i] = x + acc*r.wet*3
	}
}

func (r *reverb) reset() {
	for i := range r.combs {
		clear(r.combs[i].buf)
		r.combs[i].pos = 0
		r.combs[i].store = 0
	}
	for i := range r.allpass {
		clear(r.allpass[i].buf)
		r.allpass[i].pos = 0
	}
}
