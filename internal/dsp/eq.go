package dsp

import "math"

// Band corner and center frequencies of the three-band equalizer.
const (
	eqLowShelfFreq  = 500
	eqMidPeakFreq   = 1200
	eqMidPeakQ      = 0.7
	eqHighShelfFreq = 4000
	eqShelfSlope    = 0.9
)

// biquad is a direct-form-I second-order section. Coefficients are
// normalized so a0 == 1.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	x1, x2     float64
	y1, y2     float64
}

func (q *biquad) processSample(x float64) float64 {
	y := q.b0*x + q.b1*q.x1 + q.b2*q.x2 - q.a1*q.y1 - q.a2*q.y2
	q.x2, q.x1 = q.x1, x
	q.y2, q.y1 = q.y1, y
	return y
}

func (q *biquad) reset() {
	q.x1, q.x2, q.y1, q.y2 = 0, 0, 0, 0
}

func (q *biquad) identity() {
	q.b0, q.b1, q.b2, q.a1, q.a2 = 1, 0, 0, 0, 0
}

// RBJ cookbook low-shelf coefficients.
func (q *biquad) lowShelf(sampleRate, freq, gainDB float64) {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	cw, sw := math.Cos(w0), math.Sin(w0)
	alpha := sw / 2 * math.Sqrt((a+1/a)*(1/eqShelfSlope-1)+2)
	beta := 2 * math.Sqrt(a) * alpha

	b0 := a * ((a + 1) - (a-1)*cw + beta)
	b1 := 2 * a * ((a - 1) - (a+1)*cw)
	b2 := a * ((a + 1) - (a-1)*cw - beta)
	a0 := (a + 1) + (a-1)*cw + beta
	a1 := -2 * ((a - 1) + (a+1)*cw)
	a2 := (a + 1) + (a-1)*cw - beta
	q.normalize(b0, b1, b2, a0, a1, a2)
}

// RBJ cookbook high-shelf coefficients.
func (q *biquad) highShelf(sampleRate, freq, gainDB float64) {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	cw, sw := math.Cos(w0), math.Sin(w0)
	alpha := sw / 2 * math.Sqrt((a+1/a)*(1/eqShelfSlope-1)+2)
	beta := 2 * math.Sqrt(a) * alpha

	b0 := a * ((a + 1) + (a-1)*cw + beta)
	b1 := -2 * a * ((a - 1) + (a+1)*cw)
	b2 := a * ((a + 1) + (a-1)*cw - beta)
	a0 := (a + 1) - (a-1)*cw + beta
	a1 := 2 * ((a - 1) - (a+1)*cw)
	a2 := (a + 1) - (a-1)*cw - beta
	q.normalize(b0, b1, b2, a0, a1, a2)
}

// RBJ cookbook peaking-EQ coefficients.
func (q *biquad) peaking(sampleRate, freq, gainDB, quality float64) {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	cw, sw := math.Cos(w0), math.Sin(w0)
	alpha := sw / (2 * quality)

	b0 := 1 + alpha*a
	b1 := -2 * cw
	b2 := 1 - alpha*a
	a0 := 1 + alpha/a
	a1 := -2 * cw
	a2 := 1 - alpha/a
	q.normalize(b0, b1, b2, a0, a1, a2)
}

func (q *biquad) normalize(b0, b1, b2, a0, a1, a2 float64) {
	q.b0 = b0 / a0
	q.b1 = b1 / a0
	q.b2 = b2 / a0
	q.a1 = a1 / a0
	q.a2 = a2 / a0
}

// equalizer is a three-band tone control: low shelf at 500 Hz, mid peak at
// 1.2 kHz, high shelf at 4 kHz, each cut or boosted independently.
type equalizer struct {
	sampleRate float64
	low        biquad
	mid        biquad
	high       biquad
}

func newEqualizer(sampleRate int) *equalizer {
	e := &equalizer{sampleRate: float64(sampleRate)}
	e.low.identity()
	e.mid.identity()
	e.high.identity()
	return e
}

func (e *equalizer) retune(p *Params) {
	e.low.lowShelf(e.sampleRate, eqLowShelfFreq, p.EQLowGain)
	e.mid.peaking(e.sampleRate, eqMidPeakFreq, p.EQMidGain, eqMidPeakQ)
	e.high.highShelf(e.sampleRate, eqHighShelfFreq, p.EQHighGain)
}

func (e *equalizer) process(block []float64, p *Params) {
	if !p.EQEnabled {
		return
	}
	for i, x := range block {
		block[i] = e.high.processSample(e.mid.processSample(e.low.processSample(x)))
	}
}

func (e *equalizer) reset() {
	e.low.reset()
	e.mid.reset()
	e.high.reset()
}
