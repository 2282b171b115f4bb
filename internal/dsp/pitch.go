package dsp

import "math"

// pitchWindowTime is the crossfade window of the shifter in seconds. It sets
// the added latency (one window) and the graininess floor: shorter windows
// cut latency but modulate low frequencies audibly.
const pitchWindowTime = 0.05

// pitchShifter resamples a sliding delay line at 2^(semitones/12) and
// crossfades two taps half a window apart with equal-power gains, so the
// periodic tap resets never click. It needs no FFT and its per-sample cost
// is constant, which keeps it inside the block budget at small block sizes.
type pitchShifter struct {
	buf    []float64
	mask   int
	write  int
	phase  float64 // tap sweep position in [0, 1)
	window float64 // samples
	rate   float64 // phase increment per sample
	active bool
}

func newPitchShifter(sampleRate int) *pitchShifter {
	window := pitchWindowTime * float64(sampleRate)
	// Power-of-two ring sized for the full tap sweep.
	size := 1
	for size < int(window)+2 {
		size <<= 1
	}
	return &pitchShifter{
		buf:    make([]float64, size),
		mask:   size - 1,
		window: window,
	}
}

func (s *pitchShifter) retune(p *Params) {
	if math.Abs(p.PitchShift) < 1e-3 {
		s.active = false
		return
	}
	ratio := math.Exp2(p.PitchShift / 12)
	s.rate = (1 - ratio) / s.window
	s.active = true
}

func (s *pitchShifter) process(block []float64, p *Params) {
	if !s.active {
		// Keep the line warm so enabling the shifter mid-stream
		// crossfades from real history instead of silence.
		for _, x := range block {
			s.buf[s.write] = x
			s.write = (s.write + 1) & s.mask
		}
		return
	}
	for i, x := range block {
		s.buf[s.write] = x

		d1 := s.phase * s.window
		p2 := s.phase + 0.5
		if p2 >= 1 {
			p2 -= 1
		}
		d2 := p2 * s.window

		// sin(pi*phase) gains half a cycle apart sum to unit power.
		g1 := math.Sin(math.Pi * s.phase)
		g2 := math.Sin(math.Pi * p2)
		block[i] = g1*s.readTap(d1) + g2*s.readTap(d2)

		s.write = (s.write + 1) & s.mask
		s.phase += s.rate
		for s.phase >= 1 {
			s.phase -= 1
		}
		for s.phase < 0 {
			s.phase += 1
		}
	}
}

// readTap reads the line delay samples behind the write head with linear
// interpolation.
func (s *pitchShifter) readTap(delay float64) float64 {
	idx := float64(s.write) - delay
	lo := int(math.Floor(idx))
	frac := idx - float64(lo)
	a := s.buf[lo&s.mask]
	b := s.buf[(lo+1)&s.mask]
	return a + frac*(b-a)
}

func (s *pitchShifter) reset() {
	clear(s.buf)
	s.write = 0
	s.phase = 0
}
