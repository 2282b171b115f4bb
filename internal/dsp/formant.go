package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// formantShifter rescales the spectral envelope of each block without
// changing pitch: the magnitude spectrum is resampled by 1/shift while every
// bin keeps its original phase. Block-wise processing with no overlap is a
// deliberate trade — it adds zero latency and the framing artifacts stay
// masked under voice material at the block sizes the engine uses.
type formantShifter struct {
	fft    *fourier.FFT
	n      int
	coeff  []complex128
	mag    []float64
	warped []float64
	inv    []float64
	ratio  float64
	active bool
}

func newFormantShifter(blockSize int) *formantShifter {
	bins := blockSize/2 + 1
	return &formantShifter{
		fft:    fourier.NewFFT(blockSize),
		n:      blockSize,
		coeff:  make([]complex128, bins),
		mag:    make([]float64, bins),
		warped: make([]float64, bins),
		inv:    make([]float64, blockSize),
		ratio:  1,
	}
}

func (f *formantShifter) retune(p *Params) {
	f.ratio = p.FormantShift
	f.active = math.Abs(p.FormantShift-1) > 1e-3
}

func (f *formantShifter) process(block []float64, p *Params) {
	if !f.active {
		return
	}
	f.fft.Coefficients(f.coeff, block)
	for k := range f.coeff {
		f.mag[k] = cmplx.Abs(f.coeff[k])
	}
	// Envelope value at bin k comes from source position k/ratio, linearly
	// interpolated and clamped at the spectrum edges.
	last := len(f.mag) - 1
	for k := range f.warped {
		src := float64(k) / f.ratio
		if src >= float64(last) {
			f.warped[k] = f.mag[last]
			continue
		}
		lo := int(src)
		frac := src - float64(lo)
		f.warped[k] = f.mag[lo] + frac*(f.mag[lo+1]-f.mag[lo])
	}
	for k, c := range f.coeff {
		if f.mag[k] > 1e-12 {
			scale := complex(f.warped[k]/f.mag[k], 0)
			f.coeff[k] = c * scale
		} else {
			f.coeff[k] = complex(f.warped[k], 0)
		}
	}
	f.fft.Sequence(f.inv, f.coeff)
	norm := 1 / float64(f.n)
	for i := range block {
		block[i] = f.inv[i] * norm
	}
}

func (f *formantShifter) reset() {}
