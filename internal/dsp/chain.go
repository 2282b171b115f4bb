package dsp

import "fmt"

// stage is one effect in the chain. process mutates the block in place using
// the given snapshot; retune is called once at a block boundary whenever a
// new snapshot has been published, so stages can refresh cached coefficients
// and offsets outside the per-sample loop. Neither call may allocate.
type stage interface {
	retune(p *Params)
	process(block []float64, p *Params)
	reset()
}

// Chain applies all effect stages to an audio block in a fixed canonical
// order: noise gate, pitch shift, formant shift, equalizer, distortion,
// chorus, delay, reverb. The gate runs before the shifters so silence is not
// amplified into shift artifacts, and the reverb runs last so it acts on the
// fully shaped signal. The order is not user-configurable.
//
// Latency added by the chain is dominated by the pitch shifter (one
// crossfade window, ~50 ms) and the reverb comb bank; the remaining stages
// are effectively zero-latency.
type Chain struct {
	sampleRate int
	blockSize  int
	stages     []stage
	last       *Params
}

// NewChain constructs a chain for the given stream format. Every internal
// buffer is sized here; Process never allocates afterwards.
func NewChain(sampleRate, blockSize int) (*Chain, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("dsp: invalid sample rate %d", sampleRate)
	}
	if blockSize <= 0 || blockSize&(blockSize-1) != 0 {
		return nil, fmt.Errorf("dsp: block size %d must be a positive power of two", blockSize)
	}
	return &Chain{
		sampleRate: sampleRate,
		blockSize:  blockSize,
		stages: []stage{
			newNoiseGate(sampleRate),
			newPitchShifter(sampleRate),
			newFormantShifter(blockSize),
			newEqualizer(sampleRate),
			newDistortion(),
			newChorus(sampleRate),
			newDelay(sampleRate),
			newReverb(sampleRate),
		},
	}, nil
}

// Process runs the block through every stage in order using the single
// snapshot p. Disabled stages execute as no-op pass-throughs so the per-block
// cost profile stays stable. The block length must equal the configured block
// size; the final output is clamped to [-1, 1].
func (c *Chain) Process(block []float64, p *Params) error {
	if len(block) != c.blockSize {
		return fmt.Errorf("dsp: block length %d, want %d", len(block), c.blockSize)
	}
	if p != c.last {
		for _, s := range c.stages {
			s.retune(p)
		}
		c.last = p
	}
	for _, s := range c.stages {
		s.process(block, p)
	}
	for i, v := range block {
		block[i] = clamp(v, -1, 1)
	}
	return nil
}

// Reset clears all stage state (delay lines, filter histories, envelopes).
// Call it between streams, never while a stream is running.
func (c *Chain) Reset() {
	for _, s := range c.stages {
		s.reset()
	}
	c.last = nil
}

// BlockSize reports the block length the chain was built for.
func (c *Chain) BlockSize() int { return c.blockSize }

// SampleRate reports the sample rate the chain was built for.
func (c *Chain) SampleRate() int { return c.sampleRate }
