// Package soundboard plays short background clips into the processed output
// stream. Clips are decoded and resampled to the engine format at load time;
// the mixing path touches only preloaded sample memory, so it is safe to run
// inside the audio callback.
package soundboard

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

// ErrClipNotFound is returned when a clip ID is unknown.
var ErrClipNotFound = errors.New("soundboard clip not found")

// Clip is one preloaded sound: mono samples at the engine sample rate.
type Clip struct {
	ID      string
	Name    string
	samples []float64
}

// NewClip builds a clip from mono samples already at the engine rate.
func NewClip(id, name string, samples []float64) *Clip {
	return &Clip{ID: id, Name: name, samples: samples}
}

// Duration returns the clip length in seconds at the given rate.
func (c *Clip) Duration(sampleRate int) float64 {
	return float64(len(c.samples)) / float64(sampleRate)
}

// playback is the audio-thread view of the active clip. A new value is
// published on every Play; pos is advanced by the mixing goroutine only.
type playback struct {
	clip *Clip
	pos  int
	loop bool
}

// Board holds the clip library and at most one active playback. Play and
// Stop publish through an atomic pointer; Mix on the audio thread is
// wait-free and allocation-free.
type Board struct {
	mu    sync.RWMutex
	clips map[string]*Clip

	active atomic.Pointer[playback]
	volume atomic.Uint64 // math.Float64bits
}

// NewBoard creates an empty board at full volume.
func NewBoard() *Board {
	b := &Board{clips: make(map[string]*Clip)}
	b.volume.Store(math.Float64bits(1))
	return b
}

// Add registers a clip, replacing any previous clip with the same ID.
func (b *Board) Add(clip *Clip) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clips[clip.ID] = clip
}

// Clips lists the loaded clips in ID order.
func (b *Board) Clips() []*Clip {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Clip, 0, len(b.clips))
	for _, c := range b.clips {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Play starts the clip from the beginning, replacing any active playback.
func (b *Board) Play(id string, loop bool) error {
	b.mu.RLock()
	clip, ok := b.clips[id]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%q: %w", id, ErrClipNotFound)
	}
	b.active.Store(&playback{clip: clip, loop: loop})
	return nil
}

// Stop ends the active playback, if any.
func (b *Board) Stop() {
	b.active.Store(nil)
}

// Playing returns the ID of the active clip, or "".
func (b *Board) Playing() string {
	if p := b.active.Load(); p != nil {
		return p.clip.ID
	}
	return ""
}

// SetVolume sets the playback gain in [0, 1].
func (b *Board) SetVolume(v float64) {
	b.volume.Store(math.Float64bits(math.Min(math.Max(v, 0), 1)))
}

// Volume returns the playback gain.
func (b *Board) Volume() float64 {
	return math.Float64frombits(b.volume.Load())
}

// Mix adds the active clip into block and clamps the result to [-1, 1].
// Called from the audio callback; it must not allocate or block. A finished
// non-looping clip unpublishes itself.
func (b *Board) Mix(block []float64) {
	p := b.active.Load()
	if p == nil {
		return
	}
	vol := b.Volume()
	samples := p.clip.samples
	for i := range block {
		if p.pos >= len(samples) {
			if !p.loop {
				// Only the audio thread advances pos, so a plain CAS
				// against the same pointer retires exactly this playback.
				b.active.CompareAndSwap(p, nil)
				return
			}
			p.pos = 0
		}
		v := block[i] + samples[p.pos]*vol
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		block[i] = v
		p.pos++
	}
}
