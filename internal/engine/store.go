// Package engine runs the real-time audio loop: it owns the device stream,
// drives the effect chain once per block, and exchanges state with the
// control path through atomic snapshot handoffs in both directions.
package engine

import (
	"sync"
	"sync/atomic"

	"github.com/voxmorph/voxmorph/internal/dsp"
)

// ParamStore hands effect parameters from the control path to the audio
// path. Writers build a complete snapshot, clamp it and publish the pointer;
// the audio callback loads the pointer once per block. Readers are wait-free
// and never observe a partially updated snapshot. Writes are serialised so
// concurrent control actions cannot interleave field updates.
type ParamStore struct {
	mu      sync.Mutex
	current atomic.Pointer[dsp.Params]
}

// NewParamStore creates a store holding the neutral defaults.
func NewParamStore() *ParamStore {
	s := &ParamStore{}
	p := dsp.DefaultParams()
	s.current.Store(&p)
	return s
}

// Set clamps and publishes a full snapshot.
func (s *ParamStore) Set(p dsp.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clamped := p.Clamp()
	s.current.Store(&clamped)
}

// Update applies fn to a copy of the current snapshot and publishes the
// clamped result. Used for single-field edits from the protocol layer.
func (s *ParamStore) Update(fn func(*dsp.Params)) dsp.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := *s.current.Load()
	fn(&next)
	next = next.Clamp()
	s.current.Store(&next)
	return next
}

// Current returns the latest published snapshot. The pointed-to value is
// immutable; callers on the audio path compare pointers across blocks to
// detect parameter changes.
func (s *ParamStore) Current() *dsp.Params {
	return s.current.Load()
}
