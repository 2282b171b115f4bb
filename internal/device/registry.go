package device

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps device IDs to backends so the control protocol can
// enumerate them and the engine can open one by configured name.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]Duplex
	infos   map[string]Info
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]Duplex),
		infos:   make(map[string]Info),
	}
}

// Register adds a backend under its info's ID, replacing any previous entry.
func (r *Registry) Register(info Info, dev Duplex) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[info.ID] = dev
	r.infos[info.ID] = info
}

// Lookup returns the backend registered under id.
func (r *Registry) Lookup(id string) (Duplex, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("unknown device %q: %w", id, ErrUnavailable)
	}
	return dev, nil
}

// List enumerates registered devices in stable ID order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.infos))
	for _, info := range r.infos {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
