package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"

	"github.com/voxmorph/voxmorph/internal/dsp"
)

// ErrVoiceNotFound is returned when a voice ID is unknown.
var ErrVoiceNotFound = errors.New("voice not found")

// Category groups voices in the library browser.
type Category string

const (
	CategoryRealistic Category = "realistic"
	CategoryCharacter Category = "character"
	CategoryCustom    Category = "custom"
)

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryRealistic, CategoryCharacter, CategoryCustom:
		return true
	}
	return false
}

// Voice is one entry of the voice library. BaseParams, when set, is the
// effect profile applied on selection; the underlying voice model itself is
// opaque to this subsystem.
type Voice struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Category    Category `json:"category" yaml:"category"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Hotkey      string   `json:"hotkey,omitempty" yaml:"-"`

	BaseParams *dsp.Params `json:"-" yaml:"base_params,omitempty"`
}

// Validate checks the fields a store requires.
func (v *Voice) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("voice id must not be empty")
	}
	if v.Name == "" {
		return fmt.Errorf("voice %q: name must not be empty", v.ID)
	}
	if !v.Category.IsValid() {
		return fmt.Errorf("voice %q: invalid category %q", v.ID, v.Category)
	}
	return nil
}

// VoiceStore is the voice library backend.
type VoiceStore interface {
	List(ctx context.Context) ([]Voice, error)
	Get(ctx context.Context, id string) (Voice, error)
	Search(ctx context.Context, query string) ([]Voice, error)
}

// MemStore is an in-memory VoiceStore seeded from config.
type MemStore struct {
	mu     sync.RWMutex
	voices map[string]Voice
	order  []string
}

// Compile-time interface check.
var _ VoiceStore = (*MemStore)(nil)

// NewMemStore creates a store holding the given voices. Seed order is
// preserved in List.
func NewMemStore(voices []Voice) (*MemStore, error) {
	s := &MemStore{voices: make(map[string]Voice, len(voices))}
	for i := range voices {
		v := voices[i]
		if err := v.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.voices[v.ID]; dup {
			return nil, fmt.Errorf("duplicate voice id %q", v.ID)
		}
		s.voices[v.ID] = v
		s.order = append(s.order, v.ID)
	}
	return s, nil
}

// Replace swaps the full voice set, preserving the order given. Used when
// the config file is edited while the server runs. On error the store is
// left untouched.
func (s *MemStore) Replace(voices []Voice) error {
	next := make(map[string]Voice, len(voices))
	order := make([]string, 0, len(voices))
	for i := range voices {
		v := voices[i]
		if err := v.Validate(); err != nil {
			return err
		}
		if _, dup := next[v.ID]; dup {
			return fmt.Errorf("duplicate voice id %q", v.ID)
		}
		next[v.ID] = v
		order = append(order, v.ID)
	}

	s.mu.Lock()
	s.voices = next
	s.order = order
	s.mu.Unlock()
	return nil
}

// List returns all voices in seed order.
func (s *MemStore) List(ctx context.Context) ([]Voice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Voice, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.voices[id])
	}
	return out, nil
}

// Get returns the voice with the given ID.
func (s *MemStore) Get(ctx context.Context, id string) (Voice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.voices[id]
	if !ok {
		return Voice{}, fmt.Errorf("%q: %w", id, ErrVoiceNotFound)
	}
	return v, nil
}

// searchCutoff is the maximum Damerau-Levenshtein distance for a fuzzy name
// match, relative to the query length.
const searchCutoff = 3

// Search matches voices against query: exact substring hits on name or
// category rank first, then close fuzzy name matches for typo tolerance.
func (s *MemStore) Search(ctx context.Context, query string) ([]Voice, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return s.List(ctx)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		voice Voice
		rank  int
	}
	var hits []scored
	for _, id := range s.order {
		v := s.voices[id]
		name := strings.ToLower(v.Name)
		switch {
		case strings.Contains(name, q) || strings.Contains(strings.ToLower(string(v.Category)), q):
			hits = append(hits, scored{v, 0})
		default:
			if d := matchr.DamerauLevenshtein(name, q); d <= searchCutoff && d < len(q) {
				hits = append(hits, scored{v, d})
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].rank < hits[j].rank })

	out := make([]Voice, len(hits))
	for i, h := range hits {
		out[i] = h.voice
	}
	return out, nil
}
