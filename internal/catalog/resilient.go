package catalog

import (
	"context"
	"errors"

	"github.com/voxmorph/voxmorph/internal/resilience"
)

// Guarded wraps a VoiceStore with a circuit breaker. Intended for the
// postgres backend: when the database is unreachable, control requests fail
// fast with [resilience.ErrCircuitOpen] instead of each waiting out its own
// connection timeout.
type Guarded struct {
	store   VoiceStore
	breaker *resilience.CircuitBreaker
}

var _ VoiceStore = (*Guarded)(nil)

// Guard wraps store with the given breaker configuration.
func Guard(store VoiceStore, cfg resilience.CircuitBreakerConfig) *Guarded {
	return &Guarded{
		store:   store,
		breaker: resilience.NewCircuitBreaker(cfg),
	}
}

// List implements VoiceStore.
func (g *Guarded) List(ctx context.Context) ([]Voice, error) {
	var out []Voice
	err := g.breaker.Execute(func() error {
		var err error
		out, err = g.store.List(ctx)
		return err
	})
	return out, err
}

// Get implements VoiceStore. A miss counts as a failure only if the store
// itself errored; an unknown ID is a normal answer and must not trip the
// breaker.
func (g *Guarded) Get(ctx context.Context, id string) (Voice, error) {
	var out Voice
	var lookupErr error
	err := g.breaker.Execute(func() error {
		var err error
		out, err = g.store.Get(ctx, id)
		if errors.Is(err, ErrVoiceNotFound) {
			lookupErr = err
			return nil
		}
		return err
	})
	if err != nil {
		return Voice{}, err
	}
	return out, lookupErr
}

// Search implements VoiceStore.
func (g *Guarded) Search(ctx context.Context, query string) ([]Voice, error) {
	var out []Voice
	err := g.breaker.Execute(func() error {
		var err error
		out, err = g.store.Search(ctx, query)
		return err
	})
	return out, err
}

// State exposes the breaker state for readiness probes.
func (g *Guarded) State() resilience.State {
	return g.breaker.State()
}
