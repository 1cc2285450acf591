package memory

import (
	"context"
	"sync"

	"homehub-cloud/internal/places"
)

// Places is an in-memory places.ContextStore.
type Places struct {
	mu      sync.RWMutex
	records map[string]places.Context
}

// NewPlaces constructs an empty store.
func NewPlaces() *Places {
	return &Places{records: make(map[string]places.Context)}
}

// Put registers or replaces a place record.
func (p *Places) Put(pc places.Context) {
	p.mu.Lock()
	p.records[pc.PlaceID] = pc
	p.mu.Unlock()
}

// Context returns the coordinator attributes of a place.
func (p *Places) Context(_ context.Context, placeID string) (places.Context, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pc, ok := p.records[placeID]
	if !ok {
		return places.Context{}, places.ErrUnknownPlace
	}
	return pc, nil
}
