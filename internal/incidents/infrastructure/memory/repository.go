// Package memory provides an in-memory incident.Store for tests and
// single-node demo deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	incident "homehub-cloud/internal/incidents/domain"
)

// Repository is an in-memory incident.Store.
type Repository struct {
	mu        sync.RWMutex
	incidents map[string]map[string]incident.Incident
}

// NewRepository constructs an empty store.
func NewRepository() *Repository {
	return &Repository{incidents: make(map[string]map[string]incident.Incident)}
}

// FindByID returns one incident or incident.ErrNotFound.
func (r *Repository) FindByID(_ context.Context, placeID, id string) (*incident.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inc, ok := r.incidents[placeID][id]
	if !ok {
		return nil, incident.ErrNotFound
	}
	copy := inc
	return &copy, nil
}

// Current returns the most recent open incident for a place, or nil.
func (r *Repository) Current(_ context.Context, placeID string) (*incident.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *incident.Incident
	for _, inc := range r.incidents[placeID] {
		if !inc.Open() {
			continue
		}
		if latest == nil || inc.StartTime.After(latest.StartTime) {
			copy := inc
			latest = &copy
		}
	}
	return latest, nil
}

// ListByPlace returns the place's incidents, newest first.
func (r *Repository) ListByPlace(_ context.Context, placeID string, limit int) ([]incident.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	result := make([]incident.Incident, 0, len(r.incidents[placeID]))
	for _, inc := range r.incidents[placeID] {
		result = append(result, inc)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.After(result[j].StartTime)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Upsert inserts or replaces the incident record.
func (r *Repository) Upsert(_ context.Context, inc incident.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.incidents[inc.PlaceID] == nil {
		r.incidents[inc.PlaceID] = make(map[string]incident.Incident)
	}
	r.incidents[inc.PlaceID][inc.ID] = inc
	return nil
}
