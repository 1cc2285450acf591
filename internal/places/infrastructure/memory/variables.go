package memory

import (
	"context"
	"sync"
)

// Variables is an in-memory places.VariableStore for tests and demo places.
type Variables struct {
	mu   sync.RWMutex
	vars map[string]map[string]string
}

// NewVariables constructs an empty store.
func NewVariables() *Variables {
	return &Variables{vars: make(map[string]map[string]string)}
}

// Get returns the variable value, or empty string when unset.
func (v *Variables) Get(_ context.Context, placeID, key string) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.vars[placeID][key], nil
}

// Set upserts the variable; empty value clears it.
func (v *Variables) Set(_ context.Context, placeID, key, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if value == "" {
		delete(v.vars[placeID], key)
		return nil
	}
	if v.vars[placeID] == nil {
		v.vars[placeID] = make(map[string]string)
	}
	v.vars[placeID][key] = value
	return nil
}
