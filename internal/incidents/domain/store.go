package incident

import "context"

// Store is durable, per-place keyed storage for incident records. Completed
// incidents are retained for listing; Current only sees open ones.
type Store interface {
	FindByID(ctx context.Context, placeID, id string) (*Incident, error)
	// Current returns the most recent non-COMPLETE incident for a place, or
	// nil when the place has none.
	Current(ctx context.Context, placeID string) (*Incident, error)
	ListByPlace(ctx context.Context, placeID string, limit int) ([]Incident, error)
	Upsert(ctx context.Context, inc Incident) error
}
