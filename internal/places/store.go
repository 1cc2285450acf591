package places

import (
	"context"
	"errors"
)

// ErrUnknownPlace is returned when no place record exists for an id.
var ErrUnknownPlace = errors.New("places: unknown place")

// ContextStore loads per-place coordinator attributes.
type ContextStore interface {
	Context(ctx context.Context, placeID string) (Context, error)
}
