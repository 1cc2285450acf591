package auth

import (
	"context"
	"errors"

	"homehub-cloud/internal/places"
)

var (
	// ErrPlaceMismatch indicates the place belongs to a different account.
	ErrPlaceMismatch = errors.New("auth: place mismatch")
	// ErrNotFound indicates the place does not exist.
	ErrNotFound = errors.New("auth: place not found")
)

// PlaceAccessChecker validates place ownership.
type PlaceAccessChecker interface {
	EnsurePlaceAccount(ctx context.Context, accountID, placeID string) error
}

// PlaceChecker checks place ownership against place records.
type PlaceChecker struct {
	store places.ContextStore
}

// NewPlaceChecker constructs a PlaceChecker.
func NewPlaceChecker(store places.ContextStore) *PlaceChecker {
	if store == nil {
		return nil
	}
	return &PlaceChecker{store: store}
}

// EnsurePlaceAccount verifies the place belongs to the account. Admin
// callers pass an empty accountID and skip the check.
func (c *PlaceChecker) EnsurePlaceAccount(ctx context.Context, accountID, placeID string) error {
	if c == nil || c.store == nil {
		return nil
	}
	if accountID == "" || placeID == "" {
		return nil
	}
	pc, err := c.store.Context(ctx, placeID)
	if errors.Is(err, places.ErrUnknownPlace) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if pc.AccountID != accountID {
		return ErrPlaceMismatch
	}
	return nil
}
