package postgres

import (
	"context"
	"database/sql"
	"errors"

	"homehub-cloud/internal/places"
)

// PlaceRepository loads place records from Postgres.
type PlaceRepository struct {
	db *sql.DB
}

// NewPlaceRepository constructs a repository.
func NewPlaceRepository(db *sql.DB) *PlaceRepository {
	return &PlaceRepository{db: db}
}

// Context returns the coordinator attributes of a place.
func (r *PlaceRepository) Context(ctx context.Context, placeID string) (places.Context, error) {
	if r == nil || r.db == nil {
		return places.Context{}, errors.New("place repo: nil db")
	}
	if placeID == "" {
		return places.Context{}, errors.New("place repo: empty place id")
	}

	var (
		pc       places.Context
		provider string
	)
	err := r.db.QueryRowContext(ctx, `
SELECT id, account_id, population, monitored, test_mode, alarm_provider
FROM places
WHERE id = $1`, placeID).Scan(
		&pc.PlaceID,
		&pc.AccountID,
		&pc.Population,
		&pc.Monitored,
		&pc.TestMode,
		&provider,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return places.Context{}, places.ErrUnknownPlace
	}
	if err != nil {
		return places.Context{}, err
	}
	pc.AlarmProvider = places.AlarmProvider(provider)
	return pc, nil
}
