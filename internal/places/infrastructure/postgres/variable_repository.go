package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// VariableRepository is a Postgres implementation of places.VariableStore.
type VariableRepository struct {
	db *sql.DB
}

// NewVariableRepository constructs a repository.
func NewVariableRepository(db *sql.DB) *VariableRepository {
	return &VariableRepository{db: db}
}

// Get returns the variable value, or empty string when unset.
func (r *VariableRepository) Get(ctx context.Context, placeID, key string) (string, error) {
	if r == nil || r.db == nil {
		return "", errors.New("variable repo: nil db")
	}
	if placeID == "" || key == "" {
		return "", errors.New("variable repo: invalid query")
	}
	var value string
	err := r.db.QueryRowContext(ctx, `
SELECT value
FROM place_variables
WHERE place_id = $1 AND key = $2`, placeID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set upserts the variable. An empty value deletes the row.
func (r *VariableRepository) Set(ctx context.Context, placeID, key, value string) error {
	if r == nil || r.db == nil {
		return errors.New("variable repo: nil db")
	}
	if placeID == "" || key == "" {
		return errors.New("variable repo: invalid key")
	}
	if value == "" {
		_, err := r.db.ExecContext(ctx, `
DELETE FROM place_variables
WHERE place_id = $1 AND key = $2`, placeID, key)
		return err
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO place_variables (place_id, key, value, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (place_id, key)
DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		placeID, key, value, time.Now().UTC())
	return err
}
