package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"homehub-cloud/internal/eventing"
)

// DLQStore records events that could not be delivered.
type DLQStore struct {
	db *sql.DB
}

// NewDLQStore constructs a dead-letter store.
func NewDLQStore(db *sql.DB) *DLQStore {
	return &DLQStore{db: db}
}

// RecordFailure upserts a dead-letter record, incrementing attempts on
// repeated failures of the same event.
func (s *DLQStore) RecordFailure(ctx context.Context, env eventing.Envelope, cause error) error {
	if s == nil || s.db == nil {
		return errors.New("dlq store: nil db")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO dead_letter_events (event_id, event_type, payload, reason, attempts, last_failed_at)
VALUES ($1, $2, $3, $4, 1, $5)
ON CONFLICT (event_id)
DO UPDATE SET
	attempts = dead_letter_events.attempts + 1,
	reason = EXCLUDED.reason,
	last_failed_at = EXCLUDED.last_failed_at`,
		env.EventID, env.EventType, payload, reason, time.Now().UTC())
	return err
}
