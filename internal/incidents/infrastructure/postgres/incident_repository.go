package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	incident "homehub-cloud/internal/incidents/domain"
)

const defaultIncidentTable = "alarm_incidents"

// IncidentRepository is a Postgres implementation of incident.Store.
type IncidentRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*IncidentRepository)

// WithIncidentTable overrides the table name.
func WithIncidentTable(table string) RepositoryOption {
	return func(r *IncidentRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewIncidentRepository constructs a repository.
func NewIncidentRepository(db *sql.DB, opts ...RepositoryOption) *IncidentRepository {
	r := &IncidentRepository{db: db, table: defaultIncidentTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

const incidentColumns = `
	id,
	place_id,
	alert,
	additional_alerts,
	alert_state,
	platform_alert_state,
	hub_alert_state,
	monitoring_state,
	tracker_events,
	confirmed,
	monitored,
	hub_alarm,
	mock_incident,
	cancelled_by,
	start_time,
	end_time,
	prealert_end_time`

// FindByID returns one incident or incident.ErrNotFound.
func (r *IncidentRepository) FindByID(ctx context.Context, placeID, id string) (*incident.Incident, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("incident repo: nil db")
	}
	if placeID == "" || id == "" {
		return nil, incident.ErrNotFound
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE place_id = $1 AND id = $2`, incidentColumns, r.table)
	row := r.db.QueryRowContext(ctx, query, placeID, id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, incident.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// Current returns the most recent open incident for a place, or nil.
func (r *IncidentRepository) Current(ctx context.Context, placeID string) (*incident.Incident, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("incident repo: nil db")
	}
	if placeID == "" {
		return nil, nil
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE place_id = $1 AND alert_state <> $2
ORDER BY start_time DESC
LIMIT 1`, incidentColumns, r.table)
	row := r.db.QueryRowContext(ctx, query, placeID, string(incident.StateComplete))
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// ListByPlace returns the place's incidents, newest first.
func (r *IncidentRepository) ListByPlace(ctx context.Context, placeID string, limit int) ([]incident.Incident, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("incident repo: nil db")
	}
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE place_id = $1
ORDER BY start_time DESC
LIMIT $2`, incidentColumns, r.table)
	rows, err := r.db.QueryContext(ctx, query, placeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []incident.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *inc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Upsert inserts or replaces the incident record.
func (r *IncidentRepository) Upsert(ctx context.Context, inc incident.Incident) error {
	if r == nil || r.db == nil {
		return errors.New("incident repo: nil db")
	}
	if inc.ID == "" || inc.PlaceID == "" {
		return errors.New("incident repo: missing key")
	}
	additional, err := json.Marshal(inc.AdditionalAlerts)
	if err != nil {
		return err
	}
	trackers, err := json.Marshal(inc.TrackerEvents)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	place_id,
	alert,
	additional_alerts,
	alert_state,
	platform_alert_state,
	hub_alert_state,
	monitoring_state,
	tracker_events,
	confirmed,
	monitored,
	hub_alarm,
	mock_incident,
	cancelled_by,
	start_time,
	end_time,
	prealert_end_time
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
)
ON CONFLICT (place_id, id)
DO UPDATE SET
	alert = EXCLUDED.alert,
	additional_alerts = EXCLUDED.additional_alerts,
	alert_state = EXCLUDED.alert_state,
	platform_alert_state = EXCLUDED.platform_alert_state,
	hub_alert_state = EXCLUDED.hub_alert_state,
	monitoring_state = EXCLUDED.monitoring_state,
	tracker_events = EXCLUDED.tracker_events,
	confirmed = EXCLUDED.confirmed,
	monitored = EXCLUDED.monitored,
	hub_alarm = EXCLUDED.hub_alarm,
	mock_incident = EXCLUDED.mock_incident,
	cancelled_by = EXCLUDED.cancelled_by,
	start_time = EXCLUDED.start_time,
	end_time = EXCLUDED.end_time,
	prealert_end_time = EXCLUDED.prealert_end_time`, r.table)

	_, err = r.db.ExecContext(ctx, query,
		inc.ID,
		inc.PlaceID,
		string(inc.Alert),
		additional,
		string(inc.AlertState),
		nullString(string(inc.PlatformState)),
		nullString(string(inc.HubState)),
		string(inc.MonitoringState),
		trackers,
		inc.Confirmed,
		inc.Monitored,
		inc.HubAlarm,
		inc.MockIncident,
		nullString(inc.CancelledBy),
		inc.StartTime.UTC(),
		nullTime(inc.EndTime),
		nullTime(inc.PrealertEndTime),
	)
	return err
}

type incidentScanner interface {
	Scan(dest ...any) error
}

func scanIncident(scanner incidentScanner) (*incident.Incident, error) {
	var (
		inc             incident.Incident
		alert           string
		additional      []byte
		alertState      string
		platformState   sql.NullString
		hubState        sql.NullString
		monitoringState string
		trackers        []byte
		cancelledBy     sql.NullString
		endTime         sql.NullTime
		prealertEnd     sql.NullTime
	)
	err := scanner.Scan(
		&inc.ID,
		&inc.PlaceID,
		&alert,
		&additional,
		&alertState,
		&platformState,
		&hubState,
		&monitoringState,
		&trackers,
		&inc.Confirmed,
		&inc.Monitored,
		&inc.HubAlarm,
		&inc.MockIncident,
		&cancelledBy,
		&inc.StartTime,
		&endTime,
		&prealertEnd,
	)
	if err != nil {
		return nil, err
	}
	inc.Alert = incident.AlertType(alert)
	inc.AlertState = incident.AlertState(alertState)
	inc.PlatformState = incident.AlertState(platformState.String)
	inc.HubState = incident.AlertState(hubState.String)
	inc.MonitoringState = incident.MonitoringState(monitoringState)
	inc.CancelledBy = cancelledBy.String
	if endTime.Valid {
		inc.EndTime = endTime.Time
	}
	if prealertEnd.Valid {
		inc.PrealertEndTime = prealertEnd.Time
	}
	if len(additional) > 0 {
		if err := json.Unmarshal(additional, &inc.AdditionalAlerts); err != nil {
			return nil, err
		}
	}
	if len(trackers) > 0 {
		if err := json.Unmarshal(trackers, &inc.TrackerEvents); err != nil {
			return nil, err
		}
	}
	return &inc, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullTime(value time.Time) sql.NullTime {
	return sql.NullTime{Time: value.UTC(), Valid: !value.IsZero()}
}
