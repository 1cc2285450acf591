// Package events defines the incident lifecycle events published on the
// event bus. History sinks, SSE streams and metrics all consume these.
package events

import (
	"time"

	incident "homehub-cloud/internal/incidents/domain"
)

// IncidentAdded is published when an incident row is persisted for the
// first time.
type IncidentAdded struct {
	PlaceID    string            `json:"place_id"`
	Incident   incident.Incident `json:"incident"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// IncidentChanged is published on every subsequent save, carrying only
// the fields that differ from the previous persisted state.
type IncidentChanged struct {
	PlaceID    string            `json:"place_id"`
	IncidentID string            `json:"incident_id"`
	Incident   incident.Incident `json:"incident"`
	Changes    map[string]any    `json:"changes"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// IncidentCompleted is published exactly once per incident, when it
// reaches COMPLETE and the place's current-incident pointer is cleared.
type IncidentCompleted struct {
	PlaceID    string            `json:"place_id"`
	IncidentID string            `json:"incident_id"`
	Incident   incident.Incident `json:"incident"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// MonitoringStationResponse is the asynchronous answer from the
// monitoring station to an add or cancel request, matched back to the
// waiting caller by correlation id.
type MonitoringStationResponse struct {
	PlaceID       string    `json:"place_id"`
	CorrelationID string    `json:"correlation_id"`
	Code          int       `json:"code"`
	Message       string    `json:"message"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// HubIncidentReport is a hub's report of its local incident state,
// mirrored into place variables by the hub report consumer.
type HubIncidentReport struct {
	PlaceID    string    `json:"place_id"`
	IncidentID string    `json:"incident_id"`
	AlertState string    `json:"alert_state"`
	Online     bool      `json:"online"`
	OccurredAt time.Time `json:"occurred_at"`
}
