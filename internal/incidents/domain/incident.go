package incident

import (
	"fmt"
	"strings"
	"time"
)

// Incident is one continuous alarm episode at a place. Values are immutable;
// every mutation goes through a Builder which copies and overrides.
type Incident struct {
	ID               string          `json:"id"`
	PlaceID          string          `json:"place_id"`
	Alert            AlertType       `json:"alert"`
	AdditionalAlerts []AlertType     `json:"additional_alerts,omitempty"`
	AlertState       AlertState      `json:"alert_state"`
	PlatformState    AlertState      `json:"platform_alert_state,omitempty"`
	HubState         AlertState      `json:"hub_alert_state,omitempty"`
	MonitoringState  MonitoringState `json:"monitoring_state"`
	TrackerEvents    []TrackerEvent  `json:"tracker_events,omitempty"`
	Confirmed        bool            `json:"confirmed"`
	Monitored        bool            `json:"monitored"`
	HubAlarm         bool            `json:"hub_alarm"`
	MockIncident     bool            `json:"mock_incident"`
	CancelledBy      string          `json:"cancelled_by,omitempty"`
	StartTime        time.Time       `json:"start_time"`
	EndTime          time.Time       `json:"end_time,omitempty"`
	PrealertEndTime  time.Time       `json:"prealert_end_time,omitempty"`
}

// AddressFor derives the incident address from place id and incident id.
func AddressFor(placeID, id string) string {
	return "places/" + placeID + "/incidents/" + id
}

// ParseAddress splits an incident address into place id and incident id.
func ParseAddress(addr string) (placeID, id string, err error) {
	parts := strings.Split(addr, "/")
	if len(parts) != 4 || parts[0] != "places" || parts[2] != "incidents" || parts[1] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("incident: bad address %q", addr)
	}
	return parts[1], parts[3], nil
}

// Address returns the incident's bus address.
func (i Incident) Address() string {
	return AddressFor(i.PlaceID, i.ID)
}

// Alerts returns the primary alert followed by any additional alerts.
func (i Incident) Alerts() []AlertType {
	if i.Alert == "" {
		return append([]AlertType(nil), i.AdditionalAlerts...)
	}
	out := make([]AlertType, 0, 1+len(i.AdditionalAlerts))
	out = append(out, i.Alert)
	out = append(out, i.AdditionalAlerts...)
	return out
}

// HasAlert reports whether the incident already covers the alert type.
func (i Incident) HasAlert(t AlertType) bool {
	if i.Alert == t {
		return true
	}
	for _, a := range i.AdditionalAlerts {
		if a == t {
			return true
		}
	}
	return false
}

// AnyMonitorable reports whether at least one alert type in the incident can
// be professionally monitored.
func (i Incident) AnyMonitorable() bool {
	for _, a := range i.Alerts() {
		if a.Monitorable() {
			return true
		}
	}
	return false
}

// HasTracker reports whether a tracker entry with the given state exists.
func (i Incident) HasTracker(state TrackerState) bool {
	for _, e := range i.TrackerEvents {
		if e.State == state {
			return true
		}
	}
	return false
}

// LastTrackerTime returns the time of the newest tracker entry, or the
// incident start time when the trail is empty.
func (i Incident) LastTrackerTime() time.Time {
	if len(i.TrackerEvents) == 0 {
		return i.StartTime
	}
	return i.TrackerEvents[len(i.TrackerEvents)-1].Time
}

// Open reports whether the incident has not reached COMPLETE.
func (i Incident) Open() bool {
	return !i.AlertState.Terminal()
}
