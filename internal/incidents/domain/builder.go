package incident

import "time"

// Builder constructs incident values copy-on-write. Zero side effects; every
// With/Add call mutates only the builder's private copy and Build hands out
// an independent value.
type Builder struct {
	inc Incident
}

// NewBuilder starts a builder for a fresh incident at a place.
func NewBuilder(placeID string) *Builder {
	return &Builder{inc: Incident{
		PlaceID:         placeID,
		MonitoringState: MonitoringNone,
	}}
}

// From starts a builder seeded with an existing incident. Slices are deep
// copied so the source value stays untouched.
func From(inc Incident) *Builder {
	inc.AdditionalAlerts = append([]AlertType(nil), inc.AdditionalAlerts...)
	inc.TrackerEvents = append([]TrackerEvent(nil), inc.TrackerEvents...)
	return &Builder{inc: inc}
}

// WithID sets the incident id.
func (b *Builder) WithID(id string) *Builder {
	b.inc.ID = id
	return b
}

// WithAlert sets the primary alert type.
func (b *Builder) WithAlert(t AlertType) *Builder {
	b.inc.Alert = t
	return b
}

// AddAlert folds an alert type into the incident: the first becomes the
// primary alert, later distinct types go into the additional set.
func (b *Builder) AddAlert(t AlertType) *Builder {
	if b.inc.HasAlert(t) {
		return b
	}
	if b.inc.Alert == "" {
		b.inc.Alert = t
		return b
	}
	b.inc.AdditionalAlerts = append(b.inc.AdditionalAlerts, t)
	return b
}

// WithAlertState advances the overall lifecycle state. Regressions are
// ignored: alertState only ever moves PREALERT -> ALERT -> CANCELLING ->
// COMPLETE.
func (b *Builder) WithAlertState(s AlertState) *Builder {
	if s.Rank() > b.inc.AlertState.Rank() {
		b.inc.AlertState = s
	}
	return b
}

// WithPlatformState sets the platform-tracked sub-state.
func (b *Builder) WithPlatformState(s AlertState) *Builder {
	b.inc.PlatformState = s
	return b
}

// WithHubState sets the hub-tracked sub-state.
func (b *Builder) WithHubState(s AlertState) *Builder {
	b.inc.HubState = s
	return b
}

// WithMonitoringState sets the monitoring-station dispatch status.
func (b *Builder) WithMonitoringState(s MonitoringState) *Builder {
	b.inc.MonitoringState = s
	return b
}

// AddTracker appends an audit entry. ALERT entries are deduplicated: an
// incident already carrying an ALERT tracker entry never gets a second one.
func (b *Builder) AddTracker(at time.Time, state TrackerState, key, message string) *Builder {
	if state == TrackerAlert && b.inc.HasTracker(TrackerAlert) {
		return b
	}
	b.inc.TrackerEvents = append(b.inc.TrackerEvents, TrackerEvent{
		Time:    at.UTC(),
		State:   state,
		Key:     key,
		Message: message,
	})
	return b
}

// WithConfirmed marks the incident verified by a person or rule.
func (b *Builder) WithConfirmed(confirmed bool) *Builder {
	b.inc.Confirmed = confirmed
	return b
}

// WithMonitored records whether a monitoring station tracks this incident.
func (b *Builder) WithMonitored(monitored bool) *Builder {
	b.inc.Monitored = monitored
	return b
}

// WithHubAlarm flags the hub as authoritative for this incident.
func (b *Builder) WithHubAlarm(hub bool) *Builder {
	b.inc.HubAlarm = hub
	return b
}

// WithMockIncident flags the incident as simulated.
func (b *Builder) WithMockIncident(mock bool) *Builder {
	b.inc.MockIncident = mock
	return b
}

// WithCancelledBy records who initiated cancellation.
func (b *Builder) WithCancelledBy(actor string) *Builder {
	b.inc.CancelledBy = actor
	return b
}

// WithStartTime sets the incident start.
func (b *Builder) WithStartTime(t time.Time) *Builder {
	b.inc.StartTime = t.UTC()
	return b
}

// WithEndTime sets the incident end.
func (b *Builder) WithEndTime(t time.Time) *Builder {
	b.inc.EndTime = t.UTC()
	return b
}

// WithPrealertEndTime sets when the prealert grace window closes.
func (b *Builder) WithPrealertEndTime(t time.Time) *Builder {
	b.inc.PrealertEndTime = t.UTC()
	return b
}

// Build returns the assembled incident value.
func (b *Builder) Build() Incident {
	inc := b.inc
	inc.AdditionalAlerts = append([]AlertType(nil), inc.AdditionalAlerts...)
	inc.TrackerEvents = append([]TrackerEvent(nil), inc.TrackerEvents...)
	return inc
}

// Diff returns the JSON field names that changed between two incident
// snapshots, mapped to their new values. Change events carry exactly this
// map, never a full snapshot.
func Diff(prev, next Incident) map[string]any {
	changes := make(map[string]any)
	if prev.Alert != next.Alert {
		changes["alert"] = next.Alert
	}
	if !alertSetEqual(prev.AdditionalAlerts, next.AdditionalAlerts) {
		changes["additional_alerts"] = next.AdditionalAlerts
	}
	if prev.AlertState != next.AlertState {
		changes["alert_state"] = next.AlertState
	}
	if prev.PlatformState != next.PlatformState {
		changes["platform_alert_state"] = next.PlatformState
	}
	if prev.HubState != next.HubState {
		changes["hub_alert_state"] = next.HubState
	}
	if prev.MonitoringState != next.MonitoringState {
		changes["monitoring_state"] = next.MonitoringState
	}
	if len(prev.TrackerEvents) != len(next.TrackerEvents) {
		changes["tracker_events"] = next.TrackerEvents
	}
	if prev.Confirmed != next.Confirmed {
		changes["confirmed"] = next.Confirmed
	}
	if prev.Monitored != next.Monitored {
		changes["monitored"] = next.Monitored
	}
	if prev.HubAlarm != next.HubAlarm {
		changes["hub_alarm"] = next.HubAlarm
	}
	if prev.MockIncident != next.MockIncident {
		changes["mock_incident"] = next.MockIncident
	}
	if prev.CancelledBy != next.CancelledBy {
		changes["cancelled_by"] = next.CancelledBy
	}
	if !prev.StartTime.Equal(next.StartTime) {
		changes["start_time"] = next.StartTime
	}
	if !prev.EndTime.Equal(next.EndTime) {
		changes["end_time"] = next.EndTime
	}
	if !prev.PrealertEndTime.Equal(next.PrealertEndTime) {
		changes["prealert_end_time"] = next.PrealertEndTime
	}
	return changes
}

func alertSetEqual(a, b []AlertType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
