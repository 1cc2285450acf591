package incident

import "time"

// AlertType classifies the alarm category an incident covers.
type AlertType string

const (
	AlertSecurity AlertType = "SECURITY"
	AlertPanic    AlertType = "PANIC"
	AlertSmoke    AlertType = "SMOKE"
	AlertCO       AlertType = "CO"
	AlertWater    AlertType = "WATER"
	AlertWeather  AlertType = "WEATHER"
	AlertCare     AlertType = "CARE"
)

// ValidAlertType reports whether value names a known alert type.
func ValidAlertType(value string) (AlertType, bool) {
	switch AlertType(value) {
	case AlertSecurity, AlertPanic, AlertSmoke, AlertCO, AlertWater, AlertWeather, AlertCare:
		return AlertType(value), true
	default:
		return "", false
	}
}

// Monitorable reports whether a professional monitoring station will act on
// this alert type. Water, weather and care alerts are never monitored.
func (t AlertType) Monitorable() bool {
	switch t {
	case AlertWater, AlertWeather, AlertCare:
		return false
	default:
		return true
	}
}

// AlertState is a lifecycle phase of an incident. The overall alertState and
// the per-tier platform/hub sub-states all use this enum.
type AlertState string

const (
	StatePrealert   AlertState = "PREALERT"
	StateAlert      AlertState = "ALERT"
	StateCancelling AlertState = "CANCELLING"
	StateComplete   AlertState = "COMPLETE"
)

var alertStateRank = map[AlertState]int{
	StatePrealert:   1,
	StateAlert:      2,
	StateCancelling: 3,
	StateComplete:   4,
}

// Rank orders lifecycle states for monotonic-advance checks. Unknown states
// rank zero.
func (s AlertState) Rank() int {
	return alertStateRank[s]
}

// Terminal reports whether the state is COMPLETE.
func (s AlertState) Terminal() bool {
	return s == StateComplete
}

// MonitoringState is the status of monitoring-station dispatch.
type MonitoringState string

const (
	MonitoringNone        MonitoringState = "NONE"
	MonitoringPending     MonitoringState = "PENDING"
	MonitoringDispatching MonitoringState = "DISPATCHING"
	MonitoringDispatched  MonitoringState = "DISPATCHED"
	MonitoringRefused     MonitoringState = "REFUSED"
	MonitoringFailed      MonitoringState = "FAILED"
	MonitoringCancelled   MonitoringState = "CANCELLED"
)

// ValidMonitoringState reports whether value names a known monitoring state.
func ValidMonitoringState(value string) (MonitoringState, bool) {
	switch MonitoringState(value) {
	case MonitoringNone, MonitoringPending, MonitoringDispatching, MonitoringDispatched,
		MonitoringRefused, MonitoringFailed, MonitoringCancelled:
		return MonitoringState(value), true
	default:
		return "", false
	}
}

// TrackerState labels entries in the incident's audit trail.
type TrackerState string

const (
	TrackerPrealert          TrackerState = "PREALERT"
	TrackerAlert             TrackerState = "ALERT"
	TrackerCancelled         TrackerState = "CANCELLED"
	TrackerDispatching       TrackerState = "DISPATCHING"
	TrackerDispatched        TrackerState = "DISPATCHED"
	TrackerDispatchRefused   TrackerState = "DISPATCH_REFUSED"
	TrackerDispatchCancelled TrackerState = "DISPATCH_CANCELLED"
	TrackerDispatchFailed    TrackerState = "DISPATCH_FAILED"
)

// TrackerStateFor maps a monitoring state to the tracker entry it produces.
// PENDING and NONE produce no entry.
func TrackerStateFor(state MonitoringState) (TrackerState, bool) {
	switch state {
	case MonitoringDispatching:
		return TrackerDispatching, true
	case MonitoringDispatched:
		return TrackerDispatched, true
	case MonitoringRefused:
		return TrackerDispatchRefused, true
	case MonitoringCancelled:
		return TrackerDispatchCancelled, true
	case MonitoringFailed:
		return TrackerDispatchFailed, true
	default:
		return "", false
	}
}

// TrackerEvent is one append-only audit entry recorded on a state transition.
type TrackerEvent struct {
	Time    time.Time    `json:"time"`
	State   TrackerState `json:"state"`
	Key     string       `json:"key"`
	Message string       `json:"message,omitempty"`
}
