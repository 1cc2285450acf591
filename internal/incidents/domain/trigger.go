package incident

import "time"

// Trigger event names recognized by the coordinator. Device drivers classify
// raw sensor events before they reach this layer; verification synthesizes
// its own trigger.
const (
	EventVerifiedAlarm = "VERIFIED_ALARM"
)

// Trigger is one device or actor event that opened or extended an incident.
type Trigger struct {
	At     time.Time `json:"at"`
	Event  string    `json:"event"`
	Device string    `json:"device,omitempty"`
	Actor  string    `json:"actor,omitempty"`
}

// LastTriggerTime returns the time of the newest trigger in the list.
func LastTriggerTime(triggers []Trigger) time.Time {
	var latest time.Time
	for _, t := range triggers {
		if t.At.After(latest) {
			latest = t.At
		}
	}
	return latest
}

// TriggerAttributes flattens triggers into the attribute maps the history
// sink consumes.
func TriggerAttributes(triggers []Trigger) []map[string]any {
	out := make([]map[string]any, 0, len(triggers))
	for _, t := range triggers {
		attrs := map[string]any{
			"time":  t.At.UTC(),
			"event": t.Event,
		}
		if t.Device != "" {
			attrs["device"] = t.Device
		}
		if t.Actor != "" {
			attrs["actor"] = t.Actor
		}
		out = append(out, attrs)
	}
	return out
}
