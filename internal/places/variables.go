package places

import "context"

// Variable keys the incident coordinator reads and writes. Hub-reported
// state is mirrored here by the hub report consumer so reads never block on
// the hub connection.
const (
	VarCurrentIncident = "incident.current"
	VarLastTriggerSent = "incident.lastTriggerSent"
	VarHubIncident     = "hub.currentIncident"
	VarHubOnline       = "hub.online"
)

// VariableStore holds small per-place string variables. Empty string means
// unset; Set with an empty value clears the variable.
type VariableStore interface {
	Get(ctx context.Context, placeID, key string) (string, error)
	Set(ctx context.Context, placeID, key, value string) error
}
