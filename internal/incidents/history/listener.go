// Package history receives incident lifecycle callbacks and turns them into
// append-only history entries. The message-key to human-text mapping lives
// with the notification catalog, not here.
package history

import (
	"context"

	"go.uber.org/zap"
)

// Listener is the sink for incident history callbacks. Implementations must
// tolerate being called with partial data; history is best effort.
type Listener interface {
	OnTriggersAdded(ctx context.Context, placeID, population, incidentAddr string, attrs []map[string]any)
	OnCancelled(ctx context.Context, placeID, population, incidentAddr, cancelledBy, method string)
	OnHubConnectivityChanged(ctx context.Context, placeID, population, incidentAddr string, online bool)
}

// LogListener writes history callbacks to the structured log. It stands in
// for the notification catalog during tests and local runs.
type LogListener struct {
	log *zap.Logger
}

// NewLogListener constructs a listener writing to the given logger.
func NewLogListener(log *zap.Logger) *LogListener {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogListener{log: log}
}

// OnTriggersAdded records triggers attached to an incident.
func (l *LogListener) OnTriggersAdded(_ context.Context, placeID, population, incidentAddr string, attrs []map[string]any) {
	if l == nil {
		return
	}
	l.log.Info("incident triggers added",
		zap.String("place_id", placeID),
		zap.String("population", population),
		zap.String("incident", incidentAddr),
		zap.Int("triggers", len(attrs)),
	)
}

// OnCancelled records a cancellation history entry.
func (l *LogListener) OnCancelled(_ context.Context, placeID, population, incidentAddr, cancelledBy, method string) {
	if l == nil {
		return
	}
	l.log.Info("incident cancelled",
		zap.String("place_id", placeID),
		zap.String("population", population),
		zap.String("incident", incidentAddr),
		zap.String("cancelled_by", cancelledBy),
		zap.String("method", method),
	)
}

// OnHubConnectivityChanged records a hub connection change during an
// open incident.
func (l *LogListener) OnHubConnectivityChanged(_ context.Context, placeID, population, incidentAddr string, online bool) {
	if l == nil {
		return
	}
	l.log.Info("hub connectivity changed",
		zap.String("place_id", placeID),
		zap.String("population", population),
		zap.String("incident", incidentAddr),
		zap.Bool("online", online),
	)
}
