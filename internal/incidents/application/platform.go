package application

import (
	"context"
	"fmt"

	"homehub-cloud/internal/config"
	"homehub-cloud/internal/incidents/application/events"
	incident "homehub-cloud/internal/incidents/domain"
	"homehub-cloud/internal/incidents/history"
	"homehub-cloud/internal/observability/metrics"
	"homehub-cloud/internal/places"
	"homehub-cloud/internal/station"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Platform coordinates monitored incidents with the monitoring station:
// alarm notifications on trigger and verify, and asynchronous cancel
// requests resolved through the pending-cancel cache.
type Platform struct {
	*Service
	station station.Client
	pending *PendingCancels
	cfg     config.Incidents
}

// NewPlatform constructs the platform incident service. A nil station
// client degrades to log-only notifications, for unmonitored deployments
// and tests.
func NewPlatform(store incident.Store, vars places.VariableStore, hist history.Listener, bus EventPublisher, client station.Client, cfg config.Incidents, log *zap.Logger, opts ...Option) (*Platform, error) {
	base, err := newService(store, vars, hist, bus, log, opts...)
	if err != nil {
		return nil, err
	}
	p := &Platform{
		Service: base,
		station: client,
		cfg:     cfg,
	}
	p.pending = NewPendingCancels(cfg.CancelCacheShards, cfg.CancelTimeout(), base.clock, base.log)
	base.hooks = p
	return p, nil
}

// Pending exposes the cancel cache for the background sweeper.
func (p *Platform) Pending() *PendingCancels {
	if p == nil {
		return nil
	}
	return p.pending
}

// OnStationResponse resolves the pending cancel matching the response's
// correlation id. Unknown or already evicted ids are no-ops.
func (p *Platform) OnStationResponse(_ context.Context, resp events.MonitoringStationResponse) error {
	if p == nil {
		return nil
	}
	var cause error
	if resp.Code >= 400 {
		cause = fmt.Errorf("station: %d %s", resp.Code, resp.Message)
	}
	if !p.pending.Resolve(resp.CorrelationID, cause) {
		p.log.Debug("unmatched station response",
			zap.String("correlation_id", resp.CorrelationID),
			zap.Int("code", resp.Code))
	}
	return nil
}

// doCancel registers a pending entry under a fresh correlation id and
// issues the cancel request. The entry resolves on a correlated response
// or, failing that, when the sweeper expires it.
func (p *Platform) doCancel(ctx context.Context, place places.Context, inc incident.Incident, cancelledBy string, done func(error)) {
	if p.station == nil || !inc.Monitored {
		done(nil)
		return
	}
	correlationID := uuid.NewString()
	p.pending.Add(correlationID, done)

	started := p.clock.Now()
	req := station.CancelAlarmRequest{
		CorrelationID: correlationID,
		PlaceID:       place.PlaceID,
		IncidentID:    inc.ID,
		CancelledBy:   cancelledBy,
		TTLSecs:       p.cfg.CancelTimeoutSecs,
		OccurredAt:    started,
	}
	if err := p.station.CancelAlarm(ctx, req); err != nil {
		metrics.ObserveStationRequest("cancel", metrics.ResultError, p.clock.Now().Sub(started))
		p.pending.Resolve(correlationID, err)
		return
	}
	metrics.ObserveStationRequest("cancel", metrics.ResultSuccess, p.clock.Now().Sub(started))
}

// notifyTriggered issues the user notification and, for monitored
// incidents, an alarm request to the station. Both are best effort.
func (p *Platform) notifyTriggered(ctx context.Context, place places.Context, inc incident.Incident, triggers []incident.Trigger) {
	p.Service.notifyTriggered(ctx, place, inc, triggers)
	if p.station == nil || !inc.Monitored {
		return
	}
	p.sendAddAlarm(ctx, place, inc)
}

// afterVerified escalates a still-PREALERT incident to ALERT, reusing the
// synthesized verification trigger for the notification so the following
// UpdateIncident call cannot notify it a second time.
func (p *Platform) afterVerified(ctx context.Context, place places.Context, prev, cur incident.Incident, actorAddr string) (incident.Incident, error) {
	if prev.AlertState != incident.StatePrealert {
		if cur.Monitored {
			p.sendAddAlarm(ctx, place, cur)
		}
		return cur, nil
	}

	now := p.clock.Now()
	next := incident.From(cur).
		WithAlertState(incident.StateAlert).
		WithPlatformState(incident.StateAlert).
		AddTracker(now, incident.TrackerAlert, "incident.alert", "").
		Build()
	next = recomputeMonitored(place, next)
	if err := p.save(ctx, place, &cur, next); err != nil {
		return cur, err
	}

	verified := []incident.Trigger{{
		At:    now,
		Event: incident.EventVerifiedAlarm,
		Actor: actorAddr,
	}}
	p.history.OnTriggersAdded(ctx, place.PlaceID, place.Population, next.Address(), incident.TriggerAttributes(verified))
	p.notifyTriggered(ctx, place, next, verified)
	p.markTriggerSent(ctx, place, verified)
	return next, nil
}

func (p *Platform) sendAddAlarm(ctx context.Context, place places.Context, inc incident.Incident) {
	alerts := make([]string, 0, len(inc.Alerts()))
	for _, a := range inc.Alerts() {
		alerts = append(alerts, string(a))
	}
	started := p.clock.Now()
	req := station.AddAlarmRequest{
		CorrelationID: uuid.NewString(),
		PlaceID:       place.PlaceID,
		IncidentID:    inc.ID,
		AlertType:     string(inc.Alert),
		Alerts:        alerts,
		Population:    place.Population,
		Verified:      inc.Confirmed,
		TTLSecs:       p.cfg.AlertTimeoutSecs,
		OccurredAt:    started,
	}
	if err := p.station.AddAlarm(ctx, req); err != nil {
		metrics.ObserveStationRequest("add", metrics.ResultError, p.clock.Now().Sub(started))
		p.log.Warn("station alarm request failed",
			zap.String("incident", inc.Address()), zap.Error(err))
		return
	}
	metrics.ObserveStationRequest("add", metrics.ResultSuccess, p.clock.Now().Sub(started))
}
