package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"homehub-cloud/internal/config"
	incident "homehub-cloud/internal/incidents/domain"
	"homehub-cloud/internal/incidents/history"
	"homehub-cloud/internal/places"

	"go.uber.org/zap"
)

// Mock simulates a monitoring station for test and demo places using
// scheduled transitions. Every simulated callback goes through the same
// monitoring-state validation as real updates.
type Mock struct {
	*Service
	cfg    config.Incidents
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewMock constructs the mock incident service.
func NewMock(store incident.Store, vars places.VariableStore, hist history.Listener, bus EventPublisher, cfg config.Incidents, log *zap.Logger, opts ...Option) (*Mock, error) {
	base, err := newService(store, vars, hist, bus, log, opts...)
	if err != nil {
		return nil, err
	}
	m := &Mock{
		Service: base,
		cfg:     cfg,
		timers:  make(map[string]*time.Timer),
	}
	base.hooks = m
	return m, nil
}

// incidentIdentity flags every incident this service opens as simulated.
func (m *Mock) incidentIdentity(context.Context, places.Context) (string, bool, bool, error) {
	return newIncidentID(), false, true, nil
}

// validateCancel rejects cancellation mid-dispatch, mirroring a real
// station that cannot stand down a crew already rolling. Rejection also
// kicks the dispatch-timeout check so a wedged dispatch still fails over.
func (m *Mock) validateCancel(_ context.Context, place places.Context, inc incident.Incident) error {
	if inc.MonitoringState == incident.MonitoringDispatching {
		go m.checkDispatchTimeout(place, inc.ID)
		return fmt.Errorf("%w: monitoring station is dispatching", incident.ErrInvalidState)
	}
	return nil
}

// doCancel succeeds immediately; the simulated station has nothing async
// to wait for once validateCancel has passed.
func (m *Mock) doCancel(_ context.Context, _ places.Context, _ incident.Incident, _ string, done func(error)) {
	done(nil)
}

// AddAlert delegates to the base lifecycle, then starts the monitoring
// simulation for the alarm type: SECURITY waits out the alert timeout in
// PENDING before dispatching, life-safety types dispatch immediately.
func (m *Mock) AddAlert(ctx context.Context, place places.Context, alert incident.AlertType, triggers []incident.Trigger, sendNotifications bool) (string, error) {
	addr, err := m.Service.AddAlert(ctx, place, alert, triggers, sendNotifications)
	if err != nil {
		return addr, err
	}
	_, id, parseErr := incident.ParseAddress(addr)
	if parseErr != nil {
		return addr, nil
	}

	switch alert {
	case incident.AlertSecurity:
		if err := m.OnMonitoringStateChanged(ctx, place, addr, string(incident.MonitoringPending)); err != nil {
			m.log.Warn("mock pending transition failed", zap.String("incident", addr), zap.Error(err))
		}
		m.schedule("escalate|"+id, m.cfg.MockAlertTimeout(), func() {
			m.escalatePending(place, id)
		})
	case incident.AlertSmoke, incident.AlertPanic, incident.AlertCO:
		if err := m.OnMonitoringStateChanged(ctx, place, addr, string(incident.MonitoringDispatching)); err != nil {
			m.log.Warn("mock dispatching transition failed", zap.String("incident", addr), zap.Error(err))
		}
	default:
		return addr, nil
	}

	m.schedule("timeout|"+id, m.cfg.MockDispatchTimeout(), func() {
		m.checkDispatchTimeout(place, id)
	})
	return addr, nil
}

// Contacted simulates the station reaching the resident.
func (m *Mock) Contacted(ctx context.Context, place places.Context, incidentAddr string) error {
	return m.OnMonitoringStateChanged(ctx, place, incidentAddr, string(incident.MonitoringDispatching))
}

// DispatchAccepted simulates a crew being dispatched.
func (m *Mock) DispatchAccepted(ctx context.Context, place places.Context, incidentAddr string) error {
	return m.OnMonitoringStateChanged(ctx, place, incidentAddr, string(incident.MonitoringDispatched))
}

// DispatchRefused simulates the station declining to dispatch.
func (m *Mock) DispatchRefused(ctx context.Context, place places.Context, incidentAddr string) error {
	return m.OnMonitoringStateChanged(ctx, place, incidentAddr, string(incident.MonitoringRefused))
}

// DispatchCancelled simulates a dispatch being called off.
func (m *Mock) DispatchCancelled(ctx context.Context, place places.Context, incidentAddr string) error {
	return m.OnMonitoringStateChanged(ctx, place, incidentAddr, string(incident.MonitoringCancelled))
}

// DispatchFailed simulates a failed dispatch.
func (m *Mock) DispatchFailed(ctx context.Context, place places.Context, incidentAddr string) error {
	return m.OnMonitoringStateChanged(ctx, place, incidentAddr, string(incident.MonitoringFailed))
}

// Close stops all scheduled simulation timers.
func (m *Mock) Close() {
	if m == nil {
		return
	}
	m.mu.Lock()
	timers := m.timers
	m.timers = make(map[string]*time.Timer)
	m.mu.Unlock()
	for _, timer := range timers {
		if timer != nil {
			timer.Stop()
		}
	}
}

// escalatePending re-reads the incident fresh and escalates PENDING to
// DISPATCHING only if nothing else changed it in the meantime.
func (m *Mock) escalatePending(place places.Context, id string) {
	ctx := context.Background()
	m.clearTimer("escalate|" + id)
	fresh, err := m.store.FindByID(ctx, place.PlaceID, id)
	if err != nil || fresh == nil || !fresh.Open() {
		return
	}
	if fresh.MonitoringState != incident.MonitoringPending {
		return
	}
	if err := m.OnMonitoringStateChanged(ctx, place, fresh.Address(), string(incident.MonitoringDispatching)); err != nil {
		m.log.Warn("mock escalation failed", zap.String("incident", fresh.Address()), zap.Error(err))
	}
}

// checkDispatchTimeout re-reads the incident fresh and forces FAILED when
// the dispatch window elapsed without progress. Stale snapshots are never
// acted on.
func (m *Mock) checkDispatchTimeout(place places.Context, id string) {
	ctx := context.Background()
	m.clearTimer("timeout|" + id)
	fresh, err := m.store.FindByID(ctx, place.PlaceID, id)
	if err != nil || fresh == nil || !fresh.Open() {
		return
	}
	if fresh.MonitoringState != incident.MonitoringPending && fresh.MonitoringState != incident.MonitoringDispatching {
		return
	}
	deadline := fresh.LastTrackerTime().Add(m.cfg.MockDispatchTimeout())
	if m.clock.Now().Before(deadline) {
		return
	}
	if err := m.OnMonitoringStateChanged(ctx, place, fresh.Address(), string(incident.MonitoringFailed)); err != nil {
		m.log.Warn("mock dispatch timeout failed", zap.String("incident", fresh.Address()), zap.Error(err))
	}
}

func (m *Mock) schedule(key string, after time.Duration, fn func()) {
	if after <= 0 {
		fn()
		return
	}
	m.mu.Lock()
	if existing, ok := m.timers[key]; ok && existing != nil {
		existing.Stop()
	}
	m.timers[key] = time.AfterFunc(after, fn)
	m.mu.Unlock()
}

func (m *Mock) clearTimer(key string) {
	m.mu.Lock()
	timer := m.timers[key]
	delete(m.timers, key)
	m.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}
