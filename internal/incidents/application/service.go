// Package application implements the incident lifecycle coordinator: the
// shared base service, the platform/hub/mock variants and the dispatcher
// that routes between them.
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"homehub-cloud/internal/eventing"
	"homehub-cloud/internal/incidents/application/events"
	incident "homehub-cloud/internal/incidents/domain"
	"homehub-cloud/internal/incidents/history"
	"homehub-cloud/internal/observability/metrics"
	"homehub-cloud/internal/places"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher broadcasts incident change events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// IncidentService is the uniform mutating surface the dispatcher routes to.
// All operations run on the owning place's serialized execution domain.
type IncidentService interface {
	AddPreAlert(ctx context.Context, place places.Context, alert incident.AlertType, prealertEnd time.Time, triggers []incident.Trigger) (string, error)
	AddAlert(ctx context.Context, place places.Context, alert incident.AlertType, triggers []incident.Trigger, sendNotifications bool) (string, error)
	UpdateIncident(ctx context.Context, place places.Context, triggers []incident.Trigger, sendNotifications bool) error
	UpdateIncidentHistory(ctx context.Context, place places.Context, triggers []incident.Trigger) error
	OnHubConnectivityChanged(ctx context.Context, place places.Context, online bool) error
	Verify(ctx context.Context, place places.Context, incidentAddr, actorAddr string) (*time.Time, error)
	Cancel(ctx context.Context, place places.Context, cancelledBy, method string) (*incident.Incident, error)
	CancelAddress(ctx context.Context, place places.Context, incidentAddr, cancelledBy, method string) (*incident.Incident, error)
	OnMonitoringStateChanged(ctx context.Context, place places.Context, incidentAddr, value string) error
	OnHubStateReported(ctx context.Context, place places.Context, incidentAddr, value string) error
}

// serviceHooks are the variant points of the lifecycle. The base Service
// carries default implementations; Platform, Hub and Mock override the
// subset they specialize and pass themselves back in as the hook set.
type serviceHooks interface {
	currentAddress(ctx context.Context, place places.Context) (string, error)
	incidentIdentity(ctx context.Context, place places.Context) (id string, hubAlarm, mock bool, err error)
	validateCancel(ctx context.Context, place places.Context, inc incident.Incident) error
	doCancel(ctx context.Context, place places.Context, inc incident.Incident, cancelledBy string, done func(error))
	notifyTriggered(ctx context.Context, place places.Context, inc incident.Incident, triggers []incident.Trigger)
	afterVerified(ctx context.Context, place places.Context, prev, cur incident.Incident, actorAddr string) (incident.Incident, error)
}

// Service is the shared incident lifecycle logic. It owns persistence,
// change-event emission and the cancellation state machine; the variant
// points go through hooks.
type Service struct {
	store   incident.Store
	vars    places.VariableStore
	history history.Listener
	bus     EventPublisher
	clock   Clock
	log     *zap.Logger
	hooks   serviceHooks
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func newService(store incident.Store, vars places.VariableStore, hist history.Listener, bus EventPublisher, log *zap.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("incident service: nil store")
	}
	if vars == nil {
		return nil, errors.New("incident service: nil variable store")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if hist == nil {
		hist = history.NewLogListener(log)
	}
	s := &Service{
		store:   store,
		vars:    vars,
		history: hist,
		bus:     bus,
		clock:   systemClock{},
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hooks = s
	return s, nil
}

// GetCurrentIncident returns the place's open incident, or nil when there
// is none.
func (s *Service) GetCurrentIncident(ctx context.Context, place places.Context) (*incident.Incident, error) {
	if s == nil {
		return nil, errors.New("incident service: nil service")
	}
	return s.current(ctx, place)
}

// GetIncident looks up one incident by address.
func (s *Service) GetIncident(ctx context.Context, place places.Context, addr string) (*incident.Incident, error) {
	if s == nil {
		return nil, errors.New("incident service: nil service")
	}
	placeID, id, err := incident.ParseAddress(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", incident.ErrNotFound, err)
	}
	if placeID != place.PlaceID {
		return nil, incident.ErrNotFound
	}
	return s.store.FindByID(ctx, placeID, id)
}

// ListIncidents returns the place's incident history, newest first.
func (s *Service) ListIncidents(ctx context.Context, place places.Context, limit int) ([]incident.Incident, error) {
	if s == nil {
		return nil, errors.New("incident service: nil service")
	}
	return s.store.ListByPlace(ctx, place.PlaceID, limit)
}

// AddPreAlert opens a PREALERT incident, or joins the existing open one
// unchanged. Returns the incident address either way.
func (s *Service) AddPreAlert(ctx context.Context, place places.Context, alert incident.AlertType, prealertEnd time.Time, triggers []incident.Trigger) (string, error) {
	if s == nil {
		return "", errors.New("incident service: nil service")
	}
	if _, ok := incident.ValidAlertType(string(alert)); !ok {
		return "", fmt.Errorf("%w: alert type %q", incident.ErrInvalidParam, alert)
	}

	cur, err := s.current(ctx, place)
	if err != nil {
		return "", err
	}
	if cur != nil && cur.Open() {
		return cur.Address(), nil
	}

	id, hubAlarm, mock, err := s.hooks.incidentIdentity(ctx, place)
	if err != nil {
		return "", err
	}
	now := s.clock.Now()
	b := incident.NewBuilder(place.PlaceID).
		WithID(id).
		AddAlert(alert).
		WithAlertState(incident.StatePrealert).
		WithPlatformState(incident.StatePrealert).
		WithStartTime(now).
		WithPrealertEndTime(prealertEnd).
		WithHubAlarm(hubAlarm).
		WithMockIncident(mock).
		WithMonitored(place.Monitored && alert.Monitorable()).
		AddTracker(now, incident.TrackerPrealert, "incident.prealert", "")
	if hubAlarm {
		b.WithHubState(incident.StatePrealert)
	}
	next := b.Build()

	if err := s.save(ctx, place, nil, next); err != nil {
		return "", err
	}
	if err := s.vars.Set(ctx, place.PlaceID, places.VarCurrentIncident, next.Address()); err != nil {
		return "", err
	}
	s.history.OnTriggersAdded(ctx, place.PlaceID, place.Population, next.Address(), incident.TriggerAttributes(triggers))
	metrics.IncIncidentTrigger(string(alert), tierFor(next))
	return next.Address(), nil
}

// AddAlert opens an ALERT incident or escalates the current one, folds the
// alert type into its set and records at most one ALERT tracker entry.
func (s *Service) AddAlert(ctx context.Context, place places.Context, alert incident.AlertType, triggers []incident.Trigger, sendNotifications bool) (string, error) {
	if s == nil {
		return "", errors.New("incident service: nil service")
	}
	if _, ok := incident.ValidAlertType(string(alert)); !ok {
		return "", fmt.Errorf("%w: alert type %q", incident.ErrInvalidParam, alert)
	}

	cur, err := s.current(ctx, place)
	if err != nil {
		return "", err
	}
	now := s.clock.Now()

	var next incident.Incident
	if cur == nil || !cur.Open() {
		id, hubAlarm, mock, err := s.hooks.incidentIdentity(ctx, place)
		if err != nil {
			return "", err
		}
		b := incident.NewBuilder(place.PlaceID).
			WithID(id).
			AddAlert(alert).
			WithAlertState(incident.StateAlert).
			WithPlatformState(incident.StateAlert).
			WithStartTime(now).
			WithHubAlarm(hubAlarm).
			WithMockIncident(mock).
			AddTracker(now, incident.TrackerAlert, "incident.alert", "")
		if hubAlarm {
			b.WithHubState(incident.StateAlert)
		}
		next = b.Build()
		next = recomputeMonitored(place, next)
		if err := s.save(ctx, place, nil, next); err != nil {
			return "", err
		}
		if err := s.vars.Set(ctx, place.PlaceID, places.VarCurrentIncident, next.Address()); err != nil {
			return "", err
		}
		cur = nil
	} else {
		if cur.AlertState.Rank() > incident.StateAlert.Rank() {
			return "", fmt.Errorf("%w: incident is %s", incident.ErrInvalidState, cur.AlertState)
		}
		b := incident.From(*cur).
			AddAlert(alert).
			WithAlertState(incident.StateAlert).
			AddTracker(now, incident.TrackerAlert, "incident.alert", "")
		if cur.PlatformState.Rank() < incident.StateAlert.Rank() {
			b.WithPlatformState(incident.StateAlert)
		}
		next = recomputeMonitored(place, b.Build())
		if err := s.save(ctx, place, cur, next); err != nil {
			return "", err
		}
	}

	s.history.OnTriggersAdded(ctx, place.PlaceID, place.Population, next.Address(), incident.TriggerAttributes(triggers))
	if sendNotifications {
		s.hooks.notifyTriggered(ctx, place, next, triggers)
		s.markTriggerSent(ctx, place, triggers)
	}
	metrics.IncIncidentTrigger(string(alert), tierFor(next))
	return next.Address(), nil
}

// UpdateIncident attaches more triggers to the current incident without
// changing its lifecycle state. A trigger whose notification was already
// sent by the immediately preceding AddAlert is not re-notified.
func (s *Service) UpdateIncident(ctx context.Context, place places.Context, triggers []incident.Trigger, sendNotifications bool) error {
	if s == nil {
		return errors.New("incident service: nil service")
	}
	cur, err := s.current(ctx, place)
	if err != nil {
		return err
	}
	if cur == nil || !cur.Open() {
		return incident.ErrNotFound
	}
	s.history.OnTriggersAdded(ctx, place.PlaceID, place.Population, cur.Address(), incident.TriggerAttributes(triggers))
	if sendNotifications && !s.triggerAlreadySent(ctx, place, triggers) {
		s.hooks.notifyTriggered(ctx, place, *cur, triggers)
		s.markTriggerSent(ctx, place, triggers)
	}
	return nil
}

// UpdateIncidentHistory attaches triggers to history only. No state change,
// no notification.
func (s *Service) UpdateIncidentHistory(ctx context.Context, place places.Context, triggers []incident.Trigger) error {
	if s == nil {
		return errors.New("incident service: nil service")
	}
	cur, err := s.current(ctx, place)
	if err != nil {
		return err
	}
	if cur == nil || !cur.Open() {
		return incident.ErrNotFound
	}
	s.history.OnTriggersAdded(ctx, place.PlaceID, place.Population, cur.Address(), incident.TriggerAttributes(triggers))
	return nil
}

// OnHubConnectivityChanged records a hub connection change. A history entry
// is forwarded only while an incident is open.
func (s *Service) OnHubConnectivityChanged(ctx context.Context, place places.Context, online bool) error {
	if s == nil {
		return errors.New("incident service: nil service")
	}
	value := ""
	if online {
		value = "true"
	}
	if err := s.vars.Set(ctx, place.PlaceID, places.VarHubOnline, value); err != nil {
		return err
	}
	cur, err := s.current(ctx, place)
	if err != nil {
		return err
	}
	if cur != nil && cur.Open() {
		s.history.OnHubConnectivityChanged(ctx, place.PlaceID, place.Population, cur.Address(), online)
	}
	return nil
}

// Verify marks the incident confirmed exactly once. A second call returns
// no new verification time.
func (s *Service) Verify(ctx context.Context, place places.Context, incidentAddr, actorAddr string) (*time.Time, error) {
	if s == nil {
		return nil, errors.New("incident service: nil service")
	}
	cur, err := s.resolve(ctx, place, incidentAddr)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, incident.ErrNotFound
	}
	if !cur.Open() {
		return nil, fmt.Errorf("%w: incident is %s", incident.ErrInvalidState, cur.AlertState)
	}
	if cur.Confirmed {
		return nil, nil
	}

	next := incident.From(*cur).WithConfirmed(true).Build()
	if err := s.save(ctx, place, cur, next); err != nil {
		return nil, err
	}
	if _, err := s.hooks.afterVerified(ctx, place, *cur, next, actorAddr); err != nil {
		s.log.Warn("post-verify escalation failed",
			zap.String("incident", next.Address()), zap.Error(err))
	}
	metrics.IncIncidentEvent("verified")
	verifiedAt := s.clock.Now()
	return &verifiedAt, nil
}

// Cancel runs the cancellation state machine against the current incident.
func (s *Service) Cancel(ctx context.Context, place places.Context, cancelledBy, method string) (*incident.Incident, error) {
	if s == nil {
		return nil, errors.New("incident service: nil service")
	}
	addr, err := s.hooks.currentAddress(ctx, place)
	if err != nil {
		return nil, err
	}
	return s.CancelAddress(ctx, place, addr, cancelledBy, method)
}

// CancelAddress runs the cancellation state machine against one incident.
//
// The machine tolerates any hub/platform arrival order: each pass only
// advances state it has been told about and leaves the rest pending. A
// stale current-incident pointer is repaired by synthesizing the missing
// completion instead of failing.
func (s *Service) CancelAddress(ctx context.Context, place places.Context, incidentAddr, cancelledBy, method string) (*incident.Incident, error) {
	if s == nil {
		return nil, errors.New("incident service: nil service")
	}
	if incidentAddr == "" {
		return nil, incident.ErrNotFound
	}
	placeID, id, err := incident.ParseAddress(incidentAddr)
	if err != nil || placeID != place.PlaceID {
		return nil, incident.ErrNotFound
	}

	cur, err := s.store.FindByID(ctx, placeID, id)
	if errors.Is(err, incident.ErrNotFound) || (err == nil && cur == nil) {
		return nil, s.repairStalePointer(ctx, place, incidentAddr, id)
	}
	if err != nil {
		return nil, err
	}
	if !cur.Open() {
		return cur, nil
	}

	if err := s.hooks.validateCancel(ctx, place, *cur); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if cur.AlertState == incident.StatePrealert || cur.AlertState == incident.StateAlert {
		next := incident.From(*cur).
			WithAlertState(incident.StateCancelling).
			WithCancelledBy(cancelledBy).
			Build()
		if err := s.save(ctx, place, cur, next); err != nil {
			return nil, err
		}
		s.history.OnCancelled(ctx, place.PlaceID, place.Population, next.Address(), cancelledBy, method)
		cur = &next
	}

	// Hub reconciliation: only advance what the hub has already reported.
	if cur.HubAlarm && (cur.HubState == incident.StateCancelling || cur.HubState == incident.StateComplete) {
		if !s.hubReportsActive(ctx, place) {
			if cur.PlatformState == incident.StateComplete {
				return s.onCompleted(ctx, place, cur)
			}
			if cur.HubState != incident.StateComplete {
				next := incident.From(*cur).WithHubState(incident.StateComplete).Build()
				if err := s.save(ctx, place, cur, next); err != nil {
					return nil, err
				}
				cur = &next
			}
		} else {
			return cur, nil
		}
	}

	if cur.PlatformState == incident.StateComplete {
		return cur, nil
	}

	if cur.PlatformState != incident.StateCancelling {
		next := incident.From(*cur).WithPlatformState(incident.StateCancelling).Build()
		if err := s.save(ctx, place, cur, next); err != nil {
			return nil, err
		}
		cur = &next
	}

	target := *cur
	started := now
	s.hooks.doCancel(ctx, place, target, cancelledBy, func(cancelErr error) {
		s.finishCancel(place, target, started, cancelErr)
	})
	return cur, nil
}

// finishCancel is the doCancel completion callback. It runs on whatever
// goroutine delivered the station response, so it re-reads the incident
// fresh; failures are logged and absorbed.
func (s *Service) finishCancel(place places.Context, target incident.Incident, started time.Time, cancelErr error) {
	ctx := context.Background()
	elapsed := s.clock.Now().Sub(started)
	if cancelErr != nil {
		result := metrics.ResultError
		if errors.Is(cancelErr, incident.ErrCancelTimeout) {
			result = metrics.CancelResultTimeout
		}
		metrics.ObserveCancel(result, elapsed)
		s.log.Warn("platform cancel unresolved",
			zap.String("incident", target.Address()), zap.Error(cancelErr))
		return
	}
	fresh, err := s.store.FindByID(ctx, place.PlaceID, target.ID)
	if err != nil || fresh == nil {
		s.log.Warn("cancel completion lost incident",
			zap.String("incident", target.Address()), zap.Error(err))
		return
	}
	if _, err := s.onPlatformCompleted(ctx, place, fresh); err != nil {
		s.log.Warn("platform completion failed",
			zap.String("incident", target.Address()), zap.Error(err))
		return
	}
	metrics.ObserveCancel(metrics.CancelResultAccepted, elapsed)
}

// onPlatformCompleted records that the platform side of a cancellation
// finished. The incident fully completes only once the hub side has
// nothing outstanding.
func (s *Service) onPlatformCompleted(ctx context.Context, place places.Context, cur *incident.Incident) (*incident.Incident, error) {
	if cur == nil || !cur.Open() {
		return cur, nil
	}
	if !cur.HubAlarm || cur.HubState == "" || cur.HubState == incident.StateComplete {
		return s.onCompleted(ctx, place, cur)
	}
	now := s.clock.Now()
	b := incident.From(*cur).WithPlatformState(incident.StateComplete)
	if cur.MonitoringState == incident.MonitoringPending || cur.MonitoringState == incident.MonitoringDispatching {
		b.WithMonitoringState(incident.MonitoringCancelled).
			AddTracker(now, incident.TrackerDispatchCancelled, "monitoring.cancelled", "")
	}
	next := b.Build()
	if err := s.save(ctx, place, cur, next); err != nil {
		return nil, err
	}
	return &next, nil
}

// onCompleted is the terminal transition: the only way an incident leaves
// the non-terminal set. Clears the current-incident pointer and broadcasts
// a completion event.
func (s *Service) onCompleted(ctx context.Context, place places.Context, cur *incident.Incident) (*incident.Incident, error) {
	if cur == nil {
		return nil, incident.ErrNotFound
	}
	if !cur.Open() {
		return cur, nil
	}
	now := s.clock.Now()
	b := incident.From(*cur).
		WithAlertState(incident.StateComplete).
		WithPlatformState(incident.StateComplete).
		WithEndTime(now).
		AddTracker(now, incident.TrackerCancelled, "incident.cancelled", "")
	if cur.HubAlarm && cur.HubState != "" {
		b.WithHubState(incident.StateComplete)
	}
	if cur.MonitoringState == incident.MonitoringPending || cur.MonitoringState == incident.MonitoringDispatching {
		b.WithMonitoringState(incident.MonitoringCancelled).
			AddTracker(now, incident.TrackerDispatchCancelled, "monitoring.cancelled", "")
	}
	next := b.Build()
	if err := s.save(ctx, place, cur, next); err != nil {
		return nil, err
	}
	if err := s.vars.Set(ctx, place.PlaceID, places.VarCurrentIncident, ""); err != nil {
		return nil, err
	}
	s.publish(ctx, place, events.IncidentCompleted{
		PlaceID:    place.PlaceID,
		IncidentID: next.ID,
		Incident:   next,
		OccurredAt: now,
	})
	metrics.IncIncidentEvent("completed")
	return &next, nil
}

// OnMonitoringStateChanged applies an external monitoring-state change,
// validated against the enum before any mutation.
func (s *Service) OnMonitoringStateChanged(ctx context.Context, place places.Context, incidentAddr, value string) error {
	if s == nil {
		return errors.New("incident service: nil service")
	}
	state, ok := incident.ValidMonitoringState(value)
	if !ok {
		return fmt.Errorf("%w: monitoring state %q", incident.ErrInvalidParam, value)
	}
	cur, err := s.resolve(ctx, place, incidentAddr)
	if err != nil {
		return err
	}
	if cur == nil {
		return incident.ErrNotFound
	}
	if !cur.Open() {
		return fmt.Errorf("%w: incident is %s", incident.ErrInvalidState, cur.AlertState)
	}

	b := incident.From(*cur).WithMonitoringState(state)
	if trackerState, hasTracker := incident.TrackerStateFor(state); hasTracker {
		b.AddTracker(s.clock.Now(), trackerState, "monitoring."+strings.ToLower(value), "")
	}
	next := b.Build()
	if err := s.save(ctx, place, cur, next); err != nil {
		return err
	}
	metrics.IncMonitoringTransition(string(state))
	return nil
}

// OnHubStateReported applies the hub's reported lifecycle state to the
// incident's hub sub-state. Reports only ever advance the sub-state; a
// CANCELLING report pulls the overall state with it, and a COMPLETE report
// finishes the incident once the platform side is also done.
func (s *Service) OnHubStateReported(ctx context.Context, place places.Context, incidentAddr, value string) error {
	if s == nil {
		return errors.New("incident service: nil service")
	}
	state := incident.AlertState(value)
	if state.Rank() == 0 {
		return fmt.Errorf("%w: hub alert state %q", incident.ErrInvalidParam, value)
	}
	cur, err := s.resolve(ctx, place, incidentAddr)
	if err != nil {
		return err
	}
	if cur == nil {
		return incident.ErrNotFound
	}
	if !cur.Open() {
		// Late report for a finished incident.
		return nil
	}
	if state.Rank() <= cur.HubState.Rank() {
		return nil
	}

	b := incident.From(*cur).WithHubState(state)
	if state == incident.StateCancelling || state == incident.StateComplete {
		b.WithAlertState(incident.StateCancelling)
		if cur.CancelledBy == "" {
			b.WithCancelledBy("hub")
		}
	}
	next := b.Build()
	if err := s.save(ctx, place, cur, next); err != nil {
		return err
	}
	if state == incident.StateComplete && next.PlatformState == incident.StateComplete {
		_, err := s.onCompleted(ctx, place, &next)
		return err
	}
	return nil
}

// repairStalePointer self-heals a place whose current-incident pointer
// names a record that no longer resolves: the pointer is cleared and the
// missing completion event synthesized.
func (s *Service) repairStalePointer(ctx context.Context, place places.Context, incidentAddr, id string) error {
	s.log.Warn("repairing stale incident pointer",
		zap.String("place_id", place.PlaceID),
		zap.String("incident", incidentAddr))
	if err := s.vars.Set(ctx, place.PlaceID, places.VarCurrentIncident, ""); err != nil {
		return err
	}
	s.publish(ctx, place, events.IncidentCompleted{
		PlaceID:    place.PlaceID,
		IncidentID: id,
		Incident: incident.Incident{
			ID:         id,
			PlaceID:    place.PlaceID,
			AlertState: incident.StateComplete,
		},
		OccurredAt: s.clock.Now(),
	})
	metrics.IncIncidentEvent("repaired")
	return nil
}

// save persists the incident and emits exactly one change event: the full
// record on first save, the changed-field diff afterwards.
func (s *Service) save(ctx context.Context, place places.Context, prev *incident.Incident, next incident.Incident) error {
	if err := s.store.Upsert(ctx, next); err != nil {
		return err
	}
	now := s.clock.Now()
	if prev == nil {
		s.publish(ctx, place, events.IncidentAdded{
			PlaceID:    place.PlaceID,
			Incident:   next,
			OccurredAt: now,
		})
		metrics.IncIncidentEvent("added")
		return nil
	}
	changes := incident.Diff(*prev, next)
	if len(changes) == 0 {
		return nil
	}
	s.publish(ctx, place, events.IncidentChanged{
		PlaceID:    place.PlaceID,
		IncidentID: next.ID,
		Incident:   next,
		Changes:    changes,
		OccurredAt: now,
	})
	metrics.IncIncidentEvent("changed")
	return nil
}

func (s *Service) publish(ctx context.Context, place places.Context, event any) {
	if s.bus == nil {
		return
	}
	ctx = eventing.WithPlaceID(ctx, place.PlaceID)
	if err := s.bus.Publish(ctx, event); err != nil {
		s.log.Warn("event publish failed", zap.Error(err))
	}
}

// current resolves the open incident via the current-incident pointer,
// falling back to the store's own open-incident lookup.
func (s *Service) current(ctx context.Context, place places.Context) (*incident.Incident, error) {
	addr, err := s.hooks.currentAddress(ctx, place)
	if err != nil && !errors.Is(err, incident.ErrNoHubIncident) {
		return nil, err
	}
	if addr != "" {
		placeID, id, parseErr := incident.ParseAddress(addr)
		if parseErr == nil && placeID == place.PlaceID {
			inc, findErr := s.store.FindByID(ctx, placeID, id)
			if findErr == nil && inc != nil {
				return inc, nil
			}
			if findErr != nil && !errors.Is(findErr, incident.ErrNotFound) {
				return nil, findErr
			}
		}
	}
	return s.store.Current(ctx, place.PlaceID)
}

func (s *Service) resolve(ctx context.Context, place places.Context, incidentAddr string) (*incident.Incident, error) {
	if incidentAddr == "" {
		return s.current(ctx, place)
	}
	placeID, id, err := incident.ParseAddress(incidentAddr)
	if err != nil || placeID != place.PlaceID {
		return nil, incident.ErrNotFound
	}
	return s.store.FindByID(ctx, placeID, id)
}

func (s *Service) hubReportsActive(ctx context.Context, place places.Context) bool {
	value, err := s.vars.Get(ctx, place.PlaceID, places.VarHubIncident)
	if err != nil {
		s.log.Warn("hub incident variable read failed",
			zap.String("place_id", place.PlaceID), zap.Error(err))
		return false
	}
	return value != ""
}

func (s *Service) markTriggerSent(ctx context.Context, place places.Context, triggers []incident.Trigger) {
	last := incident.LastTriggerTime(triggers)
	if last.IsZero() {
		return
	}
	if err := s.vars.Set(ctx, place.PlaceID, places.VarLastTriggerSent, last.UTC().Format(time.RFC3339Nano)); err != nil {
		s.log.Warn("last trigger marker write failed",
			zap.String("place_id", place.PlaceID), zap.Error(err))
	}
}

func (s *Service) triggerAlreadySent(ctx context.Context, place places.Context, triggers []incident.Trigger) bool {
	last := incident.LastTriggerTime(triggers)
	if last.IsZero() {
		return false
	}
	value, err := s.vars.Get(ctx, place.PlaceID, places.VarLastTriggerSent)
	if err != nil || value == "" {
		return false
	}
	sent, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return false
	}
	return sent.Equal(last.UTC())
}

// Default hook implementations. Variants override the subset they need.

func (s *Service) currentAddress(ctx context.Context, place places.Context) (string, error) {
	return s.vars.Get(ctx, place.PlaceID, places.VarCurrentIncident)
}

func (s *Service) incidentIdentity(context.Context, places.Context) (string, bool, bool, error) {
	return newIncidentID(), false, false, nil
}

func (s *Service) validateCancel(context.Context, places.Context, incident.Incident) error {
	return nil
}

func (s *Service) doCancel(_ context.Context, _ places.Context, _ incident.Incident, _ string, done func(error)) {
	done(nil)
}

func (s *Service) notifyTriggered(_ context.Context, place places.Context, inc incident.Incident, triggers []incident.Trigger) {
	s.log.Info("incident notification",
		zap.String("place_id", place.PlaceID),
		zap.String("incident", inc.Address()),
		zap.Int("triggers", len(triggers)))
}

func (s *Service) afterVerified(_ context.Context, _ places.Context, _, cur incident.Incident, _ string) (incident.Incident, error) {
	return cur, nil
}

// newIncidentID generates a time-ordered incident identifier.
func newIncidentID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func recomputeMonitored(place places.Context, inc incident.Incident) incident.Incident {
	monitored := place.Monitored && inc.AnyMonitorable()
	if inc.Monitored == monitored {
		return inc
	}
	return incident.From(inc).WithMonitored(monitored).Build()
}

func tierFor(inc incident.Incident) string {
	switch {
	case inc.MockIncident:
		return "mock"
	case inc.HubAlarm:
		return "hub"
	default:
		return "platform"
	}
}
