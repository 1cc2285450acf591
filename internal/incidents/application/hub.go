package application

import (
	"context"
	"fmt"

	"homehub-cloud/internal/config"
	incident "homehub-cloud/internal/incidents/domain"
	"homehub-cloud/internal/incidents/history"
	"homehub-cloud/internal/places"
	"homehub-cloud/internal/station"

	"go.uber.org/zap"
)

// HubModel exposes the hub's live alarm state as mirrored on the platform.
// The hub report consumer keeps this current; reads never block on the hub
// connection.
type HubModel interface {
	// CurrentIncidentAddress returns the hub's current incident address,
	// or empty when the hub reports none.
	CurrentIncidentAddress(ctx context.Context, placeID string) (string, error)
	// ActiveTriggers returns the triggers already present in the hub's
	// security alarm model, for replay during verification.
	ActiveTriggers(ctx context.Context, placeID string) ([]incident.Trigger, error)
}

// Hub handles incidents whose identity and primary state originate from the
// home hub. It inherits the platform's station coordination but resolves
// the current incident from the hub model and never generates ids locally.
type Hub struct {
	*Platform
	model HubModel
}

// NewHub constructs the hub incident service.
func NewHub(store incident.Store, vars places.VariableStore, hist history.Listener, bus EventPublisher, client station.Client, model HubModel, cfg config.Incidents, log *zap.Logger, opts ...Option) (*Hub, error) {
	if model == nil {
		return nil, fmt.Errorf("hub incident service: nil hub model")
	}
	platform, err := NewPlatform(store, vars, hist, bus, client, cfg, log, opts...)
	if err != nil {
		return nil, err
	}
	h := &Hub{Platform: platform, model: model}
	platform.Service.hooks = h
	return h, nil
}

// currentAddress resolves the current incident from the hub model, falling
// back to the stored pointer when the model attribute is momentarily
// absent. The hub is authoritative: having neither is an error, not a
// recoverable condition.
func (h *Hub) currentAddress(ctx context.Context, place places.Context) (string, error) {
	addr, err := h.model.CurrentIncidentAddress(ctx, place.PlaceID)
	if err != nil {
		return "", err
	}
	if addr != "" {
		return addr, nil
	}
	addr, err = h.vars.Get(ctx, place.PlaceID, places.VarCurrentIncident)
	if err != nil {
		return "", err
	}
	if addr == "" {
		return "", incident.ErrNoHubIncident
	}
	return addr, nil
}

// incidentIdentity takes the incident id from the hub-provided address
// rather than generating one.
func (h *Hub) incidentIdentity(ctx context.Context, place places.Context) (string, bool, bool, error) {
	addr, err := h.model.CurrentIncidentAddress(ctx, place.PlaceID)
	if err != nil {
		return "", false, false, err
	}
	if addr == "" {
		return "", false, false, incident.ErrNoHubIncident
	}
	placeID, id, err := incident.ParseAddress(addr)
	if err != nil || placeID != place.PlaceID {
		return "", false, false, fmt.Errorf("%w: hub address %q", incident.ErrInvalidParam, addr)
	}
	return id, true, false, nil
}

// afterVerified promotes a still-PREALERT hub incident straight to ALERT.
// The platform sub-state advances with it; the hub sub-state stays at
// PREALERT until the hub itself reports ALERT. Triggers already present in
// the hub's alarm model are replayed into the verification notification,
// with a synthesized verification trigger attributed to the verifier.
func (h *Hub) afterVerified(ctx context.Context, place places.Context, prev, cur incident.Incident, actorAddr string) (incident.Incident, error) {
	if prev.AlertState != incident.StatePrealert {
		return h.Platform.afterVerified(ctx, place, prev, cur, actorAddr)
	}

	now := h.clock.Now()
	next := incident.From(cur).
		WithAlertState(incident.StateAlert).
		WithPlatformState(incident.StateAlert).
		AddTracker(now, incident.TrackerAlert, "incident.alert", "").
		Build()
	next = recomputeMonitored(place, next)
	if err := h.save(ctx, place, &cur, next); err != nil {
		return cur, err
	}

	triggers, err := h.model.ActiveTriggers(ctx, place.PlaceID)
	if err != nil {
		h.log.Warn("hub trigger replay failed",
			zap.String("place_id", place.PlaceID), zap.Error(err))
		triggers = nil
	}
	triggers = append(triggers, incident.Trigger{
		At:    now,
		Event: incident.EventVerifiedAlarm,
		Actor: actorAddr,
	})
	h.history.OnTriggersAdded(ctx, place.PlaceID, place.Population, next.Address(), incident.TriggerAttributes(triggers))
	h.notifyTriggered(ctx, place, next, triggers)
	h.markTriggerSent(ctx, place, triggers)
	return next, nil
}

// VariableHubModel is a HubModel backed by the mirrored place variables.
type VariableHubModel struct {
	vars places.VariableStore
}

// NewVariableHubModel constructs the variable-backed hub model.
func NewVariableHubModel(vars places.VariableStore) *VariableHubModel {
	return &VariableHubModel{vars: vars}
}

// CurrentIncidentAddress reads the mirrored hub incident pointer.
func (m *VariableHubModel) CurrentIncidentAddress(ctx context.Context, placeID string) (string, error) {
	if m == nil || m.vars == nil {
		return "", nil
	}
	return m.vars.Get(ctx, placeID, places.VarHubIncident)
}

// ActiveTriggers returns nothing; the mirror does not carry trigger detail.
func (m *VariableHubModel) ActiveTriggers(context.Context, string) ([]incident.Trigger, error) {
	return nil, nil
}
