package application

import (
	"context"
	"errors"
	"time"

	incident "homehub-cloud/internal/incidents/domain"
	"homehub-cloud/internal/places"
)

// Dispatcher routes each call to the platform, hub or mock service. Reads
// always go to the platform view since incident records live in one store;
// mutations are routed fresh per call from the current incident's mock
// flag, or the place's test mode when no incident is open, then the
// place's alarm provider.
type Dispatcher struct {
	platform *Platform
	hub      *Hub
	mock     *Mock
}

// NewDispatcher constructs the routing facade.
func NewDispatcher(platform *Platform, hub *Hub, mock *Mock) (*Dispatcher, error) {
	if platform == nil {
		return nil, errors.New("incident dispatcher: nil platform service")
	}
	if hub == nil {
		return nil, errors.New("incident dispatcher: nil hub service")
	}
	if mock == nil {
		return nil, errors.New("incident dispatcher: nil mock service")
	}
	return &Dispatcher{platform: platform, hub: hub, mock: mock}, nil
}

// GetCurrentIncident returns the place's open incident.
func (d *Dispatcher) GetCurrentIncident(ctx context.Context, place places.Context) (*incident.Incident, error) {
	return d.platform.GetCurrentIncident(ctx, place)
}

// GetIncident looks up one incident by address.
func (d *Dispatcher) GetIncident(ctx context.Context, place places.Context, addr string) (*incident.Incident, error) {
	return d.platform.GetIncident(ctx, place, addr)
}

// ListIncidents returns the place's incident history.
func (d *Dispatcher) ListIncidents(ctx context.Context, place places.Context, limit int) ([]incident.Incident, error) {
	return d.platform.ListIncidents(ctx, place, limit)
}

// AddPreAlert routes to the resolved service.
func (d *Dispatcher) AddPreAlert(ctx context.Context, place places.Context, alert incident.AlertType, prealertEnd time.Time, triggers []incident.Trigger) (string, error) {
	return d.route(ctx, place).AddPreAlert(ctx, place, alert, prealertEnd, triggers)
}

// AddAlert routes to the resolved service.
func (d *Dispatcher) AddAlert(ctx context.Context, place places.Context, alert incident.AlertType, triggers []incident.Trigger, sendNotifications bool) (string, error) {
	return d.route(ctx, place).AddAlert(ctx, place, alert, triggers, sendNotifications)
}

// UpdateIncident routes to the resolved service.
func (d *Dispatcher) UpdateIncident(ctx context.Context, place places.Context, triggers []incident.Trigger, sendNotifications bool) error {
	return d.route(ctx, place).UpdateIncident(ctx, place, triggers, sendNotifications)
}

// UpdateIncidentHistory routes to the resolved service.
func (d *Dispatcher) UpdateIncidentHistory(ctx context.Context, place places.Context, triggers []incident.Trigger) error {
	return d.route(ctx, place).UpdateIncidentHistory(ctx, place, triggers)
}

// OnHubConnectivityChanged routes to the resolved service.
func (d *Dispatcher) OnHubConnectivityChanged(ctx context.Context, place places.Context, online bool) error {
	return d.route(ctx, place).OnHubConnectivityChanged(ctx, place, online)
}

// Verify routes to the resolved service.
func (d *Dispatcher) Verify(ctx context.Context, place places.Context, incidentAddr, actorAddr string) (*time.Time, error) {
	return d.route(ctx, place).Verify(ctx, place, incidentAddr, actorAddr)
}

// Cancel routes to the resolved service.
func (d *Dispatcher) Cancel(ctx context.Context, place places.Context, cancelledBy, method string) (*incident.Incident, error) {
	return d.route(ctx, place).Cancel(ctx, place, cancelledBy, method)
}

// CancelAddress routes to the resolved service.
func (d *Dispatcher) CancelAddress(ctx context.Context, place places.Context, incidentAddr, cancelledBy, method string) (*incident.Incident, error) {
	return d.route(ctx, place).CancelAddress(ctx, place, incidentAddr, cancelledBy, method)
}

// OnMonitoringStateChanged routes to the resolved service.
func (d *Dispatcher) OnMonitoringStateChanged(ctx context.Context, place places.Context, incidentAddr, value string) error {
	return d.route(ctx, place).OnMonitoringStateChanged(ctx, place, incidentAddr, value)
}

// OnHubStateReported routes to the resolved service.
func (d *Dispatcher) OnHubStateReported(ctx context.Context, place places.Context, incidentAddr, value string) error {
	return d.route(ctx, place).OnHubStateReported(ctx, place, incidentAddr, value)
}

// route resolves the concrete service for a mutation. The current
// incident's flags win over place configuration; they are set at creation
// and do not change mid-incident.
func (d *Dispatcher) route(ctx context.Context, place places.Context) IncidentService {
	isMock := place.TestMode
	cur, err := d.platform.GetCurrentIncident(ctx, place)
	if err == nil && cur != nil && cur.Open() {
		isMock = cur.MockIncident
	}
	if isMock {
		return d.mock
	}
	if place.HubAuthoritative() {
		return d.hub
	}
	return d.platform
}
