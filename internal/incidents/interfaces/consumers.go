// Package interfaces wires incident event consumers onto the bus.
package interfaces

import (
	"context"
	"errors"
	"fmt"
	"time"

	"homehub-cloud/internal/eventing"
	"homehub-cloud/internal/incidents/application"
	"homehub-cloud/internal/incidents/application/events"
	incident "homehub-cloud/internal/incidents/domain"
	"homehub-cloud/internal/observability/metrics"
	"homehub-cloud/internal/places"

	"go.uber.org/zap"
)

const (
	stationResponseConsumer = "incidents.station_response"
	hubReportConsumer       = "incidents.hub_report"
)

// RegisterStationResponseConsumer routes monitoring-station responses to
// the platform's pending-cancel cache.
func RegisterStationResponseConsumer(bus eventing.EventBus, platform *application.Platform, processed eventing.ProcessedStore) error {
	if bus == nil {
		return errors.New("station response consumer: nil bus")
	}
	if platform == nil {
		return errors.New("station response consumer: nil platform service")
	}
	handler := func(ctx context.Context, event any) error {
		resp, ok := event.(events.MonitoringStationResponse)
		if !ok {
			return fmt.Errorf("station response consumer: unexpected event %T", event)
		}
		if !resp.OccurredAt.IsZero() {
			metrics.ObserveConsumerLag(stationResponseConsumer, time.Since(resp.OccurredAt))
		}
		return platform.OnStationResponse(ctx, resp)
	}
	eventing.Subscribe(bus, eventing.EventTypeOf[events.MonitoringStationResponse](), stationResponseConsumer, handler, processed)
	return nil
}

// HubReportConsumer applies hub incident reports: it mirrors the hub's
// state into place variables and advances the incident's hub sub-state.
type HubReportConsumer struct {
	dispatcher *application.Dispatcher
	vars       places.VariableStore
	places     places.ContextStore
	log        *zap.Logger
}

// NewHubReportConsumer constructs the consumer.
func NewHubReportConsumer(dispatcher *application.Dispatcher, vars places.VariableStore, store places.ContextStore, log *zap.Logger) (*HubReportConsumer, error) {
	if dispatcher == nil {
		return nil, errors.New("hub report consumer: nil dispatcher")
	}
	if vars == nil {
		return nil, errors.New("hub report consumer: nil variable store")
	}
	if store == nil {
		return nil, errors.New("hub report consumer: nil place store")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HubReportConsumer{dispatcher: dispatcher, vars: vars, places: store, log: log}, nil
}

// Register subscribes the consumer to the bus.
func (c *HubReportConsumer) Register(bus eventing.EventBus, processed eventing.ProcessedStore) error {
	if bus == nil {
		return errors.New("hub report consumer: nil bus")
	}
	eventing.Subscribe(bus, eventing.EventTypeOf[events.HubIncidentReport](), hubReportConsumer, c.handle, processed)
	return nil
}

func (c *HubReportConsumer) handle(ctx context.Context, event any) error {
	report, ok := event.(events.HubIncidentReport)
	if !ok {
		return fmt.Errorf("hub report consumer: unexpected event %T", event)
	}
	if !report.OccurredAt.IsZero() {
		metrics.ObserveConsumerLag(hubReportConsumer, time.Since(report.OccurredAt))
	}

	place, err := c.places.Context(ctx, report.PlaceID)
	if errors.Is(err, places.ErrUnknownPlace) {
		c.log.Warn("hub report for unknown place", zap.String("place_id", report.PlaceID))
		return nil
	}
	if err != nil {
		return err
	}

	if err := c.dispatcher.OnHubConnectivityChanged(ctx, place, report.Online); err != nil {
		c.log.Warn("hub connectivity update failed",
			zap.String("place_id", report.PlaceID), zap.Error(err))
	}

	// Mirror the hub's current incident so state-machine reads never block
	// on the hub connection. A COMPLETE report clears the mirror.
	mirror := ""
	if report.IncidentID != "" && report.AlertState != string(incident.StateComplete) {
		mirror = incident.AddressFor(report.PlaceID, report.IncidentID)
	}
	if err := c.vars.Set(ctx, report.PlaceID, places.VarHubIncident, mirror); err != nil {
		return err
	}

	if report.IncidentID == "" || report.AlertState == "" {
		return nil
	}
	addr := incident.AddressFor(report.PlaceID, report.IncidentID)
	err = c.dispatcher.OnHubStateReported(ctx, place, addr, report.AlertState)
	if errors.Is(err, incident.ErrNotFound) {
		// The hub can report before the platform record exists; the next
		// trigger sync will create it.
		c.log.Debug("hub report for unknown incident", zap.String("incident", addr))
		return nil
	}
	return err
}
