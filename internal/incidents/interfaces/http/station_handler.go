package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"homehub-cloud/internal/eventing"
	"homehub-cloud/internal/incidents/application"
	"homehub-cloud/internal/incidents/application/events"
	incident "homehub-cloud/internal/incidents/domain"
	"homehub-cloud/internal/places"

	"go.uber.org/zap"
)

// StationHandler ingests monitoring-station callbacks: correlated
// responses to add/cancel requests, and the simulated dispatch actions
// used against mock places.
type StationHandler struct {
	bus    eventing.EventBus
	mock   *application.Mock
	places places.ContextStore
	log    *zap.Logger
}

// NewStationHandler constructs the station callback handler.
func NewStationHandler(bus eventing.EventBus, mock *application.Mock, store places.ContextStore, log *zap.Logger) (*StationHandler, error) {
	if bus == nil {
		return nil, errors.New("station handler: nil bus")
	}
	if store == nil {
		return nil, errors.New("station handler: nil place store")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StationHandler{bus: bus, mock: mock, places: store, log: log}, nil
}

type mockActionRequest struct {
	PlaceID    string `json:"place_id"`
	IncidentID string `json:"incident_id"`
	Action     string `json:"action"`
}

// ServeHTTP handles POST /api/v1/station/responses and
// POST /api/v1/station/mock.
func (h *StationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/api/v1/station/responses":
		h.handleResponse(w, r)
	case "/api/v1/station/mock":
		h.handleMockAction(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *StationHandler) handleResponse(w http.ResponseWriter, r *http.Request) {
	var resp events.MonitoringStationResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if resp.CorrelationID == "" {
		http.Error(w, "correlation_id is required", http.StatusBadRequest)
		return
	}
	if resp.OccurredAt.IsZero() {
		resp.OccurredAt = time.Now().UTC()
	}
	ctx := eventing.WithPlaceID(r.Context(), resp.PlaceID)
	if err := h.bus.Publish(ctx, resp); err != nil {
		h.log.Warn("station response publish failed",
			zap.String("correlation_id", resp.CorrelationID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *StationHandler) handleMockAction(w http.ResponseWriter, r *http.Request) {
	if h.mock == nil {
		http.Error(w, "mock station disabled", http.StatusNotFound)
		return
	}
	var req mockActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PlaceID == "" || req.IncidentID == "" {
		http.Error(w, "place_id and incident_id are required", http.StatusBadRequest)
		return
	}
	place, err := h.places.Context(r.Context(), req.PlaceID)
	if errors.Is(err, places.ErrUnknownPlace) {
		http.Error(w, "place not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "place lookup failed", http.StatusInternalServerError)
		return
	}

	addr := incident.AddressFor(req.PlaceID, req.IncidentID)
	switch req.Action {
	case "contacted":
		err = h.mock.Contacted(r.Context(), place, addr)
	case "dispatch_accepted":
		err = h.mock.DispatchAccepted(r.Context(), place, addr)
	case "dispatch_refused":
		err = h.mock.DispatchRefused(r.Context(), place, addr)
	case "dispatch_cancelled":
		err = h.mock.DispatchCancelled(r.Context(), place, addr)
	case "dispatch_failed":
		err = h.mock.DispatchFailed(r.Context(), place, addr)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	if err != nil {
		switch {
		case errors.Is(err, incident.ErrNotFound):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, incident.ErrInvalidState):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, incident.ErrInvalidParam):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HubReportHandler ingests hub incident reports and hands them to the
// bus; the hub report consumer applies them.
type HubReportHandler struct {
	bus eventing.EventBus
	log *zap.Logger
}

// NewHubReportHandler constructs the hub report handler.
func NewHubReportHandler(bus eventing.EventBus, log *zap.Logger) (*HubReportHandler, error) {
	if bus == nil {
		return nil, errors.New("hub report handler: nil bus")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HubReportHandler{bus: bus, log: log}, nil
}

// ServeHTTP handles POST /api/v1/hub/reports.
func (h *HubReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != "/api/v1/hub/reports" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var report events.HubIncidentReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if report.PlaceID == "" {
		http.Error(w, "place_id is required", http.StatusBadRequest)
		return
	}
	if report.OccurredAt.IsZero() {
		report.OccurredAt = time.Now().UTC()
	}
	ctx := eventing.WithPlaceID(r.Context(), report.PlaceID)
	if err := h.bus.Publish(ctx, report); err != nil {
		h.log.Warn("hub report publish failed",
			zap.String("place_id", report.PlaceID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
