// Package http exposes the incident coordinator over the REST API.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"homehub-cloud/internal/audit"
	"homehub-cloud/internal/auth"
	"homehub-cloud/internal/incidents/application"
	incident "homehub-cloud/internal/incidents/domain"
	"homehub-cloud/internal/places"

	"go.uber.org/zap"
)

// Handler serves /api/v1/places/{placeID}/incidents and subroutes.
type Handler struct {
	dispatcher *application.Dispatcher
	places     places.ContextStore
	checker    auth.PlaceAccessChecker
	auditLog   audit.Logger
	log        *zap.Logger
	maxList    int
}

// NewHandler constructs the incident HTTP handler. auditLog may be nil to
// disable audit logging.
func NewHandler(dispatcher *application.Dispatcher, store places.ContextStore, checker auth.PlaceAccessChecker, auditLog audit.Logger, maxList int, log *zap.Logger) (*Handler, error) {
	if dispatcher == nil {
		return nil, errors.New("incidents handler: nil dispatcher")
	}
	if store == nil {
		return nil, errors.New("incidents handler: nil place store")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if maxList <= 0 {
		maxList = 100
	}
	return &Handler{
		dispatcher: dispatcher,
		places:     store,
		checker:    checker,
		auditLog:   auditLog,
		log:        log,
		maxList:    maxList,
	}, nil
}

// incidentPayload is an incident plus its bus address.
type incidentPayload struct {
	Address string `json:"address"`
	incident.Incident
}

func payloadFor(inc incident.Incident) incidentPayload {
	return incidentPayload{Address: inc.Address(), Incident: inc}
}

type prealertRequest struct {
	AlertType   string             `json:"alert_type"`
	PrealertEnd time.Time          `json:"prealert_end"`
	Triggers    []incident.Trigger `json:"triggers"`
}

type alertRequest struct {
	AlertType         string             `json:"alert_type"`
	Triggers          []incident.Trigger `json:"triggers"`
	SendNotifications bool               `json:"send_notifications"`
}

type triggersRequest struct {
	Triggers          []incident.Trigger `json:"triggers"`
	SendNotifications bool               `json:"send_notifications"`
	HistoryOnly       bool               `json:"history_only"`
}

type verifyRequest struct {
	Actor string `json:"actor"`
}

type cancelRequest struct {
	CancelledBy string `json:"cancelled_by"`
	Method      string `json:"method"`
}

type connectivityRequest struct {
	Online bool `json:"online"`
}

// ServeHTTP routes incident requests under /api/v1/places/.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/places/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] != "incidents" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	placeID := parts[0]
	rest := parts[2:]

	place, err := h.resolvePlace(w, r, placeID)
	if err != nil {
		return
	}

	switch {
	case len(rest) == 0 || (len(rest) == 1 && rest[0] == ""):
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r, place)
	case len(rest) == 1:
		h.handleSingleSegment(w, r, place, rest[0])
	case len(rest) == 2:
		h.handleAction(w, r, place, rest[0], rest[1])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleSingleSegment(w http.ResponseWriter, r *http.Request, place places.Context, segment string) {
	switch segment {
	case "current":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleCurrent(w, r, place)
	case "prealert":
		if !requirePost(w, r) {
			return
		}
		h.handlePreAlert(w, r, place)
	case "alert":
		if !requirePost(w, r) {
			return
		}
		h.handleAlert(w, r, place)
	case "triggers":
		if !requirePost(w, r) {
			return
		}
		h.handleTriggers(w, r, place)
	case "cancel":
		if !requirePost(w, r) {
			return
		}
		h.handleCancel(w, r, place, "")
	case "connectivity":
		if !requirePost(w, r) {
			return
		}
		h.handleConnectivity(w, r, place)
	case "export.csv", "export.xlsx", "export.pdf":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleExport(w, r, place, strings.TrimPrefix(segment, "export."))
	default:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGet(w, r, place, segment)
	}
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request, place places.Context, id, action string) {
	if !requirePost(w, r) {
		return
	}
	addr := incident.AddressFor(place.PlaceID, id)
	switch action {
	case "verify":
		var req verifyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		verifiedAt, err := h.dispatcher.Verify(r.Context(), place, addr, req.Actor)
		if err != nil {
			h.respondError(w, err)
			return
		}
		h.recordAudit(r, place, "incident.verify", addr, req)
		respondJSON(w, map[string]any{"verified_at": verifiedAt})
	case "cancel":
		h.handleCancel(w, r, place, addr)
	case "monitoring":
		var req struct {
			State string `json:"state"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if err := h.dispatcher.OnMonitoringStateChanged(r.Context(), place, addr, req.State); err != nil {
			h.respondError(w, err)
			return
		}
		h.recordAudit(r, place, "incident.monitoring", addr, req)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, place places.Context) {
	limit := h.maxList
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}
	list, err := h.dispatcher.ListIncidents(r.Context(), place, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	payload := make([]incidentPayload, 0, len(list))
	for _, inc := range list {
		payload = append(payload, payloadFor(inc))
	}
	respondJSON(w, payload)
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request, place places.Context) {
	cur, err := h.dispatcher.GetCurrentIncident(r.Context(), place)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if cur == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, payloadFor(*cur))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, place places.Context, id string) {
	inc, err := h.dispatcher.GetIncident(r.Context(), place, incident.AddressFor(place.PlaceID, id))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, payloadFor(*inc))
}

func (h *Handler) handlePreAlert(w http.ResponseWriter, r *http.Request, place places.Context) {
	var req prealertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	addr, err := h.dispatcher.AddPreAlert(r.Context(), place, incident.AlertType(req.AlertType), req.PrealertEnd, req.Triggers)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.recordAudit(r, place, "incident.prealert", addr, req)
	respondJSON(w, map[string]string{"address": addr})
}

func (h *Handler) handleAlert(w http.ResponseWriter, r *http.Request, place places.Context) {
	var req alertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	addr, err := h.dispatcher.AddAlert(r.Context(), place, incident.AlertType(req.AlertType), req.Triggers, req.SendNotifications)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.recordAudit(r, place, "incident.alert", addr, req)
	respondJSON(w, map[string]string{"address": addr})
}

func (h *Handler) handleTriggers(w http.ResponseWriter, r *http.Request, place places.Context) {
	var req triggersRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var err error
	if req.HistoryOnly {
		err = h.dispatcher.UpdateIncidentHistory(r.Context(), place, req.Triggers)
	} else {
		err = h.dispatcher.UpdateIncident(r.Context(), place, req.Triggers, req.SendNotifications)
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request, place places.Context, addr string) {
	var req cancelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CancelledBy == "" {
		req.CancelledBy = auth.SubjectFromContext(r.Context())
	}
	if req.Method == "" {
		req.Method = "app"
	}
	var (
		inc *incident.Incident
		err error
	)
	if addr == "" {
		inc, err = h.dispatcher.Cancel(r.Context(), place, req.CancelledBy, req.Method)
	} else {
		inc, err = h.dispatcher.CancelAddress(r.Context(), place, addr, req.CancelledBy, req.Method)
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	if inc == nil {
		// Stale pointer repaired; there is no incident left to return.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.recordAudit(r, place, "incident.cancel", inc.Address(), req)
	respondJSON(w, payloadFor(*inc))
}

func (h *Handler) handleConnectivity(w http.ResponseWriter, r *http.Request, place places.Context) {
	var req connectivityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.dispatcher.OnHubConnectivityChanged(r.Context(), place, req.Online); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resolvePlace(w http.ResponseWriter, r *http.Request, placeID string) (places.Context, error) {
	place, err := h.places.Context(r.Context(), placeID)
	if errors.Is(err, places.ErrUnknownPlace) {
		http.Error(w, "place not found", http.StatusNotFound)
		return places.Context{}, err
	}
	if err != nil {
		h.log.Warn("place lookup failed", zap.String("place_id", placeID), zap.Error(err))
		http.Error(w, "place lookup failed", http.StatusInternalServerError)
		return places.Context{}, err
	}
	if h.checker != nil {
		accountID := auth.AccountIDFromContext(r.Context())
		if err := h.checker.EnsurePlaceAccount(r.Context(), accountID, placeID); err != nil {
			h.respondError(w, err)
			return places.Context{}, err
		}
	}
	return place, nil
}

func (h *Handler) recordAudit(r *http.Request, place places.Context, action, resourceID string, meta any) {
	if h.auditLog == nil {
		return
	}
	var raw json.RawMessage
	if meta != nil {
		raw, _ = json.Marshal(meta)
	}
	entry := audit.Entry{
		AccountID:    auth.AccountIDFromContext(r.Context()),
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "incident",
		ResourceID:   resourceID,
		PlaceID:      place.PlaceID,
		Metadata:     raw,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	}
	if err := h.auditLog.Log(r.Context(), entry); err != nil {
		h.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, incident.ErrNotFound) || errors.Is(err, incident.ErrNoHubIncident) || errors.Is(err, auth.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, incident.ErrInvalidParam):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, incident.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, auth.ErrPlaceMismatch):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		h.log.Warn("incident request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
