package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"homehub-cloud/internal/audit"
	"homehub-cloud/internal/auth"
	"homehub-cloud/internal/config"
	"homehub-cloud/internal/incidents/application"
	"homehub-cloud/internal/incidents/application/events"
	incident "homehub-cloud/internal/incidents/domain"
	imemory "homehub-cloud/internal/incidents/infrastructure/memory"
	"homehub-cloud/internal/places"
	pmemory "homehub-cloud/internal/places/infrastructure/memory"
)

type recordingAudit struct {
	entries []audit.Entry
}

func (a *recordingAudit) Log(_ context.Context, entry audit.Entry) error {
	a.entries = append(a.entries, entry)
	return nil
}

type handlerEnv struct {
	handler  *Handler
	store    *imemory.Repository
	vars     *pmemory.Variables
	places   *pmemory.Places
	mock     *application.Mock
	auditLog *recordingAudit
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	cfg := config.Incidents{
		AlertTimeoutSecs:        90,
		CancelTimeoutSecs:       300,
		CancelCacheShards:       4,
		CancelCacheSweepSecs:    10,
		MaxIncidentsPerPlace:    100,
		MockAlertTimeoutSecs:    30,
		MockDispatchTimeoutSecs: 45,
	}
	store := imemory.NewRepository()
	vars := pmemory.NewVariables()
	placeStore := pmemory.NewPlaces()
	placeStore.Put(places.Context{
		PlaceID:       "place-1",
		AccountID:     "acct-1",
		Population:    "household",
		Monitored:     false,
		AlarmProvider: places.ProviderPlatform,
	})

	platform, err := application.NewPlatform(store, vars, nil, nil, nil, cfg, nil)
	if err != nil {
		t.Fatalf("NewPlatform: %v", err)
	}
	hub, err := application.NewHub(store, vars, nil, nil, nil, application.NewVariableHubModel(vars), cfg, nil)
	if err != nil {
		t.Fatalf("NewHub: %v", err)
	}
	mock, err := application.NewMock(store, vars, nil, nil, cfg, nil)
	if err != nil {
		t.Fatalf("NewMock: %v", err)
	}
	t.Cleanup(mock.Close)
	dispatcher, err := application.NewDispatcher(platform, hub, mock)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	auditLog := &recordingAudit{}
	handler, err := NewHandler(dispatcher, placeStore, auth.NewPlaceChecker(placeStore), auditLog, 100, nil)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return &handlerEnv{handler: handler, store: store, vars: vars, places: placeStore, mock: mock, auditLog: auditLog}
}

func (e *handlerEnv) do(t *testing.T, method, path string, body any, accountID string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if accountID != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), accountID, auth.RoleOperator, "users/alice"))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestHandler_CurrentEmpty(t *testing.T) {
	env := newHandlerEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/places/place-1/incidents/current", nil, "acct-1")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestHandler_AlertLifecycle(t *testing.T) {
	env := newHandlerEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/places/place-1/incidents/alert", alertRequest{
		AlertType: "SECURITY",
		Triggers:  []incident.Trigger{{Event: "MOTION", Device: "devices/door-1"}},
	}, "acct-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("alert status = %d: %s", rec.Code, rec.Body.String())
	}
	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode alert response: %v", err)
	}
	addr := created["address"]
	if addr == "" {
		t.Fatal("no address in alert response")
	}
	_, id, err := incident.ParseAddress(addr)
	if err != nil {
		t.Fatalf("returned address %q: %v", addr, err)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/places/place-1/incidents/current", nil, "acct-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("current status = %d", rec.Code)
	}
	var current incidentPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &current); err != nil {
		t.Fatalf("decode current: %v", err)
	}
	if current.Address != addr || current.AlertState != incident.StateAlert {
		t.Fatalf("current = %+v", current)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/places/place-1/incidents/"+id+"/verify", verifyRequest{Actor: "users/alice"}, "acct-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/v1/places/place-1/incidents/cancel", cancelRequest{CancelledBy: "users/alice"}, "acct-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/places/place-1/incidents/"+id, nil, "acct-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var final incidentPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &final); err != nil {
		t.Fatalf("decode incident: %v", err)
	}
	if final.AlertState != incident.StateComplete {
		t.Fatalf("final state = %s, want COMPLETE", final.AlertState)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/places/place-1/incidents", nil, "acct-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list []incidentPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("list length = %d, want 1", len(list))
	}
}

func TestHandler_AuditTrail(t *testing.T) {
	env := newHandlerEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/places/place-1/incidents/alert", alertRequest{AlertType: "SECURITY"}, "acct-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("alert status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/v1/places/place-1/incidents/cancel", cancelRequest{}, "acct-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rec.Code)
	}

	if len(env.auditLog.entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(env.auditLog.entries))
	}
	first, second := env.auditLog.entries[0], env.auditLog.entries[1]
	if first.Action != "incident.alert" || first.PlaceID != "place-1" || first.AccountID != "acct-1" {
		t.Fatalf("first entry = %+v", first)
	}
	if second.Action != "incident.cancel" || second.Actor != "users/alice" {
		t.Fatalf("second entry = %+v", second)
	}
	if second.ResourceID == "" {
		t.Fatal("cancel entry has no resource id")
	}
}

func TestHandler_InvalidAlertType(t *testing.T) {
	env := newHandlerEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/places/place-1/incidents/alert", alertRequest{AlertType: "LASER"}, "acct-1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandler_UnknownPlace(t *testing.T) {
	env := newHandlerEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/places/place-9/incidents/current", nil, "acct-1")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandler_ForeignAccountForbidden(t *testing.T) {
	env := newHandlerEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/places/place-1/incidents/current", nil, "acct-other")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestHandler_CancelNoIncident(t *testing.T) {
	env := newHandlerEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/places/place-1/incidents/cancel", cancelRequest{}, "acct-1")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandler_MonitoringState(t *testing.T) {
	env := newHandlerEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/places/place-1/incidents/alert", alertRequest{AlertType: "SMOKE"}, "acct-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("alert status = %d", rec.Code)
	}
	var created map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &created)
	_, id, _ := incident.ParseAddress(created["address"])

	rec = env.do(t, http.MethodPost, "/api/v1/places/place-1/incidents/"+id+"/monitoring", map[string]string{"state": "DISPATCHED"}, "acct-1")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("monitoring status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/v1/places/place-1/incidents/"+id+"/monitoring", map[string]string{"state": "EN_ROUTE"}, "acct-1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid monitoring status = %d, want 400", rec.Code)
	}
}

func TestHandler_ExportCSV(t *testing.T) {
	env := newHandlerEnv(t)
	if rec := env.do(t, http.MethodPost, "/api/v1/places/place-1/incidents/alert", alertRequest{AlertType: "SECURITY"}, "acct-1"); rec.Code != http.StatusOK {
		t.Fatalf("alert status = %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/places/place-1/incidents/export.csv", nil, "acct-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type = %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d, want header plus one row", len(lines))
	}
	if !strings.Contains(lines[1], "SECURITY") {
		t.Fatalf("csv row missing alert type: %q", lines[1])
	}
}

func TestStream_BroadcastFiltersByPlace(t *testing.T) {
	stream := NewStream(nil, nil)
	all := stream.register("")
	filtered := stream.register("place-2")
	defer stream.unregister(all)
	defer stream.unregister(filtered)

	err := stream.onEvent(context.Background(), events.IncidentAdded{
		PlaceID:  "place-1",
		Incident: incident.Incident{ID: "inc-1", PlaceID: "place-1"},
	})
	if err != nil {
		t.Fatalf("onEvent: %v", err)
	}

	select {
	case msg := <-all:
		if msg.kind != "incident.added" || msg.placeID != "place-1" {
			t.Fatalf("message = %+v", msg)
		}
	default:
		t.Fatal("unfiltered client received nothing")
	}
	select {
	case msg := <-filtered:
		t.Fatalf("filtered client received %+v", msg)
	default:
	}
}
