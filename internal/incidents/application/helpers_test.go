package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"homehub-cloud/internal/config"
	incident "homehub-cloud/internal/incidents/domain"
	imemory "homehub-cloud/internal/incidents/infrastructure/memory"
	"homehub-cloud/internal/places"
	pmemory "homehub-cloud/internal/places/infrastructure/memory"
	"homehub-cloud/internal/station"
)

func testIncidentConfig() config.Incidents {
	return config.Incidents{
		AlertTimeoutSecs:        90,
		CancelTimeoutSecs:       300,
		CancelCacheShards:       4,
		CancelCacheSweepSecs:    10,
		MaxIncidentsPerPlace:    100,
		MockAlertTimeoutSecs:    30,
		MockDispatchTimeoutSecs: 45,
	}
}

func testPlace(id string) places.Context {
	return places.Context{
		PlaceID:       id,
		AccountID:     "acct-1",
		Population:    "household",
		Monitored:     true,
		AlarmProvider: places.ProviderPlatform,
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingBus struct {
	mu     sync.Mutex
	events []any
}

func (b *recordingBus) Publish(_ context.Context, event any) error {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
	return nil
}

func (b *recordingBus) all() []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]any(nil), b.events...)
}

type recordingHistory struct {
	mu           sync.Mutex
	triggers     int
	cancelled    int
	connectivity int
}

func (h *recordingHistory) OnTriggersAdded(_ context.Context, _, _, _ string, _ []map[string]any) {
	h.mu.Lock()
	h.triggers++
	h.mu.Unlock()
}

func (h *recordingHistory) OnCancelled(_ context.Context, _, _, _, _, _ string) {
	h.mu.Lock()
	h.cancelled++
	h.mu.Unlock()
}

func (h *recordingHistory) OnHubConnectivityChanged(_ context.Context, _, _, _ string, _ bool) {
	h.mu.Lock()
	h.connectivity++
	h.mu.Unlock()
}

func (h *recordingHistory) counts() (triggers, cancelled, connectivity int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.triggers, h.cancelled, h.connectivity
}

type fakeStation struct {
	mu         sync.Mutex
	addReqs    []station.AddAlarmRequest
	cancelReqs []station.CancelAlarmRequest
	addErr     error
	cancelErr  error
}

func (f *fakeStation) AddAlarm(_ context.Context, req station.AddAlarmRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.addReqs = append(f.addReqs, req)
	return nil
}

func (f *fakeStation) CancelAlarm(_ context.Context, req station.CancelAlarmRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelReqs = append(f.cancelReqs, req)
	return nil
}

func (f *fakeStation) addCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.addReqs)
}

func (f *fakeStation) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancelReqs)
}

func (f *fakeStation) lastCancel() station.CancelAlarmRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelReqs[len(f.cancelReqs)-1]
}

type stubHubModel struct {
	mu       sync.Mutex
	addr     string
	triggers []incident.Trigger
	err      error
}

func (m *stubHubModel) CurrentIncidentAddress(context.Context, string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr, m.err
}

func (m *stubHubModel) ActiveTriggers(context.Context, string) ([]incident.Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]incident.Trigger(nil), m.triggers...), nil
}

func (m *stubHubModel) set(addr string) {
	m.mu.Lock()
	m.addr = addr
	m.mu.Unlock()
}

type testEnv struct {
	store   *imemory.Repository
	vars    *pmemory.Variables
	bus     *recordingBus
	history *recordingHistory
	station *fakeStation
	clock   *fakeClock
}

func newTestEnv() *testEnv {
	return &testEnv{
		store:   imemory.NewRepository(),
		vars:    pmemory.NewVariables(),
		bus:     &recordingBus{},
		history: &recordingHistory{},
		station: &fakeStation{},
		clock:   newFakeClock(),
	}
}

func (e *testEnv) newPlatform(t *testing.T) *Platform {
	t.Helper()
	p, err := NewPlatform(e.store, e.vars, e.history, e.bus, e.station, testIncidentConfig(), nil, WithClock(e.clock))
	if err != nil {
		t.Fatalf("NewPlatform: %v", err)
	}
	return p
}

func (e *testEnv) newHub(t *testing.T, model HubModel) *Hub {
	t.Helper()
	h, err := NewHub(e.store, e.vars, e.history, e.bus, e.station, model, testIncidentConfig(), nil, WithClock(e.clock))
	if err != nil {
		t.Fatalf("NewHub: %v", err)
	}
	return h
}

func (e *testEnv) newMock(t *testing.T) *Mock {
	t.Helper()
	m, err := NewMock(e.store, e.vars, e.history, e.bus, testIncidentConfig(), nil, WithClock(e.clock))
	if err != nil {
		t.Fatalf("NewMock: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func (e *testEnv) mustIncident(t *testing.T, placeID, addr string) incident.Incident {
	t.Helper()
	_, id, err := incident.ParseAddress(addr)
	if err != nil {
		t.Fatalf("parse address %q: %v", addr, err)
	}
	inc, err := e.store.FindByID(context.Background(), placeID, id)
	if err != nil {
		t.Fatalf("find incident %q: %v", addr, err)
	}
	return *inc
}

func (e *testEnv) pointer(t *testing.T, placeID string) string {
	t.Helper()
	value, err := e.vars.Get(context.Background(), placeID, places.VarCurrentIncident)
	if err != nil {
		t.Fatalf("read current incident pointer: %v", err)
	}
	return value
}
