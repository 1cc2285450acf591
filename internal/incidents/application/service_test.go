package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"homehub-cloud/internal/incidents/application/events"
	incident "homehub-cloud/internal/incidents/domain"
	"homehub-cloud/internal/places"
)

func TestAddPreAlert_OpensAndJoins(t *testing.T) {
	env := newTestEnv()
	svc := env.newPlatform(t)
	place := testPlace("place-1")
	ctx := context.Background()

	prealertEnd := env.clock.Now().Add(90 * time.Second)
	addr, err := svc.AddPreAlert(ctx, place, incident.AlertSecurity, prealertEnd, []incident.Trigger{
		{At: env.clock.Now(), Event: "MOTION", Device: "devices/door-1"},
	})
	if err != nil {
		t.Fatalf("AddPreAlert: %v", err)
	}

	inc := env.mustIncident(t, place.PlaceID, addr)
	if inc.AlertState != incident.StatePrealert {
		t.Fatalf("alert state = %s, want PREALERT", inc.AlertState)
	}
	if inc.PlatformState != incident.StatePrealert {
		t.Fatalf("platform state = %s, want PREALERT", inc.PlatformState)
	}
	if !inc.Monitored {
		t.Fatal("security prealert at a monitored place should be monitored")
	}
	if !inc.PrealertEndTime.Equal(prealertEnd) {
		t.Fatalf("prealert end = %v, want %v", inc.PrealertEndTime, prealertEnd)
	}
	if got := env.pointer(t, place.PlaceID); got != addr {
		t.Fatalf("current incident pointer = %q, want %q", got, addr)
	}

	// A second prealert while one is open joins it unchanged.
	again, err := svc.AddPreAlert(ctx, place, incident.AlertSmoke, prealertEnd, nil)
	if err != nil {
		t.Fatalf("second AddPreAlert: %v", err)
	}
	if again != addr {
		t.Fatalf("joined address = %q, want %q", again, addr)
	}
	joined := env.mustIncident(t, place.PlaceID, addr)
	if joined.HasAlert(incident.AlertSmoke) {
		t.Fatal("joining a prealert must not change the incident")
	}

	var added int
	for _, ev := range env.bus.all() {
		if _, ok := ev.(events.IncidentAdded); ok {
			added++
		}
	}
	if added != 1 {
		t.Fatalf("IncidentAdded events = %d, want 1", added)
	}
}

func TestAddPreAlert_RejectsUnknownAlertType(t *testing.T) {
	env := newTestEnv()
	svc := env.newPlatform(t)

	_, err := svc.AddPreAlert(context.Background(), testPlace("place-1"), "LASER", time.Time{}, nil)
	if !errors.Is(err, incident.ErrInvalidParam) {
		t.Fatalf("err = %v, want ErrInvalidParam", err)
	}
}

func TestAddAlert_EscalatesPrealert(t *testing.T) {
	env := newTestEnv()
	svc := env.newPlatform(t)
	place := testPlace("place-1")
	ctx := context.Background()

	addr, err := svc.AddPreAlert(ctx, place, incident.AlertSecurity, env.clock.Now().Add(time.Minute), nil)
	if err != nil {
		t.Fatalf("AddPreAlert: %v", err)
	}
	env.clock.Advance(10 * time.Second)

	escalated, err := svc.AddAlert(ctx, place, incident.AlertSmoke, nil, false)
	if err != nil {
		t.Fatalf("AddAlert: %v", err)
	}
	if escalated != addr {
		t.Fatalf("escalation opened a new incident: %q != %q", escalated, addr)
	}

	inc := env.mustIncident(t, place.PlaceID, addr)
	if inc.AlertState != incident.StateAlert {
		t.Fatalf("alert state = %s, want ALERT", inc.AlertState)
	}
	if inc.Alert != incident.AlertSecurity || !inc.HasAlert(incident.AlertSmoke) {
		t.Fatalf("alert set = %v, want SECURITY primary plus SMOKE", inc.Alerts())
	}

	// Repeated alerts never produce a second ALERT tracker entry.
	if _, err := svc.AddAlert(ctx, place, incident.AlertSecurity, nil, false); err != nil {
		t.Fatalf("repeat AddAlert: %v", err)
	}
	inc = env.mustIncident(t, place.PlaceID, addr)
	alertEntries := 0
	for _, e := range inc.TrackerEvents {
		if e.State == incident.TrackerAlert {
			alertEntries++
		}
	}
	if alertEntries != 1 {
		t.Fatalf("ALERT tracker entries = %d, want 1", alertEntries)
	}
}

func TestAddAlert_RejectedWhileCancelling(t *testing.T) {
	env := newTestEnv()
	svc := env.newPlatform(t)
	place := testPlace("place-1")
	place.Monitored = false
	ctx := context.Background()

	addr, err := svc.AddAlert(ctx, place, incident.AlertSecurity, nil, false)
	if err != nil {
		t.Fatalf("AddAlert: %v", err)
	}
	_, id, _ := incident.ParseAddress(addr)
	cur, _ := env.store.FindByID(ctx, place.PlaceID, id)
	wedged := incident.From(*cur).WithAlertState(incident.StateCancelling).Build()
	if err := env.store.Upsert(ctx, wedged); err != nil {
		t.Fatalf("seed cancelling incident: %v", err)
	}

	_, err = svc.AddAlert(ctx, place, incident.AlertSmoke, nil, false)
	if !errors.Is(err, incident.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestUpdateIncident_RequiresOpenIncident(t *testing.T) {
	env := newTestEnv()
	svc := env.newPlatform(t)

	err := svc.UpdateIncident(context.Background(), testPlace("place-1"), nil, true)
	if !errors.Is(err, incident.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateIncident_DeduplicatesNotification(t *testing.T) {
	env := newTestEnv()
	svc := env.newPlatform(t)
	place := testPlace("place-1")
	ctx := context.Background()

	first := incident.Trigger{At: env.clock.Now(), Event: "GLASS_BREAK", Device: "devices/window-2"}
	if _, err := svc.AddAlert(ctx, place, incident.AlertSecurity, []incident.Trigger{first}, true); err != nil {
		t.Fatalf("AddAlert: %v", err)
	}
	if got := env.station.addCount(); got != 1 {
		t.Fatalf("station alarm requests after AddAlert = %d, want 1", got)
	}

	// The update that follows the alert carries the same trigger; its
	// notification already went out.
	if err := svc.UpdateIncident(ctx, place, []incident.Trigger{first}, true); err != nil {
		t.Fatalf("UpdateIncident: %v", err)
	}
	if got := env.station.addCount(); got != 1 {
		t.Fatalf("station alarm requests after duplicate update = %d, want 1", got)
	}

	env.clock.Advance(5 * time.Second)
	second := incident.Trigger{At: env.clock.Now(), Event: "MOTION", Device: "devices/hall-1"}
	if err := svc.UpdateIncident(ctx, place, []incident.Trigger{second}, true); err != nil {
		t.Fatalf("UpdateIncident with new trigger: %v", err)
	}
	if got := env.station.addCount(); got != 2 {
		t.Fatalf("station alarm requests after new trigger = %d, want 2", got)
	}

	triggers, _, _ := env.history.counts()
	if triggers != 3 {
		t.Fatalf("history trigger callbacks = %d, want 3", triggers)
	}
}

func TestVerify_EscalatesPrealertOnce(t *testing.T) {
	env := newTestEnv()
	svc := env.newPlatform(t)
	place := testPlace("place-1")
	ctx := context.Background()

	addr, err := svc.AddPreAlert(ctx, place, incident.AlertSecurity, env.clock.Now().Add(time.Minute), nil)
	if err != nil {
		t.Fatalf("AddPreAlert: %v", err)
	}

	verifiedAt, err := svc.Verify(ctx, place, addr, "users/alice")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verifiedAt == nil {
		t.Fatal("first verification must return a timestamp")
	}

	inc := env.mustIncident(t, place.PlaceID, addr)
	if !inc.Confirmed {
		t.Fatal("incident not confirmed")
	}
	if inc.AlertState != incident.StateAlert || inc.PlatformState != incident.StateAlert {
		t.Fatalf("states = %s/%s, want ALERT/ALERT", inc.AlertState, inc.PlatformState)
	}
	if got := env.station.addCount(); got != 1 {
		t.Fatalf("station alarm requests = %d, want 1", got)
	}
	if !env.station.addReqs[0].Verified {
		t.Fatal("station alarm request must be flagged verified")
	}

	again, err := svc.Verify(ctx, place, addr, "users/alice")
	if err != nil {
		t.Fatalf("second Verify: %v", err)
	}
	if again != nil {
		t.Fatal("second verification must not return a new timestamp")
	}
}

func TestVerify_RejectsCompletedIncident(t *testing.T) {
	env := newTestEnv()
	svc := env.newPlatform(t)
	place := testPlace("place-1")
	place.Monitored = false
	ctx := context.Background()

	addr, err := svc.AddAlert(ctx, place, incident.AlertSecurity, nil, false)
	if err != nil {
		t.Fatalf("AddAlert: %v", err)
	}
	if _, err := svc.Cancel(ctx, place, "users/alice", "app"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	_, err = svc.Verify(ctx, place, addr, "users/alice")
	if !errors.Is(err, incident.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestCancel_UnmonitoredCompletesImmediately(t *testing.T) {
	env := newTestEnv()
	svc := env.newPlatform(t)
	place := testPlace("place-1")
	place.Monitored = false
	ctx := context.Background()

	addr, err := svc.AddAlert(ctx, place, incident.AlertSecurity, nil, false)
	if err != nil {
		t.Fatalf("AddAlert: %v", err)
	}

	if _, err := svc.Cancel(ctx, place, "users/alice", "app"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	inc := env.mustIncident(t, place.PlaceID, addr)
	if inc.AlertState != incident.StateComplete {
		t.Fatalf("alert state = %s, want COMPLETE", inc.AlertState)
	}
	if inc.PlatformState != incident.StateComplete {
		t.Fatalf("platform state = %s, want COMPLETE", inc.PlatformState)
	}
	if inc.CancelledBy != "users/alice" {
		t.Fatalf("cancelled by = %q", inc.CancelledBy)
	}
	if inc.EndTime.IsZero() {
		t.Fatal("end time not set")
	}
	if !inc.HasTracker(incident.TrackerCancelled) {
		t.Fatal("missing CANCELLED tracker entry")
	}
	if got := env.pointer(t, place.PlaceID); got != "" {
		t.Fatalf("current incident pointer = %q, want cleared", got)
	}

	var completed int
	for _, ev := range env.bus.all() {
		if _, ok := ev.(events.IncidentCompleted); ok {
			completed++
		}
	}
	if completed != 1 {
		t.Fatalf("IncidentCompleted events = %d, want 1", completed)
	}
	_, cancelled, _ := env.history.counts()
	if cancelled != 1 {
		t.Fatalf("history cancel callbacks = %d, want 1", cancelled)
	}
}

func TestCancel_NoIncident(t *testing.T) {
	env := newTestEnv()
	svc := env.newPlatform(t)

	_, err := svc.Cancel(context.Background(), testPlace("place-1"), "users/alice", "app")
	if !errors.Is(err, incident.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCancel_CompletedIncidentIsNoOp(t *testing.T) {
	env := newTestEnv()
	svc := env.newPlatform(t)
	place := testPlace("place-1")
	place.Monitored = false
	ctx := context.Background()

	addr, err := svc.AddAlert(ctx, place, incident.AlertSecurity, nil, false)
	if err != nil {
		t.Fatalf("AddAlert: %v", err)
	}
	if _, err := svc.Cancel(ctx, place, "users/alice", "app"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	got, err := svc.CancelAddress(ctx, place, addr, "users/bob", "app")
	if err != nil {
		t.Fatalf("repeat CancelAddress: %v", err)
	}
	if got == nil || got.AlertState != incident.StateComplete {
		t.Fatalf("repeat cancel returned %+v, want COMPLETE incident", got)
	}
	if got.CancelledBy != "users/alice" {
		t.Fatalf("cancelled by = %q, want original canceller", got.CancelledBy)
	}
}

func TestCancel_RepairsStalePointer(t *testing.T) {
	env := newTestEnv()
	svc := env.newPlatform(t)
	place := testPlace("place-1")
	ctx := context.Background()

	stale := incident.AddressFor(place.PlaceID, "ghost-1")
	if err := env.vars.Set(ctx, place.PlaceID, places.VarCurrentIncident, stale); err != nil {
		t.Fatalf("seed stale pointer: %v", err)
	}

	got, err := svc.Cancel(ctx, place, "users/alice", "app")
	if err != nil {
		t.Fatalf("Cancel on stale pointer: %v", err)
	}
	if got != nil {
		t.Fatalf("repair returned incident %+v, want nil", got)
	}
	if p := env.pointer(t, place.PlaceID); p != "" {
		t.Fatalf("pointer = %q, want cleared", p)
	}

	var completed *events.IncidentCompleted
	for _, ev := range env.bus.all() {
		if c, ok := ev.(events.IncidentCompleted); ok {
			completed = &c
		}
	}
	if completed == nil {
		t.Fatal("repair must synthesize an IncidentCompleted event")
	}
	if completed.IncidentID != "ghost-1" || completed.Incident.AlertState != incident.StateComplete {
		t.Fatalf("synthesized completion = %+v", completed)
	}
}

func TestOnMonitoringStateChanged(t *testing.T) {
	env := newTestEnv()
	svc := env.newPlatform(t)
	place := testPlace("place-1")
	ctx := context.Background()

	addr, err := svc.AddAlert(ctx, place, incident.AlertSmoke, nil, false)
	if err != nil {
		t.Fatalf("AddAlert: %v", err)
	}

	if err := svc.OnMonitoringStateChanged(ctx, place, addr, "EN_ROUTE"); !errors.Is(err, incident.ErrInvalidParam) {
		t.Fatalf("unknown state err = %v, want ErrInvalidParam", err)
	}

	if err := svc.OnMonitoringStateChanged(ctx, place, addr, string(incident.MonitoringDispatched)); err != nil {
		t.Fatalf("OnMonitoringStateChanged: %v", err)
	}
	inc := env.mustIncident(t, place.PlaceID, addr)
	if inc.MonitoringState != incident.MonitoringDispatched {
		t.Fatalf("monitoring state = %s, want DISPATCHED", inc.MonitoringState)
	}
	if !inc.HasTracker(incident.TrackerDispatched) {
		t.Fatal("missing DISPATCHED tracker entry")
	}

	done := incident.From(inc).WithAlertState(incident.StateComplete).Build()
	if err := env.store.Upsert(ctx, done); err != nil {
		t.Fatalf("seed complete incident: %v", err)
	}
	err = svc.OnMonitoringStateChanged(ctx, place, addr, string(incident.MonitoringFailed))
	if !errors.Is(err, incident.ErrInvalidState) {
		t.Fatalf("terminal incident err = %v, want ErrInvalidState", err)
	}
}

func TestOnHubConnectivityChanged(t *testing.T) {
	env := newTestEnv()
	svc := env.newPlatform(t)
	place := testPlace("place-1")
	ctx := context.Background()

	// No open incident: the variable moves, history stays quiet.
	if err := svc.OnHubConnectivityChanged(ctx, place, true); err != nil {
		t.Fatalf("OnHubConnectivityChanged: %v", err)
	}
	online, _ := env.vars.Get(ctx, place.PlaceID, places.VarHubOnline)
	if online != "true" {
		t.Fatalf("hub online variable = %q, want true", online)
	}
	_, _, connectivity := env.history.counts()
	if connectivity != 0 {
		t.Fatalf("connectivity history entries = %d, want 0", connectivity)
	}

	if _, err := svc.AddAlert(ctx, place, incident.AlertSecurity, nil, false); err != nil {
		t.Fatalf("AddAlert: %v", err)
	}
	if err := svc.OnHubConnectivityChanged(ctx, place, false); err != nil {
		t.Fatalf("OnHubConnectivityChanged offline: %v", err)
	}
	online, _ = env.vars.Get(ctx, place.PlaceID, places.VarHubOnline)
	if online != "" {
		t.Fatalf("hub online variable = %q, want unset", online)
	}
	_, _, connectivity = env.history.counts()
	if connectivity != 1 {
		t.Fatalf("connectivity history entries = %d, want 1", connectivity)
	}
}
