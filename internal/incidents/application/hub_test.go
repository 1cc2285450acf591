package application

import (
	"context"
	"errors"
	"testing"
	"time"

	incident "homehub-cloud/internal/incidents/domain"
	"homehub-cloud/internal/places"
)

func hubPlace(id string) places.Context {
	place := testPlace(id)
	place.AlarmProvider = places.ProviderHub
	return place
}

func TestHubAddAlert_UsesHubIdentity(t *testing.T) {
	env := newTestEnv()
	model := &stubHubModel{}
	svc := env.newHub(t, model)
	place := hubPlace("place-1")
	ctx := context.Background()

	hubAddr := incident.AddressFor(place.PlaceID, "hub-inc-7")
	model.set(hubAddr)

	addr, err := svc.AddAlert(ctx, place, incident.AlertSecurity, nil, false)
	if err != nil {
		t.Fatalf("AddAlert: %v", err)
	}
	if addr != hubAddr {
		t.Fatalf("address = %q, want hub-provided %q", addr, hubAddr)
	}

	inc := env.mustIncident(t, place.PlaceID, addr)
	if !inc.HubAlarm {
		t.Fatal("hub incident not flagged hub_alarm")
	}
	if inc.HubState != incident.StateAlert {
		t.Fatalf("hub state = %s, want ALERT", inc.HubState)
	}
}

func TestHubAddAlert_NoHubIncident(t *testing.T) {
	env := newTestEnv()
	svc := env.newHub(t, &stubHubModel{})

	_, err := svc.AddAlert(context.Background(), hubPlace("place-1"), incident.AlertSecurity, nil, false)
	if !errors.Is(err, incident.ErrNoHubIncident) {
		t.Fatalf("err = %v, want ErrNoHubIncident", err)
	}
}

func TestHubVerify_EscalatesPlatformSideOnly(t *testing.T) {
	env := newTestEnv()
	model := &stubHubModel{}
	svc := env.newHub(t, model)
	place := hubPlace("place-1")
	ctx := context.Background()

	hubAddr := incident.AddressFor(place.PlaceID, "hub-inc-7")
	model.set(hubAddr)
	model.triggers = []incident.Trigger{
		{At: env.clock.Now().Add(-10 * time.Second), Event: "MOTION", Device: "devices/hall-1"},
	}

	addr, err := svc.AddPreAlert(ctx, place, incident.AlertSecurity, env.clock.Now().Add(time.Minute), nil)
	if err != nil {
		t.Fatalf("AddPreAlert: %v", err)
	}

	verifiedAt, err := svc.Verify(ctx, place, addr, "users/alice")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verifiedAt == nil {
		t.Fatal("verification must return a timestamp")
	}

	// The hub has not reported ALERT yet: the overall and platform states
	// advance, the hub sub-state stays where the hub left it.
	inc := env.mustIncident(t, place.PlaceID, addr)
	if inc.AlertState != incident.StateAlert {
		t.Fatalf("alert state = %s, want ALERT", inc.AlertState)
	}
	if inc.PlatformState != incident.StateAlert {
		t.Fatalf("platform state = %s, want ALERT", inc.PlatformState)
	}
	if inc.HubState != incident.StatePrealert {
		t.Fatalf("hub state = %s, want PREALERT", inc.HubState)
	}
	if env.station.addCount() != 1 {
		t.Fatalf("station alarm requests = %d, want 1", env.station.addCount())
	}
}

func TestHubCancel_WaitsForHubThenCompletes(t *testing.T) {
	env := newTestEnv()
	model := &stubHubModel{}
	svc := env.newHub(t, model)
	place := hubPlace("place-1")
	place.Monitored = false
	ctx := context.Background()

	hubAddr := incident.AddressFor(place.PlaceID, "hub-inc-7")
	model.set(hubAddr)
	if err := env.vars.Set(ctx, place.PlaceID, places.VarHubIncident, hubAddr); err != nil {
		t.Fatalf("seed hub incident variable: %v", err)
	}

	addr, err := svc.AddAlert(ctx, place, incident.AlertSecurity, nil, false)
	if err != nil {
		t.Fatalf("AddAlert: %v", err)
	}

	// The hub reports CANCELLING but still holds the incident open.
	cur := env.mustIncident(t, place.PlaceID, addr)
	reported := incident.From(cur).WithHubState(incident.StateCancelling).Build()
	if err := env.store.Upsert(ctx, reported); err != nil {
		t.Fatalf("seed hub cancelling: %v", err)
	}

	got, err := svc.Cancel(ctx, place, "users/alice", "app")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.AlertState != incident.StateCancelling {
		t.Fatalf("state = %s, want CANCELLING while hub still active", got.AlertState)
	}
	if got.PlatformState == incident.StateComplete {
		t.Fatal("platform side must not complete while waiting on the hub")
	}

	// The hub finishes: its mirror clears and the next pass completes.
	if err := env.vars.Set(ctx, place.PlaceID, places.VarHubIncident, ""); err != nil {
		t.Fatalf("clear hub incident variable: %v", err)
	}
	model.set("")

	if _, err := svc.CancelAddress(ctx, place, addr, "users/alice", "app"); err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	inc := env.mustIncident(t, place.PlaceID, addr)
	if inc.AlertState != incident.StateComplete {
		t.Fatalf("alert state = %s, want COMPLETE", inc.AlertState)
	}
	if inc.HubState != incident.StateComplete {
		t.Fatalf("hub state = %s, want COMPLETE", inc.HubState)
	}
	if env.pointer(t, place.PlaceID) != "" {
		t.Fatal("pointer not cleared after completion")
	}
}

func TestOnHubStateReported(t *testing.T) {
	env := newTestEnv()
	model := &stubHubModel{}
	svc := env.newHub(t, model)
	place := hubPlace("place-1")
	place.Monitored = false
	ctx := context.Background()

	hubAddr := incident.AddressFor(place.PlaceID, "hub-inc-7")
	model.set(hubAddr)
	addr, err := svc.AddAlert(ctx, place, incident.AlertSecurity, nil, false)
	if err != nil {
		t.Fatalf("AddAlert: %v", err)
	}

	if err := svc.OnHubStateReported(ctx, place, addr, "DISARMED"); !errors.Is(err, incident.ErrInvalidParam) {
		t.Fatalf("unknown state err = %v, want ErrInvalidParam", err)
	}

	// The hub starts cancelling locally: its sub-state and the overall
	// state both move, and the hub is recorded as the canceller.
	if err := svc.OnHubStateReported(ctx, place, addr, string(incident.StateCancelling)); err != nil {
		t.Fatalf("OnHubStateReported: %v", err)
	}
	inc := env.mustIncident(t, place.PlaceID, addr)
	if inc.HubState != incident.StateCancelling || inc.AlertState != incident.StateCancelling {
		t.Fatalf("states = %s/%s, want CANCELLING/CANCELLING", inc.AlertState, inc.HubState)
	}
	if inc.CancelledBy != "hub" {
		t.Fatalf("cancelled by = %q, want hub", inc.CancelledBy)
	}

	// A stale report cannot regress the sub-state.
	if err := svc.OnHubStateReported(ctx, place, addr, string(incident.StateAlert)); err != nil {
		t.Fatalf("stale report: %v", err)
	}
	inc = env.mustIncident(t, place.PlaceID, addr)
	if inc.HubState != incident.StateCancelling {
		t.Fatalf("hub state regressed to %s", inc.HubState)
	}

	// Platform completes its side, then the hub's COMPLETE report finishes
	// the incident regardless of arrival order.
	done := incident.From(inc).WithPlatformState(incident.StateComplete).Build()
	if err := env.store.Upsert(ctx, done); err != nil {
		t.Fatalf("seed platform complete: %v", err)
	}
	if err := svc.OnHubStateReported(ctx, place, addr, string(incident.StateComplete)); err != nil {
		t.Fatalf("COMPLETE report: %v", err)
	}
	inc = env.mustIncident(t, place.PlaceID, addr)
	if inc.AlertState != incident.StateComplete || inc.HubState != incident.StateComplete {
		t.Fatalf("states = %s/%s, want COMPLETE/COMPLETE", inc.AlertState, inc.HubState)
	}
	if env.pointer(t, place.PlaceID) != "" {
		t.Fatal("pointer not cleared after hub completion")
	}
}

func TestHubCurrentAddress_FallsBackToPointer(t *testing.T) {
	env := newTestEnv()
	model := &stubHubModel{}
	svc := env.newHub(t, model)
	place := hubPlace("place-1")
	place.Monitored = false
	ctx := context.Background()

	hubAddr := incident.AddressFor(place.PlaceID, "hub-inc-7")
	model.set(hubAddr)
	addr, err := svc.AddAlert(ctx, place, incident.AlertSecurity, nil, false)
	if err != nil {
		t.Fatalf("AddAlert: %v", err)
	}

	// The hub model attribute drops out momentarily; the stored pointer
	// still resolves the incident.
	model.set("")
	cur, err := svc.GetCurrentIncident(ctx, place)
	if err != nil {
		t.Fatalf("GetCurrentIncident: %v", err)
	}
	if cur == nil || cur.Address() != addr {
		t.Fatalf("current = %+v, want %q", cur, addr)
	}
}
