package sdk

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"reputationkit/api/httpapi"
	"reputationkit/core"
	"reputationkit/engine"
	"reputationkit/gamify"
	"reputationkit/leaderboard"
	"reputationkit/realtime"
)

type testServer struct {
	*httptest.Server
	hub *realtime.Hub
	svc *engine.Service
}

func newTestServer(t *testing.T, opts httpapi.Options) *testServer {
	t.Helper()
	hub := realtime.NewHub()
	svc, err := gamify.New(gamify.WithRealtime(hub), gamify.WithDispatchMode(engine.DispatchSync))
	if err != nil {
		t.Fatal(err)
	}
	opts.PathPrefix = "/api"
	srv := httptest.NewServer(httpapi.NewMux(svc, hub, opts))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, hub: hub, svc: svc}
}

func TestClient_RoundTrip(t *testing.T) {
	srv := newTestServer(t, httpapi.Options{APIKeys: []string{"k1"}})
	client, err := NewClient(srv.URL+"/api", WithAPIKey("k1"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	alice, err := client.Register(ctx, "alice", "")
	if err != nil || alice.Snapshot.PointsTotal != 50 {
		t.Fatalf("register: %+v err=%v", alice, err)
	}
	bob, err := client.Register(ctx, "bob", alice.Snapshot.ReferralCode)
	if err != nil || bob.Snapshot.ReferredBy == nil || bob.ReferralError != "" {
		t.Fatalf("register with referral: %+v err=%v", bob, err)
	}
	if _, err := client.Register(ctx, "alice", ""); !errors.Is(err, core.ErrUserExists) {
		t.Fatalf("want ErrUserExists, got %v", err)
	}

	m, err := client.RecordActivity(ctx, "bob", core.Activity{Action: core.ActionMovieRated})
	if err != nil || m.Delta.PointsDelta != 10 || m.Snapshot.PointsTotal != 60 {
		t.Fatalf("record: %+v err=%v", m.Delta, err)
	}
	if _, err := client.RecordActivity(ctx, "bob", core.Activity{Action: core.ActionReferralRedeemed}); !errors.Is(err, core.ErrSystemAction) {
		t.Fatalf("want ErrSystemAction, got %v", err)
	}

	m, err = client.Spend(ctx, "bob", 25, "frame")
	if err != nil || m.Snapshot.PointsAvailable != 35 {
		t.Fatalf("spend: %+v err=%v", m.Snapshot, err)
	}
	if _, err := client.Spend(ctx, "bob", 1000, ""); !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("want ErrInsufficientBalance, got %v", err)
	}

	snap, err := client.GetUser(ctx, "alice")
	if err != nil || snap.PointsTotal != 150 {
		t.Fatalf("get user: %+v err=%v", snap, err)
	}
	if _, err := client.GetUser(ctx, "nobody"); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("want ErrUserNotFound, got %v", err)
	}

	board, err := client.Leaderboard(ctx, leaderboard.MetricPointsTotal, 1)
	if err != nil || len(board.Entries) != 1 || board.Entries[0].UserID != "alice" {
		t.Fatalf("leaderboard: %+v err=%v", board, err)
	}
	if _, err := client.Leaderboard(ctx, "karma", 1); !errors.Is(err, core.ErrUnknownMetric) {
		t.Fatalf("want ErrUnknownMetric, got %v", err)
	}

	lvl, err := client.Level(ctx, 100)
	if err != nil || lvl.Level != 2 {
		t.Fatalf("level: %+v err=%v", lvl, err)
	}

	health, err := client.Health(ctx)
	if err != nil || health.Status != "healthy" {
		t.Fatalf("health: %+v err=%v", health, err)
	}
}

func TestClient_Unauthorized(t *testing.T) {
	srv := newTestServer(t, httpapi.Options{APIKeys: []string{"k1"}})
	client, _ := NewClient(srv.URL + "/api")
	_, err := client.GetUser(context.Background(), "alice")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 401 || apiErr.Code != "unauthorized" {
		t.Fatalf("want 401 APIError, got %v", err)
	}
}

func TestClient_EmptyUserID(t *testing.T) {
	client, _ := NewClient("http://localhost:0/api")
	if _, err := client.GetUser(context.Background(), " "); !errors.Is(err, ErrEmptyUserID) {
		t.Fatalf("want ErrEmptyUserID, got %v", err)
	}
	if _, err := NewClient(""); err == nil {
		t.Fatal("empty base URL must fail")
	}
}

func TestClient_SubscribeEvents(t *testing.T) {
	srv := newTestServer(t, httpapi.Options{})
	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := client.SubscribeEvents(ctx, EventFilter{UserID: "alice", Types: []core.EventType{core.EventPointsAdded}})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	for srv.hub.Subscribers() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("subscription never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, err := srv.svc.Register(ctx, "bob", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := srv.svc.Register(ctx, "alice", ""); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-events:
		if evt.Type != core.EventPointsAdded || evt.UserID != "alice" || evt.Delta != 50 {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestDeriveWSURL(t *testing.T) {
	if got := deriveWSURL("https://rep.example/api/"); got != "wss://rep.example/api/ws" {
		t.Fatalf("got %s", got)
	}
	if got := deriveWSURL("http://localhost:8080"); got != "ws://localhost:8080/ws" {
		t.Fatalf("got %s", got)
	}
}
