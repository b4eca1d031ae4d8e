package gamify

import (
	"context"
	"testing"
	"time"

	mem "reputationkit/adapters/memory"
	"reputationkit/analytics"
	"reputationkit/core"
	"reputationkit/engine"
	"reputationkit/leaderboard"
	"reputationkit/realtime"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestNewDefaultsAndOptions(t *testing.T) {
	hub := realtime.NewHub()
	metrics := analytics.NewMetrics()
	board := leaderboard.NewSkipList(leaderboard.MetricPointsTotal)
	svc, err := New(
		WithRealtime(hub),
		WithStorage(mem.New()),
		WithDispatchMode(engine.DispatchSync),
		WithClock(core.FixedClock{T: now}),
		WithHooks(metrics),
		WithBoard(board),
		WithReferrerCache(16),
	)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_, ch := hub.Subscribe(8, realtime.Filter{UserID: "alice"})

	snap, err := svc.Register(ctx, "alice", "")
	if err != nil || snap.PointsTotal != 50 {
		t.Fatalf("register total=%d err=%v", snap.PointsTotal, err)
	}

	// realtime bridge should receive the welcome bonus
	select {
	case ev := <-ch:
		if ev.UserID != "alice" || ev.Type != core.EventPointsAdded {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no realtime event")
	}
	if got := metrics.PointsAwardedOn("2026-03-02"); got != 50 {
		t.Fatalf("analytics saw %d points", got)
	}
	if e, ok := board.Get("alice"); !ok || e.Score != 50 {
		t.Fatalf("board entry %#v", e)
	}

	bob, err := svc.Register(ctx, "bob", snap.ReferralCode)
	if err != nil || bob.ReferredBy == nil {
		t.Fatalf("referral through cached lookup failed: %v", err)
	}
}

type explodingHook struct{}

func (explodingHook) OnEvent(core.Event) { panic("broken hook") }

func TestHooksShareOneBridge(t *testing.T) {
	metrics := analytics.NewMetrics()
	dau := analytics.NewDAU()
	svc, err := New(
		WithDispatchMode(engine.DispatchSync),
		WithClock(core.FixedClock{T: now}),
		WithHooks(explodingHook{}, metrics),
		WithHooks(dau),
	)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Register(context.Background(), "carol", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := metrics.PointsAwardedOn("2026-03-02"); got != 50 {
		t.Fatalf("metrics saw %d points", got)
	}
	if got := dau.Count("2026-03-02"); got != 1 {
		t.Fatalf("dau saw %d users", got)
	}
}

func TestDefaultsUseMemoryStorage(t *testing.T) {
	svc := MustNew(WithDispatchMode(engine.DispatchSync))
	defer svc.Close()
	ctx := context.Background()
	if _, err := svc.Register(ctx, "bob", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.Record(ctx, "bob", core.Activity{Action: core.ActionMovieRated}); err != nil {
		t.Fatalf("record: %v", err)
	}
	snap, err := svc.GetSnapshot(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if snap.PointsTotal != 60 {
		t.Fatalf("expected 60 points, got %d", snap.PointsTotal)
	}
}

func TestNewRejectsBadRuleset(t *testing.T) {
	rules := core.DefaultRuleset()
	rules.LevelThresholds = []int64{0, 10, 5}
	if _, err := New(WithRuleset(rules)); err == nil {
		t.Fatal("expected error for unsorted level thresholds")
	}
}
