package realtime

import (
	"context"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"reputationkit/core"
)

func TestHubFiltersByUserAndType(t *testing.T) {
	h := NewHub()
	_, all := h.Subscribe(8, Filter{})
	_, alice := h.Subscribe(8, Filter{UserID: "alice"})
	_, badges := h.Subscribe(8, Filter{Types: []core.EventType{core.EventBadgeAwarded}})

	ctx := context.Background()
	h.Broadcast(ctx, core.NewLevelUp("alice", 2, time.Time{}))
	h.Broadcast(ctx, core.NewBadgeAwarded("bob", core.EarnedBadge{Name: "critic"}))

	if len(all) != 2 || len(alice) != 1 || len(badges) != 1 {
		t.Fatalf("all=%d alice=%d badges=%d", len(all), len(alice), len(badges))
	}
	if ev := <-badges; ev.Badge != "critic" {
		t.Fatalf("unexpected event %#v", ev)
	}
}

func TestHubDropsWhenFull(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1, Filter{})
	h.Broadcast(context.Background(), core.NewLevelUp("u", 2, time.Time{}))
	h.Broadcast(context.Background(), core.NewLevelUp("u", 3, time.Time{}))
	if h.Dropped() != 1 {
		t.Fatalf("want 1 dropped got %d", h.Dropped())
	}
	h.Unsubscribe(id)
	<-ch
	if _, open := <-ch; open {
		t.Fatal("channel should be closed after unsubscribe")
	}
	if h.Subscribers() != 0 {
		t.Fatal("subscriber not removed")
	}
	// broadcasting after unsubscribe must not panic
	h.Broadcast(context.Background(), core.NewLevelUp("u", 4, time.Time{}))
}

func TestMarshalJSON(t *testing.T) {
	ev := core.NewPointsAdded("alice", core.ActionMovieRated, 10, 60, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var decoded map[string]any
	if err := json.Unmarshal(MarshalJSON(ev), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["type"] != "points_added" || decoded["user_id"] != "alice" || decoded["total"] != float64(60) {
		t.Fatalf("unexpected payload %v", decoded)
	}
}
