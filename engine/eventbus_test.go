package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"reputationkit/core"
)

func TestEventBusSync(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	bus.Subscribe(core.EventPointsAdded, func(ctx context.Context, e core.Event) { count++ })
	bus.Publish(context.Background(), core.NewPointsAdded("u", core.ActionMovieRated, 10, 10, time.Time{}))
	bus.Publish(context.Background(), core.NewLevelUp("u", 2, time.Time{}))
	if count != 1 {
		t.Fatalf("want 1 got %d", count)
	}
}

func TestEventBusAsync(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	defer bus.Close()
	ch := make(chan struct{})
	bus.Subscribe(core.EventPointsAdded, func(ctx context.Context, e core.Event) { close(ch) })
	bus.Publish(context.Background(), core.NewPointsAdded("u", core.ActionMovieRated, 10, 10, time.Time{}))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestEventBusSubscribeAllAndUnsubscribe(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	var all, levels int
	bus.SubscribeAll(func(ctx context.Context, e core.Event) { all++ })
	unsub := bus.Subscribe(core.EventLevelUp, func(ctx context.Context, e core.Event) { levels++ })

	bus.Publish(context.Background(), core.NewLevelUp("u", 2, time.Time{}))
	unsub()
	bus.Publish(context.Background(), core.NewLevelUp("u", 3, time.Time{}))
	bus.Publish(context.Background(), core.NewBadgeAwarded("u", core.EarnedBadge{Name: "critic"}))

	if all != 3 {
		t.Fatalf("catch-all: want 3 got %d", all)
	}
	if levels != 1 {
		t.Fatalf("level handler: want 1 got %d", levels)
	}
}

func TestEventBusHandlerPanicIsContained(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	var after int
	bus.Subscribe(core.EventLevelUp, func(ctx context.Context, e core.Event) { panic("boom") })
	bus.Subscribe(core.EventLevelUp, func(ctx context.Context, e core.Event) { after++ })
	bus.Publish(context.Background(), core.NewLevelUp("u", 2, time.Time{}))
	if after != 1 {
		t.Fatalf("second handler should still run, got %d", after)
	}
}

func TestEventBusCloseDrainsQueue(t *testing.T) {
	bus := NewEventBus(DispatchAsync, WithAsyncWorkers(1, 64))
	var n atomic.Int64
	bus.SubscribeAll(func(ctx context.Context, e core.Event) { n.Add(1) })
	for i := 0; i < 20; i++ {
		bus.Publish(context.Background(), core.NewLevelUp("u", int64(i), time.Time{}))
	}
	bus.Close()
	if got := n.Load(); got != 20 {
		t.Fatalf("want 20 delivered got %d", got)
	}
	bus.Publish(context.Background(), core.NewLevelUp("u", 99, time.Time{}))
	bus.Close()
}
