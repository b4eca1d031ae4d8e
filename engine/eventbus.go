package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"reputationkit/core"
)

type DispatchMode int

const (
	DispatchSync DispatchMode = iota
	DispatchAsync
)

// Handler consumes a committed domain event.
type Handler func(context.Context, core.Event)

type subscription struct {
	id int64
	fn Handler
}

// EventBus provides thread-safe pub/sub with sync and async dispatch.
// Handlers registered for the empty type receive every event.
type EventBus struct {
	mode    DispatchMode
	mu      sync.RWMutex
	subs    map[core.EventType]map[int64]subscription
	nextID  int64
	queue   chan core.Event
	workers int
	dropped atomic.Int64
	log     zerolog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// BusOption configures an EventBus.
type BusOption func(*EventBus)

// WithBusLogger logs dropped async events and handler panics.
func WithBusLogger(l zerolog.Logger) BusOption { return func(b *EventBus) { b.log = l } }

// WithAsyncWorkers sets the worker count and queue depth for DispatchAsync.
func WithAsyncWorkers(workers, queue int) BusOption {
	return func(b *EventBus) {
		if workers > 0 {
			b.workers = workers
		}
		if queue > 0 {
			b.queue = make(chan core.Event, queue)
		}
	}
}

func NewEventBus(mode DispatchMode, opts ...BusOption) *EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	eb := &EventBus{
		mode:    mode,
		subs:    make(map[core.EventType]map[int64]subscription),
		queue:   make(chan core.Event, 2048),
		workers: 4,
		log:     zerolog.Nop(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, o := range opts {
		o(eb)
	}
	if mode == DispatchAsync {
		eb.startWorkers()
	}
	return eb
}

func (e *EventBus) startWorkers() {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case ev := <-e.queue:
					e.dispatch(context.Background(), ev)
				case <-e.ctx.Done():
					// drain what is already queued
					for {
						select {
						case ev := <-e.queue:
							e.dispatch(context.Background(), ev)
						default:
							return
						}
					}
				}
			}
		}()
	}
}

// Close stops async workers after the queue drains. Publishing after Close
// is a no-op.
func (e *EventBus) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.cancel()
	e.wg.Wait()
}

// Dropped counts async events discarded because the queue was full.
func (e *EventBus) Dropped() int64 { return e.dropped.Load() }

// Subscribe registers a handler for an event type. Returns unsubscribe func.
func (e *EventBus) Subscribe(typ core.EventType, handler Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	if e.subs[typ] == nil {
		e.subs[typ] = make(map[int64]subscription)
	}
	e.subs[typ][id] = subscription{id: id, fn: handler}
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if m := e.subs[typ]; m != nil {
			delete(m, id)
		}
	}
}

// SubscribeAll registers handler for every event type.
func (e *EventBus) SubscribeAll(handler Handler) func() {
	return e.Subscribe("", handler)
}

// Publish sends an event to subscribers.
func (e *EventBus) Publish(ctx context.Context, ev core.Event) {
	if e.closed.Load() {
		return
	}
	if e.mode == DispatchAsync {
		select {
		case e.queue <- ev:
		default:
			// drop rather than block the write path
			e.dropped.Add(1)
			e.log.Warn().Str("type", string(ev.Type)).Str("user_id", string(ev.UserID)).Msg("event queue full, event dropped")
		}
		return
	}
	e.dispatch(ctx, ev)
}

func (e *EventBus) dispatch(ctx context.Context, ev core.Event) {
	e.mu.RLock()
	// copy to avoid holding lock during callbacks
	handlers := make([]Handler, 0, len(e.subs[ev.Type])+len(e.subs[""]))
	for _, s := range e.subs[ev.Type] {
		handlers = append(handlers, s.fn)
	}
	if ev.Type != "" {
		for _, s := range e.subs[""] {
			handlers = append(handlers, s.fn)
		}
	}
	e.mu.RUnlock()
	for _, h := range handlers {
		e.call(ctx, h, ev)
	}
}

func (e *EventBus) call(ctx context.Context, h Handler, ev core.Event) {
	defer func() {
		if p := recover(); p != nil {
			e.log.Error().Interface("panic", p).Str("type", string(ev.Type)).Msg("event handler panicked")
		}
	}()
	h(ctx, ev)
}
