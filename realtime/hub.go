package realtime

import (
	"context"
	"sync"
	"sync/atomic"

	json "github.com/goccy/go-json"

	"reputationkit/core"
)

// Filter selects which events a subscriber receives. A zero Filter matches
// everything.
type Filter struct {
	UserID core.UserID
	Types  []core.EventType
}

// Match reports whether ev passes the filter.
func (f Filter) Match(ev core.Event) bool {
	if f.UserID != "" && f.UserID != ev.UserID {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == ev.Type {
			return true
		}
	}
	return false
}

type subscriber struct {
	ch     chan core.Event
	filter Filter
}

// Hub fans committed events out to live subscribers (websocket clients).
// Slow subscribers lose events rather than stall the publisher.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	next    int
	dropped atomic.Int64
}

func NewHub() *Hub { return &Hub{subs: map[int]subscriber{}} }

// Subscribe registers a buffered receiver for events matching filter.
func (h *Hub) Subscribe(buffer int, filter Filter) (int, <-chan core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan core.Event, buffer)
	h.subs[id] = subscriber{ch: ch, filter: filter}
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
	}
}

// Broadcast delivers ev to every matching subscriber without blocking.
// The read lock is held across sends so Unsubscribe cannot close a channel
// mid-send.
func (h *Hub) Broadcast(_ context.Context, ev core.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if !s.filter.Match(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers is the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped counts events discarded because a subscriber buffer was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// MarshalJSON is a helper to convert events to JSON bytes for WebSocket/SSE.
func MarshalJSON(ev core.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
