package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"questline/core"
)

type subscriber struct {
	user core.UserID
	ch   chan core.Event
}

// Hub fans domain events out to live connections. A subscriber bound to a user
// only sees that user's events; an unbound subscriber sees everything.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	next    int
	dropped atomic.Int64
}

func NewHub() *Hub { return &Hub{subs: map[int]subscriber{}} }

// Subscribe registers a buffered receiver. Pass an empty user to receive all events.
func (h *Hub) Subscribe(user core.UserID, buffer int) (int, <-chan core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan core.Event, buffer)
	h.subs[id] = subscriber{user: user, ch: ch}
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

// Broadcast delivers ev to every matching subscriber without blocking.
// Slow receivers lose the event.
func (h *Hub) Broadcast(_ context.Context, ev core.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.user != "" && sub.user != ev.UserID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of live receivers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a receiver was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Publisher is the part of the event bus the hub attaches to.
type Publisher interface {
	SubscribeAll(fn func(context.Context, core.Event)) func()
}

// Attach forwards every bus event to the hub and returns the detach func.
func (h *Hub) Attach(bus Publisher) func() {
	return bus.SubscribeAll(h.Broadcast)
}

// MarshalJSON is a helper to convert events to JSON bytes for WebSocket/SSE.
func MarshalJSON(ev core.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
