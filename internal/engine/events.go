package engine

import "sync"

// EventKind enumerates the broadcast event types the SSE layer relays.
type EventKind string

const (
	EventOpAccepted  EventKind = "op_accepted"
	EventChangeSet   EventKind = "change_set"
	EventStateUpdate EventKind = "state_update"
	EventConflict    EventKind = "conflict"
)

// Event is one broadcast notification. Payload is a complete, self-
// contained snapshot (never a delta), so a subscriber that misses one
// state_update still catches up correctly on the next.
type Event struct {
	Kind    EventKind
	State   string
	Payload any
}

// subscriberBuffer bounds how many events a slow subscriber may lag by
// before new events start being dropped for it; state_update payloads are
// full snapshots, so a dropped event is never a correctness problem, only
// a latency one.
const subscriberBuffer = 32

// Hub fans out engine events to per-subscriber bounded channels. Sends are
// non-blocking: a full subscriber channel drops the event rather than
// stalling the engine's single writer.
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func newHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function the caller must call when done.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

// Publish broadcasts ev to every current subscriber, dropping it for any
// subscriber whose buffer is full.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
