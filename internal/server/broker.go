package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashita-ai/akashi/internal/engine"
)

// Broker fans out engine.Hub events to SSE subscribers scoped to a single
// state, adapting the teacher's Postgres LISTEN/NOTIFY broadcast pattern
// to Forge's in-process pub/sub: no cross-process notification is needed
// since the engine and server share a process, so Broker subscribes to
// the Hub directly instead of polling a channel.
type Broker struct {
	events *engine.Hub
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[chan []byte]string // channel -> state name
}

// NewBroker creates a broker over the engine's event hub.
func NewBroker(events *engine.Hub, logger *slog.Logger) *Broker {
	return &Broker{
		events:      events,
		logger:      logger,
		subscribers: make(map[chan []byte]string),
	}
}

// Start relays every engine.Hub event to subscribers of its state. It
// blocks until ctx is cancelled, so call it in a goroutine.
func (b *Broker) Start(ctx context.Context) {
	events, unsubscribe := b.events.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind != engine.EventStateUpdate {
				continue
			}
			payload, err := json.Marshal(ev.Payload)
			if err != nil {
				b.logger.Warn("broker: failed to marshal event payload", "error", err)
				continue
			}
			b.broadcastToState(formatSSE(string(ev.Kind), string(payload)), ev.State)
		}
	}
}

// Subscribe returns a channel receiving SSE-formatted events for state.
func (b *Broker) Subscribe(state string) chan []byte {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.subscribers[ch] = state
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

// broadcastToState sends event to every subscriber of state, dropping it
// for subscribers whose buffer is full rather than blocking the relay
// loop for one slow client.
func (b *Broker) broadcastToState(event []byte, state string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, subState := range b.subscribers {
		if subState != state {
			continue
		}
		select {
		case ch <- event:
		default:
			b.logger.Warn("broker: dropped event for slow subscriber",
				"state", state,
				"buffer_cap", cap(ch),
				"event_size", len(event))
		}
	}
}

// formatSSE formats a notification as a Server-Sent Events message. Per
// the SSE spec, each line in a multi-line data field must be prefixed
// with "data: " to avoid desynchronizing the client parser.
func formatSSE(eventType, data string) []byte {
	var buf bytes.Buffer
	buf.WriteString("event: ")
	buf.WriteString(eventType)
	buf.WriteByte('\n')
	for _, line := range strings.Split(data, "\n") {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}
