package sse

import (
	"encoding/json"
	"log/slog"
	"sync"

	"wavelength/internal/models"
)

// subscriberBuffer bounds how far one subscriber may fall behind. A
// subscriber that cannot accept a write is dropped, never buffered further.
const subscriberBuffer = 8

// Subscriber is one registered output channel. Events carries marshalled
// snapshots; the channel is closed on unsubscribe.
type Subscriber struct {
	ch   chan []byte
	once sync.Once
}

func (s *Subscriber) Events() <-chan []byte {
	return s.ch
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Hub fans presence snapshots out to every subscriber. The snapshot read,
// the marshal, and the delivery all happen under the mutex, so concurrent
// publishes cannot invert: every subscriber sees snapshots in the order
// they were taken, and a new subscriber never misses a publish that raced
// past its registration.
type Hub struct {
	snapshot func() []models.PresenceRecord

	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

func NewHub(snapshot func() []models.PresenceRecord) *Hub {
	return &Hub{
		snapshot: snapshot,
		subs:     make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber and immediately queues the current
// snapshot on it.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan []byte, subscriberBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[sub] = struct{}{}
	sub.ch <- marshalSnapshot(h.snapshot())
	return sub
}

// Unsubscribe deregisters sub and closes its channel. Safe to call more
// than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
	sub.close()
}

// Publish sends the current snapshot to every subscriber. A subscriber
// whose buffer is full is treated as dead and removed.
func (h *Hub) Publish() {
	h.mu.Lock()
	defer h.mu.Unlock()

	data := marshalSnapshot(h.snapshot())
	for sub := range h.subs {
		select {
		case sub.ch <- data:
		default:
			delete(h.subs, sub)
			sub.close()
			slog.Debug("dropped slow presence subscriber")
		}
	}
}

// SubscriberCount returns the number of registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func marshalSnapshot(records []models.PresenceRecord) []byte {
	if records == nil {
		records = []models.PresenceRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		// Records contain only marshallable fields; this cannot fail with
		// well-formed input.
		slog.Error("marshal presence snapshot", "error", err)
		return []byte("[]")
	}
	return data
}
