package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultBufferSize is the per-subscriber queue length. A subscriber that
// falls further behind loses messages and is flagged for resync.
const DefaultBufferSize = 256

// Subscription is one connected client's view of the broadcast stream.
type Subscription struct {
	ID     string
	C      <-chan Message
	ch     chan Message
	resync atomic.Bool
}

// NeedsResync reports, and clears, the dropped-message flag. A client that
// needs a resync should be sent a fresh snapshot.
func (s *Subscription) NeedsResync() bool {
	return s.resync.Swap(false)
}

// Hub fans messages out to the subscribers of this process.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscription
	bufferSize  int
}

// NewHub creates a hub. bufferSize <= 0 selects DefaultBufferSize.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		subscribers: make(map[string]*Subscription),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a subscriber under id.
func (h *Hub) Subscribe(id string) *Subscription {
	ch := make(chan Message, h.bufferSize)
	sub := &Subscription{ID: id, C: ch, ch: ch}
	h.mu.Lock()
	if old, ok := h.subscribers[id]; ok {
		close(old.ch)
	}
	h.subscribers[id] = sub
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscriber and closes its channel. Unknown ids are
// ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(sub.ch)
	}
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish delivers msg to every subscriber without blocking.
func (h *Hub) Publish(_ context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscribers {
		select {
		case sub.ch <- msg:
		default:
			sub.resync.Store(true)
		}
	}
	return nil
}

// MarkAllResync flags every subscriber for a fresh snapshot and wakes it.
// Used when messages may have been missed, such as after a relay outage.
func (h *Hub) MarkAllResync() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscribers {
		sub.resync.Store(true)
		select {
		case sub.ch <- Message{ID: uuid.NewString(), Channel: ChannelResync}:
		default:
		}
	}
}
