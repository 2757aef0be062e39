package chatroom

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgxlisten"
	"github.com/yuku/connpool/internal/waitqueue"
)

// ListenHandler fans chat notifications out to subscriber queues.
type ListenHandler struct {
	mu sync.RWMutex

	subscribers map[string]*waitqueue.Queue[Message]
}

var _ pgxlisten.Handler = (*ListenHandler)(nil)

// HandleNotification implements the pgxlisten.Handler interface. The payload
// is a JSON encoded Message. Delivery never blocks the listener: each
// subscriber queue buffers until it is read.
func (h *ListenHandler) HandleNotification(_ context.Context, notification *pgconn.Notification, _ *pgx.Conn) error {
	var msg Message
	if err := json.Unmarshal([]byte(notification.Payload), &msg); err != nil {
		return fmt.Errorf("failed to decode chat notification on %s: %w", notification.Channel, err)
	}
	h.Dispatch(msg)
	return nil
}

// Dispatch queues msg for every subscriber.
func (h *ListenHandler) Dispatch(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, q := range h.subscribers {
		// Push only fails on a closed queue, which is about to be unregistered.
		_ = q.Push(msg)
	}
}

// Register creates the queue receiving messages for id.
func (h *ListenHandler) Register(id string) (*waitqueue.Queue[Message], error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers == nil {
		h.subscribers = make(map[string]*waitqueue.Queue[Message])
	}
	if _, exists := h.subscribers[id]; exists {
		return nil, fmt.Errorf("duplicate id: %s", id)
	}
	q := waitqueue.New[Message]()
	h.subscribers[id] = q
	return q, nil
}

// Has checks if a subscriber with the given ID is registered.
func (h *ListenHandler) Has(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.subscribers[id]
	return exists
}

// Unregister removes the subscriber and closes its queue.
func (h *ListenHandler) Unregister(id string) bool {
	h.mu.Lock()
	q, exists := h.subscribers[id]
	delete(h.subscribers, id)
	h.mu.Unlock()

	if !exists {
		return false
	}
	q.Close()
	return true
}

// Len returns the number of subscribers.
func (h *ListenHandler) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
