// Package waitqueue implements the FIFO free-list used by the connection
// container. Items are handed out strictly in the order they were pushed and
// blocked receivers are served in the order they started waiting.
package waitqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned by Push and Wait once the queue has been closed.
var ErrClosed = errors.New("waitqueue: closed")

// Queue is a producer/consumer queue with FIFO ordering for both items and
// waiters. It has its own lock and never calls out while holding it.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	waiters []*waiter[T]
	ids     map[string]struct{}
	closed  bool
	done    chan struct{}
}

type waiter[T any] struct {
	id string
	// ch is buffered so a hand-off under mu never blocks.
	ch chan T
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		ids:  make(map[string]struct{}),
		done: make(chan struct{}),
	}
}

// Push enqueues item. If receivers are blocked in Wait, the one that has
// waited longest receives item directly.
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.pushLocked(item, false)
	return nil
}

func (q *Queue[T]) pushLocked(item T, front bool) {
	if len(q.waiters) > 0 {
		w := q.waiters[0]
		q.waiters = q.waiters[1:]
		delete(q.ids, w.id)
		w.ch <- item
		return
	}
	if front {
		q.items = append([]T{item}, q.items...)
		return
	}
	q.items = append(q.items, item)
}

// TryPop removes and returns the head of the queue without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if q.closed || len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Wait removes and returns the head of the queue, blocking until an item is
// pushed, ctx is done, or the queue is closed.
func (q *Queue[T]) Wait(ctx context.Context, opts ...WaitOption) (T, error) {
	var zero T

	options := &WaitOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.id == "" {
		options.id = uuid.NewString()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return zero, ErrClosed
	}
	if item, ok := q.popLocked(); ok {
		q.mu.Unlock()
		return item, nil
	}
	if _, exists := q.ids[options.id]; exists {
		q.mu.Unlock()
		return zero, fmt.Errorf("duplicate id: %s", options.id)
	}
	w := &waiter[T]{id: options.id, ch: make(chan T, 1)}
	q.waiters = append(q.waiters, w)
	q.ids[w.id] = struct{}{}
	q.mu.Unlock()

	if options.afterRegister != nil {
		if err := options.afterRegister(); err != nil {
			q.cancel(w)
			return zero, fmt.Errorf("after register callback failed: %w", err)
		}
	}

	select {
	case item := <-w.ch:
		return item, nil
	case <-q.done:
		return zero, ErrClosed
	case <-ctx.Done():
		q.cancel(w)
		return zero, ctx.Err()
	}
}

// cancel withdraws w. If an item was already handed to w it goes back to the
// head of the queue so FIFO order is kept.
func (q *Queue[T]) cancel(w *waiter[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, other := range q.waiters {
		if other == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			delete(q.ids, w.id)
			return
		}
	}
	select {
	case item := <-w.ch:
		if !q.closed {
			q.pushLocked(item, true)
		}
	default:
	}
}

// Close discards queued items, releases every waiter with ErrClosed and
// returns the items that were queued.
func (q *Queue[T]) Close() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	items := q.items
	q.items = nil
	q.waiters = nil
	q.ids = nil
	close(q.done)
	return items
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Waiting returns the number of receivers blocked in Wait.
func (q *Queue[T]) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}

// Has reports whether a waiter with the given ID is registered.
func (q *Queue[T]) Has(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, exists := q.ids[id]
	return exists
}

type WaitOptions struct {
	// id is the unique identifier for the waiter.
	id string

	// afterRegister is a callback that will be called after the waiter is registered.
	afterRegister func() error
}

type WaitOption func(*WaitOptions)

// WithID allows setting a unique identifier for the waiter.
func WithID(id string) WaitOption {
	return func(opts *WaitOptions) {
		opts.id = id
	}
}

// WithAfterRegister allows setting a callback to be called after the waiter is
// registered.
func WithAfterRegister(callback func() error) WaitOption {
	return func(opts *WaitOptions) {
		opts.afterRegister = callback
	}
}
