// Package container holds the bounded set of pooled items. Items are keyed by
// a stable integer slot id; the free-list carries slot ids only.
package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yuku/connpool/internal/waitqueue"
	"go.uber.org/zap"
)

var (
	// ErrFull is returned by Add when membership equals the max size.
	ErrFull = errors.New("container: pool is full")

	// ErrEmpty is returned by Get when no item became free in time.
	ErrEmpty = errors.New("container: pool is empty")

	// ErrClosed is returned once the container has been drained.
	ErrClosed = errors.New("container: closed")
)

// Container is a bounded, thread-safe collection with two views over the
// same items: the membership map and the FIFO free-list.
//
// Lock order: mu is taken before the free-list's own lock, never the reverse.
type Container[T any] struct {
	// mu guards members, out, maxSize and drained.
	mu      sync.Mutex
	members map[int]T
	// out holds the slot ids currently checked out by Get.
	out     map[int]struct{}
	maxSize int
	drained bool

	free   *waitqueue.Queue[int]
	logger *zap.Logger
}

// New returns an empty container that admits up to maxSize members.
func New[T any](maxSize int, logger *zap.Logger) *Container[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Container[T]{
		members: make(map[int]T),
		out:     make(map[int]struct{}),
		maxSize: maxSize,
		free:    waitqueue.New[int](),
		logger:  logger,
	}
}

// Add registers item under id and puts it on the free-list.
// Adding an id that is already a member is a logged no-op.
func (c *Container[T]) Add(id int, item T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drained {
		return ErrClosed
	}
	if _, ok := c.members[id]; ok {
		c.logger.Debug("duplicate item ignored", zap.Int("slot", id), zap.String("size", c.sizeLocked()))
		return nil
	}
	if len(c.members) >= c.maxSize {
		return ErrFull
	}
	if err := c.free.Push(id); err != nil {
		return fmt.Errorf("failed to enqueue slot %d: %w", id, err)
	}
	c.members[id] = item

	c.logger.Debug("item added", zap.Int("slot", id), zap.String("size", c.sizeLocked()))
	return nil
}

// Get removes the head of the free-list. Without block it fails with
// ErrEmpty immediately when nothing is free. With block it waits up to
// timeout, or until ctx is done when timeout is zero.
func (c *Container[T]) Get(ctx context.Context, block bool, timeout time.Duration) (int, T, error) {
	var zero T

	if !block {
		id, ok := c.free.TryPop()
		if !ok {
			if c.isDrained() {
				return 0, zero, ErrClosed
			}
			return 0, zero, ErrEmpty
		}
		return c.checkout(id)
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	id, err := c.free.Wait(waitCtx)
	switch {
	case errors.Is(err, waitqueue.ErrClosed):
		return 0, zero, ErrClosed
	case err != nil && ctx.Err() != nil:
		return 0, zero, ctx.Err()
	case err != nil:
		return 0, zero, ErrEmpty
	}
	return c.checkout(id)
}

func (c *Container[T]) checkout(id int) (int, T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.members[id]
	if !ok {
		var zero T
		return 0, zero, ErrClosed
	}
	c.out[id] = struct{}{}
	c.logger.Debug("item taken", zap.Int("slot", id), zap.String("size", c.sizeLocked()))
	return id, item, nil
}

// Return puts id back on the free-list. It reports false, leaving the
// container untouched, when id is not a member or is not checked out.
func (c *Container[T]) Return(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.members[id]; !ok {
		c.logger.Warn("return of unknown item rejected", zap.Int("slot", id))
		return false
	}
	if _, ok := c.out[id]; !ok {
		c.logger.Warn("return of idle item rejected", zap.Int("slot", id))
		return false
	}
	if err := c.free.Push(id); err != nil {
		return false
	}
	delete(c.out, id)

	c.logger.Debug("item returned", zap.Int("slot", id), zap.String("size", c.sizeLocked()))
	return true
}

// Resize raises the max size. Smaller values are ignored.
func (c *Container[T]) Resize(newMax int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if newMax > c.maxSize {
		c.maxSize = newMax
	}
}

// Drain removes every member, closes the free-list and returns the removed
// items. Blocked Get calls fail with ErrClosed.
func (c *Container[T]) Drain() []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drained {
		return nil
	}
	c.drained = true
	c.free.Close()

	items := make([]T, 0, len(c.members))
	for _, item := range c.members {
		items = append(items, item)
	}
	c.members = make(map[int]T)
	c.out = make(map[int]struct{})
	return items
}

// Contains reports whether id is a member.
func (c *Container[T]) Contains(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.members[id]
	return ok
}

// Len returns the number of members, borrowed or free.
func (c *Container[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members)
}

// FreeLen returns the number of items on the free-list.
func (c *Container[T]) FreeLen() int {
	return c.free.Len()
}

// MaxSize returns the current max size.
func (c *Container[T]) MaxSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxSize
}

func (c *Container[T]) isDrained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drained
}

func (c *Container[T]) sizeLocked() string {
	return fmt.Sprintf("<max=%d, current=%d, free=%d>", c.maxSize, len(c.members), c.free.Len())
}
