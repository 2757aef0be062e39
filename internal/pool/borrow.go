package pool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/yuku/connpool/internal/container"
	"go.uber.org/zap"
)

// borrowStep is a state of the per-borrow state machine.
type borrowStep int

const (
	// stepTryFree takes a free connection without blocking.
	stepTryFree borrowStep = iota
	// stepTryGrow adds one connection, resizing first when at capacity.
	stepTryGrow
	// stepWait blocks until a peer returns a connection.
	stepWait
)

// Borrow checks out a connection. It takes a free one when available, grows
// the pool when not, and otherwise blocks until a peer returns one. Reaching
// the boundary is never an error: Borrow waits for as long as ctx allows.
//
// A pool with no members whose factory keeps failing has no peer to return
// anything, so Borrow retries growth once and then blocks until ctx ends.
//
// The connection is pinged with reconnect before it is handed out. The
// caller must Return it exactly once.
func (p *Pool) Borrow(ctx context.Context) (*Handle, error) {
	switch p.State() {
	case StateUninitialized:
		return nil, ErrNotConnected
	case StateKilled:
		return nil, ErrPoolClosed
	}

	step := stepTryFree
	for {
		switch step {
		case stepTryFree:
			_, h, err := p.items.Get(ctx, false, 0)
			if errors.Is(err, container.ErrEmpty) {
				step = stepTryGrow
				continue
			}
			if err != nil {
				return nil, p.waitError(err)
			}
			return p.checkout(ctx, h)

		case stepTryGrow:
			if p.grow(ctx) {
				step = stepTryFree
			} else {
				step = stepWait
			}

		case stepWait:
			p.stats.waits.Add(1)
			p.logger.Debug("waiting for a connection", zap.String("size", p.String()))
			_, h, err := p.items.Get(ctx, true, 0)
			if err != nil {
				return nil, p.waitError(err)
			}
			return p.checkout(ctx, h)
		}
	}
}

func (p *Pool) waitError(err error) error {
	if errors.Is(err, container.ErrClosed) {
		return ErrPoolClosed
	}
	return err
}

// checkout revives h if its session went stale. On failure h goes back to
// the free-list so the pool keeps its membership.
func (p *Pool) checkout(ctx context.Context, h *Handle) (*Handle, error) {
	if err := p.factory.Ping(ctx, h.conn, true); err != nil {
		p.stats.pingFailures.Add(1)
		p.logger.Error("failed to revive connection", zap.Int("slot", h.id), zap.Error(err))
		p.items.Return(h.id)
		if !errors.Is(err, ErrResourceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
		}
		return nil, fmt.Errorf("failed to revive connection %d: %w", h.id, err)
	}
	p.stats.borrows.Add(1)
	return h, nil
}

// Return gives h back to the pool. It reports false, changing nothing, when
// h belongs to another pool, is unknown, or is not checked out.
func (p *Pool) Return(h *Handle) bool {
	if h == nil || h.pool != p {
		p.stats.rejectedReturns.Add(1)
		p.logger.Warn("return of foreign connection rejected")
		return false
	}
	if !p.items.Return(h.id) {
		p.stats.rejectedReturns.Add(1)
		return false
	}
	p.stats.returns.Add(1)
	return true
}

// grow adds one connection to the pool and reports whether it did. At
// capacity it first raises the max size when auto resize allows.
func (p *Pool) grow(ctx context.Context) bool {
	p.mu.Lock()
	if p.state != StateConnected {
		p.mu.Unlock()
		return false
	}
	if p.items.Len() >= p.maxSize {
		if !p.cfg.EnableAutoResize || !p.resizeLocked() {
			p.mu.Unlock()
			return false
		}
	}
	p.mu.Unlock()

	conn, err := p.factory.Create(ctx)
	if err != nil {
		p.stats.growFailures.Add(1)
		p.logger.Error("failed to create connection", zap.Error(err))
		return false
	}

	h := &Handle{
		id:      int(p.nextID.Add(1)),
		conn:    conn,
		pool:    p,
		created: time.Now(),
	}
	if err := p.items.Add(h.id, h); err != nil {
		// A concurrent grower took the last slot, or the pool was closed.
		p.logger.Debug("discarding new connection", zap.Int("slot", h.id), zap.Error(err))
		p.closeConn(conn)
		return false
	}
	p.stats.grows.Add(1)
	return true
}

// resizeLocked multiplies the max size by the scale, clamped to the
// boundary. It reports false once the boundary is reached.
func (p *Pool) resizeLocked() bool {
	boundary := p.cfg.ResizeBoundary
	if p.maxSize >= boundary {
		return false
	}

	next := int(math.Ceil(float64(p.maxSize) * p.cfg.AutoResizeScale))
	if next <= p.maxSize {
		next = p.maxSize + 1
	}
	next = min(next, boundary)

	p.maxSize = next
	p.items.Resize(next)
	p.stats.resizes.Add(1)
	p.logger.Debug("max pool size raised", zap.Int("max", next), zap.Int("boundary", boundary))
	return true
}
