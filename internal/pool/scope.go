package pool

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Connection borrows a connection, switches it to the given autocommit mode
// and calls fn with it. On every exit path, including a panic in fn, the
// previous mode is restored and the connection is returned.
func (p *Pool) Connection(ctx context.Context, autocommit bool, fn func(h *Handle) error) (err error) {
	h, err := p.Borrow(ctx)
	if err != nil {
		return err
	}

	previous := h.conn.Autocommit()
	defer func() {
		if rerr := h.conn.SetAutocommit(context.WithoutCancel(ctx), previous); rerr != nil {
			p.logger.Warn("failed to restore autocommit", zap.Int("slot", h.id), zap.Error(rerr))
			if err == nil {
				err = fmt.Errorf("failed to restore autocommit: %w", rerr)
			}
		}
		p.Return(h)
	}()

	if err := h.conn.SetAutocommit(ctx, autocommit); err != nil {
		return fmt.Errorf("failed to set autocommit: %w", err)
	}
	return fn(h)
}

// Cursor borrows a connection in autocommit mode, opens a cursor of the
// given type on it and calls fn. If fn fails or panics the transaction is
// rolled back before the failure propagates. The cursor is always closed and
// the connection always returned.
func (p *Pool) Cursor(ctx context.Context, cursorType CursorType, fn func(cur *Cursor) error) error {
	if cursorType == CursorDefault {
		cursorType = p.cfg.CursorType
	}

	return p.Connection(ctx, true, func(h *Handle) (err error) {
		cur := newCursor(h.conn, cursorType)
		defer func() {
			r := recover()
			if cerr := cur.Close(); cerr != nil {
				p.logger.Warn("failed to close cursor", zap.Int("slot", h.id), zap.Error(cerr))
			}
			if r != nil || err != nil {
				if rbErr := h.conn.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
					p.logger.Error("failed to roll back", zap.Int("slot", h.id), zap.Error(rbErr))
					err = errors.Join(err, fmt.Errorf("failed to roll back: %w", rbErr))
				}
			}
			if r != nil {
				panic(r)
			}
		}()

		return fn(cur)
	})
}
