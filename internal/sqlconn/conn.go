package sqlconn

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"

	"github.com/yuku/connpool/internal/pool"
)

// Conn is one pooled database session. It owns a private *sql.DB capped at
// a single open connection and keeps that connection pinned, so session
// state such as autocommit survives between statements.
type Conn struct {
	db      *sql.DB
	dialect Dialect

	mu         sync.Mutex
	conn       *sql.Conn
	autocommit bool
}

var _ pool.Conn = (*Conn)(nil)

func (c *Conn) session() *sql.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.session().ExecContext(ctx, query, args...)
}

func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.session().QueryContext(ctx, query, args...)
}

func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.session().QueryRowContext(ctx, query, args...)
}

// Dialect returns the dialect driving session state.
func (c *Conn) Dialect() Dialect {
	return c.dialect
}

// Autocommit reports the tracked autocommit mode of the session.
func (c *Conn) Autocommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autocommit
}

// SetAutocommit switches the session mode. Switching to the current mode
// sends nothing. With the postgres dialect, turning autocommit back on
// commits the open transaction.
func (c *Conn) SetAutocommit(ctx context.Context, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.autocommit == on {
		return nil
	}
	if _, err := c.conn.ExecContext(ctx, c.dialect.autocommitStatement(on)); err != nil {
		return fmt.Errorf("failed to set autocommit to %t: %w", on, err)
	}
	c.autocommit = on
	return nil
}

// Rollback discards the uncommitted work of the session. With autocommit
// off the session stays in manual commit mode afterwards.
func (c *Conn) Rollback(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dialect.nativeAutocommit() && c.autocommit {
		return nil
	}
	if _, err := c.conn.ExecContext(ctx, "ROLLBACK"); err != nil {
		return fmt.Errorf("failed to roll back: %w", err)
	}
	if !c.dialect.nativeAutocommit() {
		if _, err := c.conn.ExecContext(ctx, c.dialect.autocommitStatement(false)); err != nil {
			return fmt.Errorf("failed to reopen transaction: %w", err)
		}
	}
	return nil
}

func (c *Conn) ping(ctx context.Context) error {
	return c.session().PingContext(ctx)
}

// reconnect drops the current session and pins a fresh one, then re-applies
// the tracked autocommit mode.
func (c *Conn) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Returning ErrBadConn from Raw makes database/sql discard the session
	// instead of putting it back into the idle set.
	_ = c.conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = c.conn.Close()

	fresh, err := c.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	if err := fresh.PingContext(ctx); err != nil {
		_ = fresh.Close()
		return fmt.Errorf("failed to ping session: %w", err)
	}
	// A new session starts in autocommit mode.
	if !c.autocommit {
		if _, err := fresh.ExecContext(ctx, c.dialect.autocommitStatement(false)); err != nil {
			_ = fresh.Close()
			return fmt.Errorf("failed to restore autocommit: %w", err)
		}
	}
	c.conn = fresh
	return nil
}

func (c *Conn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if err := c.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		errs = append(errs, err)
	}
	if err := c.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
