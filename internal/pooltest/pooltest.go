// Package pooltest provides in-memory pool.Factory and pool.Conn doubles.
package pooltest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/yuku/connpool/internal/pool"
)

var errNoQuerier = errors.New("pooltest: no querier configured")

// Conn is a fake connection that records session changes.
type Conn struct {
	id      int
	querier pool.Querier

	mu         sync.Mutex
	autocommit bool
	history    []bool
	rollbacks  int
	stale      bool
	closed     bool
	setErr     error
}

// ID returns the creation order of c, starting at 1.
func (c *Conn) ID() int {
	return c.id
}

func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if c.querier == nil {
		return nil, errNoQuerier
	}
	return c.querier.ExecContext(ctx, query, args...)
}

func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if c.querier == nil {
		return nil, errNoQuerier
	}
	return c.querier.QueryContext(ctx, query, args...)
}

func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if c.querier == nil {
		panic(errNoQuerier)
	}
	return c.querier.QueryRowContext(ctx, query, args...)
}

func (c *Conn) Autocommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autocommit
}

func (c *Conn) SetAutocommit(_ context.Context, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.autocommit = on
	c.history = append(c.history, on)
	return nil
}

func (c *Conn) Rollback(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollbacks++
	return nil
}

// AutocommitHistory returns every mode passed to SetAutocommit, in order.
func (c *Conn) AutocommitHistory() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.history...)
}

// Rollbacks returns how many times Rollback was called.
func (c *Conn) Rollbacks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollbacks
}

// MarkStale makes the next ping of c fail.
func (c *Conn) MarkStale() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale = true
}

// Stale reports whether c is waiting for a reconnect.
func (c *Conn) Stale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale
}

// Closed reports whether the factory closed c.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// FailSetAutocommit makes SetAutocommit return err.
func (c *Conn) FailSetAutocommit(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setErr = err
}

// Factory is a fake pool.Factory creating Conn values.
type Factory struct {
	// NewQuerier, when set, provides the statement surface of new conns.
	NewQuerier func() pool.Querier

	mu           sync.Mutex
	conns        []*Conn
	createErr    error
	createLimit  int
	reconnectErr error
	closeErr     error
	closes       int
	reconnects   int
}

var _ pool.Factory = (*Factory)(nil)

// NewFactory returns a factory whose connections start in autocommit mode.
func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Create(context.Context) (pool.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil && len(f.conns) >= f.createLimit {
		return nil, fmt.Errorf("%w: %w", pool.ErrConnectionCreate, f.createErr)
	}
	c := &Conn{id: len(f.conns) + 1, autocommit: true}
	if f.NewQuerier != nil {
		c.querier = f.NewQuerier()
	}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *Factory) Ping(_ context.Context, conn pool.Conn, reconnect bool) error {
	c, ok := conn.(*Conn)
	if !ok {
		return fmt.Errorf("pooltest: unexpected connection type %T", conn)
	}
	if !c.Stale() {
		return nil
	}
	if !reconnect {
		return fmt.Errorf("%w: connection %d is stale", pool.ErrResourceUnavailable, c.id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reconnectErr != nil {
		return fmt.Errorf("%w: %w", pool.ErrResourceUnavailable, f.reconnectErr)
	}
	c.mu.Lock()
	c.stale = false
	c.mu.Unlock()
	f.reconnects++
	return nil
}

func (f *Factory) Close(conn pool.Conn) error {
	c, ok := conn.(*Conn)
	if !ok {
		return fmt.Errorf("pooltest: unexpected connection type %T", conn)
	}
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return f.closeErr
}

// FailCreate makes Create fail with err. A nil err restores success.
func (f *Factory) FailCreate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = err
	f.createLimit = 0
}

// FailCreateAfter lets n more creates succeed, then fails every later one
// with err.
func (f *Factory) FailCreateAfter(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = err
	f.createLimit = len(f.conns) + n
}

// FailReconnect makes reconnects of stale conns fail with err.
func (f *Factory) FailReconnect(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnectErr = err
}

// FailClose makes Close report err after closing.
func (f *Factory) FailClose(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeErr = err
}

// Conns returns every conn created so far, trial connections included.
func (f *Factory) Conns() []*Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Conn(nil), f.conns...)
}

// Creates returns how many conns were created.
func (f *Factory) Creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// Closes returns how many times Close was called.
func (f *Factory) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// Reconnects returns how many stale conns were revived.
func (f *Factory) Reconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconnects
}
