package pool

import (
	"context"
	"database/sql"
)

// Querier is the statement surface a pooled connection exposes.
// *sql.Conn implements it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Conn is a single database session owned by the pool.
type Conn interface {
	Querier

	// Autocommit reports the session's current autocommit mode.
	Autocommit() bool

	// SetAutocommit switches the session's autocommit mode.
	SetAutocommit(ctx context.Context, on bool) error

	// Rollback discards the session's open transaction, if any.
	Rollback(ctx context.Context) error
}

// Factory creates, health-checks and closes raw connections.
type Factory interface {
	// Create opens a new connection. Errors wrap ErrConnectionCreate.
	Create(ctx context.Context) (Conn, error)

	// Ping verifies conn is alive. When it is not and reconnect is set, the
	// underlying session is re-established in place. Otherwise the error
	// wraps ErrResourceUnavailable.
	Ping(ctx context.Context, conn Conn, reconnect bool) error

	// Close releases conn.
	Close(conn Conn) error
}
