package pool

import "errors"

var (
	// ErrConfiguration reports an invalid pool configuration.
	ErrConfiguration = errors.New("connpool: invalid configuration")

	// ErrConnectionCreate wraps failures to open a new connection.
	ErrConnectionCreate = errors.New("connpool: failed to create connection")

	// ErrResourceUnavailable is returned by a liveness check that failed
	// without reconnecting.
	ErrResourceUnavailable = errors.New("connpool: resource unavailable")

	// ErrNotConnected is returned by Borrow before Connect succeeded.
	ErrNotConnected = errors.New("connpool: pool is not connected")

	// ErrPoolClosed is returned by any operation on a closed pool.
	ErrPoolClosed = errors.New("connpool: pool is closed")

	// ErrCursorClosed is returned by any operation on a closed cursor.
	ErrCursorClosed = errors.New("connpool: cursor is closed")
)
