package pool

import (
	"fmt"
	"time"
)

// Handle is a pooled connection. The slot id is assigned once, when the
// connection is created, and never reused within a pool.
type Handle struct {
	id      int
	conn    Conn
	pool    *Pool
	created time.Time
}

// ID returns the slot id of h.
func (h *Handle) ID() int {
	return h.id
}

// Conn returns the underlying connection.
func (h *Handle) Conn() Conn {
	return h.conn
}

// Created returns when the connection behind h was opened.
func (h *Handle) Created() time.Time {
	return h.created
}

// Release returns h to its pool. It reports false when h was not checked
// out, so a second Release after a single Borrow is rejected.
func (h *Handle) Release() bool {
	return h.pool.Return(h)
}

func (h *Handle) String() string {
	return fmt.Sprintf("<Handle pool=%s slot=%d>", h.pool.name, h.id)
}
