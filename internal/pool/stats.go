package pool

import "sync/atomic"

// Stats is a snapshot of a pool's activity counters.
type Stats struct {
	// Borrows counts successful Borrow calls.
	Borrows int64 `json:"borrows"`
	// Waits counts Borrow calls that fell through to a blocking wait.
	Waits int64 `json:"waits"`
	// Grows counts connections created and admitted by growth.
	Grows int64 `json:"grows"`
	// GrowFailures counts growth attempts whose connection could not be created.
	GrowFailures int64 `json:"grow_failures"`
	// Resizes counts raises of the max capacity.
	Resizes int64 `json:"resizes"`
	// PingFailures counts borrows whose liveness check and reconnect failed.
	PingFailures int64 `json:"ping_failures"`
	// Returns counts accepted returns.
	Returns int64 `json:"returns"`
	// RejectedReturns counts returns of foreign, unknown or idle handles.
	RejectedReturns int64 `json:"rejected_returns"`
}

type counters struct {
	borrows         atomic.Int64
	waits           atomic.Int64
	grows           atomic.Int64
	growFailures    atomic.Int64
	resizes         atomic.Int64
	pingFailures    atomic.Int64
	returns         atomic.Int64
	rejectedReturns atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Borrows:         c.borrows.Load(),
		Waits:           c.waits.Load(),
		Grows:           c.grows.Load(),
		GrowFailures:    c.growFailures.Load(),
		Resizes:         c.resizes.Load(),
		PingFailures:    c.pingFailures.Load(),
		Returns:         c.returns.Load(),
		RejectedReturns: c.rejectedReturns.Load(),
	}
}
