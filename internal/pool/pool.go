// Package pool implements a named, dynamically resizing pool of database
// connections with blocking borrow, liveness checks on checkout and scoped
// acquisition helpers.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/yuku/connpool/internal/container"
	"go.uber.org/zap"
)

// State is the lifecycle state of a pool.
type State int32

const (
	StateUninitialized State = iota
	StateConnected
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Pool brokers access to a bounded set of connections created on demand by
// a Factory.
type Pool struct {
	name    string
	cfg     Config
	factory Factory
	items   *container.Container[*Handle]
	logger  *zap.Logger

	// connectMu serializes Connect so the trial connection runs once.
	connectMu sync.Mutex

	// mu guards state and maxSize. It is taken before the container's lock.
	mu      sync.Mutex
	state   State
	maxSize int

	nextID atomic.Int64
	stats  counters
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger of the pool. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a pool named name. Unless cfg.DeferConnect is set it connects
// before returning, and a failed trial connection is returned as an error.
func New(ctx context.Context, name string, factory Factory, cfg Config, opts ...Option) (*Pool, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: pool name cannot be empty", ErrConfiguration)
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: factory cannot be nil", ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool configuration: %w", err)
	}
	if cfg.CursorType == CursorDefault {
		cfg.CursorType = CursorDict
	}

	p := &Pool{
		name:    name,
		cfg:     cfg,
		factory: factory,
		logger:  zap.NewNop(),
		maxSize: cfg.initialMaxSize(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "connpool"), zap.String("pool", name))
	p.items = container.New[*Handle](p.maxSize, p.logger)

	if !cfg.DeferConnect {
		if err := p.Connect(ctx); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Connect validates the configuration against the database with a trial
// connection, then marks the pool connected and pre-warms one connection.
// Calling Connect on a connected pool does nothing.
func (p *Pool) Connect(ctx context.Context) error {
	p.connectMu.Lock()
	defer p.connectMu.Unlock()

	switch p.State() {
	case StateConnected:
		return nil
	case StateKilled:
		return ErrPoolClosed
	}

	p.logger.Info("connecting pool", zap.String("size", p.String()))

	trial, err := p.factory.Create(ctx)
	if err != nil {
		return fmt.Errorf("failed to open trial connection for pool %s: %w", p.name, err)
	}
	defer p.closeConn(trial)

	if err := p.factory.Ping(ctx, trial, false); err != nil {
		return fmt.Errorf("failed to ping trial connection for pool %s: %w", p.name, err)
	}

	p.mu.Lock()
	if p.state == StateKilled {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.state = StateConnected
	p.mu.Unlock()

	p.grow(ctx)
	return nil
}

// Close stops growth, drains the pool and closes every connection it owns,
// borrowed or free. Failures to close a connection are logged. Borrowers
// blocked in Borrow fail with ErrPoolClosed. Calling Close again does nothing.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.state == StateKilled {
		p.mu.Unlock()
		return
	}
	p.state = StateKilled
	p.mu.Unlock()

	p.logger.Info("closing pool", zap.String("size", p.String()))

	for _, h := range p.items.Drain() {
		p.closeConn(h.conn)
	}
}

func (p *Pool) closeConn(conn Conn) {
	if err := p.factory.Close(conn); err != nil {
		p.logger.Warn("failed to close connection", zap.Error(err))
	}
}

// Name returns the name of the pool.
func (p *Pool) Name() string {
	return p.name
}

// State returns the lifecycle state of the pool.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Size returns the number of connections owned by the pool, borrowed or free.
func (p *Pool) Size() int {
	return p.items.Len()
}

// FreeSize returns the number of connections ready to be borrowed.
func (p *Pool) FreeSize() int {
	return p.items.FreeLen()
}

// MaxSize returns the current max capacity.
func (p *Pool) MaxSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxSize
}

// Boundary returns the hard ceiling on capacity.
func (p *Pool) Boundary() int {
	return p.cfg.ResizeBoundary
}

// Config returns the configuration the pool was created with.
func (p *Pool) Config() Config {
	return p.cfg
}

// Stats returns a snapshot of the activity counters.
func (p *Pool) Stats() Stats {
	return p.stats.snapshot()
}

func (p *Pool) String() string {
	return fmt.Sprintf("<boundary=%d, max=%d, current=%d, free=%d>",
		p.Boundary(), p.MaxSize(), p.Size(), p.FreeSize(),
	)
}
