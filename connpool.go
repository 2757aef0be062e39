package connpool

import (
	"context"
	"fmt"

	"github.com/yuku/connpool/internal/config"
	"github.com/yuku/connpool/internal/pool"
	"github.com/yuku/connpool/internal/registry"
	"github.com/yuku/connpool/internal/sqlconn"
	"go.uber.org/zap"
)

// Pool is a named connection pool.
type Pool = pool.Pool

// Handle is a borrowed connection.
type Handle = pool.Handle

// Conn is the connection wrapped by a Handle.
type Conn = pool.Conn

// Cursor runs statements inside Pool.Cursor.
type Cursor = pool.Cursor

// Row is a row fetched by a Cursor.
type Row = pool.Row

// CursorType selects the row shape of a Cursor.
type CursorType = pool.CursorType

// Stats is a snapshot of a pool's activity counters.
type Stats = pool.Stats

// Config carries every option of one named pool.
type Config = config.PoolConfig

// Registry maps pool names to pools.
type Registry = registry.Registry

const (
	CursorDefault = pool.CursorDefault
	CursorDict    = pool.CursorDict
	CursorTuple   = pool.CursorTuple
)

var (
	ErrConfiguration       = pool.ErrConfiguration
	ErrConnectionCreate    = pool.ErrConnectionCreate
	ErrResourceUnavailable = pool.ErrResourceUnavailable
	ErrNotConnected        = pool.ErrNotConnected
	ErrPoolClosed          = pool.ErrPoolClosed
	ErrCursorClosed        = pool.ErrCursorClosed
)

// DefaultConfig returns the defaults: MySQL on port 3306, charset utf8mb4,
// dict cursors, 30 connections growing by 1.5 up to 48.
func DefaultConfig() Config {
	return config.DefaultPoolConfig()
}

type options struct {
	registry *registry.Registry
	logger   *zap.Logger
}

// Option configures Open.
type Option func(*options)

// WithRegistry registers the pool in r instead of the process-wide registry.
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithLogger sets the logger of the pool and its connections.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Open returns the pool registered under cfg.Name, creating and connecting
// it on first use. When the name is already registered, or another caller is
// building it, cfg is ignored and only the first caller's cfg is validated.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Pool, error) {
	o := options{registry: registry.Default, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	if p, ok := o.registry.Get(cfg.Name); ok {
		return p, nil
	}
	return o.registry.GetOrCreate(ctx, cfg.Name, func(ctx context.Context) (*pool.Pool, error) {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid pool configuration: %w", err)
		}
		factory, err := sqlconn.NewFactory(cfg.SQL(), o.logger)
		if err != nil {
			return nil, err
		}
		return pool.New(ctx, cfg.Name, factory, cfg.PoolOptions(), pool.WithLogger(o.logger))
	})
}

// Get returns the pool registered under name in the process-wide registry.
func Get(name string) (*Pool, bool) {
	return registry.Default.Get(name)
}

// NewRegistry returns an empty registry for use with WithRegistry.
func NewRegistry() *Registry {
	return registry.New()
}
