// Package registry keeps one pool per name for the whole process.
package registry

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/yuku/connpool/internal/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrClosed is returned by a registry that has been closed.
	ErrClosed = errors.New("registry: closed")

	// ErrNotFound is returned when no pool is registered under a name.
	ErrNotFound = errors.New("registry: pool not found")
)

// BuildFunc constructs the pool registered under a name.
type BuildFunc func(ctx context.Context) (*pool.Pool, error)

// Registry maps pool names to pools. The first successful construction for
// a name wins; later lookups get the same instance.
type Registry struct {
	// group collapses concurrent first constructions of one name.
	group singleflight.Group

	// mu protects pools and closed.
	mu     sync.RWMutex
	pools  map[string]*pool.Pool
	closed bool

	logger *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger of the registry.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		pools:  make(map[string]*pool.Pool),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "registry"))
	return r
}

// Default is the process-wide registry.
var Default = New()

// GetOrCreate returns the pool registered under name, calling build to
// construct it when there is none. If the pool already exists build is not
// called. Concurrent first calls for one name share a single build, run with
// the ctx of the caller that started it. A failed build registers nothing
// and its error is returned to every caller sharing it.
func (r *Registry) GetOrCreate(ctx context.Context, name string, build BuildFunc) (*pool.Pool, error) {
	if r.Closed() {
		return nil, ErrClosed
	}
	if name == "" {
		return nil, fmt.Errorf("%w: pool name cannot be empty", pool.ErrConfiguration)
	}
	if p, ok := r.Get(name); ok {
		return p, nil
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		if p, ok := r.Get(name); ok {
			return p, nil
		}

		p, err := build(ctx)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, fmt.Errorf("build of pool %s returned no pool", name)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			p.Close()
			return nil, ErrClosed
		}
		r.pools[name] = p
		r.logger.Info("pool registered", zap.String("pool", name), zap.String("size", p.String()))
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pool %s: %w", name, err)
	}
	return v.(*pool.Pool), nil
}

// Get returns the pool registered under name.
func (r *Registry) Get(name string) (*pool.Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[name]
	return p, ok
}

// ListPools returns the names of the registered pools that start with
// prefix, sorted. An empty prefix lists every pool.
//
// Example usage:
//
//	// List all pools
//	all := registry.Default.ListPools("")
//
//	// List pools with a specific prefix
//	chat := registry.Default.ListPools("chat_")
func (r *Registry) ListPools(prefix string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name := range r.pools {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Pools returns the registered pools ordered by name.
func (r *Registry) Pools() []*pool.Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*pool.Pool, 0, len(r.pools))
	for _, name := range slices.Sorted(maps.Keys(r.pools)) {
		result = append(result, r.pools[name])
	}
	return result
}

// Delete closes the pool registered under name and forgets it. A later
// GetOrCreate for the same name builds a new pool.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	p, ok := r.pools[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(r.pools, name)
	r.mu.Unlock()

	p.Close()
	r.logger.Info("pool deleted", zap.String("pool", name))
	return nil
}

// Close closes every registered pool. The registry rejects further use.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	pools := r.pools
	r.pools = make(map[string]*pool.Pool)
	r.mu.Unlock()

	for _, p := range pools {
		p.Close()
	}
}

// Closed reports whether the registry is closed.
func (r *Registry) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}
