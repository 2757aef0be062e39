package pool

import "fmt"

const (
	// DefaultMaxPoolSize is the initial max size when none is configured.
	DefaultMaxPoolSize = 30

	// DefaultAutoResizeScale is the growth multiplier applied at capacity.
	DefaultAutoResizeScale = 1.5

	// DefaultResizeBoundary is the hard ceiling on pool capacity.
	DefaultResizeBoundary = 48
)

// Config holds the sizing policy of a pool.
type Config struct {
	// MaxPoolSize is the initial max capacity. Values above ResizeBoundary
	// are clamped to it.
	MaxPoolSize int

	// EnableAutoResize lets the pool raise its max capacity, up to
	// ResizeBoundary, when growth is requested at capacity.
	EnableAutoResize bool

	// AutoResizeScale multiplies the max capacity on each resize. Must be
	// greater than 1.
	AutoResizeScale float64

	// ResizeBoundary is the immutable ceiling on capacity.
	ResizeBoundary int

	// DeferConnect skips Connect in New. The caller must call Connect before
	// borrowing.
	DeferConnect bool

	// CursorType is the flavor used by Cursor when called with CursorDefault.
	CursorType CursorType
}

// DefaultConfig returns the sizing policy used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxPoolSize:      DefaultMaxPoolSize,
		EnableAutoResize: true,
		AutoResizeScale:  DefaultAutoResizeScale,
		ResizeBoundary:   DefaultResizeBoundary,
		CursorType:       CursorDict,
	}
}

func (c Config) Validate() error {
	if c.MaxPoolSize <= 0 {
		return fmt.Errorf("%w: max pool size must be positive: given %d", ErrConfiguration, c.MaxPoolSize)
	}
	if c.ResizeBoundary <= 0 {
		return fmt.Errorf("%w: resize boundary must be positive: given %d", ErrConfiguration, c.ResizeBoundary)
	}
	if c.AutoResizeScale != 0 && c.AutoResizeScale <= 1 {
		return fmt.Errorf("%w: auto resize scale must be greater than 1: given %g", ErrConfiguration, c.AutoResizeScale)
	}
	if c.EnableAutoResize && c.AutoResizeScale == 0 {
		return fmt.Errorf("%w: auto resize scale is required when auto resize is enabled", ErrConfiguration)
	}
	if c.CursorType < CursorDefault || c.CursorType > CursorTuple {
		return fmt.Errorf("%w: unknown cursor type %d", ErrConfiguration, c.CursorType)
	}
	return nil
}

// initialMaxSize is MaxPoolSize clamped to the boundary.
func (c Config) initialMaxSize() int {
	return min(c.MaxPoolSize, c.ResizeBoundary)
}
