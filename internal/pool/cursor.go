package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// CursorType selects the row shape produced by a Cursor.
type CursorType int

const (
	// CursorDefault resolves to the pool's configured cursor type.
	CursorDefault CursorType = iota
	// CursorDict produces rows addressable by column name.
	CursorDict
	// CursorTuple produces positional rows only.
	CursorTuple
)

func (t CursorType) String() string {
	switch t {
	case CursorDefault:
		return "default"
	case CursorDict:
		return "dict"
	case CursorTuple:
		return "tuple"
	default:
		return fmt.Sprintf("CursorType(%d)", int(t))
	}
}

// ParseCursorType parses "dict", "tuple" or "default". The empty string is
// CursorDefault.
func ParseCursorType(s string) (CursorType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return CursorDefault, nil
	case "dict":
		return CursorDict, nil
	case "tuple":
		return CursorTuple, nil
	}
	return CursorDefault, fmt.Errorf("%w: unknown cursor type %q", ErrConfiguration, s)
}

func (t CursorType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *CursorType) UnmarshalText(text []byte) error {
	parsed, err := ParseCursorType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Row is one fetched row. Dict rows also carry their column names.
type Row struct {
	columns []string
	values  []any
}

// Values returns the column values in select order.
func (r Row) Values() []any {
	return r.values
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.values)
}

// Get returns the value of column. It always reports false for tuple rows.
func (r Row) Get(column string) (any, bool) {
	for i, name := range r.columns {
		if name == column {
			return r.values[i], true
		}
	}
	return nil, false
}

// Map returns the row keyed by column name, or nil for tuple rows.
func (r Row) Map() map[string]any {
	if r.columns == nil {
		return nil
	}
	m := make(map[string]any, len(r.columns))
	for i, name := range r.columns {
		m[name] = r.values[i]
	}
	return m
}

// Cursor runs statements on a borrowed connection. Result sets opened with
// Query are closed together with the cursor.
type Cursor struct {
	q    Querier
	kind CursorType

	mu     sync.Mutex
	rows   []*sql.Rows
	closed bool
}

func newCursor(q Querier, kind CursorType) *Cursor {
	return &Cursor{q: q, kind: kind}
}

// Type returns the row flavor of c.
func (c *Cursor) Type() CursorType {
	return c.kind
}

// Exec runs a statement that returns no rows.
func (c *Cursor) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if c.isClosed() {
		return nil, ErrCursorClosed
	}
	return c.q.ExecContext(ctx, query, args...)
}

// Query runs a statement and returns its result set. The rows stay valid
// until they are closed or the cursor is.
func (c *Cursor) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCursorClosed
	}
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	c.rows = append(c.rows, rows)
	return rows, nil
}

// QueryRow runs a statement expected to return at most one row.
func (c *Cursor) QueryRow(ctx context.Context, query string, args ...any) (*sql.Row, error) {
	if c.isClosed() {
		return nil, ErrCursorClosed
	}
	return c.q.QueryRowContext(ctx, query, args...), nil
}

// FetchAll runs a query and reads every row.
func (c *Cursor) FetchAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	if c.isClosed() {
		return nil, ErrCursorClosed
	}
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows, c.kind, 0)
}

// FetchOne runs a query and reads its first row. It returns sql.ErrNoRows
// when the result set is empty.
func (c *Cursor) FetchOne(ctx context.Context, query string, args ...any) (Row, error) {
	if c.isClosed() {
		return Row{}, ErrCursorClosed
	}
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return Row{}, err
	}
	defer rows.Close()

	result, err := scanRows(rows, c.kind, 1)
	if err != nil {
		return Row{}, err
	}
	if len(result) == 0 {
		return Row{}, sql.ErrNoRows
	}
	return result[0], nil
}

// Close closes every result set still open on c. Closing twice is a no-op.
func (c *Cursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for _, rows := range c.rows {
		if err := rows.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.rows = nil
	return errors.Join(errs...)
}

func (c *Cursor) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// scanRows reads up to limit rows, or all of them when limit is zero.
func scanRows(rows *sql.Rows, kind CursorType, limit int) ([]Row, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	columns := names
	if kind == CursorTuple {
		columns = nil
	}

	var result []Row
	for rows.Next() {
		values := make([]any, len(names))
		dest := make([]any, len(values))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, Row{columns: columns, values: values})
		if limit > 0 && len(result) == limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
