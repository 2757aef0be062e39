package sqlconn_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuku/connpool/internal/pool"
	"github.com/yuku/connpool/internal/sqlconn"
	_ "modernc.org/sqlite"
)

func sqliteFactory(t *testing.T) *sqlconn.Factory {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "chat.db") + "?_pragma=busy_timeout(5000)"
	f, err := sqlconn.NewFactory(sqlconn.Config{Driver: "sqlite", DSN: dsn}, nil)
	require.NoError(t, err)
	require.Equal(t, sqlconn.DialectSQLite, f.Dialect())
	return f
}

func TestFactory_SQLite(t *testing.T) {
	t.Parallel()

	t.Run("rollback discards manual mode work", func(t *testing.T) {
		// Given
		f := sqliteFactory(t)
		c := create(t, f)
		ctx := context.Background()
		_, err := c.ExecContext(ctx, "CREATE TABLE message (id INTEGER PRIMARY KEY, body TEXT NOT NULL)")
		require.NoError(t, err)

		// When
		require.NoError(t, c.SetAutocommit(ctx, false))
		_, err = c.ExecContext(ctx, "INSERT INTO message (body) VALUES (?)", "dropped")
		require.NoError(t, err)
		require.NoError(t, c.Rollback(ctx))
		_, err = c.ExecContext(ctx, "INSERT INTO message (body) VALUES (?)", "kept")
		require.NoError(t, err)
		require.NoError(t, c.SetAutocommit(ctx, true))

		// Then
		var bodies []string
		rows, err := c.QueryContext(ctx, "SELECT body FROM message ORDER BY id")
		require.NoError(t, err)
		defer rows.Close()
		for rows.Next() {
			var body string
			require.NoError(t, rows.Scan(&body))
			bodies = append(bodies, body)
		}
		require.NoError(t, rows.Err())
		assert.Equal(t, []string{"kept"}, bodies)
	})

	t.Run("pool round trip through cursors", func(t *testing.T) {
		// Given
		f := sqliteFactory(t)
		cfg := pool.DefaultConfig()
		cfg.MaxPoolSize = 2
		cfg.ResizeBoundary = 4
		p, err := pool.New(context.Background(), "sqlite", f, cfg)
		require.NoError(t, err)
		t.Cleanup(p.Close)
		ctx := context.Background()

		err = p.Cursor(ctx, pool.CursorDefault, func(cur *pool.Cursor) error {
			_, err := cur.Exec(ctx, "CREATE TABLE account (name TEXT PRIMARY KEY, age INTEGER)")
			return err
		})
		require.NoError(t, err)

		// When
		err = p.Connection(ctx, false, func(h *pool.Handle) error {
			if _, err := h.Conn().ExecContext(ctx, "INSERT INTO account VALUES (?, ?)", "alice", 30); err != nil {
				return err
			}
			return h.Conn().SetAutocommit(ctx, true)
		})
		require.NoError(t, err)

		failed := errors.New("validation failed")
		err = p.Cursor(ctx, pool.CursorDict, func(cur *pool.Cursor) error {
			if _, err := cur.Exec(ctx, "INSERT INTO account VALUES (?, ?)", "bob", 41); err != nil {
				return err
			}
			return failed
		})
		require.ErrorIs(t, err, failed)

		// Then
		var rows []pool.Row
		err = p.Cursor(ctx, pool.CursorDict, func(cur *pool.Cursor) error {
			var err error
			rows, err = cur.FetchAll(ctx, "SELECT name, age FROM account ORDER BY name")
			return err
		})
		require.NoError(t, err)
		require.NotEmpty(t, rows)
		name, _ := rows[0].Get("name")
		assert.Equal(t, "alice", name)
		assert.Equal(t, 1, p.Size())
		assert.Equal(t, p.Size(), p.FreeSize())
	})
}
