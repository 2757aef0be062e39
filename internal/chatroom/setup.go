package chatroom

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/yuku/connpool/internal/pool"
)

//go:embed schema.sql
var schemaSQL string

// setupLockID serializes concurrent Setup calls across processes.
// The value is arbitrary but must be the same everywhere.
const setupLockID int64 = 72_731

// Setup creates the chat_message table. It takes a transaction scoped
// advisory lock so concurrent calls do not race. If the table already
// exists, it does nothing. p must use the postgres dialect.
func Setup(ctx context.Context, p *pool.Pool) error {
	return p.Connection(ctx, false, func(h *pool.Handle) (err error) {
		conn := h.Conn()
		defer func() {
			if err != nil {
				_ = conn.Rollback(ctx)
			}
		}()

		if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", setupLockID); err != nil {
			return fmt.Errorf("failed to acquire advisory lock: %w", err)
		}

		var exists bool
		if err := conn.QueryRowContext(ctx, "SELECT to_regclass('chat_message') IS NOT NULL").Scan(&exists); err != nil {
			return fmt.Errorf("failed to check if chat_message table exists: %w", err)
		}
		if exists {
			return nil
		}

		if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("failed to create chat_message table: %w", err)
		}
		return nil
	})
}

// Cleanup drops the chat_message table.
func Cleanup(ctx context.Context, p *pool.Pool) error {
	return p.Cursor(ctx, pool.CursorDefault, func(cur *pool.Cursor) error {
		if _, err := cur.Exec(ctx, "DROP TABLE IF EXISTS chat_message"); err != nil {
			return fmt.Errorf("failed to drop chat_message table: %w", err)
		}
		return nil
	})
}
