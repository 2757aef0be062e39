// Package connpool provides a named, dynamically resizing pool of database
// connections shared by concurrent request handlers.
//
// A pool starts small and grows on demand: when no connection is free it
// creates one, raising its max capacity by a scale factor up to a hard
// boundary. At the boundary a borrow blocks until a peer returns a
// connection or the caller's context is done. Every borrowed connection is
// pinged, and reconnected when its session died, before it is handed out.
//
// Pools are registered by name. Opening a name twice returns the first pool
// and ignores the second configuration.
//
// Basic usage:
//
//	cfg := connpool.DefaultConfig()
//	cfg.Name = "corgi"
//	cfg.Host = "db.example.com"
//	cfg.User = "chat"
//	cfg.Password = "secret"
//	cfg.Database = "corgi"
//
//	pool, err := connpool.Open(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Run statements in autocommit mode; failures roll back.
//	err = pool.Cursor(ctx, connpool.CursorDict, func(cur *connpool.Cursor) error {
//		rows, err := cur.FetchAll(ctx, "SELECT id, nickname FROM account WHERE id = ?", id)
//		if err != nil {
//			return err
//		}
//		fmt.Println(rows[0].Map())
//		return nil
//	})
//
//	// Or hold a connection with autocommit off.
//	err = pool.Connection(ctx, false, func(h *connpool.Handle) error {
//		if _, err := h.Conn().ExecContext(ctx, "UPDATE account SET nickname = ? WHERE id = ?", name, id); err != nil {
//			return err
//		}
//		return h.Conn().SetAutocommit(ctx, true) // commit
//	})
//
// Borrow has no implicit timeout. Bound it with the context:
//
//	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
//	defer cancel()
//	h, err := pool.Borrow(ctx)
//	if err != nil {
//		return err
//	}
//	defer h.Release()
package connpool
