package sqlconn

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/yuku/connpool/internal/pool"
	"go.uber.org/zap"
)

// Factory opens Conn values for one database.
type Factory struct {
	driver  string
	dsn     string
	dialect Dialect
	cfg     Config
	logger  *zap.Logger
}

var _ pool.Factory = (*Factory)(nil)

// NewFactory validates cfg and renders its DSN. No connection is opened.
func NewFactory(cfg Config, logger *zap.Logger) (*Factory, error) {
	dsn, err := cfg.FormatDSN()
	if err != nil {
		return nil, err
	}
	dialect, err := cfg.ResolveDialect()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		driver:  cfg.DriverName(),
		dsn:     dsn,
		dialect: dialect,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "sqlconn"), zap.String("driver", cfg.DriverName())),
	}, nil
}

// Dialect returns the dialect of the connections f creates.
func (f *Factory) Dialect() Dialect {
	return f.dialect
}

// Create opens a new session in autocommit mode.
func (f *Factory) Create(ctx context.Context) (pool.Conn, error) {
	if f.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.ConnectTimeout)
		defer cancel()
	}

	db, err := sql.Open(f.driver, f.dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pool.ErrConnectionCreate, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", pool.ErrConnectionCreate, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", pool.ErrConnectionCreate, err)
	}

	f.logger.Debug("session opened", zap.String("host", f.cfg.Host), zap.String("database", f.cfg.Database))
	return &Conn{db: db, dialect: f.dialect, conn: conn, autocommit: true}, nil
}

// Ping checks that the session is alive. With reconnect set a dead session
// is replaced in place and nil is returned once the new one answers.
func (f *Factory) Ping(ctx context.Context, conn pool.Conn, reconnect bool) error {
	c, err := f.own(conn)
	if err != nil {
		return err
	}

	perr := c.ping(ctx)
	if perr == nil {
		return nil
	}
	if !reconnect {
		return fmt.Errorf("%w: %w", pool.ErrResourceUnavailable, perr)
	}

	f.logger.Info("reconnecting dead session", zap.Error(perr))
	if err := c.reconnect(ctx); err != nil {
		return fmt.Errorf("%w: %w", pool.ErrResourceUnavailable, err)
	}
	return nil
}

// Close closes the session and its private database handle.
func (f *Factory) Close(conn pool.Conn) error {
	c, err := f.own(conn)
	if err != nil {
		return err
	}
	return c.close()
}

func (f *Factory) own(conn pool.Conn) (*Conn, error) {
	c, ok := conn.(*Conn)
	if !ok || c == nil {
		return nil, fmt.Errorf("sqlconn: unexpected connection type %T", conn)
	}
	return c, nil
}
