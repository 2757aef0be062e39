package sqlconn_test

import (
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuku/connpool/internal/pool"
	"github.com/yuku/connpool/internal/sqlconn"
)

func TestConfig_FormatDSN(t *testing.T) {
	t.Parallel()

	t.Run("renders a mysql dsn", func(t *testing.T) {
		// Given
		cfg := sqlconn.Config{
			Driver:         "mysql",
			Host:           "db.local",
			User:           "chat",
			Password:       "secret",
			Database:       "chat_room",
			Charset:        "utf8mb4",
			Params:         map[string]string{"sql_mode": "TRADITIONAL"},
			ConnectTimeout: 5 * time.Second,
		}

		// When
		dsn, err := cfg.FormatDSN()

		// Then
		require.NoError(t, err)
		assert.Contains(t, dsn, "charset=utf8mb4")
		parsed, err := mysql.ParseDSN(dsn)
		require.NoError(t, err)
		assert.Equal(t, "chat", parsed.User)
		assert.Equal(t, "secret", parsed.Passwd)
		assert.Equal(t, "db.local:3306", parsed.Addr, "default port should be used")
		assert.Equal(t, "chat_room", parsed.DBName)
		assert.Equal(t, 5*time.Second, parsed.Timeout)
		assert.Equal(t, "TRADITIONAL", parsed.Params["sql_mode"])
	})

	t.Run("renders a postgres url", func(t *testing.T) {
		// Given
		cfg := sqlconn.Config{
			Driver:         "postgres",
			Host:           "pg.local",
			Port:           6543,
			User:           "chat",
			Password:       "p@ss word",
			Database:       "chat_room",
			Charset:        "utf8mb4",
			Params:         map[string]string{"sslmode": "disable"},
			ConnectTimeout: 1500 * time.Millisecond,
		}

		// When
		dsn, err := cfg.FormatDSN()

		// Then
		require.NoError(t, err)
		parsed, err := pgx.ParseConfig(dsn)
		require.NoError(t, err)
		assert.Equal(t, "pg.local", parsed.Host)
		assert.EqualValues(t, 6543, parsed.Port)
		assert.Equal(t, "chat", parsed.User)
		assert.Equal(t, "p@ss word", parsed.Password)
		assert.Equal(t, "chat_room", parsed.Database)
		assert.Equal(t, "UTF8", parsed.RuntimeParams["client_encoding"])
		assert.Equal(t, 2*time.Second, parsed.ConnectTimeout, "timeout rounds up to whole seconds")
	})

	t.Run("explicit dsn wins", func(t *testing.T) {
		cfg := sqlconn.Config{Driver: "sqlite", DSN: "file:chat.db", Host: "ignored"}

		dsn, err := cfg.FormatDSN()

		require.NoError(t, err)
		assert.Equal(t, "file:chat.db", dsn)
	})

	t.Run("rejects invalid configuration", func(t *testing.T) {
		tests := []struct {
			name string
			cfg  sqlconn.Config
		}{
			{name: "empty driver", cfg: sqlconn.Config{Host: "db"}},
			{name: "missing host", cfg: sqlconn.Config{Driver: "mysql"}},
			{name: "port out of range", cfg: sqlconn.Config{Driver: "mysql", Host: "db", Port: 70000}},
			{name: "sqlite without dsn", cfg: sqlconn.Config{Driver: "sqlite", Host: "db"}},
			{name: "unknown driver without dialect", cfg: sqlconn.Config{Driver: "oracle", DSN: "x"}},
			{name: "unknown dialect", cfg: sqlconn.Config{Driver: "mysql", Dialect: "db2", Host: "db"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := tt.cfg.FormatDSN()
				assert.ErrorIs(t, err, pool.ErrConfiguration)
			})
		}
	})
}

func TestConfig_ResolveDialect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cfg  sqlconn.Config
		want sqlconn.Dialect
	}{
		{cfg: sqlconn.Config{Driver: "mysql"}, want: sqlconn.DialectMySQL},
		{cfg: sqlconn.Config{Driver: "pgx"}, want: sqlconn.DialectPostgres},
		{cfg: sqlconn.Config{Driver: "postgresql"}, want: sqlconn.DialectPostgres},
		{cfg: sqlconn.Config{Driver: "sqlite3"}, want: sqlconn.DialectSQLite},
		{cfg: sqlconn.Config{Driver: "sqlmock", Dialect: "MariaDB"}, want: sqlconn.DialectMySQL},
	}

	for _, tt := range tests {
		t.Run(tt.cfg.Driver, func(t *testing.T) {
			got, err := tt.cfg.ResolveDialect()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultPort(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3306, sqlconn.DefaultPort("mysql"))
	assert.Equal(t, 5432, sqlconn.DefaultPort("postgres"))
	assert.Zero(t, sqlconn.DefaultPort("sqlite"))
}
