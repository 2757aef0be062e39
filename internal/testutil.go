package internal

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/yuku/connpool/internal/pool"
	"github.com/yuku/connpool/internal/sqlconn"
)

// SkipWithoutDatabase skips t unless a PostgreSQL server is configured
// through DATABASE_URL or PGHOST.
func SkipWithoutDatabase(t *testing.T) {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" && os.Getenv("PGHOST") == "" {
		t.Skip("set DATABASE_URL or PGHOST to run PostgreSQL integration tests")
	}
}

// GetConnection returns a connection to the PostgreSQL database.
func GetConnection(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return conn, nil
}

// MustGetConnectionWithCleanup returns a connection to the PostgreSQL
// database that is closed when the test completes.
func MustGetConnectionWithCleanup(t *testing.T) *pgx.Conn {
	t.Helper()
	ctx := context.Background()
	conn, err := GetConnection(ctx)
	if err != nil {
		t.Fatalf("failed to get database connection: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(ctx) })
	return conn
}

// MustGetPoolWithCleanup returns a connection pool to the PostgreSQL
// database and automatically closes it when the test completes.
func MustGetPoolWithCleanup(t *testing.T, name string, cfg pool.Config) *pool.Pool {
	t.Helper()
	f, err := sqlconn.NewFactory(sqlconn.Config{Driver: sqlconn.DriverPostgres, DSN: ConnString()}, nil)
	if err != nil {
		t.Fatalf("failed to create factory: %v", err)
	}
	p, err := pool.New(context.Background(), name, f, cfg)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

// ConnString returns the PostgreSQL connection string of the test database.
func ConnString() string {
	if connStr := os.Getenv("DATABASE_URL"); connStr != "" {
		return connStr
	}

	host := getEnvOrDefault("PGHOST", "localhost")
	port := getEnvOrDefault("PGPORT", "5432")
	user := getEnvOrDefault("PGUSER", "postgres")
	password := getEnvOrDefault("PGPASSWORD", "postgres")
	database := getEnvOrDefault("PGDATABASE", "postgres")

	if password != "" {
		return fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			user, password, host, port, database,
		)
	}
	return fmt.Sprintf(
		"postgres://%s@%s:%s/%s?sslmode=disable",
		user, host, port, database,
	)
}

// getEnvOrDefault retrieves an environment variable or returns a default value
// if the variable is not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
