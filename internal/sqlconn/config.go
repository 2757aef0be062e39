// Package sqlconn creates pooled connections through database/sql. MySQL is
// served by go-sql-driver/mysql and PostgreSQL by the pgx stdlib driver; any
// other registered driver can be used with an explicit DSN.
package sqlconn

import (
	"fmt"
	"maps"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/yuku/connpool/internal/pool"
)

// Driver names as registered with database/sql.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Default server ports.
const (
	DefaultMySQLPort    = 3306
	DefaultPostgresPort = 5432
)

// Config describes how to reach the database.
type Config struct {
	// Driver is the database/sql driver name. "postgres" and "postgresql"
	// are accepted as aliases of the pgx driver.
	Driver string
	// Dialect overrides the dialect derived from Driver.
	Dialect Dialect
	// DSN, when set, is passed to the driver as is and the connection
	// fields below are ignored.
	DSN string

	Host     string
	User     string
	Password string
	Database string
	Port     int
	Charset  string
	// Params are extra driver parameters appended to the rendered DSN.
	Params map[string]string
	// ConnectTimeout bounds dialing a new session. Zero means no bound.
	ConnectTimeout time.Duration
}

// DefaultPort returns the server port used when Config.Port is zero.
func DefaultPort(driver string) int {
	switch normalizeDriver(driver) {
	case DriverMySQL:
		return DefaultMySQLPort
	case DriverPostgres:
		return DefaultPostgresPort
	}
	return 0
}

func normalizeDriver(driver string) string {
	switch d := strings.ToLower(strings.TrimSpace(driver)); d {
	case "postgres", "postgresql", "pgx", "pgx/v5":
		return DriverPostgres
	case "sqlite3":
		return DriverSQLite
	default:
		return d
	}
}

// DriverName returns the database/sql driver name for c.
func (c Config) DriverName() string {
	return normalizeDriver(c.Driver)
}

// ResolveDialect returns the explicit dialect or the one implied by the driver.
func (c Config) ResolveDialect() (Dialect, error) {
	if c.Dialect != "" {
		return ParseDialect(string(c.Dialect))
	}
	switch c.DriverName() {
	case DriverMySQL:
		return DialectMySQL, nil
	case DriverPostgres:
		return DialectPostgres, nil
	case DriverSQLite:
		return DialectSQLite, nil
	}
	return "", fmt.Errorf("%w: no dialect known for driver %q", pool.ErrConfiguration, c.Driver)
}

// Validate checks that c describes a reachable database.
func (c Config) Validate() error {
	if c.DriverName() == "" {
		return fmt.Errorf("%w: driver cannot be empty", pool.ErrConfiguration)
	}
	if _, err := c.ResolveDialect(); err != nil {
		return err
	}
	if c.DSN != "" {
		return nil
	}
	switch c.DriverName() {
	case DriverMySQL, DriverPostgres:
	default:
		return fmt.Errorf("%w: driver %q requires an explicit dsn", pool.ErrConfiguration, c.Driver)
	}
	if c.Host == "" {
		return fmt.Errorf("%w: host cannot be empty", pool.ErrConfiguration)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", pool.ErrConfiguration, c.Port)
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("%w: connect timeout cannot be negative", pool.ErrConfiguration)
	}
	return nil
}

// FormatDSN renders the data source name handed to the driver.
func (c Config) FormatDSN() (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	if c.DSN != "" {
		return c.DSN, nil
	}
	if c.DriverName() == DriverMySQL {
		return c.mysqlDSN(), nil
	}
	return c.postgresDSN()
}

func (c Config) address() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort(c.Driver)
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

func (c Config) mysqlDSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = c.address()
	mc.DBName = c.Database
	mc.Timeout = c.ConnectTimeout

	params := maps.Clone(c.Params)
	if c.Charset != "" {
		if params == nil {
			params = make(map[string]string)
		}
		params["charset"] = c.Charset
	}
	mc.Params = params
	return mc.FormatDSN()
}

func (c Config) postgresDSN() (string, error) {
	query := url.Values{}
	for _, k := range slices.Sorted(maps.Keys(c.Params)) {
		query.Set(k, c.Params[k])
	}
	if enc := postgresEncoding(c.Charset); enc != "" && !query.Has("client_encoding") {
		query.Set("client_encoding", enc)
	}
	if c.ConnectTimeout > 0 && !query.Has("connect_timeout") {
		seconds := int((c.ConnectTimeout + time.Second - 1) / time.Second)
		query.Set("connect_timeout", strconv.Itoa(seconds))
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     c.address(),
		Path:     "/" + c.Database,
		RawQuery: query.Encode(),
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}

	dsn := u.String()
	if _, err := pgx.ParseConfig(dsn); err != nil {
		return "", fmt.Errorf("%w: invalid postgres connection string: %w", pool.ErrConfiguration, err)
	}
	return dsn, nil
}

// postgresEncoding maps a MySQL style charset to a client_encoding value.
func postgresEncoding(charset string) string {
	switch strings.ToLower(charset) {
	case "":
		return ""
	case "utf8", "utf8mb4", "utf-8":
		return "UTF8"
	default:
		return charset
	}
}
