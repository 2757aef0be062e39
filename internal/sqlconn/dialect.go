package sqlconn

import (
	"fmt"
	"strings"

	"github.com/yuku/connpool/internal/pool"
)

// Dialect selects the statements used to drive session state.
type Dialect string

const (
	// DialectMySQL toggles the server side autocommit variable.
	DialectMySQL Dialect = "mysql"
	// DialectPostgres emulates autocommit off with an open transaction.
	DialectPostgres Dialect = "postgres"
	// DialectSQLite behaves like DialectPostgres.
	DialectSQLite Dialect = "sqlite"
)

// ParseDialect parses a dialect name.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	}
	return "", fmt.Errorf("%w: unknown dialect %q", pool.ErrConfiguration, s)
}

// nativeAutocommit reports whether the server has a session autocommit
// switch. Without one, autocommit off is an open transaction.
func (d Dialect) nativeAutocommit() bool {
	return d == DialectMySQL
}

// autocommitStatement returns the statement that moves a session into mode on.
func (d Dialect) autocommitStatement(on bool) string {
	if d.nativeAutocommit() {
		if on {
			return "SET autocommit = 1"
		}
		return "SET autocommit = 0"
	}
	if on {
		return "COMMIT"
	}
	return "BEGIN"
}
