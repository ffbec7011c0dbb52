// Package sqlutil provides SQL dialect helpers shared by introspection and query rendering.
package sqlutil

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Dialect identifies the SQL flavour a query is rendered for.
type Dialect string

const (
	// MySQL covers MySQL and TiDB.
	MySQL Dialect = "mysql"
	// Postgres covers PostgreSQL through either lib/pq or pgx.
	Postgres Dialect = "postgres"
)

// DialectForDriver maps a configured database driver name to its dialect.
func DialectForDriver(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "mysql", "tidb":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// QuoteIdentifier quotes an identifier for the dialect, escaping embedded quote characters.
func (d Dialect) QuoteIdentifier(name string) string {
	if d == Postgres {
		return pq.QuoteIdentifier(name)
	}
	return QuoteIdentifier(name)
}

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// with backticks and escapes any backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// QuoteString quotes a SQL string literal with single quotes and escapes
// any single quotes within the string by doubling them.
func QuoteString(s string) string {
	escaped := strings.ReplaceAll(s, "'", "''")
	return "'" + escaped + "'"
}

// JSONFieldText renders an expression that extracts a top-level JSON key as text.
func (d Dialect) JSONFieldText(column, key string) string {
	if d == Postgres {
		return column + "->>" + QuoteString(key)
	}
	return "JSON_UNQUOTE(JSON_EXTRACT(" + column + ", " + QuoteString("$."+key) + "))"
}
