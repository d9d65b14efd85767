package sqldb

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Dialect hides the differences between the SQL engines we can run on.
// Queries are written once with ? placeholders and rewritten per engine.
type Dialect interface {
	// Name is the value accepted in Options.Driver.
	Name() string
	// DriverName is the database/sql driver registered by the import.
	DriverName() string
	// DSN turns the configured data source into what the driver expects.
	DSN(source string) string
	RewriteQuery(query string) string
	ConfigureConnection(db *sql.DB) error
	// GooseDialect and MigrationsDir select the embedded migration set.
	GooseDialect() string
	MigrationsDir() string
}

// DialectFor resolves a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3", "":
		return sqliteDialect{}, nil
	case "postgres", "postgresql", "pgx":
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string       { return "sqlite" }
func (sqliteDialect) DriverName() string { return "sqlite" }

// DSN enables foreign keys and a busy timeout on every connection through
// modernc's _pragma parameters. File databases also get WAL journaling.
func (sqliteDialect) DSN(source string) string {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if source != ":memory:" && !strings.Contains(source, "mode=memory") {
		pragmas += "&_pragma=journal_mode(WAL)"
	}
	sep := "?"
	if strings.Contains(source, "?") {
		sep = "&"
	}
	return source + sep + pragmas
}

func (sqliteDialect) RewriteQuery(query string) string { return query }

// ConfigureConnection pins the pool to one connection. An in-memory database
// exists per connection, and SQLite serializes writers anyway.
func (sqliteDialect) ConfigureConnection(db *sql.DB) error {
	db.SetMaxOpenConns(1)
	return nil
}

func (sqliteDialect) GooseDialect() string  { return "sqlite3" }
func (sqliteDialect) MigrationsDir() string { return "migrations/sqlite" }

type postgresDialect struct{}

func (postgresDialect) Name() string             { return "postgres" }
func (postgresDialect) DriverName() string       { return "pgx" }
func (postgresDialect) DSN(source string) string { return source }

func (postgresDialect) RewriteQuery(query string) string {
	return rewritePlaceholders(query)
}

func (postgresDialect) ConfigureConnection(db *sql.DB) error {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return nil
}

func (postgresDialect) GooseDialect() string  { return "postgres" }
func (postgresDialect) MigrationsDir() string { return "migrations/postgres" }

// rewritePlaceholders converts ? placeholders to $1, $2, ... Our queries never
// contain a literal question mark, so no quoting rules are needed.
func rewritePlaceholders(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
