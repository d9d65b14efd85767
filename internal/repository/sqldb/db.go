// Package sqldb implements the repository interfaces on top of database/sql.
//
// The same queries run on two engines:
//   - SQLite through modernc.org/sqlite (pure Go, no CGo). The default, and
//     what the tests use with ":memory:".
//   - PostgreSQL through pgx's database/sql adapter, for shared deployments.
//
// Queries are written with ? placeholders; the Dialect rewrites them where
// the engine wants something else.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/sakif/chore-tracker/internal/repository"

	// Registers the "pgx" driver with database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

var _ repository.Store = (*DB)(nil)

// Options selects and configures the engine.
type Options struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string
	// DSN is a file path or ":memory:" for sqlite, a connection URL for postgres.
	DSN    string
	Logger *slog.Logger
}

// DB is a connection pool plus the dialect it speaks. It implements
// repository.Store.
type DB struct {
	conn    *sql.DB
	dialect Dialect
	logger  *slog.Logger
	q       querier
}

// Open creates the pool and verifies the connection. It does not touch the
// schema; call Migrate for that.
func Open(ctx context.Context, opts Options) (*DB, error) {
	dialect, err := DialectFor(opts.Driver)
	if err != nil {
		return nil, fmt.Errorf("sqldb: %w", err)
	}
	if opts.DSN == "" {
		return nil, fmt.Errorf("sqldb: empty data source for %s", dialect.Name())
	}

	conn, err := sql.Open(dialect.DriverName(), dialect.DSN(opts.DSN))
	if err != nil {
		return nil, fmt.Errorf("sqldb: opening %s database: %w", dialect.Name(), err)
	}

	if err := dialect.ConfigureConnection(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqldb: configuring connection: %w", err)
	}

	// sql.Open only builds the pool; Ping forces a real connection so a bad
	// path or URL fails here instead of on the first request.
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqldb: pinging %s database: %w", dialect.Name(), err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DB{
		conn:    conn,
		dialect: dialect,
		logger:  logger,
		q:       querier{db: conn, dialect: dialect},
	}, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Dialect reports which engine the pool talks to.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// PingContext is used by the health check.
func (db *DB) PingContext(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Users() repository.UserRepository       { return userRepo{db.q} }
func (db *DB) Profiles() repository.ProfileRepository { return profileRepo{db.q} }
func (db *DB) Families() repository.FamilyRepository  { return familyRepo{db.q} }
func (db *DB) Chores() repository.ChoreRepository     { return choreRepo{db.q} }

// InTx runs fn inside a transaction. Every repository reached through tx
// shares it, so the writes commit together or not at all.
//
// With SQLite the pool holds one connection: fn must not use db directly
// while the transaction is open or it will wait on itself.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return WithTx(ctx, db.conn, nil, func(ctx context.Context, tx DBTX) error {
		return fn(ctx, txRepos{querier{db: tx, dialect: db.dialect}})
	})
}

// txRepos binds the repositories to an open transaction.
type txRepos struct {
	q querier
}

func (t txRepos) Users() repository.UserRepository       { return userRepo{t.q} }
func (t txRepos) Profiles() repository.ProfileRepository { return profileRepo{t.q} }
func (t txRepos) Families() repository.FamilyRepository  { return familyRepo{t.q} }
func (t txRepos) Chores() repository.ChoreRepository     { return choreRepo{t.q} }
