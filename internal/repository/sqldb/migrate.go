package sqldb

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// Migrate applies every pending migration for the pool's dialect.
func (db *DB) Migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(db.dialect.GooseDialect()); err != nil {
		return fmt.Errorf("sqldb: setting migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.conn, db.dialect.MigrationsDir()); err != nil {
		return fmt.Errorf("sqldb: applying migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db.conn)
	if err != nil {
		return fmt.Errorf("sqldb: reading schema version: %w", err)
	}
	db.logger.Info("database schema up to date",
		slog.String("dialect", db.dialect.Name()),
		slog.Int64("version", version),
	)
	return nil
}
