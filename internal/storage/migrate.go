package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrationsFS embed.FS

// dialectMap maps database drivers to goose dialect names and the
// migrations subdirectory written for that dialect.
var dialectMap = map[string]struct{ dialect, dir string }{
	DriverSQLite:   {"sqlite3", "migrations/sqlite"},
	DriverPostgres: {"postgres", "migrations/postgres"},
}

// goose keeps its base FS, dialect and logger in package globals.
var gooseMu sync.Mutex

type gooseLogger struct {
	ctx context.Context
	log logging.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.Debug(g.ctx, fmt.Sprintf(format, v...))
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	g.log.Error(g.ctx, msg)
	panic(msg)
}

func (s *Store) withGoose(ctx context.Context, fn func() error) error {
	d := dialectMap[s.driver]

	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := goose.SetDialect(d.dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	sub, err := fs.Sub(migrationsFS, d.dir)
	if err != nil {
		return fmt.Errorf("failed to get migrations directory: %w", err)
	}
	goose.SetBaseFS(sub)
	goose.SetLogger(gooseLogger{ctx: ctx, log: s.log})
	defer goose.SetBaseFS(nil)

	return fn()
}

// Migrate applies all pending migrations. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	return s.withGoose(ctx, func() error {
		if err := goose.UpContext(ctx, s.sqlDB(), "."); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		return nil
	})
}

// Version reports the applied schema version.
func (s *Store) Version(ctx context.Context) (int64, error) {
	var v int64
	err := s.withGoose(ctx, func() error {
		var err error
		v, err = goose.GetDBVersionContext(ctx, s.sqlDB())
		return err
	})
	return v, err
}

// Reset drops every table and recreates the schema, leaving an empty vault.
// It exists for tests and for the "reset" maintenance command; all data is lost.
func (s *Store) Reset(ctx context.Context) error {
	return s.withGoose(ctx, func() error {
		if err := goose.ResetContext(ctx, s.sqlDB(), "."); err != nil {
			return fmt.Errorf("failed to reset schema: %w", err)
		}
		if err := goose.UpContext(ctx, s.sqlDB(), "."); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		s.log.Warn(ctx, "database reset to empty schema")
		return nil
	})
}
