// Package storage is the persistence gateway of the vault. It owns the
// database connection, applies the embedded schema migrations and hands out
// transactions to the folder manager and the file store.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/filex"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Store wraps the connection pool of the vault database.
type Store struct {
	db     *sqlx.DB
	driver string
	log    logging.Logger
}

// SQLiteDSN builds a modernc sqlite DSN for a database file with foreign
// keys enforced and a busy timeout for concurrent readers.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// sqlitePath extracts the file path from a sqlite DSN. It returns "" for
// in-memory databases.
func sqlitePath(dsn string) string {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return ""
	}
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p
}

// Open connects to the database, verifies the connection and brings the
// schema up to date.
func Open(ctx context.Context, driver, dsn string, log logging.Logger) (*Store, error) {
	if _, ok := dialectMap[driver]; !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if driver == DriverSQLite {
		if p := sqlitePath(dsn); p != "" {
			if err := filex.EnsurePrivateDir(filepath.Dir(p)); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if driver == DriverSQLite {
		// a single connection keeps writers serialized and transactions
		// on the same handle as the pragmas above
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	s := &Store{db: db, driver: driver, log: log.With("module", "storage")}

	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.log.Info(ctx, "database ready", "driver", driver)
	return s, nil
}

// DB returns the connection pool as a repository handle.
func (s *Store) DB() dbx.DBTX {
	return s.db
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.driver
}

// Begin starts an explicit transaction. The caller must Commit or Rollback.
func (s *Store) Begin(ctx context.Context) (*sqlx.Tx, error) {
	return s.db.BeginTxx(ctx, nil)
}

// WithTx runs fn inside a transaction, committing on success and rolling back
// on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return dbx.WithTx(ctx, s.db, nil, fn)
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// sqlDB exposes the raw *sql.DB for goose.
func (s *Store) sqlDB() *sql.DB {
	return s.db.DB
}
