package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is the embedded backend: a single-file database with no
// schema qualification and no concurrent-writer tuning beyond what
// database/sql already serializes through a single open connection.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens path (use ":memory:" for component tests), runs
// migrations found under migrationsDir, and returns a ready Store.
func NewSQLiteStore(ctx context.Context, path, migrationsDir string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite has no real concurrent-writer story; a single connection avoids
	// "database is locked" errors under the Dispatcher's concurrent reads.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migrateSQLite(db, migrationsDir); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func migrateSQLite(db *sql.DB, migrationsDir string) error {
	abs, err := filepath.Abs(migrationsDir)
	if err != nil {
		return err
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(abs), "sqlite3", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

func (s *SQLiteStore) Executor(ctx context.Context) Executor {
	return GetExecutor(ctx, s.db)
}

func (s *SQLiteStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return RunInTransaction(ctx, s.db, fn)
}

func (s *SQLiteStore) Schema() string {
	return ""
}

func (s *SQLiteStore) Placeholder(n int) string {
	return "?"
}

func (s *SQLiteStore) Dialect() Dialect {
	return DialectSQLite
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
