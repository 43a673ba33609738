package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rayattack/amebo/internal/ameboerr"
)

// PostgresStore is the networked backend: a connection pool against a single
// Postgres database, with every table reference qualified under schemaName.
// Grounded on the teacher's common/mpostgres.PostgresConnection, dropping the
// primary/replica split (dbresolver) since Amebo has no such concept.
type PostgresStore struct {
	db         *sql.DB
	schemaName string
}

// NewPostgresStore opens dsn, runs migrations found under migrationsDir
// against schemaName, and returns a ready Store.
func NewPostgresStore(ctx context.Context, dsn, schemaName, migrationsDir string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migratePostgres(db, schemaName, migrationsDir); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}

	return &PostgresStore{db: db, schemaName: schemaName}, nil
}

func migratePostgres(db *sql.DB, schemaName, migrationsDir string) error {
	abs, err := filepath.Abs(migrationsDir)
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MultiStatementEnabled: true,
		SchemaName:            schemaName,
	})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(abs), schemaName, driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

func (s *PostgresStore) Executor(ctx context.Context) Executor {
	return GetExecutor(ctx, s.db)
}

func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return RunInTransaction(ctx, s.db, fn)
}

func (s *PostgresStore) Schema() string {
	return s.schemaName + "."
}

func (s *PostgresStore) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func (s *PostgresStore) Dialect() Dialect {
	return DialectPostgres
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// TranslateError maps a Postgres driver error to an ameboerr kind. Every
// repository in Catalog and Publisher that writes to Postgres should route
// its error through this before returning, the way the teacher's
// adapters/postgres layer checks pgconn.PgError codes.
func TranslateError(entityType string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return ameboerr.ConflictError{EntityType: entityType}
		case "23503": // foreign_key_violation
			return ameboerr.UnprocessableError{Message: fmt.Sprintf("%s references a row that does not exist", entityType)}
		case "23514": // check_violation
			return ameboerr.BadInputError{Message: fmt.Sprintf("%s violates a data constraint", entityType)}
		}
	}

	if IsNotFound(err) {
		return ameboerr.NotFoundError{EntityType: entityType}
	}

	// sqlite's driver reports unique violations as a plain string error, not a
	// typed one, so this fallback lets the same translator serve both
	// backends (Catalog, Publisher and Replay call TranslateError for either).
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ameboerr.ConflictError{EntityType: entityType}
	}

	if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
		return ameboerr.UnprocessableError{Message: fmt.Sprintf("%s references a row that does not exist", entityType)}
	}

	if strings.Contains(err.Error(), "CHECK constraint failed") {
		return ameboerr.BadInputError{Message: fmt.Sprintf("%s violates a data constraint", entityType)}
	}

	return ameboerr.StoreError{Cause: err}
}
