// Package store abstracts the two relational backends Amebo can run
// against (an embedded single-file SQLite database and a networked
// PostgreSQL database) behind one operation set, per spec.md §4.1.
package store

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
)

// Store is the single component that talks to a database. All SQL built by
// callers (Catalog, Publisher, Dispatcher, Replay) is schema-qualified with
// Schema() and placeholder-adapted with BuilderFor(Dialect()); the resulting
// executor is transaction-aware via context (see RunInTransaction).
type Store interface {
	// Executor returns the Executor to issue queries against: the
	// transaction carried by ctx when one is present (see RunInTransaction),
	// otherwise the pooled connection.
	Executor(ctx context.Context) Executor

	// RunInTransaction groups every Store call made by fn under one
	// transaction. Required by the Publisher's fan-out (spec.md §4.5).
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Schema returns the qualifier prefix prepended to every table
	// reference: "" for the embedded backend, "<namespace>." for the
	// networked backend.
	Schema() string

	// Placeholder returns the backend's positional placeholder form for the
	// n-th parameter (1-indexed): "?" for embedded, "$n" for networked.
	Placeholder(n int) string

	// Dialect reports which backend is active, for callers (like the
	// Dispatcher's reconcile step) that must pick a backend-specific
	// bulk-update strategy.
	Dialect() Dialect

	Ping(ctx context.Context) error
	Close() error
}

// Dialect names a supported backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// IsNotFound reports whether err is database/sql's no-rows sentinel, the
// single condition every repository Find must translate into a NotFoundError.
func IsNotFound(err error) bool {
	return err == sql.ErrNoRows
}

// BuilderFor returns a squirrel StatementBuilder using dialect's placeholder
// style ("$n" for Postgres, "?" for SQLite) — every package that builds SQL
// against a Store (Catalog, Publisher, Dispatcher, the admin bootstrap) uses
// this instead of hard-coding a placeholder format.
func BuilderFor(dialect Dialect) sq.StatementBuilderType {
	if dialect == DialectPostgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}

	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}
