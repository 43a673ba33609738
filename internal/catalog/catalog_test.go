package catalog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rayattack/amebo/internal/ameboerr"
	"github.com/rayattack/amebo/internal/store"
)

// sqlmockStore adapts a sqlmock *sql.DB to store.Store for unit tests that
// don't need a real SQLite/Postgres connection.
type sqlmockStore struct {
	db *sql.DB
}

func (s *sqlmockStore) Executor(ctx context.Context) store.Executor { return store.GetExecutor(ctx, s.db) }
func (s *sqlmockStore) RunInTransaction(ctx context.Context, fn func(context.Context) error) error {
	return store.RunInTransaction(ctx, s.db, fn)
}
func (s *sqlmockStore) Schema() string                 { return "" }
func (s *sqlmockStore) Placeholder(n int) string       { return "?" }
func (s *sqlmockStore) Dialect() store.Dialect         { return store.DialectSQLite }
func (s *sqlmockStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *sqlmockStore) Close() error                   { return s.db.Close() }

func newMockCatalog(t *testing.T) (*Catalog, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	return New(&sqlmockStore{db: db}), mock, func() { db.Close() }
}

func TestInsertApplicationTrimsTrailingSlash(t *testing.T) {
	c, mock, cleanup := newMockCatalog(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO applications").
		WithArgs("checkout", "https://checkout.internal", "a-very-long-shared-secret", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	app, err := c.InsertApplication(context.Background(), Application{
		Name:    "checkout",
		Address: "https://checkout.internal/",
		Secret:  "a-very-long-shared-secret",
	})

	require.NoError(t, err)
	assert.Equal(t, "https://checkout.internal", app.Address)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertApplicationConflict(t *testing.T) {
	c, mock, cleanup := newMockCatalog(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO applications").
		WillReturnError(fakeUniqueViolation())

	_, err := c.InsertApplication(context.Background(), Application{Name: "checkout", Address: "x", Secret: "y"})
	assert.IsType(t, ameboerr.ConflictError{}, err)
}

func TestApplicationSecretNotFound(t *testing.T) {
	c, mock, cleanup := newMockCatalog(t)
	defer cleanup()

	mock.ExpectQuery("SELECT secret FROM applications").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := c.SecretOf(context.Background(), "ghost")
	assert.IsType(t, ameboerr.NotFoundError{}, err)
}

func TestListApplicationsRedactsNothingAtCatalogLayer(t *testing.T) {
	c, mock, cleanup := newMockCatalog(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"name", "address", "secret", "created_at"}).
		AddRow("checkout", "https://checkout.internal", "secret-value", time.Now())

	mock.ExpectQuery("SELECT (.+) FROM applications").WillReturnRows(rows)

	apps, err := c.ListApplications(context.Background(), Filter{}, Page{Page: 1, Pagination: 10})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "secret-value", apps[0].Secret)
}

func TestInsertActionRequiresMatchingSecret(t *testing.T) {
	c, mock, cleanup := newMockCatalog(t)
	defer cleanup()

	mock.ExpectQuery("SELECT secret FROM applications").
		WithArgs("checkout").
		WillReturnRows(sqlmock.NewRows([]string{"secret"}).AddRow("the-real-secret"))

	_, err := c.InsertAction(context.Background(), "checkout", "wrong-secret", Action{Name: "order.created", Schemata: "{}"})
	assert.IsType(t, ameboerr.UnauthorizedError{}, err)
}

func fakeUniqueViolation() error {
	return &mockDriverError{msg: "UNIQUE constraint failed: applications.name"}
}

type mockDriverError struct{ msg string }

func (e *mockDriverError) Error() string { return e.msg }
