package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextWithTxNilTx(t *testing.T) {
	ctx := context.Background()
	ctxWithTx := ContextWithTx(ctx, nil)

	assert.Nil(t, TxFromContext(ctxWithTx))
}

func TestTxFromContextNoTx(t *testing.T) {
	assert.Nil(t, TxFromContext(context.Background()))
}

func TestContextWithTxRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	ctxWithTx := ContextWithTx(context.Background(), tx)
	assert.Equal(t, tx, TxFromContext(ctxWithTx))

	mock.ExpectRollback()
	_ = tx.Rollback()
}

func TestGetExecutorWithTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	executor := GetExecutor(ContextWithTx(context.Background(), tx), db)

	_, isTx := executor.(*sql.Tx)
	assert.True(t, isTx)

	mock.ExpectRollback()
	_ = tx.Rollback()
}

func TestGetExecutorWithoutTx(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	executor := GetExecutor(context.Background(), db)

	_, isDB := executor.(*sql.DB)
	assert.True(t, isDB)
}

func TestRunInTransactionSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	called := false
	err = RunInTransaction(context.Background(), db, func(ctx context.Context) error {
		called = true
		assert.NotNil(t, TxFromContext(ctx))
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionFunctionError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	expected := errors.New("function error")
	err = RunInTransaction(context.Background(), db, func(ctx context.Context) error {
		return expected
	})

	assert.Equal(t, expected, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionBeginError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expected := errors.New("begin error")
	mock.ExpectBegin().WillReturnError(expected)

	err = RunInTransaction(context.Background(), db, func(ctx context.Context) error {
		t.Fatal("function should not be called")
		return nil
	})

	assert.Equal(t, expected, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionPanic(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = RunInTransaction(context.Background(), db, func(ctx context.Context) error {
			panic("test panic")
		})
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionCommitError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expected := errors.New("commit error")
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(expected)
	mock.ExpectRollback()

	err = RunInTransaction(context.Background(), db, func(ctx context.Context) error {
		return nil
	})

	assert.Equal(t, expected, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(sql.ErrNoRows))
	assert.False(t, IsNotFound(errors.New("boom")))
}
