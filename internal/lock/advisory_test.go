package lock

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestNewAdvisoryLock(t *testing.T) {
	db, _ := newMockDB(t)
	lock := NewAdvisoryLock(db, "test_lock")

	require.NotNil(t, lock)
	assert.Equal(t, "test_lock", lock.LockName())
	assert.False(t, lock.IsHeld())
}

func TestLockKeyIsDeterministic(t *testing.T) {
	assert.Equal(t, lockKey("same"), lockKey("same"))
	assert.NotEqual(t, lockKey("a"), lockKey("b"))
}

func TestAcquireLockImmediateSuccess(t *testing.T) {
	db, mock := newMockDB(t)
	lock := NewAdvisoryLock(db, "mylock")

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(lock.key).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))

	acquired, err := lock.AcquireLock(context.Background(), TimeoutImmediate)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, lock.IsHeld())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLockImmediateUnavailable(t *testing.T) {
	db, mock := newMockDB(t)
	lock := NewAdvisoryLock(db, "mylock")

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(lock.key).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	acquired, err := lock.AcquireLock(context.Background(), TimeoutImmediate)
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.False(t, lock.IsHeld())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLockAlreadyHeldIsIdempotent(t *testing.T) {
	db, mock := newMockDB(t)
	lock := NewAdvisoryLock(db, "mylock")

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(lock.key).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))

	acquired, err := lock.AcquireLock(context.Background(), TimeoutImmediate)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired2, err := lock.AcquireLock(context.Background(), TimeoutImmediate)
	require.NoError(t, err)
	assert.True(t, acquired2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLockWithTimeoutSetsLockTimeout(t *testing.T) {
	db, mock := newMockDB(t)
	lock := NewAdvisoryLock(db, "mylock")

	mock.ExpectExec(`SET lock_timeout = '5s'`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SELECT pg_advisory_lock\(\$1\)`).
		WithArgs(lock.key).
		WillReturnResult(sqlmock.NewResult(0, 0))

	acquired, err := lock.AcquireLock(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLockWithTimeoutReturnsFalseOnLockTimeoutError(t *testing.T) {
	db, mock := newMockDB(t)
	lock := NewAdvisoryLock(db, "mylock")

	mock.ExpectExec(`SET lock_timeout = '1s'`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SELECT pg_advisory_lock\(\$1\)`).
		WithArgs(lock.key).
		WillReturnError(&pq.Error{Code: pgLockTimeoutCode, Message: "lock not available"})

	acquired, err := lock.AcquireLock(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.False(t, lock.IsHeld())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLockWithTimeoutPropagatesOtherErrors(t *testing.T) {
	db, mock := newMockDB(t)
	lock := NewAdvisoryLock(db, "mylock")

	mock.ExpectExec(`SET lock_timeout = '1s'`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SELECT pg_advisory_lock\(\$1\)`).
		WithArgs(lock.key).
		WillReturnError(errors.New("connection reset"))

	acquired, err := lock.AcquireLock(context.Background(), 1)
	assert.Error(t, err)
	assert.False(t, acquired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseLockWhenNotHeldIsNoOp(t *testing.T) {
	db, _ := newMockDB(t)
	lock := NewAdvisoryLock(db, "mylock")

	released, err := lock.ReleaseLock(context.Background())
	require.NoError(t, err)
	assert.False(t, released)
}

func TestReleaseLockAfterAcquire(t *testing.T) {
	db, mock := newMockDB(t)
	lock := NewAdvisoryLock(db, "mylock")

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(lock.key).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectQuery(`SELECT pg_advisory_unlock\(\$1\)`).
		WithArgs(lock.key).
		WillReturnRows(sqlmock.NewRows([]string{"pg_advisory_unlock"}).AddRow(true))

	acquired, err := lock.AcquireLock(context.Background(), TimeoutImmediate)
	require.NoError(t, err)
	require.True(t, acquired)

	released, err := lock.ReleaseLock(context.Background())
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, lock.IsHeld())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateBlueprintLockNameIsOrderIndependent(t *testing.T) {
	a := GenerateBlueprintLockName([]string{"posts", "users"})
	b := GenerateBlueprintLockName([]string{"users", "posts"})
	assert.Equal(t, a, b)
	assert.Contains(t, a, "populous:blueprint:")
}

func TestWithLockReleasesAfterSuccess(t *testing.T) {
	db, mock := newMockDB(t)
	lock := NewAdvisoryLock(db, "mylock")

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(lock.key).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectQuery(`SELECT pg_advisory_unlock\(\$1\)`).
		WithArgs(lock.key).
		WillReturnRows(sqlmock.NewRows([]string{"pg_advisory_unlock"}).AddRow(true))

	ran := false
	err := lock.WithLock(context.Background(), TimeoutImmediate, func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, lock.IsHeld())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithLockReturnsErrLockTimeoutWhenUnavailable(t *testing.T) {
	db, mock := newMockDB(t)
	lock := NewAdvisoryLock(db, "mylock")

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(lock.key).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	err := lock.WithLock(context.Background(), TimeoutImmediate, func() error {
		t.Fatal("fn should not run when lock is unavailable")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	require.NoError(t, mock.ExpectationsWereMet())
}
