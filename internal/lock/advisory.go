// Package lock provides PostgreSQL advisory locking, scoping one lock per
// blueprint (keyed by its declared item names) so two concurrent `run`
// invocations against the same database can't race on the same tables'
// uniqueness state. Adapted from the teacher's MySQL GET_LOCK/RELEASE_LOCK
// AdvisoryLock.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ErrLockTimeout is returned when lock acquisition times out because
// another instance is holding the lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Common timeout values for lock acquisition (in seconds).
const (
	// TimeoutImmediate returns immediately if lock cannot be acquired (no wait).
	TimeoutImmediate = 0

	// TimeoutShort is suitable for fast-failing duplicate-run detection.
	TimeoutShort = 1

	// TimeoutMedium provides a reasonable wait for transient conflicts.
	TimeoutMedium = 10

	// TimeoutLong allows extended waiting for lock acquisition.
	TimeoutLong = 60

	// TimeoutInfinite waits indefinitely until the lock is acquired.
	TimeoutInfinite = -1
)

// pgLockTimeoutCode is the SQLSTATE Postgres raises when a statement's
// lock_timeout expires while waiting on pg_advisory_lock.
const pgLockTimeoutCode = "55P03"

// AdvisoryLock represents a PostgreSQL advisory lock. Postgres session-level
// advisory locks are tied to the connection that acquired them, so a lock
// pins one *sql.Conn out of db's pool for the lock's lifetime.
type AdvisoryLock struct {
	db       *sql.DB
	conn     *sql.Conn
	lockName string
	key      int64
	held     bool
}

// NewAdvisoryLock creates a new advisory lock with the given name. The lock
// is not acquired until AcquireLock is called.
func NewAdvisoryLock(db *sql.DB, lockName string) *AdvisoryLock {
	return &AdvisoryLock{
		db:       db,
		lockName: lockName,
		key:      lockKey(lockName),
	}
}

// lockKey hashes a lock name down to the int64 key pg_advisory_lock takes.
func lockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

// AcquireLock attempts to acquire the advisory lock with the specified
// timeout, in seconds (TimeoutImmediate for no wait, TimeoutInfinite to
// block indefinitely). Returns true if the lock was acquired, false if the
// timeout was reached.
func (a *AdvisoryLock) AcquireLock(ctx context.Context, timeoutSeconds int) (bool, error) {
	if a.held {
		return true, nil
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to reserve a connection for advisory lock: %w", err)
	}

	acquired, err := a.tryAcquireOn(ctx, conn, timeoutSeconds)
	if err != nil || !acquired {
		conn.Close()
		return false, err
	}

	a.conn = conn
	a.held = true
	return true, nil
}

func (a *AdvisoryLock) tryAcquireOn(ctx context.Context, conn *sql.Conn, timeoutSeconds int) (bool, error) {
	switch {
	case timeoutSeconds == TimeoutImmediate:
		var acquired bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", a.key).Scan(&acquired); err != nil {
			return false, fmt.Errorf("failed to execute pg_try_advisory_lock: %w", err)
		}
		return acquired, nil

	case timeoutSeconds == TimeoutInfinite:
		if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", a.key); err != nil {
			return false, fmt.Errorf("failed to execute pg_advisory_lock: %w", err)
		}
		return true, nil

	default:
		setTimeout := fmt.Sprintf("SET lock_timeout = '%ds'", timeoutSeconds)
		if _, err := conn.ExecContext(ctx, setTimeout); err != nil {
			return false, fmt.Errorf("failed to set lock_timeout: %w", err)
		}
		_, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", a.key)
		if err == nil {
			return true, nil
		}
		if isLockTimeout(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to execute pg_advisory_lock: %w", err)
	}
}

func isLockTimeout(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgLockTimeoutCode
	}
	return false
}

// ReleaseLock releases the advisory lock and returns its pinned connection
// to the pool. Returns true if the lock was released, false if it was not
// held.
func (a *AdvisoryLock) ReleaseLock(ctx context.Context) (bool, error) {
	if !a.held {
		return false, nil
	}

	var released bool
	err := a.conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", a.key).Scan(&released)

	a.conn.Close()
	a.conn = nil
	a.held = false

	if err != nil {
		return false, fmt.Errorf("failed to execute pg_advisory_unlock: %w", err)
	}
	return released, nil
}

// IsHeld returns true if this lock is currently held by this instance.
func (a *AdvisoryLock) IsHeld() bool {
	return a.held
}

// LockName returns the name of the advisory lock.
func (a *AdvisoryLock) LockName() string {
	return a.lockName
}

// TryAcquire attempts to acquire the lock immediately without waiting.
func (a *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	return a.AcquireLock(ctx, TimeoutImmediate)
}

// AcquireOrFail attempts to acquire the lock with TimeoutShort, returning
// ErrLockTimeout if another run already holds it.
func (a *AdvisoryLock) AcquireOrFail(ctx context.Context) error {
	acquired, err := a.AcquireLock(ctx, TimeoutShort)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another instance", ErrLockTimeout, a.lockName)
	}
	return nil
}

// GenerateBlueprintLockName builds the lock name for a blueprint run from
// its declared item names, so two runs against disjoint item sets (e.g. two
// independent blueprint files) never contend, while two runs of the same
// blueprint always do.
func GenerateBlueprintLockName(itemNames []string) string {
	sorted := append([]string(nil), itemNames...)
	sort.Strings(sorted)
	return fmt.Sprintf("populous:blueprint:%s", strings.Join(sorted, ","))
}

// NewBlueprintLock creates an advisory lock scoped to a blueprint's item set.
func NewBlueprintLock(db *sql.DB, itemNames []string) *AdvisoryLock {
	return NewAdvisoryLock(db, GenerateBlueprintLockName(itemNames))
}

// IsRunRunning checks whether a blueprint with the given item names is
// currently being generated against db, without acquiring the lock for any
// length of time. Not atomic -- the state can change immediately after this
// returns.
func IsRunRunning(ctx context.Context, db *sql.DB, itemNames []string) (bool, error) {
	l := NewBlueprintLock(db, itemNames)

	acquired, err := l.TryAcquire(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check if blueprint is running: %w", err)
	}
	if acquired {
		if _, releaseErr := l.ReleaseLock(ctx); releaseErr != nil {
			_ = releaseErr
		}
		return false, nil
	}

	return true, nil
}

// WithLock executes fn while holding the advisory lock, releasing it
// afterward even if fn panics.
func (a *AdvisoryLock) WithLock(ctx context.Context, timeoutSeconds int, fn func() error) error {
	acquired, err := a.AcquireLock(ctx, timeoutSeconds)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another instance", ErrLockTimeout, a.lockName)
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, releaseErr := a.ReleaseLock(releaseCtx); releaseErr != nil {
			_ = releaseErr
		}
	}()

	return fn()
}

// WithBlueprintLock executes fn while holding the advisory lock for a
// blueprint's item set, failing fast (TimeoutShort) if another run already
// holds it.
func WithBlueprintLock(ctx context.Context, db *sql.DB, itemNames []string, fn func() error) error {
	l := NewBlueprintLock(db, itemNames)
	return l.WithLock(ctx, TimeoutShort, fn)
}
