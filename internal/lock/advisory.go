// Package lock provides PostgreSQL advisory locking, keeping two processes
// from cascading the same table concurrently.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
)

// ErrLockHeld is returned when a lock is already held by another session
// and a zero-wait acquisition is requested.
var ErrLockHeld = errors.New("advisory lock is held by another session")

// AdvisoryLock wraps Postgres's session-level advisory lock functions
// (pg_try_advisory_lock/pg_advisory_unlock), keyed by a stable FNV-1a hash
// of a table name so every process cleaning the same table computes the
// same key without a shared naming registry.
type AdvisoryLock struct {
	db   *sql.DB
	name string
	key  int64
	held bool
}

// KeyFor hashes name into the int64 key pg_try_advisory_lock expects. FNV-1a
// is used purely for a stable, dependency-free 64-bit digest — collision
// resistance against a determined adversary is not a goal here, only a
// low accidental-collision rate across a handful of configured table names.
func KeyFor(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

// New creates an advisory lock for the given table name. The lock is not
// acquired until TryAcquire, AcquireOrFail, or WithLock is called.
func New(db *sql.DB, tableName string) *AdvisoryLock {
	return &AdvisoryLock{
		db:   db,
		name: tableName,
		key:  KeyFor(tableName),
	}
}

// TryAcquire attempts to acquire the lock without waiting. Returns false,
// nil (not an error) if another session already holds it.
func (a *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	if a.held {
		return true, nil
	}

	var acquired bool
	err := a.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", a.key).Scan(&acquired)
	if err != nil {
		return false, fmt.Errorf("pg_try_advisory_lock(%s): %w", a.name, err)
	}

	a.held = acquired
	return acquired, nil
}

// AcquireOrFail acquires the lock or returns ErrLockHeld if another session
// holds it.
func (a *AdvisoryLock) AcquireOrFail(ctx context.Context) error {
	acquired, err := a.TryAcquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: table %q", ErrLockHeld, a.name)
	}
	return nil
}

// Release releases the lock if held. Safe to call when not held (no-op).
func (a *AdvisoryLock) Release(ctx context.Context) error {
	if !a.held {
		return nil
	}

	var released bool
	err := a.db.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", a.key).Scan(&released)
	if err != nil {
		return fmt.Errorf("pg_advisory_unlock(%s): %w", a.name, err)
	}

	a.held = false
	if !released {
		return fmt.Errorf("pg_advisory_unlock(%s): lock was not held by this session", a.name)
	}
	return nil
}

// IsHeld reports whether this instance currently holds the lock.
func (a *AdvisoryLock) IsHeld() bool {
	return a.held
}

// WithLock runs fn while holding the lock, releasing it (even on panic)
// before returning. Returns ErrLockHeld without running fn if the lock is
// already held elsewhere.
func (a *AdvisoryLock) WithLock(ctx context.Context, fn func() error) error {
	if err := a.AcquireOrFail(ctx); err != nil {
		return err
	}
	defer func() {
		_ = a.Release(ctx)
	}()
	return fn()
}
