package lock

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyForIsStable(t *testing.T) {
	assert.Equal(t, KeyFor("public.orders"), KeyFor("public.orders"))
	assert.NotEqual(t, KeyFor("public.orders"), KeyFor("public.order_items"))
}

func TestTryAcquireSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := New(db, "public.orders")
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WithArgs(l.key).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))

	ok, err := l.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, l.IsHeld())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTryAcquireAlreadyHeldElsewhere(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := New(db, "public.orders")
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	ok, err := l.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, l.IsHeld())
}

func TestTryAcquireShortCircuitsWhenAlreadyHeld(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := New(db, "public.orders")
	l.held = true

	ok, err := l.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet(), "no query should run when already held")
}

func TestAcquireOrFailReturnsErrLockHeld(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := New(db, "public.orders")
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	err = l.AcquireOrFail(context.Background())
	assert.ErrorIs(t, err, ErrLockHeld)
}

func TestReleaseNoopWhenNotHeld(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := New(db, "public.orders")
	assert.NoError(t, l.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := New(db, "public.orders")
	l.held = true

	mock.ExpectQuery("SELECT pg_advisory_unlock").
		WithArgs(l.key).
		WillReturnRows(sqlmock.NewRows([]string{"pg_advisory_unlock"}).AddRow(true))

	err = l.Release(context.Background())
	require.NoError(t, err)
	assert.False(t, l.IsHeld())
}

func TestWithLockRunsAndReleases(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := New(db, "public.orders")
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectQuery("SELECT pg_advisory_unlock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_advisory_unlock"}).AddRow(true))

	ran := false
	err = l.WithLock(context.Background(), func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, l.IsHeld())
}

func TestWithLockPropagatesFnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := New(db, "public.orders")
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectQuery("SELECT pg_advisory_unlock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_advisory_unlock"}).AddRow(true))

	boom := errors.New("boom")
	err = l.WithLock(context.Background(), func() error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}
