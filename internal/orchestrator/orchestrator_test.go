package orchestrator

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgretain/pgretain/internal/config"
)

func disabledPtr() *bool { f := false; return &f }

func TestRunStopsAtFirstTableFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// "orders" is the only table whose lock is ever attempted; "invoices"
	// comes after it in declaration order and must never be reached.
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	cfg := &config.Config{
		Tables: []config.TableRetention{
			{Name: "sessions", Enable: disabledPtr()},
			{Name: "orders", KeyColumns: []string{"id"}, DisableCutoff: true, BatchSize: 500},
			{Name: "invoices", KeyColumns: []string{"id"}, DisableCutoff: true, BatchSize: 500},
		},
	}

	o := New(db, cfg, nil)
	result := o.Run(context.Background())

	require.Len(t, result.Tables, 2, "the run must stop after the failing table, never reaching 'invoices'")
	assert.Equal(t, "sessions", result.Tables[0].Table)
	assert.NoError(t, result.Tables[0].Err)
	assert.True(t, result.Tables[0].Result.Skipped)

	assert.Equal(t, "orders", result.Tables[1].Table)
	assert.Error(t, result.Tables[1].Err)

	assert.True(t, result.Failed())
	assert.NoError(t, mock.ExpectationsWereMet(), "no query should ever be issued for 'invoices'")
}

func TestRunResultNotFailedWhenAllSkipped(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := &config.Config{
		Tables: []config.TableRetention{
			{Name: "sessions", Enable: disabledPtr()},
		},
	}

	o := New(db, cfg, nil)
	result := o.Run(context.Background())

	require.Len(t, result.Tables, 1)
	assert.False(t, result.Failed())
	assert.False(t, result.CompletedAt.Before(result.StartedAt))
}

func TestFormatDurationOmitsHourWhenZero(t *testing.T) {
	assert.Equal(t, "0m5s", formatDuration(5*time.Second))
	assert.Equal(t, "2m3s", formatDuration(123*time.Second))
}

func TestFormatDurationIncludesHour(t *testing.T) {
	assert.Equal(t, "1h1m1s", formatDuration(time.Hour+time.Minute+time.Second))
}
