// Package orchestrator drives a full retention run across every configured
// table: sequential per-table cleaning, timing output, and connection
// lifecycle (spec §4.9).
package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgretain/pgretain/internal/catalog"
	"github.com/pgretain/pgretain/internal/cleaner"
	"github.com/pgretain/pgretain/internal/config"
	"github.com/pgretain/pgretain/internal/logger"
)

// TableOutcome reports one table's run result.
type TableOutcome struct {
	Table    string
	Duration time.Duration
	Result   *cleaner.Result
	Err      error
}

// RunResult aggregates every table's outcome for one orchestrator run.
type RunResult struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Tables      []TableOutcome
}

// Failed reports whether any table in the run returned an error. The
// caller (cmd/pgretain) uses this to decide the process exit code (spec
// §4.9 step 2, §7).
func (r *RunResult) Failed() bool {
	for _, t := range r.Tables {
		if t.Err != nil {
			return true
		}
	}
	return false
}

// Orchestrator runs the Table Cleaner sequentially over every configured
// table, in declaration order.
type Orchestrator struct {
	db  *sql.DB
	cfg *config.Config
	log *logger.Logger
}

// New builds an Orchestrator bound to an open connection and a loaded
// config. The caller owns closing db on every exit path.
func New(db *sql.DB, cfg *config.Config, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Orchestrator{db: db, cfg: cfg, log: log}
}

// Run cleans each table in cfg.Tables in order, stopping at the first
// table whose Clean call returns any error: a DB error leaves
// unknown state behind, so continuing on to the next table would be
// partial progress against state the engine can no longer reason about
// (spec §4.7 step 5, §7). A skipped table is not an error and does not
// stop the run. The orchestrator itself never calls os.Exit;
// RunResult.Failed tells the caller whether to exit non-zero.
func (o *Orchestrator) Run(ctx context.Context) *RunResult {
	result := &RunResult{StartedAt: time.Now()}
	cat := catalog.NewIntrospector(o.db)
	clean := cleaner.New(o.db, cat, o.log)

	for i := range o.cfg.Tables {
		table := &o.cfg.Tables[i]
		start := time.Now()

		tableResult, err := clean.Clean(ctx, o.cfg, table)
		elapsed := time.Since(start)

		o.log.Infof("[TIMING] table %q in %s", table.Name, formatDuration(elapsed))
		if err != nil {
			o.log.Errorf("table %q failed: %v", table.Name, err)
		}

		result.Tables = append(result.Tables, TableOutcome{
			Table:    table.Name,
			Duration: elapsed,
			Result:   tableResult,
			Err:      err,
		})

		if err != nil {
			break
		}
	}

	result.CompletedAt = time.Now()
	return result
}

// formatDuration renders HhMmSs, omitting the hour component when zero, to
// match the spec's "[TIMING] table 'name' in <HhMmSs>" line.
func formatDuration(d time.Duration) string {
	total := int(d.Round(time.Second).Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	return fmt.Sprintf("%dm%ds", m, s)
}
