// Package cleaner implements the Table Cleaner: the per-table batch loop
// that fetches doomed keys, sets a statement timeout, invokes the cascade
// walker, commits, archives, and sleeps between batches (spec §4.7).
package cleaner

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgretain/pgretain/internal/archive"
	"github.com/pgretain/pgretain/internal/cascade"
	"github.com/pgretain/pgretain/internal/catalog"
	"github.com/pgretain/pgretain/internal/config"
	"github.com/pgretain/pgretain/internal/diag"
	"github.com/pgretain/pgretain/internal/lock"
	"github.com/pgretain/pgretain/internal/logger"
	"github.com/pgretain/pgretain/internal/relgraph"
)

// interBatchSleep throttles lock pressure between batches of the same table
// (spec §5).
const interBatchSleep = 200 * time.Millisecond

// defaultArchiveDir is used when a table configures archive:true without an
// explicit archive_path.
const defaultArchiveDir = "./archive"

// Cleaner owns one table's clean pass: building its relation graph, looping
// batches, and returning accumulated delete totals.
type Cleaner struct {
	db      *sql.DB
	catalog *catalog.Introspector
	log     *logger.Logger
}

// New wraps a connection and catalog introspector for table cleaning.
func New(db *sql.DB, cat *catalog.Introspector, log *logger.Logger) *Cleaner {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Cleaner{db: db, catalog: cat, log: log}
}

// Result is what Clean reports back to the Run Orchestrator.
type Result struct {
	Table    string
	Totals   *cascade.DeleteTotals
	Batches  int
	Skipped  bool
	DryRun   bool
}

// Clean runs the Table Cleaner loop for one configured table. A database
// error aborts and is returned for the caller to treat as fatal (spec §4.7
// step 5); the caller is responsible for process termination so this
// package stays free of os.Exit calls.
func (c *Cleaner) Clean(ctx context.Context, global *config.Config, table *config.TableRetention) (*Result, error) {
	result := &Result{Table: table.Name, Totals: cascade.NewDeleteTotals(), DryRun: global.DryRun}

	if !table.IsEnabled() {
		result.Skipped = true
		return result, nil
	}

	name := relgraph.ParseQualified(table.Name)
	if isSkippedTable(global.SkipTables, name) {
		result.Skipped = true
		return result, nil
	}
	if !table.DisableCutoff && isSkippedColumn(global.SkipColumns, table.DateColumn) {
		result.Skipped = true
		return result, nil
	}

	tableLock := lock.New(c.db, name.String())
	if err := tableLock.AcquireOrFail(ctx); err != nil {
		return result, err
	}
	defer func() { _ = tableLock.Release(ctx) }()

	builder := relgraph.NewBuilder(c.catalog, global.SkipTables, global.SkipColumns, c.log)
	graph, err := builder.Build(ctx, name, table)
	if err != nil {
		return result, err
	}

	fetcher := cascade.NewFetcher(c.db)

	var cutoff *time.Time
	if !table.DisableCutoff {
		cut := computeCutoff(table.ExpireDays)
		cutoff = &cut
	}

	archiveDir := table.ArchivePath
	if archiveDir == "" {
		archiveDir = defaultArchiveDir
	}

	mode := cascade.ModeExecute
	if global.DryRun {
		mode = cascade.ModeDryRun
	}

	for {
		keys, err := fetcher.FetchBatch(ctx, name, table.KeyColumns, table.DateColumn, cutoff, table.BatchSize, table.Conditions)
		if err != nil {
			c.logFailure(err)
			return result, err
		}
		if len(keys) == 0 {
			break
		}

		result.Batches++
		result.Totals.ResetBatch()

		batchErr := c.runBatch(ctx, graph, builder, name, table, keys, mode, archiveDir, result.Totals)
		if batchErr != nil {
			c.logFailure(batchErr)
			return result, batchErr
		}

		if mode == cascade.ModeDryRun {
			c.log.Infof("[DRY-RUN] table %q: %v", table.Name, result.Totals.Batch)
			break
		}

		c.log.Infof("table %q batch %d complete: %v", table.Name, result.Batches, result.Totals.Batch)
		time.Sleep(interBatchSleep)
	}

	if result.Batches == 0 {
		c.log.Infof("table %q: nothing to do", table.Name)
	} else if mode == cascade.ModeExecute {
		c.log.Infof("table %q run totals: %v", table.Name, result.Totals.Run)
	}

	return result, nil
}

// runBatch owns one batch's transaction: statement timeout, walk, commit,
// archive flush. Archival is flushed strictly after commit (archive-iff-
// commit, spec §5); on any walker or commit failure the transaction is
// rolled back and no file is written.
func (c *Cleaner) runBatch(ctx context.Context, graph *relgraph.Graph, builder *relgraph.Builder, name relgraph.QualifiedName, table *config.TableRetention, keys [][]interface{}, mode cascade.Mode, archiveDir string, totals *cascade.DeleteTotals) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch transaction: %w", err)
	}

	if table.TimeOut > 0 {
		if err := setStatementTimeout(ctx, tx, table.TimeOut); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	withArchive := table.Archive && mode == cascade.ModeExecute
	var buf *archive.Buffer
	if withArchive {
		buf = archive.NewBuffer(archiveDir)
	}

	walker := cascade.NewWalker(tx, c.catalog, builder, graph, c.log, buf, withArchive, table.AutoDiscoverRelated, table.ExcludesCascadeFK())

	if err := walker.Walk(ctx, name, table.KeyColumns, keys, mode, make(map[string]bool), totals); err != nil {
		_ = tx.Rollback()
		return err
	}

	if mode == cascade.ModeDryRun {
		// Dry-run never modifies state; rollback is just connection hygiene.
		return tx.Rollback()
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("commit batch: %w", err)
	}

	if buf != nil && !buf.Empty() {
		if _, err := buf.Flush(time.Now()); err != nil {
			// The delete already committed; an archive write failure is
			// logged and the run continues (spec §9 open question).
			c.log.Errorf("[ARCHIVE-IO-ERROR] table %q: %v", table.Name, err)
		}
	}

	return nil
}

func (c *Cleaner) logFailure(err error) {
	var qe *cascade.QueryError
	if asQueryError(err, &qe) {
		many := len(qe.Args) > 8
		diag.LogQueryError(c.log, qe, many, 0)
		return
	}
	c.log.Errorf("batch failed: %v", err)
}

func asQueryError(err error, target **cascade.QueryError) bool {
	for err != nil {
		if qe, ok := err.(*cascade.QueryError); ok {
			*target = qe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// computeCutoff implements the glossary's cutoff: now - expire_days,
// rounded to the start of day.
func computeCutoff(expireDays int) time.Time {
	cut := time.Now().AddDate(0, 0, -expireDays)
	return time.Date(cut.Year(), cut.Month(), cut.Day(), 0, 0, 0, 0, cut.Location())
}

// setStatementTimeout issues SET LOCAL statement_timeout, falling back to
// plain SET when SET LOCAL fails because no transaction is active (spec
// §4.7 step 2). Callers always open the batch transaction first, so the
// fallback branch should rarely be reached in practice (spec §9 open
// question).
func setStatementTimeout(ctx context.Context, tx *sql.Tx, seconds int) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%ds'", seconds))
	if err == nil {
		return nil
	}

	_, fallbackErr := tx.ExecContext(ctx, fmt.Sprintf("SET statement_timeout = '%ds'", seconds))
	if fallbackErr != nil {
		return fmt.Errorf("set statement_timeout failed (SET LOCAL: %v, SET: %w)", err, fallbackErr)
	}
	return nil
}

func isSkippedTable(skipTables []string, name relgraph.QualifiedName) bool {
	for _, s := range skipTables {
		if s == name.String() || s == name.ShortName() {
			return true
		}
	}
	return false
}

func isSkippedColumn(skipColumns []string, column string) bool {
	for _, s := range skipColumns {
		if s == column {
			return true
		}
	}
	return false
}
