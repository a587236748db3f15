// Package preflight runs safety checks against the target PostgreSQL
// database before a cascade run is allowed to delete anything (spec §4.10).
package preflight

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/pgretain/pgretain/internal/logger"
	"github.com/pgretain/pgretain/internal/relgraph"
)

// PreflightError represents a single failed check, with enough detail for
// an operator to act on it directly.
type PreflightError struct {
	Check   string
	Message string
	Tables  []string
}

func (e *PreflightError) Error() string {
	if len(e.Tables) > 0 {
		return fmt.Sprintf("%s: %s (tables: %v)", e.Check, e.Message, e.Tables)
	}
	return fmt.Sprintf("%s: %s", e.Check, e.Message)
}

// TriggerCheckResult holds one detected DELETE trigger.
type TriggerCheckResult struct {
	Table   string
	Trigger string
}

// ForeignKeyResult describes one foreign key constraint referencing a
// table in the graph, regardless of which side of the relation it's on.
type ForeignKeyResult struct {
	Table            string
	ConstraintName   string
	Column           string
	ReferencedTable  string
	ReferencedColumn string
	OnDelete         string
	Indexed          bool
}

// PreflightChecker runs every check in RunAllChecks against one table's
// relation graph.
type PreflightChecker struct {
	db     *sql.DB
	graph  *relgraph.Graph
	log    *logger.Logger
}

// NewPreflightChecker builds a checker bound to an already-discovered graph
// (manual+auto edges merged, skip rules and CASCADE exclusion applied).
func NewPreflightChecker(db *sql.DB, g *relgraph.Graph, log *logger.Logger) (*PreflightChecker, error) {
	if db == nil {
		return nil, fmt.Errorf("database is nil")
	}
	if g == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &PreflightChecker{db: db, graph: g, log: log}, nil
}

// RunAllChecks runs table existence, FK index coverage, FK relation
// coverage, DELETE trigger detection, and CASCADE rule warnings, in that
// order (spec §4.10). forceTriggers downgrades the trigger check from an
// error to a warning.
func (p *PreflightChecker) RunAllChecks(ctx context.Context, forceTriggers bool) error {
	p.log.Info("running preflight checks")

	tables := p.graph.AllTables()

	if err := p.ValidateTablesExist(ctx, tables); err != nil {
		return err
	}
	if err := p.ValidateForeignKeyIndexes(ctx); err != nil {
		return err
	}
	if err := p.ValidateForeignKeyCoverage(ctx); err != nil {
		return err
	}
	if err := p.ValidateTriggers(ctx, tables, forceTriggers); err != nil {
		return err
	}
	if err := p.WarnCascadeRules(ctx); err != nil {
		return err
	}

	p.log.Info("all preflight checks passed")
	return nil
}

// ValidateTablesExist confirms every table in the graph exists in
// pg_catalog, grouped by schema so cross-schema relations are checked
// correctly.
func (p *PreflightChecker) ValidateTablesExist(ctx context.Context, tables []relgraph.QualifiedName) error {
	p.log.Debug("checking table existence")

	bySchema := make(map[string][]string)
	for _, t := range tables {
		bySchema[t.Schema] = append(bySchema[t.Schema], t.Name)
	}

	var missing []string
	for schema, names := range bySchema {
		const query = `
			SELECT c.relname
			FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE n.nspname = $1
			AND c.relname = ANY($2)
			AND c.relkind IN ('r', 'p')`

		rows, err := p.db.QueryContext(ctx, query, schema, pq.Array(names))
		if err != nil {
			return fmt.Errorf("querying table existence: %w", err)
		}

		existing := make(map[string]bool)
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return err
			}
			existing[name] = true
		}
		rowErr := rows.Err()
		rows.Close()
		if rowErr != nil {
			return rowErr
		}

		for _, name := range names {
			if !existing[name] {
				missing = append(missing, schema+"."+name)
			}
		}
	}

	if len(missing) > 0 {
		return &PreflightError{
			Check:   "TABLE_EXISTENCE_CHECK",
			Message: "tables not found in the target database",
			Tables:  missing,
		}
	}

	p.log.Debugf("table existence check passed (%d tables)", len(tables))
	return nil
}

// ValidateForeignKeyIndexes flags FK columns without a covering index,
// which turn every cascade delete into a sequential scan on the child.
func (p *PreflightChecker) ValidateForeignKeyIndexes(ctx context.Context) error {
	p.log.Debug("checking foreign key indexes")

	fks, err := p.foreignKeysIntoGraph(ctx)
	if err != nil {
		return fmt.Errorf("listing foreign keys: %w", err)
	}

	var unindexed []string
	for _, fk := range fks {
		if !fk.Indexed {
			unindexed = append(unindexed, fmt.Sprintf("%s.%s", fk.Table, fk.Column))
		}
	}

	if len(unindexed) > 0 {
		return &PreflightError{
			Check:   "FK_INDEX_CHECK",
			Message: "foreign key columns without an index will slow cascade deletes; add one with CREATE INDEX",
			Tables:  unindexed,
		}
	}

	p.log.Debugf("FK index check passed (%d foreign keys verified)", len(fks))
	return nil
}

// foreignKeysIntoGraph returns every FK constraint whose referenced table
// is one of the graph's tables, along with whether the referencing column
// is indexed.
func (p *PreflightChecker) foreignKeysIntoGraph(ctx context.Context) ([]ForeignKeyResult, error) {
	tables := p.graph.AllTables()
	if len(tables) == 0 {
		return nil, nil
	}

	schemas := make([]string, 0, len(tables))
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		schemas = append(schemas, t.Schema)
		names = append(names, t.Name)
	}

	const query = `
		SELECT
			src.relname AS table_name,
			con.conname,
			att.attname AS column_name,
			dst.relname AS referenced_table,
			confatt.attname AS referenced_column,
			con.confdeltype
		FROM pg_constraint con
		JOIN pg_class src ON src.oid = con.conrelid
		JOIN pg_class dst ON dst.oid = con.confrelid
		JOIN pg_namespace dstns ON dstns.oid = dst.relnamespace
		JOIN unnest(con.conkey) WITH ORDINALITY AS ck(attnum, ord) ON true
		JOIN unnest(con.confkey) WITH ORDINALITY AS cfk(attnum, ord) ON cfk.ord = ck.ord
		JOIN pg_attribute att ON att.attrelid = con.conrelid AND att.attnum = ck.attnum
		JOIN pg_attribute confatt ON confatt.attrelid = con.confrelid AND confatt.attnum = cfk.attnum
		WHERE con.contype = 'f'
		AND dstns.nspname = ANY($1)
		AND dst.relname = ANY($2)`

	rows, err := p.db.QueryContext(ctx, query, pq.Array(schemas), pq.Array(names))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ForeignKeyResult
	for rows.Next() {
		var fk ForeignKeyResult
		var deleteType string
		if err := rows.Scan(&fk.Table, &fk.ConstraintName, &fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn, &deleteType); err != nil {
			return nil, err
		}
		fk.OnDelete = deleteActionName(deleteType)

		indexed, err := p.isColumnIndexed(ctx, fk.Table, fk.Column)
		if err != nil {
			return nil, fmt.Errorf("checking index for %s.%s: %w", fk.Table, fk.Column, err)
		}
		fk.Indexed = indexed

		results = append(results, fk)
	}
	return results, rows.Err()
}

func deleteActionName(code string) string {
	switch code {
	case "a":
		return "NO ACTION"
	case "r":
		return "RESTRICT"
	case "c":
		return "CASCADE"
	case "n":
		return "SET NULL"
	case "d":
		return "SET DEFAULT"
	default:
		return code
	}
}

func (p *PreflightChecker) isColumnIndexed(ctx context.Context, table, column string) (bool, error) {
	const query = `
		SELECT COUNT(*)
		FROM pg_index ix
		JOIN pg_class c ON c.oid = ix.indrelid
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = ANY(ix.indkey)
		WHERE c.relname = $1 AND a.attname = $2`

	var count int
	err := p.db.QueryRowContext(ctx, query, table, column).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ValidateTriggers detects DELETE triggers on any table in the graph.
// forceTriggers downgrades the result to a warning instead of an error.
func (p *PreflightChecker) ValidateTriggers(ctx context.Context, tables []relgraph.QualifiedName, forceTriggers bool) error {
	p.log.Debug("checking for DELETE triggers")

	triggers, err := p.CheckDeleteTriggers(ctx, tables)
	if err != nil {
		return err
	}

	if len(triggers) == 0 {
		p.log.Debug("DELETE trigger check passed (no triggers found)")
		return nil
	}

	var tableList []string
	seen := make(map[string]bool)
	for _, t := range triggers {
		key := t.Table + "(" + t.Trigger + ")"
		if !seen[key] {
			seen[key] = true
			tableList = append(tableList, key)
		}
	}

	if forceTriggers {
		p.log.Warnf("DELETE triggers detected (proceeding due to --force-triggers): %v", tableList)
		return nil
	}

	return &PreflightError{
		Check:   "DELETE_TRIGGER_CHECK",
		Message: "DELETE triggers detected; use --force-triggers to override (triggers will fire during cascade)",
		Tables:  tableList,
	}
}

// CheckDeleteTriggers scans pg_trigger for DELETE-event, non-internal
// triggers on the given tables.
func (p *PreflightChecker) CheckDeleteTriggers(ctx context.Context, tables []relgraph.QualifiedName) ([]TriggerCheckResult, error) {
	if len(tables) == 0 {
		return nil, nil
	}

	schemas := make([]string, 0, len(tables))
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		schemas = append(schemas, t.Schema)
		names = append(names, t.Name)
	}

	const query = `
		SELECT c.relname, t.tgname
		FROM pg_trigger t
		JOIN pg_class c ON c.oid = t.tgrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE NOT t.tgisinternal
		AND (t.tgtype & (1 << 3)) <> 0
		AND n.nspname = ANY($1)
		AND c.relname = ANY($2)`

	rows, err := p.db.QueryContext(ctx, query, pq.Array(schemas), pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("querying triggers: %w", err)
	}
	defer rows.Close()

	var results []TriggerCheckResult
	for rows.Next() {
		var r TriggerCheckResult
		if err := rows.Scan(&r.Table, &r.Trigger); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// WarnCascadeRules logs (but does not fail on) ON DELETE CASCADE rules
// referencing the graph, since the database will delete those rows itself
// outside the engine's own bookkeeping.
func (p *PreflightChecker) WarnCascadeRules(ctx context.Context) error {
	p.log.Debug("checking for ON DELETE CASCADE rules")

	fks, err := p.foreignKeysIntoGraph(ctx)
	if err != nil {
		return fmt.Errorf("listing foreign keys: %w", err)
	}

	var cascades []string
	for _, fk := range fks {
		if fk.OnDelete == "CASCADE" {
			cascades = append(cascades, fmt.Sprintf("%s.%s->%s.%s", fk.Table, fk.Column, fk.ReferencedTable, fk.ReferencedColumn))
		}
	}

	if len(cascades) > 0 {
		p.log.Warnf("ON DELETE CASCADE rules detected (%d): %v", len(cascades), cascades)
		p.log.Warn("these rows will be deleted by the database itself and are not archived or counted by the engine")
		return nil
	}

	p.log.Debug("CASCADE rule check complete (none found)")
	return nil
}

// ValidateForeignKeyCoverage flags FK constraints pointing into the graph
// from a table the graph itself does not know about — a RESTRICT/NO ACTION
// constraint from an uncovered table will abort the delete mid-cascade.
func (p *PreflightChecker) ValidateForeignKeyCoverage(ctx context.Context) error {
	p.log.Debug("checking foreign key coverage")

	graphTables := p.graph.AllTables()
	inGraph := make(map[string]bool, len(graphTables))
	for _, t := range graphTables {
		inGraph[t.String()] = true
	}

	fks, err := p.foreignKeysIntoGraph(ctx)
	if err != nil {
		return fmt.Errorf("listing foreign keys: %w", err)
	}

	var uncovered []string
	for _, fk := range fks {
		if fk.OnDelete == "CASCADE" {
			continue
		}
		covered := false
		for _, t := range graphTables {
			if t.ShortName() == fk.Table {
				covered = true
				break
			}
		}
		if !covered {
			uncovered = append(uncovered, fmt.Sprintf("%s (ON DELETE %s, referencing %s) is not in the graph", fk.Table, fk.OnDelete, fk.ReferencedTable))
		}
	}

	if len(uncovered) > 0 {
		return &PreflightError{
			Check:   "FK_COVERAGE_CHECK",
			Message: "foreign key constraints referencing the graph are not themselves covered by a relation:\n  " + strings.Join(uncovered, "\n  "),
		}
	}

	p.log.Debug("foreign key coverage check complete (all FKs covered)")
	return nil
}

// SetLogger swaps the checker's logger, used by tests to capture output.
func (p *PreflightChecker) SetLogger(log *logger.Logger) {
	p.log = log
}
