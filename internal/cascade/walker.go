package cascade

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pgretain/pgretain/internal/catalog"
	"github.com/pgretain/pgretain/internal/logger"
	"github.com/pgretain/pgretain/internal/relgraph"
	"github.com/pgretain/pgretain/internal/sqlrender"
)

// Mode selects whether the walker counts rows (dry-run) or deletes them.
type Mode int

const (
	ModeDryRun Mode = iota
	ModeExecute
)

// ArchiveSink receives the pre-delete snapshot of a table's doomed rows.
// Implemented by internal/archive.Buffer; kept as an interface here so the
// walker never depends on CSV formatting or the filesystem.
type ArchiveSink interface {
	Append(table relgraph.QualifiedName, columns []string, rows [][]interface{})
}

// Walker performs the depth-first cascade over the relation graph for one
// batch of parent keys (spec §4.5).
type Walker struct {
	db       DBLike
	catalog  *catalog.Introspector
	builder  *relgraph.Builder
	graph    *relgraph.Graph
	log      *logger.Logger
	archive  ArchiveSink
	withArchive      bool
	autoDiscover     bool
	excludeCascadeFK bool
}

// NewWalker constructs a Walker bound to one table-clean pass's graph and
// transaction. autoDiscover/excludeCascadeFK mirror the root table's
// configuration and govern lazy extension at every node the walk reaches.
func NewWalker(db DBLike, cat *catalog.Introspector, builder *relgraph.Builder, graph *relgraph.Graph, log *logger.Logger, archive ArchiveSink, withArchive, autoDiscover, excludeCascadeFK bool) *Walker {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Walker{
		db:               db,
		catalog:          cat,
		builder:          builder,
		graph:            graph,
		log:              log,
		archive:          archive,
		withArchive:      withArchive,
		autoDiscover:     autoDiscover,
		excludeCascadeFK: excludeCascadeFK,
	}
}

// Walk recurses children-before-parent over table's outgoing edges, then
// acts on table itself. edgePath tracks edges visited along this descent
// for cycle detection and must start empty at the top-level call.
func (w *Walker) Walk(ctx context.Context, table relgraph.QualifiedName, keyCols []string, keys [][]interface{}, mode Mode, edgePath map[string]bool, totals *DeleteTotals) error {
	if len(keys) == 0 {
		return nil
	}

	if w.autoDiscover && !w.graph.AutoDiscovered(table) {
		if err := w.builder.EnsureDiscovered(ctx, w.graph, table, w.excludeCascadeFK); err != nil {
			return err
		}
	}

	for _, e := range w.graph.Edges(table) {
		edgeKey := e.Key()
		if edgePath[edgeKey] {
			w.log.Warnf("[CYCLE] skipping repeated edge %s -> %s", e.ParentTable, e.ChildTable)
			continue
		}
		edgePath[edgeKey] = true

		if err := w.walkEdge(ctx, table, keyCols, keys, e, mode, edgePath, totals); err != nil {
			delete(edgePath, edgeKey)
			return err
		}

		delete(edgePath, edgeKey)
	}

	return w.actOnCurrent(ctx, table, keyCols, keys, mode, totals)
}

func (w *Walker) walkEdge(ctx context.Context, table relgraph.QualifiedName, keyCols []string, keys [][]interface{}, e relgraph.RelationEdge, mode Mode, edgePath map[string]bool, totals *DeleteTotals) error {
	parentKeysForChild, err := w.projectOrLookup(ctx, table, keyCols, keys, e)
	if err != nil {
		return err
	}
	if len(parentKeysForChild) == 0 {
		w.log.Warnf("[MISSING-PARENT-COLUMN] no rows found projecting %s -> %s; skipping edge", e.ParentTable, e.ChildTable)
		return nil
	}

	childKeyCols, err := w.childKeyColumns(ctx, e)
	if err != nil {
		return err
	}

	selected, err := w.selectChildKeys(ctx, e, childKeyCols, parentKeysForChild, mode, totals)
	if err != nil {
		return err
	}

	if len(selected) > 0 {
		if err := w.Walk(ctx, e.ChildTable, childKeyCols, selected, mode, edgePath, totals); err != nil {
			return err
		}
	}

	return nil
}

// projectOrLookup implements spec §4.5.1 step 2b: project directly when the
// edge's parent columns are a subset of the caller's key columns; otherwise
// issue one extra SELECT per edge per batch.
func (w *Walker) projectOrLookup(ctx context.Context, table relgraph.QualifiedName, keyCols []string, keys [][]interface{}, e relgraph.RelationEdge) ([][]interface{}, error) {
	idx := make([]int, len(e.ParentColumns))
	fastPath := true
	for i, col := range e.ParentColumns {
		pos := indexOf(keyCols, col)
		if pos < 0 {
			fastPath = false
			break
		}
		idx[i] = pos
	}

	if fastPath {
		out := make([][]interface{}, len(keys))
		for i, row := range keys {
			tuple := make([]interface{}, len(idx))
			for j, p := range idx {
				tuple[j] = row[p]
			}
			out[i] = tuple
		}
		return out, nil
	}

	types, err := w.catalog.ColumnTypes(ctx, table.Schema, table.Name, keyCols)
	if err != nil {
		return nil, err
	}

	inClause, inArgs := sqlrender.RenderInTuple(quoteAll(keyCols), keys, types, 1)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(quoteAll(e.ParentColumns), ", "), sqlrender.QuoteQualified(table.Schema, table.Name), inClause)

	rows, err := w.db.QueryContext(ctx, query, inArgs...)
	if err != nil {
		return nil, &QueryError{SQL: query, Args: inArgs, Err: err}
	}
	defer rows.Close()

	out, err := scanTuples(rows, len(e.ParentColumns))
	if err != nil {
		return nil, &QueryError{SQL: query, Args: inArgs, Err: err}
	}
	return out, nil
}

// childKeyColumns returns the child's primary key if it has one, else falls
// back to the edge's child columns (spec §4.1, §4.5.1 step 3).
func (w *Walker) childKeyColumns(ctx context.Context, e relgraph.RelationEdge) ([]string, error) {
	pk, err := w.catalog.PrimaryKeyColumns(ctx, e.ChildTable.Schema, e.ChildTable.Name)
	if err != nil {
		return nil, err
	}
	if len(pk) > 0 {
		return pk, nil
	}
	return e.ChildColumns, nil
}

// selectChildKeys selects the child's key tuples matching the projected
// parent keys and any edge conditions; in dry-run mode it additionally
// issues a COUNT(*) for delete_totals.
func (w *Walker) selectChildKeys(ctx context.Context, e relgraph.RelationEdge, childKeyCols []string, parentKeysForChild [][]interface{}, mode Mode, totals *DeleteTotals) ([][]interface{}, error) {
	types, err := w.catalog.ColumnTypes(ctx, e.ChildTable.Schema, e.ChildTable.Name, e.ChildColumns)
	if err != nil {
		return nil, err
	}

	inClause, inArgs := sqlrender.RenderInTuple(quoteAll(e.ChildColumns), parentKeysForChild, types, 1)
	predClause, predArgs := sqlrender.RenderPredicates(e.Conditions, len(inArgs)+1)
	args := append(append([]interface{}{}, inArgs...), predArgs...)

	qualified := sqlrender.QuoteQualified(e.ChildTable.Schema, e.ChildTable.Name)

	if mode == ModeDryRun {
		countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s%s", qualified, inClause, predClause)
		var count int64
		if err := w.db.QueryRowContext(ctx, countQuery, args...).Scan(&count); err != nil {
			return nil, &QueryError{SQL: countQuery, Args: args, Err: err}
		}
		totals.Add(e.ChildTable.String(), count)
	}

	selectQuery := fmt.Sprintf("SELECT %s FROM %s WHERE %s%s",
		strings.Join(quoteAll(childKeyCols), ", "), qualified, inClause, predClause)

	rows, err := w.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, &QueryError{SQL: selectQuery, Args: args, Err: err}
	}
	defer rows.Close()

	out, err := scanTuples(rows, len(childKeyCols))
	if err != nil {
		return nil, &QueryError{SQL: selectQuery, Args: args, Err: err}
	}
	return out, nil
}

// actOnCurrent implements spec §4.5.1 step 3: dry-run counts the current
// table's matching rows; execute archives (if enabled) then deletes them.
func (w *Walker) actOnCurrent(ctx context.Context, table relgraph.QualifiedName, keyCols []string, keys [][]interface{}, mode Mode, totals *DeleteTotals) error {
	types, err := w.catalog.ColumnTypes(ctx, table.Schema, table.Name, keyCols)
	if err != nil {
		return err
	}

	inClause, inArgs := sqlrender.RenderInTuple(quoteAll(keyCols), keys, types, 1)
	qualified := sqlrender.QuoteQualified(table.Schema, table.Name)

	if mode == ModeDryRun {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", qualified, inClause)
		var count int64
		if err := w.db.QueryRowContext(ctx, query, inArgs...).Scan(&count); err != nil {
			return &QueryError{SQL: query, Args: inArgs, Err: err}
		}
		totals.Add(table.String(), count)
		return nil
	}

	if w.withArchive {
		selectQuery := fmt.Sprintf("SELECT * FROM %s WHERE %s", qualified, inClause)
		rows, err := w.db.QueryContext(ctx, selectQuery, inArgs...)
		if err != nil {
			return &QueryError{SQL: selectQuery, Args: inArgs, Err: err}
		}
		cols, colErr := rows.Columns()
		if colErr != nil {
			rows.Close()
			return colErr
		}
		archived, scanErr := scanTuples(rows, len(cols))
		rows.Close()
		if scanErr != nil {
			return &QueryError{SQL: selectQuery, Args: inArgs, Err: scanErr}
		}
		w.archive.Append(table, cols, archived)
	}

	deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE %s", qualified, inClause)
	res, err := w.db.ExecContext(ctx, deleteQuery, inArgs...)
	if err != nil {
		return &QueryError{SQL: deleteQuery, Args: inArgs, Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	totals.Add(table.String(), affected)
	return nil
}

func indexOf(haystack []string, needle string) int {
	for i, v := range haystack {
		if v == needle {
			return i
		}
	}
	return -1
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = sqlrender.QuoteIdentifier(n)
	}
	return out
}

func scanTuples(rows *sql.Rows, width int) ([][]interface{}, error) {
	var out [][]interface{}
	for rows.Next() {
		dest := make([]interface{}, width)
		targets := make([]interface{}, width)
		for i := range dest {
			targets[i] = &dest[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		out = append(out, dest)
	}
	return out, rows.Err()
}
