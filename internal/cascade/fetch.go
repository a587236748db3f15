// Package cascade implements the Batch Fetcher and Cascade Walker: the
// subsystem that selects a batch of doomed parent keys and walks the
// relation graph depth-first, deleting (or counting) children before their
// parent inside one transaction.
package cascade

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pgretain/pgretain/internal/config"
	"github.com/pgretain/pgretain/internal/relgraph"
	"github.com/pgretain/pgretain/internal/sqlrender"
)

// DBLike is the subset of *sql.DB / *sql.Tx the fetcher and walker need,
// letting either a plain connection or an in-flight transaction drive them.
type DBLike interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Fetcher selects batches of parent key tuples older than a cutoff.
type Fetcher struct {
	db DBLike
}

// NewFetcher wraps a connection for batch selection.
func NewFetcher(db DBLike) *Fetcher {
	return &Fetcher{db: db}
}

// FetchBatch implements spec §4.4: select up to N key tuples older than
// cutoff (or all, when cutoff is nil and disable_cutoff is set), subject to
// any configured predicates.
func (f *Fetcher) FetchBatch(ctx context.Context, table relgraph.QualifiedName, keyCols []string, dateCol string, cutoff *time.Time, n int, predicates []config.Predicate) ([][]interface{}, error) {
	quotedCols := make([]string, len(keyCols))
	for i, c := range keyCols {
		quotedCols[i] = sqlrender.QuoteIdentifier(c)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE TRUE",
		strings.Join(quotedCols, ", "), sqlrender.QuoteQualified(table.Schema, table.Name))

	var args []interface{}
	param := 1

	if cutoff != nil {
		query += fmt.Sprintf(" AND %s < $%d", sqlrender.QuoteIdentifier(dateCol), param)
		args = append(args, *cutoff)
		param++
	}

	predClause, predArgs := sqlrender.RenderPredicates(predicates, param)
	query += predClause
	args = append(args, predArgs...)
	param += len(predArgs)

	if cutoff != nil {
		query += fmt.Sprintf(" ORDER BY %s ASC", sqlrender.QuoteIdentifier(dateCol))
	}
	query += fmt.Sprintf(" LIMIT %d", n)

	rows, err := f.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &QueryError{SQL: query, Args: args, Err: err}
	}
	defer rows.Close()

	var tuples [][]interface{}
	for rows.Next() {
		dest := make([]interface{}, len(keyCols))
		scanTargets := make([]interface{}, len(keyCols))
		for i := range dest {
			scanTargets[i] = &dest[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("fetch_batch(%s): %w", table, err)
		}
		tuples = append(tuples, dest)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{SQL: query, Args: args, Err: err}
	}

	return tuples, nil
}
