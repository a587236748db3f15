// Package catalog introspects a PostgreSQL database's catalog: column
// types, primary keys, and foreign key constraints. Every query is
// parameterized; no identifier is ever interpolated into SQL text here.
package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/pgretain/pgretain/internal/relgraph"
)

// deleteActionNames maps pg_constraint.confdeltype to the spec's action
// vocabulary (spec §3.1).
var deleteActionNames = map[string]string{
	"a": "NO_ACTION",
	"r": "RESTRICT",
	"c": "CASCADE",
	"n": "SET_NULL",
	"d": "SET_DEFAULT",
}

// Introspector reads catalog metadata over a *sql.DB.
type Introspector struct {
	db *sql.DB
}

// NewIntrospector wraps an open connection for catalog reads.
func NewIntrospector(db *sql.DB) *Introspector {
	return &Introspector{db: db}
}

// ColumnTypes looks up the base type name of each requested column, in the
// order columns were given. Fails if any requested column is absent from
// the catalog (CatalogMiss, spec §7).
func (c *Introspector) ColumnTypes(ctx context.Context, schema, table string, columns []string) ([]string, error) {
	const query = `
		SELECT a.attname, t.typname
		FROM pg_attribute a
		JOIN pg_type t ON t.oid = a.atttypid
		JOIN pg_class rel ON rel.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = rel.relnamespace
		WHERE n.nspname = $1 AND rel.relname = $2
		  AND a.attnum > 0 AND NOT a.attisdropped`

	rows, err := c.db.QueryContext(ctx, query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("column_types(%s.%s): %w", schema, table, err)
	}
	defer rows.Close()

	found := make(map[string]string)
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, fmt.Errorf("column_types(%s.%s): %w", schema, table, err)
		}
		found[name] = typ
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	types := make([]string, len(columns))
	for i, col := range columns {
		typ, ok := found[col]
		if !ok {
			return nil, fmt.Errorf("catalog miss: column %q not found on %s.%s", col, schema, table)
		}
		types[i] = typ
	}
	return types, nil
}

// PrimaryKeyColumns returns the primary key in constrained key order, or an
// empty slice if the table has no primary key.
func (c *Introspector) PrimaryKeyColumns(ctx context.Context, schema, table string) ([]string, error) {
	const query = `
		SELECT a.attname
		FROM pg_index i
		JOIN pg_class rel ON rel.oid = i.indrelid
		JOIN pg_namespace n ON n.oid = rel.relnamespace
		JOIN pg_attribute a ON a.attrelid = rel.oid AND a.attnum = ANY(i.indkey)
		WHERE n.nspname = $1 AND rel.relname = $2 AND i.indisprimary
		ORDER BY array_position(i.indkey, a.attnum)`

	rows, err := c.db.QueryContext(ctx, query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("primary_key_columns(%s.%s): %w", schema, table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// ForeignKeysReferencing returns every foreign key constraint whose
// referenced table equals parent, as auto-discovered relation edges with
// the ON DELETE action and constraint name populated.
func (c *Introspector) ForeignKeysReferencing(ctx context.Context, parent relgraph.QualifiedName) ([]relgraph.RelationEdge, error) {
	const query = `
		SELECT
			con.conname,
			cn.nspname  AS child_schema,
			cc.relname  AS child_table,
			con.conrelid::int8  AS child_oid,
			con.confrelid::int8 AS parent_oid,
			con.conkey::int8[]  AS child_attnums,
			con.confkey::int8[] AS parent_attnums,
			con.confdeltype
		FROM pg_constraint con
		JOIN pg_class cc      ON cc.oid = con.conrelid
		JOIN pg_namespace cn  ON cn.oid = cc.relnamespace
		JOIN pg_class pc      ON pc.oid = con.confrelid
		JOIN pg_namespace pn  ON pn.oid = pc.relnamespace
		WHERE con.contype = 'f' AND pn.nspname = $1 AND pc.relname = $2`

	rows, err := c.db.QueryContext(ctx, query, parent.Schema, parent.Name)
	if err != nil {
		return nil, fmt.Errorf("foreign_keys_referencing(%s): %w", parent, err)
	}
	defer rows.Close()

	type rawFK struct {
		conName      string
		childSchema  string
		childTable   string
		childOID     int64
		parentOID    int64
		childAttnums []int64
		parentAttnums []int64
		deleteType   string
	}

	var raws []rawFK
	for rows.Next() {
		var r rawFK
		var childAttnums, parentAttnums pq.Int64Array
		if err := rows.Scan(&r.conName, &r.childSchema, &r.childTable, &r.childOID, &r.parentOID,
			&childAttnums, &parentAttnums, &r.deleteType); err != nil {
			return nil, fmt.Errorf("foreign_keys_referencing(%s): %w", parent, err)
		}
		r.childAttnums = []int64(childAttnums)
		r.parentAttnums = []int64(parentAttnums)
		raws = append(raws, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edges := make([]relgraph.RelationEdge, 0, len(raws))
	for _, r := range raws {
		childCols, err := c.resolveColumnNames(ctx, r.childOID, r.childAttnums)
		if err != nil {
			return nil, fmt.Errorf("foreign_keys_referencing(%s): resolving child columns: %w", parent, err)
		}
		parentCols, err := c.resolveColumnNames(ctx, r.parentOID, r.parentAttnums)
		if err != nil {
			return nil, fmt.Errorf("foreign_keys_referencing(%s): resolving parent columns: %w", parent, err)
		}

		action, ok := deleteActionNames[r.deleteType]
		if !ok {
			action = "NO_ACTION"
		}

		edges = append(edges, relgraph.RelationEdge{
			ParentTable:    parent,
			ChildTable:     relgraph.QualifiedName{Schema: r.childSchema, Name: r.childTable},
			ParentColumns:  parentCols,
			ChildColumns:   childCols,
			DeleteAction:   action,
			ConstraintName: r.conName,
		})
	}

	return edges, nil
}

// resolveColumnNames maps attnums to column names for a relation, preserving
// the order attnums was given in (conkey/confkey are already constraint-key
// ordered; a naive "WHERE attnum = ANY(...)" would lose that order, so
// lookups are resolved into a map and re-assembled positionally).
func (c *Introspector) resolveColumnNames(ctx context.Context, relid int64, attnums []int64) ([]string, error) {
	if len(attnums) == 0 {
		return nil, nil
	}

	const query = `SELECT attnum, attname FROM pg_attribute WHERE attrelid = $1 AND attnum = ANY($2::int8[])`
	rows, err := c.db.QueryContext(ctx, query, relid, pq.Array(attnums))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byNum := make(map[int64]string, len(attnums))
	for rows.Next() {
		var num int64
		var name string
		if err := rows.Scan(&num, &name); err != nil {
			return nil, err
		}
		byNum[num] = name
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	names := make([]string, len(attnums))
	for i, num := range attnums {
		name, ok := byNum[num]
		if !ok {
			return nil, fmt.Errorf("attnum %d not found on relation %d", num, relid)
		}
		names[i] = name
	}
	return names, nil
}
