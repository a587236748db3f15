package preflight

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgretain/pgretain/internal/relgraph"
)

func graphWith(tables ...string) *relgraph.Graph {
	g := relgraph.NewGraph()
	for i := 0; i < len(tables)-1; i++ {
		g.AddEdge(relgraph.RelationEdge{
			ParentTable:   relgraph.ParseQualified(tables[i]),
			ChildTable:    relgraph.ParseQualified(tables[i+1]),
			ParentColumns: []string{"id"},
			ChildColumns:  []string{"parent_id"},
		})
	}
	if len(tables) == 1 {
		// A lone table still needs to show up in AllTables(), so give it a
		// self-referential edge the walker would treat as a cycle but the
		// graph is happy to record.
		g.AddEdge(relgraph.RelationEdge{
			ParentTable:   relgraph.ParseQualified(tables[0]),
			ChildTable:    relgraph.ParseQualified(tables[0]),
			ParentColumns: []string{"id"},
			ChildColumns:  []string{"id"},
		})
	}
	return g
}

func TestNewPreflightCheckerRejectsNilArgs(t *testing.T) {
	_, err := NewPreflightChecker(nil, relgraph.NewGraph(), nil)
	assert.Error(t, err)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewPreflightChecker(db, nil, nil)
	assert.Error(t, err)
}

func TestRunAllChecksPassesOnEmptyGraph(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p, err := NewPreflightChecker(db, relgraph.NewGraph(), nil)
	require.NoError(t, err)

	err = p.RunAllChecks(context.Background(), false)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateTablesExistReportsMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT c.relname`).
		WithArgs("public", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"relname"}).AddRow("orders"))

	p, err := NewPreflightChecker(db, graphWith("public.orders"), nil)
	require.NoError(t, err)

	err = p.ValidateTablesExist(context.Background(), []relgraph.QualifiedName{
		relgraph.ParseQualified("public.orders"),
		relgraph.ParseQualified("public.order_items"),
	})

	var perr *PreflightError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "TABLE_EXISTENCE_CHECK", perr.Check)
	assert.Contains(t, perr.Tables, "public.order_items")
}

func TestValidateTablesExistPasses(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT c.relname`).
		WillReturnRows(sqlmock.NewRows([]string{"relname"}).AddRow("orders"))

	p, err := NewPreflightChecker(db, graphWith("public.orders"), nil)
	require.NoError(t, err)

	err = p.ValidateTablesExist(context.Background(), []relgraph.QualifiedName{relgraph.ParseQualified("public.orders")})
	assert.NoError(t, err)
}

func TestValidateForeignKeyIndexesFlagsUnindexedColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+src\.relname`).
		WillReturnRows(sqlmock.NewRows(
			[]string{"table_name", "conname", "column_name", "referenced_table", "referenced_column", "confdeltype"}).
			AddRow("order_items", "fk_order", "order_id", "orders", "id", "a"))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("order_items", "order_id").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	p, err := NewPreflightChecker(db, graphWith("public.orders", "public.order_items"), nil)
	require.NoError(t, err)

	err = p.ValidateForeignKeyIndexes(context.Background())
	var perr *PreflightError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "FK_INDEX_CHECK", perr.Check)
	assert.Contains(t, perr.Tables, "order_items.order_id")
}

func TestValidateForeignKeyIndexesPassesWhenIndexed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+src\.relname`).
		WillReturnRows(sqlmock.NewRows(
			[]string{"table_name", "conname", "column_name", "referenced_table", "referenced_column", "confdeltype"}).
			AddRow("order_items", "fk_order", "order_id", "orders", "id", "c"))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	p, err := NewPreflightChecker(db, graphWith("public.orders", "public.order_items"), nil)
	require.NoError(t, err)

	assert.NoError(t, p.ValidateForeignKeyIndexes(context.Background()))
}

func TestValidateTriggersErrorsWithoutForce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT c.relname, t.tgname`).
		WillReturnRows(sqlmock.NewRows([]string{"relname", "tgname"}).AddRow("orders", "trg_audit_delete"))

	p, err := NewPreflightChecker(db, graphWith("public.orders"), nil)
	require.NoError(t, err)

	tables := []relgraph.QualifiedName{relgraph.ParseQualified("public.orders")}
	err = p.ValidateTriggers(context.Background(), tables, false)

	var perr *PreflightError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "DELETE_TRIGGER_CHECK", perr.Check)
}

func TestValidateTriggersWarnsWhenForced(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT c.relname, t.tgname`).
		WillReturnRows(sqlmock.NewRows([]string{"relname", "tgname"}).AddRow("orders", "trg_audit_delete"))

	p, err := NewPreflightChecker(db, graphWith("public.orders"), nil)
	require.NoError(t, err)

	tables := []relgraph.QualifiedName{relgraph.ParseQualified("public.orders")}
	assert.NoError(t, p.ValidateTriggers(context.Background(), tables, true))
}

func TestCheckDeleteTriggersEmptyTablesIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p, err := NewPreflightChecker(db, relgraph.NewGraph(), nil)
	require.NoError(t, err)

	triggers, err := p.CheckDeleteTriggers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, triggers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWarnCascadeRulesNeverFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+src\.relname`).
		WillReturnRows(sqlmock.NewRows(
			[]string{"table_name", "conname", "column_name", "referenced_table", "referenced_column", "confdeltype"}).
			AddRow("order_items", "fk_order", "order_id", "orders", "id", "c"))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	p, err := NewPreflightChecker(db, graphWith("public.orders", "public.order_items"), nil)
	require.NoError(t, err)

	assert.NoError(t, p.WarnCascadeRules(context.Background()))
}

func TestValidateForeignKeyCoverageFlagsUncoveredTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+src\.relname`).
		WillReturnRows(sqlmock.NewRows(
			[]string{"table_name", "conname", "column_name", "referenced_table", "referenced_column", "confdeltype"}).
			AddRow("archive_log", "fk_archive", "order_id", "orders", "id", "r"))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	p, err := NewPreflightChecker(db, graphWith("public.orders"), nil)
	require.NoError(t, err)

	err = p.ValidateForeignKeyCoverage(context.Background())
	var perr *PreflightError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "FK_COVERAGE_CHECK", perr.Check)
	assert.Contains(t, perr.Message, "archive_log")
}

func TestValidateForeignKeyCoverageIgnoresCascade(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+src\.relname`).
		WillReturnRows(sqlmock.NewRows(
			[]string{"table_name", "conname", "column_name", "referenced_table", "referenced_column", "confdeltype"}).
			AddRow("archive_log", "fk_archive", "order_id", "orders", "id", "c"))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	p, err := NewPreflightChecker(db, graphWith("public.orders"), nil)
	require.NoError(t, err)

	assert.NoError(t, p.ValidateForeignKeyCoverage(context.Background()))
}

func TestPreflightErrorFormatting(t *testing.T) {
	withTables := &PreflightError{Check: "X", Message: "bad", Tables: []string{"a", "b"}}
	assert.Contains(t, withTables.Error(), "X: bad (tables: [a b])")

	bare := &PreflightError{Check: "Y", Message: "oops"}
	assert.Equal(t, "Y: oops", bare.Error())
}

func TestForeignKeysIntoGraphPropagatesQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+src\.relname`).WillReturnError(errors.New("connection reset"))

	p, err := NewPreflightChecker(db, graphWith("public.orders"), nil)
	require.NoError(t, err)

	_, err = p.ValidateForeignKeyIndexes(context.Background())
	assert.Error(t, err)
}
