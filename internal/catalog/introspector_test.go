package catalog

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgretain/pgretain/internal/relgraph"
)

func TestColumnTypes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"attname", "typname"}).
		AddRow("id", "int8").
		AddRow("created_at", "timestamptz")

	mock.ExpectQuery("SELECT a.attname, t.typname").
		WithArgs("public", "orders").
		WillReturnRows(rows)

	c := NewIntrospector(db)
	types, err := c.ColumnTypes(context.Background(), "public", "orders", []string{"created_at", "id"})
	require.NoError(t, err)
	assert.Equal(t, []string{"timestamptz", "int8"}, types)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestColumnTypesMissingColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"attname", "typname"}).AddRow("id", "int8")
	mock.ExpectQuery("SELECT a.attname, t.typname").WillReturnRows(rows)

	c := NewIntrospector(db)
	_, err = c.ColumnTypes(context.Background(), "public", "orders", []string{"nonexistent"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "catalog miss")
}

func TestPrimaryKeyColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"attname"}).AddRow("tenant_id").AddRow("id")
	mock.ExpectQuery("SELECT a.attname").WithArgs("public", "orders").WillReturnRows(rows)

	c := NewIntrospector(db)
	cols, err := c.PrimaryKeyColumns(context.Background(), "public", "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant_id", "id"}, cols)
}

func TestForeignKeysReferencingPreservesColumnOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fkRows := sqlmock.NewRows([]string{
		"conname", "child_schema", "child_table", "child_oid", "parent_oid",
		"child_attnums", "parent_attnums", "confdeltype",
	}).AddRow("order_items_order_fk", "public", "order_items", int64(200), int64(100),
		"{2,1}", "{1,2}", "c")

	mock.ExpectQuery("FROM pg_constraint con").
		WithArgs("public", "orders").
		WillReturnRows(fkRows)

	childAttrRows := sqlmock.NewRows([]string{"attnum", "attname"}).
		AddRow(1, "id").AddRow(2, "order_id")
	mock.ExpectQuery("FROM pg_attribute WHERE attrelid").
		WithArgs(int64(200), sqlmock.AnyArg()).
		WillReturnRows(childAttrRows)

	parentAttrRows := sqlmock.NewRows([]string{"attnum", "attname"}).
		AddRow(1, "tenant_id").AddRow(2, "id")
	mock.ExpectQuery("FROM pg_attribute WHERE attrelid").
		WithArgs(int64(100), sqlmock.AnyArg()).
		WillReturnRows(parentAttrRows)

	c := NewIntrospector(db)
	edges, err := c.ForeignKeysReferencing(context.Background(), relgraph.QualifiedName{Schema: "public", Name: "orders"})
	require.NoError(t, err)
	require.Len(t, edges, 1)

	e := edges[0]
	assert.Equal(t, "order_items_order_fk", e.ConstraintName)
	assert.Equal(t, "CASCADE", e.DeleteAction)
	assert.Equal(t, "public.order_items", e.ChildTable.String())
	// child_attnums was {2,1} -> order_id, id (positional, not catalog order)
	assert.Equal(t, []string{"order_id", "id"}, e.ChildColumns)
	// parent_attnums was {1,2} -> tenant_id, id
	assert.Equal(t, []string{"tenant_id", "id"}, e.ParentColumns)
}

func TestForeignKeysReferencingUnknownDeleteAction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fkRows := sqlmock.NewRows([]string{
		"conname", "child_schema", "child_table", "child_oid", "parent_oid",
		"child_attnums", "parent_attnums", "confdeltype",
	}).AddRow("fk1", "public", "child", int64(2), int64(1), "{1}", "{1}", "x")

	mock.ExpectQuery("FROM pg_constraint con").WillReturnRows(fkRows)

	attrRows := sqlmock.NewRows([]string{"attnum", "attname"}).AddRow(1, "id")
	mock.ExpectQuery("FROM pg_attribute WHERE attrelid").WithArgs(int64(2), sqlmock.AnyArg()).WillReturnRows(attrRows)
	mock.ExpectQuery("FROM pg_attribute WHERE attrelid").WithArgs(int64(1), sqlmock.AnyArg()).WillReturnRows(attrRows)

	c := NewIntrospector(db)
	edges, err := c.ForeignKeysReferencing(context.Background(), relgraph.QualifiedName{Schema: "public", Name: "parent"})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "NO_ACTION", edges[0].DeleteAction)
}
