package planviz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pgretain/pgretain/internal/relgraph"
)

func sampleGraph() (relgraph.QualifiedName, *relgraph.Graph) {
	root := relgraph.ParseQualified("public.users")
	orders := relgraph.ParseQualified("public.orders")
	items := relgraph.ParseQualified("public.order_items")

	g := relgraph.NewGraph()
	g.AddEdge(relgraph.RelationEdge{
		ParentTable: root, ChildTable: orders,
		ParentColumns: []string{"id"}, ChildColumns: []string{"user_id"},
		DeleteAction: "CASCADE",
	})
	g.AddEdge(relgraph.RelationEdge{
		ParentTable: orders, ChildTable: items,
		ParentColumns: []string{"id"}, ChildColumns: []string{"order_id"},
		DeleteAction: "CASCADE",
	})
	return root, g
}

func TestRenderTreeContainsAllTables(t *testing.T) {
	root, g := sampleGraph()
	plan := New(root, g)

	tree := plan.RenderTree()
	assert.Contains(t, tree, "public.users")
	assert.Contains(t, tree, "public.orders [user_id]")
	assert.Contains(t, tree, "public.order_items [order_id]")
}

func TestRenderTreeMarksCycle(t *testing.T) {
	a := relgraph.ParseQualified("public.a")
	b := relgraph.ParseQualified("public.b")

	g := relgraph.NewGraph()
	g.AddEdge(relgraph.RelationEdge{
		ParentTable: a, ChildTable: b,
		ParentColumns: []string{"id"}, ChildColumns: []string{"a_id"},
	})
	g.AddEdge(relgraph.RelationEdge{
		ParentTable: b, ChildTable: a,
		ParentColumns: []string{"id"}, ChildColumns: []string{"b_id"},
	})

	plan := New(a, g)
	tree := plan.RenderTree()
	assert.Contains(t, tree, "cycle")
}

func TestDeleteOrderChildrenBeforeParents(t *testing.T) {
	root, g := sampleGraph()
	plan := New(root, g)

	order := plan.DeleteOrder()
	assert.Equal(t, []string{"public.order_items", "public.orders", "public.users"}, order)
}

func TestDeleteOrderNoDuplicatesOnCycle(t *testing.T) {
	a := relgraph.ParseQualified("public.a")
	b := relgraph.ParseQualified("public.b")

	g := relgraph.NewGraph()
	g.AddEdge(relgraph.RelationEdge{
		ParentTable: a, ChildTable: b,
		ParentColumns: []string{"id"}, ChildColumns: []string{"a_id"},
	})
	g.AddEdge(relgraph.RelationEdge{
		ParentTable: b, ChildTable: a,
		ParentColumns: []string{"id"}, ChildColumns: []string{"b_id"},
	})

	plan := New(a, g)
	order := plan.DeleteOrder()
	assert.ElementsMatch(t, []string{"public.a", "public.b"}, order)
	assert.Len(t, order, 2)
}

func TestRenderRelationshipsSortedAndLabeled(t *testing.T) {
	root, g := sampleGraph()
	plan := New(root, g)

	rel := plan.RenderRelationships()
	lines := strings.Split(strings.TrimRight(rel, "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.True(t, strings.Contains(lines[0], "public.orders -> public.order_items"))
	assert.True(t, strings.Contains(lines[1], "public.users -> public.orders"))
	assert.Contains(t, rel, "ON DELETE CASCADE")
}

func TestRenderRelationshipsDefaultsToNoAction(t *testing.T) {
	root := relgraph.ParseQualified("public.parent")
	child := relgraph.ParseQualified("public.child")
	g := relgraph.NewGraph()
	g.AddEdge(relgraph.RelationEdge{
		ParentTable: root, ChildTable: child,
		ParentColumns: []string{"id"}, ChildColumns: []string{"parent_id"},
	})

	plan := New(root, g)
	rel := plan.RenderRelationships()
	assert.Contains(t, rel, "ON DELETE NO ACTION")
}
