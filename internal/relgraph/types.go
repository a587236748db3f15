// Package relgraph builds and holds the parent->child relation graph the
// cascade walker traverses: manual relations from configuration merged with
// foreign keys auto-discovered from the database catalog, filtered by skip
// rules and deduplicated.
package relgraph

import (
	"fmt"
	"strings"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/pgretain/pgretain/internal/config"
)

// DefaultSchema is the schema an unqualified table name resolves to.
const DefaultSchema = "public"

// QualifiedName is a (schema, name) pair normalized so any unqualified
// input defaults to schema "public".
type QualifiedName struct {
	Schema string
	Name   string
}

// ParseQualified splits "schema.table" into a QualifiedName, defaulting the
// schema to "public" when the input carries no schema prefix.
func ParseQualified(raw string) QualifiedName {
	if idx := strings.IndexByte(raw, '.'); idx >= 0 {
		return QualifiedName{Schema: raw[:idx], Name: raw[idx+1:]}
	}
	return QualifiedName{Schema: DefaultSchema, Name: raw}
}

// String renders the canonical "schema.table" form.
func (q QualifiedName) String() string {
	return q.Schema + "." + q.Name
}

// ShortName returns the unqualified table name, used against skip_tables
// entries that an operator wrote without a schema prefix.
func (q QualifiedName) ShortName() string {
	return q.Name
}

// RelationEdge is an immutable parent->child relation: a foreign key, either
// auto-discovered from the catalog or declared manually in configuration.
type RelationEdge struct {
	ParentTable   QualifiedName
	ChildTable    QualifiedName
	ParentColumns []string
	ChildColumns  []string
	Conditions    []config.Predicate
	// DeleteAction is the DB-side ON DELETE action (NO_ACTION, RESTRICT,
	// CASCADE, SET_NULL, SET_DEFAULT); empty for manual edges, which have no
	// corresponding FK constraint to read it from.
	DeleteAction string
	// ConstraintName names the originating FK constraint for auto-discovered
	// edges; empty for manual edges.
	ConstraintName string
}

// Validate checks the edge's invariant: parent and child column lists are
// the same non-zero length.
func (e RelationEdge) Validate() error {
	if len(e.ParentColumns) == 0 || len(e.ChildColumns) == 0 {
		return fmt.Errorf("relation %s->%s: parent_columns and child_columns must each have at least one entry", e.ParentTable, e.ChildTable)
	}
	if len(e.ParentColumns) != len(e.ChildColumns) {
		return fmt.Errorf("relation %s->%s: parent_columns and child_columns must be the same length (%d != %d)",
			e.ParentTable, e.ChildTable, len(e.ParentColumns), len(e.ChildColumns))
	}
	return nil
}

// Key returns the canonical dedup/cycle-detection identity:
// (parent_table, child_table, child_columns, parent_columns).
func (e RelationEdge) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s",
		e.ParentTable, e.ChildTable, strings.Join(e.ChildColumns, ","), strings.Join(e.ParentColumns, ","))
}

// Graph maps a parent qualified name to its outgoing edges, in insertion
// order, so "manual wins on tie because it's inserted first" (spec §4.2) and
// sibling iteration order are literal, not incidental map order.
type Graph struct {
	edges          map[string]*orderedmap.OrderedMap[string, RelationEdge]
	discoveredAuto map[string]bool
}

// NewGraph returns an empty relation graph.
func NewGraph() *Graph {
	return &Graph{
		edges:          make(map[string]*orderedmap.OrderedMap[string, RelationEdge]),
		discoveredAuto: make(map[string]bool),
	}
}

// AddEdge inserts an edge under its parent, deduplicating by Key(); the
// first edge inserted under a given key wins (manual edges are always
// inserted before auto-discovered ones, see Builder.Build).
func (g *Graph) AddEdge(e RelationEdge) {
	parentKey := e.ParentTable.String()
	bucket, ok := g.edges[parentKey]
	if !ok {
		bucket = orderedmap.NewOrderedMap[string, RelationEdge]()
		g.edges[parentKey] = bucket
	}
	if _, exists := bucket.Get(e.Key()); exists {
		return
	}
	bucket.Set(e.Key(), e)
}

// Edges returns the outgoing edges for a parent table, in insertion order.
func (g *Graph) Edges(parent QualifiedName) []RelationEdge {
	bucket, ok := g.edges[parent.String()]
	if !ok {
		return nil
	}
	out := make([]RelationEdge, 0, bucket.Len())
	for el := bucket.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}

// MarkAutoDiscovered records that auto-discovery has been run rooted at
// this table, so the walker's lazy extension (spec §4.2) only fires once
// per table per table-clean pass.
func (g *Graph) MarkAutoDiscovered(table QualifiedName) {
	g.discoveredAuto[table.String()] = true
}

// AutoDiscovered reports whether auto-discovery has already run for table.
func (g *Graph) AutoDiscovered(table QualifiedName) bool {
	return g.discoveredAuto[table.String()]
}

// AllTables returns every table name that appears as a parent or a child
// anywhere in the graph, used by the Preflight Checker and Plan Renderer.
func (g *Graph) AllTables() []QualifiedName {
	seen := make(map[string]QualifiedName)
	for parentKey, bucket := range g.edges {
		if _, ok := seen[parentKey]; !ok {
			for el := bucket.Front(); el != nil; el = el.Next() {
				seen[parentKey] = el.Value.ParentTable
				break
			}
		}
		for el := bucket.Front(); el != nil; el = el.Next() {
			seen[el.Value.ChildTable.String()] = el.Value.ChildTable
		}
	}
	out := make([]QualifiedName, 0, len(seen))
	for _, q := range seen {
		out = append(out, q)
	}
	return out
}
