package relgraph

import (
	"context"
	"fmt"

	"github.com/pgretain/pgretain/internal/config"
	"github.com/pgretain/pgretain/internal/logger"
)

// Introspector is the catalog read the Builder needs: foreign keys whose
// referenced table is parent, in constrained column order.
type Introspector interface {
	ForeignKeysReferencing(ctx context.Context, parent QualifiedName) ([]RelationEdge, error)
}

// Builder merges manual and auto-discovered edges into a Graph, applying
// skip rules and the exclude_cascade_fk filter (spec §4.2).
type Builder struct {
	catalog     Introspector
	skipTables  map[string]bool
	skipColumns map[string]bool
	log         *logger.Logger
}

// NewBuilder constructs a Builder. skipTables/skipColumns come from the
// global config and apply to every table cleaned in this run.
func NewBuilder(catalog Introspector, skipTables, skipColumns []string, log *logger.Logger) *Builder {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Builder{
		catalog:     catalog,
		skipTables:  toSet(skipTables),
		skipColumns: toSet(skipColumns),
		log:         log,
	}
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// Build constructs the initial graph for a table-clean pass: manual edges
// first (so they win dedup ties), then one round of auto-discovery rooted
// at the table itself when enabled.
func (b *Builder) Build(ctx context.Context, root QualifiedName, table *config.TableRetention) (*Graph, error) {
	g := NewGraph()

	for _, rel := range table.Related {
		edge, err := b.normalizeManual(root, rel)
		if err != nil {
			return nil, fmt.Errorf("config invalid: %w", err)
		}
		if b.isSkipped(edge) {
			continue
		}
		g.AddEdge(edge)
	}

	if table.AutoDiscoverRelated {
		if err := b.EnsureDiscovered(ctx, g, root, table.ExcludesCascadeFK()); err != nil {
			return nil, err
		}
	}

	return g, nil
}

func (b *Builder) normalizeManual(root QualifiedName, rel config.ManualRelation) (RelationEdge, error) {
	parent := root
	if rel.ParentTable != "" {
		parent = ParseQualified(rel.ParentTable)
	}
	child := ParseQualified(rel.Name)

	edge := RelationEdge{
		ParentTable:   parent,
		ChildTable:    child,
		ParentColumns: rel.Mapping.ParentColumns,
		ChildColumns:  rel.Mapping.ChildColumns,
		Conditions:    rel.Conditions,
	}
	if err := edge.Validate(); err != nil {
		return RelationEdge{}, err
	}
	return edge, nil
}

// EnsureDiscovered runs auto-discovery rooted at table if it hasn't already
// run in this graph, filters by exclude_cascade_fk and the skip rules, and
// unions any new edges in. This is the "lazy extension" the walker invokes
// the first time it reaches a new table (spec §4.2); it is also called once
// up front for the root table by Build.
func (b *Builder) EnsureDiscovered(ctx context.Context, g *Graph, table QualifiedName, excludeCascadeFK bool) error {
	if g.AutoDiscovered(table) {
		return nil
	}

	edges, err := b.catalog.ForeignKeysReferencing(ctx, table)
	if err != nil {
		return fmt.Errorf("auto-discovery for %s: %w", table, err)
	}

	var skippedCascade []string
	for _, e := range edges {
		if excludeCascadeFK && e.DeleteAction == "CASCADE" {
			skippedCascade = append(skippedCascade, e.ConstraintName)
			continue
		}
		if b.isSkipped(e) {
			continue
		}
		g.AddEdge(e)
	}

	if len(skippedCascade) > 0 {
		b.log.Infof("skipping %d ON DELETE CASCADE constraint(s) for %s (handled by the database): %v",
			len(skippedCascade), table, skippedCascade)
	}

	g.MarkAutoDiscovered(table)
	return nil
}

func (b *Builder) isSkipped(e RelationEdge) bool {
	if b.skipTables[e.ChildTable.String()] || b.skipTables[e.ChildTable.ShortName()] {
		return true
	}
	for _, col := range e.ChildColumns {
		if b.skipColumns[col] {
			return true
		}
	}
	return false
}
