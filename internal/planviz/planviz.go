// Package planviz renders a relation graph as an ASCII tree for the `plan`
// subcommand, so an operator can review a table's blast radius without
// connecting for deletes (spec §4.12).
package planviz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"

	"github.com/pgretain/pgretain/internal/relgraph"
)

// Plan is the rendered view of one table's relation graph.
type Plan struct {
	Root  relgraph.QualifiedName
	Graph *relgraph.Graph
}

// New wraps a graph already built for root for rendering.
func New(root relgraph.QualifiedName, g *relgraph.Graph) *Plan {
	return &Plan{Root: root, Graph: g}
}

// RenderTree draws the cascade as a box-and-branch ASCII tree, root at the
// top, matching the child-before-parent delete order depth-first (spec
// §4.5). Cycles are not followed past the first repeated edge, mirroring
// the walker's own cycle-skip behavior.
func (p *Plan) RenderTree() string {
	var sb strings.Builder
	writeBox(&sb, p.Root.String(), 0)
	p.renderChildren(&sb, p.Root, map[string]bool{}, "")
	return sb.String()
}

func (p *Plan) renderChildren(sb *strings.Builder, table relgraph.QualifiedName, edgePath map[string]bool, prefix string) {
	edges := p.Graph.Edges(table)
	for i, e := range edges {
		key := e.Key()
		last := i == len(edges)-1
		branch := "├── "
		childPrefix := prefix + "│   "
		if last {
			branch = "└── "
			childPrefix = prefix + "    "
		}

		label := fmt.Sprintf("%s [%s]", e.ChildTable.String(), strings.Join(e.ChildColumns, ","))
		if edgePath[key] {
			sb.WriteString(prefix + branch + color.FgYellow.Sprintf("(cycle) %s", label) + "\n")
			continue
		}

		sb.WriteString(prefix + branch + label + "\n")

		edgePath[key] = true
		p.renderChildren(sb, e.ChildTable, edgePath, childPrefix)
		delete(edgePath, key)
	}
}

// writeBox draws a single-line box around label, indented by depth*2.
func writeBox(sb *strings.Builder, label string, depth int) {
	indent := strings.Repeat("  ", depth)
	width := runewidth.StringWidth(label) + 2
	top := indent + "┌" + strings.Repeat("─", width) + "┐"
	mid := indent + "│ " + color.FgGreen.Sprint(label) + " │"
	bottom := indent + "└" + strings.Repeat("─", width) + "┘"
	sb.WriteString(top + "\n" + mid + "\n" + bottom + "\n")
}

// DeleteOrder returns every table reachable from root in children-before-
// parent order, the same order the walker deletes in, deduplicated to each
// table's first occurrence.
func (p *Plan) DeleteOrder() []string {
	var order []string
	seen := map[string]bool{}
	var visit func(table relgraph.QualifiedName, edgePath map[string]bool)
	visit = func(table relgraph.QualifiedName, edgePath map[string]bool) {
		for _, e := range p.Graph.Edges(table) {
			key := e.Key()
			if edgePath[key] {
				continue
			}
			edgePath[key] = true
			visit(e.ChildTable, edgePath)
			delete(edgePath, key)
		}
		if !seen[table.String()] {
			seen[table.String()] = true
			order = append(order, table.String())
		}
	}
	visit(p.Root, map[string]bool{})
	return order
}

// RenderRelationships lists every edge in the graph, sorted for stable
// output, one line per relation: parent -> child (FK columns, ON DELETE
// action).
func (p *Plan) RenderRelationships() string {
	type line struct {
		sortKey string
		text    string
	}
	var lines []line

	for _, table := range p.Graph.AllTables() {
		for _, e := range p.Graph.Edges(table) {
			action := e.DeleteAction
			if action == "" {
				action = "NO ACTION"
			}
			text := fmt.Sprintf("  %s -> %s  (%s -> %s, ON DELETE %s)",
				e.ParentTable, e.ChildTable,
				strings.Join(e.ParentColumns, ","), strings.Join(e.ChildColumns, ","), action)
			lines = append(lines, line{sortKey: e.ParentTable.String() + "|" + e.ChildTable.String(), text: text})
		}
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].sortKey < lines[j].sortKey })

	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l.text + "\n")
	}
	return sb.String()
}
