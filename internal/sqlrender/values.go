package sqlrender

import (
	"fmt"
	"strings"
)

// RenderValues composes a typed VALUES clause for a set of key tuples:
//
//	( $1::t1, $2::t2, … ), ( $(n+1)::t1, … )
//
// Every cell is cast to its catalog-derived type so the planner isn't left
// to infer types across mixed or composite-key IN-lists. startParam is the
// 1-based index of the first placeholder (so this clause can be spliced
// after other parameters in the same statement). Returns the clause text
// and the flattened argument list in the same order as the placeholders.
func RenderValues(tuples [][]interface{}, types []string, startParam int) (string, []interface{}) {
	if len(tuples) == 0 || len(types) == 0 {
		return "", nil
	}

	args := make([]interface{}, 0, len(tuples)*len(types))
	groups := make([]string, 0, len(tuples))
	param := startParam

	for _, tuple := range tuples {
		cells := make([]string, 0, len(types))
		for i, t := range types {
			cells = append(cells, fmt.Sprintf("$%d::%s", param, t))
			args = append(args, tuple[i])
			param++
		}
		groups = append(groups, "("+strings.Join(cells, ", ")+")")
	}

	return strings.Join(groups, ", "), args
}

// RenderInTuple renders the "(col1, col2) IN (VALUES ...)" shape used to
// select child rows whose composite key matches one of the projected parent
// key tuples. columns are already-quoted identifiers.
func RenderInTuple(columns []string, tuples [][]interface{}, types []string, startParam int) (string, []interface{}) {
	valuesClause, args := RenderValues(tuples, types, startParam)
	if valuesClause == "" {
		return "", nil
	}

	colList := "(" + strings.Join(columns, ", ") + ")"
	return fmt.Sprintf("%s IN (VALUES %s)", colList, valuesClause), args
}
