package sqlrender

import (
	"fmt"
	"strings"

	"github.com/pgretain/pgretain/internal/config"
)

// RenderPredicates renders a predicate list as `" AND " + clause1 + " AND " + clause2 + …`,
// returning the combined clause (empty string if there are no predicates) and
// the flattened parameter list in the order the placeholders appear.
// startParam is the 1-based index of the first placeholder this call emits.
func RenderPredicates(predicates []config.Predicate, startParam int) (string, []interface{}) {
	if len(predicates) == 0 {
		return "", nil
	}

	var clauses []string
	var args []interface{}
	param := startParam

	for _, p := range predicates {
		clause, pArgs, next := renderOne(p, param)
		clauses = append(clauses, clause)
		args = append(args, pArgs...)
		param = next
	}

	return " AND " + strings.Join(clauses, " AND "), args
}

func renderOne(p config.Predicate, param int) (string, []interface{}, int) {
	switch p.Kind() {
	case config.PredicateRaw:
		return renderRaw(p, param)
	case config.PredicateInList:
		return renderInList(p, param)
	case config.PredicateIsNull:
		return fmt.Sprintf("%s %s", QuoteIdentifier(p.Column), p.Op), nil, param
	default:
		col := QuoteIdentifier(p.Column)
		clause := fmt.Sprintf("%s %s $%d", col, p.Op, param)
		return clause, []interface{}{p.Value}, param + 1
	}
}

func renderInList(p config.Predicate, param int) (string, []interface{}, int) {
	values, ok := p.Value.([]interface{})
	if !ok {
		values = coerceToSlice(p.Value)
	}
	if len(values) == 0 {
		// An empty IN-list matches nothing; render a clause that is always false
		// rather than emitting invalid SQL with no placeholders.
		return "FALSE", nil, param
	}

	placeholders := make([]string, len(values))
	for i := range values {
		placeholders[i] = fmt.Sprintf("$%d", param)
		param++
	}

	clause := fmt.Sprintf("%s IN (%s)", QuoteIdentifier(p.Column), strings.Join(placeholders, ", "))
	return clause, values, param
}

// renderRaw splices raw_sql verbatim, rewriting its `?` placeholders (the
// operator-facing convention for raw predicates) into the query's running
// positional parameter sequence, followed by its bound params.
func renderRaw(p config.Predicate, param int) (string, []interface{}, int) {
	var b strings.Builder
	for _, r := range p.RawSQL {
		if r == '?' {
			b.WriteString(fmt.Sprintf("$%d", param))
			param++
		} else {
			b.WriteRune(r)
		}
	}
	return b.String(), p.Params, param
}

func coerceToSlice(v interface{}) []interface{} {
	switch vv := v.(type) {
	case []string:
		out := make([]interface{}, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out
	case []int:
		out := make([]interface{}, len(vv))
		for i, n := range vv {
			out[i] = n
		}
		return out
	default:
		return nil
	}
}
