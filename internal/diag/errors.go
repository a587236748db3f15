// Package diag classifies and renders cascade engine failures for
// post-mortem logging: binding parameters into the failing SQL text,
// normalizing and truncating it, and pulling every diagnostic field a
// PostgreSQL error carries (spec §4.8).
package diag

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/pgretain/pgretain/internal/cascade"
	"github.com/pgretain/pgretain/internal/logger"
	"github.com/pgretain/pgretain/internal/sqlrender"
)

// IsDatabaseError reports whether err originated from the PostgreSQL
// driver, as opposed to a generic Go error (spec's DbError vs. everything
// else, §7).
func IsDatabaseError(err error) bool {
	_, ok := asPQError(err)
	return ok
}

func asPQError(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr, true
	}
	return nil, false
}

// FormatPQError joins every available diagnostic field from a PostgreSQL
// error: primary message, detail, hint, context, schema/table/column/
// constraint names, SQLSTATE code, routine.
func FormatPQError(e *pq.Error) string {
	var parts []string
	parts = append(parts, e.Message)

	if e.Detail != "" {
		parts = append(parts, "DETAIL: "+e.Detail)
	}
	if e.Hint != "" {
		parts = append(parts, "HINT: "+e.Hint)
	}
	if e.Where != "" {
		parts = append(parts, "CONTEXT: "+e.Where)
	}
	if e.Schema != "" {
		parts = append(parts, "SCHEMA: "+e.Schema)
	}
	if e.Table != "" {
		parts = append(parts, "TABLE: "+e.Table)
	}
	if e.Column != "" {
		parts = append(parts, "COLUMN: "+e.Column)
	}
	if e.Constraint != "" {
		parts = append(parts, "CONSTRAINT: "+e.Constraint)
	}
	if e.Code != "" {
		parts = append(parts, "SQLSTATE: "+string(e.Code))
	}
	if e.Routine != "" {
		parts = append(parts, "ROUTINE: "+e.Routine)
	}

	return strings.Join(parts, " | ")
}

// BindParams substitutes each $N placeholder in sql with a literal for its
// argument: NULL for nil, a safely-quoted literal for strings, byte slices
// and fmt.Stringers, and the unquoted %v text for any other value. The
// unbound text is returned only if an argument can't be rendered, which
// quoteLiteral never reports for any type.
func BindParams(sqlText string, args []interface{}) string {
	bound, ok := tryBind(sqlText, args)
	if !ok {
		return sqlText
	}
	return bound
}

func tryBind(sqlText string, args []interface{}) (string, bool) {
	out := sqlText
	for i := len(args); i >= 1; i-- {
		placeholder := fmt.Sprintf("$%d", i)
		literal, ok := quoteLiteral(args[i-1])
		if !ok {
			return "", false
		}
		out = strings.ReplaceAll(out, placeholder, literal)
	}
	return out, true
}

func quoteLiteral(v interface{}) (string, bool) {
	if v == nil {
		return "NULL", true
	}
	switch vv := v.(type) {
	case string:
		return pq.QuoteLiteral(vv), true
	case []byte:
		return pq.QuoteLiteral(string(vv)), true
	case fmt.Stringer:
		return pq.QuoteLiteral(vv.String()), true
	default:
		return fmt.Sprintf("%v", vv), true
	}
}

// LogQueryError renders a *cascade.QueryError at ERROR level with the
// [SQL-ERROR] (or [SQL-ERROR-MANY] for batched executes, showing only the
// first parameter tuple) prefix, the normalized/truncated bound SQL, and
// full PostgreSQL diagnostic fields when available.
func LogQueryError(log *logger.Logger, qe *cascade.QueryError, many bool, tupleWidth int) {
	prefix := "[SQL-ERROR]"
	args := qe.Args
	if many {
		prefix = "[SQL-ERROR-MANY]"
		if tupleWidth > 0 && tupleWidth <= len(args) {
			args = args[:tupleWidth]
		}
	}

	bound := BindParams(qe.SQL, args)
	text := sqlrender.NormalizeForLog(bound)

	if pqErr, ok := asPQError(qe.Err); ok {
		log.Errorf("%s %s -- %s", prefix, text, FormatPQError(pqErr))
		return
	}
	log.Errorf("%s %s -- %s", prefix, text, qe.Err.Error())
}
