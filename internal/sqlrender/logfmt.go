package sqlrender

import "strings"

// maxLogLength is the truncation point for SQL text embedded in diagnostic
// logs; long VALUES clauses from a large batch would otherwise flood logs.
const maxLogLength = 2000

// collapseDoubleCasts collapses a repeated cast produced when a value already typed
// by the driver gets an explicit cast appended on top (`::uuid::uuid` ->
// `::uuid`), which the VALUES renderer can produce when a caller re-casts a
// column whose type is already known.
func collapseDoubleCasts(sql string) string {
	for {
		replaced := collapseOnePass(sql)
		if replaced == sql {
			return sql
		}
		sql = replaced
	}
}

func collapseOnePass(sql string) string {
	for i := 0; i < len(sql); i++ {
		if sql[i] != ':' || i+1 >= len(sql) || sql[i+1] != ':' {
			continue
		}
		typeStart := i + 2
		j := typeStart
		for j < len(sql) && isTypeChar(sql[j]) {
			j++
		}
		typeName := sql[typeStart:j]
		if typeName == "" {
			continue
		}
		if strings.HasPrefix(sql[j:], "::"+typeName) {
			return sql[:j] + sql[j+2+len(typeName):]
		}
	}
	return sql
}

func isTypeChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '_'
}

// NormalizeForLog collapses double casts and truncates the result to
// maxLogLength characters, the shape the Error/Diagnostic Layer emits
// alongside [SQL-ERROR]/[SQL-ERROR-MANY] prefixes.
func NormalizeForLog(sql string) string {
	sql = collapseDoubleCasts(sql)
	if len(sql) > maxLogLength {
		return sql[:maxLogLength]
	}
	return sql
}
