package cascade

import "fmt"

// QueryError carries a failed query's final text and bound parameters so
// the Error/Diagnostic Layer (internal/diag) can render it for post-mortem
// logging without re-deriving the SQL from scratch.
type QueryError struct {
	SQL  string
	Args []interface{}
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
