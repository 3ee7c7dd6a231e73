package sqltransform

import "fmt"

// InvalidSQLError reports SQL (or a WHERE fragment) that the dialect parser
// rejected. Fatal for the request; the query never reaches a database.
type InvalidSQLError struct {
	Query string
	Err   error
}

func (e *InvalidSQLError) Error() string {
	return fmt.Sprintf("invalid SQL query: %v", e.Err)
}

func (e *InvalidSQLError) Unwrap() error { return e.Err }

// ReadOnlyViolationError reports a statement containing a mutating operation
// anywhere in its tree.
type ReadOnlyViolationError struct{}

func (e *ReadOnlyViolationError) Error() string {
	return "query contains non-SELECT operations"
}

// InvalidPaginationError reports a negative limit or offset.
type InvalidPaginationError struct {
	Reason string
}

func (e *InvalidPaginationError) Error() string { return e.Reason }

// TableAccessError reports a query referencing a table forbidden by policy.
type TableAccessError struct {
	Table   string
	Allowed bool // true when an allow-list was active, false for a deny-list
}

func (e *TableAccessError) Error() string {
	if e.Allowed {
		return fmt.Sprintf("table '%s' is not in the allowed list", e.Table)
	}
	return fmt.Sprintf("table '%s' is in the excluded list", e.Table)
}
