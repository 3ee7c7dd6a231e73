package sqltransform

import (
	"fmt"
	"strings"
)

// statement is the dialect-specific AST handle behind the Transformer. Each
// engine owns its parse tree and implements the rewrite operations directly
// on it; the Transformer layers validation and policy on top.
type statement interface {
	// isReadOnly reports whether no node anywhere in the tree is a
	// mutating operation (INSERT, UPDATE, DELETE, CREATE, DROP, ALTER,
	// TRUNCATE), including inside CTEs and subqueries.
	isReadOnly() bool

	// isSelect reports whether the top-level statement is a plain SELECT.
	isSelect() bool

	// applyPagination sets the top-level LIMIT/OFFSET. An existing LIMIT
	// is only ever tightened; an existing OFFSET is always replaced; a
	// zero offset with no pre-existing OFFSET emits no OFFSET clause.
	// Nested LIMIT/OFFSET clauses are left untouched.
	applyPagination(limit, offset int)

	// countQuery renders SELECT COUNT(*) over the original statement with
	// its top-level LIMIT/OFFSET stripped, leaving the statement itself
	// unmodified.
	countQuery() (string, error)

	// addWhere parses cond as a WHERE fragment in the statement's dialect
	// and combines it with any existing WHERE via AND.
	addWhere(cond string) error

	// tableNames returns the distinct table identifiers the statement
	// references, in reference order and original case, excluding CTE
	// names. Deduplication is case-insensitive.
	tableNames() []string

	// render serializes the current tree back to SQL text.
	render() (string, error)
}

// Transformer wraps one parsed SQL statement and exposes the rewrite and
// validation operations of the gateway core. A Transformer belongs to a
// single request; instances are not safe for concurrent use and are
// discarded after rendering.
type Transformer struct {
	query   string
	dialect Dialect
	stmt    statement
}

// New parses query under the named dialect and returns a Transformer bound
// to it. Unparseable SQL fails immediately with *InvalidSQLError; no partial
// Transformer is ever returned.
func New(query, dialectName string) (*Transformer, error) {
	dialect := MapDialect(dialectName)

	var (
		stmt statement
		err  error
	)
	if dialect == DialectPostgres {
		stmt, err = parsePostgres(query)
	} else {
		stmt, err = parseGeneric(query, dialect)
	}
	if err != nil {
		return nil, &InvalidSQLError{Query: query, Err: err}
	}

	return &Transformer{query: query, dialect: dialect, stmt: stmt}, nil
}

// Query returns the original SQL text the Transformer was built from.
func (t *Transformer) Query() string { return t.query }

// Dialect returns the dialect the statement was parsed with.
func (t *Transformer) Dialect() Dialect { return t.dialect }

// IsReadOnly reports whether the statement contains no mutating operation at
// any nesting depth. Detection is structural: an UPDATE hidden inside a CTE
// used by an outer SELECT is still found.
func (t *Transformer) IsReadOnly() bool {
	return t.stmt.isReadOnly()
}

// ValidateReadOnly returns *ReadOnlyViolationError when the statement is not
// read-only. It must run before any caller-supplied SQL is executed.
func (t *Transformer) ValidateReadOnly() error {
	if !t.stmt.isReadOnly() {
		return &ReadOnlyViolationError{}
	}
	return nil
}

// AddPagination bounds the top-level result window. Negative limit or offset
// fails with *InvalidPaginationError. Statements other than a top-level
// SELECT are left unchanged. When the query already carries a LIMIT the
// effective limit is min(requested, existing); an existing OFFSET is always
// replaced, and no OFFSET clause is emitted for offset zero unless one was
// already present.
func (t *Transformer) AddPagination(limit, offset int) error {
	if limit < 0 {
		return &InvalidPaginationError{Reason: "limit must be non-negative"}
	}
	if offset < 0 {
		return &InvalidPaginationError{Reason: "offset must be non-negative"}
	}
	if !t.stmt.isSelect() {
		return nil
	}
	t.stmt.applyPagination(limit, offset)
	return nil
}

// ToCountQuery derives an exact-count companion query: SELECT COUNT(*) over
// the original statement with its own top-level LIMIT/OFFSET stripped, CTEs
// and JOINs intact. Non-SELECT statements count as zero.
func (t *Transformer) ToCountQuery() (string, error) {
	if !t.stmt.isSelect() {
		return "SELECT 0 AS count_total", nil
	}
	return t.stmt.countQuery()
}

// AddWhereCondition parses cond as a WHERE fragment in the statement's own
// dialect and ANDs it with any existing WHERE clause. Non-SELECT statements
// are left unchanged; a malformed fragment fails with *InvalidSQLError.
func (t *Transformer) AddWhereCondition(cond string) error {
	if !t.stmt.isSelect() {
		return nil
	}
	if err := t.stmt.addWhere(cond); err != nil {
		return &InvalidSQLError{Query: cond, Err: err}
	}
	return nil
}

// ValidateTableAccess checks every table the statement references against an
// allow-list or a deny-list (comparison is case-insensitive). A nil list is
// inactive; with both nil the call is a no-op. The first offending table is
// reported in *TableAccessError.
func (t *Transformer) ValidateTableAccess(allowed, disallowed []string) error {
	if len(allowed) == 0 && len(disallowed) == 0 {
		return nil
	}

	allowSet := foldSet(allowed)
	denySet := foldSet(disallowed)

	for _, table := range t.stmt.tableNames() {
		folded := strings.ToLower(table)
		if len(allowed) > 0 {
			if _, ok := allowSet[folded]; !ok {
				return &TableAccessError{Table: table, Allowed: true}
			}
		}
		if len(disallowed) > 0 {
			if _, ok := denySet[folded]; ok {
				return &TableAccessError{Table: table, Allowed: false}
			}
		}
	}
	return nil
}

// SQL renders the statement, with all rewrites applied so far, back to SQL
// text using the statement's own dialect.
func (t *Transformer) SQL() (string, error) {
	out, err := t.stmt.render()
	if err != nil {
		return "", fmt.Errorf("rendering statement: %w", err)
	}
	return out, nil
}

func foldSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = struct{}{}
	}
	return set
}
