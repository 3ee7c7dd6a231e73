// Package catalog holds the per-dialect metadata queries used by the table
// inspection and search tools. The queries ship as embedded SQL assets and
// carry {{name}} placeholders bound at call time.
//
// Catalog queries are trusted text authored alongside this package. Bound
// values are still quote-escaped because they originate from tool callers.
package catalog

import (
	"embed"
	"fmt"
	"strings"

	"github.com/txn2/mcp-sql-gateway/pkg/sqltransform"
)

//go:embed sql
var sqlAssets embed.FS

// Query names understood by Load.
const (
	QueryTableExists = "table_exists"
	QueryColumns     = "columns"
	QueryForeignKey  = "foreign_key"
	QueryPrimaryKey  = "primary_key"
	QuerySearch      = "search"
	QueryTables      = "tables"
	QueryEnumValues  = "enum_values"
	QueryFuzzy       = "fuzzy"
)

// UnsupportedDialectError indicates no catalog asset exists for the
// dialect and query combination.
type UnsupportedDialectError struct {
	Dialect sqltransform.Dialect
	Query   string
}

func (e *UnsupportedDialectError) Error() string {
	return fmt.Sprintf("dialect '%s' is not supported for %s queries", e.Dialect, e.Query)
}

// Load returns the raw SQL template for a dialect and query name.
func Load(dialect sqltransform.Dialect, name string) (string, error) {
	data, err := sqlAssets.ReadFile(fmt.Sprintf("sql/%s/%s.sql", dialect, name))
	if err != nil {
		return "", &UnsupportedDialectError{Dialect: dialect, Query: name}
	}
	return string(data), nil
}

// Bind substitutes {{key}} placeholders with escaped values. Unbound
// placeholders are left in place so a missing parameter fails loudly at
// parse time rather than silently matching nothing.
func Bind(template string, params map[string]string) string {
	out := template
	for key, value := range params {
		out = strings.ReplaceAll(out, "{{"+key+"}}", escape(value))
	}
	return out
}

// escape doubles single quotes. Placeholders sit inside quoted literals in
// every asset, so this is the only escaping the templates need.
func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Paginate appends a row window to a catalog query. The assets never carry
// their own pagination, and some (the sqlite pragma scans) use table-valued
// functions outside the SQL parser's grammar, so the window is applied
// textually here instead of through the transformer. T-SQL takes
// OFFSET/FETCH rather than LIMIT; the mssql inspection assets all end in
// ORDER BY, which that form requires.
func Paginate(dialect sqltransform.Dialect, sql string, limit, offset int) string {
	out := strings.TrimRight(strings.TrimSpace(sql), ";")
	if dialect == sqltransform.DialectMSSQL {
		return out + fmt.Sprintf(" OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, limit)
	}
	out += fmt.Sprintf(" LIMIT %d", limit)
	if offset > 0 {
		out += fmt.Sprintf(" OFFSET %d", offset)
	}
	return out
}

// WrapCount derives the row-count form of a catalog query. T-SQL rejects a
// bare ORDER BY inside a derived table; a zero offset keeps the mssql form
// valid without disturbing the count.
func WrapCount(dialect sqltransform.Dialect, sql string) string {
	out := strings.TrimRight(strings.TrimSpace(sql), ";")
	if dialect == sqltransform.DialectMSSQL {
		out += " OFFSET 0 ROWS"
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS count_subquery", out)
}
