// Package policy builds SQL fragments that narrow catalog queries to the
// schemas and tables a database configuration permits. The fragments are
// injected into otherwise-complete statements by the transformer, so every
// literal that passes through here is quote-escaped.
package policy

import (
	"fmt"
	"strings"

	"github.com/txn2/mcp-sql-gateway/pkg/sqltransform"
)

// quote escapes and single-quotes a literal for inclusion in a fragment.
func quote(s string) string {
	return "'" + strings.ReplaceAll(strings.ToLower(s), "'", "''") + "'"
}

func quoteList(items []string) string {
	quoted := make([]string, 0, len(items))
	for _, item := range items {
		quoted = append(quoted, quote(item))
	}
	return strings.Join(quoted, ", ")
}

// SchemaCondition returns a WHERE fragment restricting schema_name to the
// configured include or exclude lists. An explicit schema override wins over
// configuration. An empty string means no restriction applies.
func SchemaCondition(override string, include, exclude []string) string {
	if override != "" {
		return fmt.Sprintf("LOWER(schema_name) = %s", quote(override))
	}
	if len(include) > 0 {
		return fmt.Sprintf("LOWER(schema_name) IN (%s)", quoteList(include))
	}
	if len(exclude) > 0 {
		return fmt.Sprintf("LOWER(schema_name) NOT IN (%s)", quoteList(exclude))
	}
	return ""
}

// TableCondition returns a WHERE fragment restricting table rows to the
// configured allow or deny lists. Non-table objects (views, procedures) are
// never filtered, so the fragment always carries an object_type escape hatch.
// An empty string means no restriction applies.
func TableCondition(dialect sqltransform.Dialect, allowed, disallowed []string) string {
	col := "object_name"
	if dialect == sqltransform.DialectSQLite {
		col = "name"
	}
	if len(allowed) > 0 {
		return fmt.Sprintf("(LOWER(%s) IN (%s) OR object_type != 'table')", col, quoteList(allowed))
	}
	if len(disallowed) > 0 {
		return fmt.Sprintf("(LOWER(%s) NOT IN (%s) OR object_type != 'table')", col, quoteList(disallowed))
	}
	return ""
}
