package sqltransform

import (
	"fmt"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"
)

// renderGeneric serializes a vitess AST in the target dialect's grammar.
// The default serializer speaks MySQL: backtick-quoted identifiers and the
// LIMIT offset, rowcount form, neither of which mssql or snowflake accept.
// Those two dialects go through a custom formatter that quotes with double
// quotes and rewrites the row window.
func renderGeneric(node sqlparser.SQLNode, dialect Dialect) string {
	if dialect != DialectMSSQL && dialect != DialectSnowflake {
		return sqlparser.String(node)
	}

	buf := sqlparser.NewTrackedBuffer(func(buf *sqlparser.TrackedBuffer, node sqlparser.SQLNode) {
		switch n := node.(type) {
		case sqlparser.IdentifierCI:
			writeQuotedIdent(buf, n.String())
		case sqlparser.IdentifierCS:
			writeQuotedIdent(buf, n.String())
		case *sqlparser.Limit:
			writeRowWindow(buf, n, dialect)
		default:
			node.Format(buf)
		}
	})
	buf.Myprintf("%v", node)
	return buf.String()
}

// writeQuotedIdent emits an identifier bare when it needs no quoting, and
// double-quoted otherwise. Both T-SQL and snowflake accept ANSI double
// quotes; snowflake additionally treats quoted identifiers as
// case-sensitive, so plain names stay unquoted.
func writeQuotedIdent(buf *sqlparser.TrackedBuffer, name string) {
	if name == "" {
		return
	}
	if isBareIdent(name) {
		buf.WriteString(name)
		return
	}
	buf.WriteString(`"`)
	buf.WriteString(strings.ReplaceAll(name, `"`, `""`))
	buf.WriteString(`"`)
}

func isBareIdent(name string) bool {
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9', r == '$':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// writeRowWindow emits the dialect's row window. T-SQL takes
// OFFSET n ROWS FETCH NEXT m ROWS ONLY; snowflake keeps LIMIT but wants
// the offset in a trailing OFFSET clause.
func writeRowWindow(buf *sqlparser.TrackedBuffer, limit *sqlparser.Limit, dialect Dialect) {
	if limit == nil {
		return
	}
	if dialect == DialectMSSQL {
		buf.WriteString(" offset ")
		if limit.Offset != nil {
			buf.Myprintf("%v", limit.Offset)
		} else {
			buf.WriteString("0")
		}
		buf.WriteString(" rows")
		if limit.Rowcount != nil {
			buf.Myprintf(" fetch next %v rows only", limit.Rowcount)
		}
		return
	}
	if limit.Rowcount != nil {
		buf.Myprintf(" limit %v", limit.Rowcount)
	}
	if limit.Offset != nil {
		buf.Myprintf(" offset %v", limit.Offset)
	}
}

// ensureOrderedWindows attaches a neutral ORDER BY (SELECT NULL) to every
// SELECT that carries a row window but no ordering. T-SQL only accepts
// OFFSET/FETCH after an ORDER BY clause.
func ensureOrderedWindows(ast sqlparser.Statement) error {
	var bare []*sqlparser.Select
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if sel, ok := node.(*sqlparser.Select); ok && sel.Limit != nil && len(sel.OrderBy) == 0 {
			bare = append(bare, sel)
		}
		return true, nil
	}, ast)

	for _, sel := range bare {
		order, err := neutralOrderBy()
		if err != nil {
			return err
		}
		sel.OrderBy = order
	}
	return nil
}

// neutralOrderBy builds ORDER BY (SELECT NULL) through a carrier query, the
// same trick addWhere uses for WHERE fragments.
func neutralOrderBy() (sqlparser.OrderBy, error) {
	parser, err := genericParser()
	if err != nil {
		return nil, err
	}
	carrier, err := parser.Parse("SELECT 1 FROM dual ORDER BY (SELECT NULL)")
	if err != nil {
		return nil, err
	}
	sel, ok := carrier.(*sqlparser.Select)
	if !ok || len(sel.OrderBy) == 0 {
		return nil, fmt.Errorf("building neutral ordering")
	}
	return sel.OrderBy, nil
}
