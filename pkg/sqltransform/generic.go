package sqltransform

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"vitess.io/vitess/go/vt/sqlparser"
)

// genericStatement backs every non-PostgreSQL dialect with the vitess
// sqlparser AST. Vitess speaks MySQL grammar; mssql and snowflake statements
// are parsed on the shared grammar subset, which covers the gateway's own
// catalog SQL and ordinary caller queries, and rendered back out in their
// own grammar (see render.go).
type genericStatement struct {
	ast     sqlparser.Statement
	dialect Dialect
}

var genericParser = sync.OnceValues(func() (*sqlparser.Parser, error) {
	return sqlparser.New(sqlparser.Options{})
})

func parseGeneric(query string, dialect Dialect) (statement, error) {
	parser, err := genericParser()
	if err != nil {
		return nil, fmt.Errorf("initializing parser: %w", err)
	}
	ast, err := parser.Parse(query)
	if err != nil {
		return nil, err
	}
	return &genericStatement{ast: ast, dialect: dialect}, nil
}

func (s *genericStatement) isReadOnly() bool {
	readOnly := true
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch node.(type) {
		case *sqlparser.Insert, *sqlparser.Update, *sqlparser.Delete,
			*sqlparser.TruncateTable:
			readOnly = false
			return false, nil
		case sqlparser.DDLStatement, sqlparser.DBDDLStatement:
			readOnly = false
			return false, nil
		}
		return true, nil
	}, s.ast)
	return readOnly
}

func (s *genericStatement) isSelect() bool {
	_, ok := s.ast.(*sqlparser.Select)
	return ok
}

func (s *genericStatement) applyPagination(limit, offset int) {
	sel, ok := s.ast.(*sqlparser.Select)
	if !ok {
		return
	}

	hadOffset := sel.Limit != nil && sel.Limit.Offset != nil

	if sel.Limit == nil {
		sel.Limit = &sqlparser.Limit{}
	}
	if existing, ok := limitValue(sel.Limit); !ok || limit < existing {
		sel.Limit.Rowcount = sqlparser.NewIntLiteral(strconv.Itoa(limit))
	}
	if hadOffset || offset > 0 {
		sel.Limit.Offset = sqlparser.NewIntLiteral(strconv.Itoa(offset))
	}
}

// limitValue reads the existing top-level LIMIT row count. Non-literal row
// counts (placeholders, expressions) report not-ok and get replaced by the
// requested limit, the tighter interpretation.
func limitValue(limit *sqlparser.Limit) (int, bool) {
	if limit == nil || limit.Rowcount == nil {
		return 0, false
	}
	lit, ok := limit.Rowcount.(*sqlparser.Literal)
	if !ok {
		return 0, false
	}
	val, err := strconv.Atoi(lit.Val)
	if err != nil {
		return 0, false
	}
	return val, true
}

func (s *genericStatement) countQuery() (string, error) {
	parser, err := genericParser()
	if err != nil {
		return "", err
	}

	// Re-parse the current rendering so the statement itself stays
	// untouched while the copy gets its window stripped.
	copyAST, err := parser.Parse(sqlparser.String(s.ast))
	if err != nil {
		return "", fmt.Errorf("reparsing statement: %w", err)
	}
	sel, ok := copyAST.(*sqlparser.Select)
	if !ok {
		return "SELECT 0 AS count_total", nil
	}
	sel.Limit = nil
	if s.dialect == DialectMSSQL {
		// T-SQL rejects a bare ORDER BY inside a derived table, and the
		// ordering cannot change the count.
		sel.OrderBy = nil
	}

	wrapped := fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS count_subquery", sqlparser.String(sel))
	countAST, err := parser.Parse(wrapped)
	if err != nil {
		return "", fmt.Errorf("building count query: %w", err)
	}
	return renderGeneric(countAST, s.dialect), nil
}

func (s *genericStatement) addWhere(cond string) error {
	parser, err := genericParser()
	if err != nil {
		return err
	}

	carrier, err := parser.Parse("SELECT 1 FROM dual WHERE " + cond)
	if err != nil {
		return err
	}
	carrierSel, ok := carrier.(*sqlparser.Select)
	if !ok || carrierSel.Where == nil {
		return fmt.Errorf("condition %q did not parse as a WHERE fragment", cond)
	}

	sel, ok := s.ast.(*sqlparser.Select)
	if !ok {
		return nil
	}
	sel.AddWhere(carrierSel.Where.Expr)
	return nil
}

func (s *genericStatement) tableNames() []string {
	ctes := map[string]struct{}{}
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if cte, ok := node.(*sqlparser.CommonTableExpr); ok {
			ctes[strings.ToLower(cte.ID.String())] = struct{}{}
		}
		return true, nil
	}, s.ast)

	seen := map[string]struct{}{}
	var names []string
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		tab, ok := node.(sqlparser.TableName)
		if !ok {
			return true, nil
		}
		name := tab.Name.String()
		folded := strings.ToLower(name)
		if folded == "" || folded == "dual" {
			return true, nil
		}
		if _, isCTE := ctes[folded]; isCTE {
			return true, nil
		}
		if _, dup := seen[folded]; dup {
			return true, nil
		}
		seen[folded] = struct{}{}
		names = append(names, name)
		return true, nil
	}, s.ast)
	return names
}

func (s *genericStatement) render() (string, error) {
	if s.dialect == DialectMSSQL {
		if err := ensureOrderedWindows(s.ast); err != nil {
			return "", err
		}
	}
	return renderGeneric(s.ast, s.dialect), nil
}
