package sqltransform

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// postgresStatement backs the postgresql dialect with the pg_query AST, the
// same parse tree PostgreSQL itself builds. The tree is a protobuf message,
// so structural searches run over protoreflect instead of node-type switches
// per statement kind.
type postgresStatement struct {
	res *pg_query.ParseResult
}

func parsePostgres(query string) (statement, error) {
	res, err := pg_query.Parse(query)
	if err != nil {
		return nil, err
	}
	if len(res.Stmts) == 0 {
		return nil, fmt.Errorf("empty statement")
	}
	// One statement per request; trailing statements in a batch are not
	// executed and are dropped here so they cannot smuggle writes.
	res.Stmts = res.Stmts[:1]
	return &postgresStatement{res: res}, nil
}

func (s *postgresStatement) isReadOnly() bool {
	readOnly := true
	walkProto(s.res.ProtoReflect(), func(m protoreflect.Message) bool {
		switch m.Interface().(type) {
		case *pg_query.InsertStmt, *pg_query.UpdateStmt, *pg_query.DeleteStmt,
			*pg_query.CreateStmt, *pg_query.CreateTableAsStmt,
			*pg_query.DropStmt, *pg_query.AlterTableStmt,
			*pg_query.TruncateStmt:
			readOnly = false
			return false
		}
		return true
	})
	return readOnly
}

func (s *postgresStatement) topSelect() *pg_query.SelectStmt {
	return s.res.Stmts[0].Stmt.GetSelectStmt()
}

func (s *postgresStatement) isSelect() bool {
	return s.topSelect() != nil
}

func (s *postgresStatement) applyPagination(limit, offset int) {
	sel := s.topSelect()
	if sel == nil {
		return
	}

	hadOffset := sel.LimitOffset != nil

	if existing, ok := pgLimitValue(sel.LimitCount); !ok || limit < existing {
		sel.LimitCount = pgIntConst(limit)
		sel.LimitOption = pg_query.LimitOption_LIMIT_OPTION_COUNT
	}
	if hadOffset || offset > 0 {
		sel.LimitOffset = pgIntConst(offset)
		sel.LimitOption = pg_query.LimitOption_LIMIT_OPTION_COUNT
	}
}

func pgLimitValue(node *pg_query.Node) (int, bool) {
	if node == nil {
		return 0, false
	}
	ival := node.GetAConst().GetIval()
	if ival == nil {
		return 0, false
	}
	return int(ival.Ival), true
}

func pgIntConst(v int) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_AConst{AConst: &pg_query.A_Const{
		Val:      &pg_query.A_Const_Ival{Ival: &pg_query.Integer{Ival: int32(v)}},
		Location: -1,
	}}}
}

func (s *postgresStatement) countQuery() (string, error) {
	cloned, ok := proto.Clone(s.res).(*pg_query.ParseResult)
	if !ok || cloned.Stmts[0].Stmt.GetSelectStmt() == nil {
		return "SELECT 0 AS count_total", nil
	}

	inner := cloned.Stmts[0].Stmt.GetSelectStmt()
	inner.LimitCount = nil
	inner.LimitOffset = nil
	inner.LimitOption = pg_query.LimitOption_LIMIT_OPTION_DEFAULT

	countStar := &pg_query.Node{Node: &pg_query.Node_FuncCall{FuncCall: &pg_query.FuncCall{
		Funcname: []*pg_query.Node{{Node: &pg_query.Node_String_{String_: &pg_query.String{Sval: "count"}}}},
		AggStar:  true,
		Location: -1,
	}}}

	outer := &pg_query.SelectStmt{
		TargetList: []*pg_query.Node{{Node: &pg_query.Node_ResTarget{ResTarget: &pg_query.ResTarget{
			Val:      countStar,
			Location: -1,
		}}}},
		FromClause: []*pg_query.Node{{Node: &pg_query.Node_RangeSubselect{RangeSubselect: &pg_query.RangeSubselect{
			Subquery: cloned.Stmts[0].Stmt,
			Alias:    &pg_query.Alias{Aliasname: "count_subquery"},
		}}}},
		LimitOption: pg_query.LimitOption_LIMIT_OPTION_DEFAULT,
		Op:          pg_query.SetOperation_SETOP_NONE,
	}

	countRes := &pg_query.ParseResult{
		Version: s.res.Version,
		Stmts: []*pg_query.RawStmt{{
			Stmt: &pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: outer}},
		}},
	}
	return pg_query.Deparse(countRes)
}

func (s *postgresStatement) addWhere(cond string) error {
	carrier, err := pg_query.Parse("SELECT 1 WHERE " + cond)
	if err != nil {
		return err
	}
	carrierSel := carrier.Stmts[0].Stmt.GetSelectStmt()
	if carrierSel == nil || carrierSel.WhereClause == nil {
		return fmt.Errorf("condition %q did not parse as a WHERE fragment", cond)
	}

	sel := s.topSelect()
	if sel == nil {
		return nil
	}
	if sel.WhereClause == nil {
		sel.WhereClause = carrierSel.WhereClause
		return nil
	}
	sel.WhereClause = &pg_query.Node{Node: &pg_query.Node_BoolExpr{BoolExpr: &pg_query.BoolExpr{
		Boolop:   pg_query.BoolExprType_AND_EXPR,
		Args:     []*pg_query.Node{sel.WhereClause, carrierSel.WhereClause},
		Location: -1,
	}}}
	return nil
}

func (s *postgresStatement) tableNames() []string {
	ctes := map[string]struct{}{}
	walkProto(s.res.ProtoReflect(), func(m protoreflect.Message) bool {
		if cte, ok := m.Interface().(*pg_query.CommonTableExpr); ok {
			ctes[strings.ToLower(cte.Ctename)] = struct{}{}
		}
		return true
	})

	seen := map[string]struct{}{}
	var names []string
	walkProto(s.res.ProtoReflect(), func(m protoreflect.Message) bool {
		rv, ok := m.Interface().(*pg_query.RangeVar)
		if !ok || rv.Relname == "" {
			return true
		}
		name := rv.Relname
		folded := strings.ToLower(name)
		if _, isCTE := ctes[folded]; isCTE {
			return true
		}
		if _, dup := seen[folded]; dup {
			return true
		}
		seen[folded] = struct{}{}
		names = append(names, name)
		return true
	})
	return names
}

func (s *postgresStatement) render() (string, error) {
	return pg_query.Deparse(s.res)
}

// walkProto visits every message reachable from m, depth first. The visitor
// returns false to stop the walk.
func walkProto(m protoreflect.Message, visit func(protoreflect.Message) bool) bool {
	if !visit(m) {
		return false
	}
	cont := true
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		switch {
		case fd.IsMap():
			if fd.MapValue().Kind() != protoreflect.MessageKind {
				return true
			}
			v.Map().Range(func(_ protoreflect.MapKey, mv protoreflect.Value) bool {
				cont = walkProto(mv.Message(), visit)
				return cont
			})
		case fd.IsList():
			if fd.Kind() != protoreflect.MessageKind {
				return true
			}
			list := v.List()
			for i := 0; i < list.Len(); i++ {
				if cont = walkProto(list.Get(i).Message(), visit); !cont {
					break
				}
			}
		case fd.Kind() == protoreflect.MessageKind:
			cont = walkProto(v.Message(), visit)
		}
		return cont
	})
	return cont
}
