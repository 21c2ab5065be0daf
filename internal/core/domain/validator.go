package domain

import (
	"errors"
	"fmt"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/reflect/protoreflect"
)

var (
	errRejectedShape    = errors.New("statement is not a single read-only projection")
	errRejectedRelation = errors.New("statement must read exactly the dataset table")
	errRejectedColumn   = errors.New("column is not in the catalog")
	errRejectedFunction = errors.New("function is not allowed")
	errRejectedCast     = errors.New("cast does not match column type")
	errRejectedNode     = errors.New("expression is not allowed")
	errRejectedParams   = errors.New("placeholders do not match bound parameters")
	errRejectedValue    = errors.New("parameter value rejected")
)

var allowedFunctions = map[string]bool{
	"sum":        true,
	"avg":        true,
	"min":        true,
	"max":        true,
	"count":      true,
	"date_trunc": true,
}

var allowedOperators = map[string]bool{
	"=": true, "<>": true, ">": true, ">=": true, "<": true, "<=": true,
	"~~": true, "!~~": true, "~~*": true,
}

var allowedCasts = map[string]ColumnType{
	"numeric": TypeNumeric,
	"date":    TypeDate,
}

// AllowListValidator re-parses a compiled statement with PostgreSQL's own
// parser and accepts it only if it is a single SELECT over the profile's
// table that touches catalog columns, allow-listed functions, and casts that
// match column types. It shares no code path with the compiler.
type AllowListValidator struct{}

func NewAllowListValidator() *AllowListValidator {
	return &AllowListValidator{}
}

// Validate returns nil or an error wrapping ErrValidationRejected. Errors
// never include statement text.
func (v *AllowListValidator) Validate(q *CompiledQuery, profile *SchemaProfile) error {
	if !profile.Ready() {
		return ErrProfileNotReady
	}
	if q == nil || q.Table != profile.TableName {
		return reject(errRejectedRelation)
	}

	sql, args, err := q.Positional()
	if err != nil {
		return reject(errRejectedParams)
	}
	sel, err := parseSingleSelect(sql)
	if err != nil {
		return reject(err)
	}

	w := &allowListWalker{
		profile: profile,
		aliases: outputAliases(sel),
		params:  make(map[int32]bool),
	}
	if err := w.checkSelect(sel); err != nil {
		return reject(err)
	}
	if w.relations != 1 {
		return reject(errRejectedRelation)
	}
	if len(w.params) != len(args) || len(args) != len(q.Params) {
		return reject(errRejectedParams)
	}
	for i := range args {
		if !w.params[int32(i+1)] {
			return reject(errRejectedParams)
		}
	}

	if err := checkRoleValues(q, profile); err != nil {
		return reject(err)
	}
	if err := screenParams(q.Params); err != nil {
		return reject(err)
	}
	return nil
}

func reject(err error) error {
	return fmt.Errorf("%w: %w", ErrValidationRejected, err)
}

func parseSingleSelect(sql string) (*pg_query.SelectStmt, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, errRejectedShape
	}
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return nil, errRejectedShape
	}
	if len(tree.Stmts) != 1 || tree.Stmts[0].Stmt == nil {
		return nil, errRejectedShape
	}
	node, ok := tree.Stmts[0].Stmt.Node.(*pg_query.Node_SelectStmt)
	if !ok || node.SelectStmt == nil {
		return nil, errRejectedShape
	}
	sel := node.SelectStmt
	if sel.WithClause != nil || sel.IntoClause != nil || sel.Larg != nil || sel.Rarg != nil ||
		len(sel.LockingClause) > 0 || len(sel.ValuesLists) > 0 || len(sel.DistinctClause) > 0 ||
		len(sel.WindowClause) > 0 || sel.HavingClause != nil || sel.LimitOffset != nil {
		return nil, errRejectedShape
	}
	return sel, nil
}

type allowListWalker struct {
	profile   *SchemaProfile
	aliases   map[string]bool
	params    map[int32]bool
	relations int
	inOrderBy bool
}

func (w *allowListWalker) checkSelect(sel *pg_query.SelectStmt) error {
	if len(sel.FromClause) != 1 {
		return errRejectedRelation
	}
	parts := [][]*pg_query.Node{sel.FromClause, sel.TargetList, {sel.WhereClause}, sel.GroupClause, {sel.LimitCount}}
	for _, part := range parts {
		if err := w.walkNodes(part); err != nil {
			return err
		}
	}
	w.inOrderBy = true
	return w.walkNodes(sel.SortClause)
}

func (w *allowListWalker) walkNodes(nodes []*pg_query.Node) error {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if err := walkMessage(n.ProtoReflect(), w.visit); err != nil {
			return err
		}
	}
	return nil
}

// walkMessage visits m and, when visit asks for it, every message reachable
// through m's populated fields.
func walkMessage(m protoreflect.Message, visit func(protoreflect.Message) (bool, error)) error {
	descend, err := visit(m)
	if err != nil || !descend {
		return err
	}
	var walkErr error
	m.Range(func(fd protoreflect.FieldDescriptor, val protoreflect.Value) bool {
		if fd.Kind() != protoreflect.MessageKind {
			return true
		}
		if fd.IsList() {
			list := val.List()
			for i := 0; i < list.Len(); i++ {
				if walkErr = walkMessage(list.Get(i).Message(), visit); walkErr != nil {
					return false
				}
			}
			return true
		}
		walkErr = walkMessage(val.Message(), visit)
		return walkErr == nil
	})
	return walkErr
}

// visit applies the allow-list to one node. Unknown node types are rejected.
func (w *allowListWalker) visit(m protoreflect.Message) (bool, error) {
	switch n := m.Interface().(type) {
	case *pg_query.Node, *pg_query.List, *pg_query.ResTarget, *pg_query.SortBy,
		*pg_query.BoolExpr, *pg_query.NullTest:
		return true, nil

	case *pg_query.RangeVar:
		w.relations++
		if n.Relname != w.profile.TableName || n.Schemaname != "" || n.Catalogname != "" {
			return false, errRejectedRelation
		}
		return false, nil

	case *pg_query.ColumnRef:
		name, ok := columnRefName(n)
		if !ok {
			return false, errRejectedColumn
		}
		if _, ok := w.profile.Column(name); ok {
			return false, nil
		}
		if w.inOrderBy && w.aliases[name] {
			return false, nil
		}
		return false, errRejectedColumn

	case *pg_query.A_Expr:
		if err := w.checkExpr(n); err != nil {
			return false, err
		}
		return false, w.walkNodes([]*pg_query.Node{n.Lexpr, n.Rexpr})

	case *pg_query.FuncCall:
		return w.checkFunc(n)

	case *pg_query.TypeCast:
		return false, w.checkCast(n)

	case *pg_query.A_Const:
		if n.Isnull || n.GetIval() == nil {
			return false, errRejectedNode
		}
		return false, nil

	case *pg_query.ParamRef:
		w.params[n.Number] = true
		return false, nil

	default:
		return false, errRejectedNode
	}
}

func (w *allowListWalker) checkExpr(e *pg_query.A_Expr) error {
	switch e.Kind {
	case pg_query.A_Expr_Kind_AEXPR_OP, pg_query.A_Expr_Kind_AEXPR_OP_ANY, pg_query.A_Expr_Kind_AEXPR_OP_ALL,
		pg_query.A_Expr_Kind_AEXPR_LIKE, pg_query.A_Expr_Kind_AEXPR_ILIKE,
		pg_query.A_Expr_Kind_AEXPR_BETWEEN, pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN:
	default:
		return errRejectedNode
	}
	if e.Kind == pg_query.A_Expr_Kind_AEXPR_BETWEEN || e.Kind == pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN {
		return nil
	}
	for _, n := range e.Name {
		if s, ok := n.Node.(*pg_query.Node_String_); !ok || !allowedOperators[s.String_.Sval] {
			return errRejectedNode
		}
	}
	return nil
}

func (w *allowListWalker) checkFunc(f *pg_query.FuncCall) (bool, error) {
	name := lastName(f.Funcname)
	if !allowedFunctions[name] || f.Over != nil || f.AggFilter != nil || len(f.AggOrder) > 0 ||
		f.AggWithinGroup || f.FuncVariadic {
		return false, errRejectedFunction
	}
	if f.AggStar && name != "count" {
		return false, errRejectedFunction
	}
	if f.AggDistinct && name != "count" {
		return false, errRejectedFunction
	}
	if name != "date_trunc" {
		if !f.AggStar && len(f.Args) != 1 {
			return false, errRejectedFunction
		}
		return false, w.walkNodes(f.Args)
	}

	if len(f.Args) != 2 {
		return false, errRejectedFunction
	}
	unit, ok := f.Args[0].Node.(*pg_query.Node_AConst)
	if !ok || unit.AConst.GetSval() == nil || !isTimeBucket(unit.AConst.GetSval().Sval) {
		return false, errRejectedFunction
	}
	return false, w.walkNodes(f.Args[1:])
}

// checkCast accepts numeric and date casts of a placeholder, or of a catalog
// column whose inferred type is the cast target. Array casts apply to
// placeholders only, directly or through a text[] cast.
func (w *allowListWalker) checkCast(tc *pg_query.TypeCast) error {
	if tc.TypeName == nil || tc.Arg == nil {
		return errRejectedCast
	}
	target, ok := allowedCasts[lastName(tc.TypeName.Names)]
	if !ok {
		return errRejectedCast
	}
	isArray := len(tc.TypeName.ArrayBounds) > 0

	switch arg := tc.Arg.Node.(type) {
	case *pg_query.Node_ParamRef:
		w.params[arg.ParamRef.Number] = true
		return nil
	case *pg_query.Node_TypeCast:
		// CAST(CAST($n AS text[]) AS numeric[]|date[]) only.
		if !isArray {
			return errRejectedCast
		}
		return w.checkTextArrayParam(arg.TypeCast)
	case *pg_query.Node_ColumnRef:
		if isArray {
			return errRejectedCast
		}
		name, ok := columnRefName(arg.ColumnRef)
		if !ok {
			return errRejectedColumn
		}
		col, ok := w.profile.Column(name)
		if !ok {
			return errRejectedColumn
		}
		if col.Type != target {
			return errRejectedCast
		}
		return nil
	}
	return errRejectedCast
}

// checkTextArrayParam accepts only a placeholder cast to text[].
func (w *allowListWalker) checkTextArrayParam(tc *pg_query.TypeCast) error {
	if tc.TypeName == nil || tc.Arg == nil || len(tc.TypeName.ArrayBounds) == 0 ||
		lastName(tc.TypeName.Names) != "text" {
		return errRejectedCast
	}
	param, ok := tc.Arg.Node.(*pg_query.Node_ParamRef)
	if !ok {
		return errRejectedCast
	}
	w.params[param.ParamRef.Number] = true
	return nil
}

func columnRefName(cr *pg_query.ColumnRef) (string, bool) {
	if cr == nil || len(cr.Fields) != 1 {
		return "", false
	}
	s, ok := cr.Fields[0].Node.(*pg_query.Node_String_)
	if !ok || s.String_ == nil {
		return "", false
	}
	return s.String_.Sval, true
}

func lastName(nodes []*pg_query.Node) string {
	if len(nodes) == 0 {
		return ""
	}
	s, ok := nodes[len(nodes)-1].Node.(*pg_query.Node_String_)
	if !ok || s.String_ == nil {
		return ""
	}
	return strings.ToLower(s.String_.Sval)
}

// checkRoleValues rejects role-filter values never observed in the column,
// when the observed set is complete. Both sides are compared in the column's
// normalized form, so "100.50" observed matches "100.5" bound.
func checkRoleValues(q *CompiledQuery, profile *SchemaProfile) error {
	for param, role := range q.RoleParams {
		if !profile.DistinctComplete(role) {
			continue
		}
		col, ok := profile.ColumnFor(role)
		if !ok {
			return fmt.Errorf("%w: %s filter without a mapped column", errRejectedValue, role)
		}
		known := make(map[string]bool, len(profile.DistinctValues[role]))
		for _, v := range profile.DistinctValues[role] {
			if norm, err := bindValue(v, col.Type); err == nil {
				known[norm] = true
			}
		}
		values, _ := q.Params[param].([]string)
		for _, v := range values {
			norm, err := bindValue(v, col.Type)
			if err != nil || !known[norm] {
				return fmt.Errorf("%w: %s filter value not present in dataset", errRejectedValue, role)
			}
		}
	}
	return nil
}

// screenParams runs libinjection over every free-text string parameter.
// Values that read as numbers or dates are skipped.
func screenParams(params map[string]any) error {
	check := func(name, s string) error {
		if _, ok := ParseNumeric(s); ok {
			return nil
		}
		if _, ok := ParseDate(s); ok {
			return nil
		}
		if isSQLi, _ := libinjection.IsSQLi(s); isSQLi {
			return fmt.Errorf("%w: %s", errRejectedValue, name)
		}
		return nil
	}
	for name, p := range params {
		switch v := p.(type) {
		case string:
			if err := check(name, v); err != nil {
				return err
			}
		case []string:
			for _, s := range v {
				if err := check(name, s); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
