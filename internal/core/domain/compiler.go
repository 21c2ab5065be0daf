package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// TimeBuckets are the group-by keywords that truncate the mapped date column.
var TimeBuckets = []string{"year", "quarter", "month"}

func isTimeBucket(name string) bool {
	for _, b := range TimeBuckets {
		if b == name {
			return true
		}
	}
	return false
}

// CompiledQuery is a parameterized single-table SELECT. Clauses hold named
// placeholders of the form @name; every value lives in Params.
type CompiledQuery struct {
	Table          string          `json:"table"`
	SelectClauses  []string        `json:"selectClauses"`
	WhereClauses   []string        `json:"whereClauses"`
	GroupByClauses []string        `json:"groupByClauses"`
	OrderByClauses []string        `json:"orderByClauses"`
	Limit          *int            `json:"limit,omitempty"`
	Params         map[string]any  `json:"boundParameters"`
	Columns        []string        `json:"columns"`
	RoleParams     map[string]Role `json:"-"`
}

// SQL renders the statement with named placeholders.
func (q *CompiledQuery) SQL() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(q.SelectClauses, ", "))
	b.WriteString(" FROM ")
	b.WriteString(QuoteIdent(q.Table))
	if len(q.WhereClauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.WhereClauses, " AND "))
	}
	if len(q.GroupByClauses) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(q.GroupByClauses, ", "))
	}
	if len(q.OrderByClauses) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(q.OrderByClauses, ", "))
	}
	if q.Limit != nil {
		b.WriteString(" LIMIT @limit")
	}
	return b.String()
}

// Positional renders the statement with $n placeholders, numbered by first
// appearance, and returns the matching argument list.
func (q *CompiledQuery) Positional() (string, []any, error) {
	src := q.SQL()
	var (
		b       strings.Builder
		args    []any
		indexes = make(map[string]int)
		quote   byte
	)
	for i := 0; i < len(src); i++ {
		ch := src[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
			b.WriteByte(ch)
		case ch == '"' || ch == '\'':
			quote = ch
			b.WriteByte(ch)
		case ch == '@':
			j := i + 1
			for j < len(src) && isParamChar(src[j]) {
				j++
			}
			name := src[i+1 : j]
			value, ok := q.Params[name]
			if name == "" || !ok {
				return "", nil, fmt.Errorf("unbound placeholder @%s", name)
			}
			n, seen := indexes[name]
			if !seen {
				args = append(args, value)
				n = len(args)
				indexes[name] = n
			}
			b.WriteString("$" + strconv.Itoa(n))
			i = j - 1
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), args, nil
}

var errNullValue = errors.New("null value")

func isParamChar(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('0' <= c && c <= '9')
}

// resolved is a name from the intent bound to a catalog column.
type resolved struct {
	col    ColumnProfile
	bucket string
	label  string
}

func (r resolved) key() string {
	if r.bucket != "" {
		return r.bucket + ":" + r.col.Name
	}
	return r.col.Name
}

func (r resolved) expr() string {
	ident := QuoteIdent(r.col.Name)
	if r.bucket != "" {
		return fmt.Sprintf("date_trunc('%s', CAST(%s AS date))", r.bucket, ident)
	}
	return ident
}

type outputTarget struct {
	key   string
	fn    AggregateFunc
	alias string
}

type compiler struct {
	profile *SchemaProfile
	q       *CompiledQuery
	aliases map[string]bool
	groups  []outputTarget
	metrics []outputTarget
}

// Compile turns intent into a parameterized statement over profile's table.
// It never renders a caller value into the statement text, and fails without
// a partial result when any reference cannot be resolved.
func Compile(profile *SchemaProfile, intent *QueryIntent) (*CompiledQuery, error) {
	if !profile.Ready() {
		return nil, ErrProfileNotReady
	}
	if intent == nil {
		return nil, fmt.Errorf("%w: missing intent", ErrInvalidIntent)
	}
	if len(intent.Metrics) == 0 && len(intent.GroupBy) == 0 {
		return nil, ErrEmptyProjection
	}

	c := &compiler{
		profile: profile,
		q: &CompiledQuery{
			Table:        profile.TableName,
			WhereClauses: []string{"1 = 1"},
			Params:       make(map[string]any),
			RoleParams:   make(map[string]Role),
		},
		aliases: make(map[string]bool),
	}

	steps := []func(*QueryIntent) error{
		c.compileGroupBy,
		c.compileMetrics,
		c.compileRoleFilters,
		c.compileExtraFilters,
		c.compileOrderBy,
		c.compileLimit,
	}
	for _, step := range steps {
		if err := step(intent); err != nil {
			return nil, err
		}
	}
	return c.q, nil
}

// lookupColumn matches a catalog column exactly, then case-insensitively
// when that is unambiguous.
func (c *compiler) lookupColumn(name string) (ColumnProfile, bool) {
	if col, ok := c.profile.Column(name); ok {
		return col, true
	}
	var found []ColumnProfile
	for _, col := range c.profile.Columns {
		if strings.EqualFold(col.Name, name) {
			found = append(found, col)
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return ColumnProfile{}, false
}

// resolve binds name to a role, then a catalog column, then (for grouping)
// a time bucket over the mapped date column.
func (c *compiler) resolve(name string, allowBucket bool) (resolved, error) {
	name = strings.TrimSpace(name)
	lower := strings.ToLower(name)

	if role, ok := ParseRole(lower); ok {
		col, ok := c.profile.ColumnFor(role)
		if !ok {
			return resolved{}, fmt.Errorf("%w: %q", ErrUnsupportedRole, name)
		}
		return resolved{col: col, label: string(role)}, nil
	}
	if col, ok := c.lookupColumn(name); ok {
		return resolved{col: col, label: col.Name}, nil
	}
	if allowBucket && isTimeBucket(lower) {
		col, ok := c.profile.ColumnFor(RoleDate)
		if !ok {
			return resolved{}, fmt.Errorf("%w: %q needs a date column", ErrUnsupportedRole, name)
		}
		if col.Type != TypeDate {
			return resolved{}, fmt.Errorf("%w: %q needs a date column", ErrInvalidAggregate, name)
		}
		return resolved{col: col, bucket: lower, label: lower}, nil
	}
	return resolved{}, fmt.Errorf("%w: %q", ErrUnsupportedColumn, name)
}

// alias picks the first free name among label, fn_label, then label_2 and up.
func (c *compiler) alias(label string, fn AggregateFunc) string {
	candidates := []string{label}
	if fn != "" {
		candidates = append(candidates, strings.ToLower(string(fn))+"_"+label)
	}
	for _, a := range candidates {
		if !c.aliases[a] {
			c.aliases[a] = true
			return a
		}
	}
	for n := 2; ; n++ {
		a := label + "_" + strconv.Itoa(n)
		if !c.aliases[a] {
			c.aliases[a] = true
			return a
		}
	}
}

func (c *compiler) addSelect(expr, alias string) {
	c.q.SelectClauses = append(c.q.SelectClauses, expr+" AS "+QuoteIdent(alias))
	c.q.Columns = append(c.q.Columns, alias)
}

func (c *compiler) compileGroupBy(in *QueryIntent) error {
	seen := make(map[string]bool)
	for _, name := range in.GroupBy {
		r, err := c.resolve(name, true)
		if err != nil {
			return err
		}
		if seen[r.key()] {
			continue
		}
		seen[r.key()] = true

		alias := c.alias(r.label, "")
		c.addSelect(r.expr(), alias)
		c.q.GroupByClauses = append(c.q.GroupByClauses, r.expr())
		c.groups = append(c.groups, outputTarget{key: r.key(), alias: alias})
	}
	return nil
}

func (c *compiler) compileMetrics(in *QueryIntent) error {
	for _, m := range in.Metrics {
		fn, ok := ParseAggregate(string(m.Function))
		if !ok {
			return fmt.Errorf("%w: unknown function %q", ErrInvalidAggregate, m.Function)
		}

		column := strings.TrimSpace(m.Column)
		if column == CountAll || (column == "" && fn == AggCount) {
			if fn != AggCount {
				return fmt.Errorf("%w: %s needs a column", ErrInvalidAggregate, fn)
			}
			alias := c.alias("count", "")
			c.addSelect("COUNT(*)", alias)
			c.metrics = append(c.metrics, outputTarget{key: CountAll, fn: fn, alias: alias})
			continue
		}

		r, err := c.resolve(column, false)
		if err != nil {
			return err
		}
		expr, err := metricExpr(fn, r.col, column)
		if err != nil {
			return err
		}
		alias := c.alias(r.label, fn)
		c.addSelect(expr, alias)
		c.metrics = append(c.metrics, outputTarget{key: r.key(), fn: fn, alias: alias})
	}
	return nil
}

func metricExpr(fn AggregateFunc, col ColumnProfile, requested string) (string, error) {
	ident := QuoteIdent(col.Name)
	switch fn {
	case AggSum, AggAvg:
		if col.Type != TypeNumeric {
			return "", fmt.Errorf("%w: %s over non-numeric %q", ErrInvalidAggregate, fn, requested)
		}
		return fmt.Sprintf("%s(CAST(%s AS numeric))", fn, ident), nil
	case AggMin, AggMax:
		switch col.Type {
		case TypeNumeric:
			return fmt.Sprintf("%s(CAST(%s AS numeric))", fn, ident), nil
		case TypeDate:
			return fmt.Sprintf("%s(CAST(%s AS date))", fn, ident), nil
		}
		return "", fmt.Errorf("%w: %s over %s column %q", ErrInvalidAggregate, fn, col.Type, requested)
	case AggCount:
		return fmt.Sprintf("COUNT(%s)", ident), nil
	case AggCountDistinct:
		return fmt.Sprintf("COUNT(DISTINCT %s)", ident), nil
	}
	return "", fmt.Errorf("%w: unknown function %q", ErrInvalidAggregate, fn)
}

func (c *compiler) compileRoleFilters(in *QueryIntent) error {
	for _, role := range []Role{RoleRegion, RoleItemType, RoleChannel} {
		values := in.Filters.Set(role)
		if len(values) == 0 {
			continue
		}
		col, ok := c.profile.ColumnFor(role)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnsupportedRole, role)
		}
		items := make([]any, len(values))
		for i, v := range values {
			items[i] = v
		}
		param := string(role) + "_values"
		clause, err := c.setPredicate(col, OpIn, param, items, string(role))
		if err != nil {
			return err
		}
		c.q.WhereClauses = append(c.q.WhereClauses, clause)
		c.q.RoleParams[param] = role
	}

	if dr := in.Filters.Date; dr != nil {
		col, ok := c.profile.ColumnFor(RoleDate)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnsupportedRole, RoleDate)
		}
		if col.Type != TypeDate {
			return fmt.Errorf("%w: date filter needs a date column", ErrInvalidOperatorValue)
		}
		start, err := bindValue(dr.Start, TypeDate)
		if err != nil {
			return fmt.Errorf("%w: date filter start: %v", ErrInvalidOperatorValue, err)
		}
		end, err := bindValue(dr.End, TypeDate)
		if err != nil {
			return fmt.Errorf("%w: date filter end: %v", ErrInvalidOperatorValue, err)
		}
		c.q.Params["date_start"] = start
		c.q.Params["date_end"] = end
		c.q.WhereClauses = append(c.q.WhereClauses, fmt.Sprintf(
			"CAST(%s AS date) BETWEEN CAST(@date_start AS date) AND CAST(@date_end AS date)",
			QuoteIdent(col.Name)))
	}
	return nil
}

func (c *compiler) compileExtraFilters(in *QueryIntent) error {
	for i, ef := range in.ExtraFilters {
		col, ok := c.lookupColumn(strings.TrimSpace(ef.Column))
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnsupportedColumn, ef.Column)
		}
		op, ok := ParseOperator(string(ef.Operator))
		if !ok {
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidOperatorValue, ef.Operator)
		}
		param := "extra_" + strconv.Itoa(i+1)
		clause, err := c.extraPredicate(col, op, param, ef)
		if err != nil {
			return err
		}
		c.q.WhereClauses = append(c.q.WhereClauses, clause)
	}
	return nil
}

func (c *compiler) extraPredicate(col ColumnProfile, op Operator, param string, ef ExtraFilter) (string, error) {
	lhs, cast := operand(col)
	switch op.Family() {
	case FamilyNullary:
		if ef.Value != nil {
			return "", fmt.Errorf("%w: %s on %q takes no value", ErrInvalidOperatorValue, op, ef.Column)
		}
		return fmt.Sprintf("%s %s", QuoteIdent(col.Name), op), nil

	case FamilySet:
		items, ok := asList(ef.Value)
		if !ok || len(items) == 0 {
			return "", fmt.Errorf("%w: %s on %q needs a non-empty list", ErrInvalidOperatorValue, op, ef.Column)
		}
		return c.setPredicate(col, op, param, items, ef.Column)

	case FamilyRange:
		items, ok := asList(ef.Value)
		if !ok || len(items) != 2 {
			return "", fmt.Errorf("%w: %s on %q needs exactly 2 values", ErrInvalidOperatorValue, op, ef.Column)
		}
		low, err := bindValue(items[0], col.Type)
		if err != nil {
			return "", fmt.Errorf("%w: %s on %q: %v", ErrInvalidOperatorValue, op, ef.Column, err)
		}
		high, err := bindValue(items[1], col.Type)
		if err != nil {
			return "", fmt.Errorf("%w: %s on %q: %v", ErrInvalidOperatorValue, op, ef.Column, err)
		}
		c.q.Params[param+"_low"] = low
		c.q.Params[param+"_high"] = high
		return fmt.Sprintf("%s %s %s AND %s", lhs, op,
			placeholder(param+"_low", cast), placeholder(param+"_high", cast)), nil

	default:
		if ef.Value == nil {
			return "", fmt.Errorf("%w: %s on %q needs a value", ErrInvalidOperatorValue, op, ef.Column)
		}
		if _, isList := asList(ef.Value); isList {
			return "", fmt.Errorf("%w: %s on %q needs a single value", ErrInvalidOperatorValue, op, ef.Column)
		}
		if (op == OpLike || op == OpNotLike || op == OpILike) && cast != "" {
			return "", fmt.Errorf("%w: %s on %s column %q", ErrInvalidOperatorValue, op, col.Type, ef.Column)
		}
		v, err := bindValue(ef.Value, col.Type)
		if err != nil {
			return "", fmt.Errorf("%w: %s on %q: %v", ErrInvalidOperatorValue, op, ef.Column, err)
		}
		c.q.Params[param] = v
		return fmt.Sprintf("%s %s %s", lhs, op, placeholder(param, cast)), nil
	}
}

// setPredicate binds items as one array parameter.
func (c *compiler) setPredicate(col ColumnProfile, op Operator, param string, items []any, requested string) (string, error) {
	lhs, cast := operand(col)
	values := make([]string, len(items))
	for i, item := range items {
		v, err := bindValue(item, col.Type)
		if err != nil {
			return "", fmt.Errorf("%w: %s on %q: %v", ErrInvalidOperatorValue, op, requested, err)
		}
		values[i] = v
	}
	c.q.Params[param] = values

	// Typed arrays are bound as text[] and converted by the server.
	rhs := "@" + param
	if cast != "" {
		rhs = fmt.Sprintf("CAST(CAST(@%s AS text[]) AS %s[])", param, cast)
	}
	if op == OpNotIn {
		return fmt.Sprintf("%s <> ALL(%s)", lhs, rhs), nil
	}
	return fmt.Sprintf("%s = ANY(%s)", lhs, rhs), nil
}

// operand renders col for comparison and names the cast applied to both sides.
func operand(col ColumnProfile) (expr, cast string) {
	ident := QuoteIdent(col.Name)
	switch col.Type {
	case TypeNumeric:
		return fmt.Sprintf("CAST(%s AS numeric)", ident), "numeric"
	case TypeDate:
		return fmt.Sprintf("CAST(%s AS date)", ident), "date"
	}
	return ident, ""
}

func placeholder(param, cast string) string {
	if cast == "" {
		return "@" + param
	}
	return fmt.Sprintf("CAST(@%s AS %s)", param, cast)
}

// asList reports whether v is a list value and returns its elements.
func asList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, true
	case []int64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out, true
	}
	return nil, false
}

// bindValue converts a scalar to the text form bound for a column of type t.
// Numeric and date values are normalized so the store never sees currency
// symbols or non-ISO dates.
func bindValue(v any, t ColumnType) (string, error) {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(x)
	case nil:
		return "", errNullValue
	default:
		return "", fmt.Errorf("unsupported value of type %T", v)
	}

	switch t {
	case TypeNumeric:
		d, ok := ParseNumeric(s)
		if !ok {
			return "", fmt.Errorf("%q is not a number", s)
		}
		return d.String(), nil
	case TypeDate:
		d, ok := ParseDate(s)
		if !ok {
			return "", fmt.Errorf("%q is not a date", s)
		}
		return d.Format(ISODate), nil
	}
	return s, nil
}

func (c *compiler) compileOrderBy(in *QueryIntent) error {
	for _, term := range in.OrderBy {
		dir := Direction(strings.ToUpper(strings.TrimSpace(string(term.Direction))))
		switch dir {
		case "":
			dir = Asc
		case Asc, Desc:
		default:
			return fmt.Errorf("%w: order direction %q", ErrInvalidOperatorValue, term.Direction)
		}

		alias, err := c.orderTarget(term)
		if err != nil {
			return err
		}
		c.q.OrderByClauses = append(c.q.OrderByClauses, QuoteIdent(alias)+" "+string(dir))
	}
	return nil
}

// orderTarget finds the output alias an ORDER BY term refers to. Terms that
// name nothing in the SELECT list are rejected.
func (c *compiler) orderTarget(term OrderTerm) (string, error) {
	column := strings.TrimSpace(term.Column)

	if term.Function == "" {
		if c.aliases[column] {
			return column, nil
		}
		r, err := c.resolve(column, true)
		if err != nil {
			return "", err
		}
		for _, g := range c.groups {
			if g.key == r.key() {
				return g.alias, nil
			}
		}
		return "", fmt.Errorf("%w: order by %q which is not selected or grouped", ErrInvalidOperatorValue, column)
	}

	fn, ok := ParseAggregate(string(term.Function))
	if !ok {
		return "", fmt.Errorf("%w: unknown function %q", ErrInvalidAggregate, term.Function)
	}
	key := CountAll
	if column != CountAll && !(column == "" && fn == AggCount) {
		r, err := c.resolve(column, false)
		if err != nil {
			return "", err
		}
		key = r.key()
	}
	for _, m := range c.metrics {
		if m.fn == fn && m.key == key {
			return m.alias, nil
		}
	}
	return "", fmt.Errorf("%w: order by %s(%s) which is not selected", ErrInvalidOperatorValue, fn, column)
}

func (c *compiler) compileLimit(in *QueryIntent) error {
	if in.Limit == nil {
		return nil
	}
	if *in.Limit <= 0 {
		return fmt.Errorf("%w: limit must be a positive integer", ErrInvalidIntent)
	}
	limit := *in.Limit
	c.q.Limit = &limit
	c.q.Params["limit"] = int64(limit)
	return nil
}
