package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Operator is an SQL comparison operator accepted in extra filters.
type Operator string

const (
	OpEq         Operator = "="
	OpNe         Operator = "!="
	OpNeAlt      Operator = "<>"
	OpGt         Operator = ">"
	OpGte        Operator = ">="
	OpLt         Operator = "<"
	OpLte        Operator = "<="
	OpLike       Operator = "LIKE"
	OpNotLike    Operator = "NOT LIKE"
	OpILike      Operator = "ILIKE"
	OpIn         Operator = "IN"
	OpNotIn      Operator = "NOT IN"
	OpBetween    Operator = "BETWEEN"
	OpNotBetween Operator = "NOT BETWEEN"
	OpIsNull     Operator = "IS NULL"
	OpIsNotNull  Operator = "IS NOT NULL"
)

// OperatorFamily groups operators by the value shape they take.
type OperatorFamily int

const (
	FamilyScalar OperatorFamily = iota
	FamilyNullary
	FamilySet
	FamilyRange
)

var operatorFamilies = map[Operator]OperatorFamily{
	OpEq:         FamilyScalar,
	OpNe:         FamilyScalar,
	OpNeAlt:      FamilyScalar,
	OpGt:         FamilyScalar,
	OpGte:        FamilyScalar,
	OpLt:         FamilyScalar,
	OpLte:        FamilyScalar,
	OpLike:       FamilyScalar,
	OpNotLike:    FamilyScalar,
	OpILike:      FamilyScalar,
	OpIn:         FamilySet,
	OpNotIn:      FamilySet,
	OpBetween:    FamilyRange,
	OpNotBetween: FamilyRange,
	OpIsNull:     FamilyNullary,
	OpIsNotNull:  FamilyNullary,
}

// ParseOperator accepts any letter case and collapses inner whitespace, so
// "not  in" reads as NOT IN.
func ParseOperator(s string) (Operator, bool) {
	op := Operator(strings.Join(strings.Fields(strings.ToUpper(s)), " "))
	_, ok := operatorFamilies[op]
	return op, ok
}

// Family returns the value shape op expects.
func (op Operator) Family() OperatorFamily {
	return operatorFamilies[op]
}

// AggregateFunc is a metric aggregate.
type AggregateFunc string

const (
	AggSum           AggregateFunc = "SUM"
	AggAvg           AggregateFunc = "AVG"
	AggMin           AggregateFunc = "MIN"
	AggMax           AggregateFunc = "MAX"
	AggCount         AggregateFunc = "COUNT"
	AggCountDistinct AggregateFunc = "COUNT_DISTINCT"
)

// ParseAggregate accepts any letter case; "COUNT DISTINCT" is read as
// COUNT_DISTINCT.
func ParseAggregate(s string) (AggregateFunc, bool) {
	f := AggregateFunc(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), " ", "_"))
	switch f {
	case AggSum, AggAvg, AggMin, AggMax, AggCount, AggCountDistinct:
		return f, true
	}
	return "", false
}

// Direction is an ORDER BY direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// CountAll is the column name that makes COUNT render as COUNT(*).
const CountAll = "*"

// DateRange is an inclusive [Start, End] pair of ISO dates. It encodes as a
// two-element JSON array, the form ParseQueryIntent reads.
type DateRange struct {
	Start string
	End   string
}

func (d DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{d.Start, d.End})
}

func (d *DateRange) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("%w: date filter: %v", ErrInvalidOperatorValue, err)
	}
	dr, err := parseDateRange(pair)
	if err != nil {
		return err
	}
	*d = *dr
	return nil
}

// Filters are the role-keyed filters of an intent.
type Filters struct {
	Region   []string   `json:"region,omitempty"`
	ItemType []string   `json:"item_type,omitempty"`
	Channel  []string   `json:"channel,omitempty"`
	Date     *DateRange `json:"date,omitempty"`
}

// Set returns the set filter for a categorical role.
func (f Filters) Set(r Role) []string {
	switch r {
	case RoleRegion:
		return f.Region
	case RoleItemType:
		return f.ItemType
	case RoleChannel:
		return f.Channel
	}
	return nil
}

// ExtraFilter is a predicate on a raw catalog column.
type ExtraFilter struct {
	Column   string   `json:"column"`
	Operator Operator `json:"op"`
	Value    any      `json:"value,omitempty"`
}

// Metric is one aggregate in the SELECT list. Column may name a role or a
// catalog column.
type Metric struct {
	Function AggregateFunc `json:"function"`
	Column   string        `json:"column"`
}

// OrderTerm is one ORDER BY entry. An empty Function orders by a grouped
// column or output alias.
type OrderTerm struct {
	Function  AggregateFunc `json:"function,omitempty"`
	Column    string        `json:"column"`
	Direction Direction     `json:"direction"`
}

// QueryIntent is the structured request the compiler consumes. Notes are
// advisory and never affect compilation.
type QueryIntent struct {
	Filters      Filters       `json:"filters"`
	ExtraFilters []ExtraFilter `json:"extraFilter,omitempty"`
	Metrics      []Metric      `json:"metrics,omitempty"`
	GroupBy      []string      `json:"group_by,omitempty"`
	OrderBy      []OrderTerm   `json:"order_by,omitempty"`
	Limit        *int          `json:"limit,omitempty"`
	Notes        []string      `json:"notes,omitempty"`
}

type intentWire struct {
	Filters struct {
		Region    []string `json:"region"`
		ItemType  []string `json:"item_type"`
		Channel   []string `json:"channel"`
		Date      []string `json:"date"`
		DateRange []string `json:"date_range"`
	} `json:"filters"`
	ExtraFilter      []extraFilterWire `json:"extraFilter"`
	ExtraFilterSnake []extraFilterWire `json:"extra_filter"`
	Metrics          []metricWire      `json:"metrics"`
	GroupBy          []string          `json:"group_by"`
	OrderBy          []orderWire       `json:"order_by"`
	Limit            *json.Number      `json:"limit"`
	Notes            []string          `json:"notes"`
}

type extraFilterWire struct {
	Column string          `json:"column"`
	Op     string          `json:"op"`
	Value  json.RawMessage `json:"value"`
}

type metricWire struct {
	Function string `json:"function"`
	Column   string `json:"column"`
}

type orderWire struct {
	Function  string `json:"function"`
	Column    string `json:"column"`
	Direction string `json:"direction"`
}

// ParseQueryIntent decodes and structurally validates an intent document.
// Both extraFilter and extra_filter are accepted, as are date and date_range.
func ParseQueryIntent(data []byte) (*QueryIntent, error) {
	var w intentWire
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}

	in := &QueryIntent{
		Filters: Filters{
			Region:   w.Filters.Region,
			ItemType: w.Filters.ItemType,
			Channel:  w.Filters.Channel,
		},
		GroupBy: w.GroupBy,
		Notes:   w.Notes,
	}

	dates := w.Filters.Date
	if len(dates) == 0 {
		dates = w.Filters.DateRange
	}
	if len(dates) > 0 {
		dr, err := parseDateRange(dates)
		if err != nil {
			return nil, err
		}
		in.Filters.Date = dr
	}

	for _, ef := range append(w.ExtraFilter, w.ExtraFilterSnake...) {
		op, ok := ParseOperator(ef.Op)
		if !ok {
			return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidOperatorValue, ef.Op)
		}
		value, err := decodeFilterValue(ef.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", ErrInvalidOperatorValue, ef.Column, err)
		}
		in.ExtraFilters = append(in.ExtraFilters, ExtraFilter{Column: ef.Column, Operator: op, Value: value})
	}

	for _, m := range w.Metrics {
		fn, ok := ParseAggregate(m.Function)
		if !ok {
			return nil, fmt.Errorf("%w: unknown function %q", ErrInvalidAggregate, m.Function)
		}
		in.Metrics = append(in.Metrics, Metric{Function: fn, Column: m.Column})
	}

	for _, o := range w.OrderBy {
		term := OrderTerm{Column: o.Column, Direction: Asc}
		if o.Function != "" {
			fn, ok := ParseAggregate(o.Function)
			if !ok {
				return nil, fmt.Errorf("%w: unknown function %q", ErrInvalidAggregate, o.Function)
			}
			term.Function = fn
		}
		switch strings.ToUpper(strings.TrimSpace(o.Direction)) {
		case "", "ASC":
		case "DESC":
			term.Direction = Desc
		default:
			return nil, fmt.Errorf("%w: order direction %q", ErrInvalidIntent, o.Direction)
		}
		in.OrderBy = append(in.OrderBy, term)
	}

	if w.Limit != nil {
		n, err := w.Limit.Int64()
		if err != nil || n <= 0 || n > int64(^uint32(0)>>1) {
			return nil, fmt.Errorf("%w: limit must be a positive integer", ErrInvalidIntent)
		}
		limit := int(n)
		in.Limit = &limit
	}

	return in, nil
}

func parseDateRange(pair []string) (*DateRange, error) {
	if len(pair) != 2 {
		return nil, fmt.Errorf("%w: date filter needs exactly 2 bounds, got %d", ErrInvalidOperatorValue, len(pair))
	}
	var iso [2]string
	for i, s := range pair {
		t, ok := ParseDate(s)
		if !ok {
			return nil, fmt.Errorf("%w: unparseable date %q", ErrInvalidOperatorValue, s)
		}
		iso[i] = t.Format(ISODate)
	}
	return &DateRange{Start: iso[0], End: iso[1]}, nil
}

// decodeFilterValue turns a raw JSON value into nil, a scalar, or a []any of
// scalars. Numbers become int64 when integral, otherwise float64.
func decodeFilterValue(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalizeValue(v, true)
}

func normalizeValue(v any, allowList bool) (any, error) {
	switch x := v.(type) {
	case nil, string, bool:
		return x, nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("bad number %s", x)
		}
		return f, nil
	case []any:
		if !allowList {
			return nil, fmt.Errorf("nested lists are not supported")
		}
		out := make([]any, len(x))
		for i, e := range x {
			n, err := normalizeValue(e, false)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value of type %T", v)
	}
}
