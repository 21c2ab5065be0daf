package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryIntent_Full(t *testing.T) {
	t.Parallel()
	in, err := ParseQueryIntent([]byte(`{
		"filters": {"region": ["North", "South"], "date": ["2023-01-01", "03/31/2023"]},
		"extraFilter": [
			{"column": "units", "op": "between", "value": [10, 20.5]},
			{"column": "notes", "op": "is  null"}
		],
		"metrics": [
			{"function": "sum", "column": "revenue"},
			{"function": "SUM", "column": "units_sold"},
			{"function": "count distinct", "column": "region"}
		],
		"group_by": ["region", "month"],
		"order_by": [{"function": "SUM", "column": "revenue", "direction": "desc"}, {"column": "region"}],
		"limit": 10,
		"notes": ["top regions"]
	}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"North", "South"}, in.Filters.Region)
	assert.Equal(t, &DateRange{Start: "2023-01-01", End: "2023-03-31"}, in.Filters.Date)

	require.Len(t, in.ExtraFilters, 2)
	assert.Equal(t, OpBetween, in.ExtraFilters[0].Operator)
	assert.Equal(t, []any{int64(10), 20.5}, in.ExtraFilters[0].Value)
	assert.Equal(t, OpIsNull, in.ExtraFilters[1].Operator)
	assert.Nil(t, in.ExtraFilters[1].Value)

	assert.Equal(t, []Metric{
		{Function: AggSum, Column: "revenue"},
		{Function: AggSum, Column: "units_sold"},
		{Function: AggCountDistinct, Column: "region"},
	}, in.Metrics)
	assert.Equal(t, []string{"region", "month"}, in.GroupBy)
	assert.Equal(t, []OrderTerm{
		{Function: AggSum, Column: "revenue", Direction: Desc},
		{Column: "region", Direction: Asc},
	}, in.OrderBy)
	require.NotNil(t, in.Limit)
	assert.Equal(t, 10, *in.Limit)
	assert.Equal(t, []string{"top regions"}, in.Notes)
}

func TestParseQueryIntent_SnakeCaseAliases(t *testing.T) {
	t.Parallel()
	in, err := ParseQueryIntent([]byte(`{
		"filters": {"date_range": ["2023-01-01", "2023-02-01"]},
		"extra_filter": [{"column": "status", "op": "=", "value": "shipped"}],
		"metrics": [{"function": "COUNT", "column": "*"}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "2023-02-01", in.Filters.Date.End)
	require.Len(t, in.ExtraFilters, 1)
	assert.Equal(t, "shipped", in.ExtraFilters[0].Value)
}

func TestParseQueryIntent_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"malformed", `{"metrics": [`, ErrInvalidIntent},
		{"unknown operator", `{"extraFilter": [{"column": "a", "op": "~", "value": 1}]}`, ErrInvalidOperatorValue},
		{"object value", `{"extraFilter": [{"column": "a", "op": "=", "value": {"x": 1}}]}`, ErrInvalidOperatorValue},
		{"nested list", `{"extraFilter": [{"column": "a", "op": "IN", "value": [[1]]}]}`, ErrInvalidOperatorValue},
		{"unknown aggregate", `{"metrics": [{"function": "median", "column": "a"}]}`, ErrInvalidAggregate},
		{"one date", `{"filters": {"date": ["2023-01-01"]}}`, ErrInvalidOperatorValue},
		{"three dates", `{"filters": {"date": ["2023-01-01", "2023-01-02", "2023-01-03"]}}`, ErrInvalidOperatorValue},
		{"bad date", `{"filters": {"date": ["soon", "2023-01-02"]}}`, ErrInvalidOperatorValue},
		{"zero limit", `{"limit": 0}`, ErrInvalidIntent},
		{"negative limit", `{"limit": -5}`, ErrInvalidIntent},
		{"fractional limit", `{"limit": 2.5}`, ErrInvalidIntent},
		{"bad direction", `{"order_by": [{"column": "a", "direction": "sideways"}]}`, ErrInvalidIntent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseQueryIntent([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseOperator(t *testing.T) {
	t.Parallel()
	op, ok := ParseOperator(" not   between ")
	require.True(t, ok)
	assert.Equal(t, OpNotBetween, op)
	assert.Equal(t, FamilyRange, op.Family())

	assert.Equal(t, FamilyNullary, OpIsNotNull.Family())
	assert.Equal(t, FamilySet, OpNotIn.Family())
	assert.Equal(t, FamilyScalar, OpILike.Family())

	_, ok = ParseOperator("SIMILAR TO")
	assert.False(t, ok)
}

func TestQueryIntent_MarshalParseRoundTrip(t *testing.T) {
	t.Parallel()
	limit := 5
	want := &QueryIntent{
		Filters: Filters{
			Region: []string{"North"},
			Date:   &DateRange{Start: "2023-01-01", End: "2023-06-30"},
		},
		ExtraFilters: []ExtraFilter{{Column: "units", Operator: OpIn, Value: []any{int64(1), int64(2)}}},
		Metrics:      []Metric{{Function: AggSum, Column: "revenue"}},
		GroupBy:      []string{"region"},
		OrderBy:      []OrderTerm{{Function: AggSum, Column: "revenue", Direction: Desc}},
		Limit:        &limit,
	}

	data, err := json.Marshal(want)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"date":["2023-01-01","2023-06-30"]`)

	got, err := ParseQueryIntent(data)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDateRange_UnmarshalJSON(t *testing.T) {
	t.Parallel()
	var dr DateRange
	require.NoError(t, json.Unmarshal([]byte(`["03/01/2023", "2023-03-31"]`), &dr))
	assert.Equal(t, DateRange{Start: "2023-03-01", End: "2023-03-31"}, dr)

	assert.ErrorIs(t, json.Unmarshal([]byte(`["2023-03-01"]`), &dr), ErrInvalidOperatorValue)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"start": "2023-03-01"}`), &dr), ErrInvalidOperatorValue)
}
