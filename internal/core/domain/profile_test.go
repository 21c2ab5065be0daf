package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfileColumn_Numeric(t *testing.T) {
	t.Parallel()
	col := ProfileColumn(ColumnSample{
		Name:   "Total Revenue",
		Values: []string{"$1,200.50", "$980.00", "$1,200.50", "15"},
		Nulls:  2,
	}, 0)

	assert.Equal(t, TypeNumeric, col.Type)
	assert.Equal(t, int64(3), col.DistinctCount)
	assert.Equal(t, int64(2), col.NullCount)
	assert.Equal(t, 15.0, col.Min)
	assert.Equal(t, 1200.5, col.Max)
	assert.Empty(t, col.TopValues)
}

func TestProfileColumn_Date(t *testing.T) {
	t.Parallel()
	col := ProfileColumn(ColumnSample{
		Name:   "order_date",
		Values: []string{"03/15/2023", "2023-01-05", "2022-12-31"},
	}, 0)

	assert.Equal(t, TypeDate, col.Type)
	assert.Equal(t, "2022-12-31", col.Min)
	assert.Equal(t, "2023-03-15", col.Max)
}

func TestProfileColumn_TopValues(t *testing.T) {
	t.Parallel()
	col := ProfileColumn(ColumnSample{
		Name:   "region",
		Values: []string{"South", "North", "East", "North", "South", "North", "West"},
	}, 0)

	assert.Equal(t, TypeString, col.Type)
	assert.Equal(t, int64(4), col.DistinctCount)
	// Ties keep first-seen order.
	assert.Equal(t, []string{"North", "South", "East", "West"}, col.TopValues)
	assert.Nil(t, col.Min)
}

func TestProfileColumn_TopValuesCapped(t *testing.T) {
	t.Parallel()
	values := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"}
	col := ProfileColumn(ColumnSample{Name: "code", Values: values}, 0)
	assert.Len(t, col.TopValues, TopValuesLimit)
	assert.Equal(t, int64(12), col.DistinctCount)
}

func TestProfileColumn_DistinctBeyondSample(t *testing.T) {
	t.Parallel()
	values := append(repeat("1", 5), "2", "3", "4")
	col := ProfileColumn(ColumnSample{Name: "qty", Values: values}, 5)
	assert.Equal(t, TypeNumeric, col.Type)
	assert.Equal(t, int64(4), col.DistinctCount)
	assert.Equal(t, 4.0, col.Max)
}

func TestProfileColumn_EmptyColumn(t *testing.T) {
	t.Parallel()
	col := ProfileColumn(ColumnSample{Name: "notes", Nulls: 10}, 0)
	assert.Equal(t, TypeString, col.Type)
	assert.Zero(t, col.DistinctCount)
	assert.Nil(t, col.TopValues)
}

func TestProfileColumns_PreservesOrder(t *testing.T) {
	t.Parallel()
	cols := ProfileColumns([]ColumnSample{
		{Name: "b", Values: []string{"x"}},
		{Name: "a", Values: []string{"1"}},
	}, 0)
	assert.Equal(t, "b", cols[0].Name)
	assert.Equal(t, "a", cols[1].Name)
}
