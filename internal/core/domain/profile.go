package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// TopValuesLimit caps ColumnProfile.TopValues.
const TopValuesLimit = 10

// ColumnSample is one column as read from the store: its non-null values as
// text, plus how many nulls were skipped.
type ColumnSample struct {
	Name   string
	Values []string
	Nulls  int64
}

// ColumnProfile describes one column after a profiling pass. Min and Max are
// float64 for numeric columns and ISO date strings for date columns.
type ColumnProfile struct {
	Name          string           `json:"name"`
	Type          ColumnType       `json:"type"`
	DistinctCount int64            `json:"distinctCount"`
	NullCount     int64            `json:"nullCount,omitempty"`
	Cardinality   CardinalityClass `json:"cardinality,omitempty"`
	Min           any              `json:"min,omitempty"`
	Max           any              `json:"max,omitempty"`
	TopValues     []string         `json:"topValues,omitempty"`
}

// ProfileColumn classifies a column and computes its statistics from the
// loaded values. DistinctCount is over every loaded value, not just the
// type-sampling prefix.
func ProfileColumn(sample ColumnSample, sampleSize int) ColumnProfile {
	col := ColumnProfile{
		Name:      sample.Name,
		Type:      InferColumnType(sample.Values, sampleSize),
		NullCount: sample.Nulls,
	}

	counts := make(map[string]int, len(sample.Values))
	for _, v := range sample.Values {
		counts[v]++
	}
	col.DistinctCount = int64(len(counts))

	switch col.Type {
	case TypeNumeric:
		col.Min, col.Max = numericRange(sample.Values)
	case TypeDate:
		col.Min, col.Max = dateRange(sample.Values)
	default:
		col.TopValues = topValues(sample.Values, counts, TopValuesLimit)
	}
	return col
}

// ProfileColumns profiles every sample, preserving order.
func ProfileColumns(samples []ColumnSample, sampleSize int) []ColumnProfile {
	cols := make([]ColumnProfile, 0, len(samples))
	for _, s := range samples {
		cols = append(cols, ProfileColumn(s, sampleSize))
	}
	return cols
}

func numericRange(values []string) (minV, maxV any) {
	var lo, hi decimal.Decimal
	seen := false
	for _, v := range values {
		d, ok := ParseNumeric(v)
		if !ok {
			continue
		}
		if !seen || d.LessThan(lo) {
			lo = d
		}
		if !seen || d.GreaterThan(hi) {
			hi = d
		}
		seen = true
	}
	if !seen {
		return nil, nil
	}
	return lo.InexactFloat64(), hi.InexactFloat64()
}

func dateRange(values []string) (minV, maxV any) {
	var lo, hi string
	for _, v := range values {
		t, ok := ParseDate(v)
		if !ok {
			continue
		}
		iso := t.Format(ISODate)
		if lo == "" || iso < lo {
			lo = iso
		}
		if hi == "" || iso > hi {
			hi = iso
		}
	}
	if lo == "" {
		return nil, nil
	}
	return lo, hi
}

// topValues returns up to limit values, most frequent first. Ties keep the
// order in which values first appeared.
func topValues(values []string, counts map[string]int, limit int) []string {
	order := make([]string, 0, len(counts))
	seen := make(map[string]bool, len(counts))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			order = append(order, v)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > limit {
		order = order[:limit]
	}
	if len(order) == 0 {
		return nil
	}
	return order
}
