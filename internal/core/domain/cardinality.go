package domain

// CardinalityClass describes the distribution shape of a column's values.
type CardinalityClass string

const (
	CardinalityUnique          CardinalityClass = "unique"
	CardinalityNearUnique      CardinalityClass = "near_unique"
	CardinalityHighCardinality CardinalityClass = "high_cardinality"
	CardinalityLowCardinality  CardinalityClass = "low_cardinality"
	CardinalityEnumLike        CardinalityClass = "enum_like"
)

// ClassifyCardinality derives the class from a column's full-table distinct
// count and the dataset row count.
func ClassifyCardinality(distinctCount, rowCount int64) CardinalityClass {
	if rowCount > 0 && distinctCount == rowCount {
		return CardinalityUnique
	}
	if rowCount > 0 && float64(distinctCount)/float64(rowCount) >= 0.9 {
		return CardinalityNearUnique
	}

	switch {
	case distinctCount <= 20:
		return CardinalityEnumLike
	case distinctCount <= 200:
		return CardinalityLowCardinality
	default:
		return CardinalityHighCardinality
	}
}

// Groupable reports whether a column of this class makes a sensible
// GROUP BY key.
func (c CardinalityClass) Groupable() bool {
	return c == CardinalityEnumLike || c == CardinalityLowCardinality
}
