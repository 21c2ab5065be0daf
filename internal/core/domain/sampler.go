package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultSampleSize caps how many non-null values the type sampler inspects.
const DefaultSampleSize = 500

// Coverage thresholds, applied in this order.
const (
	booleanThreshold = 0.95
	numericThreshold = 0.95
	dateThreshold    = 0.90
)

// ISODate is the layout used for every date the profiler publishes.
const ISODate = "2006-01-02"

var booleanTokens = map[string]bool{
	"true": true, "false": true,
	"yes": true, "no": true,
	"y": true, "n": true,
}

var numericCleaner = strings.NewReplacer(
	"$", "",
	"₹", "",
	"€", "",
	"£", "",
	",", "",
)

// dateLayouts are tried against upper-cased input; month names match
// regardless of case. Bare digit runs such as 20230105 are absent so numeric
// codes never read as dates.
var dateLayouts = []string{
	ISODate,
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05-07:00",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"Jan 2 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
}

// InferColumnType classifies the non-null values of one column. Only the
// first sampleSize values are inspected; sampleSize <= 0 means
// DefaultSampleSize. An empty column is a string column.
func InferColumnType(values []string, sampleSize int) ColumnType {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	if len(values) > sampleSize {
		values = values[:sampleSize]
	}
	if len(values) == 0 {
		return TypeString
	}

	normalized := make([]string, len(values))
	for i, v := range values {
		normalized[i] = strings.ToLower(strings.TrimSpace(v))
	}

	total := float64(len(normalized))
	var booleans, numerics, dates int
	for _, v := range normalized {
		if booleanTokens[v] {
			booleans++
		}
	}
	if float64(booleans)/total >= booleanThreshold {
		return TypeBoolean
	}

	for _, v := range normalized {
		if _, ok := ParseNumeric(v); ok {
			numerics++
		}
	}
	if float64(numerics)/total >= numericThreshold {
		return TypeNumeric
	}

	for _, v := range normalized {
		if _, ok := ParseDate(v); ok {
			dates++
		}
	}
	if float64(dates)/total >= dateThreshold {
		return TypeDate
	}

	return TypeString
}

// ParseNumeric strips currency symbols and digit-group separators and parses
// what remains as an exact decimal.
func ParseNumeric(s string) (decimal.Decimal, bool) {
	cleaned := numericCleaner.Replace(strings.TrimSpace(s))
	cleaned = strings.TrimPrefix(cleaned, "+")
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ParseDate parses s as a calendar date or timestamp using the accepted
// layouts. Month names match case-insensitively.
func ParseDate(s string) (time.Time, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
