package port

import (
	"context"

	"github.com/guillermoBallester/tally/internal/core/domain"
)

// ColumnCounts holds the full-table figures the profiler cannot take from a
// bounded sample.
type ColumnCounts struct {
	RowCount int64
	Distinct map[string]int64
}

// DatasetReader reads an uploaded dataset table. Implementations check every
// column name against the table's own column list before placing it in
// statement text.
type DatasetReader interface {
	// Columns lists the table's columns in ordinal order.
	Columns(ctx context.Context, table string) ([]string, error)
	// SampleColumns returns up to limit rows per column, cast to text, with
	// nulls counted rather than returned.
	SampleColumns(ctx context.Context, table string, columns []string, limit int) ([]domain.ColumnSample, error)
	ColumnCounts(ctx context.Context, table string, columns []string) (*ColumnCounts, error)
	// DistinctValues returns up to limit distinct non-null values, sorted.
	// truncated is true when more values exist.
	DistinctValues(ctx context.Context, table, column string, limit int) (values []string, truncated bool, err error)
	// DateRange returns the ISO min and max of a date column over the full
	// table.
	DateRange(ctx context.Context, table, column string) (minDate, maxDate string, err error)
}

// ProfileRepository persists schema profile documents, one per table.
type ProfileRepository interface {
	CreatePending(ctx context.Context, table, fileName string) error
	Get(ctx context.Context, table string) (*domain.SchemaProfile, error)
	// Publish promotes a processing profile to its terminal state. It fails
	// with domain.ErrAlreadyPublished when the stored profile is no longer
	// processing.
	Publish(ctx context.Context, profile *domain.SchemaProfile) error
	List(ctx context.Context) ([]ProfileSummary, error)
}

// ProfileSummary is a listing entry.
type ProfileSummary struct {
	TableName string               `json:"tableName"`
	FileName  string               `json:"fileName,omitempty"`
	Status    domain.ProfileStatus `json:"status"`
	Error     string               `json:"error,omitempty"`
}
