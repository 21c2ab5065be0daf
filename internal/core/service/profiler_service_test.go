package service

import (
	"context"
	"errors"
	"testing"

	"github.com/guillermoBallester/tally/internal/core/domain"
	"github.com/guillermoBallester/tally/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func salesReader() *mockReader {
	return &mockReader{
		columns: []string{"region", "order_date", "units_sold", "total_revenue"},
		samples: []domain.ColumnSample{
			{Name: "region", Values: []string{"North", "South", "North", "East"}},
			{Name: "order_date", Values: []string{"2023-01-05", "2023-03-01", "2023-02-11", "2023-04-30"}},
			{Name: "units_sold", Values: []string{"3", "4", "10", "1"}},
			{Name: "total_revenue", Values: []string{"30.5", "40", "100.25", "9.99"}, Nulls: 1},
		},
		counts: &port.ColumnCounts{
			RowCount: 5,
			Distinct: map[string]int64{"region": 3, "order_date": 4, "units_sold": 4, "total_revenue": 4},
		},
		distinct: map[string][]string{"region": {"East", "North", "South"}},
		minDate:  "2023-01-05",
		maxDate:  "2023-04-30",
	}
}

func newProfiler(repo *memRepo, reader *mockReader) *ProfilerService {
	return NewProfilerService(repo, reader, testLogger(), nil, nil, ProfilerOptions{})
}

func TestProfilerService_Profile(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	svc := newProfiler(repo, salesReader())
	require.NoError(t, repo.CreatePending(context.Background(), "sales_abc", "sales.csv"))

	p, err := svc.Profile(context.Background(), "sales_abc")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, p.Status)

	stored := repo.stored("sales_abc")
	assert.Equal(t, domain.StatusReady, stored.Status)
	assert.Equal(t, "sales.csv", stored.FileName)
	assert.Equal(t, int64(5), stored.Stats.RowCount)
	assert.Equal(t, "2023-01-05", stored.Stats.MinDate)
	assert.Equal(t, "2023-04-30", stored.Stats.MaxDate)

	assert.Equal(t, "region", stored.RoleMapping[domain.RoleRegion])
	assert.Equal(t, "order_date", stored.RoleMapping[domain.RoleDate])
	assert.Equal(t, "units_sold", stored.RoleMapping[domain.RoleUnitsSold])
	assert.Equal(t, "total_revenue", stored.RoleMapping[domain.RoleRevenue])
	assert.Equal(t, []string{"East", "North", "South"}, stored.DistinctValues[domain.RoleRegion])
	assert.True(t, stored.DistinctComplete(domain.RoleRegion))

	rev, ok := stored.Column("total_revenue")
	require.True(t, ok)
	assert.Equal(t, domain.TypeNumeric, rev.Type)
	assert.Equal(t, int64(4), rev.DistinctCount)
	assert.Equal(t, int64(1), rev.NullCount)
	assert.NotEmpty(t, rev.Cardinality)
}

func TestProfilerService_DateRangeOfTextDateColumn(t *testing.T) {
	t.Parallel()
	reader := salesReader()
	reader.samples[1].Values = []string{"2023-01-05", "2023-03-01", "pending", "2023-04-30"}
	repo := newMemRepo()
	svc := newProfiler(repo, reader)
	require.NoError(t, repo.CreatePending(context.Background(), "sales_abc", "sales.csv"))

	_, err := svc.Profile(context.Background(), "sales_abc")
	require.NoError(t, err)

	stored := repo.stored("sales_abc")
	col, ok := stored.Column("order_date")
	require.True(t, ok)
	assert.Equal(t, domain.TypeString, col.Type)
	assert.Equal(t, "order_date", stored.RoleMapping[domain.RoleDate])
	assert.Equal(t, "2023-01-05", stored.Stats.MinDate)
	assert.Equal(t, "2023-04-30", stored.Stats.MaxDate)
}

func TestProfilerService_TruncatedDistinctValues(t *testing.T) {
	t.Parallel()
	reader := salesReader()
	reader.capped = map[string]bool{"region": true}
	repo := newMemRepo()
	require.NoError(t, repo.CreatePending(context.Background(), "sales_abc", ""))

	_, err := newProfiler(repo, reader).Profile(context.Background(), "sales_abc")
	require.NoError(t, err)
	stored := repo.stored("sales_abc")
	assert.Equal(t, []domain.Role{domain.RoleRegion}, stored.DistinctTruncated)
	assert.False(t, stored.DistinctComplete(domain.RoleRegion))
}

func TestProfilerService_EmptyTable(t *testing.T) {
	t.Parallel()
	reader := salesReader()
	reader.counts = &port.ColumnCounts{}
	repo := newMemRepo()
	require.NoError(t, repo.CreatePending(context.Background(), "sales_abc", ""))

	_, err := newProfiler(repo, reader).Profile(context.Background(), "sales_abc")
	require.ErrorIs(t, err, domain.ErrEmptyDataset)

	stored := repo.stored("sales_abc")
	assert.Equal(t, domain.StatusError, stored.Status)
	assert.Equal(t, "table is empty", stored.Error)
	assert.Empty(t, stored.Columns)
}

func TestProfilerService_ReaderFailurePublishesError(t *testing.T) {
	t.Parallel()
	reader := salesReader()
	reader.err = errors.New("connection reset")
	repo := newMemRepo()
	require.NoError(t, repo.CreatePending(context.Background(), "sales_abc", ""))

	_, err := newProfiler(repo, reader).Profile(context.Background(), "sales_abc")
	require.Error(t, err)
	stored := repo.stored("sales_abc")
	assert.Equal(t, domain.StatusError, stored.Status)
	assert.Contains(t, stored.Error, "connection reset")
}

func TestProfilerService_PublishesOnce(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	svc := newProfiler(repo, salesReader())
	require.NoError(t, repo.CreatePending(context.Background(), "sales_abc", ""))

	_, err := svc.Profile(context.Background(), "sales_abc")
	require.NoError(t, err)
	_, err = svc.Profile(context.Background(), "sales_abc")
	assert.ErrorIs(t, err, domain.ErrAlreadyPublished)
	assert.Equal(t, domain.StatusReady, repo.stored("sales_abc").Status)
}

func TestProfilerService_RegisterRunsInBackground(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	svc := newProfiler(repo, salesReader())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Register(ctx, "sales_abc", "sales.csv"))
	cancel()
	svc.Wait()

	p, err := svc.Status(context.Background(), "sales_abc")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, p.Status)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "sales_abc", list[0].TableName)
}
