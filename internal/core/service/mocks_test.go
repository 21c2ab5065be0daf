package service

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/guillermoBallester/tally/internal/core/domain"
	"github.com/guillermoBallester/tally/internal/core/port"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- mock ProfileRepository ---

type memRepo struct {
	mu       sync.Mutex
	profiles map[string]*domain.SchemaProfile
	gets     int
}

func newMemRepo(profiles ...*domain.SchemaProfile) *memRepo {
	r := &memRepo{profiles: make(map[string]*domain.SchemaProfile)}
	for _, p := range profiles {
		r.profiles[p.TableName] = p
	}
	return r
}

func (r *memRepo) CreatePending(_ context.Context, table, fileName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[table] = domain.NewPendingProfile(table, fileName)
	return nil
}

func (r *memRepo) Get(_ context.Context, table string) (*domain.SchemaProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	p, ok := r.profiles[table]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) Publish(_ context.Context, p *domain.SchemaProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.profiles[p.TableName]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != domain.StatusProcessing {
		return domain.ErrAlreadyPublished
	}
	cp := *p
	r.profiles[p.TableName] = &cp
	return nil
}

func (r *memRepo) List(context.Context) ([]port.ProfileSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []port.ProfileSummary
	for _, p := range r.profiles {
		out = append(out, port.ProfileSummary{TableName: p.TableName, FileName: p.FileName, Status: p.Status, Error: p.Error})
	}
	return out, nil
}

func (r *memRepo) stored(table string) *domain.SchemaProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.profiles[table]
}

func (r *memRepo) getCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets
}

// --- mock QueryExecutor ---

type mockExecutor struct {
	executeCalled bool
	lastQuery     *domain.CompiledQuery
	result        []map[string]any
	err           error
}

func (m *mockExecutor) Execute(_ context.Context, q *domain.CompiledQuery) ([]map[string]any, error) {
	m.executeCalled = true
	m.lastQuery = q
	return m.result, m.err
}

// --- mock QueryValidator ---

type rejectingValidator struct{ err error }

func (v rejectingValidator) Validate(*domain.CompiledQuery, *domain.SchemaProfile) error {
	return v.err
}

// --- mock IntentPlanner ---

type mockPlanner struct {
	intent       *domain.QueryIntent
	err          error
	lastQuestion string
}

func (m *mockPlanner) Plan(_ context.Context, question string, _ *domain.SchemaProfile) (*domain.QueryIntent, error) {
	m.lastQuestion = question
	return m.intent, m.err
}

// --- recording QueryAuditor ---

type recordingAuditor struct {
	mu      sync.Mutex
	entries []port.AuditEntry
}

func (a *recordingAuditor) Record(_ context.Context, e port.AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAuditor) Close() error { return nil }

func (a *recordingAuditor) all() []port.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]port.AuditEntry(nil), a.entries...)
}

// --- mock DatasetReader ---

type mockReader struct {
	columns  []string
	samples  []domain.ColumnSample
	counts   *port.ColumnCounts
	distinct map[string][]string
	capped   map[string]bool
	minDate  string
	maxDate  string
	err      error
}

func (m *mockReader) Columns(context.Context, string) ([]string, error) {
	return m.columns, m.err
}

func (m *mockReader) SampleColumns(context.Context, string, []string, int) ([]domain.ColumnSample, error) {
	return m.samples, nil
}

func (m *mockReader) ColumnCounts(context.Context, string, []string) (*port.ColumnCounts, error) {
	return m.counts, nil
}

func (m *mockReader) DistinctValues(_ context.Context, _, column string, _ int) ([]string, bool, error) {
	return m.distinct[column], m.capped[column], nil
}

func (m *mockReader) DateRange(context.Context, string, string) (string, string, error) {
	return m.minDate, m.maxDate, nil
}

func salesProfile() *domain.SchemaProfile {
	return &domain.SchemaProfile{
		TableName: "sales_abc",
		Status:    domain.StatusReady,
		Columns: []domain.ColumnProfile{
			{Name: "region", Type: domain.TypeString, DistinctCount: 2},
			{Name: "revenue", Type: domain.TypeNumeric, DistinctCount: 10},
		},
		RoleMapping: map[domain.Role]string{
			domain.RoleRegion:  "region",
			domain.RoleRevenue: "revenue",
		},
		DistinctValues: map[domain.Role][]string{domain.RoleRegion: {"North", "South"}},
		Stats:          domain.Stats{RowCount: 10},
		Version:        domain.ProfileVersion,
	}
}

func revenueByRegion() *domain.QueryIntent {
	return &domain.QueryIntent{
		Filters: domain.Filters{Region: []string{"North"}},
		Metrics: []domain.Metric{{Function: domain.AggSum, Column: "revenue"}},
		GroupBy: []string{"region"},
	}
}
