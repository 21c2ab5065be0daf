package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/guillermoBallester/tally/internal/audit"
	"github.com/guillermoBallester/tally/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(repo *memRepo, exec *mockExecutor, opts ...QueryOption) *QueryService {
	return NewQueryService(repo, domain.NewAllowListValidator(), exec, audit.NoopAuditor{}, testLogger(), nil, nil, opts...)
}

func TestQueryService_Execute(t *testing.T) {
	t.Parallel()
	exec := &mockExecutor{result: []map[string]any{{"region": "North", "sum_revenue": 10.5}}}
	auditor := &recordingAuditor{}
	svc := NewQueryService(newMemRepo(salesProfile()), domain.NewAllowListValidator(), exec, auditor, testLogger(), nil, nil)

	ctx := WithToolName(context.Background(), "run_query")
	res, err := svc.Execute(ctx, "sales_abc", revenueByRegion())
	require.NoError(t, err)
	assert.True(t, exec.executeCalled)
	assert.True(t, res.Executed)
	assert.NotEmpty(t, res.RequestID)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []string{"North"}, exec.lastQuery.Params["region_values"])
	assert.NotContains(t, exec.lastQuery.SQL(), "North")

	entries := auditor.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "run_query", entries[0].Tool)
	assert.Equal(t, "sales_abc", entries[0].Dataset)
	assert.Equal(t, res.RequestID, entries[0].RequestID)
	assert.Equal(t, 1, entries[0].RowsReturned)
	assert.Equal(t, 1, entries[0].ParamCount)
	assert.True(t, entries[0].Executed)
	assert.NoError(t, entries[0].Err)
}

func TestQueryService_UnknownDataset(t *testing.T) {
	t.Parallel()
	exec := &mockExecutor{}
	svc := newService(newMemRepo(), exec)

	_, err := svc.Execute(context.Background(), "missing", revenueByRegion())
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, exec.executeCalled)
}

func TestQueryService_ProfileNotReady(t *testing.T) {
	t.Parallel()
	for _, status := range []domain.ProfileStatus{domain.StatusProcessing, domain.StatusError} {
		t.Run(string(status), func(t *testing.T) {
			t.Parallel()
			p := salesProfile()
			p.Status = status
			exec := &mockExecutor{}
			svc := newService(newMemRepo(p), exec)

			_, err := svc.Execute(context.Background(), "sales_abc", revenueByRegion())
			require.ErrorIs(t, err, domain.ErrProfileNotReady)
			assert.False(t, exec.executeCalled)
		})
	}
}

func TestQueryService_CompileErrorIsAudited(t *testing.T) {
	t.Parallel()
	exec := &mockExecutor{}
	auditor := &recordingAuditor{}
	svc := NewQueryService(newMemRepo(salesProfile()), domain.NewAllowListValidator(), exec, auditor, testLogger(), nil, nil)

	_, err := svc.Execute(context.Background(), "sales_abc", &domain.QueryIntent{
		Metrics: []domain.Metric{{Function: domain.AggSum, Column: "units_sold"}},
	})
	require.ErrorIs(t, err, domain.ErrUnsupportedRole)
	assert.False(t, exec.executeCalled)

	entries := auditor.all()
	require.Len(t, entries, 1)
	assert.ErrorIs(t, entries[0].Err, domain.ErrUnsupportedRole)
	assert.False(t, entries[0].Executed)
	assert.Empty(t, entries[0].SQL)
}

func TestQueryService_ValidatorRejection(t *testing.T) {
	t.Parallel()
	exec := &mockExecutor{}
	rejection := fmt.Errorf("%w: relation not allowed", domain.ErrValidationRejected)
	svc := NewQueryService(newMemRepo(salesProfile()), rejectingValidator{err: rejection}, exec, audit.NoopAuditor{}, testLogger(), nil, nil)

	_, err := svc.Execute(context.Background(), "sales_abc", revenueByRegion())
	require.ErrorIs(t, err, domain.ErrValidationRejected)
	assert.False(t, exec.executeCalled, "executor should not be called for rejected queries")
}

func TestQueryService_DryRun(t *testing.T) {
	t.Parallel()
	exec := &mockExecutor{}
	svc := newService(newMemRepo(salesProfile()), exec, WithDryRun(true))

	res, err := svc.Execute(context.Background(), "sales_abc", revenueByRegion())
	require.NoError(t, err)
	assert.False(t, exec.executeCalled)
	assert.False(t, res.Executed)
	assert.NotNil(t, res.Query)
}

func TestQueryService_ExecutorError(t *testing.T) {
	t.Parallel()
	exec := &mockExecutor{err: fmt.Errorf("connection refused")}
	svc := newService(newMemRepo(salesProfile()), exec)

	_, err := svc.Execute(context.Background(), "sales_abc", revenueByRegion())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestQueryService_Compile(t *testing.T) {
	t.Parallel()
	exec := &mockExecutor{}
	svc := newService(newMemRepo(salesProfile()), exec)

	q, err := svc.Compile(context.Background(), "sales_abc", revenueByRegion())
	require.NoError(t, err)
	assert.False(t, exec.executeCalled)
	assert.Equal(t, "sales_abc", q.Table)
	assert.Contains(t, q.SQL(), "@region_values")
}

func TestQueryService_CachesReadyProfiles(t *testing.T) {
	t.Parallel()
	repo := newMemRepo(salesProfile())
	svc := newService(repo, &mockExecutor{})

	for range 3 {
		_, err := svc.Compile(context.Background(), "sales_abc", revenueByRegion())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, repo.getCount())
}

func TestQueryService_DoesNotCachePendingProfiles(t *testing.T) {
	t.Parallel()
	pending := salesProfile()
	pending.Status = domain.StatusProcessing
	repo := newMemRepo(pending)
	svc := newService(repo, &mockExecutor{})

	_, err := svc.Compile(context.Background(), "sales_abc", revenueByRegion())
	require.ErrorIs(t, err, domain.ErrProfileNotReady)

	require.NoError(t, repo.Publish(context.Background(), salesProfile()))
	_, err = svc.Compile(context.Background(), "sales_abc", revenueByRegion())
	require.NoError(t, err)
}

func TestQueryService_Ask(t *testing.T) {
	t.Parallel()
	planner := &mockPlanner{intent: revenueByRegion()}
	exec := &mockExecutor{result: []map[string]any{{"region": "North"}}}
	svc := newService(newMemRepo(salesProfile()), exec, WithPlanner(planner))
	require.True(t, svc.CanAsk())

	ans, err := svc.Ask(context.Background(), "sales_abc", "revenue in the north?")
	require.NoError(t, err)
	assert.Equal(t, "revenue in the north?", planner.lastQuestion)
	assert.Equal(t, planner.intent, ans.Intent)
	assert.Len(t, ans.Rows, 1)
}

func TestQueryService_AskPlannerError(t *testing.T) {
	t.Parallel()
	planner := &mockPlanner{err: fmt.Errorf("%w: bad json", domain.ErrInvalidIntent)}
	exec := &mockExecutor{}
	svc := newService(newMemRepo(salesProfile()), exec, WithPlanner(planner))

	_, err := svc.Ask(context.Background(), "sales_abc", "?")
	require.ErrorIs(t, err, domain.ErrInvalidIntent)
	assert.False(t, exec.executeCalled)
}

func TestQueryService_AskWithoutPlanner(t *testing.T) {
	t.Parallel()
	svc := newService(newMemRepo(salesProfile()), &mockExecutor{})
	assert.False(t, svc.CanAsk())

	_, err := svc.Ask(context.Background(), "sales_abc", "anything")
	assert.ErrorIs(t, err, ErrPlannerUnavailable)
}
