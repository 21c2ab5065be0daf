package port

import (
	"context"

	"github.com/guillermoBallester/tally/internal/core/domain"
)

// QueryExecutor runs a compiled statement and returns its rows.
type QueryExecutor interface {
	Execute(ctx context.Context, q *domain.CompiledQuery) ([]map[string]any, error)
}

// IntentPlanner turns a natural-language question into a query intent for
// the given dataset.
type IntentPlanner interface {
	Plan(ctx context.Context, question string, profile *domain.SchemaProfile) (*domain.QueryIntent, error)
}
