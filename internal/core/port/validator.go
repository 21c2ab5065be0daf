package port

import "github.com/guillermoBallester/tally/internal/core/domain"

// QueryValidator gates a compiled statement before execution.
type QueryValidator interface {
	Validate(q *domain.CompiledQuery, profile *domain.SchemaProfile) error
}
