package port

import "context"

// Instrumentation records application-level metrics.
type Instrumentation interface {
	RecordQueryDuration(ctx context.Context, ms float64)
	IncrementQueryCount(ctx context.Context)
	IncrementQueryErrors(ctx context.Context)
	IncrementCompileCount(ctx context.Context)
	IncrementCompileRejections(ctx context.Context, kind string)
	RecordProfileDuration(ctx context.Context, ms float64, status string)
	RecordToolDuration(ctx context.Context, ms float64)
}

// NoopInstrumentation discards all metrics.
type NoopInstrumentation struct{}

func (NoopInstrumentation) RecordQueryDuration(context.Context, float64)           {}
func (NoopInstrumentation) IncrementQueryCount(context.Context)                    {}
func (NoopInstrumentation) IncrementQueryErrors(context.Context)                   {}
func (NoopInstrumentation) IncrementCompileCount(context.Context)                  {}
func (NoopInstrumentation) IncrementCompileRejections(context.Context, string)     {}
func (NoopInstrumentation) RecordProfileDuration(context.Context, float64, string) {}
func (NoopInstrumentation) RecordToolDuration(context.Context, float64)            {}
