package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/guillermoBallester/tally"

// Instruments holds pre-created OTel metric instruments.
type Instruments struct {
	QueryCount        metric.Int64Counter
	QueryDuration     metric.Float64Histogram
	QueryErrors       metric.Int64Counter
	CompileCount      metric.Int64Counter
	CompileRejections metric.Int64Counter
	ProfileDuration   metric.Float64Histogram
	ToolDuration      metric.Float64Histogram
}

// NewInstruments creates metric instruments from the global MeterProvider.
func NewInstruments() *Instruments {
	return newInstrumentsFromMeter(otel.Meter(meterName))
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	return newInstrumentsFromMeter(noop.NewMeterProvider().Meter(meterName))
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	queryCount, _ := meter.Int64Counter("tally.query.count",
		metric.WithDescription("Total number of compiled queries executed"),
	)
	queryDuration, _ := meter.Float64Histogram("tally.query.duration",
		metric.WithDescription("Query execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	queryErrors, _ := meter.Int64Counter("tally.query.errors",
		metric.WithDescription("Total number of failed query executions"),
	)
	compileCount, _ := meter.Int64Counter("tally.compile.count",
		metric.WithDescription("Total number of intents compiled and validated"),
	)
	compileRejections, _ := meter.Int64Counter("tally.compile.rejections",
		metric.WithDescription("Intents rejected by the compiler or the allow-list validator"),
	)
	profileDuration, _ := meter.Float64Histogram("tally.profile.duration",
		metric.WithDescription("Dataset profiling duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	toolDuration, _ := meter.Float64Histogram("tally.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		QueryCount:        queryCount,
		QueryDuration:     queryDuration,
		QueryErrors:       queryErrors,
		CompileCount:      compileCount,
		CompileRejections: compileRejections,
		ProfileDuration:   profileDuration,
		ToolDuration:      toolDuration,
	}
}

func (i *Instruments) RecordQueryDuration(ctx context.Context, ms float64) {
	i.QueryDuration.Record(ctx, ms)
}

func (i *Instruments) IncrementQueryCount(ctx context.Context) {
	i.QueryCount.Add(ctx, 1)
}

func (i *Instruments) IncrementQueryErrors(ctx context.Context) {
	i.QueryErrors.Add(ctx, 1)
}

func (i *Instruments) IncrementCompileCount(ctx context.Context) {
	i.CompileCount.Add(ctx, 1)
}

func (i *Instruments) IncrementCompileRejections(ctx context.Context, kind string) {
	i.CompileRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("error.kind", kind)))
}

func (i *Instruments) RecordProfileDuration(ctx context.Context, ms float64, status string) {
	i.ProfileDuration.Record(ctx, ms, metric.WithAttributes(attribute.String("profile.status", status)))
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}
