package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guillermoBallester/tally/internal/core/domain"
	"github.com/guillermoBallester/tally/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ErrPlannerUnavailable is returned by Ask when no intent planner is wired.
var ErrPlannerUnavailable = errors.New("intent planner not configured")

type toolNameKey struct{}

// WithToolName returns a context carrying the MCP tool name for audit logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// Result is the outcome of one compile-and-execute request.
type Result struct {
	RequestID string                `json:"requestId"`
	Query     *domain.CompiledQuery `json:"query"`
	Rows      []map[string]any      `json:"rows"`
	Executed  bool                  `json:"executed"`
}

// Answer pairs a planned intent with its result.
type Answer struct {
	Intent *domain.QueryIntent `json:"intent"`
	*Result
}

// QueryOption configures a QueryService.
type QueryOption func(*QueryService)

// WithPlanner enables Ask.
func WithPlanner(p port.IntentPlanner) QueryOption {
	return func(s *QueryService) { s.planner = p }
}

// WithDryRun makes Execute stop after validation.
func WithDryRun(dryRun bool) QueryOption {
	return func(s *QueryService) { s.dryRun = dryRun }
}

// QueryService orchestrates compilation and validation (domain) and
// execution (infrastructure).
type QueryService struct {
	profiles  port.ProfileRepository
	validator port.QueryValidator
	executor  port.QueryExecutor
	planner   port.IntentPlanner
	auditor   port.QueryAuditor
	logger    *slog.Logger
	tracer    trace.Tracer
	inst      port.Instrumentation
	dryRun    bool

	mu    sync.RWMutex
	ready map[string]*domain.SchemaProfile
}

func NewQueryService(profiles port.ProfileRepository, validator port.QueryValidator, executor port.QueryExecutor, auditor port.QueryAuditor, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation, opts ...QueryOption) *QueryService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	s := &QueryService{
		profiles:  profiles,
		validator: validator,
		executor:  executor,
		auditor:   auditor,
		logger:    logger,
		tracer:    tracer,
		inst:      inst,
		ready:     make(map[string]*domain.SchemaProfile),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CanAsk reports whether a planner is configured.
func (s *QueryService) CanAsk() bool {
	return s.planner != nil
}

// Compile turns intent into a validated statement for table without running it.
func (s *QueryService) Compile(ctx context.Context, table string, intent *domain.QueryIntent) (*domain.CompiledQuery, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.Compile",
		trace.WithAttributes(attribute.String("dataset.table", table)),
	)
	defer span.End()

	start := time.Now()
	q, err := s.compile(ctx, table, intent)
	s.record(ctx, uuid.NewString(), table, q, nil, false, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("db.statement", q.SQL()))
	return q, nil
}

// Execute compiles intent, validates it and, unless dry-run is set, runs it.
func (s *QueryService) Execute(ctx context.Context, table string, intent *domain.QueryIntent) (*Result, error) {
	requestID := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "QueryService.Execute",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation.name", "select"),
			attribute.String("dataset.table", table),
			attribute.String("request.id", requestID),
		),
	)
	defer span.End()

	start := time.Now()
	q, err := s.compile(ctx, table, intent)
	if err != nil {
		s.record(ctx, requestID, table, nil, nil, false, time.Since(start), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("db.statement", q.SQL()))

	res := &Result{RequestID: requestID, Query: q}
	if s.dryRun {
		s.record(ctx, requestID, table, q, nil, false, time.Since(start), nil)
		return res, nil
	}

	execStart := time.Now()
	rows, err := s.executor.Execute(ctx, q)
	durationMS := time.Since(execStart).Milliseconds()
	s.inst.RecordQueryDuration(ctx, float64(durationMS))
	s.record(ctx, requestID, table, q, rows, true, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementQueryErrors(ctx)
		return nil, fmt.Errorf("executing query: %w", err)
	}

	s.inst.IncrementQueryCount(ctx)
	span.SetAttributes(attribute.Int("db.response.rows", len(rows)))
	res.Rows = rows
	res.Executed = true
	return res, nil
}

// Ask plans an intent for question and executes it.
func (s *QueryService) Ask(ctx context.Context, table, question string) (*Answer, error) {
	if s.planner == nil {
		return nil, ErrPlannerUnavailable
	}
	profile, err := s.profile(ctx, table)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "QueryService.Ask",
		trace.WithAttributes(attribute.String("dataset.table", table)),
	)
	defer span.End()

	intent, err := s.planner.Plan(ctx, question, profile)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("planning intent: %w", err)
	}

	res, err := s.Execute(ctx, table, intent)
	if err != nil {
		return &Answer{Intent: intent}, err
	}
	return &Answer{Intent: intent, Result: res}, nil
}

func (s *QueryService) compile(ctx context.Context, table string, intent *domain.QueryIntent) (*domain.CompiledQuery, error) {
	profile, err := s.profile(ctx, table)
	if err != nil {
		return nil, err
	}

	s.inst.IncrementCompileCount(ctx)
	q, err := domain.Compile(profile, intent)
	if err != nil {
		s.reject(ctx, table, nil, err)
		return nil, fmt.Errorf("compiling: %w", err)
	}
	if err := s.validator.Validate(q, profile); err != nil {
		s.reject(ctx, table, q, err)
		return nil, fmt.Errorf("validation: %w", err)
	}
	return q, nil
}

func (s *QueryService) reject(ctx context.Context, table string, q *domain.CompiledQuery, err error) {
	kind := domain.ErrorKind(err)
	s.inst.IncrementCompileRejections(ctx, kind)
	attrs := []any{
		slog.String("db.operation.name", "select"),
		slog.String("dataset.table", table),
		slog.String("error.type", kind),
	}
	if q != nil {
		attrs = append(attrs, slog.String("db.statement", q.SQL()))
	}
	s.logger.WarnContext(ctx, "query rejected", attrs...)
}

// profile returns the ready profile for table. Ready profiles never change,
// so they are cached for the life of the service.
func (s *QueryService) profile(ctx context.Context, table string) (*domain.SchemaProfile, error) {
	s.mu.RLock()
	p, ok := s.ready[table]
	s.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := s.profiles.Get(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("loading profile for %q: %w", table, err)
	}
	if !p.Ready() {
		if p.Status == domain.StatusError {
			return nil, fmt.Errorf("%w: dataset %q failed profiling: %s", domain.ErrProfileNotReady, table, p.Error)
		}
		return nil, fmt.Errorf("%w: dataset %q is %s", domain.ErrProfileNotReady, table, p.Status)
	}

	s.mu.Lock()
	s.ready[table] = p
	s.mu.Unlock()
	return p, nil
}

func (s *QueryService) record(ctx context.Context, requestID, table string, q *domain.CompiledQuery, rows []map[string]any, executed bool, d time.Duration, err error) {
	entry := port.AuditEntry{
		RequestID:    requestID,
		Tool:         toolNameFromCtx(ctx),
		Dataset:      table,
		RowsReturned: len(rows),
		DurationMS:   d.Milliseconds(),
		Executed:     executed,
		Err:          err,
	}
	if q != nil {
		entry.SQL = q.SQL()
		entry.ParamCount = len(q.Params)
	}
	s.auditor.Record(ctx, entry)
}
