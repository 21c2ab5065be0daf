package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/guillermoBallester/tally/internal/core/domain"
	"github.com/guillermoBallester/tally/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

// ProfilerOptions bounds the work of one profiling pass.
type ProfilerOptions struct {
	// SampleSize caps the values the type sampler looks at per column.
	SampleSize int
	// RowLimit caps the rows loaded for per-column statistics.
	RowLimit int
	// DistinctCap caps the observed values stored per categorical role.
	DistinctCap int
	// Parallelism bounds concurrent per-role queries.
	Parallelism int
	// Keywords overrides the role keyword lists; nil uses the defaults.
	Keywords map[domain.Role][]string
}

func (o ProfilerOptions) withDefaults() ProfilerOptions {
	if o.SampleSize <= 0 {
		o.SampleSize = domain.DefaultSampleSize
	}
	if o.RowLimit <= 0 {
		o.RowLimit = 2000
	}
	if o.DistinctCap <= 0 {
		o.DistinctCap = 2000
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 4
	}
	return o
}

// ProfilerService builds and publishes schema profiles for uploaded tables.
type ProfilerService struct {
	repo   port.ProfileRepository
	reader port.DatasetReader
	logger *slog.Logger
	tracer trace.Tracer
	inst   port.Instrumentation
	opts   ProfilerOptions

	wg sync.WaitGroup
}

func NewProfilerService(repo port.ProfileRepository, reader port.DatasetReader, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation, opts ProfilerOptions) *ProfilerService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &ProfilerService{
		repo:   repo,
		reader: reader,
		logger: logger,
		tracer: tracer,
		inst:   inst,
		opts:   opts.withDefaults(),
	}
}

// Register writes the processing placeholder for table and profiles it in
// the background. The job outlives ctx's cancellation.
func (s *ProfilerService) Register(ctx context.Context, table, fileName string) error {
	if err := s.repo.CreatePending(ctx, table, fileName); err != nil {
		return fmt.Errorf("registering dataset %q: %w", table, err)
	}
	jobCtx := context.WithoutCancel(ctx)
	s.wg.Go(func() {
		if _, err := s.Profile(jobCtx, table); err != nil {
			s.logger.ErrorContext(jobCtx, "profiling failed",
				slog.String("dataset.table", table),
				slog.String("error.type", domain.ErrorKind(err)),
				slog.String("error", err.Error()),
			)
		}
	})
	return nil
}

// Wait blocks until every background job started by Register has finished.
func (s *ProfilerService) Wait() {
	s.wg.Wait()
}

// Status returns the stored profile for table in whatever state it is.
func (s *ProfilerService) Status(ctx context.Context, table string) (*domain.SchemaProfile, error) {
	return s.repo.Get(ctx, table)
}

// List returns a summary of every registered dataset.
func (s *ProfilerService) List(ctx context.Context) ([]port.ProfileSummary, error) {
	return s.repo.List(ctx)
}

// Profile runs one profiling pass over table and publishes the outcome. A
// failed pass is published as an error profile and its cause returned.
func (s *ProfilerService) Profile(ctx context.Context, table string) (*domain.SchemaProfile, error) {
	ctx, span := s.tracer.Start(ctx, "ProfilerService.Profile",
		trace.WithAttributes(attribute.String("dataset.table", table)),
	)
	defer span.End()

	start := time.Now()
	profile, err := s.repo.Get(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("loading pending profile: %w", err)
	}

	buildErr := s.build(ctx, profile)
	if buildErr != nil {
		profile.Fail(buildErr.Error())
		span.RecordError(buildErr)
		span.SetStatus(codes.Error, buildErr.Error())
	} else {
		profile.Status = domain.StatusReady
	}
	profile.Version = domain.ProfileVersion

	if err := s.repo.Publish(ctx, profile); err != nil {
		return nil, fmt.Errorf("publishing profile: %w", err)
	}
	s.inst.RecordProfileDuration(ctx, float64(time.Since(start).Milliseconds()), string(profile.Status))

	s.logger.InfoContext(ctx, "profile published",
		slog.String("dataset.table", table),
		slog.String("status", string(profile.Status)),
		slog.Int("columns", len(profile.Columns)),
		slog.Int64("rows", profile.Stats.RowCount),
	)
	if buildErr != nil {
		return profile, buildErr
	}
	return profile, nil
}

func (s *ProfilerService) build(ctx context.Context, profile *domain.SchemaProfile) error {
	table := profile.TableName

	names, err := s.reader.Columns(ctx, table)
	if err != nil {
		return fmt.Errorf("listing columns: %w", err)
	}
	if len(names) == 0 {
		return fmt.Errorf("%w: %q has no columns", domain.ErrNotFound, table)
	}

	counts, err := s.reader.ColumnCounts(ctx, table, names)
	if err != nil {
		return fmt.Errorf("counting rows: %w", err)
	}
	if counts.RowCount == 0 {
		return domain.ErrEmptyDataset
	}

	samples, err := s.reader.SampleColumns(ctx, table, names, s.opts.RowLimit)
	if err != nil {
		return fmt.Errorf("sampling columns: %w", err)
	}

	columns := domain.ProfileColumns(samples, s.opts.SampleSize)
	for i := range columns {
		if n, ok := counts.Distinct[columns[i].Name]; ok {
			columns[i].DistinctCount = n
		}
		columns[i].Cardinality = domain.ClassifyCardinality(columns[i].DistinctCount, counts.RowCount)
	}
	profile.Columns = columns
	profile.Stats = domain.Stats{RowCount: counts.RowCount}

	assignment := domain.MapRoles(columns, s.opts.Keywords)
	profile.RoleMapping = assignment.Mapping
	profile.AmbiguousRoles = assignment.Ambiguous

	return s.fetchRoleValues(ctx, profile)
}

// fetchRoleValues loads the observed value sets of the categorical roles and
// the full date range, in parallel.
func (s *ProfilerService) fetchRoleValues(ctx context.Context, profile *domain.SchemaProfile) error {
	table := profile.TableName
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Parallelism)

	var mu sync.Mutex
	profile.DistinctValues = make(map[domain.Role][]string)

	for _, role := range domain.Roles {
		col, ok := profile.ColumnFor(role)
		if !ok {
			continue
		}
		switch {
		case role.Categorical():
			g.Go(func() error {
				values, truncated, err := s.reader.DistinctValues(gctx, table, col.Name, s.opts.DistinctCap)
				if err != nil {
					return fmt.Errorf("distinct values of %q: %w", col.Name, err)
				}
				mu.Lock()
				defer mu.Unlock()
				profile.DistinctValues[role] = values
				if truncated {
					profile.DistinctTruncated = append(profile.DistinctTruncated, role)
				}
				return nil
			})
		case role == domain.RoleDate:
			// Text date columns are still ranged; the reader parses them client-side.
			g.Go(func() error {
				minDate, maxDate, err := s.reader.DateRange(gctx, table, col.Name)
				if err != nil {
					return fmt.Errorf("date range of %q: %w", col.Name, err)
				}
				mu.Lock()
				defer mu.Unlock()
				profile.Stats.MinDate = minDate
				profile.Stats.MaxDate = maxDate
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	slices.Sort(profile.DistinctTruncated)
	return nil
}
