package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/guillermoBallester/tally/internal/adapter/mcp"
	"github.com/guillermoBallester/tally/internal/adapter/openai"
	"github.com/guillermoBallester/tally/internal/adapter/postgres"
	"github.com/guillermoBallester/tally/internal/audit"
	"github.com/guillermoBallester/tally/internal/config"
	"github.com/guillermoBallester/tally/internal/core/domain"
	"github.com/guillermoBallester/tally/internal/core/port"
	"github.com/guillermoBallester/tally/internal/core/service"
	"github.com/guillermoBallester/tally/internal/telemetry"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags turns command-line arguments into config overrides. Only flags
// that were explicitly set produce non-nil pointers.
func parseFlags(args []string) (config.Overrides, error) {
	fs := pflag.NewFlagSet("tally", pflag.ContinueOnError)

	databaseURL := fs.String("database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	schema := fs.String("schema", "", "schema holding registered datasets (overrides SCHEMA)")
	logLevel := fs.String("log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	maxRows := fs.Int("max-rows", 0, "maximum rows returned per query (overrides MAX_ROWS)")
	queryTimeout := fs.Duration("query-timeout", 0, "per-query timeout (overrides QUERY_TIMEOUT)")
	rolesFile := fs.String("roles-file", "", "YAML file with extra role keywords (overrides ROLES_FILE)")
	sampleSize := fs.Int("sample-size", 0, "values inspected per column by the type sampler (overrides SAMPLE_SIZE)")
	auditLog := fs.String("audit-log", "", "path to NDJSON audit log (overrides AUDIT_LOG)")
	openAIModel := fs.String("openai-model", "", "model used to plan natural-language questions (overrides OPENAI_MODEL)")
	poolMaxConns := fs.Int32("pool-max-conns", 0, "maximum pool connections (overrides POOL_MAX_CONNS)")
	poolMinConns := fs.Int32("pool-min-conns", 0, "minimum pool connections (overrides POOL_MIN_CONNS)")
	poolMaxConnLifetime := fs.Duration("pool-max-conn-lifetime", 0, "maximum connection lifetime (overrides POOL_MAX_CONN_LIFETIME)")
	otelEnabled := fs.Bool("otel", false, "enable OpenTelemetry tracing and metrics")
	dryRun := fs.Bool("dry-run", false, "compile and validate queries without executing them")

	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}

	o := config.Overrides{
		OTelEnabled: *otelEnabled,
		DryRun:      *dryRun,
	}
	if fs.Changed("database-url") {
		o.DatabaseURL = databaseURL
	}
	if fs.Changed("schema") {
		o.Schema = schema
	}
	if fs.Changed("log-level") {
		o.LogLevel = logLevel
	}
	if fs.Changed("max-rows") {
		o.MaxRows = maxRows
	}
	if fs.Changed("query-timeout") {
		o.QueryTimeout = queryTimeout
	}
	if fs.Changed("roles-file") {
		o.RolesFile = rolesFile
	}
	if fs.Changed("sample-size") {
		o.SampleSize = sampleSize
	}
	if fs.Changed("audit-log") {
		o.AuditLog = auditLog
	}
	if fs.Changed("openai-model") {
		o.OpenAIModel = openAIModel
	}
	if fs.Changed("pool-max-conns") {
		o.PoolMaxConns = poolMaxConns
	}
	if fs.Changed("pool-min-conns") {
		o.PoolMinConns = poolMinConns
	}
	if fs.Changed("pool-max-conn-lifetime") {
		o.PoolMaxConnLifetime = poolMaxConnLifetime
	}
	return o, nil
}

// redactDSN masks the password of a connection URL for logging.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func run(args []string) error {
	overrides, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr; stdout is reserved for the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting tally",
		slog.String("version", version),
		slog.String("database", redactDSN(cfg.DatabaseURL)),
		slog.String("schema", cfg.Schema),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.Int("max_rows", cfg.MaxRows),
		slog.String("query_timeout", cfg.QueryTimeout.String()),
		slog.Bool("dry_run", cfg.DryRun),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var (
		tracer trace.Tracer         = telemetry.NoopTracer()
		inst   port.Instrumentation = port.NoopInstrumentation{}
	)
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, "tally", version)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
			}
		}()
		tracer = otel.Tracer("github.com/guillermoBallester/tally")
		inst = telemetry.NewInstruments()
		logger.Info("opentelemetry enabled")
	}

	keywords, err := config.LoadRoleKeywords(cfg.RolesFile)
	if err != nil {
		return fmt.Errorf("loading roles: %w", err)
	}
	if keywords != nil {
		keywords = domain.MergeRoleKeywords(domain.DefaultRoleKeywords, keywords)
		logger.Info("role keywords loaded", slog.String("file", cfg.RolesFile))
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxConns:        cfg.PoolMaxConns,
		MinConns:        cfg.PoolMinConns,
		MaxConnLifetime: cfg.PoolMaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	logger.Info("database pool connected", slog.String("db.system", "postgresql"))

	if err := postgres.Migrate(pool, logger); err != nil {
		return fmt.Errorf("migrating profile store: %w", err)
	}

	db := postgres.OpenDB(pool)
	defer func() { _ = db.Close() }()

	var auditor port.QueryAuditor = audit.NoopAuditor{}
	if cfg.AuditLog != "" {
		fa, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		auditor = fa
		logger.Info("audit log enabled", slog.String("file", cfg.AuditLog))
	}
	defer func() { _ = auditor.Close() }()

	// Adapters
	repo := postgres.NewProfileRepository(db)
	reader := postgres.NewReader(pool, cfg.Schema)
	executor := postgres.NewExecutor(pool, cfg.Schema, cfg.MaxRows, cfg.QueryTimeout)

	queryOpts := []service.QueryOption{service.WithDryRun(cfg.DryRun)}
	if cfg.OpenAIAPIKey != "" {
		client := openai.NewClient(openai.Config{
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
		})
		queryOpts = append(queryOpts, service.WithPlanner(openai.NewPlanner(client, cfg.OpenAIModel, logger)))
		logger.Info("intent planner enabled", slog.String("model", cfg.OpenAIModel))
	}

	// Services
	profilerSvc := service.NewProfilerService(repo, reader, logger, tracer, inst, service.ProfilerOptions{
		SampleSize:  cfg.SampleSize,
		RowLimit:    cfg.ProfileRowLimit,
		DistinctCap: cfg.DistinctValuesCap,
		Keywords:    keywords,
	})
	defer profilerSvc.Wait()

	querySvc := service.NewQueryService(repo, domain.NewAllowListValidator(), executor, auditor, logger, tracer, inst, queryOpts...)

	mcpServer := mcp.NewServer(version, profilerSvc, querySvc, logger, tracer, inst)
	stdioServer := mcpserver.NewStdioServer(mcpServer)

	logger.Info("serving MCP over stdio")
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
