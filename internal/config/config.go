package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	// Database connection.
	DatabaseURL  string        `env:"DATABASE_URL"`
	Schema       string        `env:"SCHEMA" env-default:"public"`
	MaxRows      int           `env:"MAX_ROWS" env-default:"100"`
	QueryTimeout time.Duration `env:"QUERY_TIMEOUT" env-default:"10s"`

	// Profiling.
	RolesFile         string `env:"ROLES_FILE"` // optional path to role keyword YAML
	SampleSize        int    `env:"SAMPLE_SIZE" env-default:"500"`
	ProfileRowLimit   int    `env:"PROFILE_ROW_LIMIT" env-default:"2000"`
	DistinctValuesCap int    `env:"DISTINCT_VALUES_CAP" env-default:"2000"`

	// Logging. LogLevel is derived from LogLevelName.
	LogLevelName string     `env:"LOG_LEVEL" env-default:"info"`
	LogLevel     slog.Level

	// Connection pool.
	PoolMaxConns        int32         `env:"POOL_MAX_CONNS" env-default:"5"`
	PoolMinConns        int32         `env:"POOL_MIN_CONNS" env-default:"1"`
	PoolMaxConnLifetime time.Duration `env:"POOL_MAX_CONN_LIFETIME" env-default:"30m"`

	// Observability.
	OTelEnabled bool   `env:"OTEL_ENABLED" env-default:"false"`
	AuditLog    string `env:"AUDIT_LOG"` // path to NDJSON audit log file

	// Intent planner. Natural-language questions are disabled without a key.
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"OPENAI_MODEL"`

	// DryRun compiles and validates queries but never executes them.
	DryRun bool `env:"DRY_RUN" env-default:"false"`
}

// Overrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	DatabaseURL  *string
	Schema       *string
	LogLevel     *string
	MaxRows      *int
	QueryTimeout *time.Duration
	RolesFile    *string
	SampleSize   *int
	AuditLog     *string
	OpenAIModel  *string
	OTelEnabled  bool
	DryRun       bool

	// Connection pool overrides.
	PoolMaxConns        *int32
	PoolMinConns        *int32
	PoolMaxConnLifetime *time.Duration
}

// Load builds a Config from environment variables, then applies CLI overrides,
// then validates the result.
func Load(overrides Overrides) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	level, err := parseLogLevel(cfg.LogLevelName)
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if err := applyOverrides(&cfg, overrides); err != nil {
		return nil, err
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyOverrides applies CLI flag values on top of the env-loaded config.
func applyOverrides(cfg *Config, o Overrides) error {
	if o.DatabaseURL != nil {
		cfg.DatabaseURL = *o.DatabaseURL
	}
	if o.Schema != nil {
		cfg.Schema = *o.Schema
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevelName = *o.LogLevel
		cfg.LogLevel = level
	}
	if o.MaxRows != nil {
		if *o.MaxRows <= 0 {
			return fmt.Errorf("invalid --max-rows value: must be a positive integer")
		}
		cfg.MaxRows = *o.MaxRows
	}
	if o.QueryTimeout != nil {
		cfg.QueryTimeout = *o.QueryTimeout
	}
	if o.RolesFile != nil {
		cfg.RolesFile = *o.RolesFile
	}
	if o.SampleSize != nil {
		if *o.SampleSize <= 0 {
			return fmt.Errorf("invalid --sample-size value: must be a positive integer")
		}
		cfg.SampleSize = *o.SampleSize
	}
	if o.AuditLog != nil {
		cfg.AuditLog = *o.AuditLog
	}
	if o.OpenAIModel != nil {
		cfg.OpenAIModel = *o.OpenAIModel
	}

	if err := applyPoolOverrides(cfg, o); err != nil {
		return err
	}

	cfg.DryRun = cfg.DryRun || o.DryRun
	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled

	return nil
}

// applyPoolOverrides applies connection pool CLI flag overrides.
func applyPoolOverrides(cfg *Config, o Overrides) error {
	if o.PoolMaxConns != nil {
		if *o.PoolMaxConns <= 0 {
			return fmt.Errorf("invalid --pool-max-conns value: must be a positive integer")
		}
		cfg.PoolMaxConns = *o.PoolMaxConns
	}
	if o.PoolMinConns != nil {
		if *o.PoolMinConns < 0 {
			return fmt.Errorf("invalid --pool-min-conns value: must be a non-negative integer")
		}
		cfg.PoolMinConns = *o.PoolMinConns
	}
	if o.PoolMaxConnLifetime != nil {
		cfg.PoolMaxConnLifetime = *o.PoolMaxConnLifetime
	}
	return nil
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required (set via env var or --database-url flag)")
	}
	if strings.TrimSpace(cfg.Schema) == "" {
		return fmt.Errorf("SCHEMA must not be empty")
	}
	if cfg.MaxRows <= 0 {
		return fmt.Errorf("invalid MAX_ROWS value %d: must be a positive integer", cfg.MaxRows)
	}
	if cfg.QueryTimeout <= 0 {
		return fmt.Errorf("invalid QUERY_TIMEOUT value %s: must be positive", cfg.QueryTimeout)
	}
	if cfg.SampleSize <= 0 {
		return fmt.Errorf("invalid SAMPLE_SIZE value %d: must be a positive integer", cfg.SampleSize)
	}
	if cfg.ProfileRowLimit <= 0 {
		return fmt.Errorf("invalid PROFILE_ROW_LIMIT value %d: must be a positive integer", cfg.ProfileRowLimit)
	}
	if cfg.DistinctValuesCap <= 0 {
		return fmt.Errorf("invalid DISTINCT_VALUES_CAP value %d: must be a positive integer", cfg.DistinctValuesCap)
	}
	if cfg.PoolMaxConns <= 0 {
		return fmt.Errorf("invalid POOL_MAX_CONNS value %d: must be a positive integer", cfg.PoolMaxConns)
	}
	if cfg.PoolMinConns < 0 {
		return fmt.Errorf("invalid POOL_MIN_CONNS value %d: must be a non-negative integer", cfg.PoolMinConns)
	}
	if cfg.PoolMinConns > cfg.PoolMaxConns {
		return fmt.Errorf("POOL_MIN_CONNS (%d) must not exceed POOL_MAX_CONNS (%d)", cfg.PoolMinConns, cfg.PoolMaxConns)
	}

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
