package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guillermoBallester/tally/internal/core/domain"
)

func TestLoad_Valid(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")

	cfg, err := Load(Overrides{})
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, "public", cfg.Schema)
	assert.Equal(t, 100, cfg.MaxRows)
	assert.Equal(t, 10*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 500, cfg.SampleSize)
	assert.Equal(t, 2000, cfg.ProfileRowLimit)
	assert.Equal(t, 2000, cfg.DistinctValuesCap)
	assert.Equal(t, int32(5), cfg.PoolMaxConns)
	assert.Equal(t, int32(1), cfg.PoolMinConns)
	assert.Equal(t, 30*time.Minute, cfg.PoolMaxConnLifetime)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.DryRun)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_EnvVars(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("SCHEMA", "sales")
	t.Setenv("MAX_ROWS", "500")
	t.Setenv("QUERY_TIMEOUT", "30s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ROLES_FILE", "/tmp/roles.yaml")
	t.Setenv("SAMPLE_SIZE", "50")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("DRY_RUN", "true")

	cfg, err := Load(Overrides{})
	require.NoError(t, err)

	assert.Equal(t, "sales", cfg.Schema)
	assert.Equal(t, 500, cfg.MaxRows)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "/tmp/roles.yaml", cfg.RolesFile)
	assert.Equal(t, 50, cfg.SampleSize)
	assert.Equal(t, "gpt-4o", cfg.OpenAIModel)
	assert.True(t, cfg.DryRun)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/test")
	t.Setenv("MAX_ROWS", "500")

	url := "postgres://flag/test"
	rows := 20
	level := "warn"
	cfg, err := Load(Overrides{DatabaseURL: &url, MaxRows: &rows, LogLevel: &level, DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, url, cfg.DatabaseURL)
	assert.Equal(t, 20, cfg.MaxRows)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
	assert.True(t, cfg.DryRun)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"max rows", "MAX_ROWS", "-1", "MAX_ROWS"},
		{"query timeout", "QUERY_TIMEOUT", "not-a-duration", ""},
		{"log level", "LOG_LEVEL", "invalid", "LOG_LEVEL"},
		{"sample size", "SAMPLE_SIZE", "0", "SAMPLE_SIZE"},
		{"distinct cap", "DISTINCT_VALUES_CAP", "0", "DISTINCT_VALUES_CAP"},
		{"empty schema", "SCHEMA", " ", "SCHEMA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/test")
			t.Setenv(tt.key, tt.val)

			_, err := Load(Overrides{})
			require.Error(t, err)
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestLoad_PoolMinExceedsMax(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("POOL_MAX_CONNS", "2")
	t.Setenv("POOL_MIN_CONNS", "3")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POOL_MIN_CONNS")
}

func TestLoad_InvalidOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")

	zero := 0
	_, err := Load(Overrides{MaxRows: &zero})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--max-rows")
}

func writeRoles(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadRoleKeywords(t *testing.T) {
	t.Parallel()

	path := writeRoles(t, `
roles:
  region: [zone, district]
  Revenue: [gross]
`)
	kws, err := LoadRoleKeywords(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"zone", "district"}, kws[domain.RoleRegion])
	assert.Equal(t, []string{"gross"}, kws[domain.RoleRevenue])
}

func TestLoadRoleKeywords_EmptyPath(t *testing.T) {
	t.Parallel()

	kws, err := LoadRoleKeywords("")
	require.NoError(t, err)
	assert.Nil(t, kws)
}

func TestLoadRoleKeywords_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"unknown role":  "roles:\n  customer: [client]\n",
		"empty keyword": "roles:\n  region: [\"\"]\n",
		"bad yaml":      "roles: [unclosed\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadRoleKeywords(writeRoles(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadRoleKeywords_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadRoleKeywords(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading roles file")
}
