package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config at an empty temp dir so the developer's
// real config never leaks into tests.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 5, cfg.Search.DefaultLimit)
	assert.Equal(t, 100, cfg.Search.MaxLimit)
	assert.Equal(t, PartialFailureFail, cfg.Search.PartialFailure)
	assert.Equal(t, 30*time.Second, cfg.Search.Timeout)
	assert.Equal(t, int32(10), cfg.Aurora.MaxConns)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	isolate(t)

	// Given: a project config setting a few keys
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanrag.yaml"), []byte(`
search:
  default_limit: 8
  timeout: 5s
  partial_failure: degrade
aurora:
  dsn: postgres://rag@localhost/rag
  max_conns: 4
workspaces_file: ws.yaml
`), 0o644))

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: set keys override, others keep defaults
	assert.Equal(t, 8, cfg.Search.DefaultLimit)
	assert.Equal(t, 100, cfg.Search.MaxLimit)
	assert.Equal(t, 5*time.Second, cfg.Search.Timeout)
	assert.Equal(t, PartialFailureDegrade, cfg.Search.PartialFailure)
	assert.Equal(t, "postgres://rag@localhost/rag", cfg.Aurora.DSN)
	assert.Equal(t, int32(4), cfg.Aurora.MaxConns)
	assert.Equal(t, int32(1), cfg.Aurora.MinConns)
	assert.Equal(t, filepath.Join(dir, "ws.yaml"), cfg.WorkspacesFile)
}

func TestLoad_UserConfigUnderProjectConfig(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "amanrag"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "amanrag", "config.yaml"), []byte(`
logging:
  level: debug
search:
  default_limit: 3
`), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanrag.yaml"), []byte("search:\n  default_limit: 7\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 7, cfg.Search.DefaultLimit)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanrag.yaml"), []byte("opensearch:\n  endpoint: http://file:9200\n"), 0o644))
	t.Setenv("AMANRAG_OPENSEARCH_ENDPOINT", "http://env:9200")
	t.Setenv("AMANRAG_SEARCH_TIMEOUT", "2s")
	t.Setenv("AMANRAG_OPENSEARCH_AWS_REGION", "eu-west-1")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "http://env:9200", cfg.OpenSearch.Endpoint)
	assert.Equal(t, "eu-west-1", cfg.OpenSearch.AWSRegion)
	assert.Equal(t, "es", cfg.OpenSearch.AWSService)
	assert.Equal(t, 2*time.Second, cfg.Search.Timeout)
}

func TestLoad_DotEnvFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AMANRAG_CROSS_ENCODER_ENDPOINT=http://reranker:8000\n"), 0o644))
	// godotenv sets process env; make sure the test restores it
	t.Setenv("AMANRAG_CROSS_ENCODER_ENDPOINT", "")
	require.NoError(t, os.Unsetenv("AMANRAG_CROSS_ENCODER_ENDPOINT"))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "http://reranker:8000", cfg.CrossEncoder.Endpoint)
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanrag.yaml"), []byte("search: [unclosed"), 0o644))

	_, err := Load(dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"zero default limit", func(c *Config) { c.Search.DefaultLimit = 0 }, "default_limit"},
		{"max below default", func(c *Config) { c.Search.MaxLimit = 2 }, "max_limit"},
		{"max above ceiling", func(c *Config) { c.Search.MaxLimit = 101 }, "at most 100"},
		{"bad aws service", func(c *Config) { c.OpenSearch.AWSService = "s3" }, "aws_service"},
		{"negative retries", func(c *Config) { c.OpenSearch.MaxRetries = -1 }, "max_retries"},
		{"bad partial failure", func(c *Config) { c.Search.PartialFailure = "ignore" }, "partial_failure"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"pool sizes", func(c *Config) { c.Aurora.MinConns = 20 }, "pool sizes"},
		{"static dims", func(c *Config) { c.Embeddings.StaticDimensions = 0 }, "static_dimensions"},
		{"negative rate", func(c *Config) { c.Server.RateLimit = -1 }, "rate_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Search.DefaultLimit = 9
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ".amanrag.yaml")))

	loaded, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9, loaded.Search.DefaultLimit)
}
