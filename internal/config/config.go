// Package config loads amanrag configuration from defaults, the user config,
// the project .amanrag.yaml, a .env file and AMANRAG_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Partial failure modes for the vector/keyword adapter pair.
const (
	PartialFailureFail    = "fail"
	PartialFailureDegrade = "degrade"
)

// LimitCeiling bounds search.max_limit; surfaces never return more items.
const LimitCeiling = 100

// Config represents the complete amanrag configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server" json:"server"`
	Logging      LoggingConfig      `yaml:"logging" json:"logging"`
	Search       SearchConfig       `yaml:"search" json:"search"`
	Aurora       AuroraConfig       `yaml:"aurora" json:"aurora"`
	OpenSearch   OpenSearchConfig   `yaml:"opensearch" json:"opensearch"`
	Local        LocalConfig        `yaml:"local" json:"local"`
	Embeddings   EmbeddingsConfig   `yaml:"embeddings" json:"embeddings"`
	CrossEncoder CrossEncoderConfig `yaml:"cross_encoder" json:"cross_encoder"`

	// WorkspacesFile is the YAML registry of workspaces. Relative paths are
	// resolved against the directory the config was loaded from.
	WorkspacesFile string `yaml:"workspaces_file" json:"workspaces_file"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// RateLimit is requests per second per client IP; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" json:"rate_burst"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// SearchConfig configures the query orchestrator and its callers.
type SearchConfig struct {
	DefaultLimit     int           `yaml:"default_limit" json:"default_limit"`
	MaxLimit         int           `yaml:"max_limit" json:"max_limit"`
	DefaultThreshold float64       `yaml:"default_threshold" json:"default_threshold"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`

	// PartialFailure is "fail" (default) or "degrade".
	PartialFailure string `yaml:"partial_failure" json:"partial_failure"`
}

// AuroraConfig configures the PostgreSQL/pgvector pool. An empty DSN
// disables the aurora engine.
type AuroraConfig struct {
	DSN               string        `yaml:"dsn" json:"-"`
	MaxConns          int32         `yaml:"max_conns" json:"max_conns"`
	MinConns          int32         `yaml:"min_conns" json:"min_conns"`
	MaxConnLifetime   time.Duration `yaml:"max_conn_lifetime" json:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `yaml:"max_conn_idle_time" json:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `yaml:"health_check_period" json:"health_check_period"`
}

// OpenSearchConfig configures the OpenSearch REST client. An empty endpoint
// disables the opensearch engine.
type OpenSearchConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`

	// AWSRegion switches from basic auth to SigV4 signing for Amazon
	// OpenSearch Service ("es") or OpenSearch Serverless ("aoss").
	AWSRegion  string `yaml:"aws_region" json:"aws_region"`
	AWSService string `yaml:"aws_service" json:"aws_service"`

	Timeout            time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries         int           `yaml:"max_retries" json:"max_retries"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
}

// LocalConfig configures the embedded engine.
type LocalConfig struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// EmbeddingsConfig configures the embeddings providers.
type EmbeddingsConfig struct {
	OllamaHost       string        `yaml:"ollama_host" json:"ollama_host"`
	OpenAIBaseURL    string        `yaml:"openai_base_url" json:"openai_base_url"`
	OpenAIAPIKey     string        `yaml:"openai_api_key" json:"-"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	CacheSize        int           `yaml:"cache_size" json:"cache_size"`
	StaticDimensions int           `yaml:"static_dimensions" json:"static_dimensions"`
}

// CrossEncoderConfig configures the re-ranking service.
type CrossEncoderConfig struct {
	Endpoint     string        `yaml:"endpoint" json:"endpoint"`
	APIKey       string        `yaml:"api_key" json:"-"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	MaxFailures  int           `yaml:"max_failures" json:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout" json:"reset_timeout"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       20,
			RateBurst:       40,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
		Search: SearchConfig{
			DefaultLimit:     5,
			MaxLimit:         100,
			DefaultThreshold: 0,
			Timeout:          30 * time.Second,
			PartialFailure:   PartialFailureFail,
		},
		Aurora: AuroraConfig{
			MaxConns:          10,
			MinConns:          1,
			MaxConnLifetime:   time.Hour,
			MaxConnIdleTime:   30 * time.Minute,
			HealthCheckPeriod: time.Minute,
		},
		OpenSearch: OpenSearchConfig{
			AWSService: "es",
			Timeout:    10 * time.Second,
			MaxRetries: 2,
		},
		Local: LocalConfig{
			DataDir: defaultDataDir(),
		},
		Embeddings: EmbeddingsConfig{
			OllamaHost:       "http://localhost:11434",
			OpenAIBaseURL:    "https://api.openai.com/v1",
			Timeout:          30 * time.Second,
			CacheSize:        1000,
			StaticDimensions: 256,
		},
		CrossEncoder: CrossEncoderConfig{
			Timeout:      10 * time.Second,
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
		},
		WorkspacesFile: "workspaces.yaml",
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amanrag", "data")
	}
	return filepath.Join(home, ".amanrag", "data")
}

// GetUserConfigPath returns ~/.config/amanrag/config.yaml (XDG aware).
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amanrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "amanrag", "config.yaml")
}

// Load loads configuration for the given directory. Precedence, lowest first:
//  1. Defaults
//  2. User config (~/.config/amanrag/config.yaml)
//  3. Project config (.amanrag.yaml or .amanrag.yml in dir)
//  4. .env in dir (never overrides variables already set)
//  5. Environment variables (AMANRAG_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	for _, name := range []string{".amanrag.yaml", ".amanrag.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	if envPath := filepath.Join(dir, ".env"); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}
	cfg.applyEnvOverrides()

	if cfg.WorkspacesFile != "" && !filepath.IsAbs(cfg.WorkspacesFile) {
		cfg.WorkspacesFile = filepath.Join(dir, cfg.WorkspacesFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes path over the current values, so only keys present in the
// file override what is already set.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("AMANRAG_ADDR", &c.Server.Addr)
	setString("AMANRAG_LOG_LEVEL", &c.Logging.Level)
	setString("AMANRAG_LOG_FILE", &c.Logging.File)
	setString("AMANRAG_WORKSPACES_FILE", &c.WorkspacesFile)
	setString("AMANRAG_PARTIAL_FAILURE", &c.Search.PartialFailure)
	setString("AMANRAG_AURORA_DSN", &c.Aurora.DSN)
	setString("AMANRAG_OPENSEARCH_ENDPOINT", &c.OpenSearch.Endpoint)
	setString("AMANRAG_OPENSEARCH_USERNAME", &c.OpenSearch.Username)
	setString("AMANRAG_OPENSEARCH_PASSWORD", &c.OpenSearch.Password)
	setString("AMANRAG_OPENSEARCH_AWS_REGION", &c.OpenSearch.AWSRegion)
	setString("AMANRAG_OPENSEARCH_AWS_SERVICE", &c.OpenSearch.AWSService)
	setString("AMANRAG_DATA_DIR", &c.Local.DataDir)
	setString("AMANRAG_OLLAMA_HOST", &c.Embeddings.OllamaHost)
	setString("AMANRAG_OPENAI_BASE_URL", &c.Embeddings.OpenAIBaseURL)
	setString("OPENAI_API_KEY", &c.Embeddings.OpenAIAPIKey)
	setString("AMANRAG_OPENAI_API_KEY", &c.Embeddings.OpenAIAPIKey)
	setString("AMANRAG_CROSS_ENCODER_ENDPOINT", &c.CrossEncoder.Endpoint)
	setString("AMANRAG_CROSS_ENCODER_API_KEY", &c.CrossEncoder.APIKey)

	if v := os.Getenv("AMANRAG_SEARCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Search.Timeout = d
		}
	}
	if v := os.Getenv("AMANRAG_RATE_LIMIT"); v != "" {
		if r, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && r >= 0 {
			c.Server.RateLimit = r
		}
	}
}

// Validate checks the final configuration.
func (c *Config) Validate() error {
	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search.default_limit must be at least 1, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit > LimitCeiling {
		return fmt.Errorf("search.max_limit must be at most %d, got %d", LimitCeiling, c.Search.MaxLimit)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit (%d) must be >= search.default_limit (%d)", c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	if c.Search.Timeout < 0 {
		return fmt.Errorf("search.timeout must be non-negative, got %s", c.Search.Timeout)
	}

	switch strings.ToLower(c.Search.PartialFailure) {
	case PartialFailureFail, PartialFailureDegrade:
	default:
		return fmt.Errorf("search.partial_failure must be 'fail' or 'degrade', got %s", c.Search.PartialFailure)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	if c.Aurora.MaxConns < 0 || c.Aurora.MinConns < 0 || (c.Aurora.MaxConns > 0 && c.Aurora.MinConns > c.Aurora.MaxConns) {
		return fmt.Errorf("aurora pool sizes invalid: min_conns=%d max_conns=%d", c.Aurora.MinConns, c.Aurora.MaxConns)
	}
	if c.Embeddings.CacheSize < 0 {
		return fmt.Errorf("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize)
	}
	if c.Embeddings.StaticDimensions <= 0 {
		return fmt.Errorf("embeddings.static_dimensions must be positive, got %d", c.Embeddings.StaticDimensions)
	}
	switch c.OpenSearch.AWSService {
	case "", "es", "aoss":
	default:
		return fmt.Errorf("opensearch.aws_service must be 'es' or 'aoss', got %s", c.OpenSearch.AWSService)
	}
	if c.OpenSearch.MaxRetries < 0 {
		return fmt.Errorf("opensearch.max_retries must be non-negative, got %d", c.OpenSearch.MaxRetries)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must be non-negative, got %f", c.Server.RateLimit)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
