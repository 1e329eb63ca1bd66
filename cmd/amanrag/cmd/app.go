package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Aman-CERP/amanrag/internal/api"
	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/langdetect"
	"github.com/Aman-CERP/amanrag/internal/logging"
	"github.com/Aman-CERP/amanrag/internal/metrics"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/store/aurora"
	"github.com/Aman-CERP/amanrag/internal/store/local"
	"github.com/Aman-CERP/amanrag/internal/store/opensearch"
	"github.com/Aman-CERP/amanrag/internal/workspace"
)

// logMode selects where a command's logs go.
type logMode int

const (
	// logStderr mirrors logs to stderr and the configured file.
	logStderr logMode = iota
	// logFileOnly keeps stdout and stderr clean for the MCP stdio transport.
	logFileOnly
)

// app holds the wired components of one CLI run.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	workspaces *workspace.Registry
	embedders  *embed.Registry
	rankers    *search.RankerRegistry
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	local      *local.Store
	pool       *pgxpool.Pool
	opensearch *opensearch.Store
	service    *search.Service
	checks     map[string]api.Pinger

	cleanups []func()
}

// newApp loads configuration and builds every configured engine. The aurora
// and opensearch engines are only built when their endpoints are set.
func newApp(ctx context.Context, opts *rootOptions, mode logMode) (*app, error) {
	cfg, err := config.Load(opts.dir)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	a := &app{cfg: cfg, checks: make(map[string]api.Pinger)}
	if err := a.setupLogging(mode); err != nil {
		return nil, err
	}

	a.workspaces, err = workspace.Load(cfg.WorkspacesFile)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	a.embedders = embed.NewRegistry(embed.RegistryConfig{
		OllamaHost:       cfg.Embeddings.OllamaHost,
		OpenAIBaseURL:    cfg.Embeddings.OpenAIBaseURL,
		OpenAIAPIKey:     cfg.Embeddings.OpenAIAPIKey,
		Timeout:          cfg.Embeddings.Timeout,
		CacheSize:        cfg.Embeddings.CacheSize,
		StaticDimensions: cfg.Embeddings.StaticDimensions,
	})
	a.cleanups = append(a.cleanups, func() { _ = a.embedders.Close() })

	a.rankers = search.NewRankerRegistry(search.RankerConfig{
		Endpoint:     cfg.CrossEncoder.Endpoint,
		APIKey:       cfg.CrossEncoder.APIKey,
		Timeout:      cfg.CrossEncoder.Timeout,
		MaxFailures:  cfg.CrossEncoder.MaxFailures,
		ResetTimeout: cfg.CrossEncoder.ResetTimeout,
	})
	a.cleanups = append(a.cleanups, a.rankers.Close)

	if err := a.buildEngines(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) setupLogging(mode logMode) error {
	if mode == logFileOnly {
		cleanup, err := logging.SetupMCPMode(a.cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("setup logging: %w", err)
		}
		a.logger = slog.Default()
		a.cleanups = append(a.cleanups, cleanup)
		return nil
	}

	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         a.cfg.Logging.Level,
		FilePath:      a.cfg.Logging.File,
		MaxSizeMB:     a.cfg.Logging.MaxSizeMB,
		MaxFiles:      a.cfg.Logging.MaxFiles,
		WriteToStderr: true,
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	slog.SetDefault(logger)
	a.logger = logger
	a.cleanups = append(a.cleanups, cleanup)
	return nil
}

func (a *app) buildEngines(ctx context.Context) error {
	cfg := a.cfg
	detector := langdetect.New()
	engineOpts := []search.EngineOption{
		search.WithConfig(search.EngineConfig{
			Timeout:        cfg.Search.Timeout,
			PartialFailure: cfg.Search.PartialFailure,
		}),
		search.WithMetrics(a.metrics),
	}

	var engines []*search.Engine
	add := func(adapters search.Adapters) error {
		e, err := search.NewEngine(adapters, a.embedders, a.rankers, detector, engineOpts...)
		if err != nil {
			return fmt.Errorf("build %s engine: %w", adapters.Engine, err)
		}
		engines = append(engines, e)
		return nil
	}

	store, err := local.New(local.Config{DataDir: cfg.Local.DataDir})
	if err != nil {
		return err
	}
	a.local = store
	a.cleanups = append(a.cleanups, func() { _ = store.Close() })
	a.checks[local.EngineName] = store
	if err := add(store.Adapters()); err != nil {
		return err
	}

	if cfg.Aurora.DSN != "" {
		pool, err := aurora.NewPool(ctx, aurora.PoolConfig{
			DSN:               cfg.Aurora.DSN,
			MaxConns:          cfg.Aurora.MaxConns,
			MinConns:          cfg.Aurora.MinConns,
			MaxConnLifetime:   cfg.Aurora.MaxConnLifetime,
			MaxConnIdleTime:   cfg.Aurora.MaxConnIdleTime,
			HealthCheckPeriod: cfg.Aurora.HealthCheckPeriod,
		})
		if err != nil {
			return err
		}
		a.pool = pool
		a.cleanups = append(a.cleanups, pool.Close)
		a.checks[aurora.EngineName] = api.PingFunc(pool.Ping)
		if err := add(aurora.New(pool).Adapters()); err != nil {
			return err
		}
	}

	if cfg.OpenSearch.Endpoint != "" {
		client, err := opensearch.New(ctx, opensearch.Config{
			Endpoint:           cfg.OpenSearch.Endpoint,
			Username:           cfg.OpenSearch.Username,
			Password:           cfg.OpenSearch.Password,
			AWSRegion:          cfg.OpenSearch.AWSRegion,
			AWSService:         cfg.OpenSearch.AWSService,
			Timeout:            cfg.OpenSearch.Timeout,
			MaxRetries:         cfg.OpenSearch.MaxRetries,
			InsecureSkipVerify: cfg.OpenSearch.InsecureSkipVerify,
		})
		if err != nil {
			return err
		}
		a.opensearch = client
		a.cleanups = append(a.cleanups, client.Close)
		a.checks[opensearch.EngineName] = client
		if err := add(client.Adapters()); err != nil {
			return err
		}
	}

	a.service = search.NewService(a.workspaces, engines...)
	a.logger.Debug("engines_ready", slog.Any("engines", a.service.Engines()))
	return nil
}

// Close releases everything newApp opened, last opened first.
func (a *app) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}
