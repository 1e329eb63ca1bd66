package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanrag/internal/api"
	"github.com/Aman-CERP/amanrag/internal/mcp"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr    string
		mcpMode bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve queries over HTTP or MCP stdio",
		Long: `Start the query service.

By default an HTTP API is served on server.addr with /v1/workspaces,
/v1/workspaces/{id}/search, /healthz, /readyz and /metrics. With --mcp the
semantic_search and list_workspaces tools are served over stdio instead;
logs then go to ~/.amanrag/logs/server.log only.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mode := logStderr
			if mcpMode {
				mode = logFileOnly
			}
			a, err := newApp(ctx, root, mode)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			if mcpMode {
				return serveMCP(ctx, a)
			}
			return serveHTTP(ctx, a)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Override server.addr")
	cmd.Flags().BoolVar(&mcpMode, "mcp", false, "Serve MCP over stdio instead of HTTP")
	return cmd
}

func serveHTTP(ctx context.Context, a *app) error {
	cfg := a.cfg
	srv := api.New(ctx, a.service, api.Options{
		DefaultLimit:     cfg.Search.DefaultLimit,
		MaxLimit:         cfg.Search.MaxLimit,
		DefaultThreshold: cfg.Search.DefaultThreshold,
		RateLimit:        cfg.Server.RateLimit,
		RateBurst:        cfg.Server.RateBurst,
		ReadTimeout:      cfg.Server.ReadTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		Metrics:          a.metrics,
		Gatherer:         a.registry,
		Checks:           a.checks,
		Logger:           a.logger,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.workspaces.Watch(ctx) })
	g.Go(func() error { return srv.Start(cfg.Server.Addr) })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		a.logger.Info("http_server_stopping")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func serveMCP(ctx context.Context, a *app) error {
	srv, err := mcp.NewServer(a.service, mcp.Options{
		DefaultLimit:     a.cfg.Search.DefaultLimit,
		MaxLimit:         a.cfg.Search.MaxLimit,
		DefaultThreshold: a.cfg.Search.DefaultThreshold,
		Logger:           a.logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := a.workspaces.Watch(ctx); err != nil {
			a.logger.Warn("workspaces_watch_failed", slog.String("error", err.Error()))
		}
	}()
	return srv.Serve(ctx)
}
