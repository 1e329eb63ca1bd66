// Package api serves the query engine over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/metrics"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/workspace"
)

// Limit bounds applied to every search request.
const (
	DefaultLimit = 5
	MinLimit     = 1
	MaxLimit     = 100
)

// Searcher is the query surface the API serves.
type Searcher interface {
	Search(ctx context.Context, workspaceID string, req search.QueryRequest) (*search.Payload, error)
	Workspaces() []*workspace.Workspace
}

// Pinger is a readiness dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Options configures the server.
type Options struct {
	DefaultLimit     int
	MaxLimit         int
	DefaultThreshold float64

	// RateLimit is requests per second per client IP; zero disables limiting.
	RateLimit float64
	RateBurst int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingTimeout  time.Duration

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Checks   map[string]Pinger
	Logger   *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	echo     *echo.Echo
	searcher Searcher
	opts     Options
	logger   *slog.Logger
}

// New builds the server and its routes. ctx bounds background work such as
// rate limiter cleanup.
func New(ctx context.Context, searcher Searcher, opts Options) *Server {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultLimit
	}
	if opts.MaxLimit <= 0 || opts.MaxLimit > MaxLimit {
		opts.MaxLimit = MaxLimit
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = opts.ReadTimeout
	e.Server.WriteTimeout = opts.WriteTimeout

	s := &Server{echo: e, searcher: searcher, opts: opts, logger: logger}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(RequestID())
	e.Use(RequestLogger(logger))
	e.Use(Instrument(opts.Metrics))
	if opts.RateLimit > 0 {
		burst := max(opts.RateBurst, 1)
		e.Use(NewRateLimiter(ctx, rate.Limit(opts.RateLimit), burst, opts.Metrics).Middleware())
	}

	e.GET("/healthz", s.healthz)
	e.GET("/readyz", s.readyz)
	if opts.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := e.Group("/v1")
	v1.GET("/workspaces", s.listWorkspaces)
	v1.POST("/workspaces/:id/search", s.search)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("http_server_starting", slog.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// handleError writes AmanErrors as the API error body and defers everything
// else to echo.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if _, ok := err.(*echo.HTTPError); ok {
		s.echo.DefaultHTTPErrorHandler(err, c)
		return
	}

	status := statusFor(err)
	body := amerrors.ToResponse(err)
	body.RequestID = requestID(c)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request_failed",
			slog.String("request_id", body.RequestID),
			slog.Any("error", amerrors.FormatForLog(err)))
	}
	if jsonErr := c.JSON(status, body); jsonErr != nil {
		s.logger.Warn("error_response_failed", slog.String("error", jsonErr.Error()))
	}
}

// statusFor maps query errors to status codes: unknown workspaces 404, common
// errors 400, anything else 500 unless the error names a transport status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, amerrors.ErrWorkspaceNotFound):
		return http.StatusNotFound
	case amerrors.IsCommon(err):
		return http.StatusBadRequest
	default:
		return amerrors.HTTPStatus(err)
	}
}
