// Package server exposes memctxd over HTTP: context queries, source health,
// and Prometheus metrics, with graceful context-aware shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Big0290/memory-context-manager-v2/internal/orchestrator"
	"github.com/Big0290/memory-context-manager-v2/internal/registry"
)

// Config holds HTTP server settings.
type Config struct {
	Port            int
	ShutdownTimeout time.Duration
	ServiceName     string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Port:            9291,
		ShutdownTimeout: 10 * time.Second,
		ServiceName:     "memctxd",
	}
}

// Server is the HTTP front end over the orchestration engine.
type Server struct {
	cfg      Config
	echo     *echo.Echo
	engine   *orchestrator.Engine
	registry *registry.Registry
	logger   *zap.Logger
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(cfg Config, engine *orchestrator.Engine, reg *registry.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		cfg:      cfg,
		echo:     e,
		engine:   engine,
		registry: reg,
		logger:   logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/readyz", s.handleReadyz)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.POST("/context/query", s.handleQuery)
	v1.GET("/sources", s.handleSources)
}

// HealthResponse is the JSON body for /healthz.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Healthy   int    `json:"healthy_sources"`
	Degraded  int    `json:"degraded_sources"`
	Unhealthy int    `json:"unhealthy_sources"`
}

// handleHealthz aggregates source health. The daemon itself is "ok" as long
// as it can respond; "degraded" means no source is currently healthy.
func (s *Server) handleHealthz(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Service: s.cfg.ServiceName}
	for _, info := range s.registry.Snapshot() {
		switch info.Health {
		case registry.Healthy:
			resp.Healthy++
		case registry.Degraded:
			resp.Degraded++
		default:
			resp.Unhealthy++
		}
	}
	if resp.Healthy == 0 && resp.Degraded+resp.Unhealthy > 0 {
		resp.Status = "degraded"
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleReadyz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

// QueryRequest is the JSON body for POST /v1/context/query.
type QueryRequest struct {
	Query         string         `json:"query"`
	RequestType   string         `json:"request_type,omitempty"`
	Strategy      string         `json:"strategy,omitempty"`
	CallerContext map[string]any `json:"caller_context,omitempty"`
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	resp, err := s.engine.Handle(c.Request().Context(), &orchestrator.Request{
		Query:         req.Query,
		RequestType:   req.RequestType,
		Strategy:      req.Strategy,
		CallerContext: req.CallerContext,
	})
	if err != nil {
		s.logger.Warn("query failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSources(c echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.Snapshot())
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
// Returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	errCh := make(chan error, 1)

	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Echo returns the underlying Echo instance for registering extra routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
