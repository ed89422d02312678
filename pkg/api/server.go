// Package api is the HTTP and WebSocket boundary: job submission and
// control, session artifacts, service management, and the live progress
// stream bridged from the bus.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/easel-ai/easel/pkg/config"
	"github.com/easel-ai/easel/pkg/jobs"
	"github.com/easel-ai/easel/pkg/progress"
	"github.com/easel-ai/easel/pkg/session"
	"github.com/easel-ai/easel/pkg/supervisor"
)

// Server is the API server over all backend components.
type Server struct {
	cfg     *config.Config
	manager *jobs.Manager
	store   *session.Store
	sup     *supervisor.Supervisor
	bus     *progress.Bus
	logger  *slog.Logger

	echo *echo.Echo
	http *http.Server
}

// NewServer wires the server and registers all routes.
func NewServer(cfg *config.Config, manager *jobs.Manager, store *session.Store, sup *supervisor.Supervisor, bus *progress.Bus) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
		store:   store,
		sup:     sup,
		bus:     bus,
		logger:  slog.With("component", "api"),
	}

	e := echo.New()
	e.Use(securityHeaders())

	e.GET("/health", s.healthHandler)

	e.POST("/api/beam-search", s.submitBeamSearchHandler)
	e.GET("/api/jobs", s.listSessionsHandler)
	e.GET("/api/jobs/:jobId", s.getJobHandler)
	e.GET("/api/jobs/:jobId/metadata", s.getJobMetadataHandler)
	e.POST("/api/jobs/:jobId/cancel", s.cancelJobHandler)

	e.GET("/api/images/:sessionId/:filename", s.getImageHandler)

	e.POST("/api/sessions/:sessionId/evaluations", s.createEvaluationHandler)
	e.GET("/api/sessions/:sessionId/evaluations", s.listEvaluationsHandler)

	e.GET("/api/services/status", s.servicesStatusHandler)
	e.GET("/api/services/stop-locks", s.stopLocksHandler)
	e.POST("/api/services/:name/start", s.startServiceHandler)
	e.POST("/api/services/:name/stop", s.stopServiceHandler)
	e.POST("/api/services/:name/restart", s.restartServiceHandler)
	e.DELETE("/api/services/:name/stop-lock", s.deleteStopLockHandler)

	// Progress subscriptions upgrade on /ws or any otherwise unmatched
	// GET path (the WS endpoint shares the API port).
	e.GET("/ws", s.wsHandler)
	e.GET("/*", s.wsHandler)

	s.echo = e
	return s
}

// Handler exposes the router, mainly for in-process test servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr and blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

// StartWithListener is Start over an existing listener.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.http = &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.Serve(ln)
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
