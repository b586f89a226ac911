// Package api is the HTTP and WebSocket boundary of the swarm service.
// It exposes the swarm control endpoints, the reasoning graph export, the
// hypothesis experiment lifecycle, and per-session event streaming.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opus-nx/swarm/pkg/config"
	"github.com/opus-nx/swarm/pkg/events"
	"github.com/opus-nx/swarm/pkg/graph"
	"github.com/opus-nx/swarm/pkg/lifecycle"
	"github.com/opus-nx/swarm/pkg/models"
	"github.com/opus-nx/swarm/pkg/notify"
	"github.com/opus-nx/swarm/pkg/ratelimit"
	swarmpkg "github.com/opus-nx/swarm/pkg/swarm"
)

// SwarmRunner starts swarm runs and correction reruns. Satisfied by
// *swarm.Coordinator.
type SwarmRunner interface {
	Run(ctx context.Context, query, sessionID string) (*models.SwarmResult, error)
	RerunWithCorrection(ctx context.Context, sessionID, nodeID, correction, experimentID string) (*swarmpkg.RerunResult, error)
}

// Server is the HTTP server for the swarm API.
type Server struct {
	cfg       *config.Config
	runner    SwarmRunner
	lifecycle *lifecycle.Service
	graph     *graph.Graph
	bus       *events.Bus
	limiter   *ratelimit.SlidingWindow
	notifier  *notify.Service
	logger    *slog.Logger

	echo       *echo.Echo
	httpServer *http.Server
}

// NewServer creates the API server and registers all routes.
func NewServer(cfg *config.Config, runner SwarmRunner, lc *lifecycle.Service, g *graph.Graph, bus *events.Bus, notifier *notify.Service) *Server {
	s := &Server{
		cfg:       cfg,
		runner:    runner,
		lifecycle: lc,
		graph:     g,
		bus:       bus,
		limiter: ratelimit.NewSlidingWindow(
			cfg.RateLimit.Requests,
			time.Duration(cfg.RateLimit.WindowSeconds)*time.Second),
		notifier: notifier,
		logger:   slog.Default().With("component", "api"),
	}

	e := echo.New()
	e.Use(requestLogger(s.logger))
	e.Use(securityHeaders())
	e.Use(corsHeaders(cfg.Server.CORSOrigins))

	e.GET("/api/health", s.healthHandler)
	e.GET("/api/system/capabilities", s.capabilitiesHandler)
	e.GET("/metrics", s.metricsHandler)

	e.POST("/api/swarm", s.requireAuth(s.swarmHandler))
	e.GET("/api/graph/:session_id", s.graphHandler)
	e.POST("/api/swarm/:session_id/checkpoint", s.requireAuth(s.checkpointHandler))
	e.GET("/api/swarm/:session_id/experiments", s.requireAuth(s.listExperimentsHandler))
	e.POST("/api/swarm/experiments/:id/compare", s.requireAuth(s.compareExperimentHandler))
	e.POST("/api/swarm/experiments/:id/retain", s.requireAuth(s.retainExperimentHandler))

	e.GET("/ws/:session_id", s.wsHandler)

	s.echo = e
	return s
}

// Limiter exposes the request limiter so the session reaper can purge
// abandoned keys.
func (s *Server) Limiter() *ratelimit.SlidingWindow {
	return s.limiter
}

// ServeHTTP implements http.Handler, delegating to the echo router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start begins serving on addr. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// metricsHandler serves the Prometheus registry.
func (s *Server) metricsHandler(c *echo.Context) error {
	promhttp.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
