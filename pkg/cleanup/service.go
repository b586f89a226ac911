// Package cleanup reclaims per-session in-memory state.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/opus-nx/swarm/pkg/config"
	"github.com/opus-nx/swarm/pkg/events"
	"github.com/opus-nx/swarm/pkg/graph"
	"github.com/opus-nx/swarm/pkg/ratelimit"
)

// Service periodically reaps abandoned sessions:
//   - Drops graph nodes and edges of sessions idle past the max age
//   - Releases the session's event bus queues and drop counters
//   - Purges rate-limit keys whose window has fully elapsed
//
// All operations are idempotent; a session that becomes active again
// simply rebuilds its state.
type Service struct {
	cfg     *config.SessionConfig
	graph   *graph.Graph
	bus     *events.Bus
	limiter *ratelimit.SlidingWindow

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new session reaper.
func NewService(cfg *config.SessionConfig, g *graph.Graph, bus *events.Bus, limiter *ratelimit.SlidingWindow) *Service {
	return &Service{
		cfg:     cfg,
		graph:   g,
		bus:     bus,
		limiter: limiter,
	}
}

// Start launches the background reaper loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Session reaper started",
		"max_age_seconds", s.cfg.MaxAgeSeconds,
		"interval_seconds", s.cfg.ReaperIntervalSeconds)
}

// Stop signals the reaper loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Session reaper stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(time.Duration(s.cfg.ReaperIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll()
		}
	}
}

func (s *Service) runAll() {
	s.reapStaleSessions()
	if s.limiter != nil {
		s.limiter.Purge()
	}
}

// reapStaleSessions drops the state of sessions idle past the max age.
// Sessions with a live subscriber are skipped regardless of age.
func (s *Service) reapStaleSessions() {
	maxAge := time.Duration(s.cfg.MaxAgeSeconds) * time.Second
	for _, sessionID := range s.bus.StaleSessions(maxAge) {
		if s.bus.SubscriberCount(sessionID) > 0 {
			continue
		}
		nodes := s.graph.CleanupSession(sessionID)
		s.bus.CleanupSession(sessionID)
		slog.Info("Reaped stale session",
			"session_id", sessionID, "nodes_dropped", nodes)
	}
}
