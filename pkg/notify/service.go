// Package notify delivers optional Slack notifications for human
// checkpoints and retention decisions. The Service is nil-safe so callers
// never need to check whether notifications are configured.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/opus-nx/swarm/pkg/models"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// CheckpointInput contains data for a human checkpoint notification.
type CheckpointInput struct {
	SessionID  string
	NodeID     string
	Verdict    models.CheckpointVerdict
	Correction string
}

// RetentionInput contains data for a retention decision notification.
type RetentionInput struct {
	SessionID    string
	ExperimentID string
	Decision     models.RetentionDecision
	PerformedBy  string
}

// Service handles Slack notification delivery.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "notify-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "notify-service"),
	}
}

// NotifyCheckpoint sends a notification for a human checkpoint that carries
// a correction. Checkpoints without corrections are routine and skipped.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyCheckpoint(ctx context.Context, input CheckpointInput) {
	if s == nil {
		return
	}
	if input.Correction == "" {
		return
	}

	blocks := BuildCheckpointMessage(input.SessionID, input.NodeID, input.Verdict, input.Correction, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, 5*time.Second); err != nil {
		s.logger.Error("Failed to send checkpoint notification",
			"session_id", input.SessionID,
			"node_id", input.NodeID,
			"error", err)
	}
}

// NotifyRetention sends a notification for a retention decision.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyRetention(ctx context.Context, input RetentionInput) {
	if s == nil {
		return
	}

	blocks := BuildRetentionMessage(input.ExperimentID, input.SessionID, input.Decision, input.PerformedBy, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, 5*time.Second); err != nil {
		s.logger.Error("Failed to send retention notification",
			"session_id", input.SessionID,
			"experiment_id", input.ExperimentID,
			"error", err)
	}
}
