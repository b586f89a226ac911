// Package config loads and validates swarm configuration from the
// environment. Initialize is the single entry point: it reads every
// knob, applies defaults, validates, and returns a Config ready for
// dependency wiring in main.
package config

import (
	"context"
	"fmt"
	"log/slog"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	Server    *ServerConfig
	Auth      *AuthConfig
	Anthropic *AnthropicConfig
	Supabase  *SupabaseConfig
	Voyage    *VoyageConfig
	Neo4j     *Neo4jConfig
	Slack     *SlackConfig
	Swarm     *SwarmConfig
	RateLimit *RateLimitConfig
	Sessions  *SessionConfig
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
}

// Addr returns the host:port listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthConfig holds the shared secret for token derivation.
type AuthConfig struct {
	Secret string
}

// AnthropicConfig holds the LLM client settings.
type AnthropicConfig struct {
	APIKey string
	Model  string
}

// SupabaseConfig holds the persistence mirror settings. URL accepts
// either a project URL (https://<ref>.supabase.co) or a full
// postgres:// DSN; ServiceRoleKey is the database password in the
// project-URL form.
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	MaxOpenConns   int
	MaxIdleConns   int
}

// Configured reports whether the mirror has connection settings at all.
func (c *SupabaseConfig) Configured() bool {
	return c.URL != ""
}

// VoyageConfig holds embedding settings for semantic retrieval.
type VoyageConfig struct {
	APIKey string
	Model  string
}

// Configured reports whether embeddings are available.
func (c *VoyageConfig) Configured() bool {
	return c.APIKey != ""
}

// Neo4jConfig holds the optional graph mirror settings.
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
}

// Configured reports whether the Neo4j mirror should be started.
func (c *Neo4jConfig) Configured() bool {
	return c.URI != ""
}

// SlackConfig holds checkpoint notification settings.
type SlackConfig struct {
	BotToken string
	Channel  string
}

// Enabled reports whether notifications should be sent.
func (c *SlackConfig) Enabled() bool {
	return c.BotToken != "" && c.Channel != ""
}

// SwarmConfig holds agent scheduling knobs.
type SwarmConfig struct {
	AgentTimeoutSeconds int
	AgentStaggerSeconds float64
	MaxConcurrentAgents int
}

// RateLimitConfig holds the per-client request limiter knobs.
type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

// SessionConfig holds stale-session reaper knobs.
type SessionConfig struct {
	MaxAgeSeconds         int
	ReaperIntervalSeconds int
}

// Initialize loads configuration from the environment, applies
// defaults, and validates it. This is the primary entry point.
func Initialize(_ context.Context) (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	slog.Info("configuration initialized",
		"addr", cfg.Server.Addr(),
		"supabase_configured", cfg.Supabase.Configured(),
		"voyage_configured", cfg.Voyage.Configured(),
		"neo4j_configured", cfg.Neo4j.Configured(),
		"slack_enabled", cfg.Slack.Enabled())

	return cfg, nil
}
