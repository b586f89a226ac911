package config

import (
	"fmt"
	"strings"
)

// validate performs fail-fast validation of the loaded configuration.
func validate(cfg *Config) error {
	if cfg.Anthropic.APIKey == "" {
		return NewValidationError("ANTHROPIC_API_KEY", ErrMissingRequiredField)
	}
	if cfg.Auth.Secret == "" {
		return NewValidationError("AUTH_SECRET", ErrMissingRequiredField)
	}
	warnIfWeakSecret(cfg.Auth.Secret)

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return NewValidationError("PORT", fmt.Errorf("%w: must be 1-65535", ErrInvalidValue))
	}

	if cfg.Supabase.Configured() {
		if !strings.HasPrefix(cfg.Supabase.URL, "postgres://") &&
			!strings.HasPrefix(cfg.Supabase.URL, "postgresql://") &&
			!strings.HasPrefix(cfg.Supabase.URL, "https://") {
			return NewValidationError("SUPABASE_URL", fmt.Errorf("%w: expected https:// project URL or postgres:// DSN", ErrInvalidValue))
		}
		if strings.HasPrefix(cfg.Supabase.URL, "https://") && cfg.Supabase.ServiceRoleKey == "" {
			return NewValidationError("SUPABASE_SERVICE_ROLE_KEY", ErrMissingRequiredField)
		}
	}

	if cfg.Neo4j.Configured() && cfg.Neo4j.User == "" {
		return NewValidationError("NEO4J_USER", ErrMissingRequiredField)
	}

	if cfg.Swarm.AgentTimeoutSeconds < 1 {
		return NewValidationError("AGENT_TIMEOUT_SECONDS", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if cfg.Swarm.AgentStaggerSeconds < 0 {
		return NewValidationError("AGENT_STAGGER_SECONDS", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if cfg.Swarm.MaxConcurrentAgents < 1 {
		return NewValidationError("MAX_CONCURRENT_AGENTS", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}

	if cfg.RateLimit.Requests < 1 {
		return NewValidationError("RATE_LIMIT_REQUESTS", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if cfg.RateLimit.WindowSeconds < 1 {
		return NewValidationError("RATE_LIMIT_WINDOW_SECONDS", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}

	if cfg.Sessions.MaxAgeSeconds < 1 {
		return NewValidationError("SESSION_MAX_AGE_SECONDS", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if cfg.Sessions.ReaperIntervalSeconds < 1 {
		return NewValidationError("REAPER_INTERVAL_SECONDS", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}

	return nil
}
