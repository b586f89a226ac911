package config

// Default values applied when the corresponding env vars are unset.
const (
	DefaultHost = "0.0.0.0"
	DefaultPort = 8000

	DefaultModel = "claude-opus-4-6"

	DefaultVoyageModel = "voyage-3"

	DefaultRateLimitRequests      = 20
	DefaultRateLimitWindowSeconds = 60

	DefaultAgentTimeoutSeconds = 120
	DefaultAgentStaggerSeconds = 2.5
	DefaultMaxConcurrentAgents = 6

	DefaultSessionMaxAgeSeconds  = 1800
	DefaultReaperIntervalSeconds = 300

	DefaultDBMaxOpenConns = 10
	DefaultDBMaxIdleConns = 5
)

// DefaultCORSOrigins returns the origins allowed when CORS_ORIGINS is
// unset.
func DefaultCORSOrigins() []string {
	return []string{"http://localhost:3000", "https://opus-nx.vercel.app"}
}

// DefaultSwarmConfig returns scheduling defaults.
func DefaultSwarmConfig() *SwarmConfig {
	return &SwarmConfig{
		AgentTimeoutSeconds: DefaultAgentTimeoutSeconds,
		AgentStaggerSeconds: DefaultAgentStaggerSeconds,
		MaxConcurrentAgents: DefaultMaxConcurrentAgents,
	}
}

// DefaultRateLimitConfig returns limiter defaults.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Requests:      DefaultRateLimitRequests,
		WindowSeconds: DefaultRateLimitWindowSeconds,
	}
}

// DefaultSessionConfig returns reaper defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		MaxAgeSeconds:         DefaultSessionMaxAgeSeconds,
		ReaperIntervalSeconds: DefaultReaperIntervalSeconds,
	}
}
