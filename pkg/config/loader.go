package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// load reads every setting from the environment and applies defaults.
// Validation happens separately so tests can assemble invalid configs.
func load() (*Config, error) {
	port, err := getIntOrDefault("PORT", DefaultPort)
	if err != nil {
		return nil, err
	}

	swarmCfg, err := resolveSwarmConfig()
	if err != nil {
		return nil, err
	}

	rateCfg, err := resolveRateLimitConfig()
	if err != nil {
		return nil, err
	}

	sessionCfg, err := resolveSessionConfig()
	if err != nil {
		return nil, err
	}

	supabaseCfg, err := resolveSupabaseConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: &ServerConfig{
			Host:        getEnvOrDefault("HOST", DefaultHost),
			Port:        port,
			CORSOrigins: resolveCORSOrigins(),
		},
		Auth: &AuthConfig{
			Secret: os.Getenv("AUTH_SECRET"),
		},
		Anthropic: &AnthropicConfig{
			APIKey: os.Getenv("ANTHROPIC_API_KEY"),
			Model:  getEnvOrDefault("ANTHROPIC_MODEL", DefaultModel),
		},
		Supabase: supabaseCfg,
		Voyage: &VoyageConfig{
			APIKey: os.Getenv("VOYAGE_API_KEY"),
			Model:  getEnvOrDefault("VOYAGE_MODEL", DefaultVoyageModel),
		},
		Neo4j: &Neo4jConfig{
			URI:      os.Getenv("NEO4J_URI"),
			User:     os.Getenv("NEO4J_USER"),
			Password: os.Getenv("NEO4J_PASSWORD"),
		},
		Slack: &SlackConfig{
			BotToken: os.Getenv("SLACK_BOT_TOKEN"),
			Channel:  os.Getenv("SLACK_CHANNEL"),
		},
		Swarm:     swarmCfg,
		RateLimit: rateCfg,
		Sessions:  sessionCfg,
	}, nil
}

func resolveCORSOrigins() []string {
	raw := os.Getenv("CORS_ORIGINS")
	if raw == "" {
		return DefaultCORSOrigins()
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return DefaultCORSOrigins()
	}
	return origins
}

func resolveSwarmConfig() (*SwarmConfig, error) {
	cfg := DefaultSwarmConfig()

	timeout, err := getIntOrDefault("AGENT_TIMEOUT_SECONDS", cfg.AgentTimeoutSeconds)
	if err != nil {
		return nil, err
	}
	stagger, err := getFloatOrDefault("AGENT_STAGGER_SECONDS", cfg.AgentStaggerSeconds)
	if err != nil {
		return nil, err
	}
	maxAgents, err := getIntOrDefault("MAX_CONCURRENT_AGENTS", cfg.MaxConcurrentAgents)
	if err != nil {
		return nil, err
	}

	cfg.AgentTimeoutSeconds = timeout
	cfg.AgentStaggerSeconds = stagger
	cfg.MaxConcurrentAgents = maxAgents
	return cfg, nil
}

func resolveRateLimitConfig() (*RateLimitConfig, error) {
	cfg := DefaultRateLimitConfig()

	requests, err := getIntOrDefault("RATE_LIMIT_REQUESTS", cfg.Requests)
	if err != nil {
		return nil, err
	}
	window, err := getIntOrDefault("RATE_LIMIT_WINDOW_SECONDS", cfg.WindowSeconds)
	if err != nil {
		return nil, err
	}

	cfg.Requests = requests
	cfg.WindowSeconds = window
	return cfg, nil
}

func resolveSessionConfig() (*SessionConfig, error) {
	cfg := DefaultSessionConfig()

	maxAge, err := getIntOrDefault("SESSION_MAX_AGE_SECONDS", cfg.MaxAgeSeconds)
	if err != nil {
		return nil, err
	}
	interval, err := getIntOrDefault("REAPER_INTERVAL_SECONDS", cfg.ReaperIntervalSeconds)
	if err != nil {
		return nil, err
	}

	cfg.MaxAgeSeconds = maxAge
	cfg.ReaperIntervalSeconds = interval
	return cfg, nil
}

func resolveSupabaseConfig() (*SupabaseConfig, error) {
	maxOpen, err := getIntOrDefault("DB_MAX_OPEN_CONNS", DefaultDBMaxOpenConns)
	if err != nil {
		return nil, err
	}
	maxIdle, err := getIntOrDefault("DB_MAX_IDLE_CONNS", DefaultDBMaxIdleConns)
	if err != nil {
		return nil, err
	}

	return &SupabaseConfig{
		URL:            os.Getenv("SUPABASE_URL"),
		ServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		MaxOpenConns:   maxOpen,
		MaxIdleConns:   maxIdle,
	}, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntOrDefault(key string, defaultVal int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, NewValidationError(key, ErrInvalidValue)
	}
	return val, nil
}

func getFloatOrDefault(key string, defaultVal float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, NewValidationError(key, ErrInvalidValue)
	}
	return val, nil
}

// warnIfWeakSecret logs once at startup when the auth secret looks
// guessable. Short secrets make the derived session token forgeable.
func warnIfWeakSecret(secret string) {
	if len(secret) < 16 {
		slog.Warn("AUTH_SECRET is shorter than 16 characters, tokens are weak")
	}
}
