// swarmd runs the multi-agent reasoning orchestrator: HTTP + WebSocket
// API, the swarm coordinator, the hypothesis experiment lifecycle, and
// the optional persistence mirrors.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opus-nx/swarm/pkg/agent"
	"github.com/opus-nx/swarm/pkg/api"
	"github.com/opus-nx/swarm/pkg/cleanup"
	"github.com/opus-nx/swarm/pkg/config"
	"github.com/opus-nx/swarm/pkg/events"
	"github.com/opus-nx/swarm/pkg/graph"
	"github.com/opus-nx/swarm/pkg/lifecycle"
	"github.com/opus-nx/swarm/pkg/notify"
	"github.com/opus-nx/swarm/pkg/persist"
	"github.com/opus-nx/swarm/pkg/swarm"
	"github.com/opus-nx/swarm/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	envPath := flag.String("env", getEnv("ENV_FILE", ".env"), "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", *envPath)
	}

	slog.Info("Starting swarmd", "version", version.Full())

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. In-memory core: reasoning graph + event bus
	g := graph.New()
	bus := events.NewBus(events.DefaultQueueSize)

	// 3. Persistence gateway (optional mirror; NopGateway in degraded mode)
	var embedder persist.Embedder
	if cfg.Voyage.Configured() {
		embedder = persist.NewVoyageClient(cfg.Voyage.APIKey, cfg.Voyage.Model)
		slog.Info("Voyage embeddings enabled", "model", cfg.Voyage.Model)
	}

	var gateway persist.Gateway = persist.NopGateway{}
	var store *persist.Store
	if cfg.Supabase.Configured() {
		dsn, err := persist.BuildDSN(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey)
		if err != nil {
			slog.Error("Failed to build database DSN", "error", err)
			os.Exit(1)
		}
		store, err = persist.NewStore(ctx, persist.StoreConfig{
			DSN:          dsn,
			MaxOpenConns: cfg.Supabase.MaxOpenConns,
			MaxIdleConns: cfg.Supabase.MaxIdleConns,
		}, embedder)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := store.Close(); err != nil {
				slog.Error("Error closing database", "error", err)
			}
		}()
		gateway = store
		slog.Info("Connected to PostgreSQL mirror",
			"lifecycle_ready", store.Capabilities().LifecycleReady,
			"rehydration_ready", store.Capabilities().RehydrationReady)
	} else {
		slog.Warn("No database configured; running in degraded mode")
	}

	// 4. Graph mirrors: replay graph mutations to the configured sinks
	mirrorCtx, stopMirror := context.WithCancel(ctx)
	defer stopMirror()

	var sinks []persist.GraphSink
	if store != nil {
		sinks = append(sinks, store)
	}
	if cfg.Neo4j.Configured() {
		neo, err := persist.NewNeo4jMirror(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password)
		if err != nil {
			slog.Error("Failed to connect to Neo4j, continuing without it", "error", err)
		} else {
			sinks = append(sinks, neo)
			defer func() {
				if err := neo.Close(ctx); err != nil {
					slog.Error("Error closing Neo4j driver", "error", err)
				}
			}()
			slog.Info("Neo4j graph mirror enabled", "uri", cfg.Neo4j.URI)
		}
	}
	if len(sinks) > 0 {
		mirror := persist.NewGraphMirror(sinks...)
		g.OnChange(mirror.Listener())
		go mirror.Run(mirrorCtx)
	}

	// 5. LLM client + coordinator + lifecycle
	llmClient := agent.NewAnthropicClient(cfg.Anthropic)
	coordinator := swarm.NewCoordinator(cfg.Swarm, g, bus, gateway, llmClient, slog.Default())
	lifecycleSvc := lifecycle.NewService(gateway, bus, coordinator, slog.Default())

	notifier := notify.NewService(notify.ServiceConfig{
		Token:        cfg.Slack.BotToken,
		Channel:      cfg.Slack.Channel,
		DashboardURL: getEnv("DASHBOARD_URL", "http://localhost:3000"),
	})
	if notifier != nil {
		slog.Info("Slack notifications enabled", "channel", cfg.Slack.Channel)
	}

	// 6. HTTP server + session reaper
	httpServer := api.NewServer(cfg, coordinator, lifecycleSvc, g, bus, notifier)

	reaper := cleanup.NewService(cfg.Sessions, g, bus, httpServer.Limiter())
	reaper.Start(ctx)
	defer reaper.Stop()

	// 7. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := cfg.Server.Addr()
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
