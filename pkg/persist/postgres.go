package persist

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver for database/sql

	"github.com/opus-nx/swarm/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

// Edge relation normalization for the tabular mirror. LEADS_TO is
// stored as "influences" for compatibility with rows written by the
// dashboard; everything else lowercases.
var edgeTypeMap = map[models.EdgeRelation]string{
	models.RelationLeadsTo: "influences",
}

func normalizeEdgeType(rel models.EdgeRelation) string {
	if mapped, ok := edgeTypeMap[rel]; ok {
		return mapped
	}
	return strings.ToLower(string(rel))
}

// Embedder turns text into a vector for semantic retrieval.
type Embedder interface {
	GenerateReasoningEmbedding(ctx context.Context, text string) ([]float32, error)
}

// StoreConfig holds connection settings for the tabular mirror.
type StoreConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// BuildDSN converts the configured URL into a postgres DSN. A
// postgres:// or postgresql:// value passes through untouched; a
// https://<ref>.supabase.co project URL maps to the project's direct
// database endpoint with the service role key as password.
func BuildDSN(rawURL, serviceKey string) (string, error) {
	if strings.HasPrefix(rawURL, "postgres://") || strings.HasPrefix(rawURL, "postgresql://") {
		return rawURL, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid supabase url: %w", err)
	}
	ref, ok := strings.CutSuffix(u.Hostname(), ".supabase.co")
	if !ok || ref == "" {
		return "", fmt.Errorf("invalid supabase url %q: expected https://<ref>.supabase.co or a postgres:// DSN", rawURL)
	}

	return fmt.Sprintf(
		"postgres://postgres:%s@db.%s.supabase.co:5432/postgres?sslmode=require",
		url.QueryEscape(serviceKey), ref,
	), nil
}

// Store is the PostgreSQL-backed Gateway. Writes are upserts so the
// retry layer can replay them; edges that arrive before their nodes
// are parked and flushed once the node lands.
type Store struct {
	db       *stdsql.DB
	embedder Embedder

	mu           sync.Mutex
	caps         Capabilities
	pendingEdges map[string][]models.ReasoningEdge
}

var _ Gateway = (*Store)(nil)

// NewStore opens the database, applies embedded migrations, and probes
// capabilities.
func NewStore(ctx context.Context, cfg StoreConfig, embedder Embedder) (*Store, error) {
	db, err := stdsql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &Store{
		db:           db,
		embedder:     embedder,
		pendingEdges: make(map[string][]models.ReasoningEdge),
	}
	s.ProbeCapabilities(ctx)
	return s, nil
}

// runMigrations applies embedded migrations with golang-migrate.
func runMigrations(db *stdsql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "swarm", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Close only the source driver. m.Close() would also close the
	// shared *sql.DB passed via postgres.WithInstance.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}

	return nil
}

// DB exposes the underlying pool for health checks.
func (s *Store) DB() *stdsql.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// SyncNode upserts a reasoning node into thinking_nodes, then flushes
// any edges that were waiting for it.
func (s *Store) SyncNode(ctx context.Context, node *models.ReasoningNode) error {
	nodeID, ok := coerceUUID(node.ID, "thinking_nodes.id")
	if !ok {
		return nil
	}
	sessionID, ok := coerceUUID(node.SessionID, "thinking_nodes.session_id")
	if !ok {
		return nil
	}

	reasoning := node.Reasoning
	if reasoning == "" {
		reasoning = node.Content
	}

	structured, err := json.Marshal(map[string]any{
		"swarm":           true,
		"agent":           string(node.Agent),
		"decision_points": node.DecisionPoints,
	})
	if err != nil {
		return fmt.Errorf("marshal structured_reasoning: %w", err)
	}

	tokenUsage := map[string]any{"source": "swarm_v2"}
	if node.TokenUsage != nil {
		tokenUsage = map[string]any{
			"inputTokens":    node.TokenUsage.InputTokens,
			"outputTokens":   node.TokenUsage.OutputTokens,
			"thinkingTokens": node.TokenUsage.ThinkingTokens,
			"source":         "swarm_v2",
		}
	}
	tokens, err := json.Marshal(tokenUsage)
	if err != nil {
		return fmt.Errorf("marshal token_usage: %w", err)
	}

	createdAt := node.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO thinking_nodes (
			id, session_id, parent_node_id, reasoning, response,
			structured_reasoning, confidence_score, signature,
			input_query, token_usage, node_type, agent_name, created_at
		) VALUES ($1, $2, NULL, $3, $4, $5, $6, $7, $8, $9, 'thinking', $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			reasoning = EXCLUDED.reasoning,
			response = EXCLUDED.response,
			structured_reasoning = EXCLUDED.structured_reasoning,
			confidence_score = EXCLUDED.confidence_score,
			token_usage = EXCLUDED.token_usage`,
		nodeID, sessionID, reasoning, node.Content, structured,
		clamp01(node.Confidence), "swarm-"+string(node.Agent),
		nullString(node.InputQuery), tokens, string(node.Agent), createdAt,
	)
	if err != nil {
		return s.mapError(err)
	}

	slog.Debug("supabase_node_synced", "node_id", nodeID)
	s.flushPendingEdges(ctx, nodeID)
	return nil
}

// SyncEdge upserts an edge into reasoning_edges. Edges hitting a
// foreign key violation are parked under the missing node id and
// retried after that node syncs.
func (s *Store) SyncEdge(ctx context.Context, edge *models.ReasoningEdge) error {
	sourceID, ok := coerceUUID(edge.SourceID, "reasoning_edges.source_id")
	if !ok {
		return nil
	}
	targetID, ok := coerceUUID(edge.TargetID, "reasoning_edges.target_id")
	if !ok {
		return nil
	}

	err := s.execEdgeUpsert(ctx, sourceID, targetID, edge)
	if err == nil {
		slog.Debug("supabase_edge_synced", "source", sourceID, "target", targetID)
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		missing := sourceID
		if strings.Contains(pgErr.ConstraintName, "target") {
			missing = targetID
		}
		s.mu.Lock()
		s.pendingEdges[missing] = append(s.pendingEdges[missing], *edge)
		s.mu.Unlock()
		slog.Debug("supabase_edge_parked", "missing_node", missing)
		return nil
	}

	return s.mapError(err)
}

func (s *Store) execEdgeUpsert(ctx context.Context, sourceID, targetID string, edge *models.ReasoningEdge) error {
	metadata, err := json.Marshal(orEmptyMap(edge.Metadata))
	if err != nil {
		return fmt.Errorf("marshal edge metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reasoning_edges (source_id, target_id, edge_type, weight, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_id, target_id, edge_type) DO UPDATE SET
			weight = EXCLUDED.weight,
			metadata = EXCLUDED.metadata`,
		sourceID, targetID, normalizeEdgeType(edge.Relation),
		clamp01(edge.Weight), metadata,
	)
	return err
}

// flushPendingEdges retries edges parked for nodeID. Failures go back
// to the park queue via SyncEdge itself.
func (s *Store) flushPendingEdges(ctx context.Context, nodeID string) {
	s.mu.Lock()
	parked := s.pendingEdges[nodeID]
	delete(s.pendingEdges, nodeID)
	s.mu.Unlock()

	for i := range parked {
		if err := s.SyncEdge(ctx, &parked[i]); err != nil {
			slog.Warn("pending_edge_flush_failed",
				"node_id", nodeID,
				"source", parked[i].SourceID,
				"target", parked[i].TargetID,
				"error", err)
		}
	}
}

// BackfillNodeTokens distributes an agent's token totals evenly across
// its nodes, remainder to the first rows. Per-node failures are logged
// and skipped so one bad row cannot block the rest.
func (s *Store) BackfillNodeTokens(ctx context.Context, nodeIDs []string, tokensUsed, inputTokensUsed int, agent string) error {
	if len(nodeIDs) == 0 {
		return nil
	}

	n := len(nodeIDs)
	outPer, outRem := tokensUsed/n, tokensUsed%n
	inPer, inRem := inputTokensUsed/n, inputTokensUsed%n

	for i, raw := range nodeIDs {
		nodeID, ok := coerceUUID(raw, "backfill.node_id")
		if !ok {
			continue
		}

		outTokens := outPer
		if i < outRem {
			outTokens++
		}
		inTokens := inPer
		if i < inRem {
			inTokens++
		}

		tokenData, err := json.Marshal(map[string]any{
			"inputTokens":    inTokens,
			"outputTokens":   outTokens,
			"thinkingTokens": 0,
			"source":         "swarm_v2",
			"agent":          agent,
		})
		if err != nil {
			return fmt.Errorf("marshal token backfill: %w", err)
		}

		_, err = s.db.ExecContext(ctx,
			`UPDATE thinking_nodes SET token_usage = $1 WHERE id = $2`,
			tokenData, nodeID)
		if err != nil {
			slog.Warn("backfill_tokens_failed", "node_id", nodeID, "error", err)
			continue
		}
		slog.Debug("backfill_tokens_updated",
			"node_id", nodeID,
			"output_tokens", outTokens,
			"input_tokens", inTokens)
	}

	return nil
}

// coerceUUID validates and normalizes a UUID string. Invalid values
// are logged and skipped rather than failing the whole sync.
func coerceUUID(value, field string) (string, bool) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return "", false
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		slog.Warn("invalid_uuid_skipped", "field", field, "value", value)
		return "", false
	}
	return parsed.String(), true
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
