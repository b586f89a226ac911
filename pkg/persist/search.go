package persist

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateReasoningEmbedding delegates to the configured embedder. A
// nil embedder yields a nil vector, which callers treat as "retrieval
// unavailable".
func (s *Store) GenerateReasoningEmbedding(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, nil
	}
	return s.embedder.GenerateReasoningEmbedding(ctx, text)
}

// SearchReasoningArtifacts runs the artifact vector search.
func (s *Store) SearchReasoningArtifacts(ctx context.Context, embedding []float32, opts SearchOpts) ([]ArtifactMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, content, artifact_type, importance_score,
		       snapshot, usage_count, last_used_at, created_at, updated_at,
		       similarity
		FROM match_reasoning_artifacts($1::vector, $2, $3, $4, $5)`,
		vectorLiteral(embedding), opts.Threshold, opts.Count,
		nullUUID(opts.SessionID), nullString(opts.ArtifactType),
	)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	var matches []ArtifactMatch
	for rows.Next() {
		var (
			m          ArtifactMatch
			sessionID  stdsql.NullString
			artType    stdsql.NullString
			snapshot   []byte
			lastUsedAt stdsql.NullTime
			createdAt  stdsql.NullTime
			updatedAt  stdsql.NullTime
		)
		if err := rows.Scan(
			&m.ID, &sessionID, &m.Content, &artType, &m.ImportanceScore,
			&snapshot, &m.UsageCount, &lastUsedAt, &createdAt, &updatedAt,
			&m.Similarity,
		); err != nil {
			return nil, err
		}
		m.SessionID = sessionID.String
		m.ArtifactType = artType.String
		if len(snapshot) > 0 {
			if err := json.Unmarshal(snapshot, &m.Snapshot); err != nil {
				return nil, fmt.Errorf("unmarshal artifact snapshot: %w", err)
			}
		}
		m.LastUsedAt = timePtr(lastUsedAt)
		m.CreatedAt = timePtr(createdAt)
		m.UpdatedAt = timePtr(updatedAt)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// SearchHypothesesSemantic runs the hypothesis vector search.
func (s *Store) SearchHypothesesSemantic(ctx context.Context, embedding []float32, opts SearchOpts) ([]HypothesisMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hypothesis_id, session_id, thinking_node_id, hypothesis_text,
		       hypothesis_text_hash, status, confidence, importance_score,
		       retained_policy_bonus, created_at, similarity
		FROM match_structured_reasoning_hypotheses($1::vector, $2, $3, $4, $5)`,
		vectorLiteral(embedding), opts.Threshold, opts.Count,
		nullUUID(opts.SessionID), nullString(opts.Status),
	)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	var matches []HypothesisMatch
	for rows.Next() {
		var (
			m          HypothesisMatch
			sessionID  stdsql.NullString
			nodeID     stdsql.NullString
			textHash   stdsql.NullString
			status     stdsql.NullString
			confidence stdsql.NullFloat64
			importance stdsql.NullFloat64
			createdAt  stdsql.NullTime
		)
		if err := rows.Scan(
			&m.HypothesisID, &sessionID, &nodeID, &m.HypothesisText,
			&textHash, &status, &confidence, &importance,
			&m.RetainedPolicyBonus, &createdAt, &m.Similarity,
		); err != nil {
			return nil, err
		}
		m.SessionID = sessionID.String
		m.ThinkingNodeID = nodeID.String
		m.HypothesisTextHash = textHash.String
		m.Status = status.String
		if confidence.Valid {
			m.Confidence = &confidence.Float64
		}
		if importance.Valid {
			m.ImportanceScore = &importance.Float64
		}
		m.CreatedAt = timePtr(createdAt)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// MarkReasoningArtifactUsed bumps the usage counters on an artifact.
func (s *Store) MarkReasoningArtifactUsed(ctx context.Context, artifactID string) error {
	id, ok := coerceUUID(artifactID, "reasoning_artifacts.id")
	if !ok {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE reasoning_artifacts
		SET usage_count = usage_count + 1,
		    last_used_at = now(),
		    updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return s.mapError(err)
	}
	return nil
}

// SaveReasoningArtifact upserts a retrievable reasoning record.
func (s *Store) SaveReasoningArtifact(ctx context.Context, artifact *ReasoningArtifact) error {
	id := artifact.ID
	if id == "" {
		id = uuid.NewString()
	}

	snapshot, err := json.Marshal(orEmptyMap(artifact.Snapshot))
	if err != nil {
		return fmt.Errorf("marshal artifact snapshot: %w", err)
	}

	var embedding any
	if len(artifact.Embedding) > 0 {
		embedding = vectorLiteral(artifact.Embedding)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reasoning_artifacts (
			id, session_id, artifact_type, content, embedding,
			importance_score, snapshot
		) VALUES ($1, $2, $3, $4, $5::vector, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = COALESCE(EXCLUDED.embedding, reasoning_artifacts.embedding),
			importance_score = EXCLUDED.importance_score,
			snapshot = EXCLUDED.snapshot,
			updated_at = now()`,
		id, nullUUID(artifact.SessionID), artifact.ArtifactType,
		artifact.Content, embedding, artifact.ImportanceScore, snapshot,
	)
	if err != nil {
		return s.mapError(err)
	}
	return nil
}

// CreateSessionRehydrationRun writes the retrieval audit row.
func (s *Store) CreateSessionRehydrationRun(ctx context.Context, run *RehydrationRun) error {
	selectedIDs, err := json.Marshal(run.SelectedArtifactIDs)
	if err != nil {
		return fmt.Errorf("marshal selected_artifact_ids: %w", err)
	}
	metadata, err := json.Marshal(orEmptyMap(run.Metadata))
	if err != nil {
		return fmt.Errorf("marshal rehydration metadata: %w", err)
	}

	var embedding any
	if len(run.QueryEmbedding) > 0 {
		embedding = vectorLiteral(run.QueryEmbedding)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_rehydration_runs (
			session_id, query_text, query_embedding,
			selected_artifact_ids, candidate_count, metadata
		) VALUES ($1, $2, $3::vector, $4, $5, $6)`,
		run.SessionID, run.QueryText, embedding,
		selectedIDs, run.CandidateCount, metadata,
	)
	if err != nil {
		return s.mapError(err)
	}
	return nil
}

// vectorLiteral renders a float slice in pgvector's text input format.
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func nullUUID(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func timePtr(t stdsql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	tt := t.Time
	return &tt
}
