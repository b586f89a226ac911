package swarm

import (
	"context"
	"crypto/md5"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opus-nx/swarm/pkg/metrics"
	"github.com/opus-nx/swarm/pkg/persist"
)

const (
	rehydrationThreshold  = 0.68
	rehydrationMatchCount = 12
	rehydrationSelectMax  = 4
	rehydrationExcerptLen = 420
)

const rehydrationHeader = "Prior reasoning artifacts and hypotheses (semantic matches). " +
	"Use as hypotheses/evidence, and verify before adopting:"

const rehydrationInstruction = "Treat retrieved artifacts as prior hypotheses. " +
	"Verify, refine, or reject."

// rehydrationStats tracks hit rate across runs for the periodic log line.
type rehydrationStats struct {
	mu            sync.Mutex
	runs          int
	hits          int
	selectedTotal int
}

func (s *rehydrationStats) record(selected int) (hitRate, avgSelected float64, runs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	s.selectedTotal += selected
	if selected > 0 {
		s.hits++
	}
	return float64(s.hits) / float64(s.runs), float64(s.selectedTotal) / float64(s.runs), s.runs
}

// candidate is one scored retrieval row, artifact or hypothesis.
type candidate struct {
	Source        string
	ID            string
	SessionID     string
	Text          string
	TextHash      string
	Similarity    float64
	Importance    float64
	Recency       float64
	RetainedBonus float64
	Score         float64
}

func candidateScore(similarity, importance, recency, retainedBonus float64) float64 {
	return 0.60*similarity + 0.25*importance + 0.10*recency + 0.05*retainedBonus
}

// recencyScore decays linearly over 30 days. Rows with no timestamp
// score a neutral 0.5 rather than penalizing old imports.
func recencyScore(ts *time.Time, now time.Time) float64 {
	if ts == nil {
		return 0.5
	}
	ageDays := now.Sub(*ts).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	score := 1.0 - ageDays/30.0
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func textHash(text string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(strings.ToLower(text))))
}

// rehydrationContext retrieves semantically similar prior reasoning and
// formats it as a preamble for the swarm query. Returns "" whenever
// retrieval is unavailable or finds nothing, and never fails the run.
func (c *Coordinator) rehydrationContext(ctx context.Context, query, sessionID string) string {
	metrics.RehydrationRuns.Inc()

	embedStart := time.Now()
	embedding, err := c.gateway.GenerateReasoningEmbedding(ctx, query)
	if err != nil {
		c.logger.Warn("Rehydration embedding failed", "session_id", sessionID, "error", err)
		return ""
	}
	c.logger.Info("Rehydration phase",
		"phase", "embed_generation",
		"session_id", sessionID,
		"duration_ms", time.Since(embedStart).Milliseconds(),
		"success", len(embedding) > 0)
	if len(embedding) == 0 {
		return ""
	}

	searchStart := time.Now()
	var artifactMatches []persist.ArtifactMatch
	var hypothesisMatches []persist.HypothesisMatch
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		artifactMatches, err = c.gateway.SearchReasoningArtifacts(gctx, embedding, persist.SearchOpts{
			Threshold: rehydrationThreshold,
			Count:     rehydrationMatchCount,
		})
		return err
	})
	g.Go(func() error {
		var err error
		hypothesisMatches, err = c.gateway.SearchHypothesesSemantic(gctx, embedding, persist.SearchOpts{
			Threshold: rehydrationThreshold,
			Count:     rehydrationMatchCount,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		c.logger.Warn("Rehydration search failed", "session_id", sessionID, "error", err)
		return ""
	}
	c.logger.Info("Rehydration phase",
		"phase", "semantic_search",
		"session_id", sessionID,
		"duration_ms", time.Since(searchStart).Milliseconds(),
		"artifact_candidates", len(artifactMatches),
		"hypothesis_candidates", len(hypothesisMatches))

	if len(artifactMatches) == 0 && len(hypothesisMatches) == 0 {
		return ""
	}

	now := time.Now()
	candidates := make([]candidate, 0, len(artifactMatches)+len(hypothesisMatches))

	for _, row := range artifactMatches {
		content := strings.TrimSpace(row.Content)
		if content == "" {
			continue
		}
		sourceSession := row.SessionID
		if sourceSession == "" {
			sourceSession = "unknown"
		}
		retainedBonus := 0.0
		if decision, _ := row.Snapshot["retention_decision"].(string); decision == "retain" {
			retainedBonus = 1.0
		}
		ts := row.UpdatedAt
		if ts == nil {
			ts = row.CreatedAt
		}
		if ts == nil {
			ts = row.LastUsedAt
		}
		recency := recencyScore(ts, now)
		candidates = append(candidates, candidate{
			Source:        "artifact",
			ID:            row.ID,
			SessionID:     sourceSession,
			Text:          content,
			TextHash:      textHash(content),
			Similarity:    row.Similarity,
			Importance:    row.ImportanceScore,
			Recency:       recency,
			RetainedBonus: retainedBonus,
			Score:         candidateScore(row.Similarity, row.ImportanceScore, recency, retainedBonus),
		})
	}

	for _, row := range hypothesisMatches {
		text := strings.TrimSpace(row.HypothesisText)
		if text == "" {
			continue
		}
		sourceSession := row.SessionID
		if sourceSession == "" {
			sourceSession = "unknown"
		}
		importance := 0.5
		switch {
		case row.ImportanceScore != nil:
			importance = *row.ImportanceScore
		case row.Confidence != nil:
			importance = *row.Confidence
		}
		recency := recencyScore(row.CreatedAt, now)
		hash := strings.TrimSpace(row.HypothesisTextHash)
		if hash == "" {
			hash = textHash(text)
		}
		candidates = append(candidates, candidate{
			Source:        "hypothesis",
			ID:            row.HypothesisID,
			SessionID:     sourceSession,
			Text:          text,
			TextHash:      hash,
			Similarity:    row.Similarity,
			Importance:    importance,
			Recency:       recency,
			RetainedBonus: row.RetainedPolicyBonus,
			Score:         candidateScore(row.Similarity, importance, recency, row.RetainedPolicyBonus),
		})
	}

	selected, dedupedCount := selectCandidates(candidates, sessionID)
	if len(selected) == 0 {
		return ""
	}

	lines := make([]string, 0, len(selected))
	var selectedArtifactIDs []string
	for i, cand := range selected {
		if cand.Source == "artifact" && cand.ID != "" {
			selectedArtifactIDs = append(selectedArtifactIDs, cand.ID)
		}
		excerpt := cand.Text
		if runes := []rune(excerpt); len(runes) > rehydrationExcerptLen {
			excerpt = string(runes[:rehydrationExcerptLen]) + "..."
		}
		lines = append(lines, fmt.Sprintf(
			"%d. source=%s session=%s score=%.3f (sim=%.2f imp=%.2f recency=%.2f retain=%.2f)\n%s",
			i+1, cand.Source, cand.SessionID, cand.Score,
			cand.Similarity, cand.Importance, cand.Recency, cand.RetainedBonus, excerpt))
	}

	c.auditRehydration(ctx, sessionID, query, embedding, selectedArtifactIDs, auditCounts{
		candidates: len(candidates),
		deduped:    dedupedCount,
		artifacts:  len(artifactMatches),
		hypotheses: len(hypothesisMatches),
		selected:   len(lines),
	})

	metrics.RehydrationHits.Inc()
	hitRate, avgSelected, runs := c.rehydration.record(len(lines))
	c.logger.Info("Rehydration metrics",
		"session_id", sessionID,
		"hit_rate", fmt.Sprintf("%.4f", hitRate),
		"avg_selected_candidates", fmt.Sprintf("%.4f", avgSelected),
		"total_runs", runs)

	return rehydrationHeader + "\n" + strings.Join(lines, "\n\n")
}

// selectCandidates dedups by session+content hash keeping the higher
// score, ranks by score, prefers cross-session candidates when any
// exist, and takes the top few. Also returns the post-dedup count for
// the audit row.
func selectCandidates(candidates []candidate, sessionID string) ([]candidate, int) {
	deduped := map[string]candidate{}
	order := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		key := cand.SessionID + ":" + cand.TextHash
		existing, ok := deduped[key]
		if !ok {
			order = append(order, key)
		}
		if !ok || cand.Score > existing.Score {
			deduped[key] = cand
		}
	}

	ranked := make([]candidate, 0, len(deduped))
	for _, key := range order {
		ranked = append(ranked, deduped[key])
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	dedupedCount := len(ranked)

	var crossSession []candidate
	for _, cand := range ranked {
		if cand.SessionID != sessionID {
			crossSession = append(crossSession, cand)
		}
	}
	if len(crossSession) > 0 {
		ranked = crossSession
	}
	if len(ranked) > rehydrationSelectMax {
		ranked = ranked[:rehydrationSelectMax]
	}
	return ranked, dedupedCount
}

type auditCounts struct {
	candidates int
	deduped    int
	artifacts  int
	hypotheses int
	selected   int
}

func (c *Coordinator) auditRehydration(ctx context.Context, sessionID, query string,
	embedding []float32, artifactIDs []string, counts auditCounts) {
	for _, id := range artifactIDs {
		if err := c.gateway.MarkReasoningArtifactUsed(ctx, id); err != nil {
			c.logger.Warn("Artifact usage mark failed",
				"session_id", sessionID, "artifact_id", id, "error", err)
		}
	}
	err := c.gateway.CreateSessionRehydrationRun(ctx, &persist.RehydrationRun{
		SessionID:           sessionID,
		QueryText:           query,
		QueryEmbedding:      embedding,
		SelectedArtifactIDs: artifactIDs,
		CandidateCount:      counts.candidates,
		Metadata: map[string]any{
			"source":                  "swarm_v2",
			"selected_count":          counts.selected,
			"selected_artifact_count": len(artifactIDs),
			"artifact_candidates":     counts.artifacts,
			"hypothesis_candidates":   counts.hypotheses,
			"deduped_candidate_count": counts.deduped,
		},
	})
	if err != nil {
		c.logger.Warn("Rehydration audit write failed", "session_id", sessionID, "error", err)
	}
}

// augmentQuery appends the rehydration preamble to the user query.
func augmentQuery(query, preamble string) string {
	if preamble == "" {
		return query
	}
	return query + "\n\n" + preamble + "\n\n" + rehydrationInstruction
}
