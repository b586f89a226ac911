// Package lifecycle tracks hypothesis experiments from promotion
// through checkpoint, rerun, comparison and retention. The in-memory
// maps are authoritative; the external store is an opportunistic
// mirror and its absence only flips a degraded-mode flag.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opus-nx/swarm/pkg/events"
	"github.com/opus-nx/swarm/pkg/metrics"
	"github.com/opus-nx/swarm/pkg/models"
	"github.com/opus-nx/swarm/pkg/persist"
	"github.com/opus-nx/swarm/pkg/swarm"
)

// allowedTransitions enumerates the experiment state machine. Self
// loops are always permitted; everything else must appear here.
var allowedTransitions = map[models.ExperimentStatus][]models.ExperimentStatus{
	models.ExperimentPromoted:     {models.ExperimentCheckpointed, models.ExperimentArchived},
	models.ExperimentCheckpointed: {models.ExperimentRerunning, models.ExperimentArchived},
	models.ExperimentRerunning:    {models.ExperimentComparing},
	models.ExperimentComparing:    {models.ExperimentRerunning, models.ExperimentRetained, models.ExperimentDeferred, models.ExperimentArchived},
	models.ExperimentRetained:     {models.ExperimentArchived},
	models.ExperimentDeferred:     {models.ExperimentArchived},
	models.ExperimentArchived:     {},
}

func canTransition(from, to models.ExperimentStatus) bool {
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Rerunner triggers a correction rerun of the analysis agents. The
// swarm coordinator satisfies this.
type Rerunner interface {
	RerunWithCorrection(ctx context.Context, sessionID, nodeID, correction, experimentID string) (*swarm.RerunResult, error)
}

// CompareOptions tunes a comparison request. ForceRerun discards an
// existing result and reruns the analysis agents. NodeID and
// Correction, when set, override the values recorded at checkpoint
// time for this rerun only; the stored experiment is not rewritten.
type CompareOptions struct {
	ForceRerun bool
	NodeID     string
	Correction string
}

// CompareOutcome reports how a comparison request was resolved.
type CompareOutcome struct {
	Status           string                      `json:"status"` // existing, inflight, comparing
	Experiment       *models.HypothesisExperiment `json:"experiment"`
	ComparisonResult map[string]any              `json:"comparison_result,omitempty"`
}

// Snapshot is the lifecycle metrics view exposed over the API.
type Snapshot struct {
	Experiments           int                  `json:"experiments"`
	CompareRequests       int                  `json:"compare_requests"`
	CompareCompleted      int                  `json:"compare_completed"`
	CompareCompletionRate float64              `json:"compare_completion_rate"`
	RetentionCounts       map[string]int       `json:"retention_counts"`
	RetentionRatio        map[string]float64   `json:"retention_ratio"`
	DegradedMode          bool                 `json:"degraded_mode"`
	Capabilities          persist.Capabilities `json:"capabilities"`
}

// Service is the hypothesis experiment lifecycle service.
type Service struct {
	mu        sync.Mutex
	byID      map[string]*models.HypothesisExperiment
	bySession map[string][]string
	inflight  map[string]struct{}

	compareRequests  int
	compareCompleted int
	retentionCounts  map[models.RetentionDecision]int
	degraded         bool

	gateway  persist.Gateway
	bus      *events.Bus
	rerunner Rerunner
	logger   *slog.Logger
}

// NewService builds the lifecycle service over the given mirror and
// rerunner. Logger defaults to slog.Default when nil.
func NewService(gateway persist.Gateway, bus *events.Bus, rerunner Rerunner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		byID:            map[string]*models.HypothesisExperiment{},
		bySession:       map[string][]string{},
		inflight:        map[string]struct{}{},
		retentionCounts: map[models.RetentionDecision]int{},
		gateway:         gateway,
		bus:             bus,
		rerunner:        rerunner,
		logger:          logger,
	}
}

// CreateExperiment promotes an alternative hypothesis from a human
// checkpoint. Writes the promote action and a retrievable reasoning
// artifact through the gateway, best-effort.
func (s *Service) CreateExperiment(ctx context.Context, sessionID, nodeID, alternativeSummary, promotedBy string) (*models.HypothesisExperiment, error) {
	if sessionID == "" {
		return nil, NewValidationError("session_id", "required")
	}
	if nodeID == "" {
		return nil, NewValidationError("node_id", "required")
	}
	if alternativeSummary == "" {
		return nil, NewValidationError("alternative_summary", "required")
	}

	exp := models.NewHypothesisExperiment(sessionID, nodeID, alternativeSummary, promotedBy)

	s.mu.Lock()
	s.byID[exp.ID] = exp
	s.bySession[sessionID] = append(s.bySession[sessionID], exp.ID)
	snapshot := cloneExperiment(exp)
	s.mu.Unlock()
	metrics.LifecycleTransitions.WithLabelValues(string(models.ExperimentPromoted)).Inc()

	action := models.NewExperimentAction(exp.ID, sessionID, "promote", promotedBy)
	action.Details["node_id"] = nodeID
	action.Details["alternative_summary"] = alternativeSummary

	s.mirror(ctx, "experiment_create", func(ctx context.Context) error {
		return s.gateway.CreateHypothesisExperiment(ctx, snapshot)
	})
	s.mirror(ctx, "experiment_action", func(ctx context.Context) error {
		return s.gateway.CreateHypothesisExperimentAction(ctx, action)
	})
	s.saveArtifact(ctx, snapshot)

	s.logger.Info("Hypothesis experiment promoted",
		"experiment_id", exp.ID, "session_id", sessionID, "node_id", nodeID)
	return snapshot, nil
}

// saveArtifact persists the promoted alternative as a retrievable
// reasoning artifact so later sessions can rehydrate from it.
func (s *Service) saveArtifact(ctx context.Context, exp *models.HypothesisExperiment) {
	embedding, err := s.gateway.GenerateReasoningEmbedding(ctx, exp.AlternativeSummary)
	if err != nil {
		s.logger.Warn("Artifact embedding failed", "experiment_id", exp.ID, "error", err)
	}
	s.mirror(ctx, "artifact_save", func(ctx context.Context) error {
		return s.gateway.SaveReasoningArtifact(ctx, &persist.ReasoningArtifact{
			SessionID:       exp.SessionID,
			ArtifactType:    "promoted_hypothesis",
			Content:         exp.AlternativeSummary,
			Embedding:       embedding,
			ImportanceScore: 0.75,
			Snapshot: map[string]any{
				"experiment_id": exp.ID,
				"node_id":       exp.NodeID,
				"promoted_by":   exp.PromotedBy,
			},
		})
	})
}

// Get returns a copy of the experiment.
func (s *Service) Get(_ context.Context, id string) (*models.HypothesisExperiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneExperiment(exp), nil
}

// ListSession returns the session's experiments, newest first,
// optionally filtered by status.
func (s *Service) ListSession(_ context.Context, sessionID string, status models.ExperimentStatus, limit int) []*models.HypothesisExperiment {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.bySession[sessionID]
	out := make([]*models.HypothesisExperiment, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		exp := s.byID[ids[i]]
		if status != "" && exp.Status != status {
			continue
		}
		out = append(out, cloneExperiment(exp))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// RecordCheckpointAction logs a human checkpoint against the
// experiment and advances it to checkpointed.
func (s *Service) RecordCheckpointAction(ctx context.Context, experimentID, nodeID string, verdict models.CheckpointVerdict, correction, performedBy string) error {
	s.mu.Lock()
	exp, ok := s.byID[experimentID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if correction != "" {
		exp.Metadata["last_correction"] = correction
	}
	s.transitionLocked(exp, models.ExperimentCheckpointed)
	snapshot := cloneExperiment(exp)
	s.mu.Unlock()

	action := models.NewExperimentAction(experimentID, snapshot.SessionID, "checkpoint", performedBy)
	action.Details["node_id"] = nodeID
	action.Details["verdict"] = string(verdict)
	if correction != "" {
		action.Details["correction"] = correction
	}

	s.mirror(ctx, "experiment_action", func(ctx context.Context) error {
		return s.gateway.CreateHypothesisExperimentAction(ctx, action)
	})
	s.mirrorStatus(ctx, snapshot)
	return nil
}

// TriggerRerun moves the experiment to rerunning, emits the update,
// and launches the correction rerun in the background.
func (s *Service) TriggerRerun(ctx context.Context, experimentID, correction string) error {
	s.mu.Lock()
	exp, ok := s.byID[experimentID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if !s.transitionLocked(exp, models.ExperimentRerunning) {
		s.mu.Unlock()
		return nil
	}
	if correction == "" {
		correction = s.correctionLocked(exp)
	}
	snapshot := cloneExperiment(exp)
	s.mu.Unlock()

	s.publishUpdate(snapshot)
	s.mirrorStatus(ctx, snapshot)

	go s.runComparison(context.WithoutCancel(ctx), snapshot, correction)
	return nil
}

// Compare resolves a comparison request. An existing result fast-paths
// into comparing unless forced; an in-flight rerun returns inflight;
// otherwise a background rerun is started. A forced compare on an
// experiment that already holds a result loops it back through
// rerunning.
func (s *Service) Compare(ctx context.Context, experimentID string, opts CompareOptions) (*CompareOutcome, error) {
	metrics.CompareRequests.Inc()

	s.mu.Lock()
	s.compareRequests++
	exp, ok := s.byID[experimentID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	if len(exp.ComparisonResult) > 0 && !opts.ForceRerun {
		s.transitionLocked(exp, models.ExperimentComparing)
		snapshot := cloneExperiment(exp)
		s.mu.Unlock()
		s.mirrorStatus(ctx, snapshot)
		return &CompareOutcome{
			Status:           "existing",
			Experiment:       snapshot,
			ComparisonResult: snapshot.ComparisonResult,
		}, nil
	}

	if _, busy := s.inflight[experimentID]; busy {
		snapshot := cloneExperiment(exp)
		s.mu.Unlock()
		return &CompareOutcome{Status: "inflight", Experiment: snapshot}, nil
	}

	if !s.transitionLocked(exp, models.ExperimentRerunning) {
		s.mu.Unlock()
		return nil, ErrConflict
	}
	s.inflight[experimentID] = struct{}{}
	correction := opts.Correction
	if correction == "" {
		correction = s.correctionLocked(exp)
	}
	snapshot := cloneExperiment(exp)
	if opts.NodeID != "" {
		snapshot.NodeID = opts.NodeID
	}
	s.mu.Unlock()

	s.publishUpdate(snapshot)
	s.mirrorStatus(ctx, snapshot)
	go s.runComparison(context.WithoutCancel(ctx), snapshot, correction)
	return &CompareOutcome{Status: "comparing", Experiment: snapshot}, nil
}

// runComparison performs the correction rerun and records its outcome
// as the comparison result.
func (s *Service) runComparison(ctx context.Context, exp *models.HypothesisExperiment, correction string) {
	defer func() {
		s.mu.Lock()
		delete(s.inflight, exp.ID)
		s.mu.Unlock()
	}()

	result, err := s.rerunner.RerunWithCorrection(ctx, exp.SessionID, exp.NodeID, correction, exp.ID)
	if err != nil {
		s.logger.Error("Comparison rerun failed",
			"experiment_id", exp.ID, "session_id", exp.SessionID, "error", err)
		return
	}

	comparison := map[string]any{
		"status":            result.Status,
		"rerun_agents":      result.Agents,
		"total_tokens":      result.TotalTokens,
		"total_duration_ms": result.TotalDurationMS,
		"compared_at":       time.Now().UTC().Format(time.RFC3339),
	}

	s.mu.Lock()
	stored, ok := s.byID[exp.ID]
	if !ok {
		s.mu.Unlock()
		return
	}
	stored.ComparisonResult = comparison
	s.transitionLocked(stored, models.ExperimentComparing)
	s.compareCompleted++
	snapshot := cloneExperiment(stored)
	s.mu.Unlock()

	metrics.CompareCompleted.Inc()
	s.publishUpdate(snapshot)
	s.mirror(ctx, "experiment_update", func(ctx context.Context) error {
		status := snapshot.Status
		return s.gateway.UpdateHypothesisExperiment(ctx, snapshot.ID, persist.ExperimentUpdate{
			Status:           &status,
			ComparisonResult: comparison,
		})
	})
	s.logger.Info("Comparison recorded",
		"experiment_id", exp.ID, "session_id", exp.SessionID,
		"total_tokens", result.TotalTokens)
}

// Retain records the operator's final decision. Disallowed transitions
// warn and leave the experiment untouched.
func (s *Service) Retain(ctx context.Context, experimentID string, decision models.RetentionDecision, performedBy string) (*models.HypothesisExperiment, error) {
	if !decision.IsValid() {
		return nil, NewValidationError("decision", "must be retain, defer, or archive")
	}

	s.mu.Lock()
	exp, ok := s.byID[experimentID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if !s.transitionLocked(exp, decision.Status()) {
		snapshot := cloneExperiment(exp)
		s.mu.Unlock()
		return snapshot, nil
	}
	exp.RetentionDecision = decision
	s.retentionCounts[decision]++
	snapshot := cloneExperiment(exp)
	s.mu.Unlock()

	s.publishUpdate(snapshot)
	action := models.NewExperimentAction(experimentID, snapshot.SessionID, "retain", performedBy)
	action.Details["decision"] = string(decision)
	s.mirror(ctx, "experiment_action", func(ctx context.Context) error {
		return s.gateway.CreateHypothesisExperimentAction(ctx, action)
	})
	s.mirror(ctx, "experiment_update", func(ctx context.Context) error {
		status := snapshot.Status
		return s.gateway.UpdateHypothesisExperiment(ctx, snapshot.ID, persist.ExperimentUpdate{
			Status:            &status,
			RetentionDecision: &decision,
		})
	})

	s.logger.Info("Retention decision recorded",
		"experiment_id", experimentID, "decision", decision, "status", snapshot.Status)
	return snapshot, nil
}

// Metrics returns the lifecycle snapshot for the capabilities API.
func (s *Service) Metrics() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[string]int{}
	total := 0
	for decision, n := range s.retentionCounts {
		counts[string(decision)] = n
		total += n
	}
	ratio := map[string]float64{}
	if total > 0 {
		for decision, n := range s.retentionCounts {
			ratio[string(decision)] = float64(n) / float64(total)
		}
	}
	rate := 0.0
	if s.compareRequests > 0 {
		rate = float64(s.compareCompleted) / float64(s.compareRequests)
	}

	caps := s.gateway.Capabilities()
	return Snapshot{
		Experiments:           len(s.byID),
		CompareRequests:       s.compareRequests,
		CompareCompleted:      s.compareCompleted,
		CompareCompletionRate: rate,
		RetentionCounts:       counts,
		RetentionRatio:        ratio,
		DegradedMode:          s.degraded || caps.DegradedMode,
		Capabilities:          caps,
	}
}

// transitionLocked applies a state change if the machine allows it.
// Caller holds s.mu. Self-loops succeed without counting.
func (s *Service) transitionLocked(exp *models.HypothesisExperiment, to models.ExperimentStatus) bool {
	if exp.Status == to {
		return true
	}
	if !canTransition(exp.Status, to) {
		s.logger.Warn("Disallowed experiment transition ignored",
			"experiment_id", exp.ID, "from", exp.Status, "to", to)
		return false
	}
	exp.Status = to
	exp.UpdatedAt = time.Now().UTC()
	metrics.LifecycleTransitions.WithLabelValues(string(to)).Inc()
	return true
}

func (s *Service) correctionLocked(exp *models.HypothesisExperiment) string {
	if c, _ := exp.Metadata["last_correction"].(string); c != "" {
		return c
	}
	return exp.AlternativeSummary
}

func (s *Service) publishUpdate(exp *models.HypothesisExperiment) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(exp.SessionID, events.NewHypothesisExperimentUpdated(exp.SessionID, exp))
}

// mirror runs a best-effort gateway write with the standard retry
// policy. A missing capability flips degraded mode instead of failing.
func (s *Service) mirror(ctx context.Context, op string, fn func(context.Context) error) {
	err := persist.Do(ctx, op, fn)
	if err == nil {
		return
	}
	if persist.IsCapability(err) {
		s.mu.Lock()
		s.degraded = true
		s.mu.Unlock()
	}
	s.logger.Warn("Lifecycle mirror write failed", "op", op, "error", err)
}

func (s *Service) mirrorStatus(ctx context.Context, exp *models.HypothesisExperiment) {
	s.mirror(ctx, "experiment_update", func(ctx context.Context) error {
		status := exp.Status
		return s.gateway.UpdateHypothesisExperiment(ctx, exp.ID, persist.ExperimentUpdate{Status: &status})
	})
}

func cloneExperiment(exp *models.HypothesisExperiment) *models.HypothesisExperiment {
	out := *exp
	if exp.ComparisonResult != nil {
		out.ComparisonResult = make(map[string]any, len(exp.ComparisonResult))
		for k, v := range exp.ComparisonResult {
			out.ComparisonResult[k] = v
		}
	}
	if exp.Metadata != nil {
		out.Metadata = make(map[string]any, len(exp.Metadata))
		for k, v := range exp.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
