package models

import (
	"time"

	"github.com/google/uuid"
)

// HypothesisExperiment tracks an alternative line of reasoning promoted
// from a human checkpoint through re-run, comparison and retention.
type HypothesisExperiment struct {
	ID                 string            `json:"id"`
	SessionID          string            `json:"session_id"`
	NodeID             string            `json:"node_id"`
	AlternativeSummary string            `json:"alternative_summary"`
	Status             ExperimentStatus  `json:"status"`
	ComparisonResult   map[string]any    `json:"comparison_result,omitempty"`
	RetentionDecision  RetentionDecision `json:"retention_decision,omitempty"`
	PreferredRunID     string            `json:"preferred_run_id,omitempty"`
	RerunRunID         string            `json:"rerun_run_id,omitempty"`
	PromotedBy         string            `json:"promoted_by,omitempty"`
	Metadata           map[string]any    `json:"metadata,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// NewHypothesisExperiment builds a freshly promoted experiment
func NewHypothesisExperiment(sessionID, nodeID, alternativeSummary, promotedBy string) *HypothesisExperiment {
	now := time.Now().UTC()
	return &HypothesisExperiment{
		ID:                 uuid.NewString(),
		SessionID:          sessionID,
		NodeID:             nodeID,
		AlternativeSummary: alternativeSummary,
		Status:             ExperimentPromoted,
		PromotedBy:         promotedBy,
		Metadata:           map[string]any{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// ExperimentAction is one audit entry in an experiment's history
type ExperimentAction struct {
	ID           string         `json:"id"`
	ExperimentID string         `json:"experiment_id"`
	SessionID    string         `json:"session_id"`
	Action       string         `json:"action"`
	PerformedBy  string         `json:"performed_by,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NewExperimentAction builds an audit entry with a fresh id
func NewExperimentAction(experimentID, sessionID, action, performedBy string) *ExperimentAction {
	return &ExperimentAction{
		ID:           uuid.NewString(),
		ExperimentID: experimentID,
		SessionID:    sessionID,
		Action:       action,
		PerformedBy:  performedBy,
		Details:      map[string]any{},
		CreatedAt:    time.Now().UTC(),
	}
}
