// Package persist replicates reasoning graph mutations and lifecycle
// rows to external stores and retrieves prior reasoning for query
// rehydration. The in-memory graph and lifecycle maps stay
// authoritative; everything here is a best-effort mirror behind a
// capability-probed gateway.
package persist

import (
	"context"
	"time"

	"github.com/opus-nx/swarm/pkg/models"
)

// Gateway is the external persistence contract consumed by the swarm
// coordinator, the lifecycle service, and the rehydration service.
// Implementations must keep every operation idempotent under retry and
// surface missing schema objects as *CapabilityError.
type Gateway interface {
	// Graph mirror.
	SyncNode(ctx context.Context, node *models.ReasoningNode) error
	SyncEdge(ctx context.Context, edge *models.ReasoningEdge) error
	BackfillNodeTokens(ctx context.Context, nodeIDs []string, tokensUsed, inputTokensUsed int, agent string) error

	// Hypothesis experiment lifecycle rows.
	CreateHypothesisExperiment(ctx context.Context, exp *models.HypothesisExperiment) error
	UpdateHypothesisExperiment(ctx context.Context, id string, update ExperimentUpdate) error
	GetHypothesisExperiment(ctx context.Context, id string) (*models.HypothesisExperiment, error)
	ListSessionHypothesisExperiments(ctx context.Context, sessionID string, opts ListOpts) ([]*models.HypothesisExperiment, error)
	CreateHypothesisExperimentAction(ctx context.Context, action *models.ExperimentAction) error

	// Semantic retrieval.
	GenerateReasoningEmbedding(ctx context.Context, text string) ([]float32, error)
	SearchReasoningArtifacts(ctx context.Context, embedding []float32, opts SearchOpts) ([]ArtifactMatch, error)
	SearchHypothesesSemantic(ctx context.Context, embedding []float32, opts SearchOpts) ([]HypothesisMatch, error)
	MarkReasoningArtifactUsed(ctx context.Context, artifactID string) error
	SaveReasoningArtifact(ctx context.Context, artifact *ReasoningArtifact) error
	CreateSessionRehydrationRun(ctx context.Context, run *RehydrationRun) error

	// Capability probing.
	ProbeCapabilities(ctx context.Context) Capabilities
	Capabilities() Capabilities
}

// ExperimentUpdate is a partial update of an experiment row. Nil
// fields are left untouched.
type ExperimentUpdate struct {
	Status            *models.ExperimentStatus
	ComparisonResult  map[string]any
	RetentionDecision *models.RetentionDecision
	PreferredRunID    *string
	RerunRunID        *string
	Metadata          map[string]any
}

// ListOpts filters experiment listings.
type ListOpts struct {
	Status string // empty matches all statuses
	Limit  int
}

// SearchOpts tunes a semantic search call.
type SearchOpts struct {
	Threshold    float64
	Count        int
	SessionID    string // filter to one session, empty = all
	ArtifactType string // artifact search only
	Status       string // hypothesis search only
}

// ArtifactMatch is one row returned by the artifact vector search.
type ArtifactMatch struct {
	ID              string
	SessionID       string
	Content         string
	ArtifactType    string
	ImportanceScore float64
	Snapshot        map[string]any
	UsageCount      int
	Similarity      float64
	LastUsedAt      *time.Time
	CreatedAt       *time.Time
	UpdatedAt       *time.Time
}

// HypothesisMatch is one row returned by the hypothesis vector search.
// ImportanceScore and Confidence are pointers so a missing value can
// fall through to the next scoring fallback.
type HypothesisMatch struct {
	HypothesisID        string
	SessionID           string
	ThinkingNodeID      string
	HypothesisText      string
	HypothesisTextHash  string
	Status              string
	Confidence          *float64
	ImportanceScore     *float64
	RetainedPolicyBonus float64
	Similarity          float64
	CreatedAt           *time.Time
}

// ReasoningArtifact is a retrievable reasoning record written when an
// experiment promotes an alternative hypothesis.
type ReasoningArtifact struct {
	ID              string
	SessionID       string
	ArtifactType    string
	Content         string
	Embedding       []float32
	ImportanceScore float64
	Snapshot        map[string]any
}

// RehydrationRun is the audit row written after candidate selection.
type RehydrationRun struct {
	SessionID           string
	QueryText           string
	QueryEmbedding      []float32
	SelectedArtifactIDs []string
	CandidateCount      int
	Metadata            map[string]any
}

// Capabilities is the probed view of what the external store can do.
type Capabilities struct {
	Configured       bool            `json:"configured"`
	Tables           map[string]bool `json:"tables"`
	RPC              map[string]bool `json:"rpc"`
	LifecycleReady   bool            `json:"lifecycle_ready"`
	RehydrationReady bool            `json:"rehydration_ready"`
	DegradedMode     bool            `json:"degraded_mode"`
	DegradedReason   string          `json:"degraded_reason,omitempty"`
}
