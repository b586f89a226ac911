package persist

import (
	"context"

	"github.com/opus-nx/swarm/pkg/models"
)

// NopGateway is the gateway used when no external store is configured.
// Writes vanish, searches come back empty, and the capability report
// pins the process in degraded mode. The in-memory graph and lifecycle
// maps keep the product fully usable for live sessions.
type NopGateway struct{}

var _ Gateway = NopGateway{}

func (NopGateway) SyncNode(context.Context, *models.ReasoningNode) error { return nil }

func (NopGateway) SyncEdge(context.Context, *models.ReasoningEdge) error { return nil }

func (NopGateway) BackfillNodeTokens(context.Context, []string, int, int, string) error {
	return nil
}

func (NopGateway) CreateHypothesisExperiment(context.Context, *models.HypothesisExperiment) error {
	return nil
}

func (NopGateway) UpdateHypothesisExperiment(context.Context, string, ExperimentUpdate) error {
	return nil
}

func (NopGateway) GetHypothesisExperiment(context.Context, string) (*models.HypothesisExperiment, error) {
	return nil, ErrNotConfigured
}

func (NopGateway) ListSessionHypothesisExperiments(context.Context, string, ListOpts) ([]*models.HypothesisExperiment, error) {
	return nil, nil
}

func (NopGateway) CreateHypothesisExperimentAction(context.Context, *models.ExperimentAction) error {
	return nil
}

func (NopGateway) GenerateReasoningEmbedding(context.Context, string) ([]float32, error) {
	return nil, nil
}

func (NopGateway) SearchReasoningArtifacts(context.Context, []float32, SearchOpts) ([]ArtifactMatch, error) {
	return nil, nil
}

func (NopGateway) SearchHypothesesSemantic(context.Context, []float32, SearchOpts) ([]HypothesisMatch, error) {
	return nil, nil
}

func (NopGateway) MarkReasoningArtifactUsed(context.Context, string) error { return nil }

func (NopGateway) SaveReasoningArtifact(context.Context, *ReasoningArtifact) error { return nil }

func (NopGateway) CreateSessionRehydrationRun(context.Context, *RehydrationRun) error { return nil }

func (NopGateway) ProbeCapabilities(context.Context) Capabilities { return nopCapabilities() }

func (NopGateway) Capabilities() Capabilities { return nopCapabilities() }

func nopCapabilities() Capabilities {
	return Capabilities{
		Configured:     false,
		Tables:         map[string]bool{},
		RPC:            map[string]bool{},
		DegradedMode:   true,
		DegradedReason: "persistence not configured",
	}
}
