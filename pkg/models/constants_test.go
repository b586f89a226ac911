package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAgentNameIsValid(t *testing.T) {
	tests := []struct {
		name  string
		agent AgentName
		valid bool
	}{
		{"maestro", AgentMaestro, true},
		{"deep_thinker", AgentDeepThinker, true},
		{"contrarian", AgentContrarian, true},
		{"verifier", AgentVerifier, true},
		{"synthesizer", AgentSynthesizer, true},
		{"metacognition", AgentMetacognition, true},
		{"invalid", AgentName("oracle"), false},
		{"empty", AgentName(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.agent.IsValid())
		})
	}
}

func TestEdgeRelationIsValid(t *testing.T) {
	tests := []struct {
		name     string
		relation EdgeRelation
		valid    bool
	}{
		{"leads_to", RelationLeadsTo, true},
		{"challenges", RelationChallenges, true},
		{"verifies", RelationVerifies, true},
		{"supports", RelationSupports, true},
		{"contradicts", RelationContradicts, true},
		{"merges", RelationMerges, true},
		{"observes", RelationObserves, true},
		{"lowercase", EdgeRelation("leads_to"), false},
		{"empty", EdgeRelation(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.relation.IsValid())
		})
	}
}

func TestExperimentStatusTerminal(t *testing.T) {
	tests := []struct {
		name     string
		status   ExperimentStatus
		terminal bool
	}{
		{"promoted", ExperimentPromoted, false},
		{"checkpointed", ExperimentCheckpointed, false},
		{"rerunning", ExperimentRerunning, false},
		{"comparing", ExperimentComparing, false},
		{"retained", ExperimentRetained, true},
		{"deferred", ExperimentDeferred, true},
		{"archived", ExperimentArchived, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.status.IsValid())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestRetentionDecisionStatus(t *testing.T) {
	assert.Equal(t, ExperimentRetained, RetentionRetain.Status())
	assert.Equal(t, ExperimentDeferred, RetentionDefer.Status())
	assert.Equal(t, ExperimentArchived, RetentionArchive.Status())
	assert.False(t, RetentionDecision("keep").IsValid())
}

func TestCheckpointVerdictIsValid(t *testing.T) {
	for _, v := range []CheckpointVerdict{
		VerdictVerified, VerdictQuestionable, VerdictDisagree,
		VerdictAgree, VerdictExplore, VerdictNote,
	} {
		assert.True(t, v.IsValid(), string(v))
	}
	assert.False(t, CheckpointVerdict("maybe").IsValid())
}

func TestNewReasoningNodeDefaults(t *testing.T) {
	node := NewReasoningNode(AgentDeepThinker, "session-1", "step one", "analysis")

	assert.NotEmpty(t, node.ID)
	assert.Equal(t, AgentDeepThinker, node.Agent)
	assert.Equal(t, "session-1", node.SessionID)
	assert.Equal(t, 0.0, node.Confidence)
	assert.NotNil(t, node.DecisionPoints)
	assert.Empty(t, node.DecisionPoints)
	assert.False(t, node.CreatedAt.IsZero())

	other := NewReasoningNode(AgentDeepThinker, "session-1", "step two", "analysis")
	assert.NotEqual(t, node.ID, other.ID)
}

func TestNewReasoningEdgeDefaults(t *testing.T) {
	edge := NewReasoningEdge("a", "b", RelationLeadsTo)

	assert.Equal(t, 1.0, edge.Weight)
	assert.NotNil(t, edge.Metadata)
	assert.Equal(t, RelationLeadsTo, edge.Relation)
}
