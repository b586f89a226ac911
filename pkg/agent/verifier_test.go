package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opus-nx/swarm/pkg/models"
)

func TestVerifyReasoningStepCreatesVerifiesEdge(t *testing.T) {
	deps := testDeps(t, &scriptedLLM{t: t})
	targetID := seedNode(t, deps, models.AgentDeepThinker, "deploy on Tuesday", 0.8)
	a := NewVerifier(deps)

	out := a.verifyReasoningStep(context.Background(), rawInput(t, map[string]any{
		"node_id":     targetID,
		"verdict":     "incorrect",
		"confidence":  0.9,
		"explanation": "claim is unsupported",
		"issues": []map[string]any{
			{"type": "unsupported_claim", "description": "no evidence cited", "severity": "major"},
		},
	}))
	assert.Contains(t, out, "Step scored: incorrect (confidence: 0.90)")
	assert.Contains(t, out, "unsupported_claim (major)")

	require.Len(t, a.steps, 1)
	assert.Equal(t, "incorrect", a.steps[0].Verdict)
	assert.Equal(t, 0.9, a.steps[0].Confidence)
	require.Len(t, a.steps[0].Issues, 1)
	assert.Equal(t, "unsupported_claim", a.steps[0].Issues[0].Type)

	require.Len(t, a.nodeIDs, 1)
	node, ok := deps.Graph.GetNode(a.nodeIDs[0])
	require.True(t, ok)
	assert.Contains(t, node.Content, "VERIFICATION (incorrect, confidence: 0.90)")
	assert.Equal(t, "verification", node.Reasoning)

	export := deps.Graph.ToJSON()
	require.Len(t, export.Edges, 1)
	edge := export.Edges[0]
	assert.Equal(t, models.RelationVerifies, edge.Relation)
	assert.Equal(t, a.nodeIDs[0], edge.SourceID)
	assert.Equal(t, targetID, edge.TargetID)
	assert.Equal(t, 0.9, edge.Weight)
	assert.Equal(t, "incorrect", edge.Metadata["verdict"])
}

func TestVerifyReasoningStepMissingNode(t *testing.T) {
	a := NewVerifier(testDeps(t, &scriptedLLM{t: t}))

	out := a.verifyReasoningStep(context.Background(), rawInput(t, map[string]any{
		"node_id": "nope", "verdict": "correct", "confidence": 0.9, "explanation": "x",
	}))
	assert.Equal(t, "Node nope not found in graph.", out)
	assert.Empty(t, a.steps)
	assert.Empty(t, a.nodeIDs)
}

func TestVerifyReasoningStepDefaults(t *testing.T) {
	deps := testDeps(t, &scriptedLLM{t: t})
	targetID := seedNode(t, deps, models.AgentDeepThinker, "a claim", 0.8)
	a := NewVerifier(deps)

	a.verifyReasoningStep(context.Background(), rawInput(t, map[string]any{
		"node_id": targetID, "explanation": "hard to tell",
	}))
	require.Len(t, a.steps, 1)
	assert.Equal(t, "uncertain", a.steps[0].Verdict)
	assert.Equal(t, 0.5, a.steps[0].Confidence)
}

func TestEmitVerificationSummarizesChain(t *testing.T) {
	deps := testDeps(t, &scriptedLLM{t: t})
	a := NewVerifier(deps)
	a.steps = []stepScore{
		{NodeID: "n1", Verdict: "correct", Confidence: 0.9},
		{NodeID: "n2", Verdict: "incorrect", Confidence: 0.8,
			Issues: []stepIssue{{Type: "logical_error", Severity: "major"}}},
		{NodeID: "n3", Verdict: "correct", Confidence: 0.9},
	}

	out := a.emitVerification(context.Background(), rawInput(t, map[string]any{
		"summary": "one bad step in the middle",
	}))
	assert.Contains(t, out, "Valid: false")
	assert.Contains(t, out, "Errors: 1")
	assert.Contains(t, out, "First error at: 1")

	require.Len(t, a.nodeIDs, 1)
	node, ok := deps.Graph.GetNode(a.nodeIDs[0])
	require.True(t, ok)
	assert.Contains(t, node.Content, "CHAIN VERIFICATION:")
	assert.Contains(t, node.Content, "valid=false, steps=3, errors=1")
	assert.Contains(t, node.Content, "one bad step in the middle")
	assert.Equal(t, "chain_verification", node.Reasoning)
	assert.Equal(t, chainScore(a.steps), node.Confidence)
}

func TestEmitVerificationListsPatterns(t *testing.T) {
	deps := testDeps(t, &scriptedLLM{t: t})
	a := NewVerifier(deps)
	a.steps = []stepScore{
		{NodeID: "n1", Verdict: "correct", Confidence: 0.95},
		{NodeID: "n2", Verdict: "correct", Confidence: 0.8},
		{NodeID: "n3", Verdict: "correct", Confidence: 0.6},
	}

	out := a.emitVerification(context.Background(), rawInput(t, map[string]any{
		"summary": "confidence erodes along the chain",
	}))
	assert.Contains(t, out, "Patterns detected:")
	assert.Contains(t, out, "declining_confidence")

	node, ok := deps.Graph.GetNode(a.nodeIDs[0])
	require.True(t, ok)
	assert.Contains(t, node.Content, "patterns=[declining_confidence]")
}

func TestVerifierRunConfidenceIsChainScore(t *testing.T) {
	deps := testDeps(t, nil)
	targetID := seedNode(t, deps, models.AgentDeepThinker, "a claim", 0.8)
	llm := &scriptedLLM{t: t, turns: []TurnResult{
		toolTurn(ToolUse{ID: "tu-1", Name: "verify_reasoning_step", Input: rawInput(t, map[string]any{
			"node_id": targetID, "verdict": "correct", "confidence": 0.9, "explanation": "sound",
		})}),
		finalTurn("chain looks solid"),
	}}
	deps.LLM = llm
	a := NewVerifier(deps)

	result, err := a.Run(context.Background(), "Should we deploy?")
	require.NoError(t, err)
	assert.Equal(t, "chain looks solid", result.Conclusion)
	assert.Equal(t, 0.9, result.Confidence)
	assert.Equal(t, models.ResultCompleted, result.Status)
}

func TestVerifierRunNoStepsFallback(t *testing.T) {
	deps := testDeps(t, nil)
	deps.LLM = &scriptedLLM{t: t, turns: []TurnResult{finalTurn("")}}
	a := NewVerifier(deps)

	result, err := a.Run(context.Background(), "Should we deploy?")
	require.NoError(t, err)
	assert.Equal(t, "Verified 0 steps. Chain score: 0.50", result.Conclusion)
	assert.Equal(t, 0.5, result.Confidence)
}

func TestReadReasoningChainAnnotatesSteps(t *testing.T) {
	deps := testDeps(t, &scriptedLLM{t: t})
	claimID := seedNode(t, deps, models.AgentDeepThinker, "the claim", 0.8)
	challengeID := seedNode(t, deps, models.AgentContrarian, "CHALLENGE (major, logical_error): no", 0.5)
	edge := models.NewReasoningEdge(challengeID, claimID, models.RelationChallenges)
	require.NoError(t, deps.Graph.AddEdge(edge))
	a := NewVerifier(deps)

	out := a.readReasoningChain(context.Background(), rawInput(t, map[string]any{
		"agent_filter": "deep_thinker",
	}))
	assert.Contains(t, out, "STEP 0 — NODE "+claimID)
	assert.Contains(t, out, "Challenges: 1")
	assert.NotContains(t, out, "STEP 1")

	out = a.readReasoningChain(context.Background(), rawInput(t, map[string]any{}))
	assert.Contains(t, out, "STEP 1")
}

func TestReadReasoningChainRejectsUnknownAgent(t *testing.T) {
	a := NewVerifier(testDeps(t, &scriptedLLM{t: t}))
	out := a.readReasoningChain(context.Background(), rawInput(t, map[string]any{
		"agent_filter": "mystery",
	}))
	assert.Equal(t, "Unknown agent: mystery", out)
}
