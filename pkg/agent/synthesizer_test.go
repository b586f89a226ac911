package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opus-nx/swarm/pkg/models"
)

func seedNode(t *testing.T, deps Deps, agent models.AgentName, content string, confidence float64) string {
	t.Helper()
	node := models.NewReasoningNode(agent, deps.SessionID, content, "analysis")
	node.Confidence = confidence
	return deps.Graph.AddNode(node)
}

func TestWriteSynthesisMergesBestNodePerAgent(t *testing.T) {
	deps := testDeps(t, &scriptedLLM{t: t})
	weakID := seedNode(t, deps, models.AgentDeepThinker, "weak claim", 0.4)
	strongID := seedNode(t, deps, models.AgentDeepThinker, "strong claim", 0.9)
	contrarianID := seedNode(t, deps, models.AgentContrarian, "pushback", 0.7)
	a := NewSynthesizer(deps)

	out := a.writeSynthesis(context.Background(), rawInput(t, map[string]any{
		"synthesis":          "combined view",
		"confidence":         0.85,
		"convergence_points": []string{"both agree on scope"},
		"divergence_points":  []string{},
	}))
	assert.Contains(t, out, "merged from 2 agents")

	require.Len(t, a.nodeIDs, 1)
	synthesisID := a.nodeIDs[0]

	targets := map[string]float64{}
	for _, edge := range deps.Graph.ToJSON().Edges {
		require.Equal(t, models.RelationMerges, edge.Relation)
		require.Equal(t, synthesisID, edge.SourceID)
		targets[edge.TargetID] = edge.Weight
	}
	assert.Len(t, targets, 2)
	assert.Equal(t, 0.85, targets[strongID])
	assert.Equal(t, 0.85, targets[contrarianID])
	assert.NotContains(t, targets, weakID)
}

func TestWriteSynthesisRecordsConvergence(t *testing.T) {
	deps := testDeps(t, &scriptedLLM{t: t})
	a := NewSynthesizer(deps)

	a.writeSynthesis(context.Background(), rawInput(t, map[string]any{
		"synthesis":          "unified answer",
		"confidence":         0.7,
		"convergence_points": []string{"p1", "p2"},
		"divergence_points":  []string{"d1"},
	}))

	node, ok := deps.Graph.GetNode(a.nodeIDs[0])
	require.True(t, ok)
	assert.Equal(t, "synthesis", node.Reasoning)
	assert.Equal(t, 0.7, node.Confidence)
	require.Len(t, node.DecisionPoints, 1)
	assert.Len(t, node.DecisionPoints[0]["convergence_points"], 2)
	assert.Len(t, node.DecisionPoints[0]["divergence_points"], 1)
}

func TestSynthesizerRunPrefersToolSynthesis(t *testing.T) {
	deps := testDeps(t, nil)
	seedNode(t, deps, models.AgentDeepThinker, "claim", 0.8)
	llm := &scriptedLLM{t: t, turns: []TurnResult{
		toolTurn(ToolUse{ID: "tu-1", Name: "write_synthesis", Input: rawInput(t, map[string]any{
			"synthesis":          "the merged answer",
			"confidence":         0.8,
			"convergence_points": []string{},
			"divergence_points":  []string{},
		})}),
		finalTurn("closing remarks"),
	}}
	deps.LLM = llm
	a := NewSynthesizer(deps)

	result, err := a.Run(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, "the merged answer", result.Conclusion)
	assert.Equal(t, 0.8, result.Confidence)
}

func TestReadAllConclusionsAnnotatesChallenges(t *testing.T) {
	deps := testDeps(t, &scriptedLLM{t: t})
	targetID := seedNode(t, deps, models.AgentDeepThinker, "contested claim", 0.8)

	challenge := models.NewReasoningNode(models.AgentContrarian, deps.SessionID,
		"CHALLENGE (major, logical_error): does not follow", "challenge")
	challengeID := deps.Graph.AddNode(challenge)
	edge := models.NewReasoningEdge(challengeID, targetID, models.RelationChallenges)
	edge.Metadata = map[string]any{"severity": "major"}
	require.NoError(t, deps.Graph.AddEdge(edge))

	a := NewSynthesizer(deps)
	out := a.readAllConclusions(context.Background(), nil)

	assert.Contains(t, out, "=== Agent: deep_thinker")
	assert.Contains(t, out, "CHALLENGED by contrarian (severity: major)")
	assert.Contains(t, out, "Not yet verified.")
}
