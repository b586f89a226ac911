package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opus-nx/swarm/pkg/models"
)

func seedAnalystNode(t *testing.T, deps Deps, content string) string {
	t.Helper()
	node := models.NewReasoningNode(models.AgentDeepThinker, deps.SessionID, content, "analysis")
	node.Confidence = 0.8
	return deps.Graph.AddNode(node)
}

func TestContrarianChallengeCreatesEdge(t *testing.T) {
	deps := testDeps(t, &scriptedLLM{t: t})
	targetID := seedAnalystNode(t, deps, "the premise holds")
	a := NewContrarian(deps)

	out := a.createChallenge(context.Background(), rawInput(t, map[string]any{
		"target_node_id":   targetID,
		"counter_argument": "the premise assumes stable inputs",
		"severity":         "critical",
		"flaw_type":        "unsupported_assumption",
	}))
	assert.Contains(t, out, "Challenge")

	challenges := deps.Graph.GetChallengesFor(targetID)
	require.Len(t, challenges, 1)
	assert.Equal(t, 1.0, challenges[0].Edge.Weight)
	assert.Equal(t, "critical", challenges[0].Edge.Metadata["severity"])
	assert.Equal(t, "unsupported_assumption", challenges[0].Edge.Metadata["flaw_type"])
	assert.Equal(t, 0.7, challenges[0].SourceNode.Confidence)
	assert.Contains(t, challenges[0].SourceNode.Content,
		"CHALLENGE (critical, unsupported_assumption): the premise assumes stable inputs")
}

func TestContrarianChallengeSeverityWeights(t *testing.T) {
	deps := testDeps(t, &scriptedLLM{t: t})
	a := NewContrarian(deps)

	for severity, weight := range map[string]float64{"critical": 1.0, "major": 0.7, "minor": 0.4} {
		targetID := seedAnalystNode(t, deps, "claim for "+severity)
		a.createChallenge(context.Background(), rawInput(t, map[string]any{
			"target_node_id":   targetID,
			"counter_argument": "weak",
			"severity":         severity,
		}))
		challenges := deps.Graph.GetChallengesFor(targetID)
		require.Len(t, challenges, 1)
		assert.Equal(t, weight, challenges[0].Edge.Weight, "severity %s", severity)
	}
}

func TestContrarianChallengeMissingTarget(t *testing.T) {
	a := NewContrarian(testDeps(t, &scriptedLLM{t: t}))
	out := a.createChallenge(context.Background(), rawInput(t, map[string]any{
		"target_node_id":   "ghost",
		"counter_argument": "irrelevant",
		"severity":         "minor",
	}))
	assert.Contains(t, out, "not found")
	assert.Equal(t, 0, a.challenges)
}

func TestContrarianConcedeCreatesSupportsEdge(t *testing.T) {
	deps := testDeps(t, &scriptedLLM{t: t})
	targetID := seedAnalystNode(t, deps, "solid reasoning")
	a := NewContrarian(deps)

	out := a.concedePoint(context.Background(), rawInput(t, map[string]any{
		"target_node_id": targetID,
		"reason":         "well-evidenced and internally consistent",
	}))
	assert.Contains(t, out, "Support")

	export := deps.Graph.ToJSON()
	require.Len(t, export.Edges, 1)
	edge := export.Edges[0]
	assert.Equal(t, models.RelationSupports, edge.Relation)
	assert.Equal(t, 0.8, edge.Weight)
	assert.Equal(t, "well-evidenced and internally consistent", edge.Metadata["reason"])
}

func TestContrarianConfidenceFromChallengeRatio(t *testing.T) {
	a := NewContrarian(testDeps(t, &scriptedLLM{t: t}))
	assert.Equal(t, 0.5, a.confidence())

	a.challenges, a.supports = 1, 1
	assert.InDelta(t, 0.75, a.confidence(), 1e-9)

	a.challenges, a.supports = 3, 0
	assert.InDelta(t, 0.9, a.confidence(), 1e-9)

	a.challenges, a.supports = 0, 2
	assert.InDelta(t, 0.6, a.confidence(), 1e-9)
}

func TestContrarianRunFallbackConclusion(t *testing.T) {
	deps := testDeps(t, &scriptedLLM{t: t, turns: []TurnResult{
		{StopReason: "end_turn", OutputTokens: 3},
	}})
	a := NewContrarian(deps)

	result, err := a.Run(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, models.ResultCompleted, result.Status)
	assert.Contains(t, result.Conclusion, "Created 0 challenges and 0 supports")
	assert.Equal(t, 0.5, result.Confidence)
}
