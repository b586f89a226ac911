package agent

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opus-nx/swarm/pkg/events"
	"github.com/opus-nx/swarm/pkg/graph"
	"github.com/opus-nx/swarm/pkg/models"
)

// scriptedLLM returns canned turns in order.
type scriptedLLM struct {
	t     *testing.T
	turns []TurnResult
	calls int
}

func (s *scriptedLLM) Stream(_ context.Context, _ TurnRequest) (*TurnResult, error) {
	if s.calls >= len(s.turns) {
		s.t.Fatalf("unexpected LLM call %d, only %d scripted", s.calls+1, len(s.turns))
	}
	turn := s.turns[s.calls]
	s.calls++
	return &turn, nil
}

func testDeps(t *testing.T, llm LLMClient) Deps {
	t.Helper()
	return Deps{
		SessionID: "sess-1",
		Graph:     graph.New(),
		Bus:       events.NewBus(16),
		LLM:       llm,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func toolTurn(uses ...ToolUse) TurnResult {
	return TurnResult{ToolUses: uses, StopReason: "tool_use", OutputTokens: 10}
}

func finalTurn(text string) TurnResult {
	return TurnResult{Text: text, StopReason: "end_turn", OutputTokens: 5}
}

func rawInput(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestToolLoopRunsUntilEndTurn(t *testing.T) {
	llm := &scriptedLLM{t: t, turns: []TurnResult{
		toolTurn(ToolUse{ID: "tu-1", Name: "write_reasoning_node",
			Input: rawInput(t, map[string]any{"content": "first step", "confidence": 0.8})}),
		finalTurn("the final answer"),
	}}
	a := NewDeepThinker(testDeps(t, llm))

	result, err := a.Run(context.Background(), "why is the sky blue?")
	require.NoError(t, err)

	assert.Equal(t, 2, llm.calls)
	assert.Equal(t, models.ResultCompleted, result.Status)
	assert.Equal(t, "the final answer", result.Conclusion)
	assert.Equal(t, 15, result.TokensUsed)
	require.Len(t, result.NodeIDs, 1)

	node, ok := a.deps.Graph.GetNode(result.NodeIDs[0])
	require.True(t, ok)
	assert.Equal(t, models.AgentDeepThinker, node.Agent)
	assert.Equal(t, "first step", node.Content)
	assert.Equal(t, 0.8, node.Confidence)
	assert.Equal(t, "why is the sky blue?", node.InputQuery)
}

func TestToolLoopStopsAtIterationCap(t *testing.T) {
	turns := make([]TurnResult, maxToolIterations)
	for i := range turns {
		turns[i] = toolTurn(ToolUse{ID: "tu", Name: "read_graph_context", Input: rawInput(t, map[string]any{})})
	}
	llm := &scriptedLLM{t: t, turns: turns}
	a := NewDeepThinker(testDeps(t, llm))

	_, err := a.Run(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, maxToolIterations, llm.calls)
}

func TestUnknownToolReportedToModel(t *testing.T) {
	a := NewDeepThinker(testDeps(t, &scriptedLLM{t: t}))
	out := a.executeTool(context.Background(), ToolUse{ID: "tu-1", Name: "imaginary_tool"})
	assert.Equal(t, "Unknown tool: imaginary_tool", out)
}

func TestReasoningNodesChainWithLeadsTo(t *testing.T) {
	llm := &scriptedLLM{t: t, turns: []TurnResult{
		toolTurn(
			ToolUse{ID: "tu-1", Name: "write_reasoning_node",
				Input: rawInput(t, map[string]any{"content": "premise", "confidence": 0.7})},
			ToolUse{ID: "tu-2", Name: "write_reasoning_node",
				Input: rawInput(t, map[string]any{"content": "conclusion", "confidence": 0.9})},
		),
		finalTurn("done"),
	}}
	a := NewDeepThinker(testDeps(t, llm))

	result, err := a.Run(context.Background(), "query")
	require.NoError(t, err)
	require.Len(t, result.NodeIDs, 2)

	export := a.deps.Graph.ToJSON()
	require.Len(t, export.Edges, 1)
	edge := export.Edges[0]
	assert.Equal(t, result.NodeIDs[0], edge.SourceID)
	assert.Equal(t, result.NodeIDs[1], edge.TargetID)
	assert.Equal(t, models.RelationLeadsTo, edge.Relation)
	assert.Equal(t, 0.9, edge.Weight)
}

func TestSetEffortIgnoresInvalidLevel(t *testing.T) {
	a := NewDeepThinker(testDeps(t, &scriptedLLM{t: t}))
	require.Equal(t, models.EffortMax, a.Effort())

	a.SetEffort(models.EffortLevel("turbo"))
	assert.Equal(t, models.EffortMax, a.Effort())

	a.SetEffort(models.EffortMedium)
	assert.Equal(t, models.EffortMedium, a.Effort())
}

func TestThinkingDeltasReachSubscribers(t *testing.T) {
	deps := testDeps(t, nil)
	llm := &scriptedLLM{t: t, turns: []TurnResult{finalTurn("answer")}}
	deps.LLM = &thinkingLLM{inner: llm, deltas: []string{"hmm, ", "let me think"}}
	a := NewDeepThinker(deps)

	sub := deps.Bus.Subscribe("sess-1")
	defer deps.Bus.Unsubscribe(sub)

	_, err := a.Run(context.Background(), "query")
	require.NoError(t, err)

	var thinkingEvents int
drain:
	for {
		select {
		case data := <-sub.Events():
			var env events.Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			if env.Event == events.EventTypeAgentThinking {
				thinkingEvents++
			}
		default:
			break drain
		}
	}
	assert.Equal(t, 2, thinkingEvents)
}

// thinkingLLM invokes OnThinking before delegating.
type thinkingLLM struct {
	inner  *scriptedLLM
	deltas []string
}

func (l *thinkingLLM) Stream(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	for _, d := range l.deltas {
		if req.OnThinking != nil {
			req.OnThinking(d)
		}
	}
	return l.inner.Stream(ctx, req)
}

func TestAgentFactoryCoversAllRoles(t *testing.T) {
	deps := testDeps(t, &scriptedLLM{t: t})
	for _, name := range []models.AgentName{
		models.AgentMaestro, models.AgentDeepThinker, models.AgentContrarian,
		models.AgentVerifier, models.AgentSynthesizer, models.AgentMetacognition,
	} {
		a, err := New(name, deps)
		require.NoError(t, err)
		assert.Equal(t, name, a.Name())
	}

	_, err := New(models.AgentName("oracle"), deps)
	assert.Error(t, err)
}
