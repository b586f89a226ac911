package agent

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/opus-nx/swarm/pkg/events"
	"github.com/opus-nx/swarm/pkg/models"
)

// maxToolIterations bounds the tool loop. Agents that keep calling
// tools past this point get the last turn's text as their conclusion.
const maxToolIterations = 5

// toolHandler executes one tool call and returns the text fed back to
// the model. Handlers report problems in the returned text rather than
// as errors so the model can recover within the loop.
type toolHandler func(ctx context.Context, input json.RawMessage) string

// base carries the shared machinery of every agent: the streamed tool
// loop, handler dispatch, and lifecycle events.
type base struct {
	deps      Deps
	name      models.AgentName
	effort    models.EffortLevel
	maxTokens int64
	system    string
	tools     []sdk.ToolUnionParam
	handlers  map[string]toolHandler
}

func (b *base) Name() models.AgentName { return b.name }

// SetEffort overrides the agent's thinking budget for this run.
// Invalid levels are ignored and the role default stands.
func (b *base) SetEffort(effort models.EffortLevel) {
	if effort.IsValid() {
		b.effort = effort
	}
}

func (b *base) Effort() models.EffortLevel { return b.effort }

type loopResult struct {
	Thinking    string
	Text        string
	TokensUsed  int
	InputTokens int
	DurationMS  int64
}

// runToolLoop streams turns until the model stops requesting tools or
// the iteration cap is hit. Assistant turns are replayed verbatim so
// thinking signatures survive multi-turn continuation.
func (b *base) runToolLoop(ctx context.Context, messages []sdk.MessageParam) (*loopResult, error) {
	out := &loopResult{}
	onThinking := func(delta string) {
		b.deps.Bus.Publish(b.deps.SessionID, events.NewAgentThinking(b.deps.SessionID, b.name, delta))
	}

	for range maxToolIterations {
		turn, err := b.deps.LLM.Stream(ctx, TurnRequest{
			System:     b.system,
			Messages:   messages,
			Tools:      b.tools,
			Effort:     b.effort,
			MaxTokens:  b.maxTokens,
			OnThinking: onThinking,
		})
		if err != nil {
			return nil, err
		}

		out.Thinking += turn.Thinking
		out.TokensUsed += turn.OutputTokens
		out.InputTokens += turn.InputTokens
		out.DurationMS += turn.DurationMS

		if turn.StopReason == "end_turn" || len(turn.ToolUses) == 0 {
			out.Text = turn.Text
			break
		}

		messages = append(messages, turn.Assistant)
		results := make([]sdk.ContentBlockParamUnion, 0, len(turn.ToolUses))
		for _, tu := range turn.ToolUses {
			results = append(results, sdk.NewToolResultBlock(tu.ID, b.executeTool(ctx, tu), false))
		}
		messages = append(messages, sdk.NewUserMessage(results...))
	}

	return out, nil
}

func (b *base) executeTool(ctx context.Context, tu ToolUse) string {
	handler, ok := b.handlers[tu.Name]
	if !ok {
		return fmt.Sprintf("Unknown tool: %s", tu.Name)
	}
	return handler(ctx, tu.Input)
}

func (b *base) emitStarted() {
	b.deps.Bus.Publish(b.deps.SessionID, events.NewAgentStarted(b.deps.SessionID, b.name, b.effort))
}

func (b *base) emitCompleted(conclusion string, confidence float64, tokensUsed int) {
	b.deps.Bus.Publish(b.deps.SessionID,
		events.NewAgentCompleted(b.deps.SessionID, b.name, truncate(conclusion, 200), confidence, tokensUsed))
}

func (b *base) emitNodeCreated(nodeID, preview string) {
	b.deps.Bus.Publish(b.deps.SessionID,
		events.NewGraphNodeCreated(b.deps.SessionID, nodeID, b.name, preview))
}

// tool builds a tool definition from a JSON-schema properties map.
func tool(name, description string, properties map[string]any, required ...string) sdk.ToolUnionParam {
	schema := sdk.ToolInputSchemaParam{
		ExtraFields: map[string]any{"properties": properties},
	}
	if len(required) > 0 {
		schema.ExtraFields["required"] = required
	}
	u := sdk.ToolUnionParamOfTool(schema, name)
	if u.OfTool != nil {
		u.OfTool.Description = sdk.String(description)
	}
	return u
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
