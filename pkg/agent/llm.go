package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/opus-nx/swarm/pkg/config"
	"github.com/opus-nx/swarm/pkg/models"
	"github.com/opus-nx/swarm/pkg/persist"
)

// ToolUse is a single tool invocation requested by the model.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// TurnRequest describes one streamed model call.
type TurnRequest struct {
	System    string
	Messages  []sdk.MessageParam
	Tools     []sdk.ToolUnionParam
	Effort    models.EffortLevel
	MaxTokens int64

	// OnThinking receives thinking deltas as they stream in. May be nil.
	OnThinking func(delta string)
}

// TurnResult is the outcome of one streamed model call.
//
// Assistant preserves the complete content of the turn, including
// thinking block signatures returned by the API. It must be appended
// verbatim when continuing a tool loop; the API rejects fabricated
// signatures.
type TurnResult struct {
	Thinking     string
	Text         string
	ToolUses     []ToolUse
	Assistant    sdk.MessageParam
	InputTokens  int
	OutputTokens int
	DurationMS   int64
	StopReason   string
}

// LLMClient is the model transport used by every agent. Implementations
// stream a single turn and report accumulated content and usage.
type LLMClient interface {
	Stream(ctx context.Context, req TurnRequest) (*TurnResult, error)
}

// thinkingBudget maps an effort level to a thinking token budget.
// The budget is added on top of the response cap so raising effort
// never starves the visible output.
func thinkingBudget(effort models.EffortLevel) int64 {
	switch effort {
	case models.EffortLow:
		return 1024
	case models.EffortMedium:
		return 4096
	case models.EffortHigh:
		return 16384
	case models.EffortMax:
		return 50000
	default:
		return 16384
	}
}

// AnthropicClient streams Claude messages with extended thinking.
type AnthropicClient struct {
	client sdk.Client
	model  sdk.Model
}

// NewAnthropicClient builds a client from configuration.
func NewAnthropicClient(cfg *config.AnthropicConfig) *AnthropicClient {
	return &AnthropicClient{
		client: sdk.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  sdk.Model(cfg.Model),
	}
}

// Stream runs one streamed messages call. Thinking deltas are forwarded
// to req.OnThinking as they arrive. Transient transport failures are
// retried once, but only when nothing has streamed yet so callers never
// see duplicated deltas.
func (c *AnthropicClient) Stream(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	result, streamed, err := c.streamOnce(ctx, req)
	if err != nil && !streamed && persist.IsTransient(err) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
		result, _, err = c.streamOnce(ctx, req)
	}
	return result, err
}

func (c *AnthropicClient) streamOnce(ctx context.Context, req TurnRequest) (*TurnResult, bool, error) {
	start := time.Now()

	budget := thinkingBudget(req.Effort)
	params := sdk.MessageNewParams{
		Model:     c.model,
		MaxTokens: req.MaxTokens + budget,
		Messages:  req.Messages,
		Thinking:  sdk.ThinkingConfigParamOfEnabled(budget),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = req.Tools
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var (
		msg      sdk.Message
		thinking strings.Builder
		text     strings.Builder
		streamed bool
	)
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return nil, streamed, fmt.Errorf("accumulate stream event: %w", err)
		}
		ev, ok := event.AsAny().(sdk.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		switch delta := ev.Delta.AsAny().(type) {
		case sdk.ThinkingDelta:
			if delta.Thinking == "" {
				continue
			}
			streamed = true
			thinking.WriteString(delta.Thinking)
			if req.OnThinking != nil {
				req.OnThinking(delta.Thinking)
			}
		case sdk.TextDelta:
			if delta.Text == "" {
				continue
			}
			streamed = true
			text.WriteString(delta.Text)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, streamed, fmt.Errorf("message stream: %w", err)
	}

	var toolUses []ToolUse
	for _, block := range msg.Content {
		if tu, ok := block.AsAny().(sdk.ToolUseBlock); ok {
			toolUses = append(toolUses, ToolUse{ID: tu.ID, Name: tu.Name, Input: tu.Input})
		}
	}

	return &TurnResult{
		Thinking:     thinking.String(),
		Text:         text.String(),
		ToolUses:     toolUses,
		Assistant:    msg.ToParam(),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		DurationMS:   time.Since(start).Milliseconds(),
		StopReason:   string(msg.StopReason),
	}, streamed, nil
}
