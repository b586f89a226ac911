package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/opus-nx/swarm/pkg/events"
	"github.com/opus-nx/swarm/pkg/models"
)

const maestroPrompt = `You are Maestro, the swarm conductor. Analyze the query, decompose it into sub-tasks, and decide which agents to deploy.

Your job is to be FAST and decisive. You have three tools:

1. decompose_query — Break the query into 2-4 sub-tasks
2. select_agents — Choose which agents to deploy (deep_thinker, contrarian, verifier)
3. set_agent_effort — Assign effort levels per agent

GUIDELINES:
- Simple factual questions: deploy only deep_thinker at medium effort
- Questions with clear right/wrong: deploy deep_thinker + verifier
- Controversial or opinion-heavy: deploy all three (deep_thinker + contrarian + verifier)
- Complex multi-faceted: deploy all three with high/max effort for deep_thinker

EFFORT LEVELS:
- low: Quick response, minimal thinking (simple lookups)
- medium: Standard analysis (factual questions)
- high: Thorough analysis (most queries)
- max: Maximum depth, 50k thinking tokens (complex research, debugging)

Always use all three tools in sequence: decompose first, then select agents, then set efforts.`

// Maestro plans the run: it decomposes the query, selects agents and
// assigns effort levels. It must stay fast; the whole pipeline waits
// on it, and the coordinator falls back to heuristic classification
// when it times out.
type Maestro struct {
	base

	nodeIDs     []string
	subtasks    []string
	selected    []string
	assignments map[string]string
	reasoning   string
}

// NewMaestro builds a maestro for one run.
func NewMaestro(deps Deps) *Maestro {
	a := &Maestro{
		base: base{
			deps:      deps,
			name:      models.AgentMaestro,
			effort:    models.EffortHigh,
			maxTokens: maestroMaxTokens,
			system:    maestroPrompt,
		},
		assignments: map[string]string{},
	}
	a.tools = []sdk.ToolUnionParam{
		tool("decompose_query",
			"Break the user's query into 2-4 sub-tasks or aspects that can be analyzed independently.",
			map[string]any{
				"subtasks": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "2-4 sub-tasks or aspects to analyze",
					"minItems":    2,
					"maxItems":    4,
				},
				"reasoning": map[string]any{
					"type":        "string",
					"description": "Brief explanation of the decomposition strategy",
				},
			}, "subtasks", "reasoning"),
		tool("select_agents",
			"Choose which agents to deploy for this query. Available: deep_thinker, contrarian, verifier.",
			map[string]any{
				"agents": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "string",
						"enum": []string{"deep_thinker", "contrarian", "verifier"},
					},
					"description": "Which agents to deploy",
				},
				"rationale": map[string]any{
					"type":        "string",
					"description": "Why these agents were selected",
				},
			}, "agents", "rationale"),
		tool("set_agent_effort",
			"Assign an effort level to each selected agent. Higher effort = deeper thinking but slower.",
			map[string]any{
				"assignments": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"agent": map[string]any{
								"type": "string",
								"enum": []string{"deep_thinker", "contrarian", "verifier"},
							},
							"effort": map[string]any{
								"type": "string",
								"enum": []string{"low", "medium", "high", "max"},
							},
						},
						"required": []string{"agent", "effort"},
					},
					"description": "Effort assignments per agent",
				},
			}, "assignments"),
	}
	a.handlers = map[string]toolHandler{
		"decompose_query":  a.decomposeQuery,
		"select_agents":    a.selectAgents,
		"set_agent_effort": a.setAgentEffort,
	}
	return a
}

// Run decomposes the query, selects agents and assigns efforts. The
// conclusion is the deployment plan as JSON.
func (a *Maestro) Run(ctx context.Context, query string) (*models.AgentResult, error) {
	start := time.Now()
	a.emitStarted()

	result, err := a.runToolLoop(ctx, []sdk.MessageParam{
		sdk.NewUserMessage(sdk.NewTextBlock(query)),
	})
	if err != nil {
		return nil, err
	}

	plan := models.SwarmPlan{
		Agents:    make([]models.PlannedAgent, 0, len(a.selected)),
		Subtasks:  a.subtasks,
		Reasoning: a.reasoning,
	}
	for _, name := range a.selected {
		effort := models.EffortHigh
		if e, ok := a.assignments[name]; ok {
			effort = models.EffortLevel(e)
		}
		plan.Agents = append(plan.Agents, models.PlannedAgent{
			Name:   models.AgentName(name),
			Effort: effort,
		})
	}

	conclusion, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("marshal deployment plan: %w", err)
	}

	selected := make([]models.AgentName, 0, len(a.selected))
	for _, name := range a.selected {
		selected = append(selected, models.AgentName(name))
	}
	a.deps.Bus.Publish(a.deps.SessionID,
		events.NewMaestroDecomposition(a.deps.SessionID, a.subtasks, selected, truncate(a.reasoning, 200)))

	a.emitCompleted(string(conclusion), 0.9, result.TokensUsed)

	return &models.AgentResult{
		Agent:           a.name,
		Status:          models.ResultCompleted,
		Reasoning:       result.Thinking,
		Conclusion:      string(conclusion),
		Confidence:      0.9,
		NodeIDs:         a.nodeIDs,
		TokensUsed:      result.TokensUsed,
		InputTokensUsed: result.InputTokens,
		DurationMS:      time.Since(start).Milliseconds(),
	}, nil
}

func (a *Maestro) decomposeQuery(_ context.Context, input json.RawMessage) string {
	var in struct {
		Subtasks  []string `json:"subtasks"`
		Reasoning string   `json:"reasoning"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "Invalid input: " + err.Error()
	}

	a.subtasks = in.Subtasks
	a.reasoning = in.Reasoning

	node := models.NewReasoningNode(a.name, a.deps.SessionID,
		fmt.Sprintf("Decomposition: %s\nSub-tasks: %s", in.Reasoning, strings.Join(in.Subtasks, ", ")),
		"decomposition")
	node.Confidence = 0.9
	nodeID := a.deps.Graph.AddNode(node)
	a.nodeIDs = append(a.nodeIDs, nodeID)

	a.emitNodeCreated(nodeID, fmt.Sprintf("Decomposed into %d sub-tasks", len(in.Subtasks)))

	return fmt.Sprintf("Decomposed into %d sub-tasks: %s", len(in.Subtasks), strings.Join(in.Subtasks, ", "))
}

func (a *Maestro) selectAgents(_ context.Context, input json.RawMessage) string {
	var in struct {
		Agents    []string `json:"agents"`
		Rationale string   `json:"rationale"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "Invalid input: " + err.Error()
	}

	a.selected = in.Agents

	a.deps.Logger.Info("Maestro selected agents",
		"agents", in.Agents, "rationale", in.Rationale)

	return fmt.Sprintf("Selected agents: %s. Rationale: %s", strings.Join(in.Agents, ", "), in.Rationale)
}

func (a *Maestro) setAgentEffort(_ context.Context, input json.RawMessage) string {
	var in struct {
		Assignments []struct {
			Agent  string `json:"agent"`
			Effort string `json:"effort"`
		} `json:"assignments"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "Invalid input: " + err.Error()
	}

	parts := make([]string, 0, len(in.Assignments))
	for _, assignment := range in.Assignments {
		effort := assignment.Effort
		if effort == "" {
			effort = string(models.EffortHigh)
		}
		a.assignments[assignment.Agent] = effort
		parts = append(parts, fmt.Sprintf("%s=%s", assignment.Agent, effort))
	}
	summary := strings.Join(parts, ", ")

	a.deps.Logger.Info("Maestro effort assignment", "assignments", summary)

	return "Effort assignments: " + summary
}
