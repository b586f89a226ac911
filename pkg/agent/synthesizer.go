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

const synthesizerPrompt = `You are Synthesizer, the integrative reasoning agent within the Opus NX swarm.
Your role is to merge ALL agent conclusions into a single, coherent final answer.

APPROACH:
- Read every agent's conclusions using read_all_conclusions
- Identify points of CONVERGENCE: where do agents agree? What is the consensus?
- Identify points of DIVERGENCE: where do agents disagree? What remains contested?
- Weight conclusions by verification scores when available (verified conclusions carry more weight)
- Account for challenges raised by the Contrarian: were they addressed or do they still stand?
- If a conclusion was challenged AND the challenge was not refuted, lower its weight
- If a conclusion was verified with a high score, increase its weight

OUTPUT:
- Use write_synthesis to produce the final merged answer
- Be comprehensive but do NOT repeat agent conclusions verbatim
- Synthesize: combine, reconcile, and distill into a unified perspective
- Acknowledge genuine uncertainty where it exists
- Rate your overall confidence based on the quality and agreement of the evidence

QUALITY CRITERIA:
- A good synthesis is shorter than the sum of all agent outputs
- It adds value by showing how pieces fit together
- It does not paper over real disagreements
- It gives the reader a clear, actionable understanding`

// Synthesizer merges every agent's conclusions into one answer. The
// synthesis node gets MERGES edges to the best node from each
// contributing agent so the information flow stays visible.
type Synthesizer struct {
	base

	nodeIDs             []string
	synthesisText       string
	synthesisConfidence float64
}

// NewSynthesizer builds a synthesizer for one run.
func NewSynthesizer(deps Deps) *Synthesizer {
	a := &Synthesizer{
		base: base{
			deps:      deps,
			name:      models.AgentSynthesizer,
			effort:    models.EffortHigh,
			maxTokens: agentMaxTokens,
			system:    synthesizerPrompt,
		},
	}
	a.tools = []sdk.ToolUnionParam{
		tool("read_all_conclusions",
			"Read all reasoning nodes from every agent in the current session, "+
				"grouped by agent. Includes challenge and verification status for each node.",
			map[string]any{}),
		tool("write_synthesis",
			"Write the final unified synthesis that merges all agents' conclusions. "+
				"Identifies points of convergence and divergence across agents.",
			map[string]any{
				"synthesis": map[string]any{
					"type":        "string",
					"description": "The unified synthesis text merging all agent conclusions.",
				},
				"confidence": map[string]any{
					"type":        "number",
					"description": "Overall confidence in the synthesis (0.0-1.0).",
				},
				"convergence_points": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Points where agents agree.",
				},
				"divergence_points": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Points where agents disagree.",
				},
			}, "synthesis", "confidence", "convergence_points", "divergence_points"),
	}
	a.handlers = map[string]toolHandler{
		"read_all_conclusions": a.readAllConclusions,
		"write_synthesis":      a.writeSynthesis,
	}
	return a
}

// Run reads all agent reasoning and produces a unified synthesis.
func (a *Synthesizer) Run(ctx context.Context, query string) (*models.AgentResult, error) {
	start := time.Now()
	a.emitStarted()

	prompt := fmt.Sprintf("The swarm has been analyzing: %s\n\n"+
		"First, use read_all_conclusions to see what every agent has written. "+
		"Then use write_synthesis to produce a unified final answer that "+
		"merges all perspectives. Identify convergence and divergence points. "+
		"Weight verified conclusions higher and account for unresolved challenges.", query)

	result, err := a.runToolLoop(ctx, []sdk.MessageParam{
		sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
	})
	if err != nil {
		return nil, err
	}

	conclusion := a.synthesisText
	if conclusion == "" {
		conclusion = result.Text
	}
	if conclusion == "" {
		conclusion = "Synthesis completed."
	}
	confidence := a.synthesisConfidence
	if confidence == 0 {
		confidence = 0.5
	}

	a.emitCompleted(conclusion, confidence, result.TokensUsed)

	return &models.AgentResult{
		Agent:           a.name,
		Status:          models.ResultCompleted,
		Reasoning:       result.Thinking,
		Conclusion:      conclusion,
		Confidence:      confidence,
		NodeIDs:         a.nodeIDs,
		TokensUsed:      result.TokensUsed,
		InputTokensUsed: result.InputTokens,
		DurationMS:      time.Since(start).Milliseconds(),
	}, nil
}

func (a *Synthesizer) readAllConclusions(_ context.Context, _ json.RawMessage) string {
	nodes := a.deps.Graph.GetSessionNodes(a.deps.SessionID)
	if len(nodes) == 0 {
		return "No reasoning nodes found in the graph yet."
	}

	byAgent := map[models.AgentName][]*models.ReasoningNode{}
	var agentOrder []models.AgentName
	for _, n := range nodes {
		if _, seen := byAgent[n.Agent]; !seen {
			agentOrder = append(agentOrder, n.Agent)
		}
		byAgent[n.Agent] = append(byAgent[n.Agent], n)
	}

	sections := make([]string, 0, len(agentOrder))
	for _, agent := range agentOrder {
		agentNodes := byAgent[agent]
		lines := []string{fmt.Sprintf("=== Agent: %s (%d nodes) ===", agent, len(agentNodes))}

		for _, n := range agentNodes {
			lines = append(lines, fmt.Sprintf(
				"\nNODE %s\n  Type: %s | Confidence: %.2f\n  Content: %s",
				n.ID, n.Reasoning, n.Confidence, n.Content))

			if challenges := a.deps.Graph.GetChallengesFor(n.ID); len(challenges) > 0 {
				for _, ch := range challenges {
					severity := "?"
					if s, ok := ch.Edge.Metadata["severity"].(string); ok {
						severity = s
					}
					lines = append(lines, fmt.Sprintf("  CHALLENGED by %s (severity: %s): %s",
						ch.SourceNode.Agent, severity, truncate(ch.SourceNode.Content, 200)))
				}
			} else {
				lines = append(lines, "  No challenges.")
			}

			if verifications := a.deps.Graph.GetVerificationsFor(n.ID); len(verifications) > 0 {
				for _, v := range verifications {
					lines = append(lines, fmt.Sprintf("  VERIFIED (score: %.2f): %s",
						v.Edge.Weight, truncate(v.SourceNode.Content, 200)))
				}
			} else {
				lines = append(lines, "  Not yet verified.")
			}
		}

		sections = append(sections, strings.Join(lines, "\n"))
	}

	return strings.Join(sections, "\n\n")
}

func (a *Synthesizer) writeSynthesis(_ context.Context, input json.RawMessage) string {
	var in struct {
		Synthesis         string   `json:"synthesis"`
		Confidence        *float64 `json:"confidence"`
		ConvergencePoints []string `json:"convergence_points"`
		DivergencePoints  []string `json:"divergence_points"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "Invalid input: " + err.Error()
	}
	confidence := 0.5
	if in.Confidence != nil {
		confidence = *in.Confidence
	}

	a.synthesisText = in.Synthesis
	a.synthesisConfidence = confidence

	node := models.NewReasoningNode(a.name, a.deps.SessionID, in.Synthesis, "synthesis")
	node.Confidence = confidence
	node.DecisionPoints = []map[string]any{{
		"convergence_points": in.ConvergencePoints,
		"divergence_points":  in.DivergencePoints,
	}}
	synthesisID := a.deps.Graph.AddNode(node)
	a.nodeIDs = append(a.nodeIDs, synthesisID)

	// MERGES edges to the highest-confidence node from each other agent.
	best := map[models.AgentName]*models.ReasoningNode{}
	for _, n := range a.deps.Graph.GetSessionNodes(a.deps.SessionID) {
		if n.ID == synthesisID || n.Agent == models.AgentSynthesizer {
			continue
		}
		if current, ok := best[n.Agent]; !ok || n.Confidence > current.Confidence {
			best[n.Agent] = n
		}
	}
	merged := 0
	for agent, n := range best {
		edge := models.NewReasoningEdge(synthesisID, n.ID, models.RelationMerges)
		edge.Weight = confidence
		edge.Metadata = map[string]any{"agent": string(agent)}
		if err := a.deps.Graph.AddEdge(edge); err != nil {
			a.deps.Logger.Warn("Failed to add merge edge",
				"source", synthesisID, "target", n.ID, "error", err)
			continue
		}
		merged++
	}

	a.emitNodeCreated(synthesisID, truncate(in.Synthesis, 150))
	a.deps.Bus.Publish(a.deps.SessionID,
		events.NewSynthesisReady(a.deps.SessionID, in.Synthesis, confidence))

	return fmt.Sprintf("Synthesis %s written to graph (confidence: %.2f, "+
		"convergence: %d, divergence: %d, merged from %d agents)",
		synthesisID, confidence, len(in.ConvergencePoints), len(in.DivergencePoints), merged)
}
