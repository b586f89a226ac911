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

const verifierPrompt = `You are Verifier, the Process Reward Model (PRM) within the Opus NX swarm.
Your role is to evaluate each reasoning step independently for correctness.

APPROACH (based on "Let's Verify Step by Step"):
- Read the full reasoning chain using read_reasoning_chain
- Verify EACH node individually using verify_reasoning_step
- Be precise: a chain is only as strong as its weakest step
- Look for: logical errors, factual mistakes, unsupported claims, circular reasoning
- Judge each step on its own merits, not by the final conclusion

VERDICTS:
- correct: Step is logically sound and well-supported
- incorrect: Step contains a clear error (specify the issue type)
- neutral: Step is neither clearly correct nor incorrect
- uncertain: Cannot determine correctness with available information

After verifying all steps, use emit_verification to produce your overall assessment.

The Contrarian agent may have created challenges. Verify both the original reasoning
AND the challenges — the Contrarian can be wrong too.`

// Verifier scores each reasoning step independently and creates
// VERIFIES edges. The run's confidence is the chain score.
type Verifier struct {
	base

	nodeIDs []string
	steps   []stepScore
}

// NewVerifier builds a verifier for one run.
func NewVerifier(deps Deps) *Verifier {
	a := &Verifier{
		base: base{
			deps:      deps,
			name:      models.AgentVerifier,
			effort:    models.EffortHigh,
			maxTokens: agentMaxTokens,
			system:    verifierPrompt,
		},
	}
	a.tools = []sdk.ToolUnionParam{
		tool("read_reasoning_chain",
			"Read reasoning nodes from the shared graph. Optionally filter by agent.",
			map[string]any{
				"agent_filter": map[string]any{
					"type":        "string",
					"enum":        []string{"deep_thinker", "contrarian", "synthesizer", "metacognition"},
					"description": "Filter to a specific agent's nodes (optional — omit to read all session nodes)",
				},
			}),
		tool("verify_reasoning_step",
			"Verify a single reasoning step. Verdict: correct, incorrect, "+
				"neutral, or uncertain. Issues: logical_error, factual_error, "+
				"missing_context, unsupported_claim, circular_reasoning, "+
				"non_sequitur, overgeneralization, false_dichotomy.",
			map[string]any{
				"node_id": map[string]any{
					"type":        "string",
					"description": "ID of the reasoning node being verified",
				},
				"verdict": map[string]any{
					"type": "string",
					"enum": []string{"correct", "incorrect", "neutral", "uncertain"},
				},
				"confidence": map[string]any{
					"type":        "number",
					"description": "Confidence in the verdict (0.0-1.0)",
				},
				"explanation": map[string]any{
					"type":        "string",
					"description": "Brief explanation for the verdict",
				},
				"issues": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"type": map[string]any{
								"type": "string",
								"enum": []string{
									"logical_error",
									"factual_error",
									"missing_context",
									"unsupported_claim",
									"circular_reasoning",
									"non_sequitur",
									"overgeneralization",
									"false_dichotomy",
								},
							},
							"description": map[string]any{"type": "string"},
							"severity": map[string]any{
								"type": "string",
								"enum": []string{"critical", "major", "minor"},
							},
						},
						"required": []string{"type", "description", "severity"},
					},
					"description": "Specific issues found (if verdict is incorrect)",
				},
			}, "node_id", "verdict", "confidence", "explanation"),
		tool("emit_verification",
			"Emit the final chain verification result with overall score and patterns.",
			map[string]any{
				"summary": map[string]any{
					"type":        "string",
					"description": "Summary of the verification findings",
				},
			}, "summary"),
	}
	a.handlers = map[string]toolHandler{
		"read_reasoning_chain":  a.readReasoningChain,
		"verify_reasoning_step": a.verifyReasoningStep,
		"emit_verification":     a.emitVerification,
	}
	return a
}

// Run verifies reasoning chains from other agents.
func (a *Verifier) Run(ctx context.Context, query string) (*models.AgentResult, error) {
	start := time.Now()
	a.emitStarted()

	prompt := fmt.Sprintf("The swarm is analyzing: %s\n\n"+
		"Use read_reasoning_chain to read the deep_thinker's reasoning. "+
		"Then verify each reasoning step using verify_reasoning_step. "+
		"Also read the contrarian's reasoning and verify their challenges. "+
		"Finally, use emit_verification to produce your overall assessment.", query)

	result, err := a.runToolLoop(ctx, []sdk.MessageParam{
		sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
	})
	if err != nil {
		return nil, err
	}

	score := 0.5
	if len(a.steps) > 0 {
		score = chainScore(a.steps)
	}

	conclusion := result.Text
	if conclusion == "" {
		conclusion = fmt.Sprintf("Verified %d steps. Chain score: %.2f", len(a.steps), score)
	}

	a.emitCompleted(conclusion, score, result.TokensUsed)

	return &models.AgentResult{
		Agent:           a.name,
		Status:          models.ResultCompleted,
		Reasoning:       result.Thinking,
		Conclusion:      conclusion,
		Confidence:      score,
		NodeIDs:         a.nodeIDs,
		TokensUsed:      result.TokensUsed,
		InputTokensUsed: result.InputTokens,
		DurationMS:      time.Since(start).Milliseconds(),
	}, nil
}

func (a *Verifier) readReasoningChain(_ context.Context, input json.RawMessage) string {
	var in struct {
		AgentFilter string `json:"agent_filter"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "Invalid input: " + err.Error()
	}

	var nodes []*models.ReasoningNode
	if in.AgentFilter != "" {
		filter := models.AgentName(in.AgentFilter)
		if !filter.IsValid() {
			return "Unknown agent: " + in.AgentFilter
		}
		nodes = a.deps.Graph.GetNodesByAgent(filter)
		if len(nodes) == 0 {
			return fmt.Sprintf("No reasoning nodes from %s yet.", in.AgentFilter)
		}
	} else {
		nodes = a.deps.Graph.GetSessionNodes(a.deps.SessionID)
		if len(nodes) == 0 {
			return "No reasoning nodes in this session yet."
		}
	}

	lines := make([]string, 0, len(nodes))
	for i, n := range nodes {
		var challengeInfo string
		if challenges := a.deps.Graph.GetChallengesFor(n.ID); len(challenges) > 0 {
			previews := make([]string, 0, len(challenges))
			for _, c := range challenges {
				previews = append(previews, truncate(c.SourceNode.Content, 100))
			}
			challengeInfo = fmt.Sprintf("\n  Challenges: %d — %s",
				len(challenges), strings.Join(previews, "; "))
		}
		lines = append(lines, fmt.Sprintf(
			"STEP %d — NODE %s (agent: %s)\n  Type: %s | Confidence: %.2f\n  Content: %s%s",
			i, n.ID, n.Agent, n.Reasoning, n.Confidence, n.Content, challengeInfo))
	}
	return strings.Join(lines, "\n\n")
}

func (a *Verifier) verifyReasoningStep(_ context.Context, input json.RawMessage) string {
	var in struct {
		NodeID      string      `json:"node_id"`
		Verdict     string      `json:"verdict"`
		Confidence  *float64    `json:"confidence"`
		Explanation string      `json:"explanation"`
		Issues      []stepIssue `json:"issues"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "Invalid input: " + err.Error()
	}
	if in.Verdict == "" {
		in.Verdict = "uncertain"
	}
	confidence := 0.5
	if in.Confidence != nil {
		confidence = *in.Confidence
	}

	if _, ok := a.deps.Graph.GetNode(in.NodeID); !ok {
		return fmt.Sprintf("Node %s not found in graph.", in.NodeID)
	}

	a.steps = append(a.steps, stepScore{
		NodeID:      in.NodeID,
		Verdict:     in.Verdict,
		Confidence:  confidence,
		Explanation: in.Explanation,
		Issues:      in.Issues,
	})

	node := models.NewReasoningNode(a.name, a.deps.SessionID,
		fmt.Sprintf("VERIFICATION (%s, confidence: %.2f): %s", in.Verdict, confidence, in.Explanation),
		"verification")
	node.Confidence = confidence
	verificationID := a.deps.Graph.AddNode(node)
	a.nodeIDs = append(a.nodeIDs, verificationID)

	edge := models.NewReasoningEdge(verificationID, in.NodeID, models.RelationVerifies)
	edge.Weight = confidence
	edge.Metadata = map[string]any{
		"verdict":     in.Verdict,
		"explanation": in.Explanation,
		"issues":      in.Issues,
	}
	if err := a.deps.Graph.AddEdge(edge); err != nil {
		a.deps.Logger.Warn("Failed to add verification edge",
			"source", verificationID, "target", in.NodeID, "error", err)
	}

	a.deps.Bus.Publish(a.deps.SessionID,
		events.NewVerificationScore(a.deps.SessionID, in.NodeID, confidence, in.Verdict))

	var issueSummary string
	if len(in.Issues) > 0 {
		parts := make([]string, 0, len(in.Issues))
		for _, iss := range in.Issues {
			parts = append(parts, fmt.Sprintf("%s (%s)", iss.Type, iss.Severity))
		}
		issueSummary = " Issues: " + strings.Join(parts, ", ")
	}

	return fmt.Sprintf("Step scored: %s (confidence: %.2f). %s%s",
		in.Verdict, confidence, in.Explanation, issueSummary)
}

func (a *Verifier) emitVerification(_ context.Context, input json.RawMessage) string {
	var in struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "Invalid input: " + err.Error()
	}

	score := chainScore(a.steps)
	patterns := detectChainPatterns(a.steps)

	incorrect := 0
	firstError := -1
	for i, s := range a.steps {
		if s.Verdict == "incorrect" {
			incorrect++
			if firstError == -1 {
				firstError = i
			}
		}
	}
	isValid := score >= 0.7 && incorrect == 0

	content := fmt.Sprintf("CHAIN VERIFICATION: score=%.2f, valid=%t, steps=%d, errors=%d",
		score, isValid, len(a.steps), incorrect)
	if len(patterns) > 0 {
		names := make([]string, 0, len(patterns))
		for _, p := range patterns {
			names = append(names, p.Name)
		}
		content += fmt.Sprintf(", patterns=[%s]", strings.Join(names, ", "))
	}
	content += "\n" + in.Summary

	node := models.NewReasoningNode(a.name, a.deps.SessionID, content, "chain_verification")
	node.Confidence = score
	summaryID := a.deps.Graph.AddNode(node)
	a.nodeIDs = append(a.nodeIDs, summaryID)

	a.emitNodeCreated(summaryID, fmt.Sprintf("Chain score: %.2f (%d steps)", score, len(a.steps)))

	var patternInfo string
	if len(patterns) > 0 {
		lines := make([]string, 0, len(patterns))
		for _, p := range patterns {
			lines = append(lines, fmt.Sprintf("  - %s: %s", p.Name, p.Description))
		}
		patternInfo = "\nPatterns detected:\n" + strings.Join(lines, "\n")
	}

	return fmt.Sprintf("Chain verification complete. Score: %.2f, Valid: %t, Steps: %d, "+
		"Errors: %d, First error at: %d%s",
		score, isValid, len(a.steps), incorrect, firstError, patternInfo)
}
