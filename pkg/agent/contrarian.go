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

const contrarianPrompt = `You are Contrarian, the devil's advocate within the Opus NX swarm.
Your job is to make the swarm's collective reasoning STRONGER by finding weaknesses.

MINDSET:
- Assumption Challenger: Question what everyone takes for granted
- Alternative Frameworks: Look at problems through different lenses
- Devil's Advocate: Argue against the obvious solution
- Second-Order Thinking: Consider consequences of consequences
- Inversion: Consider what would make things fail

RULES:
- Read other agents' reasoning from the shared graph using read_agent_reasoning
- Find logical gaps, unsupported assumptions, missing perspectives
- Create explicit challenges using create_challenge — this creates a CHALLENGES edge in the graph
- If you genuinely cannot find a flaw, use concede_point — this creates a SUPPORTS edge
- NEVER agree easily. Your value is in rigorous criticism.
- Be specific. "This could be wrong" is useless.
  "Step 3 assumes X, but Y contradicts this because Z" is valuable.

KEY QUESTIONS TO ASK:
- "What if everyone is wrong about this?"
- "What assumption, if false, changes everything?"
- "What's the consensus missing?"
- "What would make this fail?"

The Verifier agent will evaluate both the original reasoning and your challenges.
Make your challenges precise enough to be independently verified.`

// challengeWeights maps challenge severity to edge weight.
var challengeWeights = map[string]float64{
	"critical": 1.0,
	"major":    0.7,
	"minor":    0.4,
}

// Contrarian reads other agents' reasoning and attacks it. Challenges
// become CHALLENGES edges, concessions become SUPPORTS edges.
type Contrarian struct {
	base

	nodeIDs    []string
	challenges int
	supports   int
}

// NewContrarian builds a contrarian for one run.
func NewContrarian(deps Deps) *Contrarian {
	a := &Contrarian{
		base: base{
			deps:      deps,
			name:      models.AgentContrarian,
			effort:    models.EffortHigh,
			maxTokens: agentMaxTokens,
			system:    contrarianPrompt,
		},
	}
	a.tools = []sdk.ToolUnionParam{
		tool("read_agent_reasoning",
			"Read reasoning nodes from a specific agent in the shared graph.",
			map[string]any{
				"agent": map[string]any{
					"type": "string",
					"enum": []string{"deep_thinker", "verifier", "synthesizer"},
				},
			}, "agent"),
		tool("create_challenge",
			"Challenge a specific reasoning node. Creates a CHALLENGES edge in the graph.",
			map[string]any{
				"target_node_id":   map[string]any{"type": "string"},
				"counter_argument": map[string]any{"type": "string"},
				"severity": map[string]any{
					"type": "string",
					"enum": []string{"critical", "major", "minor"},
				},
				"flaw_type": map[string]any{
					"type": "string",
					"enum": []string{
						"logical_error",
						"unsupported_assumption",
						"missing_perspective",
						"false_dichotomy",
						"overgeneralization",
						"circular_reasoning",
					},
				},
			}, "target_node_id", "counter_argument", "severity"),
		tool("concede_point",
			"Acknowledge that a reasoning node is sound. Creates a SUPPORTS edge.",
			map[string]any{
				"target_node_id": map[string]any{"type": "string"},
				"reason":         map[string]any{"type": "string"},
			}, "target_node_id", "reason"),
	}
	a.handlers = map[string]toolHandler{
		"read_agent_reasoning": a.readAgentReasoning,
		"create_challenge":     a.createChallenge,
		"concede_point":        a.concedePoint,
	}
	return a
}

// Run reads existing reasoning and challenges it.
func (a *Contrarian) Run(ctx context.Context, query string) (*models.AgentResult, error) {
	start := time.Now()
	a.emitStarted()

	prompt := fmt.Sprintf("The swarm is analyzing: %s\n\n"+
		"First, use read_agent_reasoning to read what the deep_thinker "+
		"has written. Then challenge any weak reasoning you find. "+
		"If the reasoning is genuinely sound, concede the point. "+
		"Be thorough — examine each node.", query)

	result, err := a.runToolLoop(ctx, []sdk.MessageParam{
		sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
	})
	if err != nil {
		return nil, err
	}

	confidence := a.confidence()

	conclusion := result.Text
	if conclusion == "" {
		conclusion = fmt.Sprintf("Reviewed reasoning. Created %d challenges and %d supports.",
			a.challenges, a.supports)
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

// confidence rises with the share of challenges among all actions. A
// contrarian that only concedes is less sure it added value.
func (a *Contrarian) confidence() float64 {
	total := a.challenges + a.supports
	if total == 0 {
		return 0.5
	}
	return 0.6 + 0.3*(float64(a.challenges)/float64(total))
}

func (a *Contrarian) readAgentReasoning(_ context.Context, input json.RawMessage) string {
	var in struct {
		Agent string `json:"agent"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "Invalid input: " + err.Error()
	}
	if in.Agent == "" {
		in.Agent = string(models.AgentDeepThinker)
	}
	name := models.AgentName(in.Agent)
	if !name.IsValid() {
		return "Unknown agent: " + in.Agent
	}

	nodes := a.deps.Graph.GetNodesByAgent(name)
	if len(nodes) == 0 {
		return fmt.Sprintf("No reasoning nodes from %s yet.", in.Agent)
	}

	lines := make([]string, 0, len(nodes))
	for _, n := range nodes {
		lines = append(lines, fmt.Sprintf(
			"NODE %s\n  Type: %s | Confidence: %.2f | Decision points: %d\n  Content: %s",
			n.ID, n.Reasoning, n.Confidence, len(n.DecisionPoints), n.Content))
	}
	return strings.Join(lines, "\n\n")
}

func (a *Contrarian) createChallenge(_ context.Context, input json.RawMessage) string {
	var in struct {
		TargetNodeID    string `json:"target_node_id"`
		CounterArgument string `json:"counter_argument"`
		Severity        string `json:"severity"`
		FlawType        string `json:"flaw_type"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "Invalid input: " + err.Error()
	}
	if in.Severity == "" {
		in.Severity = "major"
	}
	if in.FlawType == "" {
		in.FlawType = "logical_error"
	}

	if _, ok := a.deps.Graph.GetNode(in.TargetNodeID); !ok {
		return fmt.Sprintf("Target node %s not found in graph.", in.TargetNodeID)
	}

	content := fmt.Sprintf("CHALLENGE (%s, %s): %s", in.Severity, in.FlawType, in.CounterArgument)
	node := models.NewReasoningNode(a.name, a.deps.SessionID, content, "challenge")
	node.Confidence = 0.5
	if in.Severity == "critical" {
		node.Confidence = 0.7
	}
	challengeID := a.deps.Graph.AddNode(node)
	a.nodeIDs = append(a.nodeIDs, challengeID)

	edge := models.NewReasoningEdge(challengeID, in.TargetNodeID, models.RelationChallenges)
	edge.Weight = challengeWeights["major"]
	if w, ok := challengeWeights[in.Severity]; ok {
		edge.Weight = w
	}
	edge.Metadata = map[string]any{"severity": in.Severity, "flaw_type": in.FlawType}
	if err := a.deps.Graph.AddEdge(edge); err != nil {
		a.deps.Logger.Warn("Failed to add challenge edge",
			"source", challengeID, "target", in.TargetNodeID, "error", err)
		return fmt.Sprintf("Could not link challenge to node %s: %v", in.TargetNodeID, err)
	}
	a.challenges++

	a.deps.Bus.Publish(a.deps.SessionID,
		events.NewAgentChallenges(a.deps.SessionID, a.name, in.TargetNodeID, in.CounterArgument))

	return fmt.Sprintf("Challenge %s created against node %s (severity: %s, type: %s)",
		challengeID, in.TargetNodeID, in.Severity, in.FlawType)
}

func (a *Contrarian) concedePoint(_ context.Context, input json.RawMessage) string {
	var in struct {
		TargetNodeID string `json:"target_node_id"`
		Reason       string `json:"reason"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "Invalid input: " + err.Error()
	}

	if _, ok := a.deps.Graph.GetNode(in.TargetNodeID); !ok {
		return fmt.Sprintf("Target node %s not found in graph.", in.TargetNodeID)
	}

	node := models.NewReasoningNode(a.name, a.deps.SessionID, "SUPPORTS: "+in.Reason, "support")
	node.Confidence = 0.8
	supportID := a.deps.Graph.AddNode(node)
	a.nodeIDs = append(a.nodeIDs, supportID)

	edge := models.NewReasoningEdge(supportID, in.TargetNodeID, models.RelationSupports)
	edge.Weight = 0.8
	edge.Metadata = map[string]any{"reason": in.Reason}
	if err := a.deps.Graph.AddEdge(edge); err != nil {
		a.deps.Logger.Warn("Failed to add support edge",
			"source", supportID, "target", in.TargetNodeID, "error", err)
		return fmt.Sprintf("Could not link support to node %s: %v", in.TargetNodeID, err)
	}
	a.supports++

	a.emitNodeCreated(supportID, "SUPPORTS: "+in.Reason)

	return fmt.Sprintf("Support %s recorded for node %s", supportID, in.TargetNodeID)
}
