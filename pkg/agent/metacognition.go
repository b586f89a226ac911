package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/opus-nx/swarm/pkg/events"
	"github.com/opus-nx/swarm/pkg/models"
)

// focusAreas frame the meta-analysis in observe_swarm_state output.
var focusAreas = []struct{ name, description string }{
	{"reasoning_quality", "How sound is the logical reasoning? Are conclusions well-supported?"},
	{"bias_detection", "Are there systematic biases affecting the swarm's reasoning?"},
	{"knowledge_gaps", "What information is missing that could change conclusions?"},
	{"decision_quality", "How well were decision points handled? Were alternatives explored?"},
	{"learning_patterns", "What recurring reasoning patterns appear across the swarm?"},
}

// requiredInsightTypes drive the follow-up loop: the run keeps asking
// until each of these has been produced or the turn budget runs out.
var requiredInsightTypes = []string{"bias_detection", "pattern", "improvement_hypothesis"}

// maxFollowUps bounds the follow-up turns after the initial analysis.
const maxFollowUps = 3

const metacognitionPrompt = `You are Metacognition, the swarm psychologist within the Opus NX reasoning system.

You observe the PROCESS of reasoning, not just the conclusions. Your role is meta-analysis:
examining HOW the swarm reached its answers, not WHETHER the answers are correct.

## Your Task

Analyze the full swarm state and produce actionable insights about reasoning quality.

## Analysis Categories

### 1. Bias Detection (bias_detection / swarm_bias)
Look for systematic tendencies:
- Anchoring: Over-relying on initial information
- Confirmation: Seeking confirming evidence, dismissing alternatives
- Availability: Overweighting recent/salient examples
- Overconfidence: High confidence with shallow analysis
- Premature Closure: Concluding before exploring alternatives
- Groupthink: All agents converging too quickly without genuine debate

### 2. Pattern Recognition (pattern / productive_tension)
Identify reasoning structures:
- Decision frameworks: How are options evaluated?
- Alternative exploration: How many alternatives are considered?
- Confidence calibration: Is uncertainty handled well?
- Productive tension: Is the Contrarian generating valuable pushback?
- Reasoning depth: What triggers deeper vs. shallower analysis?

### 3. Improvement Hypotheses (improvement_hypothesis)
Generate testable suggestions:
- "Consider more alternatives at decision step X"
- "Delay conclusion until evidence type Y is gathered"
- "Actively seek disconfirming evidence for hypothesis Z"

## Evidence Standards
- High confidence (0.8-1.0): Pattern in 3+ nodes with clear examples
- Medium confidence (0.5-0.8): Pattern in 2 nodes or with some ambiguity
- Low confidence (0.3-0.5): Single occurrence or circumstantial evidence

## Instructions
1. First, use observe_swarm_state to read all swarm data
2. Use your full extended thinking to deeply analyze patterns
3. For each insight discovered, call write_insight with proper evidence
4. Aim for 3-7 high-quality insights (quality over quantity)
5. Balance critique with recognition — note strengths AND weaknesses`

type insight struct {
	Type           string   `json:"insight_type"`
	Description    string   `json:"description"`
	AffectedAgents []string `json:"affected_agents"`
	Confidence     float64  `json:"confidence"`
}

// Metacognition analyzes the swarm's reasoning process after every
// other agent has written to the graph. It always runs at maximum
// effort.
type Metacognition struct {
	base

	nodeIDs  []string
	insights []insight
}

// NewMetacognition builds a metacognition agent for one run.
func NewMetacognition(deps Deps) *Metacognition {
	a := &Metacognition{
		base: base{
			deps:      deps,
			name:      models.AgentMetacognition,
			effort:    models.EffortMax,
			maxTokens: agentMaxTokens,
			system:    metacognitionPrompt,
		},
	}
	a.tools = []sdk.ToolUnionParam{
		tool("observe_swarm_state",
			"Read the full swarm state: all agents' nodes, challenges, "+
				"verifications, and edges. Returns a structured overview.",
			map[string]any{}),
		tool("write_insight",
			"Record a metacognitive insight about the swarm's reasoning.",
			map[string]any{
				"insight_type": map[string]any{
					"type": "string",
					"enum": []string{"swarm_bias", "groupthink", "productive_tension",
						"bias_detection", "pattern", "improvement_hypothesis"},
					"description": "Category of the metacognitive insight.",
				},
				"description": map[string]any{
					"type":        "string",
					"description": "Clear, actionable description of the insight (2-4 sentences).",
				},
				"affected_agents": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Which agents this insight applies to.",
				},
				"confidence": map[string]any{
					"type":        "number",
					"description": "Confidence in this insight (0.0-1.0).",
				},
				"evidence_node_ids": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Node IDs that support this insight.",
				},
			}, "insight_type", "description", "affected_agents", "confidence"),
	}
	a.handlers = map[string]toolHandler{
		"observe_swarm_state": a.observeSwarmState,
		"write_insight":       a.writeInsight,
	}
	return a
}

// Run analyzes the swarm's reasoning patterns. After the initial pass
// it checks for missing insight categories and prompts follow-up
// analysis up to three times, then applies structural groupthink
// detection the model itself may have missed.
func (a *Metacognition) Run(ctx context.Context, query string) (*models.AgentResult, error) {
	start := time.Now()
	a.emitStarted()

	prompt := fmt.Sprintf("The swarm analyzed this query: %s\n\n"+
		"Observe the full swarm state, then produce metacognitive "+
		"insights about the reasoning PROCESS. Focus on patterns, "+
		"biases, and dynamics between agents.", query)

	result, err := a.runToolLoop(ctx, []sdk.MessageParam{
		sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
	})
	if err != nil {
		return nil, err
	}

	for range maxFollowUps {
		missing := a.missingInsightTypes()
		if len(missing) == 0 {
			break
		}
		followUp, err := a.runToolLoop(ctx, []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(followUpPrompt(missing))),
		})
		if err != nil {
			return nil, err
		}
		result.TokensUsed += followUp.TokensUsed
		result.InputTokens += followUp.InputTokens
		result.Thinking += "\n\n--- Follow-up iteration ---\n\n" + followUp.Thinking
		if followUp.Text != "" {
			result.Text += "\n\n" + followUp.Text
		}
	}

	a.detectSwarmDynamics()

	conclusion := result.Text
	if conclusion == "" {
		conclusion = fmt.Sprintf("Metacognitive analysis complete. Produced %d insights.", len(a.insights))
	}

	a.emitCompleted(conclusion, 0.75, result.TokensUsed)

	return &models.AgentResult{
		Agent:           a.name,
		Status:          models.ResultCompleted,
		Reasoning:       result.Thinking,
		Conclusion:      conclusion,
		Confidence:      0.75,
		NodeIDs:         a.nodeIDs,
		TokensUsed:      result.TokensUsed,
		InputTokensUsed: result.InputTokens,
		DurationMS:      time.Since(start).Milliseconds(),
	}, nil
}

// Insights returns the descriptions of all insights produced so far.
func (a *Metacognition) Insights() []string {
	out := make([]string, 0, len(a.insights))
	for _, ins := range a.insights {
		out = append(out, fmt.Sprintf("[%s] %s", ins.Type, ins.Description))
	}
	return out
}

func (a *Metacognition) missingInsightTypes() []string {
	produced := map[string]bool{}
	for _, ins := range a.insights {
		produced[ins.Type] = true
	}
	var missing []string
	for _, t := range requiredInsightTypes {
		if !produced[t] {
			missing = append(missing, t)
		}
	}
	return missing
}

func followUpPrompt(missing []string) string {
	var focus []string
	for _, mt := range missing {
		switch mt {
		case "bias_detection":
			focus = append(focus, "BIAS DETECTION: Look for anchoring, confirmation bias, "+
				"availability bias, overconfidence, or premature closure.")
		case "pattern":
			focus = append(focus, "PATTERN RECOGNITION: Identify recurring reasoning structures, "+
				"decision frameworks, or productive tensions between agents.")
		case "improvement_hypothesis":
			focus = append(focus, "IMPROVEMENT HYPOTHESES: Generate specific, testable suggestions "+
				"for improving the swarm's reasoning (e.g., 'consider more "+
				"alternatives at step X').")
		}
	}
	return "Your previous analysis was good, but missed some areas. " +
		"Please use observe_swarm_state again and focus specifically on:\n\n" +
		strings.Join(focus, "\n\n") +
		"\n\nWrite additional insights using write_insight for each area above."
}

// detectSwarmDynamics flags graph-level dynamics the per-tool analysis
// can miss. All supports and zero challenges on analyst nodes means
// the adversarial check never happened.
func (a *Metacognition) detectSwarmDynamics() {
	allNodes := a.deps.Graph.GetSessionNodes(a.deps.SessionID)
	if len(allNodes) == 0 {
		return
	}

	var analystNodes, challenges, supports int
	for _, n := range allNodes {
		switch n.Agent {
		case models.AgentDeepThinker:
			analystNodes++
		case models.AgentContrarian:
			if strings.Contains(n.Content, "CHALLENGE") {
				challenges++
			}
			if strings.Contains(n.Content, "SUPPORTS") {
				supports++
			}
		}
	}

	if analystNodes == 0 || challenges > 0 || supports == 0 {
		return
	}
	for _, ins := range a.insights {
		if ins.Type == "groupthink" {
			return
		}
	}

	content := "GROUPTHINK DETECTED: Contrarian agent created no challenges, " +
		"only supports. This may indicate the swarm converged too " +
		"quickly without genuine adversarial testing."
	node := models.NewReasoningNode(a.name, a.deps.SessionID, content, "metacognitive_insight")
	node.Confidence = 0.7
	nodeID := a.deps.Graph.AddNode(node)
	a.nodeIDs = append(a.nodeIDs, nodeID)

	affected := []string{string(models.AgentContrarian), string(models.AgentDeepThinker)}
	a.insights = append(a.insights, insight{
		Type:           "groupthink",
		Description:    content,
		AffectedAgents: affected,
		Confidence:     0.7,
	})

	a.deps.Bus.Publish(a.deps.SessionID,
		events.NewMetacognitionInsight(a.deps.SessionID, "groupthink", content,
			[]models.AgentName{models.AgentContrarian, models.AgentDeepThinker}))
}

func (a *Metacognition) observeSwarmState(_ context.Context, _ json.RawMessage) string {
	allNodes := a.deps.Graph.GetSessionNodes(a.deps.SessionID)
	if len(allNodes) == 0 {
		return "No nodes in the graph yet. The swarm hasn't produced any reasoning."
	}

	byAgent := map[models.AgentName][]*models.ReasoningNode{}
	for _, n := range allNodes {
		byAgent[n.Agent] = append(byAgent[n.Agent], n)
	}
	agents := make([]string, 0, len(byAgent))
	for agent := range byAgent {
		agents = append(agents, string(agent))
	}
	sort.Strings(agents)

	lines := []string{fmt.Sprintf("=== SWARM STATE (%d total nodes) ===\n", len(allNodes))}
	for _, agent := range agents {
		nodes := byAgent[models.AgentName(agent)]
		lines = append(lines, fmt.Sprintf("\n--- %s (%d nodes) ---", strings.ToUpper(agent), len(nodes)))

		for _, n := range nodes {
			lines = append(lines, fmt.Sprintf(
				"\nNODE %s\n  Type: %s | Confidence: %.2f | Decision points: %d\n  Content: %s",
				n.ID, n.Reasoning, n.Confidence, len(n.DecisionPoints), truncate(n.Content, 500)))

			for _, c := range a.deps.Graph.GetChallengesFor(n.ID) {
				lines = append(lines, fmt.Sprintf("  >> CHALLENGED by %s: %s",
					c.SourceNode.Agent, truncate(c.SourceNode.Content, 200)))
			}
			for _, v := range a.deps.Graph.GetVerificationsFor(n.ID) {
				lines = append(lines, fmt.Sprintf("  >> VERIFIED by %s: %s",
					v.SourceNode.Agent, truncate(v.SourceNode.Content, 200)))
			}
		}
	}

	lines = append(lines, "\n\n=== FOCUS AREAS FOR ANALYSIS ===")
	for _, area := range focusAreas {
		lines = append(lines, fmt.Sprintf("- %s: %s", area.name, area.description))
	}

	return strings.Join(lines, "\n")
}

func (a *Metacognition) writeInsight(_ context.Context, input json.RawMessage) string {
	var in struct {
		InsightType     string   `json:"insight_type"`
		Description     string   `json:"description"`
		AffectedAgents  []string `json:"affected_agents"`
		Confidence      *float64 `json:"confidence"`
		EvidenceNodeIDs []string `json:"evidence_node_ids"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "Invalid input: " + err.Error()
	}
	if in.InsightType == "" {
		in.InsightType = "pattern"
	}
	confidence := 0.5
	if in.Confidence != nil {
		confidence = *in.Confidence
	}

	node := models.NewReasoningNode(a.name, a.deps.SessionID,
		fmt.Sprintf("[%s] %s", in.InsightType, in.Description), "metacognitive_insight")
	node.Confidence = confidence
	nodeID := a.deps.Graph.AddNode(node)
	a.nodeIDs = append(a.nodeIDs, nodeID)

	for _, evidenceID := range in.EvidenceNodeIDs {
		if _, ok := a.deps.Graph.GetNode(evidenceID); !ok {
			continue
		}
		edge := models.NewReasoningEdge(nodeID, evidenceID, models.RelationObserves)
		edge.Weight = confidence
		edge.Metadata = map[string]any{"insight_type": in.InsightType}
		if err := a.deps.Graph.AddEdge(edge); err != nil {
			a.deps.Logger.Warn("Failed to add insight edge",
				"source", nodeID, "target", evidenceID, "error", err)
		}
	}

	a.insights = append(a.insights, insight{
		Type:           in.InsightType,
		Description:    in.Description,
		AffectedAgents: in.AffectedAgents,
		Confidence:     confidence,
	})

	affected := make([]models.AgentName, 0, len(in.AffectedAgents))
	for _, name := range in.AffectedAgents {
		affected = append(affected, models.AgentName(name))
	}
	a.deps.Bus.Publish(a.deps.SessionID,
		events.NewMetacognitionInsight(a.deps.SessionID, in.InsightType, in.Description, affected))

	return fmt.Sprintf("Insight recorded (type: %s, confidence: %.2f). Total insights: %d",
		in.InsightType, confidence, len(a.insights))
}
