package events

import (
	"time"

	"github.com/opus-nx/swarm/pkg/models"
)

// Envelope carries the fields common to every swarm event.
type Envelope struct {
	Event     string `json:"event"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"` // RFC3339 UTC
}

func envelope(eventType, sessionID string) Envelope {
	return Envelope{
		Event:     eventType,
		SessionID: sessionID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// SwarmStarted announces a run and the agents deployed for it.
type SwarmStarted struct {
	Envelope
	Agents []models.AgentName `json:"agents"`
	Query  string             `json:"query"`
}

// NewSwarmStarted builds a swarm_started event.
func NewSwarmStarted(sessionID string, agents []models.AgentName, query string) SwarmStarted {
	return SwarmStarted{Envelope: envelope(EventTypeSwarmStarted, sessionID), Agents: agents, Query: query}
}

// AgentStarted announces a single agent beginning work.
type AgentStarted struct {
	Envelope
	Agent  models.AgentName   `json:"agent"`
	Effort models.EffortLevel `json:"effort"`
}

// NewAgentStarted builds an agent_started event.
func NewAgentStarted(sessionID string, agent models.AgentName, effort models.EffortLevel) AgentStarted {
	return AgentStarted{Envelope: envelope(EventTypeAgentStarted, sessionID), Agent: agent, Effort: effort}
}

// AgentThinking streams an incremental chunk of an agent's thinking text.
// High-frequency and ephemeral — dropped first under backpressure.
type AgentThinking struct {
	Envelope
	Agent models.AgentName `json:"agent"`
	Delta string           `json:"delta"`
}

// NewAgentThinking builds an agent_thinking event.
func NewAgentThinking(sessionID string, agent models.AgentName, delta string) AgentThinking {
	return AgentThinking{Envelope: envelope(EventTypeAgentThinking, sessionID), Agent: agent, Delta: delta}
}

// GraphNodeCreated announces a new node in the reasoning graph.
type GraphNodeCreated struct {
	Envelope
	NodeID         string           `json:"node_id"`
	Agent          models.AgentName `json:"agent"`
	ContentPreview string           `json:"content_preview"`
}

// NewGraphNodeCreated builds a graph_node_created event.
func NewGraphNodeCreated(sessionID, nodeID string, agent models.AgentName, contentPreview string) GraphNodeCreated {
	return GraphNodeCreated{
		Envelope:       envelope(EventTypeGraphNodeCreated, sessionID),
		NodeID:         nodeID,
		Agent:          agent,
		ContentPreview: contentPreview,
	}
}

// AgentChallenges announces an objection raised against a node.
type AgentChallenges struct {
	Envelope
	Challenger      models.AgentName `json:"challenger"`
	TargetNodeID    string           `json:"target_node_id"`
	ArgumentPreview string           `json:"argument_preview"`
}

// NewAgentChallenges builds an agent_challenges event.
func NewAgentChallenges(sessionID string, challenger models.AgentName, targetNodeID, argumentPreview string) AgentChallenges {
	return AgentChallenges{
		Envelope:        envelope(EventTypeAgentChallenges, sessionID),
		Challenger:      challenger,
		TargetNodeID:    targetNodeID,
		ArgumentPreview: argumentPreview,
	}
}

// VerificationScore reports a verdict for one reasoning step.
type VerificationScore struct {
	Envelope
	NodeID  string  `json:"node_id"`
	Score   float64 `json:"score"`
	Verdict string  `json:"verdict"`
}

// NewVerificationScore builds a verification_score event.
func NewVerificationScore(sessionID, nodeID string, score float64, verdict string) VerificationScore {
	return VerificationScore{
		Envelope: envelope(EventTypeVerificationScore, sessionID),
		NodeID:   nodeID,
		Score:    score,
		Verdict:  verdict,
	}
}

// AgentCompleted announces an agent finishing, with a conclusion preview.
type AgentCompleted struct {
	Envelope
	Agent             models.AgentName `json:"agent"`
	ConclusionPreview string           `json:"conclusion_preview"`
	Confidence        float64          `json:"confidence"`
	TokensUsed        int              `json:"tokens_used"`
}

// NewAgentCompleted builds an agent_completed event.
func NewAgentCompleted(sessionID string, agent models.AgentName, conclusionPreview string, confidence float64, tokensUsed int) AgentCompleted {
	return AgentCompleted{
		Envelope:          envelope(EventTypeAgentCompleted, sessionID),
		Agent:             agent,
		ConclusionPreview: conclusionPreview,
		Confidence:        confidence,
		TokensUsed:        tokensUsed,
	}
}

// SynthesisReady delivers the merged final answer.
type SynthesisReady struct {
	Envelope
	Synthesis  string  `json:"synthesis"`
	Confidence float64 `json:"confidence"`
}

// NewSynthesisReady builds a synthesis_ready event.
func NewSynthesisReady(sessionID, synthesis string, confidence float64) SynthesisReady {
	return SynthesisReady{Envelope: envelope(EventTypeSynthesisReady, sessionID), Synthesis: synthesis, Confidence: confidence}
}

// MetacognitionInsight reports an observation about the swarm's own process.
type MetacognitionInsight struct {
	Envelope
	InsightType    string             `json:"insight_type"`
	Description    string             `json:"description"`
	AffectedAgents []models.AgentName `json:"affected_agents"`
}

// NewMetacognitionInsight builds a metacognition_insight event.
func NewMetacognitionInsight(sessionID, insightType, description string, affectedAgents []models.AgentName) MetacognitionInsight {
	return MetacognitionInsight{
		Envelope:       envelope(EventTypeMetacognitionInsight, sessionID),
		InsightType:    insightType,
		Description:    description,
		AffectedAgents: affectedAgents,
	}
}

// MaestroDecomposition reports the planner's breakdown of the query.
type MaestroDecomposition struct {
	Envelope
	Subtasks         []string           `json:"subtasks"`
	SelectedAgents   []models.AgentName `json:"selected_agents"`
	ReasoningPreview string             `json:"reasoning_preview"`
}

// NewMaestroDecomposition builds a maestro_decomposition event.
func NewMaestroDecomposition(sessionID string, subtasks []string, selectedAgents []models.AgentName, reasoningPreview string) MaestroDecomposition {
	return MaestroDecomposition{
		Envelope:         envelope(EventTypeMaestroDecomposition, sessionID),
		Subtasks:         subtasks,
		SelectedAgents:   selectedAgents,
		ReasoningPreview: reasoningPreview,
	}
}

// HumanCheckpoint records a human verdict attached to a reasoning node.
type HumanCheckpoint struct {
	Envelope
	NodeID     string                   `json:"node_id"`
	Verdict    models.CheckpointVerdict `json:"verdict"`
	Correction *string                  `json:"correction"`
}

// NewHumanCheckpoint builds a human_checkpoint event. Correction is nil
// when the verdict carries no corrective text.
func NewHumanCheckpoint(sessionID, nodeID string, verdict models.CheckpointVerdict, correction *string) HumanCheckpoint {
	return HumanCheckpoint{
		Envelope:   envelope(EventTypeHumanCheckpoint, sessionID),
		NodeID:     nodeID,
		Verdict:    verdict,
		Correction: correction,
	}
}

// SwarmRerunStarted announces a corrective re-run triggered by a checkpoint.
type SwarmRerunStarted struct {
	Envelope
	Agents            []models.AgentName `json:"agents"`
	CorrectionPreview string             `json:"correction_preview"`
	ExperimentID      string             `json:"experiment_id,omitempty"`
}

// NewSwarmRerunStarted builds a swarm_rerun_started event.
func NewSwarmRerunStarted(sessionID string, agents []models.AgentName, correctionPreview, experimentID string) SwarmRerunStarted {
	return SwarmRerunStarted{
		Envelope:          envelope(EventTypeSwarmRerunStarted, sessionID),
		Agents:            agents,
		CorrectionPreview: correctionPreview,
		ExperimentID:      experimentID,
	}
}

// HypothesisExperimentUpdated announces a lifecycle transition for an
// experiment tracked in the session. RetentionDecision and
// ComparisonResult are present only when the transition produced them.
type HypothesisExperimentUpdated struct {
	Envelope
	ExperimentID      string                   `json:"experiment_id"`
	Status            models.ExperimentStatus  `json:"status"`
	RetentionDecision models.RetentionDecision `json:"retention_decision,omitempty"`
	ComparisonResult  map[string]any           `json:"comparison_result,omitempty"`
}

// NewHypothesisExperimentUpdated builds a hypothesis_experiment_updated event.
func NewHypothesisExperimentUpdated(sessionID string, exp *models.HypothesisExperiment) HypothesisExperimentUpdated {
	return HypothesisExperimentUpdated{
		Envelope:          envelope(EventTypeHypothesisExperimentUpdated, sessionID),
		ExperimentID:      exp.ID,
		Status:            exp.Status,
		RetentionDecision: exp.RetentionDecision,
		ComparisonResult:  exp.ComparisonResult,
	}
}

// SwarmError reports a failed background run or stream fault.
type SwarmError struct {
	Envelope
	Error string `json:"error"`
}

// NewSwarmError builds a swarm_error event.
func NewSwarmError(sessionID, errText string) SwarmError {
	return SwarmError{Envelope: envelope(EventTypeSwarmError, sessionID), Error: errText}
}

// Ping is the WebSocket liveness heartbeat.
type Ping struct {
	Envelope
}

// NewPing builds a ping event.
func NewPing(sessionID string) Ping {
	return Ping{Envelope: envelope(EventTypePing, sessionID)}
}
