package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenUsage records token consumption attributed to a node or agent run
type TokenUsage struct {
	InputTokens    int `json:"input_tokens"`
	OutputTokens   int `json:"output_tokens"`
	ThinkingTokens int `json:"thinking_tokens"`
}

// ReasoningNode is one immutable step in the shared reasoning graph.
// Nodes are never mutated after insertion; corrections arrive as new
// nodes linked by edges.
type ReasoningNode struct {
	ID             string           `json:"id"`
	Agent          AgentName        `json:"agent"`
	SessionID      string           `json:"session_id"`
	Content        string           `json:"content"`
	Reasoning      string           `json:"reasoning"`
	Confidence     float64          `json:"confidence"`
	DecisionPoints []map[string]any `json:"decision_points"`
	InputQuery     string           `json:"input_query,omitempty"`
	TokenUsage     *TokenUsage      `json:"token_usage,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// NewReasoningNode builds a node with a fresh id and UTC creation time.
// Reasoning is a structural kind tag ("analysis", "challenge", "synthesis",
// "human_annotation", ...), not prose.
func NewReasoningNode(agent AgentName, sessionID, content, reasoning string) *ReasoningNode {
	return &ReasoningNode{
		ID:             uuid.NewString(),
		Agent:          agent,
		SessionID:      sessionID,
		Content:        content,
		Reasoning:      reasoning,
		DecisionPoints: []map[string]any{},
		CreatedAt:      time.Now().UTC(),
	}
}

// ReasoningEdge is a directed, typed link between two nodes
type ReasoningEdge struct {
	SourceID string         `json:"source_id"`
	TargetID string         `json:"target_id"`
	Relation EdgeRelation   `json:"relation"`
	Weight   float64        `json:"weight"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewReasoningEdge builds an edge with the default weight of 1.0
func NewReasoningEdge(sourceID, targetID string, relation EdgeRelation) *ReasoningEdge {
	return &ReasoningEdge{
		SourceID: sourceID,
		TargetID: targetID,
		Relation: relation,
		Weight:   1.0,
		Metadata: map[string]any{},
	}
}
