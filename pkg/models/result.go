package models

// AgentResult is the outcome of a single agent run within a session
type AgentResult struct {
	Agent           AgentName    `json:"agent"`
	Status          ResultStatus `json:"status"`
	Reasoning       string       `json:"reasoning"`
	Conclusion      string       `json:"conclusion"`
	Confidence      float64      `json:"confidence"`
	NodeIDs         []string     `json:"node_ids"`
	TokensUsed      int          `json:"tokens_used"`
	InputTokensUsed int          `json:"input_tokens_used"`
	DurationMS      int64        `json:"duration_ms"`
}

// SwarmResult aggregates a full swarm run
type SwarmResult struct {
	SessionID             string         `json:"session_id"`
	Query                 string         `json:"query"`
	Agents                []*AgentResult `json:"agents"`
	Synthesis             *AgentResult   `json:"synthesis,omitempty"`
	MetacognitionInsights []string       `json:"metacognition_insights"`
	TotalTokens           int            `json:"total_tokens"`
	TotalDurationMS       int64          `json:"total_duration_ms"`
}

// PlannedAgent is one deployment decision in a maestro plan
type PlannedAgent struct {
	Name   AgentName   `json:"name"`
	Effort EffortLevel `json:"effort,omitempty"`
}

// SwarmPlan is the maestro's deployment plan for a query. An empty plan
// (no agents) signals that the caller should fall back to heuristic
// complexity classification.
type SwarmPlan struct {
	Agents    []PlannedAgent `json:"agents"`
	Subtasks  []string       `json:"subtasks"`
	Reasoning string         `json:"reasoning"`
}
