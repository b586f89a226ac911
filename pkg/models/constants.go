package models

// AgentName identifies a reasoning agent role in the swarm
type AgentName string

const (
	// AgentMaestro plans the run: decomposes the query and selects agents
	AgentMaestro AgentName = "maestro"
	// AgentDeepThinker produces the primary chain of reasoning
	AgentDeepThinker AgentName = "deep_thinker"
	// AgentContrarian challenges other agents' reasoning
	AgentContrarian AgentName = "contrarian"
	// AgentVerifier scores individual reasoning steps
	AgentVerifier AgentName = "verifier"
	// AgentSynthesizer merges conclusions into a final answer
	AgentSynthesizer AgentName = "synthesizer"
	// AgentMetacognition analyzes the swarm's own reasoning process
	AgentMetacognition AgentName = "metacognition"
)

// IsValid checks if the agent name is valid
func (a AgentName) IsValid() bool {
	switch a {
	case AgentMaestro,
		AgentDeepThinker,
		AgentContrarian,
		AgentVerifier,
		AgentSynthesizer,
		AgentMetacognition:
		return true
	default:
		return false
	}
}

// PrimaryAgents are the agents eligible for parallel deployment in the
// analysis phase. Maestro, synthesizer and metacognition run outside it.
func PrimaryAgents() []AgentName {
	return []AgentName{AgentDeepThinker, AgentContrarian, AgentVerifier}
}

// EffortLevel controls how much thinking budget an agent request gets
type EffortLevel string

const (
	EffortLow    EffortLevel = "low"
	EffortMedium EffortLevel = "medium"
	EffortHigh   EffortLevel = "high"
	EffortMax    EffortLevel = "max"
)

// IsValid checks if the effort level is valid
func (e EffortLevel) IsValid() bool {
	return e == EffortLow || e == EffortMedium || e == EffortHigh || e == EffortMax
}

// EdgeRelation describes how two reasoning nodes relate
type EdgeRelation string

const (
	// RelationLeadsTo chains sequential reasoning steps
	RelationLeadsTo EdgeRelation = "LEADS_TO"
	// RelationChallenges marks an objection raised against a node
	RelationChallenges EdgeRelation = "CHALLENGES"
	// RelationVerifies marks a verification verdict for a node
	RelationVerifies EdgeRelation = "VERIFIES"
	// RelationSupports endorses a node
	RelationSupports EdgeRelation = "SUPPORTS"
	// RelationContradicts marks mutually exclusive conclusions
	RelationContradicts EdgeRelation = "CONTRADICTS"
	// RelationMerges links a synthesis to its contributing nodes
	RelationMerges EdgeRelation = "MERGES"
	// RelationObserves links meta-level commentary to its evidence
	RelationObserves EdgeRelation = "OBSERVES"
)

// IsValid checks if the edge relation is valid
func (r EdgeRelation) IsValid() bool {
	switch r {
	case RelationLeadsTo,
		RelationChallenges,
		RelationVerifies,
		RelationSupports,
		RelationContradicts,
		RelationMerges,
		RelationObserves:
		return true
	default:
		return false
	}
}

// ResultStatus is the terminal status of a single agent run
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultTimeout   ResultStatus = "timeout"
	ResultError     ResultStatus = "error"
)

// IsValid checks if the result status is valid
func (s ResultStatus) IsValid() bool {
	return s == ResultCompleted || s == ResultTimeout || s == ResultError
}

// ExperimentStatus tracks a hypothesis experiment through its lifecycle
type ExperimentStatus string

const (
	// ExperimentPromoted means an alternative hypothesis was promoted for tracking
	ExperimentPromoted ExperimentStatus = "promoted"
	// ExperimentCheckpointed means a human checkpoint was recorded against it
	ExperimentCheckpointed ExperimentStatus = "checkpointed"
	// ExperimentRerunning means a corrective re-run is in flight
	ExperimentRerunning ExperimentStatus = "rerunning"
	// ExperimentComparing means original and re-run results are being compared
	ExperimentComparing ExperimentStatus = "comparing"
	// ExperimentRetained is terminal: the alternative was kept
	ExperimentRetained ExperimentStatus = "retained"
	// ExperimentDeferred is terminal: the decision was postponed
	ExperimentDeferred ExperimentStatus = "deferred"
	// ExperimentArchived is terminal: the experiment was discarded
	ExperimentArchived ExperimentStatus = "archived"
)

// IsValid checks if the experiment status is valid
func (s ExperimentStatus) IsValid() bool {
	switch s {
	case ExperimentPromoted,
		ExperimentCheckpointed,
		ExperimentRerunning,
		ExperimentComparing,
		ExperimentRetained,
		ExperimentDeferred,
		ExperimentArchived:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status accepts no further transitions
// except archival
func (s ExperimentStatus) IsTerminal() bool {
	return s == ExperimentRetained || s == ExperimentDeferred || s == ExperimentArchived
}

// RetentionDecision is the operator's final call on an experiment
type RetentionDecision string

const (
	RetentionRetain  RetentionDecision = "retain"
	RetentionDefer   RetentionDecision = "defer"
	RetentionArchive RetentionDecision = "archive"
)

// IsValid checks if the retention decision is valid
func (d RetentionDecision) IsValid() bool {
	return d == RetentionRetain || d == RetentionDefer || d == RetentionArchive
}

// Status maps a retention decision to the experiment status it produces
func (d RetentionDecision) Status() ExperimentStatus {
	switch d {
	case RetentionRetain:
		return ExperimentRetained
	case RetentionDefer:
		return ExperimentDeferred
	default:
		return ExperimentArchived
	}
}

// CheckpointVerdict is a human judgement attached to a reasoning node
type CheckpointVerdict string

const (
	VerdictVerified     CheckpointVerdict = "verified"
	VerdictQuestionable CheckpointVerdict = "questionable"
	VerdictDisagree     CheckpointVerdict = "disagree"
	VerdictAgree        CheckpointVerdict = "agree"
	VerdictExplore      CheckpointVerdict = "explore"
	VerdictNote         CheckpointVerdict = "note"
)

// IsValid checks if the checkpoint verdict is valid
func (v CheckpointVerdict) IsValid() bool {
	switch v {
	case VerdictVerified,
		VerdictQuestionable,
		VerdictDisagree,
		VerdictAgree,
		VerdictExplore,
		VerdictNote:
		return true
	default:
		return false
	}
}
