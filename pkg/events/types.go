// Package events provides in-process event delivery for swarm sessions.
//
// Each session gets its own set of bounded subscriber queues. Publishing
// is non-blocking: slow subscribers get events dropped rather than
// stalling the reasoning agents. Dropped events are counted per session
// and surfaced when the session is cleaned up.
//
// Events are flat JSON objects. Every event carries three envelope
// fields — "event" (type discriminator), "session_id" and "timestamp"
// (RFC3339 UTC) — plus type-specific fields. See payloads.go.
package events

// Event type discriminators (the "event" field on the wire).
const (
	EventTypeSwarmStarted                = "swarm_started"
	EventTypeAgentStarted                = "agent_started"
	EventTypeAgentThinking               = "agent_thinking"
	EventTypeGraphNodeCreated            = "graph_node_created"
	EventTypeAgentChallenges             = "agent_challenges"
	EventTypeVerificationScore           = "verification_score"
	EventTypeAgentCompleted              = "agent_completed"
	EventTypeSynthesisReady              = "synthesis_ready"
	EventTypeMetacognitionInsight        = "metacognition_insight"
	EventTypeMaestroDecomposition        = "maestro_decomposition"
	EventTypeHumanCheckpoint             = "human_checkpoint"
	EventTypeSwarmRerunStarted           = "swarm_rerun_started"
	EventTypeHypothesisExperimentUpdated = "hypothesis_experiment_updated"
	EventTypeSwarmError                  = "swarm_error"
	EventTypePing                        = "ping"
)

// DefaultQueueSize is the per-subscriber queue capacity. A subscriber
// that falls more than this many events behind starts losing events.
const DefaultQueueSize = 500

// DefaultStaleAge is how long a session may sit without subscriber
// activity before the reaper may reclaim it.
const DefaultStaleAge = 1800 // seconds
