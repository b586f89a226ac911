// Package agent implements the reasoning roles of the swarm: maestro,
// deep thinker, contrarian, verifier, synthesizer and metacognition.
// Every agent shares the same streamed Claude calling pattern and tool
// loop, writes to the shared reasoning graph, and publishes progress
// events to the session bus.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opus-nx/swarm/pkg/events"
	"github.com/opus-nx/swarm/pkg/graph"
	"github.com/opus-nx/swarm/pkg/models"
)

// Agent is one reasoning role in the swarm. Agents are created fresh
// for each run and are not shared between sessions.
type Agent interface {
	// Name returns the agent's role name.
	Name() models.AgentName

	// SetEffort overrides the role's default thinking budget.
	SetEffort(effort models.EffortLevel)

	// Run executes the agent against the query. ctx carries the
	// per-agent timeout and cancellation signal.
	//
	// Returns (nil, error) only for infrastructure failures (LLM
	// transport, cancelled context); agent-level findings live in the
	// result.
	Run(ctx context.Context, query string) (*models.AgentResult, error)
}

// New builds a fresh agent for the given role.
func New(name models.AgentName, deps Deps) (Agent, error) {
	switch name {
	case models.AgentMaestro:
		return NewMaestro(deps), nil
	case models.AgentDeepThinker:
		return NewDeepThinker(deps), nil
	case models.AgentContrarian:
		return NewContrarian(deps), nil
	case models.AgentVerifier:
		return NewVerifier(deps), nil
	case models.AgentSynthesizer:
		return NewSynthesizer(deps), nil
	case models.AgentMetacognition:
		return NewMetacognition(deps), nil
	default:
		return nil, fmt.Errorf("unknown agent: %s", name)
	}
}

// Deps carries the shared dependencies injected into every agent.
type Deps struct {
	SessionID string
	Graph     *graph.Graph
	Bus       *events.Bus
	LLM       LLMClient
	Logger    *slog.Logger
}

const (
	// agentMaxTokens caps response length for the analysis agents.
	agentMaxTokens = 16384

	// maestroMaxTokens keeps the planner lightweight. Maestro routes,
	// it does not analyze, and the whole pipeline waits on it.
	maestroMaxTokens = 4096
)
