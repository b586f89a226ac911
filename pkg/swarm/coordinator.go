// Package swarm coordinates the multi-agent reasoning pipeline: a
// planning pre-phase, staggered parallel primaries, sequential
// synthesis and meta-analysis. Agents that time out or fail produce
// partial results without cancelling their siblings.
package swarm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opus-nx/swarm/pkg/agent"
	"github.com/opus-nx/swarm/pkg/config"
	"github.com/opus-nx/swarm/pkg/events"
	"github.com/opus-nx/swarm/pkg/graph"
	"github.com/opus-nx/swarm/pkg/metrics"
	"github.com/opus-nx/swarm/pkg/models"
	"github.com/opus-nx/swarm/pkg/persist"
)

var tracer = otel.Tracer("swarm.coordinator")

// maestroTimeout bounds the planning pre-phase. A slow maestro falls
// back to heuristic classification rather than delaying the swarm.
const maestroTimeout = 15 * time.Second

// AgentFactory builds one agent per role per run. Tests substitute
// scripted agents here.
type AgentFactory func(name models.AgentName, deps agent.Deps) (agent.Agent, error)

// Coordinator runs the full swarm pipeline for a session.
type Coordinator struct {
	graph   *graph.Graph
	bus     *events.Bus
	gateway persist.Gateway
	llm     agent.LLMClient
	logger  *slog.Logger

	agentTimeout time.Duration
	stagger      time.Duration
	newAgent     AgentFactory

	rehydration rehydrationStats
}

// NewCoordinator wires a coordinator from config and shared services.
func NewCoordinator(cfg *config.SwarmConfig, g *graph.Graph, bus *events.Bus,
	gateway persist.Gateway, llm agent.LLMClient, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		graph:        g,
		bus:          bus,
		gateway:      gateway,
		llm:          llm,
		logger:       logger,
		agentTimeout: time.Duration(cfg.AgentTimeoutSeconds) * time.Second,
		stagger:      time.Duration(cfg.AgentStaggerSeconds * float64(time.Second)),
		newAgent:     agent.New,
	}
}

func (c *Coordinator) agentDeps(sessionID string) agent.Deps {
	return agent.Deps{
		SessionID: sessionID,
		Graph:     c.graph,
		Bus:       c.bus,
		LLM:       c.llm,
		Logger:    c.logger,
	}
}

// Run executes the full pipeline: rehydration, planning, parallel
// primaries, synthesis, meta-analysis. Individual agent failures
// surface as partial results in the returned SwarmResult.
func (c *Coordinator) Run(ctx context.Context, query, sessionID string) (*models.SwarmResult, error) {
	traceID := uuid.NewString()
	logger := c.logger.With("trace_id", traceID, "session_id", sessionID)

	ctx, span := tracer.Start(ctx, "swarm.Run")
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("trace_id", traceID),
	)
	defer span.End()

	result, err := c.runPipeline(ctx, logger, query, sessionID)
	finishSpan(span, err)
	if err != nil {
		metrics.SwarmRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.SwarmRuns.WithLabelValues("completed").Inc()
	return result, nil
}

// finishSpan records the outcome on span. Ending the span stays with
// the caller's defer.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

func (c *Coordinator) runPipeline(ctx context.Context, logger *slog.Logger, query, sessionID string) (*models.SwarmResult, error) {
	overallStart := time.Now()

	swarmQuery := query
	if preamble := c.rehydrationContext(ctx, query, sessionID); preamble != "" {
		swarmQuery = augmentQuery(query, preamble)
		logger.Info("Reasoning rehydration applied", "context_length", len(preamble))
	}

	// Phase 0: maestro planning, falling back to regex classification.
	plan := c.runMaestro(ctx, logger, swarmQuery, sessionID)

	effortFor := map[models.AgentName]models.EffortLevel{}
	var selected []models.AgentName
	if len(plan.Agents) > 0 {
		for _, p := range plan.Agents {
			selected = append(selected, p.Name)
			if p.Effort != "" {
				effortFor[p.Name] = p.Effort
			}
		}
	} else {
		selected = models.PrimaryAgents()
	}
	fallback := fallbackEffort(query)

	logger.Info("Swarm starting",
		"complexity", string(classifyComplexity(query)),
		"maestro_plan", len(plan.Agents) > 0,
		"selected_agents", selected)

	// Phase 1: primaries in parallel, staggered for rate limits.
	c.bus.Publish(sessionID, events.NewSwarmStarted(sessionID,
		append([]models.AgentName{models.AgentMaestro}, selected...), query))

	primaries := make([]agent.Agent, 0, len(selected))
	for _, name := range selected {
		if !isPrimary(name) {
			logger.Warn("Skipping non-primary agent in plan", "agent", name)
			continue
		}
		a, err := c.newAgent(name, c.agentDeps(sessionID))
		if err != nil {
			logger.Warn("Skipping unknown agent in plan", "agent", name, "error", err)
			continue
		}
		if effort, ok := effortFor[name]; ok {
			a.SetEffort(effort)
		} else if name == models.AgentDeepThinker {
			a.SetEffort(models.EffortMax)
		} else {
			a.SetEffort(fallback)
		}
		primaries = append(primaries, a)
	}

	phaseCtx, phaseSpan := tracer.Start(ctx, "swarm.phase1")
	agentResults := c.runStaggered(phaseCtx, logger, primaries, swarmQuery)
	phaseSpan.End()
	c.backfillTokens(ctx, logger, agentResults)

	// Phase 2: synthesizer merges all results.
	logger.Info("Phase 2: synthesis")
	synthesis := c.runSequential(ctx, logger, models.AgentSynthesizer, fallback, swarmQuery, sessionID)
	agentResults = append(agentResults, synthesis)
	c.backfillTokens(ctx, logger, []*models.AgentResult{synthesis})

	// Phase 3: metacognition observes the whole swarm, always at max.
	logger.Info("Phase 3: metacognition")
	var insights []string
	metacog := c.runSequentialWith(ctx, logger, models.AgentMetacognition, models.EffortMax,
		swarmQuery, sessionID, &insights)
	agentResults = append(agentResults, metacog)
	c.backfillTokens(ctx, logger, []*models.AgentResult{metacog})

	totalTokens := 0
	errorCount := 0
	for _, r := range agentResults {
		totalTokens += r.TokensUsed
		if r.Status == models.ResultError {
			errorCount++
		}
	}

	var synthesisResult *models.AgentResult
	if synthesis.Status == models.ResultCompleted {
		synthesisResult = synthesis
	}
	if len(insights) == 0 && metacog.Status == models.ResultCompleted && metacog.Conclusion != "" {
		insights = []string{metacog.Conclusion}
	}

	result := &models.SwarmResult{
		SessionID:             sessionID,
		Query:                 query,
		Agents:                agentResults,
		Synthesis:             synthesisResult,
		MetacognitionInsights: insights,
		TotalTokens:           totalTokens,
		TotalDurationMS:       time.Since(overallStart).Milliseconds(),
	}

	logger.Info("Swarm complete",
		"total_tokens", totalTokens,
		"total_duration_ms", result.TotalDurationMS,
		"agent_count", len(agentResults),
		"errors", errorCount)

	return result, nil
}

func isPrimary(name models.AgentName) bool {
	for _, p := range models.PrimaryAgents() {
		if p == name {
			return true
		}
	}
	return false
}

// runMaestro runs the planning agent under its own deadline and parses
// the deployment plan from its conclusion. Any failure yields an empty
// plan, which triggers heuristic fallback.
func (c *Coordinator) runMaestro(ctx context.Context, logger *slog.Logger, query, sessionID string) models.SwarmPlan {
	ctx, span := tracer.Start(ctx, "swarm.phase0")
	defer span.End()

	maestro, err := c.newAgent(models.AgentMaestro, c.agentDeps(sessionID))
	if err != nil {
		logger.Error("Maestro construction failed", "error", err)
		return models.SwarmPlan{}
	}

	runCtx, cancel := context.WithTimeout(ctx, maestroTimeout)
	defer cancel()

	result, err := maestro.Run(runCtx, query)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("Maestro timed out", "timeout_seconds", int(maestroTimeout.Seconds()))
		return models.SwarmPlan{}
	case err != nil:
		logger.Error("Maestro failed", "error", err)
		return models.SwarmPlan{}
	}

	if result.Status != models.ResultCompleted || result.Conclusion == "" {
		return models.SwarmPlan{}
	}

	var plan models.SwarmPlan
	if err := json.Unmarshal([]byte(result.Conclusion), &plan); err != nil {
		logger.Warn("Maestro plan parse failed", "error", err)
		return models.SwarmPlan{}
	}
	logger.Info("Maestro plan ready",
		"agents", len(plan.Agents), "subtasks", len(plan.Subtasks))
	return plan
}

// runStaggered launches agents in parallel, each delayed by its index
// times the stagger interval. Every agent produces a result; failures
// never cancel siblings.
func (c *Coordinator) runStaggered(ctx context.Context, logger *slog.Logger, agents []agent.Agent, query string) []*models.AgentResult {
	results := make([]*models.AgentResult, len(agents))
	var wg sync.WaitGroup
	for i, a := range agents {
		wg.Add(1)
		go func() {
			defer wg.Done()
			delay := time.Duration(i) * c.stagger
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					results[i] = errorResult(a.Name(), ctx.Err().Error())
					return
				}
			}
			results[i] = c.runWithTimeout(ctx, logger, a, query)
		}()
	}
	wg.Wait()
	return results
}

func (c *Coordinator) runSequential(ctx context.Context, logger *slog.Logger,
	name models.AgentName, effort models.EffortLevel, query, sessionID string) *models.AgentResult {
	return c.runSequentialWith(ctx, logger, name, effort, query, sessionID, nil)
}

func (c *Coordinator) runSequentialWith(ctx context.Context, logger *slog.Logger,
	name models.AgentName, effort models.EffortLevel, query, sessionID string,
	insights *[]string) *models.AgentResult {
	a, err := c.newAgent(name, c.agentDeps(sessionID))
	if err != nil {
		logger.Error("Agent construction failed", "agent", name, "error", err)
		return errorResult(name, err.Error())
	}
	a.SetEffort(effort)
	result := c.runWithTimeout(ctx, logger, a, query)
	if insights != nil {
		if provider, ok := a.(interface{ Insights() []string }); ok {
			*insights = provider.Insights()
		}
	}
	return result
}

// runWithTimeout bounds one agent run. A deadline becomes a timeout
// result, any other error becomes an error result; the caller always
// gets a usable partial.
func (c *Coordinator) runWithTimeout(ctx context.Context, logger *slog.Logger, a agent.Agent, query string) *models.AgentResult {
	runCtx, cancel := context.WithTimeout(ctx, c.agentTimeout)
	defer cancel()

	start := time.Now()
	result, err := a.Run(runCtx, query)
	metrics.AgentDuration.WithLabelValues(string(a.Name())).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.AgentRuns.WithLabelValues(string(a.Name()), string(result.Status)).Inc()
		return result
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("Agent timed out",
			"agent", a.Name(), "timeout_seconds", int(c.agentTimeout.Seconds()))
		metrics.AgentRuns.WithLabelValues(string(a.Name()), string(models.ResultTimeout)).Inc()
		return &models.AgentResult{
			Agent:      a.Name(),
			Status:     models.ResultTimeout,
			Reasoning:  "Agent timed out",
			Confidence: 0.0,
			DurationMS: c.agentTimeout.Milliseconds(),
		}
	default:
		logger.Error("Agent failed", "agent", a.Name(), "error", err)
		metrics.AgentRuns.WithLabelValues(string(a.Name()), string(models.ResultError)).Inc()
		return errorResult(a.Name(), err.Error())
	}
}

func errorResult(name models.AgentName, reason string) *models.AgentResult {
	return &models.AgentResult{
		Agent:     name,
		Status:    models.ResultError,
		Reasoning: reason,
	}
}

// backfillTokens pushes per-agent token usage onto the mirrored node
// rows. Best-effort: the run never waits on or fails from it.
func (c *Coordinator) backfillTokens(ctx context.Context, logger *slog.Logger, results []*models.AgentResult) {
	for _, r := range results {
		if r == nil || len(r.NodeIDs) == 0 || (r.TokensUsed == 0 && r.InputTokensUsed == 0) {
			continue
		}
		go func() {
			err := c.gateway.BackfillNodeTokens(context.WithoutCancel(ctx),
				r.NodeIDs, r.TokensUsed, r.InputTokensUsed, string(r.Agent))
			if err != nil {
				logger.Warn("Token backfill failed", "agent", r.Agent, "error", err)
			}
		}()
	}
}

// RerunResult reports the outcome of a correction-driven partial rerun.
type RerunResult struct {
	Status          string             `json:"status"`
	Agents          []models.AgentName `json:"agents"`
	ExperimentID    string             `json:"experiment_id,omitempty"`
	TotalTokens     int                `json:"total_tokens"`
	TotalDurationMS int64              `json:"total_duration_ms"`
}

// RerunWithCorrection re-runs the deep thinker and contrarian with a
// human correction folded into the query. Synthesis and meta-analysis
// are not repeated; the corrected reasoning lands in the same graph.
func (c *Coordinator) RerunWithCorrection(ctx context.Context, sessionID, nodeID, correction, experimentID string) (*RerunResult, error) {
	logger := c.logger.With("session_id", sessionID, "node_id", nodeID, "experiment_id", experimentID)

	ctx, span := tracer.Start(ctx, "swarm.RerunWithCorrection")
	span.SetAttributes(attribute.String("session_id", sessionID))
	defer span.End()

	logger.Info("Rerun starting", "correction_preview", correction)

	rerunAgents := []models.AgentName{models.AgentDeepThinker, models.AgentContrarian}
	c.bus.Publish(sessionID,
		events.NewSwarmRerunStarted(sessionID, rerunAgents, correction, experimentID))

	correctedQuery := "Previous analysis was checkpointed with human correction: '" +
		correction + "'. Please re-analyze taking this feedback into account."
	rerunQuery := correctedQuery
	if preamble := c.rehydrationContext(ctx, correctedQuery, sessionID); preamble != "" {
		rerunQuery = augmentQuery(correctedQuery, preamble)
	}

	agents := make([]agent.Agent, 0, len(rerunAgents))
	for _, name := range rerunAgents {
		a, err := c.newAgent(name, c.agentDeps(sessionID))
		if err != nil {
			finishSpan(span, err)
			return nil, err
		}
		agents = append(agents, a)
	}

	results := c.runStaggered(ctx, logger, agents, rerunQuery)
	c.backfillTokens(ctx, logger, results)

	totalTokens := 0
	var totalDuration int64
	for _, r := range results {
		totalTokens += r.TokensUsed
		totalDuration += r.DurationMS
		if r.Status == models.ResultError {
			logger.Error("Rerun agent failed", "agent", r.Agent, "error", r.Reasoning)
		}
	}

	logger.Info("Rerun complete",
		"total_tokens", totalTokens, "total_duration_ms", totalDuration)

	finishSpan(span, nil)
	return &RerunResult{
		Status:          "rerun_complete",
		Agents:          rerunAgents,
		ExperimentID:    experimentID,
		TotalTokens:     totalTokens,
		TotalDurationMS: totalDuration,
	}, nil
}
