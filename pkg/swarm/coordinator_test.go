package swarm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opus-nx/swarm/pkg/agent"
	"github.com/opus-nx/swarm/pkg/events"
	"github.com/opus-nx/swarm/pkg/graph"
	"github.com/opus-nx/swarm/pkg/models"
	"github.com/opus-nx/swarm/pkg/persist"
)

// stubAgent is a scripted agent for pipeline tests.
type stubAgent struct {
	name       models.AgentName
	effort     models.EffortLevel
	conclusion string
	err        error
	delay      time.Duration
	insights   []string

	gotQuery string
	runs     int
}

func (s *stubAgent) Name() models.AgentName { return s.name }

func (s *stubAgent) SetEffort(effort models.EffortLevel) { s.effort = effort }

func (s *stubAgent) Run(ctx context.Context, query string) (*models.AgentResult, error) {
	s.runs++
	s.gotQuery = query
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &models.AgentResult{
		Agent:      s.name,
		Status:     models.ResultCompleted,
		Conclusion: s.conclusion,
		Confidence: 0.8,
		TokensUsed: 10,
	}, nil
}

func (s *stubAgent) Insights() []string { return s.insights }

func stubCoordinator(t *testing.T, stubs map[models.AgentName]*stubAgent) *Coordinator {
	t.Helper()
	return &Coordinator{
		graph:        graph.New(),
		bus:          events.NewBus(16),
		gateway:      persist.NopGateway{},
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		agentTimeout: 200 * time.Millisecond,
		stagger:      0,
		newAgent: func(name models.AgentName, _ agent.Deps) (agent.Agent, error) {
			s, ok := stubs[name]
			if !ok {
				return nil, errors.New("no stub for " + string(name))
			}
			return s, nil
		},
	}
}

func planConclusion(t *testing.T, plan models.SwarmPlan) string {
	t.Helper()
	data, err := json.Marshal(plan)
	require.NoError(t, err)
	return string(data)
}

func TestRunFollowsMaestroPlan(t *testing.T) {
	stubs := map[models.AgentName]*stubAgent{
		models.AgentMaestro: {name: models.AgentMaestro},
		models.AgentDeepThinker: {name: models.AgentDeepThinker, conclusion: "deep"},
		models.AgentVerifier: {name: models.AgentVerifier, conclusion: "check"},
		models.AgentContrarian: {name: models.AgentContrarian},
		models.AgentSynthesizer: {name: models.AgentSynthesizer, conclusion: "merged"},
		models.AgentMetacognition: {name: models.AgentMetacognition, conclusion: "meta",
			insights: []string{"[pattern] shallow debate"}},
	}
	stubs[models.AgentMaestro].conclusion = planConclusion(t, models.SwarmPlan{
		Agents: []models.PlannedAgent{
			{Name: models.AgentDeepThinker, Effort: models.EffortMax},
			{Name: models.AgentVerifier},
		},
	})
	c := stubCoordinator(t, stubs)

	result, err := c.Run(context.Background(), "Should we migrate?", "sess-1")
	require.NoError(t, err)

	// Plan excludes the contrarian entirely.
	assert.Equal(t, 0, stubs[models.AgentContrarian].runs)
	assert.Equal(t, 1, stubs[models.AgentDeepThinker].runs)
	assert.Equal(t, 1, stubs[models.AgentVerifier].runs)

	// Plan effort wins; unassigned verifier gets the classifier fallback.
	assert.Equal(t, models.EffortMax, stubs[models.AgentDeepThinker].effort)
	assert.Equal(t, models.EffortHigh, stubs[models.AgentVerifier].effort)

	// Maestro + 2 primaries + synthesizer + metacognition.
	assert.Len(t, result.Agents, 4)
	require.NotNil(t, result.Synthesis)
	assert.Equal(t, "merged", result.Synthesis.Conclusion)
	assert.Equal(t, []string{"[pattern] shallow debate"}, result.MetacognitionInsights)
	assert.Equal(t, 40, result.TotalTokens)
}

func TestRunFallsBackWhenMaestroFails(t *testing.T) {
	stubs := map[models.AgentName]*stubAgent{
		models.AgentMaestro:       {name: models.AgentMaestro, err: errors.New("boom")},
		models.AgentDeepThinker:   {name: models.AgentDeepThinker},
		models.AgentContrarian:    {name: models.AgentContrarian},
		models.AgentVerifier:      {name: models.AgentVerifier},
		models.AgentSynthesizer:   {name: models.AgentSynthesizer},
		models.AgentMetacognition: {name: models.AgentMetacognition},
	}
	c := stubCoordinator(t, stubs)

	result, err := c.Run(context.Background(), "diagnose the memory leak", "sess-1")
	require.NoError(t, err)

	for _, name := range models.PrimaryAgents() {
		assert.Equal(t, 1, stubs[name].runs, "agent %s", name)
	}
	// Complex query: deep_thinker defaults to max anyway, siblings to
	// the classified effort.
	assert.Equal(t, models.EffortMax, stubs[models.AgentDeepThinker].effort)
	assert.Equal(t, models.EffortMax, stubs[models.AgentContrarian].effort)
	assert.Len(t, result.Agents, 5)
}

func TestRunFallsBackOnUnparseablePlan(t *testing.T) {
	stubs := map[models.AgentName]*stubAgent{
		models.AgentMaestro:       {name: models.AgentMaestro, conclusion: "not json"},
		models.AgentDeepThinker:   {name: models.AgentDeepThinker},
		models.AgentContrarian:    {name: models.AgentContrarian},
		models.AgentVerifier:      {name: models.AgentVerifier},
		models.AgentSynthesizer:   {name: models.AgentSynthesizer},
		models.AgentMetacognition: {name: models.AgentMetacognition},
	}
	c := stubCoordinator(t, stubs)

	_, err := c.Run(context.Background(), "hello", "sess-1")
	require.NoError(t, err)
	for _, name := range models.PrimaryAgents() {
		assert.Equal(t, 1, stubs[name].runs)
	}
	// Simple greeting classifies to medium effort for non-analysts.
	assert.Equal(t, models.EffortMedium, stubs[models.AgentVerifier].effort)
}

func TestRunTimeoutYieldsPartialResult(t *testing.T) {
	stubs := map[models.AgentName]*stubAgent{
		models.AgentMaestro:       {name: models.AgentMaestro, err: errors.New("skip planning")},
		models.AgentDeepThinker:   {name: models.AgentDeepThinker, delay: time.Second},
		models.AgentContrarian:    {name: models.AgentContrarian},
		models.AgentVerifier:      {name: models.AgentVerifier},
		models.AgentSynthesizer:   {name: models.AgentSynthesizer},
		models.AgentMetacognition: {name: models.AgentMetacognition},
	}
	c := stubCoordinator(t, stubs)

	result, err := c.Run(context.Background(), "Should we migrate?", "sess-1")
	require.NoError(t, err)

	byAgent := map[models.AgentName]*models.AgentResult{}
	for _, r := range result.Agents {
		byAgent[r.Agent] = r
	}
	require.Contains(t, byAgent, models.AgentDeepThinker)
	assert.Equal(t, models.ResultTimeout, byAgent[models.AgentDeepThinker].Status)
	assert.Equal(t, "Agent timed out", byAgent[models.AgentDeepThinker].Reasoning)
	assert.Equal(t, int64(200), byAgent[models.AgentDeepThinker].DurationMS)

	// Siblings and later phases are unaffected.
	assert.Equal(t, models.ResultCompleted, byAgent[models.AgentContrarian].Status)
	assert.Equal(t, models.ResultCompleted, byAgent[models.AgentSynthesizer].Status)
}

func TestRunAgentErrorYieldsErrorResult(t *testing.T) {
	stubs := map[models.AgentName]*stubAgent{
		models.AgentMaestro:       {name: models.AgentMaestro, err: errors.New("skip planning")},
		models.AgentDeepThinker:   {name: models.AgentDeepThinker, err: errors.New("llm unavailable")},
		models.AgentContrarian:    {name: models.AgentContrarian},
		models.AgentVerifier:      {name: models.AgentVerifier},
		models.AgentSynthesizer:   {name: models.AgentSynthesizer},
		models.AgentMetacognition: {name: models.AgentMetacognition},
	}
	c := stubCoordinator(t, stubs)

	result, err := c.Run(context.Background(), "Should we migrate?", "sess-1")
	require.NoError(t, err)

	var errored *models.AgentResult
	for _, r := range result.Agents {
		if r.Agent == models.AgentDeepThinker {
			errored = r
		}
	}
	require.NotNil(t, errored)
	assert.Equal(t, models.ResultError, errored.Status)
	assert.Equal(t, "llm unavailable", errored.Reasoning)
}

func TestRunPublishesSwarmStarted(t *testing.T) {
	stubs := map[models.AgentName]*stubAgent{
		models.AgentMaestro:       {name: models.AgentMaestro, err: errors.New("skip planning")},
		models.AgentDeepThinker:   {name: models.AgentDeepThinker},
		models.AgentContrarian:    {name: models.AgentContrarian},
		models.AgentVerifier:      {name: models.AgentVerifier},
		models.AgentSynthesizer:   {name: models.AgentSynthesizer},
		models.AgentMetacognition: {name: models.AgentMetacognition},
	}
	c := stubCoordinator(t, stubs)
	sub := c.bus.Subscribe("sess-1")
	defer c.bus.Unsubscribe(sub)

	_, err := c.Run(context.Background(), "Should we migrate?", "sess-1")
	require.NoError(t, err)

	var started *events.SwarmStarted
drain:
	for {
		select {
		case raw := <-sub.Events():
			var env events.Envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			if env.Event == events.EventTypeSwarmStarted {
				started = &events.SwarmStarted{}
				require.NoError(t, json.Unmarshal(raw, started))
			}
		default:
			break drain
		}
	}
	require.NotNil(t, started)
	assert.Equal(t, models.AgentMaestro, started.Agents[0])
	assert.Len(t, started.Agents, 4)
	assert.Equal(t, "Should we migrate?", started.Query)
}

func TestRerunWithCorrectionRunsAnalystsOnly(t *testing.T) {
	stubs := map[models.AgentName]*stubAgent{
		models.AgentDeepThinker: {name: models.AgentDeepThinker},
		models.AgentContrarian:  {name: models.AgentContrarian},
	}
	c := stubCoordinator(t, stubs)

	result, err := c.RerunWithCorrection(context.Background(),
		"sess-1", "node-1", "the latency numbers were stale", "exp-1")
	require.NoError(t, err)

	assert.Equal(t, "rerun_complete", result.Status)
	assert.Equal(t, []models.AgentName{models.AgentDeepThinker, models.AgentContrarian}, result.Agents)
	assert.Equal(t, "exp-1", result.ExperimentID)
	assert.Equal(t, 20, result.TotalTokens)

	assert.Equal(t, 1, stubs[models.AgentDeepThinker].runs)
	assert.Equal(t, 1, stubs[models.AgentContrarian].runs)
	assert.Contains(t, stubs[models.AgentDeepThinker].gotQuery,
		"Previous analysis was checkpointed with human correction: 'the latency numbers were stale'.")
	assert.Contains(t, stubs[models.AgentDeepThinker].gotQuery,
		"Please re-analyze taking this feedback into account.")
}

func TestRunWithTimeoutMapsDeadline(t *testing.T) {
	c := stubCoordinator(t, nil)
	slow := &stubAgent{name: models.AgentVerifier, delay: time.Second}

	result := c.runWithTimeout(context.Background(), c.logger, slow, "q")
	assert.Equal(t, models.ResultTimeout, result.Status)
	assert.Equal(t, "Agent timed out", result.Reasoning)
	assert.Equal(t, c.agentTimeout.Milliseconds(), result.DurationMS)
}
