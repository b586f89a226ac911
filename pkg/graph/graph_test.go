package graph

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opus-nx/swarm/pkg/models"
)

func newNode(t *testing.T, agent models.AgentName, sessionID, content string) *models.ReasoningNode {
	t.Helper()
	return models.NewReasoningNode(agent, sessionID, content, "analysis")
}

func TestAddNodeAndGet(t *testing.T) {
	g := New()
	node := newNode(t, models.AgentDeepThinker, "sess-1", "first insight")

	id := g.AddNode(node)
	require.Equal(t, node.ID, id)

	got, ok := g.GetNode(id)
	require.True(t, ok)
	assert.Equal(t, "first insight", got.Content)

	_, ok = g.GetNode("missing")
	assert.False(t, ok)
}

func TestAddNodeNotifiesListeners(t *testing.T) {
	g := New()
	var changes []ChangeType
	g.OnChange(func(change ChangeType, data any) {
		changes = append(changes, change)
	})

	node := newNode(t, models.AgentDeepThinker, "sess-1", "content")
	g.AddNode(node)
	require.NoError(t, g.AddEdge(models.NewReasoningEdge(node.ID, "future-node", models.RelationLeadsTo)))

	assert.Equal(t, []ChangeType{ChangeNodeAdded, ChangeEdgeAdded}, changes)
}

func TestListenerPanicDoesNotPoisonGraph(t *testing.T) {
	g := New()
	g.OnChange(func(change ChangeType, data any) {
		panic("listener bug")
	})

	node := newNode(t, models.AgentDeepThinker, "sess-1", "content")
	assert.NotPanics(t, func() { g.AddNode(node) })

	_, ok := g.GetNode(node.ID)
	assert.True(t, ok)
}

func TestCycleRejection(t *testing.T) {
	g := New()
	a := newNode(t, models.AgentDeepThinker, "sess-1", "a")
	b := newNode(t, models.AgentDeepThinker, "sess-1", "b")
	g.AddNode(a)
	g.AddNode(b)

	require.NoError(t, g.AddEdge(models.NewReasoningEdge(a.ID, b.ID, models.RelationLeadsTo)))

	err := g.AddEdge(models.NewReasoningEdge(b.ID, a.ID, models.RelationLeadsTo))
	require.Error(t, err)

	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, b.ID, cycleErr.SourceID)
	assert.Equal(t, a.ID, cycleErr.TargetID)

	// The graph still holds exactly the first edge.
	export := g.ToJSON()
	require.Len(t, export.Edges, 1)
	assert.Equal(t, a.ID, export.Edges[0].SourceID)
}

func TestLongerCycleRejected(t *testing.T) {
	g := New()
	nodes := make([]*models.ReasoningNode, 4)
	for i := range nodes {
		nodes[i] = newNode(t, models.AgentDeepThinker, "sess-1", "step")
		g.AddNode(nodes[i])
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, g.AddEdge(models.NewReasoningEdge(nodes[i].ID, nodes[i+1].ID, models.RelationLeadsTo)))
	}

	err := g.AddEdge(models.NewReasoningEdge(nodes[3].ID, nodes[0].ID, models.RelationLeadsTo))
	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
}

func TestSelfLoopRejectedWhenNodeExists(t *testing.T) {
	g := New()
	a := newNode(t, models.AgentDeepThinker, "sess-1", "a")
	g.AddNode(a)

	err := g.AddEdge(models.NewReasoningEdge(a.ID, a.ID, models.RelationSupports))
	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
}

func TestDanglingEdgesAccepted(t *testing.T) {
	// Edges referencing absent nodes skip the cycle check entirely, so
	// even a would-be cycle succeeds on an empty graph.
	g := New()
	require.NoError(t, g.AddEdge(models.NewReasoningEdge("a", "b", models.RelationLeadsTo)))
	require.NoError(t, g.AddEdge(models.NewReasoningEdge("b", "a", models.RelationLeadsTo)))

	assert.Len(t, g.ToJSON().Edges, 2)
}

func TestDuplicateEdgeReplacesWeight(t *testing.T) {
	g := New()
	a := newNode(t, models.AgentDeepThinker, "sess-1", "a")
	b := newNode(t, models.AgentDeepThinker, "sess-1", "b")
	g.AddNode(a)
	g.AddNode(b)

	first := models.NewReasoningEdge(a.ID, b.ID, models.RelationChallenges)
	first.Weight = 0.4
	require.NoError(t, g.AddEdge(first))

	second := models.NewReasoningEdge(a.ID, b.ID, models.RelationChallenges)
	second.Weight = 1.0
	require.NoError(t, g.AddEdge(second))

	export := g.ToJSON()
	require.Len(t, export.Edges, 1)
	assert.Equal(t, 1.0, export.Edges[0].Weight)
}

func TestGetSessionNodesOrderedByCreation(t *testing.T) {
	g := New()
	base := time.Now().UTC()

	third := newNode(t, models.AgentVerifier, "sess-1", "third")
	third.CreatedAt = base.Add(2 * time.Second)
	first := newNode(t, models.AgentDeepThinker, "sess-1", "first")
	first.CreatedAt = base
	second := newNode(t, models.AgentContrarian, "sess-1", "second")
	second.CreatedAt = base.Add(time.Second)
	other := newNode(t, models.AgentDeepThinker, "sess-2", "foreign")

	g.AddNode(third)
	g.AddNode(first)
	g.AddNode(second)
	g.AddNode(other)

	nodes := g.GetSessionNodes("sess-1")
	require.Len(t, nodes, 3)
	assert.Equal(t, "first", nodes[0].Content)
	assert.Equal(t, "second", nodes[1].Content)
	assert.Equal(t, "third", nodes[2].Content)
}

func TestGetNodesByAgent(t *testing.T) {
	g := New()
	g.AddNode(newNode(t, models.AgentDeepThinker, "sess-1", "one"))
	g.AddNode(newNode(t, models.AgentContrarian, "sess-1", "two"))
	g.AddNode(newNode(t, models.AgentDeepThinker, "sess-1", "three"))

	nodes := g.GetNodesByAgent(models.AgentDeepThinker)
	require.Len(t, nodes, 2)
	assert.Equal(t, "one", nodes[0].Content)
	assert.Equal(t, "three", nodes[1].Content)
}

func TestChallengesAndVerificationsFor(t *testing.T) {
	g := New()
	target := newNode(t, models.AgentDeepThinker, "sess-1", "claim")
	challenge := newNode(t, models.AgentContrarian, "sess-1", "objection")
	verification := newNode(t, models.AgentVerifier, "sess-1", "check")
	g.AddNode(target)
	g.AddNode(challenge)
	g.AddNode(verification)

	challengeEdge := models.NewReasoningEdge(challenge.ID, target.ID, models.RelationChallenges)
	challengeEdge.Weight = 0.7
	require.NoError(t, g.AddEdge(challengeEdge))
	require.NoError(t, g.AddEdge(models.NewReasoningEdge(verification.ID, target.ID, models.RelationVerifies)))

	challenges := g.GetChallengesFor(target.ID)
	require.Len(t, challenges, 1)
	assert.Equal(t, challenge.ID, challenges[0].SourceNode.ID)
	assert.Equal(t, 0.7, challenges[0].Edge.Weight)

	verifications := g.GetVerificationsFor(target.ID)
	require.Len(t, verifications, 1)
	assert.Equal(t, verification.ID, verifications[0].SourceNode.ID)

	assert.Empty(t, g.GetChallengesFor("missing"))
}

func TestCleanupSessionRemovesNodesAndEdges(t *testing.T) {
	g := New()
	a := newNode(t, models.AgentDeepThinker, "sess-1", "a")
	b := newNode(t, models.AgentDeepThinker, "sess-1", "b")
	keep := newNode(t, models.AgentDeepThinker, "sess-2", "keep")
	g.AddNode(a)
	g.AddNode(b)
	g.AddNode(keep)
	require.NoError(t, g.AddEdge(models.NewReasoningEdge(a.ID, b.ID, models.RelationLeadsTo)))

	removed := g.CleanupSession("sess-1")
	assert.Equal(t, 2, removed)

	export := g.ToJSON()
	assert.Len(t, export.Nodes, 1)
	assert.Empty(t, export.Edges)
	assert.Empty(t, g.GetSessionNodes("sess-1"))

	assert.Equal(t, 0, g.CleanupSession("sess-1"))
}

func TestSnapshotRoundTrip(t *testing.T) {
	g := New()
	a := newNode(t, models.AgentDeepThinker, "sess-1", "a")
	b := newNode(t, models.AgentDeepThinker, "sess-1", "b")
	g.AddNode(a)
	g.AddNode(b)
	require.NoError(t, g.AddEdge(models.NewReasoningEdge(a.ID, b.ID, models.RelationLeadsTo)))

	snap := g.Snapshot("sess-1")
	require.Len(t, snap.Nodes, 2)
	require.Len(t, snap.Edges, 1)
	assert.False(t, snap.ExportedAt.IsZero())

	restored := New()
	nodesLoaded, edgesLoaded := restored.LoadSnapshot(snap)
	assert.Equal(t, 2, nodesLoaded)
	assert.Equal(t, 1, edgesLoaded)

	again := restored.Snapshot("sess-1")
	assert.Equal(t, snap.Nodes, again.Nodes)
	assert.Equal(t, snap.Edges, again.Edges)
}

func TestLoadSnapshotSkipsCycleEdges(t *testing.T) {
	g := New()
	a := newNode(t, models.AgentDeepThinker, "sess-1", "a")
	b := newNode(t, models.AgentDeepThinker, "sess-1", "b")
	g.AddNode(a)
	g.AddNode(b)
	require.NoError(t, g.AddEdge(models.NewReasoningEdge(a.ID, b.ID, models.RelationLeadsTo)))

	// A hand-built snapshot carrying a reverse edge that must be skipped.
	snap := &SessionSnapshot{
		SessionID: "sess-1",
		Nodes:     []*models.ReasoningNode{},
		Edges:     []*models.ReasoningEdge{models.NewReasoningEdge(b.ID, a.ID, models.RelationLeadsTo)},
	}
	_, edgesLoaded := g.LoadSnapshot(snap)
	assert.Equal(t, 0, edgesLoaded)
	assert.Len(t, g.ToJSON().Edges, 1)
}

func TestConcurrentWriters(t *testing.T) {
	g := New()
	done := make(chan string, 20)
	for i := 0; i < 20; i++ {
		go func() {
			node := models.NewReasoningNode(models.AgentDeepThinker, "sess-1", "parallel", "analysis")
			done <- g.AddNode(node)
		}()
	}
	ids := make(map[string]bool)
	for i := 0; i < 20; i++ {
		ids[<-done] = true
	}
	assert.Len(t, ids, 20)
	assert.Len(t, g.GetSessionNodes("sess-1"), 20)
}
