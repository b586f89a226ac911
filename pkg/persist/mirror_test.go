package persist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opus-nx/swarm/pkg/graph"
	"github.com/opus-nx/swarm/pkg/models"
)

type recordingSink struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingSink) SyncNode(_ context.Context, node *models.ReasoningNode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "node:"+node.ID)
	return nil
}

func (r *recordingSink) SyncEdge(_ context.Context, edge *models.ReasoningEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "edge:"+edge.SourceID+"->"+edge.TargetID)
	return nil
}

func (r *recordingSink) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestGraphMirror_ReplaysChangesInOrder(t *testing.T) {
	sink := &recordingSink{}
	mirror := NewGraphMirror(sink)

	g := graph.New()
	g.OnChange(mirror.Listener())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mirror.Run(ctx)

	node := models.NewReasoningNode(models.AgentDeepThinker, "session-1", "a thought", "analysis")
	other := models.NewReasoningNode(models.AgentContrarian, "session-1", "a challenge", "challenge")
	g.AddNode(node)
	g.AddNode(other)
	require.NoError(t, g.AddEdge(models.NewReasoningEdge(other.ID, node.ID, models.RelationChallenges)))

	assert.Eventually(t, func() bool {
		return len(sink.snapshot()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	calls := sink.snapshot()
	assert.Equal(t, "node:"+node.ID, calls[0])
	assert.Equal(t, "node:"+other.ID, calls[1])
	assert.Equal(t, "edge:"+other.ID+"->"+node.ID, calls[2])
	assert.Zero(t, mirror.Dropped())
}

func TestGraphMirror_DropsWhenQueueFull(t *testing.T) {
	// No worker draining the queue: overflow must drop, not block.
	mirror := NewGraphMirror(&recordingSink{})
	listener := mirror.Listener()

	node := models.NewReasoningNode(models.AgentDeepThinker, "session-1", "x", "analysis")
	for i := 0; i < mirrorQueueSize+5; i++ {
		listener(graph.ChangeNodeAdded, node)
	}
	assert.EqualValues(t, 5, mirror.Dropped())
}

func TestGraphMirror_IgnoresUnknownPayloads(t *testing.T) {
	mirror := NewGraphMirror(&recordingSink{})
	listener := mirror.Listener()

	listener(graph.ChangeNodeAdded, "not a node")
	assert.Zero(t, mirror.Dropped())
	assert.Empty(t, mirror.queue)
}
