package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opus-nx/swarm/pkg/models"
)

func drainOne(t *testing.T, sub *Subscription) map[string]any {
	t.Helper()
	select {
	case data, ok := <-sub.Events():
		require.True(t, ok, "subscription closed unexpectedly")
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	case <-time.After(time.Second):
		t.Fatal("no event received within 1s")
		return nil
	}
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(0)
	sub1 := bus.Subscribe("session-1")
	sub2 := bus.Subscribe("session-1")

	bus.Publish("session-1", NewSwarmStarted("session-1",
		[]models.AgentName{models.AgentMaestro, models.AgentDeepThinker}, "why is the sky blue"))

	for _, sub := range []*Subscription{sub1, sub2} {
		evt := drainOne(t, sub)
		assert.Equal(t, "swarm_started", evt["event"])
		assert.Equal(t, "session-1", evt["session_id"])
		assert.NotEmpty(t, evt["timestamp"])
		assert.Equal(t, "why is the sky blue", evt["query"])
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewBus(0)

	// Must not panic, block or accumulate anything.
	bus.Publish("ghost-session", NewPing("ghost-session"))

	assert.Equal(t, int64(0), bus.Drops("ghost-session"))
	assert.Equal(t, 0, bus.SubscriberCount("ghost-session"))
}

func TestSessionIsolation(t *testing.T) {
	bus := NewBus(0)
	subA := bus.Subscribe("session-a")
	subB := bus.Subscribe("session-b")

	bus.Publish("session-a", NewPing("session-a"))

	evt := drainOne(t, subA)
	assert.Equal(t, "ping", evt["event"])

	select {
	case data := <-subB.Events():
		t.Fatalf("session-b received foreign event: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFullQueueDropsNewestAndCounts(t *testing.T) {
	bus := NewBus(2)
	sub := bus.Subscribe("session-1")

	bus.Publish("session-1", NewAgentThinking("session-1", models.AgentDeepThinker, "a"))
	bus.Publish("session-1", NewAgentThinking("session-1", models.AgentDeepThinker, "b"))
	bus.Publish("session-1", NewAgentThinking("session-1", models.AgentDeepThinker, "c"))
	bus.Publish("session-1", NewAgentThinking("session-1", models.AgentDeepThinker, "d"))

	assert.Equal(t, int64(2), bus.Drops("session-1"))

	// Queued events are the first two; later ones were dropped.
	first := drainOne(t, sub)
	second := drainOne(t, sub)
	assert.Equal(t, "a", first["delta"])
	assert.Equal(t, "b", second["delta"])
}

func TestUnsubscribeClosesQueue(t *testing.T) {
	bus := NewBus(0)
	sub := bus.Subscribe("session-1")
	bus.Unsubscribe(sub)

	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, bus.SubscriberCount("session-1"))

	// Idempotent.
	bus.Unsubscribe(sub)
}

func TestStaleSessions(t *testing.T) {
	bus := NewBus(0)
	bus.Subscribe("old-session")
	bus.Subscribe("fresh-session")

	// Backdate the old session's activity.
	bus.mu.Lock()
	bus.sessions["old-session"].lastActivity = time.Now().UTC().Add(-31 * time.Minute)
	bus.mu.Unlock()

	stale := bus.StaleSessions(30 * time.Minute)
	assert.Equal(t, []string{"old-session"}, stale)
}

func TestPublishRefreshesSessionActivity(t *testing.T) {
	bus := NewBus(1)
	bus.Subscribe("session-1")

	bus.mu.Lock()
	bus.sessions["session-1"].lastActivity = time.Now().UTC().Add(-31 * time.Minute)
	bus.mu.Unlock()
	require.Equal(t, []string{"session-1"}, bus.StaleSessions(30*time.Minute))

	bus.Publish("session-1", NewPing("session-1"))
	assert.Empty(t, bus.StaleSessions(30*time.Minute))
}

func TestCleanupSessionClosesAllQueues(t *testing.T) {
	bus := NewBus(1)
	sub1 := bus.Subscribe("session-1")
	sub2 := bus.Subscribe("session-1")

	// Force a drop so cleanup has something to report.
	bus.Publish("session-1", NewPing("session-1"))
	bus.Publish("session-1", NewPing("session-1"))
	require.Equal(t, int64(2), bus.Drops("session-1"))

	bus.CleanupSession("session-1")

	// Buffered events still drain, then the channels report closed.
	<-sub1.Events()
	_, ok := <-sub1.Events()
	assert.False(t, ok)
	<-sub2.Events()
	_, ok = <-sub2.Events()
	assert.False(t, ok)

	assert.Equal(t, int64(0), bus.Drops("session-1"))
	assert.Empty(t, bus.StaleSessions(0))
}

func TestPublishAfterCleanupIsNoop(t *testing.T) {
	bus := NewBus(0)
	bus.Subscribe("session-1")
	bus.CleanupSession("session-1")

	bus.Publish("session-1", NewPing("session-1"))
	assert.Equal(t, int64(0), bus.Drops("session-1"))
}

func TestEventWireFormat(t *testing.T) {
	evt := NewHumanCheckpoint("sess-1", "node-abc", models.VerdictVerified, nil)
	data, err := json.Marshal(evt)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "human_checkpoint", m["event"])
	assert.Equal(t, "node-abc", m["node_id"])
	assert.Equal(t, "verified", m["verdict"])
	assert.Nil(t, m["correction"])

	correction := "use caching instead"
	evt = NewHumanCheckpoint("sess-1", "node-abc", models.VerdictDisagree, &correction)
	data, err = json.Marshal(evt)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "use caching instead", m["correction"])
}

func TestRerunEventWireFormat(t *testing.T) {
	evt := NewSwarmRerunStarted("sess-1",
		[]models.AgentName{models.AgentDeepThinker, models.AgentContrarian},
		"Use event sourcing", "exp-9")
	data, err := json.Marshal(evt)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "swarm_rerun_started", m["event"])
	assert.Len(t, m["agents"], 2)
	assert.Equal(t, "Use event sourcing", m["correction_preview"])
	assert.Equal(t, "exp-9", m["experiment_id"])
}
