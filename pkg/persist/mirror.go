package persist

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/opus-nx/swarm/pkg/graph"
	"github.com/opus-nx/swarm/pkg/models"
)

// GraphSink receives replicated graph mutations. The Store and the
// Neo4j mirror both implement it.
type GraphSink interface {
	SyncNode(ctx context.Context, node *models.ReasoningNode) error
	SyncEdge(ctx context.Context, edge *models.ReasoningEdge) error
}

const (
	mirrorQueueSize   = 1024
	mirrorSyncTimeout = 15 * time.Second
)

// GraphMirror decouples graph listeners from persistence I/O. Graph
// listeners run inside the graph lock and must return immediately, so
// the mirror enqueues each change and a single worker replays them to
// every sink in arrival order. A full queue drops the change rather
// than stall reasoning; external stores are best-effort mirrors.
type GraphMirror struct {
	sinks   []GraphSink
	queue   chan mirrorItem
	dropped atomic.Int64
	warnLim *rate.Limiter
}

type mirrorItem struct {
	change graph.ChangeType
	node   *models.ReasoningNode
	edge   models.ReasoningEdge
}

func NewGraphMirror(sinks ...GraphSink) *GraphMirror {
	return &GraphMirror{
		sinks:   sinks,
		queue:   make(chan mirrorItem, mirrorQueueSize),
		warnLim: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

// Listener adapts the mirror to the graph's change notification hook.
// Edge values are copied because the graph mutates duplicate edges in
// place.
func (m *GraphMirror) Listener() graph.Listener {
	return func(change graph.ChangeType, data any) {
		item := mirrorItem{change: change}
		switch v := data.(type) {
		case *models.ReasoningNode:
			item.node = v
		case *models.ReasoningEdge:
			item.edge = *v
		default:
			return
		}
		select {
		case m.queue <- item:
		default:
			n := m.dropped.Add(1)
			if m.warnLim.Allow() {
				slog.Warn("graph_mirror_queue_full", "dropped_total", n)
			}
		}
	}
}

// Run replays queued changes until ctx is cancelled. Sink failures are
// logged and skipped; one slow store must not block the other.
func (m *GraphMirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-m.queue:
			m.replay(ctx, item)
		}
	}
}

// Dropped returns how many changes were discarded on a full queue.
func (m *GraphMirror) Dropped() int64 {
	return m.dropped.Load()
}

func (m *GraphMirror) replay(ctx context.Context, item mirrorItem) {
	syncCtx, cancel := context.WithTimeout(ctx, mirrorSyncTimeout)
	defer cancel()

	for _, sink := range m.sinks {
		var err error
		switch item.change {
		case graph.ChangeNodeAdded:
			err = sink.SyncNode(syncCtx, item.node)
		case graph.ChangeEdgeAdded:
			edge := item.edge
			err = sink.SyncEdge(syncCtx, &edge)
		}
		if err != nil {
			slog.Warn("graph_mirror_sync_failed",
				"change", string(item.change), "error", err)
		}
	}
}
