package graph

import (
	"log/slog"
	"time"

	"github.com/opus-nx/swarm/pkg/models"
)

// SessionSnapshot is a session-scoped export suitable for persistence
// and later rehydration. Timestamps serialize as RFC3339.
type SessionSnapshot struct {
	SessionID  string                  `json:"session_id"`
	Nodes      []*models.ReasoningNode `json:"nodes"`
	Edges      []*models.ReasoningEdge `json:"edges"`
	ExportedAt time.Time               `json:"exported_at"`
}

// Snapshot exports a session's nodes plus every edge touching them.
func (g *Graph) Snapshot(sessionID string) *SessionSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := &SessionSnapshot{
		SessionID:  sessionID,
		Nodes:      []*models.ReasoningNode{},
		Edges:      []*models.ReasoningEdge{},
		ExportedAt: time.Now().UTC(),
	}

	inSession := make(map[string]bool)
	for _, id := range g.order {
		if node := g.nodes[id]; node.SessionID == sessionID {
			snap.Nodes = append(snap.Nodes, node)
			inSession[id] = true
		}
	}
	for _, edge := range g.edges {
		if inSession[edge.SourceID] || inSession[edge.TargetID] {
			snap.Edges = append(snap.Edges, edge)
		}
	}
	return snap
}

// LoadSnapshot imports a snapshot into the graph. Nodes are inserted
// first, then edges are re-validated one by one: an edge that would
// close a cycle against the current graph state is skipped with a
// warning rather than failing the whole load. Listeners are not
// notified; a load restores state, it is not new reasoning activity.
func (g *Graph) LoadSnapshot(snap *SessionSnapshot) (nodesLoaded, edgesLoaded int) {
	if snap == nil {
		return 0, 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, node := range snap.Nodes {
		if _, exists := g.nodes[node.ID]; !exists {
			g.order = append(g.order, node.ID)
		}
		g.nodes[node.ID] = node
		nodesLoaded++
	}

	for _, edge := range snap.Edges {
		_, srcExists := g.nodes[edge.SourceID]
		_, tgtExists := g.nodes[edge.TargetID]
		if srcExists && tgtExists && g.reaches(edge.TargetID, edge.SourceID) {
			slog.Warn("Skipping snapshot edge that would close a cycle",
				"session_id", snap.SessionID,
				"source_id", edge.SourceID, "target_id", edge.TargetID)
			continue
		}
		if existing := g.findEdge(edge.SourceID, edge.TargetID, edge.Relation); existing != nil {
			existing.Weight = edge.Weight
			existing.Metadata = edge.Metadata
			edgesLoaded++
			continue
		}
		g.edges = append(g.edges, edge)
		g.outgoing[edge.SourceID] = append(g.outgoing[edge.SourceID], edge)
		g.incoming[edge.TargetID] = append(g.incoming[edge.TargetID], edge)
		edgesLoaded++
	}
	return nodesLoaded, edgesLoaded
}
