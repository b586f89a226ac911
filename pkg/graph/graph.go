// Package graph holds the shared in-memory reasoning graph.
//
// The graph is the substrate agents collaborate through: when the deep
// thinker writes a node, the contrarian can immediately read it; when
// the contrarian adds a CHALLENGES edge, listeners see it at once and
// feed the event bus. One mutex serializes all access, so readers see
// every prior write (nodes are immutable after insertion).
package graph

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/opus-nx/swarm/pkg/models"
)

// ChangeType tags graph change notifications.
type ChangeType string

const (
	// ChangeNodeAdded fires after a node insert
	ChangeNodeAdded ChangeType = "node_added"
	// ChangeEdgeAdded fires after an edge insert
	ChangeEdgeAdded ChangeType = "edge_added"
)

// Listener receives graph change notifications. Listeners run
// synchronously inside the graph lock: they must be fast and must not
// call back into the graph. Panics are recovered and logged.
type Listener func(change ChangeType, data any)

// CycleError reports an edge rejected because it would close a cycle.
type CycleError struct {
	SourceID string
	TargetID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("edge %s -> %s would close a reasoning cycle", e.SourceID, e.TargetID)
}

// IncomingRef pairs an incoming edge with its source node. SourceNode
// is nil when the edge was added before its source node existed.
type IncomingRef struct {
	SourceNode *models.ReasoningNode `json:"source_node"`
	Edge       *models.ReasoningEdge `json:"edge"`
}

// Export is the full graph dump served to API clients.
type Export struct {
	Nodes []*models.ReasoningNode `json:"nodes"`
	Edges []*models.ReasoningEdge `json:"edges"`
}

// Graph is the concurrent reasoning DAG.
type Graph struct {
	mu        sync.Mutex
	nodes     map[string]*models.ReasoningNode
	order     []string // node insertion order, for deterministic export
	edges     []*models.ReasoningEdge
	outgoing  map[string][]*models.ReasoningEdge
	incoming  map[string][]*models.ReasoningEdge
	listeners []Listener
}

// New creates an empty reasoning graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*models.ReasoningNode),
		outgoing: make(map[string][]*models.ReasoningEdge),
		incoming: make(map[string][]*models.ReasoningEdge),
	}
}

// OnChange registers a listener for graph changes (feeds the event bus
// and the persistence mirror).
func (g *Graph) OnChange(l Listener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, l)
}

// AddNode inserts a node and notifies listeners. Re-adding an existing
// id replaces the stored node without duplicating it in the ordering.
func (g *Graph) AddNode(node *models.ReasoningNode) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[node.ID]; !exists {
		g.order = append(g.order, node.ID)
	}
	g.nodes[node.ID] = node
	g.notify(ChangeNodeAdded, node)
	return node.ID
}

// AddEdge inserts a directed edge. When both endpoints exist and the
// target already reaches the source, the edge would close a cycle and
// is rejected with *CycleError, leaving the graph unchanged. Edges
// referencing nodes that are not present yet are accepted, since agents
// may link ahead of a node arriving.
//
// Re-adding an edge with the same (source, target, relation) replaces
// its weight and metadata instead of duplicating it.
func (g *Graph) AddEdge(edge *models.ReasoningEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, srcExists := g.nodes[edge.SourceID]
	_, tgtExists := g.nodes[edge.TargetID]
	if srcExists && tgtExists && g.reaches(edge.TargetID, edge.SourceID) {
		return &CycleError{SourceID: edge.SourceID, TargetID: edge.TargetID}
	}

	if existing := g.findEdge(edge.SourceID, edge.TargetID, edge.Relation); existing != nil {
		existing.Weight = edge.Weight
		existing.Metadata = edge.Metadata
		g.notify(ChangeEdgeAdded, existing)
		return nil
	}

	g.edges = append(g.edges, edge)
	g.outgoing[edge.SourceID] = append(g.outgoing[edge.SourceID], edge)
	g.incoming[edge.TargetID] = append(g.incoming[edge.TargetID], edge)
	g.notify(ChangeEdgeAdded, edge)
	return nil
}

// GetNode returns a node by id.
func (g *Graph) GetNode(nodeID string) (*models.ReasoningNode, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[nodeID]
	return node, ok
}

// GetNodesByAgent returns every node written by an agent, in insertion
// order.
func (g *Graph) GetNodesByAgent(agent models.AgentName) []*models.ReasoningNode {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []*models.ReasoningNode
	for _, id := range g.order {
		if node := g.nodes[id]; node.Agent == agent {
			out = append(out, node)
		}
	}
	return out
}

// GetSessionNodes returns every node for a session ordered by creation
// time (insertion order breaks ties).
func (g *Graph) GetSessionNodes(sessionID string) []*models.ReasoningNode {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []*models.ReasoningNode
	for _, id := range g.order {
		if node := g.nodes[id]; node.SessionID == sessionID {
			out = append(out, node)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// GetChallengesFor returns the CHALLENGES edges targeting a node,
// paired with their source nodes.
func (g *Graph) GetChallengesFor(nodeID string) []IncomingRef {
	return g.incomingByRelation(nodeID, models.RelationChallenges)
}

// GetVerificationsFor returns the VERIFIES edges targeting a node,
// paired with their source nodes.
func (g *Graph) GetVerificationsFor(nodeID string) []IncomingRef {
	return g.incomingByRelation(nodeID, models.RelationVerifies)
}

func (g *Graph) incomingByRelation(nodeID string, relation models.EdgeRelation) []IncomingRef {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []IncomingRef
	for _, edge := range g.incoming[nodeID] {
		if edge.Relation != relation {
			continue
		}
		out = append(out, IncomingRef{SourceNode: g.nodes[edge.SourceID], Edge: edge})
	}
	return out
}

// ToJSON exports the whole graph for API responses and dashboards.
func (g *Graph) ToJSON() *Export {
	g.mu.Lock()
	defer g.mu.Unlock()

	export := &Export{
		Nodes: make([]*models.ReasoningNode, 0, len(g.order)),
		Edges: make([]*models.ReasoningEdge, 0, len(g.edges)),
	}
	for _, id := range g.order {
		export.Nodes = append(export.Nodes, g.nodes[id])
	}
	export.Edges = append(export.Edges, g.edges...)
	return export
}

// CleanupSession removes a session's nodes and every edge touching
// them. Returns the number of nodes removed.
func (g *Graph) CleanupSession(sessionID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := make(map[string]bool)
	for id, node := range g.nodes {
		if node.SessionID == sessionID {
			removed[id] = true
		}
	}
	if len(removed) == 0 {
		return 0
	}

	for id := range removed {
		delete(g.nodes, id)
		delete(g.outgoing, id)
		delete(g.incoming, id)
	}

	keptOrder := g.order[:0]
	for _, id := range g.order {
		if !removed[id] {
			keptOrder = append(keptOrder, id)
		}
	}
	g.order = keptOrder

	keptEdges := g.edges[:0]
	for _, edge := range g.edges {
		if removed[edge.SourceID] || removed[edge.TargetID] {
			g.detachEdge(edge)
			continue
		}
		keptEdges = append(keptEdges, edge)
	}
	g.edges = keptEdges

	return len(removed)
}

// reaches reports whether "to" is reachable from "from" along directed
// edges. Callers hold g.mu.
func (g *Graph) reaches(from, to string) bool {
	if from == to {
		return true
	}
	visited := map[string]bool{from: true}
	frontier := []string{from}
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		for _, edge := range g.outgoing[current] {
			next := edge.TargetID
			if next == to {
				return true
			}
			if !visited[next] {
				visited[next] = true
				frontier = append(frontier, next)
			}
		}
	}
	return false
}

func (g *Graph) findEdge(sourceID, targetID string, relation models.EdgeRelation) *models.ReasoningEdge {
	for _, edge := range g.outgoing[sourceID] {
		if edge.TargetID == targetID && edge.Relation == relation {
			return edge
		}
	}
	return nil
}

// detachEdge removes an edge from the adjacency indexes of endpoints
// that still exist. Callers hold g.mu.
func (g *Graph) detachEdge(edge *models.ReasoningEdge) {
	if out, ok := g.outgoing[edge.SourceID]; ok {
		g.outgoing[edge.SourceID] = removeEdge(out, edge)
	}
	if in, ok := g.incoming[edge.TargetID]; ok {
		g.incoming[edge.TargetID] = removeEdge(in, edge)
	}
}

func removeEdge(edges []*models.ReasoningEdge, target *models.ReasoningEdge) []*models.ReasoningEdge {
	for i, e := range edges {
		if e == target {
			return append(edges[:i], edges[i+1:]...)
		}
	}
	return edges
}

// notify runs listeners inside the lock. A listener panic must not
// poison the graph.
func (g *Graph) notify(change ChangeType, data any) {
	for _, l := range g.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Warn("Graph listener panicked", "change", string(change), "panic", r)
				}
			}()
			l(change, data)
		}()
	}
}
