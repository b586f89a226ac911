package persist

import (
	"context"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/opus-nx/swarm/pkg/models"
)

// Neo4jMirror replicates reasoning nodes and edges into a Neo4j graph
// for visual exploration. Writes are idempotent MERGEs; edges whose
// endpoints have not arrived yet match nothing and are retried on the
// next duplicate write, so the mirror tolerates out-of-order delivery.
type Neo4jMirror struct {
	driver neo4j.DriverWithContext
}

var _ GraphSink = (*Neo4jMirror)(nil)

func NewNeo4jMirror(ctx context.Context, uri, user, password string) (*Neo4jMirror, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, err
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return &Neo4jMirror{driver: driver}, nil
}

func (m *Neo4jMirror) SyncNode(ctx context.Context, node *models.ReasoningNode) error {
	return Do(ctx, "neo4j_sync_node", func(ctx context.Context) error {
		return m.write(ctx, `
			MERGE (n:ReasoningNode {id: $id})
			SET n.agent = $agent,
			    n.session_id = $session_id,
			    n.content = $content,
			    n.confidence = $confidence,
			    n.created_at = $created_at`,
			map[string]any{
				"id":         node.ID,
				"agent":      string(node.Agent),
				"session_id": node.SessionID,
				"content":    node.Content,
				"confidence": node.Confidence,
				"created_at": node.CreatedAt.UTC().Format(time.RFC3339),
			})
	})
}

func (m *Neo4jMirror) SyncEdge(ctx context.Context, edge *models.ReasoningEdge) error {
	return Do(ctx, "neo4j_sync_edge", func(ctx context.Context) error {
		return m.write(ctx, `
			MATCH (s:ReasoningNode {id: $source_id}), (t:ReasoningNode {id: $target_id})
			MERGE (s)-[r:RELATES_TO {relation: $relation}]->(t)
			SET r.weight = $weight`,
			map[string]any{
				"source_id": edge.SourceID,
				"target_id": edge.TargetID,
				"relation":  string(edge.Relation),
				"weight":    edge.Weight,
			})
	})
}

func (m *Neo4jMirror) write(ctx context.Context, cypher string, params map[string]any) error {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer func() {
		if err := session.Close(ctx); err != nil {
			slog.Debug("neo4j_session_close_failed", "error", err)
		}
	}()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return nil, result.Err()
	})
	return err
}

func (m *Neo4jMirror) Close(ctx context.Context) error {
	return m.driver.Close(ctx)
}
