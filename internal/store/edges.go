package store

import (
	"context"
	"database/sql"
	"slices"
	"time"

	"github.com/lazypower/lattice/internal/apperr"
)

// RelationTypes is the closed set of edge relation types.
var RelationTypes = []string{
	"references", "develops", "contradicts", "branches", "causes",
	"supports", "temporal", "semantic", "precedes",
}

// DefaultEdgeWeight applies when a relation is created without a weight.
const DefaultEdgeWeight = 1.0

// Edge is a directed, typed relation between two nodes of one graph.
type Edge struct {
	ID           int64   `json:"id"`
	GraphID      int64   `json:"graphId"`
	SourceID     int64   `json:"sourceId"`
	TargetID     int64   `json:"targetId"`
	RelationType string  `json:"relationType"`
	Weight       float64 `json:"weight"`
	Context      string  `json:"context,omitempty"`
	CreatedAt    int64   `json:"createdAt"`
}

const edgeColumns = `id, graph_id, source_id, target_id, relation_type, weight, context, created_at`

// CreateEdge links source to target. Both nodes must exist and share a graph.
// A nil weight defaults to 1.0.
func (q *Queries) CreateEdge(ctx context.Context, sourceID, targetID int64, relationType string, weight *float64, edgeContext string) (*Edge, error) {
	if !slices.Contains(RelationTypes, relationType) {
		return nil, apperr.Validation("create edge", "unknown relation type %q", relationType)
	}
	if sourceID == targetID {
		return nil, apperr.Validation("create edge", "self-referential edge on node %d", sourceID)
	}
	w := DefaultEdgeWeight
	if weight != nil {
		w = *weight
	}
	if w < 0 || w > 1 {
		return nil, apperr.Validation("create edge", "weight must be within [0, 1]")
	}

	var srcGraph, dstGraph int64
	if err := q.q.QueryRowContext(ctx, `SELECT graph_id FROM nodes WHERE id = ?`, sourceID).Scan(&srcGraph); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("create edge", "source node %d", sourceID)
		}
		return nil, apperr.Storage("create edge", err)
	}
	if err := q.q.QueryRowContext(ctx, `SELECT graph_id FROM nodes WHERE id = ?`, targetID).Scan(&dstGraph); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("create edge", "target node %d", targetID)
		}
		return nil, apperr.Storage("create edge", err)
	}
	if srcGraph != dstGraph {
		return nil, apperr.Conflict("create edge", "cross-graph edge rejected")
	}

	exists, err := q.EdgeExists(ctx, sourceID, targetID, relationType)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Conflict("create edge", "edge %d -[%s]-> %d already exists", sourceID, relationType, targetID)
	}

	e := &Edge{
		GraphID:      srcGraph,
		SourceID:     sourceID,
		TargetID:     targetID,
		RelationType: relationType,
		Weight:       w,
		Context:      edgeContext,
		CreatedAt:    time.Now().UnixMilli(),
	}
	result, err := q.q.ExecContext(ctx, `
		INSERT INTO edges (graph_id, source_id, target_id, relation_type, weight, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.GraphID, e.SourceID, e.TargetID, e.RelationType, e.Weight, nullString(e.Context), e.CreatedAt)
	if err != nil {
		return nil, apperr.Storage("insert edge", err)
	}
	e.ID, _ = result.LastInsertId()

	if err := q.adjustGraph(ctx, e.GraphID, 0, 1, 0); err != nil {
		return nil, err
	}
	return e, nil
}

// EdgeExists reports whether the exact (source, target, type) edge is present.
func (q *Queries) EdgeExists(ctx context.Context, sourceID, targetID int64, relationType string) (bool, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM edges WHERE source_id = ? AND target_id = ? AND relation_type = ?
	`, sourceID, targetID, relationType).Scan(&n)
	if err != nil {
		return false, apperr.Storage("edge exists", err)
	}
	return n > 0, nil
}

// ListEdgesForNode returns edges where the node is either endpoint.
func (q *Queries) ListEdgesForNode(ctx context.Context, nodeID int64) ([]Edge, error) {
	return q.queryEdges(ctx, "list edges for node",
		`SELECT `+edgeColumns+` FROM edges WHERE source_id = ? OR target_id = ? ORDER BY id`,
		nodeID, nodeID)
}

// ListOutgoingEdges returns edges whose source is one of nodeIDs.
func (q *Queries) ListOutgoingEdges(ctx context.Context, nodeIDs []int64) ([]Edge, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(nodeIDs))
	for i, id := range nodeIDs {
		args[i] = id
	}
	return q.queryEdges(ctx, "list outgoing edges",
		`SELECT `+edgeColumns+` FROM edges WHERE source_id IN (`+inPlaceholders(len(nodeIDs))+`)
		 ORDER BY weight DESC, id`, args...)
}

// ListEdgesForGraph returns every edge in a graph.
func (q *Queries) ListEdgesForGraph(ctx context.Context, graphID int64) ([]Edge, error) {
	return q.queryEdges(ctx, "list edges for graph",
		`SELECT `+edgeColumns+` FROM edges WHERE graph_id = ? ORDER BY id`, graphID)
}

func (q *Queries) queryEdges(ctx context.Context, op, query string, args ...any) ([]Edge, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		var edgeContext sql.NullString
		if err := rows.Scan(&e.ID, &e.GraphID, &e.SourceID, &e.TargetID, &e.RelationType,
			&e.Weight, &edgeContext, &e.CreatedAt); err != nil {
			return nil, apperr.Storage(op, err)
		}
		e.Context = edgeContext.String
		edges = append(edges, e)
	}
	return edges, apperr.Storage(op, rows.Err())
}
