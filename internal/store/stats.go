package store

import (
	"context"

	"github.com/lazypower/lattice/internal/apperr"
)

// GraphStats aggregates node metrics for a graph.
type GraphStats struct {
	AvgDepth           float64        `json:"avgDepth"`
	AvgGravity         float64        `json:"avgGravity"`
	NodesCreatedSince  int            `json:"nodesCreatedSince"`
	NodesAccessedSince int            `json:"nodesAccessedSince"`
	Modalities         map[string]int `json:"modalities"`
}

// GraphStats computes averages over all nodes and activity counts since the
// given unix-ms timestamp. Accesses count nodes touched after creation.
func (q *Queries) GraphStats(ctx context.Context, graphID, since int64) (*GraphStats, error) {
	s := &GraphStats{Modalities: make(map[string]int)}
	err := q.q.QueryRowContext(ctx, `
		SELECT
			COALESCE(AVG(depth), 0),
			COALESCE(AVG(gravity), 0),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN access_count > 0 AND last_accessed_at >= ? THEN 1 ELSE 0 END), 0)
		FROM nodes WHERE graph_id = ?
	`, since, since, graphID).Scan(&s.AvgDepth, &s.AvgGravity, &s.NodesCreatedSince, &s.NodesAccessedSince)
	if err != nil {
		return nil, apperr.Storage("graph stats", err)
	}

	rows, err := q.q.QueryContext(ctx,
		`SELECT node_type, COUNT(*) FROM nodes WHERE graph_id = ? GROUP BY node_type`, graphID)
	if err != nil {
		return nil, apperr.Storage("graph modalities", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, apperr.Storage("scan modality", err)
		}
		s.Modalities[t] = n
	}
	return s, apperr.Storage("graph modalities", rows.Err())
}
