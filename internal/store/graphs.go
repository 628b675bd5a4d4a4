package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lazypower/lattice/internal/apperr"
)

// Graph is the per-subject container for nodes and edges.
type Graph struct {
	ID             int64  `json:"id"`
	SubjectID      string `json:"subjectId"`
	NodeCount      int    `json:"nodeCount"`
	EdgeCount      int    `json:"edgeCount"`
	Version        int64  `json:"version"`
	OldestMemoryAt *int64 `json:"oldestMemoryAt,omitempty"`
	NewestMemoryAt *int64 `json:"newestMemoryAt,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
	UpdatedAt      int64  `json:"updatedAt"`
}

const graphColumns = `id, subject_id, node_count, edge_count, version,
	oldest_memory_at, newest_memory_at, created_at, updated_at`

func scanGraph(row interface{ Scan(...any) error }) (*Graph, error) {
	var g Graph
	var oldest, newest sql.NullInt64
	if err := row.Scan(&g.ID, &g.SubjectID, &g.NodeCount, &g.EdgeCount, &g.Version,
		&oldest, &newest, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	if oldest.Valid {
		g.OldestMemoryAt = &oldest.Int64
	}
	if newest.Valid {
		g.NewestMemoryAt = &newest.Int64
	}
	return &g, nil
}

// GetOrCreateGraph returns the subject's graph, creating it on first use.
func (q *Queries) GetOrCreateGraph(ctx context.Context, subjectID string) (*Graph, error) {
	if subjectID == "" {
		return nil, apperr.Validation("get or create graph", "subject id required")
	}
	now := time.Now().UnixMilli()
	if _, err := q.q.ExecContext(ctx, `
		INSERT INTO graphs (subject_id, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(subject_id) DO NOTHING
	`, subjectID, now, now); err != nil {
		return nil, apperr.Storage("create graph", err)
	}
	return q.GetGraphBySubject(ctx, subjectID)
}

// GetGraphBySubject fails with a not-found error when the subject has never written.
func (q *Queries) GetGraphBySubject(ctx context.Context, subjectID string) (*Graph, error) {
	g, err := scanGraph(q.q.QueryRowContext(ctx,
		`SELECT `+graphColumns+` FROM graphs WHERE subject_id = ?`, subjectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("get graph", "no graph for subject %q", subjectID)
	}
	if err != nil {
		return nil, apperr.Storage("get graph", err)
	}
	return g, nil
}

// GetGraph returns a graph by id.
func (q *Queries) GetGraph(ctx context.Context, id int64) (*Graph, error) {
	g, err := scanGraph(q.q.QueryRowContext(ctx,
		`SELECT `+graphColumns+` FROM graphs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("get graph", "graph %d", id)
	}
	if err != nil {
		return nil, apperr.Storage("get graph", err)
	}
	return g, nil
}

// BumpGraphVersion records a mutation that did not change counts.
func (q *Queries) BumpGraphVersion(ctx context.Context, graphID int64) error {
	return q.adjustGraph(ctx, graphID, 0, 0, 0)
}

// adjustGraph applies count deltas (floored at zero), bumps the version and,
// when memoryAt is set, advances the newest-memory timestamp and fills the
// oldest-memory timestamp if this is the graph's first memory.
func (q *Queries) adjustGraph(ctx context.Context, graphID int64, nodeDelta, edgeDelta int, memoryAt int64) error {
	now := time.Now().UnixMilli()
	res, err := q.q.ExecContext(ctx, `
		UPDATE graphs SET
			node_count       = MAX(0, node_count + ?),
			edge_count       = MAX(0, edge_count + ?),
			version          = version + 1,
			updated_at       = ?,
			newest_memory_at = CASE WHEN ? > 0 THEN ? ELSE newest_memory_at END,
			oldest_memory_at = CASE WHEN ? > 0 AND oldest_memory_at IS NULL THEN ? ELSE oldest_memory_at END
		WHERE id = ?
	`, nodeDelta, edgeDelta, now, memoryAt, memoryAt, memoryAt, memoryAt, graphID)
	if err != nil {
		return apperr.Storage("update graph", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("update graph", "graph %d", graphID)
	}
	return nil
}

func inPlaceholders(n int) string {
	if n == 0 {
		return "NULL"
	}
	b := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
