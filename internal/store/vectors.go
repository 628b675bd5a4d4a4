package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/lazypower/lattice/internal/apperr"
)

// VectorRecord holds the content embedding of a node.
type VectorRecord struct {
	NodeID     int64
	Embedding  []float64
	Model      string
	Dimensions int
	CreatedAt  int64
}

// encodeEmbedding converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeEmbedding converts a binary BLOB back to []float64.
func decodeEmbedding(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// SaveVector stores or replaces the embedding for a node.
func (q *Queries) SaveVector(ctx context.Context, nodeID int64, embedding []float64, model string) error {
	now := time.Now().UnixMilli()
	blob := encodeEmbedding(embedding)

	_, err := q.q.ExecContext(ctx, `
		INSERT INTO node_vectors (node_id, embedding, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			embedding = excluded.embedding, model = excluded.model,
			dimensions = excluded.dimensions, created_at = excluded.created_at
	`, nodeID, blob, model, len(embedding), now)
	if err != nil {
		return apperr.Storage("save vector", err)
	}
	return nil
}

// GetVector returns the embedding for a node, or nil if none is stored.
func (q *Queries) GetVector(ctx context.Context, nodeID int64) (*VectorRecord, error) {
	var v VectorRecord
	var blob []byte

	err := q.q.QueryRowContext(ctx, `
		SELECT node_id, embedding, model, dimensions, created_at
		FROM node_vectors WHERE node_id = ?
	`, nodeID).Scan(&v.NodeID, &blob, &v.Model, &v.Dimensions, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("get vector", err)
	}
	v.Embedding = decodeEmbedding(blob)
	return &v, nil
}

// VectorsForGraph returns stored embeddings keyed by node id.
func (q *Queries) VectorsForGraph(ctx context.Context, graphID int64) (map[int64]VectorRecord, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT v.node_id, v.embedding, v.model, v.dimensions, v.created_at
		FROM node_vectors v JOIN nodes n ON n.id = v.node_id
		WHERE n.graph_id = ?
	`, graphID)
	if err != nil {
		return nil, apperr.Storage("vectors for graph", err)
	}
	defer rows.Close()

	records := make(map[int64]VectorRecord)
	for rows.Next() {
		var v VectorRecord
		var blob []byte
		if err := rows.Scan(&v.NodeID, &blob, &v.Model, &v.Dimensions, &v.CreatedAt); err != nil {
			return nil, apperr.Storage("scan vector", err)
		}
		v.Embedding = decodeEmbedding(blob)
		records[v.NodeID] = v
	}
	return records, apperr.Storage("vectors for graph", rows.Err())
}
