package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/lazypower/lattice/internal/apperr"
)

// NodeTypes is the closed set of node modalities.
var NodeTypes = []string{
	"episodic", "semantic", "procedural", "emotional", "sensory",
	"conversation", "concept", "insight", "decision", "pattern",
	"question", "contradiction", "fact",
}

// Node is a discrete memory. Content is immutable once written.
type Node struct {
	ID             int64    `json:"id"`
	GraphID        int64    `json:"graphId"`
	Content        string   `json:"content"`
	ContentHash    string   `json:"contentHash"`
	NodeType       string   `json:"nodeType"`
	Gravity        float64  `json:"gravity"`
	Salience       float64  `json:"salience"`
	Depth          float64  `json:"depth"`
	Confidence     float64  `json:"confidence"`
	Strength       float64  `json:"strength"`
	SourceType     string   `json:"sourceType,omitempty"`
	SourceID       string   `json:"sourceId,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	AccessCount    int      `json:"accessCount"`
	CreatedAt      int64    `json:"createdAt"`
	LastAccessedAt int64    `json:"lastAccessedAt"`
}

// NewNode carries the inputs to CreateNode. Nil pointers take defaults:
// gravity = salience, confidence = 1, strength = 1.
type NewNode struct {
	GraphID    int64
	Content    string
	NodeType   string
	Salience   float64
	Gravity    *float64
	Depth      float64
	Confidence *float64
	Strength   *float64
	SourceType string
	SourceID   string
	Tags       []string
}

// NodeFilter narrows ListNodes. Zero values mean no filter.
type NodeFilter struct {
	Types      []string
	Tags       []string
	MinGravity float64
	Limit      int
}

// NodePatch updates mutable metadata. Content is never patchable.
type NodePatch struct {
	Salience   *float64
	Confidence *float64
	Strength   *float64
	SourceType *string
	SourceID   *string
}

// ContentHash returns the sha256 hex digest used for duplicate detection.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}

const nodeColumns = `id, graph_id, content, content_hash, node_type, gravity, salience,
	depth, confidence, strength, source_type, source_id, access_count, created_at, last_accessed_at`

func scanNode(row interface{ Scan(...any) error }) (*Node, error) {
	var n Node
	var sourceType, sourceID sql.NullString
	if err := row.Scan(&n.ID, &n.GraphID, &n.Content, &n.ContentHash, &n.NodeType,
		&n.Gravity, &n.Salience, &n.Depth, &n.Confidence, &n.Strength,
		&sourceType, &sourceID, &n.AccessCount, &n.CreatedAt, &n.LastAccessedAt); err != nil {
		return nil, err
	}
	n.SourceType = sourceType.String
	n.SourceID = sourceID.String
	return &n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateNode inserts a node with its tags and updates the owning graph's
// counters and memory timestamps.
func (q *Queries) CreateNode(ctx context.Context, in NewNode) (*Node, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, apperr.Validation("create node", "content required")
	}
	if !slices.Contains(NodeTypes, in.NodeType) {
		return nil, apperr.Validation("create node", "unknown node type %q", in.NodeType)
	}
	if in.Salience < 0 || in.Depth < 0 {
		return nil, apperr.Validation("create node", "salience and depth must be non-negative")
	}

	now := time.Now().UnixMilli()
	n := &Node{
		GraphID:        in.GraphID,
		Content:        content,
		ContentHash:    ContentHash(content),
		NodeType:       in.NodeType,
		Salience:       in.Salience,
		Gravity:        in.Salience,
		Depth:          in.Depth,
		Confidence:     1,
		Strength:       1,
		SourceType:     in.SourceType,
		SourceID:       in.SourceID,
		Tags:           normalizeTags(in.Tags),
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if in.Gravity != nil {
		n.Gravity = min(*in.Gravity, n.Salience)
	}
	if in.Confidence != nil {
		n.Confidence = *in.Confidence
	}
	if in.Strength != nil {
		n.Strength = *in.Strength
	}
	if n.Gravity < 0 {
		return nil, apperr.Validation("create node", "gravity must be non-negative")
	}
	if n.Confidence < 0 || n.Confidence > 1 {
		return nil, apperr.Validation("create node", "confidence must be within [0, 1]")
	}

	result, err := q.q.ExecContext(ctx, `
		INSERT INTO nodes (graph_id, content, content_hash, node_type, gravity, salience,
			depth, confidence, strength, source_type, source_id, created_at, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.GraphID, n.Content, n.ContentHash, n.NodeType, n.Gravity, n.Salience,
		n.Depth, n.Confidence, n.Strength, nullString(n.SourceType), nullString(n.SourceID),
		n.CreatedAt, n.LastAccessedAt)
	if err != nil {
		return nil, apperr.Storage("insert node", err)
	}
	n.ID, _ = result.LastInsertId()

	for _, tag := range n.Tags {
		if _, err := q.q.ExecContext(ctx,
			`INSERT OR IGNORE INTO node_tags (node_id, tag) VALUES (?, ?)`, n.ID, tag); err != nil {
			return nil, apperr.Storage("insert node tag", err)
		}
	}

	if err := q.adjustGraph(ctx, n.GraphID, 1, 0, now); err != nil {
		return nil, err
	}
	return n, nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// GetNode returns a node with its tags.
func (q *Queries) GetNode(ctx context.Context, id int64) (*Node, error) {
	n, err := scanNode(q.q.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("get node", "node %d", id)
	}
	if err != nil {
		return nil, apperr.Storage("get node", err)
	}
	if err := q.attachTags(ctx, []*Node{n}); err != nil {
		return nil, err
	}
	return n, nil
}

// FindNodeByHash returns the node in graphID with the given content hash, or nil.
func (q *Queries) FindNodeByHash(ctx context.Context, graphID int64, hash string) (*Node, error) {
	n, err := scanNode(q.q.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE graph_id = ? AND content_hash = ? ORDER BY id LIMIT 1`,
		graphID, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("find node by hash", err)
	}
	if err := q.attachTags(ctx, []*Node{n}); err != nil {
		return nil, err
	}
	return n, nil
}

// ListNodes returns nodes in a graph ordered by gravity descending.
// Tag filtering matches nodes carrying any of the given tags.
func (q *Queries) ListNodes(ctx context.Context, graphID int64, f NodeFilter) ([]Node, error) {
	var b strings.Builder
	args := []any{graphID}
	b.WriteString(`SELECT ` + nodeColumns + ` FROM nodes WHERE graph_id = ?`)

	if len(f.Types) > 0 {
		b.WriteString(` AND node_type IN (` + inPlaceholders(len(f.Types)) + `)`)
		for _, t := range f.Types {
			args = append(args, t)
		}
	}
	if tags := normalizeTags(f.Tags); len(tags) > 0 {
		b.WriteString(` AND EXISTS (SELECT 1 FROM node_tags t WHERE t.node_id = nodes.id AND t.tag IN (` +
			inPlaceholders(len(tags)) + `))`)
		for _, t := range tags {
			args = append(args, t)
		}
	}
	if f.MinGravity > 0 {
		b.WriteString(` AND gravity >= ?`)
		args = append(args, f.MinGravity)
	}
	b.WriteString(` ORDER BY gravity DESC, id ASC`)
	if f.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}

	return q.queryNodes(ctx, "list nodes", b.String(), args...)
}

// ListRecentNodes returns the most recently created nodes in a graph.
func (q *Queries) ListRecentNodes(ctx context.Context, graphID int64, limit int) ([]Node, error) {
	return q.queryNodes(ctx, "list recent nodes",
		`SELECT `+nodeColumns+` FROM nodes WHERE graph_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		graphID, limit)
}

// GetNodesByIDs returns the nodes with the given ids in id order.
func (q *Queries) GetNodesByIDs(ctx context.Context, ids []int64) ([]Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return q.queryNodes(ctx, "get nodes by ids",
		`SELECT `+nodeColumns+` FROM nodes WHERE id IN (`+inPlaceholders(len(ids))+`) ORDER BY id`,
		args...)
}

func (q *Queries) queryNodes(ctx context.Context, op, query string, args ...any) ([]Node, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	var nodes []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			rows.Close()
			return nil, apperr.Storage(op, fmt.Errorf("scan node: %w", err))
		}
		nodes = append(nodes, *n)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, apperr.Storage(op, err)
	}

	ptrs := make([]*Node, len(nodes))
	for i := range nodes {
		ptrs[i] = &nodes[i]
	}
	if err := q.attachTags(ctx, ptrs); err != nil {
		return nil, err
	}
	return nodes, nil
}

// attachTags loads tags for nodes. Rows from the node query must already be closed.
func (q *Queries) attachTags(ctx context.Context, nodes []*Node) error {
	if len(nodes) == 0 {
		return nil
	}
	byID := make(map[int64]*Node, len(nodes))
	args := make([]any, 0, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
		args = append(args, n.ID)
	}
	rows, err := q.q.QueryContext(ctx,
		`SELECT node_id, tag FROM node_tags WHERE node_id IN (`+inPlaceholders(len(args))+`) ORDER BY node_id, tag`,
		args...)
	if err != nil {
		return apperr.Storage("load tags", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return apperr.Storage("scan tag", err)
		}
		if n := byID[id]; n != nil {
			n.Tags = append(n.Tags, tag)
		}
	}
	return apperr.Storage("load tags", rows.Err())
}

// NodeIDsByTags returns ids of nodes in graphID carrying any of the tags.
func (q *Queries) NodeIDsByTags(ctx context.Context, graphID int64, tags []string) ([]int64, error) {
	tags = normalizeTags(tags)
	if len(tags) == 0 {
		return nil, nil
	}
	args := []any{graphID}
	for _, t := range tags {
		args = append(args, t)
	}
	rows, err := q.q.QueryContext(ctx, `
		SELECT DISTINCT n.id FROM nodes n
		JOIN node_tags t ON t.node_id = n.id
		WHERE n.graph_id = ? AND t.tag IN (`+inPlaceholders(len(tags))+`)
		ORDER BY n.id`, args...)
	if err != nil {
		return nil, apperr.Storage("node ids by tags", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Storage("scan node id", err)
		}
		ids = append(ids, id)
	}
	return ids, apperr.Storage("node ids by tags", rows.Err())
}

// TouchAccess marks a node as surfaced and applies the access boost:
// gravity = min(salience, gravity * boost).
func (q *Queries) TouchAccess(ctx context.Context, id int64, boost float64) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE nodes SET
			gravity          = MIN(salience, gravity * ?),
			last_accessed_at = ?,
			access_count     = access_count + 1
		WHERE id = ?
	`, boost, time.Now().UnixMilli(), id)
	if err != nil {
		return apperr.Storage("touch node", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("touch node", "node %d", id)
	}
	return nil
}

// AddGravity raises gravity by amount for the given nodes of graphID, clamped
// to each node's salience. It returns the number of nodes updated.
func (q *Queries) AddGravity(ctx context.Context, graphID int64, ids []int64, amount float64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := []any{amount, graphID}
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := q.q.ExecContext(ctx, `
		UPDATE nodes SET gravity = MIN(salience, gravity + ?)
		WHERE graph_id = ? AND id IN (`+inPlaceholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, apperr.Storage("add gravity", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		if err := q.BumpGraphVersion(ctx, graphID); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// AddDepth pushes a node away from the core by amount. Depth never decreases here.
func (q *Queries) AddDepth(ctx context.Context, id int64, amount float64) error {
	if amount < 0 {
		return apperr.Validation("add depth", "amount must be non-negative")
	}
	res, err := q.q.ExecContext(ctx, `UPDATE nodes SET depth = depth + ? WHERE id = ?`, amount, id)
	if err != nil {
		return apperr.Storage("add depth", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("add depth", "node %d", id)
	}
	var graphID int64
	if err := q.q.QueryRowContext(ctx, `SELECT graph_id FROM nodes WHERE id = ?`, id).Scan(&graphID); err != nil {
		return apperr.Storage("add depth", err)
	}
	return q.BumpGraphVersion(ctx, graphID)
}

// UpdateNodeFields applies a patch. Lowering salience pulls gravity down with it.
func (q *Queries) UpdateNodeFields(ctx context.Context, id int64, p NodePatch) (*Node, error) {
	var sets []string
	var args []any
	if p.Salience != nil {
		if *p.Salience < 0 {
			return nil, apperr.Validation("update node", "salience must be non-negative")
		}
		sets = append(sets, "salience = ?", "gravity = MIN(gravity, ?)")
		args = append(args, *p.Salience, *p.Salience)
	}
	if p.Confidence != nil {
		if *p.Confidence < 0 || *p.Confidence > 1 {
			return nil, apperr.Validation("update node", "confidence must be within [0, 1]")
		}
		sets = append(sets, "confidence = ?")
		args = append(args, *p.Confidence)
	}
	if p.Strength != nil {
		sets = append(sets, "strength = ?")
		args = append(args, *p.Strength)
	}
	if p.SourceType != nil {
		sets = append(sets, "source_type = ?")
		args = append(args, nullString(*p.SourceType))
	}
	if p.SourceID != nil {
		sets = append(sets, "source_id = ?")
		args = append(args, nullString(*p.SourceID))
	}
	if len(sets) == 0 {
		return q.GetNode(ctx, id)
	}

	args = append(args, id)
	res, err := q.q.ExecContext(ctx,
		`UPDATE nodes SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, apperr.Storage("update node", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.NotFound("update node", "node %d", id)
	}
	n, err := q.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	return n, q.BumpGraphVersion(ctx, n.GraphID)
}

// DeleteNode removes a node, its edges, tags and vector, decrements the graph
// counters and records an audit row holding only the hash and modality.
// Run it inside a transaction.
func (q *Queries) DeleteNode(ctx context.Context, id int64, actor, reason string) (*Node, error) {
	n, err := q.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := q.q.ExecContext(ctx, `DELETE FROM edges WHERE source_id = ? OR target_id = ?`, id, id)
	if err != nil {
		return nil, apperr.Storage("delete node edges", err)
	}
	edges, _ := res.RowsAffected()

	for _, stmt := range []string{
		`DELETE FROM node_tags WHERE node_id = ?`,
		`DELETE FROM node_vectors WHERE node_id = ?`,
		`DELETE FROM nodes WHERE id = ?`,
	} {
		if _, err := q.q.ExecContext(ctx, stmt, id); err != nil {
			return nil, apperr.Storage("delete node", err)
		}
	}

	if err := q.adjustGraph(ctx, n.GraphID, -1, -int(edges), 0); err != nil {
		return nil, err
	}

	if _, err := q.q.ExecContext(ctx, `
		INSERT INTO node_audit (graph_id, node_id, content_hash, node_type, actor, reason, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, n.GraphID, n.ID, n.ContentHash, n.NodeType, actor, nullString(reason), time.Now().UnixMilli()); err != nil {
		return nil, apperr.Storage("audit node delete", err)
	}
	return n, nil
}

// AuditEntry is a forensic record of a deleted node.
type AuditEntry struct {
	NodeID      int64  `json:"nodeId"`
	ContentHash string `json:"contentHash"`
	NodeType    string `json:"nodeType"`
	Actor       string `json:"actor"`
	Reason      string `json:"reason,omitempty"`
	DeletedAt   int64  `json:"deletedAt"`
}

// ListAudit returns deletion records for a graph, newest first.
func (q *Queries) ListAudit(ctx context.Context, graphID int64, limit int) ([]AuditEntry, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT node_id, content_hash, node_type, actor, reason, deleted_at
		FROM node_audit WHERE graph_id = ? ORDER BY deleted_at DESC, id DESC LIMIT ?
	`, graphID, limit)
	if err != nil {
		return nil, apperr.Storage("list audit", err)
	}
	defer rows.Close()
	var out []AuditEntry
	for rows.Next() {
		var a AuditEntry
		var reason sql.NullString
		if err := rows.Scan(&a.NodeID, &a.ContentHash, &a.NodeType, &a.Actor, &reason, &a.DeletedAt); err != nil {
			return nil, apperr.Storage("scan audit", err)
		}
		a.Reason = reason.String
		out = append(out, a)
	}
	return out, apperr.Storage("list audit", rows.Err())
}
