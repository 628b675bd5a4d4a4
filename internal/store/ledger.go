package store

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/lattice/internal/apperr"
)

// EntryTypes is the closed set of ledger entry types.
var EntryTypes = []string{
	"observation", "inference", "commitment", "question",
	"decision", "pattern", "surfaced",
}

// LedgerEntry is an append-only narrative record. There is no update or
// delete path; the schema rejects both with triggers.
type LedgerEntry struct {
	ID            int64   `json:"-"`
	EntryID       string  `json:"entryId"`
	SubjectID     string  `json:"subjectId"`
	EntryType     string  `json:"entryType"`
	Content       string  `json:"content"`
	Confidence    float64 `json:"confidence"`
	RelatedNodeID *int64  `json:"relatedNodeId,omitempty"`
	Actor         string  `json:"actor"`
	CreatedAt     int64   `json:"createdAt"`
}

// AppendLedger inserts an entry. A nil confidence defaults to 1.0.
func (q *Queries) AppendLedger(ctx context.Context, subjectID, entryType, content string, confidence *float64, relatedNodeID *int64, actor string) (*LedgerEntry, error) {
	content = strings.TrimSpace(content)
	switch {
	case subjectID == "":
		return nil, apperr.Validation("append ledger", "subject id required")
	case content == "":
		return nil, apperr.Validation("append ledger", "content required")
	case !slices.Contains(EntryTypes, entryType):
		return nil, apperr.Validation("append ledger", "unknown entry type %q", entryType)
	}
	c := 1.0
	if confidence != nil {
		c = *confidence
	}
	if c < 0 || c > 1 {
		return nil, apperr.Validation("append ledger", "confidence must be within [0, 1]")
	}
	if actor == "" {
		actor = "unknown"
	}

	e := &LedgerEntry{
		EntryID:       uuid.NewString(),
		SubjectID:     subjectID,
		EntryType:     entryType,
		Content:       content,
		Confidence:    c,
		RelatedNodeID: relatedNodeID,
		Actor:         actor,
		CreatedAt:     time.Now().UnixMilli(),
	}
	result, err := q.q.ExecContext(ctx, `
		INSERT INTO ledger (entry_id, subject_id, entry_type, content, confidence, related_node_id, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.EntryID, e.SubjectID, e.EntryType, e.Content, e.Confidence, e.RelatedNodeID, e.Actor, e.CreatedAt)
	if err != nil {
		return nil, apperr.Storage("append ledger", err)
	}
	e.ID, _ = result.LastInsertId()
	return e, nil
}

// ListRecentLedger returns a subject's entries, newest first.
func (q *Queries) ListRecentLedger(ctx context.Context, subjectID string, limit int) ([]LedgerEntry, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, entry_id, subject_id, entry_type, content, confidence, related_node_id, actor, created_at
		FROM ledger WHERE subject_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, subjectID, limit)
	if err != nil {
		return nil, apperr.Storage("list ledger", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var related sql.NullInt64
		if err := rows.Scan(&e.ID, &e.EntryID, &e.SubjectID, &e.EntryType, &e.Content,
			&e.Confidence, &related, &e.Actor, &e.CreatedAt); err != nil {
			return nil, apperr.Storage("scan ledger", err)
		}
		if related.Valid {
			e.RelatedNodeID = &related.Int64
		}
		entries = append(entries, e)
	}
	return entries, apperr.Storage("list ledger", rows.Err())
}

// CountLedgerSince counts a subject's entries created at or after since (unix ms).
func (q *Queries) CountLedgerSince(ctx context.Context, subjectID string, since int64) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger WHERE subject_id = ? AND created_at >= ?`, subjectID, since).Scan(&n)
	if err != nil {
		return 0, apperr.Storage("count ledger", err)
	}
	return n, nil
}
