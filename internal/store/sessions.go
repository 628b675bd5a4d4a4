package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lazypower/lattice/internal/apperr"
)

// SessionRun tracks subconscious processing of one closed session.
type SessionRun struct {
	SubjectID  string `json:"subjectId"`
	SessionID  string `json:"sessionId"`
	Status     string `json:"status"` // processing, completed, failed
	OpsApplied int    `json:"opsApplied"`
	Error      string `json:"error,omitempty"`
	StartedAt  int64  `json:"startedAt"`
	FinishedAt *int64 `json:"finishedAt,omitempty"`
}

// BeginSessionRun claims a session for processing. It returns false when the
// session is already processing or completed; failed runs may be retried.
func (q *Queries) BeginSessionRun(ctx context.Context, subjectID, sessionID string) (bool, error) {
	if subjectID == "" || sessionID == "" {
		return false, apperr.Validation("begin session run", "subject id and session id required")
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO sessions (subject_id, session_id, status, started_at)
		VALUES (?, ?, 'processing', ?)
		ON CONFLICT(subject_id, session_id) DO UPDATE SET
			status = 'processing', started_at = excluded.started_at,
			error = NULL, finished_at = NULL, ops_applied = 0
		WHERE sessions.status = 'failed'
	`, subjectID, sessionID, time.Now().UnixMilli())
	if err != nil {
		return false, apperr.Storage("begin session run", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// FinishSessionRun records the outcome of a run. A non-nil runErr marks it failed.
func (q *Queries) FinishSessionRun(ctx context.Context, subjectID, sessionID string, opsApplied int, runErr error) error {
	status, msg := "completed", sql.NullString{}
	if runErr != nil {
		status = "failed"
		msg = nullString(runErr.Error())
	}
	_, err := q.q.ExecContext(ctx, `
		UPDATE sessions SET status = ?, ops_applied = ?, error = ?, finished_at = ?
		WHERE subject_id = ? AND session_id = ?
	`, status, opsApplied, msg, time.Now().UnixMilli(), subjectID, sessionID)
	if err != nil {
		return apperr.Storage("finish session run", err)
	}
	return nil
}

// GetSessionRun returns a run, or nil if the session was never closed.
func (q *Queries) GetSessionRun(ctx context.Context, subjectID, sessionID string) (*SessionRun, error) {
	var s SessionRun
	var msg sql.NullString
	var finished sql.NullInt64
	err := q.q.QueryRowContext(ctx, `
		SELECT subject_id, session_id, status, ops_applied, error, started_at, finished_at
		FROM sessions WHERE subject_id = ? AND session_id = ?
	`, subjectID, sessionID).Scan(&s.SubjectID, &s.SessionID, &s.Status, &s.OpsApplied, &msg, &s.StartedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("get session run", err)
	}
	s.Error = msg.String
	if finished.Valid {
		s.FinishedAt = &finished.Int64
	}
	return &s, nil
}
