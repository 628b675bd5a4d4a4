package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/lazypower/lattice/internal/apperr"
	"github.com/lazypower/lattice/internal/protocol"
	"github.com/lazypower/lattice/internal/subconscious"
)

const maxBodyBytes = 1 << 20

// readBody returns the request body, or nil when it is empty.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Validation("read body", "read body failed: %v", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	return body, nil
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.dispatcher.Execute(r.Context(), subject, protocol.Call{
		Op:   chi.URLParam(r, "op"),
		Args: body,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	var req struct {
		Calls []protocol.Call `json:"calls"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, apperr.Validation("batch", "invalid json: %v", err))
		return
	}
	if len(req.Calls) == 0 {
		writeError(w, apperr.Validation("batch", "calls required"))
		return
	}

	results, err := s.dispatcher.ApplyBatch(r.Context(), subject, req.Calls)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	nodeID, err := strconv.ParseInt(chi.URLParam(r, "nodeID"), 10, 64)
	if err != nil || nodeID <= 0 {
		writeError(w, apperr.Validation("delete node", "invalid node id %q", chi.URLParam(r, "nodeID")))
		return
	}
	actor := r.URL.Query().Get("actor")
	if actor == "" {
		actor = "api"
	}

	node, err := s.engine.DeleteNode(r.Context(), subject, nodeID, actor, r.URL.Query().Get("reason"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": node})
}

// confineTranscript resolves path and requires it to be a .jsonl file
// under root, after symlinks on both sides are followed.
func confineTranscript(root, path string) (string, error) {
	const op = "close session"
	if root == "" {
		return "", apperr.Validation(op, "transcript paths are not accepted")
	}
	if filepath.Ext(path) != ".jsonl" {
		return "", apperr.Validation(op, "transcript must be a .jsonl file")
	}
	base, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", apperr.Validation(op, "transcript dir unavailable: %v", err)
	}
	base, err = filepath.Abs(base)
	if err != nil {
		return "", apperr.Validation(op, "transcript dir: %v", err)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", apperr.Validation(op, "read transcript: %v", err)
	}
	resolved, err = filepath.Abs(resolved)
	if err != nil {
		return "", apperr.Validation(op, "read transcript: %v", err)
	}
	rel, err := filepath.Rel(base, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperr.Validation(op, "transcript outside %s", base)
	}
	return resolved, nil
}

type closeSessionRequest struct {
	Text           string `json:"text"`
	TranscriptPath string `json:"transcriptPath"`
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	sessionID := chi.URLParam(r, "sessionID")

	if s.runner == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]errorBody{
			"error": {Kind: "unavailable", Message: "subconscious processing disabled"},
		})
		return
	}

	var req closeSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, apperr.Validation("close session", "invalid json: %v", err))
		return
	}

	ev := subconscious.Event{Text: req.Text}
	if ev.Text == "" && req.TranscriptPath != "" {
		path, err := confineTranscript(s.transcripts, req.TranscriptPath)
		if err != nil {
			writeError(w, err)
			return
		}
		ev, err = subconscious.EventFromTranscript(path)
		if err != nil {
			writeError(w, apperr.Validation("close session", "read transcript: %v", err))
			return
		}
	}

	// Processing outlives the request; the response only acknowledges it.
	ctx := context.WithoutCancel(r.Context())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.runner.CloseSession(ctx, subject, sessionID, ev); err != nil {
			log.Warn().Err(err).Str("subject", subject).Str("session", sessionID).Msg("subconscious: session close failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    "processing",
		"subjectId": subject,
		"sessionId": sessionID,
	})
}
