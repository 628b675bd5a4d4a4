package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/lazypower/lattice/internal/apperr"
)

type errorBody struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"` // seconds
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindRateLimit:
		return http.StatusTooManyRequests
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes {"error":{kind,message}} with the status for err's kind.
// Storage failures are logged and their detail is not echoed.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	body := errorBody{Kind: kind.String(), Message: err.Error()}

	if kind == apperr.KindRateLimit {
		secs := int(math.Ceil(apperr.RetryAfterOf(err).Seconds()))
		body.RetryAfter = max(secs, 1)
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfter))
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("http: internal error")
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Op != "" {
			body.Message = ae.Op + ": internal error"
		} else {
			body.Message = "internal error"
		}
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}
