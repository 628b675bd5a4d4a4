// Package apperr defines the error taxonomy shared by every lattice layer.
// Transports classify failures with KindOf; everything else wraps with %w.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error for callers that must react differently to
// "nothing matched" and "the system is broken".
type Kind int

const (
	KindStorage Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindRateLimit
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimit:
		return "rate_limit"
	case KindUpstream:
		return "upstream"
	default:
		return "storage"
	}
}

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind       Kind
	Op         string
	Msg        string
	RetryAfter time.Duration // set for KindRateLimit
	Err        error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind, so errors.Is(err, ErrNotFound) holds
// for any NotFound error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.sentinel() && t.Kind == e.Kind
}

func (e *Error) sentinel() bool {
	return e.Op == "" && e.Msg == "" && e.Err == nil && e.RetryAfter == 0
}

// Sentinels for errors.Is.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrRateLimit  = &Error{Kind: KindRateLimit}
	ErrUpstream   = &Error{Kind: KindUpstream}
	ErrStorage    = &Error{Kind: KindStorage}
)

func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(op, format string, args ...any) error {
	return &Error{Kind: KindConflict, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// RateLimit reports an exhausted budget. The caller should wait retryAfter.
func RateLimit(op string, retryAfter time.Duration) error {
	return &Error{
		Kind:       KindRateLimit,
		Op:         op,
		Msg:        fmt.Sprintf("rate limit exceeded, retry after %d ms", retryAfter.Milliseconds()),
		RetryAfter: retryAfter,
	}
}

func Upstream(op, msg string, err error) error {
	return &Error{Kind: KindUpstream, Op: op, Msg: msg, Err: err}
}

// Storage wraps a persistence failure. A nil err yields nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

// KindOf classifies err. Unclassified errors are storage failures.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindStorage
}

// RetryAfterOf returns the wait hint carried by a rate-limit error.
func RetryAfterOf(err error) time.Duration {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.RetryAfter
	}
	return 0
}
