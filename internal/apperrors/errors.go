// Package apperrors defines the error taxonomy shared by the payment
// coordinator, the session layer and the HTTP surface. Each error carries a
// Kind that the Echo error handler maps to a status code.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	// KindInternal covers anything without a more specific classification.
	KindInternal Kind = iota
	// KindAuthentication: missing, expired or invalid session.
	KindAuthentication
	// KindPrecondition: the operation is incompatible with the order's
	// current state (completing a cancelled order, conflicting txid, ...).
	KindPrecondition
	// KindNotFound: the referenced entity does not exist and cannot be
	// safely created.
	KindNotFound
	// KindTransientPlatform: network/timeout/5xx from the payment platform;
	// no local state was mutated, safe to retry.
	KindTransientPlatform
	// KindPersistence: the store is unavailable; fail closed.
	KindPersistence
	// KindConflict: a concurrent writer won the conditional update. Callers
	// normally translate this into an idempotent success.
	KindConflict
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func Authentication(format string, args ...interface{}) *Error {
	return New(KindAuthentication, format, args...)
}

func Precondition(format string, args ...interface{}) *Error {
	return New(KindPrecondition, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func TransientPlatform(err error, msg string) *Error {
	return Wrap(KindTransientPlatform, err, msg)
}

func Persistence(err error, msg string) *Error {
	return Wrap(KindPersistence, err, msg)
}

func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

// KindOf extracts the Kind from err, unwrapping as needed.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error to the status code the API reports for it.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindPrecondition, KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindTransientPlatform:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
