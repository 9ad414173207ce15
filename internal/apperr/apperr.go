// Package apperr classifies domain failures so the transport layer can pick a status code
// and a client-safe message without knowing every package's sentinels.
package apperr

import "errors"

// Kinds. Every *Error unwraps to exactly one of these.
var (
	ErrInvalid         = errors.New("invalid input")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
)

// Error is a classified failure whose message is safe to show to API clients.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.kind }

// Message returns the client-facing message.
func (e *Error) Message() string { return e.msg }

func Invalid(msg string) *Error         { return &Error{kind: ErrInvalid, msg: msg} }
func Conflict(msg string) *Error        { return &Error{kind: ErrConflict, msg: msg} }
func Unauthenticated(msg string) *Error { return &Error{kind: ErrUnauthenticated, msg: msg} }
func Forbidden(msg string) *Error       { return &Error{kind: ErrForbidden, msg: msg} }
func NotFound(msg string) *Error        { return &Error{kind: ErrNotFound, msg: msg} }

// MessageOf returns the outermost classified message in err's chain, or fallback.
func MessageOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		return e.msg
	}
	return fallback
}
