package store

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the HTTP boundary. Every component wraps its
// failures in one of these so handlers never inspect storage errors directly.
type Kind string

const (
	KindBadRequest   Kind = "BadRequest"
	KindUnauthorized Kind = "Unauthorized"
	KindForbidden    Kind = "Forbidden"
	KindNotFound     Kind = "NotFound"
	KindConflict     Kind = "Conflict"
	KindInvalidToken Kind = "InvalidToken"
	KindInternal     Kind = "InternalError"
)

type Error struct {
	Kind    Kind
	Message string
	// Fields carries per-field validation messages for BadRequest errors.
	Fields map[string]string
	err    error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, err: err}
}

// Invalid builds a BadRequest error carrying field-level messages.
func Invalid(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindBadRequest, Message: msg, Fields: fields}
}

// KindOf extracts the Kind from err, or KindInternal when err was never
// classified. Unclassified errors must not leak detail to clients.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }
