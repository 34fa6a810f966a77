// Package apperr defines the typed failures raised by the domain and their HTTP mapping.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure.
type Kind int

const (
	KindBadRequest Kind = iota + 1
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindApplication
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "BadRequest"
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindApplication:
		return "ApplicationException"
	default:
		return "Unknown"
	}
}

// Error is a failure that is safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Data    any
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, apperr.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Wrap attaches an underlying cause that is logged but never rendered.
func (e *Error) Wrap(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// Sentinels for kind-only comparisons.
var (
	ErrBadRequest   = &Error{Kind: KindBadRequest}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrApplication  = &Error{Kind: KindApplication}
)

func newError(kind Kind, status int, message string, data []any) *Error {
	e := &Error{Kind: kind, Message: message, Status: status}
	if len(data) > 0 {
		e.Data = data[0]
	}
	return e
}

func BadRequest(message string, data ...any) *Error {
	return newError(KindBadRequest, http.StatusBadRequest, message, data)
}

func Unauthorized(message string, data ...any) *Error {
	return newError(KindUnauthorized, http.StatusUnauthorized, message, data)
}

func Forbidden(message string, data ...any) *Error {
	return newError(KindForbidden, http.StatusForbidden, message, data)
}

func NotFound(message string, data ...any) *Error {
	return newError(KindNotFound, http.StatusNotFound, message, data)
}

func Conflict(message string, data ...any) *Error {
	return newError(KindConflict, http.StatusConflict, message, data)
}

// Application reports a domain-rule violation. status defaults to 400 when zero.
func Application(message string, status int) *Error {
	if status == 0 {
		status = http.StatusBadRequest
	}
	return &Error{Kind: KindApplication, Message: message, Status: status}
}

// From extracts the typed failure from err, if any.
func From(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StatusCode returns the HTTP status for err; untyped errors map to 500.
func StatusCode(err error) int {
	if e, ok := From(err); ok {
		if e.Status != 0 {
			return e.Status
		}
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
