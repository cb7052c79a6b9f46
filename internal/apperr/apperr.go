package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind int

const (
	KindUnexpected Kind = iota
	KindUnauthorized
	KindForbidden
	KindBusinessRule
	KindNotFound
	KindTransient
)

// Error is the typed error carried across the pipeline boundary. Details hold
// structured denial context (which role/permission/feature/limit) safe to show
// to the caller; the wrapped error is for logs only.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail attaches a structured detail field and returns the same error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: "unauthorized", Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Code: "forbidden", Message: message}
}

// BusinessRule reports a broken domain invariant (illegal subscription
// transition, usage limit exceeded, duplicate assignment).
func BusinessRule(code, message string) *Error {
	return &Error{Kind: KindBusinessRule, Code: code, Message: message}
}

func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Code: "not_found", Message: fmt.Sprintf("%s not found", entity)}
}

// Transient wraps a storage failure the persistence layer may retry.
func Transient(err error) *Error {
	return &Error{Kind: KindTransient, Code: "transient", Message: "transient storage failure", Err: err}
}

// Unexpected wraps anything that escapes the taxonomy. The original error is
// preserved for logging but never rendered to the caller.
func Unexpected(err error) *Error {
	return &Error{Kind: KindUnexpected, Code: "internal", Message: "internal error", Err: err}
}

// KindOf returns the Kind of err, or KindUnexpected when err is untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }
func IsForbidden(err error) bool    { return KindOf(err) == KindForbidden }
func IsBusinessRule(err error) bool { return KindOf(err) == KindBusinessRule }
func IsNotFound(err error) bool     { return KindOf(err) == KindNotFound }
func IsTransient(err error) bool    { return KindOf(err) == KindTransient }

// HTTPStatus maps an error to the status the handlers respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindBusinessRule:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
