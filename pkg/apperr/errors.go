// Package apperr implements the platform error taxonomy: a closed set of
// kinds that every adapter (HTTP, scheduler, outbox consumer) maps onto a
// concrete response, instead of inspecting ad-hoc error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the closed taxonomy every domain error is classified into.
type Kind string

const (
	KindAuthorizationDenied Kind = "authorization_denied"
	KindNotFound            Kind = "not_found"
	KindConcurrencyConflict Kind = "concurrency_conflict"
	KindInvariantViolation  Kind = "invariant_violation"
	KindTransientExternal   Kind = "transient_external"
	KindFatalExternal       Kind = "fatal_external"
)

// Error is the concrete error type carried through the stack. EntityType
// names the aggregate involved (e.g. "CreditFacilityProposal") so adapters
// can render a useful message without re-deriving it from the call site.
type Error struct {
	Kind       Kind
	EntityType string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Err != nil {
		return e.Err.Error()
	}

	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func new(kind Kind, entityType, format string, args ...any) *Error {
	return &Error{Kind: kind, EntityType: entityType, Message: fmt.Sprintf(format, args...)}
}

func NotFound(entityType, format string, args ...any) *Error {
	return new(KindNotFound, entityType, format, args...)
}

func AuthorizationDenied(entityType, format string, args ...any) *Error {
	return new(KindAuthorizationDenied, entityType, format, args...)
}

func ConcurrencyConflict(entityType, format string, args ...any) *Error {
	return new(KindConcurrencyConflict, entityType, format, args...)
}

func InvariantViolation(entityType, format string, args ...any) *Error {
	return new(KindInvariantViolation, entityType, format, args...)
}

// TransientExternal wraps an upstream error judged safe to retry (the
// custodian, KYC provider, or price feed timed out or 5xx'd).
func TransientExternal(entityType string, err error) *Error {
	return &Error{Kind: KindTransientExternal, EntityType: entityType, Err: err}
}

// FatalExternal wraps an upstream error judged NOT safe to retry (the
// upstream rejected the request as malformed; retrying would just repeat
// the rejection).
func FatalExternal(entityType string, err error) *Error {
	return &Error{Kind: KindFatalExternal, EntityType: entityType, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}

	return false
}

// Retryable reports whether a background-job or outbox consumer may retry
// the operation that produced err.
func Retryable(err error) bool {
	return Is(err, KindConcurrencyConflict) || Is(err, KindTransientExternal)
}
