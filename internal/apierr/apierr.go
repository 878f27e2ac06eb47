// Package apierr defines the platform's fixed error taxonomy (§7) and
// the transport mappings (HTTP status, MQTT/CoAP outcome) derived from it.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the ten fixed error kinds named by the spec. Every
// error that crosses a component boundary is classified as exactly one
// of these; transports map Kind to their own status vocabulary.
type Kind string

const (
	// KindAuthentication: credentials did not match. Never retried.
	KindAuthentication Kind = "authentication_error"
	// KindAuthorization: caller not permitted; surfaced as NotFound to
	// avoid leaking existence of a resource the caller cannot see.
	KindAuthorization Kind = "authorization_error"
	// KindNotFound: resource does not exist.
	KindNotFound Kind = "not_found"
	// KindInvalidRequest: malformed input.
	KindInvalidRequest Kind = "invalid_request"
	// KindConflict: uniqueness violation.
	KindConflict Kind = "conflict"
	// KindOptimisticLockFailed: resource_version mismatch on admin set.
	KindOptimisticLockFailed Kind = "optimistic_lock_failed"
	// KindReferenceNotFound: a reference (e.g. device->application) points
	// nowhere.
	KindReferenceNotFound Kind = "reference_not_found"
	// KindNotInitialized: operation (e.g. ping) against an unknown/expired
	// session.
	KindNotInitialized Kind = "not_initialized"
	// KindTemporary: transient failure — pool exhaustion, bus queue full,
	// upstream 5xx/timeout. Safe to retry with backoff.
	KindTemporary Kind = "temporary"
	// KindPermanent: programming/config error. Not retried.
	KindPermanent Kind = "permanent"
)

// Error wraps a Kind with a message and optional cause, matching the
// teacher's fmt.Errorf("...: %w", err) wrapping idiom throughout.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind wrapping cause. Returns nil if
// cause is nil, so it is safe to use as `return apierr.Wrap(KindTemporary, "...", err)`
// in the common "if err != nil" shape.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// As extracts an *Error from err, following the error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, defaulting to KindPermanent for any
// error that was never classified — an unclassified error is always a
// programming bug, never something the caller can expect and retry.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindPermanent
}

// HTTPStatus maps a Kind to the status code named in §7.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization, KindNotFound:
		return http.StatusNotFound
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindOptimisticLockFailed:
		return http.StatusConflict
	case KindReferenceNotFound:
		return http.StatusUnprocessableEntity
	case KindNotInitialized:
		return http.StatusPreconditionFailed
	case KindTemporary:
		return http.StatusServiceUnavailable
	case KindPermanent:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller that owns a work queue should retry
// this error with backoff (only KindTemporary is retryable; everything
// else is either a permanent rejection or a logic error).
func Retryable(kind Kind) bool {
	return kind == KindTemporary
}
