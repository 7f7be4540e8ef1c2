// Package errors defines the josécoin domain error taxonomy.
//
// Every error the ledger or aggregation layer raises carries a kind and the
// HTTP status the request surface should answer with. The surface only maps
// kinds to responses; it never inspects message strings.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies a service error.
type Kind string

const (
	// KindInput marks malformed or invalid caller input.
	KindInput Kind = "input"
	// KindNotFound marks a referenced account or wallet that does not exist.
	KindNotFound Kind = "not_found"
	// KindExists marks an integrity conflict such as a duplicate account id.
	KindExists Kind = "exists"
	// KindCondition marks a business rule violated by otherwise valid input,
	// such as insufficient funds.
	KindCondition Kind = "condition"
	// KindUnimplemented marks a documented extension point with no
	// implementation behind it yet.
	KindUnimplemented Kind = "unimplemented"
	// KindInternal marks everything else. Its detail never reaches callers.
	KindInternal Kind = "internal"
)

// ServiceError is the base error for the ledger API.
type ServiceError struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.cause }

// Is reports kind equality so that errors.Is(err, &ServiceError{Kind: k})
// style sentinels work across wrapping.
func (e *ServiceError) Is(target error) bool {
	var svc *ServiceError
	if !stderrors.As(target, &svc) {
		return false
	}
	return svc.Kind == e.Kind
}

// WithCause attaches an underlying error, preserved through Unwrap.
func (e *ServiceError) WithCause(cause error) *ServiceError {
	clone := *e
	clone.cause = cause
	return &clone
}

// Input builds a 400 for malformed or invalid caller input.
func Input(format string, args ...any) *ServiceError {
	return &ServiceError{Kind: KindInput, Message: fmt.Sprintf(format, args...), HTTPStatus: http.StatusBadRequest}
}

// NotFound builds a 404 for a missing account or wallet.
func NotFound(format string, args ...any) *ServiceError {
	return &ServiceError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...), HTTPStatus: http.StatusNotFound}
}

// Exists builds a 409 for integrity conflicts (duplicate account id).
func Exists(format string, args ...any) *ServiceError {
	return &ServiceError{Kind: KindExists, Message: fmt.Sprintf(format, args...), HTTPStatus: http.StatusConflict}
}

// Condition builds a 412 for violated business preconditions.
func Condition(format string, args ...any) *ServiceError {
	return &ServiceError{Kind: KindCondition, Message: fmt.Sprintf(format, args...), HTTPStatus: http.StatusPreconditionFailed}
}

// Unimplemented builds a 501 for declared-but-unbuilt extension points.
func Unimplemented(format string, args ...any) *ServiceError {
	return &ServiceError{Kind: KindUnimplemented, Message: fmt.Sprintf(format, args...), HTTPStatus: http.StatusNotImplemented}
}

// Internal builds a 500. The message is for operators; the request surface
// replaces it with a generic one before answering.
func Internal(format string, args ...any) *ServiceError {
	return &ServiceError{Kind: KindInternal, Message: fmt.Sprintf(format, args...), HTTPStatus: http.StatusInternalServerError}
}

// KindOf extracts the kind from err, or KindInternal when err is not a
// ServiceError.
func KindOf(err error) Kind {
	var svc *ServiceError
	if stderrors.As(err, &svc) {
		return svc.Kind
	}
	return KindInternal
}

// StatusOf extracts the HTTP status from err, defaulting to 500.
func StatusOf(err error) int {
	var svc *ServiceError
	if stderrors.As(err, &svc) {
		return svc.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var svc *ServiceError
	return stderrors.As(err, &svc) && svc.Kind == kind
}
