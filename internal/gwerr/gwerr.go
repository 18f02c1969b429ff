// Package gwerr defines the gateway's typed error values.
//
// DESIGN: Every failure surfaced to a caller carries a Kind discriminant.
// Handlers map Kind to an HTTP status explicitly instead of inspecting
// message text. Expected, user-facing conditions (quota exhaustion, bad
// credentials) share the same type as system faults but are logged at a
// lower severity by the handlers.
package gwerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind discriminates gateway failures.
type Kind string

const (
	KindInvalidRequest  Kind = "invalid_request"
	KindUnknownModel    Kind = "unknown_model"
	KindUpstreamError   Kind = "upstream_error"
	KindUpstreamTimeout Kind = "upstream_timeout"
	KindProfileNotFound Kind = "profile_not_found"
	KindQuotaExceeded   Kind = "quota_exceeded"
	KindUnauthorized    Kind = "unauthorized"
	KindSearchProvider  Kind = "search_provider_error"
	KindInternal        Kind = "internal_error"
)

// Error is a gateway failure with a discriminant and optional upstream detail.
type Error struct {
	Kind    Kind
	Message string

	// UpstreamStatus and UpstreamBody are set for upstream_error only.
	UpstreamStatus int
	UpstreamBody   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New creates an Error with the given kind and message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Upstream creates an upstream_error carrying the provider's status and body.
// The body is part of the user-facing message: provider errors are typically
// deterministic (bad model, bad payload) and the detail helps callers fix
// their request.
func Upstream(status int, body string) *Error {
	return &Error{
		Kind:           KindUpstreamError,
		Message:        fmt.Sprintf("upstream error (status %d): %s", status, body),
		UpstreamStatus: status,
		UpstreamBody:   body,
	}
}

// KindOf extracts the Kind from err, or internal_error for anything else.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a failure kind to its response status code.
//
// Quota exhaustion is 403 and missing/invalid credentials are 401; the
// remaining research-path failures stay 400 to match the public contract.
// Upstream transport failures are 500 except timeouts, which get 504 so
// callers can tell a slow provider from a broken one.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidRequest, KindUnknownModel:
		return http.StatusBadRequest
	case KindUpstreamError:
		return http.StatusInternalServerError
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case KindProfileNotFound:
		return http.StatusBadRequest
	case KindQuotaExceeded:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindSearchProvider:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Expected reports whether err is a frequent user-facing condition that
// should not be logged as an internal fault.
func Expected(err error) bool {
	switch KindOf(err) {
	case KindQuotaExceeded, KindUnauthorized, KindUnknownModel, KindInvalidRequest:
		return true
	}
	return false
}
