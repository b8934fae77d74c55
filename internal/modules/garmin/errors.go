package garmin

import (
	"fmt"
	"net/http"
)

// DomainError is a structured, self-describing domain error used across the
// garmin module. It carries HTTP/RFC7807-friendly metadata so a shared
// formatter can convert any domain error into a Problem response without
// enumerating error types.
type DomainError struct {
	// Code is a stable, machine-readable business code (e.g., "ErrStateExpired").
	Code string

	// HTTPStatus is the HTTP status suggested for this error.
	HTTPStatus int

	// Title is a short human summary; if empty the formatter defaults to
	// StatusText(HTTPStatus).
	Title string

	// Message is a human-readable message primarily for logs. When Detail is
	// empty, this is used as the public detail.
	Message string

	// Detail is a user-friendly, safe explanation for clients.
	Detail string

	// TypeURI is an RFC7807 type URI, e.g. "urn:problem:garmin/err-not-connected".
	TypeURI string

	// Context is an optional extension payload for clients.
	Context any

	// cause is the underlying error that triggered this one, if any.
	cause error
}

// Error satisfies the standard Go error interface.
func (e *DomainError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Message
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap provides compatibility for errors.Is and errors.As, exposing the
// underlying error chain.
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is enables errors.Is comparisons based on the stable Code rather than
// pointer identity, so copies created via WithCause match their sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a new instance of the DomainError, wrapping the provided cause.
func (e *DomainError) WithCause(err error) *DomainError {
	if err == nil {
		return e
	}
	cp := *e
	cp.cause = err
	return &cp
}

// WithDetail sets a public-friendly detail message for clients.
func (e *DomainError) WithDetail(detail string) *DomainError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithContext attaches an extension payload for clients.
func (e *DomainError) WithContext(ctx any) *DomainError {
	cp := *e
	cp.Context = ctx
	return &cp
}

// --- RFC7807 mapping accessors (satisfy httpx.DomainProblem) ---

func (e *DomainError) ProblemCode() string { return e.Code }
func (e *DomainError) ProblemStatus() int {
	if e.HTTPStatus == 0 {
		return http.StatusInternalServerError
	}
	return e.HTTPStatus
}
func (e *DomainError) ProblemTitle() string { return e.Title }
func (e *DomainError) ProblemDetail() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Message
}
func (e *DomainError) ProblemTypeURI() string { return e.TypeURI }
func (e *DomainError) ProblemContext() any    { return e.Context }

// --- Pre-defined Domain Errors ---

var (
	ErrNotFound = &DomainError{
		Code:       "ErrNotFound",
		HTTPStatus: http.StatusNotFound,
		Title:      "Not Found",
		Message:    "record not found",
		TypeURI:    "urn:problem:garmin/err-not-found",
	}

	ErrNotConnected = &DomainError{
		Code:       "ErrNotConnected",
		HTTPStatus: http.StatusNotFound,
		Title:      "Not Found",
		Message:    "no garmin connection for this user",
		TypeURI:    "urn:problem:garmin/err-not-connected",
	}

	ErrReauthRequired = &DomainError{
		Code:       "ErrReauthRequired",
		HTTPStatus: http.StatusForbidden,
		Title:      "Forbidden",
		Message:    "garmin connection requires re-authorization",
		TypeURI:    "urn:problem:garmin/err-reauth-required",
	}

	// Authorization flow
	ErrStateInvalid = &DomainError{
		Code:       "ErrStateInvalid",
		HTTPStatus: http.StatusBadRequest,
		Title:      "Bad Request",
		Message:    "invalid or already used authorization state",
		TypeURI:    "urn:problem:garmin/err-state-invalid",
	}

	ErrStateExpired = &DomainError{
		Code:       "ErrStateExpired",
		HTTPStatus: http.StatusBadRequest,
		Title:      "Bad Request",
		Message:    "authorization state has expired",
		TypeURI:    "urn:problem:garmin/err-state-expired",
	}

	ErrTokenExchangeFailed = &DomainError{
		Code:       "ErrTokenExchangeFailed",
		HTTPStatus: http.StatusUnauthorized,
		Title:      "Unauthorized",
		Message:    "garmin token exchange failed",
		TypeURI:    "urn:problem:garmin/err-token-exchange-failed",
	}

	// Upstream API
	ErrUpstream = &DomainError{
		Code:       "ErrUpstream",
		HTTPStatus: http.StatusBadGateway,
		Title:      "Bad Gateway",
		Message:    "garmin api request failed",
		TypeURI:    "urn:problem:garmin/err-upstream",
	}

	ErrUpstreamAuth = &DomainError{
		Code:       "ErrUpstreamAuth",
		HTTPStatus: http.StatusUnauthorized,
		Title:      "Unauthorized",
		Message:    "garmin rejected the access token",
		TypeURI:    "urn:problem:garmin/err-upstream-auth",
	}

	// Webhook processing
	ErrOrphanActivity = &DomainError{
		Code:       "ErrOrphanActivity",
		HTTPStatus: http.StatusUnprocessableEntity,
		Title:      "Unprocessable Entity",
		Message:    "activity references an unknown garmin user",
		TypeURI:    "urn:problem:garmin/err-orphan-activity",
	}

	ErrLogNotRetryable = &DomainError{
		Code:       "ErrLogNotRetryable",
		HTTPStatus: http.StatusConflict,
		Title:      "Conflict",
		Message:    "webhook log is not eligible for retry",
		TypeURI:    "urn:problem:garmin/err-log-not-retryable",
	}

	// Configuration
	ErrConfig = &DomainError{
		Code:       "ErrConfig",
		HTTPStatus: http.StatusInternalServerError,
		Title:      "Internal Server Error",
		Message:    "garmin integration is not configured",
		TypeURI:    "urn:problem:garmin/err-config",
	}

	// Generic internal
	ErrInternal = &DomainError{
		Code:       "ErrInternal",
		HTTPStatus: http.StatusInternalServerError,
		Title:      "Internal Server Error",
		Message:    "internal server error",
		TypeURI:    "urn:problem:garmin/err-internal",
	}
)
