package sentryapi

import (
	"errors"
	"fmt"
	"net/http"
)

// NetworkError wraps a transport-level failure (DNS, TLS, timeout,
// connection refused) reaching Sentry. Retried up to 3x by retry.go.
type NetworkError struct{ Cause error }

func (e *NetworkError) Error() string { return fmt.Sprintf("sentryapi: network error: %v", e.Cause) }
func (e *NetworkError) Unwrap() error  { return e.Cause }

// RateLimited wraps a 429 response. RetryAfterSeconds is 0 if the upstream
// didn't send a Retry-After header, in which case withRetry waits one
// second before its single retry.
type RateLimited struct {
	RetryAfterSeconds int
}

func (e *RateLimited) Error() string {
	return fmt.Sprintf("sentryapi: rate limited, retry after %ds", e.RetryAfterSeconds)
}

// AuthErrorSubtype distinguishes why a 401/403 was returned.
type AuthErrorSubtype string

const (
	SubtypeUnauthenticated AuthErrorSubtype = "Unauthenticated" // 401
	SubtypePermissionDenied AuthErrorSubtype = "PermissionDenied" // 403
)

// AuthError wraps a 401/403 response. Never retried.
type AuthError struct {
	Subtype AuthErrorSubtype
	Status  int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("sentryapi: auth error (%s, status %d)", e.Subtype, e.Status)
}

// NotFoundError wraps a 404 response. Never retried.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("sentryapi: %s not found", e.Resource)
}

// ServerError wraps a 5xx response. Retried up to twice by retry.go.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("sentryapi: upstream server error (status %d)", e.Status)
}

// UserError wraps a 400 response carrying a JSON error body, surfaced
// verbatim to the caller (and, from there, into a tool result). Never
// retried.
type UserError struct {
	Body string
}

func (e *UserError) Error() string {
	return fmt.Sprintf("sentryapi: invalid request: %s", e.Body)
}

// classifyStatus maps an HTTP status code from a successfully-received
// response onto the gateway's error taxonomy. Called only for non-2xx
// status codes; callers must check for 2xx before calling this.
func classifyStatus(status int, resource, retryAfter string, body string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &RateLimited{RetryAfterSeconds: parseRetryAfter(retryAfter)}
	case status == http.StatusUnauthorized:
		return &AuthError{Subtype: SubtypeUnauthenticated, Status: status}
	case status == http.StatusForbidden:
		return &AuthError{Subtype: SubtypePermissionDenied, Status: status}
	case status == http.StatusNotFound:
		return &NotFoundError{Resource: resource}
	case status == http.StatusBadRequest:
		return &UserError{Body: body}
	case status >= 500:
		return &ServerError{Status: status, Body: body}
	default:
		return fmt.Errorf("sentryapi: unexpected status %d for %s: %s", status, resource, body)
	}
}

func parseRetryAfter(v string) int {
	if v == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(v, "%d", &seconds); err != nil || seconds < 0 {
		return 0
	}
	return seconds
}

// IsRetryable reports whether err is one retry.go should retry.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	var rateLimited *RateLimited
	var serverErr *ServerError
	return errors.As(err, &netErr) || errors.As(err, &rateLimited) || errors.As(err, &serverErr)
}
