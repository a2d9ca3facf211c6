package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed     = fmt.Errorf("authentication failed")
	ErrTokenExpired   = fmt.Errorf("access token expired")
	ErrRefreshFailed  = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken = fmt.Errorf("no refresh token available")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrTrackNotFound      = fmt.Errorf("track not found")
	ErrRateLimited        = fmt.Errorf("rate limited")
	ErrRetriesExhausted   = fmt.Errorf("retries exhausted")

	// Engine errors
	ErrInvalidPlan     = fmt.Errorf("invalid edit plan")
	ErrUnknownService  = fmt.Errorf("unknown service")
	ErrInvalidPair     = fmt.Errorf("invalid sync pair")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// StatusError carries an HTTP status from a provider adapter so the executor
// and credential manager can classify it without depending on net/http.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration // parsed Retry-After header, 0 when absent
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("status %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("status %d", e.Code)
}

// ServiceAuthError pins an authentication failure to the service whose
// credentials were rejected, so cycle-level reporting does not have to
// guess which side of a pair failed.
type ServiceAuthError struct {
	Service string
	Err     error
}

func (e *ServiceAuthError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ServiceAuthError) Unwrap() error { return e.Err }

// AuthFailureService names the service behind an auth failure, or fallback
// when the chain carries no attribution.
func AuthFailureService(err error, fallback string) string {
	var authErr *ServiceAuthError
	if errors.As(err, &authErr) {
		return authErr.Service
	}
	return fallback
}

// IsTransient reports whether an error is worth retrying: network timeouts,
// connection resets, and the retryable HTTP statuses (429, 502, 503, 504).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrRateLimited) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case 429, 502, 503, 504:
			return true
		}
	}
	return false
}

// IsAuthFailure reports whether an error signals invalid or expired
// credentials (HTTP 401/403), which the credential manager handles with a
// refresh-and-replay rather than a retry loop.
func IsAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrTokenExpired) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == 401 || statusErr.Code == 403
	}
	return false
}

// RetryAfter extracts a server-requested delay from an error chain, or 0.
func RetryAfter(err error) time.Duration {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.RetryAfter
	}
	return 0
}
