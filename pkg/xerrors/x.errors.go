package xerrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Generic
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalServer = errors.New("internal server error")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
)

// Lead pipeline
var (
	ErrCaptchaFailed  = errors.New("captcha verification failed")
	ErrTimingRejected = errors.New("submission rejected by timing check")
	ErrDispatchFailed = errors.New("all delivery channels failed")
	ErrLeadNotFound   = errors.New("lead not found")
)

// Rate limiting
var (
	ErrRateLimited = errors.New("too many requests")
)

// Messaging
var (
	ErrServiceUnconfigured = errors.New("service not configured")
	ErrInvalidRecipient    = errors.New("invalid recipient")
	ErrSendFailed          = errors.New("message send failed")
)

// Upstream providers
var (
	ErrUpstreamAuth        = errors.New("upstream rejected credentials")
	ErrUpstreamRateLimited = errors.New("upstream rate limit hit")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
)

// Locale
var (
	ErrUnsupportedLocale = errors.New("unsupported locale")
)

func ParsePGErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code // e.g. 23505 for unique_violation
	}
	return "unknown"
}

// ValidationError carries per-field messages so handlers can return
// user-correctable detail without leaking internals.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for f, msg := range e.Fields {
		parts = append(parts, f+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError builds a ValidationError from field/message pairs.
func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

// RateLimitError wraps ErrRateLimited with the seconds a client should wait.
type RateLimitError struct {
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many requests; retry after %d seconds", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// HTTPStatus maps the error taxonomy onto response codes. Handlers catch at
// the route boundary, log with context, and return the sanitized body.
func HTTPStatus(err error) int {
	var ve *ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrCaptchaFailed),
		errors.Is(err, ErrTimingRejected),
		errors.Is(err, ErrInvalidRecipient):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrLeadNotFound), errors.Is(err, ErrUnsupportedLocale):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrUpstreamRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrServiceUnconfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
