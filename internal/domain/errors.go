package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRecordNotFound signals a missing record.
	ErrRecordNotFound = errors.New("record not found")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrAuth signals an authentication failure at the embedding provider.
	// Never retried: a bad credential is not a transient outage.
	ErrAuth = errors.New("embedding provider authentication failed")
	// ErrProviderUnavailable signals a transient embedding provider failure
	// (network error, 5xx, timeout).
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	// ErrRateLimited signals a provider rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrCircuitOpen signals that the embedding circuit breaker rejected the call.
	ErrCircuitOpen = errors.New("embedding circuit open")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding token budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrRunInProgress signals that an index run is already active.
	ErrRunInProgress = errors.New("index run already in progress")
)

// RateLimitError wraps ErrRateLimited with the provider-supplied retry-after hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: retry after %s", ErrRateLimited.Error(), e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// NewRateLimitError creates a rate limit error with an optional retry-after hint.
func NewRateLimitError(retryAfter time.Duration) error {
	return &RateLimitError{RetryAfter: retryAfter}
}

// IsTransient reports whether err is worth retrying with backoff.
// Auth errors, circuit rejections, and validation errors are not transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrRateLimited)
}
