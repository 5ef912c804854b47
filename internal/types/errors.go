package types

import (
	"fmt"
	"time"
)

// ValidationError signals a malformed identifier or query. Terminal: the
// caller should not retry without changing the input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError signals that every cache tier and provider was consulted
// without a result.
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no result for %q", e.Query)
}

// RateLimitError signals admission-control rejection. RetryAfter tells the
// caller when the sliding window will have room again.
type RateLimitError struct {
	Limiter    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Limiter, e.RetryAfter)
}

// CircuitOpenError signals that a provider's breaker rejected the call
// without going to the network. RetryAfter derives from the breaker's
// recovery timeout.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s, retry after %s", e.Name, e.RetryAfter)
}

// ExternalServiceError wraps a provider transport or HTTP failure. It counts
// against that provider's breaker and advances the fallback chain.
type ExternalServiceError struct {
	Provider string
	Err      error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("provider %s failed: %v", e.Provider, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }
