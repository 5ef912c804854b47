// Package ratelimit implements sliding-window admission control. Two
// implementations share one contract: a local in-process window and a
// Redis-backed window for multi-instance deployments.
package ratelimit

import (
	"context"
	"time"
)

// Config is one named limiter's budget. Budgets are configuration, never
// hard-coded in the limiter itself.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

// Decision is the outcome of an admission check. When Allowed is false,
// RetryAfter says how long until the oldest event leaves the window.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int
}

// Limiter is the shared admission-control contract.
type Limiter interface {
	// Acquire records one event for key and reports whether it is within
	// budget. Errors are reserved for misuse; backend trouble fails open.
	Acquire(ctx context.Context, key string) (Decision, error)
	// Usage reports the fraction of the window budget currently consumed
	// for key, for health reporting.
	Usage(ctx context.Context, key string) float64
}
