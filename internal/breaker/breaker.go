// Package breaker implements a per-dependency circuit breaker. One instance
// wraps one named external dependency; state is process-local.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketlens/resolver-api/internal/types"
)

// State is the breaker's position in the Closed/Open/HalfOpen machine.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Settings holds the transition thresholds.
type Settings struct {
	// FailureThreshold consecutive failures in Closed trip the breaker.
	FailureThreshold int
	// RecoveryTimeout is how long Open lasts before trial calls begin.
	RecoveryTimeout time.Duration
	// HalfOpenMaxCalls bounds trial calls; that many consecutive
	// successes close the breaker again.
	HalfOpenMaxCalls int
}

// DefaultSettings mirror the budgets used for the provider adapters.
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenMaxCalls: 2,
	}
}

// CircuitBreaker guards a single callable. All state is mutated under the
// instance's own mutex; nothing is shared across instances or processes.
type CircuitBreaker struct {
	name     string
	settings Settings
	log      zerolog.Logger

	mu               sync.Mutex
	state            State
	failures         int
	halfOpenSuccess  int
	halfOpenInFlight int
	openedAt         time.Time

	now func() time.Time
}

// New creates a breaker for the named dependency.
func New(name string, settings Settings, log zerolog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		name:     name,
		settings: settings,
		log:      log.With().Str("component", "circuit_breaker").Str("dependency", name).Logger(),
		now:      time.Now,
	}
}

// Call runs fn under the breaker. On Open it returns a CircuitOpenError
// carrying a retry-after estimate without invoking fn. Context expiry inside
// fn counts as a failure: the call is recorded before unwinding.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.afterCall(err == nil)
	return err
}

// State reports the current state, applying the Open→HalfOpen timeout.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refreshLocked()
	return cb.state
}

// RetryAfter estimates how long until the breaker will admit a call again.
// Zero when not Open.
func (cb *CircuitBreaker) RetryAfter() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return 0
	}
	return cb.remainingLocked()
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.refreshLocked()

	switch cb.state {
	case StateOpen:
		return &types.CircuitOpenError{Name: cb.name, RetryAfter: cb.remainingLocked()}
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.settings.HalfOpenMaxCalls {
			return &types.CircuitOpenError{Name: cb.name, RetryAfter: cb.settings.RecoveryTimeout}
		}
		cb.halfOpenInFlight++
	}
	return nil
}

func (cb *CircuitBreaker) afterCall(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		if success {
			cb.failures = 0
			return
		}
		cb.failures++
		if cb.failures >= cb.settings.FailureThreshold {
			cb.trip()
		}
	case StateHalfOpen:
		cb.halfOpenInFlight--
		if !success {
			cb.trip()
			return
		}
		cb.halfOpenSuccess++
		if cb.halfOpenSuccess >= cb.settings.HalfOpenMaxCalls {
			cb.log.Info().Msg("circuit closed after successful trial calls")
			cb.state = StateClosed
			cb.failures = 0
		}
	case StateOpen:
		// A call admitted before the trip finished after it; nothing to
		// count against the new window.
	}
}

// refreshLocked moves Open to HalfOpen once the recovery timeout elapses.
func (cb *CircuitBreaker) refreshLocked() {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.settings.RecoveryTimeout {
		cb.log.Info().Msg("recovery timeout elapsed, circuit half-open")
		cb.state = StateHalfOpen
		cb.halfOpenSuccess = 0
		cb.halfOpenInFlight = 0
	}
}

func (cb *CircuitBreaker) trip() {
	cb.log.Warn().Int("failures", cb.failures).Msg("circuit opened")
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.failures = 0
	cb.halfOpenSuccess = 0
	cb.halfOpenInFlight = 0
}

func (cb *CircuitBreaker) remainingLocked() time.Duration {
	remaining := cb.settings.RecoveryTimeout - cb.now().Sub(cb.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
