// Package providers wraps external market-data sources behind a uniform
// fetch/search contract, each instance guarded by its own rate limiter and
// circuit breaker.
package providers

import (
	"context"

	"github.com/marketlens/resolver-api/internal/types"
)

// Provider is the uniform contract every market-data adapter implements.
// A nil Stock with a nil error means the provider was reached but has no
// data for the identifier; the fallback chain advances on both misses and
// errors.
type Provider interface {
	Name() string
	// Supports reports whether the provider can look up this identifier
	// kind directly. Unsupported kinds are skipped by the chain so quota
	// is not wasted on lookups that cannot succeed.
	Supports(kind types.IdentifierKind) bool
	FetchByIdentifier(ctx context.Context, id types.StockIdentifier) (*types.Stock, error)
	SearchByName(ctx context.Context, name string, limit int) ([]types.Stock, error)
}

// HealthStatus is the per-provider health view exposed through the stats
// endpoint.
type HealthStatus struct {
	Provider       string  `json:"provider"`
	CircuitState   string  `json:"circuit_state"`
	RateLimitUsage float64 `json:"rate_limit_usage"`
}
