package providers

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/marketlens/resolver-api/internal/types"
)

// InstrumentedProvider is what the chain iterates over: the uniform contract
// plus health reporting.
type InstrumentedProvider interface {
	Provider
	Health(ctx context.Context) HealthStatus
}

// Chain tries providers in a fixed priority order, primary first, and
// stops at the first success. Errors advance the chain instead of surfacing;
// only full exhaustion reports the last error seen.
type Chain struct {
	providers []InstrumentedProvider
	log       zerolog.Logger
}

// NewChain creates a fallback chain. Order matters: pass the cheapest,
// broadest provider first.
func NewChain(log zerolog.Logger, providers ...InstrumentedProvider) *Chain {
	return &Chain{
		providers: providers,
		log:       log.With().Str("component", "provider_chain").Logger(),
	}
}

// Resolve fetches the identifier from the first provider that both supports
// its kind and returns data. A (nil, nil) result means every provider was a
// clean miss.
func (c *Chain) Resolve(ctx context.Context, id types.StockIdentifier) (*types.Stock, error) {
	var lastErr error

	for _, p := range c.providers {
		if !p.Supports(id.Kind()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		stock, err := p.FetchByIdentifier(ctx, id)
		if err != nil {
			c.log.Warn().Err(err).
				Str("provider", p.Name()).
				Str("identifier", id.String()).
				Msg("provider failed, trying next")
			lastErr = err
			continue
		}
		if stock == nil {
			c.log.Debug().
				Str("provider", p.Name()).
				Str("identifier", id.String()).
				Msg("provider miss, trying next")
			continue
		}
		return stock, nil
	}

	return nil, lastErr
}

// SearchByName returns the first provider's non-empty result set, walking
// the same priority order.
func (c *Chain) SearchByName(ctx context.Context, name string, limit int) ([]types.Stock, error) {
	var lastErr error

	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		stocks, err := p.SearchByName(ctx, name, limit)
		if err != nil {
			c.log.Warn().Err(err).
				Str("provider", p.Name()).
				Str("name", name).
				Msg("provider name search failed, trying next")
			lastErr = err
			continue
		}
		if len(stocks) > 0 {
			return stocks, nil
		}
	}

	return nil, lastErr
}

// Health collects per-provider health in chain order.
func (c *Chain) Health(ctx context.Context) []HealthStatus {
	statuses := make([]HealthStatus, 0, len(c.providers))
	for _, p := range c.providers {
		statuses = append(statuses, p.Health(ctx))
	}
	return statuses
}
