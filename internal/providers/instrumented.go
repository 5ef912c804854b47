package providers

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/marketlens/resolver-api/internal/breaker"
	"github.com/marketlens/resolver-api/internal/ratelimit"
	"github.com/marketlens/resolver-api/internal/types"
)

// Instrumented composes admission control and failure protection around a
// provider: limiter acquire first, then the breaker-wrapped network call.
type Instrumented struct {
	provider Provider
	limiter  ratelimit.Limiter
	breaker  *breaker.CircuitBreaker
	log      zerolog.Logger
}

// NewInstrumented wraps provider with its own limiter and breaker.
func NewInstrumented(provider Provider, limiter ratelimit.Limiter, cb *breaker.CircuitBreaker, log zerolog.Logger) *Instrumented {
	return &Instrumented{
		provider: provider,
		limiter:  limiter,
		breaker:  cb,
		log:      log.With().Str("component", "instrumented_provider").Str("provider", provider.Name()).Logger(),
	}
}

func (i *Instrumented) Name() string { return i.provider.Name() }

func (i *Instrumented) Supports(kind types.IdentifierKind) bool {
	return i.provider.Supports(kind)
}

// FetchByIdentifier gates the fetch through the limiter and breaker.
// Provider errors come back wrapped as ExternalServiceError so the fallback
// chain can distinguish them from local rejections.
func (i *Instrumented) FetchByIdentifier(ctx context.Context, id types.StockIdentifier) (*types.Stock, error) {
	if err := i.admit(ctx); err != nil {
		return nil, err
	}

	var stock *types.Stock
	err := i.breaker.Call(ctx, func(ctx context.Context) error {
		s, err := i.provider.FetchByIdentifier(ctx, id)
		if err != nil {
			return &types.ExternalServiceError{Provider: i.provider.Name(), Err: err}
		}
		stock = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stock, nil
}

// SearchByName gates the name search the same way.
func (i *Instrumented) SearchByName(ctx context.Context, name string, limit int) ([]types.Stock, error) {
	if err := i.admit(ctx); err != nil {
		return nil, err
	}

	var stocks []types.Stock
	err := i.breaker.Call(ctx, func(ctx context.Context) error {
		s, err := i.provider.SearchByName(ctx, name, limit)
		if err != nil {
			return &types.ExternalServiceError{Provider: i.provider.Name(), Err: err}
		}
		stocks = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stocks, nil
}

// Health reports breaker state and rate-limit usage for this provider.
func (i *Instrumented) Health(ctx context.Context) HealthStatus {
	return HealthStatus{
		Provider:       i.provider.Name(),
		CircuitState:   i.breaker.State().String(),
		RateLimitUsage: i.limiter.Usage(ctx, i.provider.Name()),
	}
}

func (i *Instrumented) admit(ctx context.Context) error {
	dec, err := i.limiter.Acquire(ctx, i.provider.Name())
	if err != nil {
		// Limiters fail open; an error here is misuse, not backend
		// trouble. Log and let the call through.
		i.log.Error().Err(err).Msg("limiter error, admitting call")
		return nil
	}
	if !dec.Allowed {
		return &types.RateLimitError{Limiter: i.provider.Name(), RetryAfter: dec.RetryAfter}
	}
	return nil
}
