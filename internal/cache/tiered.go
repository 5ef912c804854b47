package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketlens/resolver-api/internal/types"
)

// Tiered is the two-level repository the resolution service talks to. Tier
// errors are logged and treated as misses so a flaky cache never aborts a
// search.
type Tiered struct {
	l1      Store
	l2      Store
	ttl     time.Duration
	nameTTL time.Duration
	log     zerolog.Logger
}

// NewTiered wires the tiers together. ttl is the point-lookup lifetime;
// nameTTL applies to rows written by name-search caching.
func NewTiered(l1, l2 Store, ttl, nameTTL time.Duration, log zerolog.Logger) *Tiered {
	return &Tiered{
		l1:      l1,
		l2:      l2,
		ttl:     ttl,
		nameTTL: nameTTL,
		log:     log.With().Str("component", "tiered_cache").Logger(),
	}
}

// Find consults L1 first, then L2. An L2 hit is written back into L1 so the
// next lookup stays off the slow tier.
func (t *Tiered) Find(ctx context.Context, id types.StockIdentifier) (*types.Stock, error) {
	stock, err := t.l1.Find(ctx, id)
	if err != nil {
		t.log.Warn().Err(err).Str("identifier", id.String()).Msg("l1 error, falling through")
	} else if stock != nil {
		return stock, nil
	}

	stock, err = t.l2.Find(ctx, id)
	if err != nil {
		t.log.Warn().Err(err).Str("identifier", id.String()).Msg("l2 error, treating as miss")
		return nil, nil
	}
	if stock == nil {
		return nil, nil
	}

	if err := t.l1.Save(ctx, stock, t.ttl); err != nil {
		t.log.Warn().Err(err).Str("identifier", id.String()).Msg("l1 write-back failed")
	}
	return stock, nil
}

// FindByName only queries L2; L1 has no substring search.
func (t *Tiered) FindByName(ctx context.Context, name string, limit int) ([]types.Stock, error) {
	stocks, err := t.l2.FindByName(ctx, name, limit)
	if err != nil {
		t.log.Warn().Err(err).Str("name", name).Msg("l2 name search error, treating as miss")
		return nil, nil
	}
	return stocks, nil
}

// Save writes through to both tiers before returning. Writes are idempotent
// overwrites, so concurrent fetches of the same identifier are harmless.
func (t *Tiered) Save(ctx context.Context, stock *types.Stock) error {
	if err := t.l2.Save(ctx, stock, t.ttl); err != nil {
		return err
	}
	if err := t.l1.Save(ctx, stock, t.ttl); err != nil {
		t.log.Warn().Err(err).Str("symbol", stock.Symbol).Msg("l1 write failed")
	}
	return nil
}

// SaveNameResult caches one name-search candidate with the longer name TTL
// on L2 and the standard TTL on L1.
func (t *Tiered) SaveNameResult(ctx context.Context, stock *types.Stock) error {
	if err := t.l2.Save(ctx, stock, t.nameTTL); err != nil {
		return err
	}
	if err := t.l1.Save(ctx, stock, t.ttl); err != nil {
		t.log.Warn().Err(err).Str("symbol", stock.Symbol).Msg("l1 write failed")
	}
	return nil
}

// DeleteExpired sweeps L2; L1 expires natively.
func (t *Tiered) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return t.l2.DeleteExpired(ctx, before)
}

// Stats returns both tiers' stats. A failing tier reports zeroes rather
// than failing the whole call.
func (t *Tiered) Stats(ctx context.Context) (l1 Stats, l2 Stats) {
	var err error
	l1, err = t.l1.Stats(ctx)
	if err != nil {
		t.log.Warn().Err(err).Msg("l1 stats unavailable")
		l1 = Stats{Tier: "l1"}
	}
	l2, err = t.l2.Stats(ctx)
	if err != nil {
		t.log.Warn().Err(err).Msg("l2 stats unavailable")
		l2 = Stats{Tier: "l2"}
	}
	return l1, l2
}
