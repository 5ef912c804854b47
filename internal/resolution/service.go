// Package resolution orchestrates the lookup path: classification, tiered
// cache, provider fallback chain, write-back and search-history recording.
package resolution

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketlens/resolver-api/internal/cache"
	"github.com/marketlens/resolver-api/internal/identifier"
	"github.com/marketlens/resolver-api/internal/match"
	"github.com/marketlens/resolver-api/internal/providers"
	"github.com/marketlens/resolver-api/internal/types"
)

// CacheStatsResponse is the operational view exposed by the stats endpoint.
type CacheStatsResponse struct {
	L1        cache.Stats              `json:"l1"`
	L2        cache.Stats              `json:"l2"`
	Providers []providers.HealthStatus `json:"providers"`
}

// Service is the resolution orchestrator.
type Service struct {
	repo    *cache.Tiered
	chain   *providers.Chain
	reverse *providers.ReverseLookup
	history *HistoryRecorder
	scorer  *match.Scorer
	timeout time.Duration
	log     zerolog.Logger
}

// NewService wires the orchestrator. timeout bounds the provider fan-out
// for a single request.
func NewService(
	repo *cache.Tiered,
	chain *providers.Chain,
	reverse *providers.ReverseLookup,
	history *HistoryRecorder,
	timeout time.Duration,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:    repo,
		chain:   chain,
		reverse: reverse,
		history: history,
		scorer:  match.NewScorer(),
		timeout: timeout,
		log:     log.With().Str("component", "resolution_service").Logger(),
	}
}

// Search resolves a raw query to a single stock. Absence is reported
// through the found flag, not an error.
func (s *Service) Search(ctx context.Context, query string) (*types.Stock, bool, error) {
	started := time.Now()

	id, err := identifier.Classify(query)
	if err != nil {
		return nil, false, err
	}

	if id.Kind() == types.KindName {
		stocks, err := s.SearchByName(ctx, id.Value(), 1)
		if err != nil {
			return nil, false, err
		}
		if len(stocks) == 0 {
			return nil, false, nil
		}
		return &stocks[0], true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stock, err := s.resolve(ctx, id)
	s.recordAsync(id.Value(), string(id.Kind()), stock != nil, time.Since(started))
	if err != nil {
		return nil, false, err
	}
	if stock == nil {
		return nil, false, nil
	}
	return stock, true, nil
}

// SearchByName resolves a free-text name to ranked candidates. L2 is tried
// first; an empty result set falls through to the provider chain, and every
// provider candidate is cached before ranking.
func (s *Service) SearchByName(ctx context.Context, name string, limit int) ([]types.Stock, error) {
	started := time.Now()
	if limit <= 0 {
		limit = 10
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stocks, err := s.repo.FindByName(ctx, name, limit)
	if err == nil && len(stocks) == 0 {
		stocks, err = s.searchProviders(ctx, name, limit)
	}
	s.recordAsync(name, string(types.KindName), len(stocks) > 0, time.Since(started))
	if err != nil {
		return nil, err
	}

	ranked := s.rank(name, stocks)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// CacheStats aggregates tier statistics and provider health.
func (s *Service) CacheStats(ctx context.Context) *CacheStatsResponse {
	l1, l2 := s.repo.Stats(ctx)
	return &CacheStatsResponse{
		L1:        l1,
		L2:        l2,
		Providers: s.chain.Health(ctx),
	}
}

// resolve runs the point-lookup path: L1 → L2 → provider chain, with the
// reverse lookup as a tertiary resolver for identifier codes no provider
// serves directly.
func (s *Service) resolve(ctx context.Context, id types.StockIdentifier) (*types.Stock, error) {
	stock, err := s.repo.Find(ctx, id)
	if err == nil && stock != nil {
		return stock, nil
	}

	stock, err = s.chain.Resolve(ctx, id)
	if stock == nil {
		if sym, ok := s.reverse.MapToSymbol(ctx, id); ok {
			if cached, cerr := s.repo.Find(ctx, sym); cerr == nil && cached != nil {
				return cached, nil
			}
			var symErr error
			stock, symErr = s.chain.Resolve(ctx, sym)
			if symErr != nil {
				err = symErr
			}
			if stock != nil {
				// Keep the original code on the record so both key
				// spaces warm up.
				s.backfillIdentifier(stock, id)
			}
		}
	}
	if stock == nil {
		return nil, err
	}

	if saveErr := s.repo.Save(ctx, stock); saveErr != nil {
		s.log.Warn().Err(saveErr).Str("symbol", stock.Symbol).Msg("cache write failed")
	}
	return stock, nil
}

func (s *Service) searchProviders(ctx context.Context, name string, limit int) ([]types.Stock, error) {
	stocks, err := s.chain.SearchByName(ctx, name, limit)
	if err != nil {
		return nil, err
	}
	for i := range stocks {
		if saveErr := s.repo.SaveNameResult(ctx, &stocks[i]); saveErr != nil {
			s.log.Warn().Err(saveErr).Str("symbol", stocks[i].Symbol).Msg("candidate cache write failed")
		}
	}
	return stocks, nil
}

func (s *Service) rank(query string, stocks []types.Stock) []types.Stock {
	if len(stocks) == 0 {
		return stocks
	}

	recent := s.history.Recent(20)
	candidates := make([]match.Candidate, 0, len(stocks))
	for _, stock := range stocks {
		m := match.Name(query, stock.Metadata.Name)
		field := types.KindName
		if sm := match.Symbol(query, stock.Symbol); symbolBetter(sm, m) {
			m = sm
			field = types.KindSymbol
		}
		candidates = append(candidates, match.Candidate{
			Stock:        stock,
			Match:        m,
			MatchedField: field,
			SearchCount:  s.history.SearchCount(stock.Symbol, string(types.KindSymbol)),
		})
	}

	ranked := s.scorer.Rank(candidates, recent)
	out := make([]types.Stock, 0, len(ranked))
	for _, c := range ranked {
		out = append(out, c.Stock)
	}
	return out
}

func symbolBetter(sym, name match.Match) bool {
	if sym.Type != name.Type {
		return sym.Type > name.Type
	}
	return sym.Score > name.Score
}

func (s *Service) backfillIdentifier(stock *types.Stock, id types.StockIdentifier) {
	switch id.Kind() {
	case types.KindNationalCode:
		if stock.NationalCode == "" {
			stock.NationalCode = id.Value()
		}
	case types.KindLocalCode:
		if stock.LocalCode == "" {
			stock.LocalCode = id.Value()
		}
	}
}

// recordAsync records history without blocking or failing the request.
func (s *Service) recordAsync(query, queryType string, found bool, elapsed time.Duration) {
	go s.history.Record(query, queryType, found, elapsed)
}
