package resolution

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/marketlens/resolver-api/internal/cache"
	"github.com/marketlens/resolver-api/internal/providers"
	"github.com/marketlens/resolver-api/internal/types"
)

// fakeProvider is a scriptable in-memory provider for orchestrator tests.
type fakeProvider struct {
	mu          sync.Mutex
	name        string
	kinds       map[types.IdentifierKind]bool
	stocks      map[string]*types.Stock
	searches    map[string][]types.Stock
	fetchCalls  int
	searchCalls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Supports(kind types.IdentifierKind) bool { return f.kinds[kind] }

func (f *fakeProvider) FetchByIdentifier(_ context.Context, id types.StockIdentifier) (*types.Stock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	stock, ok := f.stocks[id.Value()]
	if !ok {
		return nil, nil
	}
	cp := *stock
	return &cp, nil
}

func (f *fakeProvider) SearchByName(_ context.Context, name string, _ int) ([]types.Stock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	return f.searches[name], nil
}

func (f *fakeProvider) Health(context.Context) providers.HealthStatus {
	return providers.HealthStatus{Provider: f.name, CircuitState: "closed"}
}

func (f *fakeProvider) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls, f.searchCalls
}

func appleStock() *types.Stock {
	return &types.Stock{
		Symbol:       "AAPL",
		NationalCode: "US0378331005",
		Price: types.Price{
			Current:       190.5,
			Change:        1.2,
			ChangePercent: 0.63,
			Currency:      "USD",
		},
		Metadata: types.Metadata{
			Name:      "Apple Inc.",
			Exchange:  "NASDAQ",
			MarketCap: 2.9e12,
			Country:   "US",
		},
		DataSource:  "fake",
		LastUpdated: time.Now(),
	}
}

func newServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resolution_test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&cache.CachedStock{}, &SearchHistoryRecord{}))
	return db
}

func newTestService(t *testing.T, fakes ...*fakeProvider) (*Service, *HistoryRecorder) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	db := newServiceTestDB(t)
	l1 := cache.NewRedisStore(rdb, zerolog.Nop())
	l2 := cache.NewGormStore(db, zerolog.Nop())
	repo := cache.NewTiered(l1, l2, 5*time.Minute, 15*time.Minute, zerolog.Nop())

	chained := make([]providers.InstrumentedProvider, 0, len(fakes))
	for _, f := range fakes {
		chained = append(chained, f)
	}
	chain := providers.NewChain(zerolog.Nop(), chained...)

	reverse := providers.NewReverseLookup("", "", time.Second, zerolog.Nop())
	history := NewHistoryRecorder(db, zerolog.Nop())

	return NewService(repo, chain, reverse, history, 2*time.Second, zerolog.Nop()), history
}

func TestSearchCodeServedFromCacheAfterFirstLookup(t *testing.T) {
	fake := &fakeProvider{
		name:   "primary",
		kinds:  map[types.IdentifierKind]bool{types.KindNationalCode: true, types.KindSymbol: true},
		stocks: map[string]*types.Stock{"US0378331005": appleStock()},
	}
	svc, _ := newTestService(t, fake)
	ctx := context.Background()

	stock, found, err := svc.Search(ctx, "US0378331005")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "AAPL", stock.Symbol)
	assert.Equal(t, 190.5, stock.Price.Current)

	fetches, _ := fake.calls()
	assert.Equal(t, 1, fetches)

	// Second lookup must be answered by the cache without touching the
	// provider, and must report a fresh cache age.
	stock, found, err = svc.Search(ctx, "US0378331005")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "AAPL", stock.Symbol)
	assert.Less(t, stock.CacheAgeSeconds, float64(5))

	fetches, _ = fake.calls()
	assert.Equal(t, 1, fetches)
}

func TestSearchReverseLookupResolvesUnsupportedCode(t *testing.T) {
	// The provider only speaks symbols, so the national code must be
	// mapped through the local reverse table before resolving.
	fake := &fakeProvider{
		name:   "symbols-only",
		kinds:  map[types.IdentifierKind]bool{types.KindSymbol: true},
		stocks: map[string]*types.Stock{"AAPL": appleStock()},
	}
	fake.stocks["AAPL"].NationalCode = ""
	svc, _ := newTestService(t, fake)

	stock, found, err := svc.Search(context.Background(), "US0378331005")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "AAPL", stock.Symbol)
	assert.Equal(t, "US0378331005", stock.NationalCode, "queried code must be backfilled")
}

func TestSearchByNameRanksAndCachesCandidates(t *testing.T) {
	fake := &fakeProvider{
		name:  "primary",
		kinds: map[types.IdentifierKind]bool{types.KindSymbol: true},
		searches: map[string][]types.Stock{
			"Apple": {
				{
					Symbol:      "APLE",
					Price:       types.Price{Current: 15.1, Currency: "USD"},
					Metadata:    types.Metadata{Name: "Apple Hospitality REIT", MarketCap: 3.5e9},
					DataSource:  "fake",
					LastUpdated: time.Now(),
				},
				*appleStock(),
			},
		},
	}
	svc, _ := newTestService(t, fake)
	ctx := context.Background()

	stocks, err := svc.SearchByName(ctx, "Apple", 10)
	require.NoError(t, err)
	require.Len(t, stocks, 2)
	assert.Equal(t, "AAPL", stocks[0].Symbol, "best name match with the larger cap ranks first")

	_, searches := fake.calls()
	assert.Equal(t, 1, searches)

	// Candidates were cached, so a repeat query stays off the providers.
	stocks, err = svc.SearchByName(ctx, "Apple", 10)
	require.NoError(t, err)
	require.NotEmpty(t, stocks)

	_, searches = fake.calls()
	assert.Equal(t, 1, searches)
}

func TestSearchFreeTextQueryTakesNamePath(t *testing.T) {
	fake := &fakeProvider{
		name:  "primary",
		kinds: map[types.IdentifierKind]bool{types.KindSymbol: true},
		searches: map[string][]types.Stock{
			"apple": {*appleStock()},
		},
	}
	svc, _ := newTestService(t, fake)

	stock, found, err := svc.Search(context.Background(), "apple")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "AAPL", stock.Symbol)

	fetches, searches := fake.calls()
	assert.Equal(t, 0, fetches)
	assert.Equal(t, 1, searches)
}

func TestSearchEmptyQueryIsValidationError(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.Search(context.Background(), "   ")
	require.Error(t, err)
	var verr *types.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSearchMissIsNotAnError(t *testing.T) {
	fake := &fakeProvider{
		name:  "primary",
		kinds: map[types.IdentifierKind]bool{types.KindSymbol: true},
	}
	svc, _ := newTestService(t, fake)

	stock, found, err := svc.Search(context.Background(), "ZZZZ")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, stock)
}

func TestSearchRecordsHistoryAsynchronously(t *testing.T) {
	fake := &fakeProvider{
		name:   "primary",
		kinds:  map[types.IdentifierKind]bool{types.KindNationalCode: true},
		stocks: map[string]*types.Stock{"US0378331005": appleStock()},
	}
	svc, history := newTestService(t, fake)

	_, _, err := svc.Search(context.Background(), "US0378331005")
	require.NoError(t, err)

	// Recording is fire and forget; poll for the row.
	require.Eventually(t, func() bool {
		return history.SearchCount("US0378331005", string(types.KindNationalCode)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCacheStatsReportsTiersAndProviders(t *testing.T) {
	fake := &fakeProvider{
		name:   "primary",
		kinds:  map[types.IdentifierKind]bool{types.KindNationalCode: true},
		stocks: map[string]*types.Stock{"US0378331005": appleStock()},
	}
	svc, _ := newTestService(t, fake)
	ctx := context.Background()

	_, _, err := svc.Search(ctx, "US0378331005")
	require.NoError(t, err)

	stats := svc.CacheStats(ctx)
	assert.Equal(t, "l1", stats.L1.Tier)
	assert.Equal(t, "l2", stats.L2.Tier)
	assert.Greater(t, stats.L2.Entries, int64(0))
	require.Len(t, stats.Providers, 1)
	assert.Equal(t, "primary", stats.Providers[0].Provider)
}
