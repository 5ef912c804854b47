package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlens/resolver-api/internal/breaker"
	"github.com/marketlens/resolver-api/internal/ratelimit"
	"github.com/marketlens/resolver-api/internal/types"
)

// fakeProvider is a scriptable provider for chain tests.
type fakeProvider struct {
	name    string
	kinds   map[types.IdentifierKind]bool
	stock   *types.Stock
	results []types.Stock
	err     error
	calls   int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Supports(kind types.IdentifierKind) bool { return f.kinds[kind] }

func (f *fakeProvider) FetchByIdentifier(ctx context.Context, id types.StockIdentifier) (*types.Stock, error) {
	f.calls++
	return f.stock, f.err
}

func (f *fakeProvider) SearchByName(ctx context.Context, name string, limit int) ([]types.Stock, error) {
	f.calls++
	return f.results, f.err
}

func symbolKinds() map[types.IdentifierKind]bool {
	return map[types.IdentifierKind]bool{types.KindSymbol: true}
}

func instrument(p Provider) *Instrumented {
	limiter := ratelimit.NewSlidingWindow(p.Name(), ratelimit.Config{MaxRequests: 1000, Window: time.Minute})
	cb := breaker.New(p.Name(), breaker.DefaultSettings(), zerolog.Nop())
	return NewInstrumented(p, limiter, cb, zerolog.Nop())
}

func aaplStock(source string) *types.Stock {
	return &types.Stock{
		Symbol:      "AAPL",
		Price:       types.Price{Current: 190.0, Currency: "USD"},
		DataSource:  source,
		LastUpdated: time.Now(),
	}
}

func TestChainStopsAtFirstSuccess(t *testing.T) {
	primary := &fakeProvider{name: "primary", kinds: symbolKinds(), stock: aaplStock("primary")}
	secondary := &fakeProvider{name: "secondary", kinds: symbolKinds(), stock: aaplStock("secondary")}
	chain := NewChain(zerolog.Nop(), instrument(primary), instrument(secondary))

	stock, err := chain.Resolve(context.Background(), types.MustSymbol("AAPL"))
	require.NoError(t, err)
	require.NotNil(t, stock)
	assert.Equal(t, "primary", stock.DataSource)
	assert.Equal(t, 0, secondary.calls)
}

func TestChainAdvancesOnError(t *testing.T) {
	primary := &fakeProvider{name: "primary", kinds: symbolKinds(), err: errors.New("upstream down")}
	secondary := &fakeProvider{name: "secondary", kinds: symbolKinds(), stock: aaplStock("secondary")}
	chain := NewChain(zerolog.Nop(), instrument(primary), instrument(secondary))

	stock, err := chain.Resolve(context.Background(), types.MustSymbol("AAPL"))
	require.NoError(t, err)
	require.NotNil(t, stock)
	assert.Equal(t, "secondary", stock.DataSource)
}

func TestChainSkipsUnsupportedKinds(t *testing.T) {
	symbolOnly := &fakeProvider{name: "symbol-only", kinds: symbolKinds(), stock: aaplStock("symbol-only")}
	isinCapable := &fakeProvider{
		name:  "isin-capable",
		kinds: map[types.IdentifierKind]bool{types.KindSymbol: true, types.KindNationalCode: true},
		stock: aaplStock("isin-capable"),
	}
	chain := NewChain(zerolog.Nop(), instrument(symbolOnly), instrument(isinCapable))

	id, err := types.NewStockIdentifier(types.KindNationalCode, "US0378331005")
	require.NoError(t, err)

	stock, err := chain.Resolve(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, stock)
	assert.Equal(t, "isin-capable", stock.DataSource)
	assert.Equal(t, 0, symbolOnly.calls, "unsupported provider must not burn quota")
}

func TestChainExhaustionReturnsLastError(t *testing.T) {
	a := &fakeProvider{name: "a", kinds: symbolKinds(), err: errors.New("a down")}
	b := &fakeProvider{name: "b", kinds: symbolKinds(), err: errors.New("b down")}
	chain := NewChain(zerolog.Nop(), instrument(a), instrument(b))

	stock, err := chain.Resolve(context.Background(), types.MustSymbol("AAPL"))
	assert.Nil(t, stock)

	var extErr *types.ExternalServiceError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, "b", extErr.Provider)
}

func TestChainAllMissesIsCleanMiss(t *testing.T) {
	a := &fakeProvider{name: "a", kinds: symbolKinds()}
	b := &fakeProvider{name: "b", kinds: symbolKinds()}
	chain := NewChain(zerolog.Nop(), instrument(a), instrument(b))

	stock, err := chain.Resolve(context.Background(), types.MustSymbol("ZZZZ"))
	assert.Nil(t, stock)
	assert.NoError(t, err)
}

func TestChainOpenBreakerSkipsNetworkButTriesFallback(t *testing.T) {
	failing := &fakeProvider{name: "failing", kinds: symbolKinds(), err: errors.New("down")}
	healthy := &fakeProvider{name: "healthy", kinds: symbolKinds(), stock: aaplStock("healthy")}

	failingWrapped := instrument(failing)
	chain := NewChain(zerolog.Nop(), failingWrapped, instrument(healthy))
	ctx := context.Background()

	// Five consecutive failures trip the default breaker.
	for i := 0; i < 5; i++ {
		stock, err := chain.Resolve(ctx, types.MustSymbol("AAPL"))
		require.NoError(t, err)
		assert.Equal(t, "healthy", stock.DataSource)
	}
	assert.Equal(t, 5, failing.calls)

	// Breaker is open now: the failing provider is rejected locally while
	// the fallback still serves.
	stock, err := chain.Resolve(ctx, types.MustSymbol("AAPL"))
	require.NoError(t, err)
	assert.Equal(t, "healthy", stock.DataSource)
	assert.Equal(t, 5, failing.calls, "no network call while breaker is open")
	assert.Equal(t, breaker.StateOpen.String(), failingWrapped.Health(ctx).CircuitState)
}

func TestChainNameSearchFallback(t *testing.T) {
	empty := &fakeProvider{name: "empty", kinds: symbolKinds()}
	full := &fakeProvider{name: "full", kinds: symbolKinds(), results: []types.Stock{*aaplStock("full")}}
	chain := NewChain(zerolog.Nop(), instrument(empty), instrument(full))

	stocks, err := chain.SearchByName(context.Background(), "apple", 5)
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	assert.Equal(t, "full", stocks[0].DataSource)
}

func TestInstrumentedRateLimitRejection(t *testing.T) {
	p := &fakeProvider{name: "limited", kinds: symbolKinds(), stock: aaplStock("limited")}
	limiter := ratelimit.NewSlidingWindow("limited", ratelimit.Config{MaxRequests: 1, Window: time.Minute})
	cb := breaker.New("limited", breaker.DefaultSettings(), zerolog.Nop())
	wrapped := NewInstrumented(p, limiter, cb, zerolog.Nop())
	ctx := context.Background()

	_, err := wrapped.FetchByIdentifier(ctx, types.MustSymbol("AAPL"))
	require.NoError(t, err)

	_, err = wrapped.FetchByIdentifier(ctx, types.MustSymbol("AAPL"))
	var rlErr *types.RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, 1, p.calls, "rejected call must not reach the provider")
}

func TestReverseLookupLocalTable(t *testing.T) {
	rl := NewReverseLookup("", "", time.Second, zerolog.Nop())

	id, err := types.NewStockIdentifier(types.KindNationalCode, "US0378331005")
	require.NoError(t, err)

	sym, ok := rl.MapToSymbol(context.Background(), id)
	require.True(t, ok)
	assert.Equal(t, types.KindSymbol, sym.Kind())
	assert.Equal(t, "AAPL", sym.Value())

	unknown, err := types.NewStockIdentifier(types.KindNationalCode, "XX0000000009")
	require.NoError(t, err)
	_, ok = rl.MapToSymbol(context.Background(), unknown)
	assert.False(t, ok)
}
