package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlens/resolver-api/internal/types"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb, zerolog.Nop()), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleStock(), 5*time.Minute))

	got, err := store.Find(ctx, types.MustSymbol("AAPL"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, 190.5, got.Price.Current)
	assert.Less(t, got.CacheAgeSeconds, 5.0)
}

func TestRedisStoreSecondaryIdentifierKeys(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleStock(), 5*time.Minute))

	id, err := types.NewStockIdentifier(types.KindNationalCode, "US0378331005")
	require.NoError(t, err)

	got, err := store.Find(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "AAPL", got.Symbol)
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleStock(), 5*time.Minute))

	mr.FastForward(6 * time.Minute)

	got, err := store.Find(ctx, types.MustSymbol("AAPL"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreMissReturnsNil(t *testing.T) {
	store, _ := newTestRedisStore(t)

	got, err := store.Find(context.Background(), types.MustSymbol("ZZZZ"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreStats(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleStock(), 5*time.Minute))
	store.Find(ctx, types.MustSymbol("AAPL"))
	store.Find(ctx, types.MustSymbol("ZZZZ"))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "l1", stats.Tier)
	// One record under its symbol key and one under its national code key.
	assert.Equal(t, int64(2), stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}
