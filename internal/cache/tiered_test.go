package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlens/resolver-api/internal/types"
)

func newTestTiered(t *testing.T) (*Tiered, *RedisStore, *GormStore) {
	t.Helper()
	l1, _ := newTestRedisStore(t)
	l2 := NewGormStore(newTestDB(t), zerolog.Nop())
	return NewTiered(l1, l2, 5*time.Minute, 15*time.Minute, zerolog.Nop()), l1, l2
}

func TestTieredSaveWritesBothTiers(t *testing.T) {
	tiered, l1, l2 := newTestTiered(t)
	ctx := context.Background()

	require.NoError(t, tiered.Save(ctx, sampleStock()))

	got, err := l1.Find(ctx, types.MustSymbol("AAPL"))
	require.NoError(t, err)
	assert.NotNil(t, got)

	got, err = l2.Find(ctx, types.MustSymbol("AAPL"))
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestTieredL2HitWritesBackToL1(t *testing.T) {
	tiered, l1, l2 := newTestTiered(t)
	ctx := context.Background()

	// Seed only L2, as if L1 had evicted the entry.
	require.NoError(t, l2.Save(ctx, sampleStock(), 5*time.Minute))

	got, err := tiered.Find(ctx, types.MustSymbol("AAPL"))
	require.NoError(t, err)
	require.NotNil(t, got)

	warmed, err := l1.Find(ctx, types.MustSymbol("AAPL"))
	require.NoError(t, err)
	assert.NotNil(t, warmed, "l2 hit must warm l1")
}

func TestTieredMissIsNotAnError(t *testing.T) {
	tiered, _, _ := newTestTiered(t)

	got, err := tiered.Find(context.Background(), types.MustSymbol("ZZZZ"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

// failingStore errors on every operation; the tiered repository must treat
// it as a miss rather than aborting.
type failingStore struct{}

func (f *failingStore) Find(context.Context, types.StockIdentifier) (*types.Stock, error) {
	return nil, errors.New("tier down")
}

func (f *failingStore) FindByName(context.Context, string, int) ([]types.Stock, error) {
	return nil, errors.New("tier down")
}

func (f *failingStore) Save(context.Context, *types.Stock, time.Duration) error {
	return errors.New("tier down")
}

func (f *failingStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, errors.New("tier down")
}

func (f *failingStore) Stats(context.Context) (Stats, error) {
	return Stats{}, errors.New("tier down")
}

func TestTieredL1FailureFallsThroughToL2(t *testing.T) {
	l2 := NewGormStore(newTestDB(t), zerolog.Nop())
	tiered := NewTiered(&failingStore{}, l2, 5*time.Minute, 15*time.Minute, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, l2.Save(ctx, sampleStock(), 5*time.Minute))

	got, err := tiered.Find(ctx, types.MustSymbol("AAPL"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "AAPL", got.Symbol)
}

func TestTieredFindByNameUsesL2Only(t *testing.T) {
	tiered, _, l2 := newTestTiered(t)
	ctx := context.Background()

	require.NoError(t, l2.Save(ctx, sampleStock(), 5*time.Minute))

	stocks, err := tiered.FindByName(ctx, "Apple", 5)
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	assert.Equal(t, "AAPL", stocks[0].Symbol)
}

func TestTieredStats(t *testing.T) {
	tiered, _, _ := newTestTiered(t)
	ctx := context.Background()

	require.NoError(t, tiered.Save(ctx, sampleStock()))
	tiered.Find(ctx, types.MustSymbol("AAPL"))

	l1, l2 := tiered.Stats(ctx)
	assert.Equal(t, "l1", l1.Tier)
	assert.Equal(t, "l2", l2.Tier)
	assert.Greater(t, l1.Entries, int64(0))
	assert.Greater(t, l2.Entries, int64(0))
}
