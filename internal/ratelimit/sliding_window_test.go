package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowBudget(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	sw := NewSlidingWindow("test", Config{MaxRequests: 5, Window: 60 * time.Second})
	sw.now = func() time.Time { return now }

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		dec, err := sw.Acquire(ctx, "client")
		require.NoError(t, err)
		assert.True(t, dec.Allowed, "call %d should be admitted", i+1)
		now = now.Add(time.Second)
	}

	dec, err := sw.Acquire(ctx, "client")
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Greater(t, dec.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, dec.RetryAfter, 60*time.Second)

	// Past the window the budget frees up again.
	now = base.Add(61 * time.Second)
	dec, err = sw.Acquire(ctx, "client")
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
}

func TestSlidingWindowKeysIndependent(t *testing.T) {
	sw := NewSlidingWindow("test", Config{MaxRequests: 1, Window: time.Minute})
	ctx := context.Background()

	dec, _ := sw.Acquire(ctx, "a")
	assert.True(t, dec.Allowed)
	dec, _ = sw.Acquire(ctx, "a")
	assert.False(t, dec.Allowed)

	dec, _ = sw.Acquire(ctx, "b")
	assert.True(t, dec.Allowed)
}

func TestSlidingWindowUsage(t *testing.T) {
	sw := NewSlidingWindow("test", Config{MaxRequests: 4, Window: time.Minute})
	ctx := context.Background()

	assert.Equal(t, 0.0, sw.Usage(ctx, "client"))
	sw.Acquire(ctx, "client")
	sw.Acquire(ctx, "client")
	assert.Equal(t, 0.5, sw.Usage(ctx, "client"))
}

func TestSlidingWindowCleanupDropsIdleKeys(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	sw := NewSlidingWindow("test", Config{MaxRequests: 5, Window: time.Minute})
	sw.now = func() time.Time { return now }

	ctx := context.Background()
	sw.Acquire(ctx, "idle")

	now = base.Add(10 * time.Minute)
	sw.Acquire(ctx, "active")

	sw.mu.Lock()
	defer sw.mu.Unlock()
	_, exists := sw.events["idle"]
	assert.False(t, exists)
}
