package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisSlidingWindow implements the same sliding-window semantics across
// processes using a sorted set per key, scores being request timestamps.
// Atomicity comes from pipelined multi-command execution, not client locks.
//
// On backend unavailability it fails open: keeping the lookup path available
// beats strict quota enforcement.
type RedisSlidingWindow struct {
	name string
	cfg  Config
	rdb  redis.UniversalClient
	log  zerolog.Logger

	seq atomic.Uint64
}

// NewRedisSlidingWindow creates a named distributed limiter.
func NewRedisSlidingWindow(name string, cfg Config, rdb redis.UniversalClient, log zerolog.Logger) *RedisSlidingWindow {
	return &RedisSlidingWindow{
		name: name,
		cfg:  cfg,
		rdb:  rdb,
		log:  log.With().Str("component", "redis_rate_limiter").Str("limiter", name).Logger(),
	}
}

func (r *RedisSlidingWindow) redisKey(key string) string {
	return "ratelimit:" + r.name + ":" + key
}

// Acquire trims expired members, adds the current request and counts the
// window in one pipeline. If the post-add count exceeds the budget, the
// just-added member is removed again and the call is rejected.
func (r *RedisSlidingWindow) Acquire(ctx context.Context, key string) (Decision, error) {
	now := time.Now()
	rkey := r.redisKey(key)
	member := fmt.Sprintf("%d-%d", now.UnixNano(), r.seq.Add(1))
	windowStart := now.Add(-r.cfg.Window).UnixNano()

	pipe := r.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, rkey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	card := pipe.ZCard(ctx, rkey)
	pipe.Expire(ctx, rkey, r.cfg.Window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("redis unavailable, failing open")
		return Decision{Allowed: true, Remaining: r.cfg.MaxRequests}, nil
	}

	count := int(card.Val())
	if count > r.cfg.MaxRequests {
		r.rdb.ZRem(ctx, rkey, member)
		return Decision{Allowed: false, RetryAfter: r.retryAfter(ctx, rkey, now)}, nil
	}

	return Decision{Allowed: true, Remaining: r.cfg.MaxRequests - count}, nil
}

// retryAfter derives the wait from the oldest timestamp still in the window.
func (r *RedisSlidingWindow) retryAfter(ctx context.Context, rkey string, now time.Time) time.Duration {
	zs, err := r.rdb.ZRangeWithScores(ctx, rkey, 0, 0).Result()
	if err != nil || len(zs) == 0 {
		return r.cfg.Window
	}
	oldest := time.Unix(0, int64(zs[0].Score))
	retryAfter := oldest.Add(r.cfg.Window).Sub(now)
	if retryAfter < 0 {
		return 0
	}
	return retryAfter
}

// Usage reports the consumed fraction of the window for key. Backend errors
// read as zero usage, consistent with fail-open admission.
func (r *RedisSlidingWindow) Usage(ctx context.Context, key string) float64 {
	if r.cfg.MaxRequests == 0 {
		return 0
	}
	windowStart := time.Now().Add(-r.cfg.Window).UnixNano()
	count, err := r.rdb.ZCount(ctx, r.redisKey(key), strconv.FormatInt(windowStart, 10), "+inf").Result()
	if err != nil {
		return 0
	}
	return float64(count) / float64(r.cfg.MaxRequests)
}
