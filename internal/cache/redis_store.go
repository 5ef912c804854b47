package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/marketlens/resolver-api/internal/types"
)

const redisKeyPrefix = "stock:"

// redisRecord is the msgpack-encoded L1 value. StoredAt lets reads derive
// cache age without a second round-trip.
type redisRecord struct {
	Symbol       string    `msgpack:"symbol"`
	NationalCode string    `msgpack:"national_code"`
	LocalCode    string    `msgpack:"local_code"`
	Name         string    `msgpack:"name"`
	Price        float64   `msgpack:"price"`
	Change       float64   `msgpack:"change"`
	ChangePct    float64   `msgpack:"change_pct"`
	Currency     string    `msgpack:"currency"`
	Exchange     string    `msgpack:"exchange"`
	Sector       string    `msgpack:"sector"`
	Industry     string    `msgpack:"industry"`
	MarketCap    float64   `msgpack:"market_cap"`
	Country      string    `msgpack:"country"`
	DataSource   string    `msgpack:"data_source"`
	LastUpdated  time.Time `msgpack:"last_updated"`
	StoredAt     time.Time `msgpack:"stored_at"`
	CacheHits    int64     `msgpack:"cache_hits"`
}

// RedisStore is the L1 tier: msgpack values under (kind, value) keys with
// native TTL expiry. Hit/miss counters are process-local.
type RedisStore struct {
	rdb redis.UniversalClient
	log zerolog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisStore creates the L1 tier on an existing Redis client.
func NewRedisStore(rdb redis.UniversalClient, log zerolog.Logger) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		log: log.With().Str("component", "cache_l1").Logger(),
	}
}

// Find looks up the point key for id. Read access bumps the entry's hit
// counter in place without touching its TTL.
func (s *RedisStore) Find(ctx context.Context, id types.StockIdentifier) (*types.Stock, error) {
	key := redisKeyPrefix + cacheKey(id.PrimaryIdentifier())

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.misses.Add(1)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec redisRecord
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("dropping undecodable cache entry")
		s.rdb.Del(ctx, key)
		s.misses.Add(1)
		return nil, nil
	}

	s.hits.Add(1)
	s.bumpHits(ctx, key, &rec)

	stock := rec.toStock(time.Now())
	stock.Identifier = id
	return &stock, nil
}

// FindByName is unsupported on L1: Redis has no substring search over
// values. The tiered repository only asks L2.
func (s *RedisStore) FindByName(ctx context.Context, name string, limit int) ([]types.Stock, error) {
	return nil, nil
}

// Save writes the record under every identifier the stock carries, so a
// later lookup by national code hits the same entry a symbol lookup warmed.
func (s *RedisStore) Save(ctx context.Context, stock *types.Stock, ttl time.Duration) error {
	rec := recordFromStock(stock)

	raw, err := msgpack.Marshal(&rec)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	for _, key := range s.keysFor(stock) {
		pipe.Set(ctx, key, raw, ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteExpired is a no-op: Redis evicts on TTL natively.
func (s *RedisStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

// Stats reports entry count from the keyspace and process-local hit/miss
// counters.
func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Tier: "l1", Hits: s.hits.Load(), Misses: s.misses.Load()}

	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, redisKeyPrefix+"*", 500).Result()
		if err != nil {
			return stats, err
		}
		stats.Entries += int64(len(keys))
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return stats, nil
}

func (s *RedisStore) keysFor(stock *types.Stock) []string {
	keys := make([]string, 0, 3)
	if stock.Symbol != "" {
		keys = append(keys, redisKeyPrefix+cacheKey(types.KindSymbol, stock.Symbol))
	}
	if stock.NationalCode != "" {
		keys = append(keys, redisKeyPrefix+cacheKey(types.KindNationalCode, stock.NationalCode))
	}
	if stock.LocalCode != "" {
		keys = append(keys, redisKeyPrefix+cacheKey(types.KindLocalCode, stock.LocalCode))
	}
	return keys
}

// bumpHits rewrites the entry with an incremented counter, keeping the
// remaining TTL. Best effort: a lost update here only undercounts.
func (s *RedisStore) bumpHits(ctx context.Context, key string, rec *redisRecord) {
	rec.CacheHits++
	raw, err := msgpack.Marshal(rec)
	if err != nil {
		return
	}
	s.rdb.Set(ctx, key, raw, redis.KeepTTL)
}

func recordFromStock(stock *types.Stock) redisRecord {
	return redisRecord{
		Symbol:       stock.Symbol,
		NationalCode: stock.NationalCode,
		LocalCode:    stock.LocalCode,
		Name:         stock.Metadata.Name,
		Price:        stock.Price.Current,
		Change:       stock.Price.Change,
		ChangePct:    stock.Price.ChangePercent,
		Currency:     stock.Price.Currency,
		Exchange:     stock.Metadata.Exchange,
		Sector:       stock.Metadata.Sector,
		Industry:     stock.Metadata.Industry,
		MarketCap:    stock.Metadata.MarketCap,
		Country:      stock.Metadata.Country,
		DataSource:   stock.DataSource,
		LastUpdated:  stock.LastUpdated,
		StoredAt:     time.Now(),
	}
}

func (r *redisRecord) toStock(now time.Time) types.Stock {
	return types.Stock{
		Symbol:       r.Symbol,
		NationalCode: r.NationalCode,
		LocalCode:    r.LocalCode,
		Price: types.Price{
			Current:       r.Price,
			Change:        r.Change,
			ChangePercent: r.ChangePct,
			Currency:      r.Currency,
		},
		Metadata: types.Metadata{
			Name:      r.Name,
			Exchange:  r.Exchange,
			Sector:    r.Sector,
			Industry:  r.Industry,
			MarketCap: r.MarketCap,
			Country:   r.Country,
		},
		DataSource:      r.DataSource,
		LastUpdated:     r.LastUpdated,
		CacheAgeSeconds: now.Sub(r.StoredAt).Seconds(),
	}
}
