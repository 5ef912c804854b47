package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/marketlens/resolver-api/internal/types"
)

// GormStore is the L2 tier: one row per security with an explicit expires_at
// column. Expired rows read as misses and are removed by the sweeper.
type GormStore struct {
	db  *gorm.DB
	log zerolog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewGormStore creates the L2 tier on an existing gorm connection.
func NewGormStore(db *gorm.DB, log zerolog.Logger) *GormStore {
	return &GormStore{
		db:  db,
		log: log.With().Str("component", "cache_l2").Logger(),
	}
}

// Find looks up the column matching the identifier kind. A hit increments
// the row's cache_hits counter.
func (s *GormStore) Find(ctx context.Context, id types.StockIdentifier) (*types.Stock, error) {
	column, err := columnFor(id.Kind())
	if err != nil {
		return nil, err
	}

	var row CachedStock
	err = s.db.WithContext(ctx).Where(column+" = ?", id.Value()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.misses.Add(1)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if row.ExpiresAt.Before(now) {
		s.misses.Add(1)
		return nil, nil
	}

	s.hits.Add(1)
	if err := s.db.WithContext(ctx).Model(&row).
		UpdateColumn("cache_hits", gorm.Expr("cache_hits + 1")).Error; err != nil {
		s.log.Warn().Err(err).Str("symbol", row.Symbol).Msg("failed to bump cache hits")
	}

	stock := row.toStock(now)
	stock.Identifier = id
	return &stock, nil
}

// FindByName matches cached names and symbols by substring, skipping
// expired rows.
func (s *GormStore) FindByName(ctx context.Context, name string, limit int) ([]types.Stock, error) {
	var rows []CachedStock
	pattern := "%" + name + "%"
	err := s.db.WithContext(ctx).
		Where("(name LIKE ? OR symbol LIKE ?) AND expires_at > ?", pattern, pattern, time.Now()).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	now := time.Now()
	stocks := make([]types.Stock, 0, len(rows))
	for i := range rows {
		stocks = append(stocks, rows[i].toStock(now))
	}
	return stocks, nil
}

// Save upserts by symbol. A refresh overwrites price and metadata and
// extends expires_at but keeps the accumulated cache_hits.
func (s *GormStore) Save(ctx context.Context, stock *types.Stock, ttl time.Duration) error {
	if stock.Symbol == "" {
		return fmt.Errorf("cannot cache stock without a symbol")
	}
	expiresAt := time.Now().Add(ttl)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row CachedStock
		err := tx.Where("symbol = ?", stock.Symbol).First(&row).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		row.applyStock(stock, expiresAt)
		return tx.Save(&row).Error
	})
}

// DeleteExpired sweeps rows whose expiry precedes before. The delete is
// unscoped: a soft-deleted row would still occupy the symbol unique index
// and block the next Save of that security.
func (s *GormStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Unscoped().
		Where("expires_at < ?", before).
		Delete(&CachedStock{})
	return res.RowsAffected, res.Error
}

// Stats reports live row count plus process-local hit/miss counters.
func (s *GormStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Tier: "l2", Hits: s.hits.Load(), Misses: s.misses.Load()}
	err := s.db.WithContext(ctx).Model(&CachedStock{}).
		Where("expires_at > ?", time.Now()).
		Count(&stats.Entries).Error
	return stats, err
}

func columnFor(kind types.IdentifierKind) (string, error) {
	switch kind {
	case types.KindSymbol:
		return "symbol", nil
	case types.KindNationalCode:
		return "national_code", nil
	case types.KindLocalCode:
		return "local_code", nil
	default:
		return "", fmt.Errorf("no point-lookup column for identifier kind %s", kind)
	}
}
