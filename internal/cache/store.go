// Package cache implements the tiered repository for resolved stocks: a
// Redis L1 with native TTLs and a relational L2 with an explicit expiry
// column and a periodic sweep.
package cache

import (
	"context"
	"time"

	"github.com/marketlens/resolver-api/internal/types"
)

// Stats is one tier's view of its own activity.
type Stats struct {
	Tier    string `json:"tier"`
	Entries int64  `json:"entries"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
}

// Store is the uniform tier contract. Find returns (nil, nil) on a miss;
// absence is an expected outcome, not an error.
type Store interface {
	Find(ctx context.Context, id types.StockIdentifier) (*types.Stock, error)
	// FindByName performs a substring search over cached names. Tiers
	// without substring support return (nil, nil).
	FindByName(ctx context.Context, name string, limit int) ([]types.Stock, error)
	Save(ctx context.Context, stock *types.Stock, ttl time.Duration) error
	// DeleteExpired removes entries whose expiry precedes before,
	// returning how many were dropped.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	Stats(ctx context.Context) (Stats, error)
}

// cacheKey builds the point-lookup key space: (kind, normalized value).
// Name lookups never share this space.
func cacheKey(kind types.IdentifierKind, value string) string {
	return string(kind) + ":" + value
}
