package types

import (
	"time"
)

// Price is an immutable snapshot of a security's trading price.
type Price struct {
	Current       float64 `json:"current"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Currency      string  `json:"currency"` // 3-letter code
}

// Valid reports whether the snapshot satisfies the price invariants.
func (p Price) Valid() bool {
	return p.Current > 0 && len(p.Currency) == 3
}

// Metadata holds descriptive fields for a security.
type Metadata struct {
	Name      string  `json:"name"`
	Exchange  string  `json:"exchange"`
	Sector    string  `json:"sector"`
	Industry  string  `json:"industry"`
	MarketCap float64 `json:"market_cap"`
	Country   string  `json:"country"`
}

// Stock is the aggregate returned by the resolution core. Identifier fields
// beyond the authoritative one are opportunistically backfilled by the cache
// tiers when providers expose them.
type Stock struct {
	Identifier   StockIdentifier `json:"-"`
	Symbol       string          `json:"symbol"`
	NationalCode string          `json:"national_code,omitempty"`
	LocalCode    string          `json:"local_code,omitempty"`
	Price        Price           `json:"price"`
	Metadata     Metadata        `json:"metadata"`
	DataSource   string          `json:"data_source"`
	LastUpdated  time.Time       `json:"last_updated"`

	// CacheAgeSeconds is derived, never stored: repositories recompute it
	// from the cache entry timestamp on every read. Zero for fresh fetches.
	CacheAgeSeconds float64 `json:"cache_age_seconds"`
}
