package cache

import (
	"time"

	"gorm.io/gorm"

	"github.com/marketlens/resolver-api/internal/types"
)

// CachedStock is the L2 row for a resolved security. At most one identifier
// column is authoritative; the others are backfilled opportunistically when
// providers expose them.
type CachedStock struct {
	gorm.Model   `json:"-"`
	Symbol       string `gorm:"uniqueIndex" json:"symbol"`
	NationalCode string `gorm:"index" json:"national_code"`
	LocalCode    string `gorm:"index" json:"local_code"`
	Name         string `gorm:"index" json:"name"`

	PriceCurrent  float64 `json:"price_current"`
	PriceChange   float64 `json:"price_change"`
	ChangePercent float64 `json:"change_percent"`
	Currency      string  `json:"currency"`

	Exchange  string  `json:"exchange"`
	Sector    string  `json:"sector"`
	Industry  string  `json:"industry"`
	MarketCap float64 `json:"market_cap"`
	Country   string  `json:"country"`

	DataSource string    `json:"data_source"`
	ExpiresAt  time.Time `gorm:"index" json:"expires_at"`
	CacheHits  int64     `json:"cache_hits"`
}

func (r *CachedStock) toStock(now time.Time) types.Stock {
	stock := types.Stock{
		Symbol:       r.Symbol,
		NationalCode: r.NationalCode,
		LocalCode:    r.LocalCode,
		Price: types.Price{
			Current:       r.PriceCurrent,
			Change:        r.PriceChange,
			ChangePercent: r.ChangePercent,
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
		LastUpdated:     r.UpdatedAt,
		CacheAgeSeconds: now.Sub(r.UpdatedAt).Seconds(),
	}
	if id, err := types.NewStockIdentifier(types.KindSymbol, r.Symbol); err == nil {
		stock.Identifier = id
	}
	return stock
}

// applyStock overwrites the refreshable fields. CacheHits is deliberately
// left alone: a refresh extends the entry's life without resetting its
// popularity signal.
func (r *CachedStock) applyStock(stock *types.Stock, expiresAt time.Time) {
	r.Symbol = stock.Symbol
	if stock.NationalCode != "" {
		r.NationalCode = stock.NationalCode
	}
	if stock.LocalCode != "" {
		r.LocalCode = stock.LocalCode
	}
	if stock.Metadata.Name != "" {
		r.Name = stock.Metadata.Name
	}
	r.PriceCurrent = stock.Price.Current
	r.PriceChange = stock.Price.Change
	r.ChangePercent = stock.Price.ChangePercent
	r.Currency = stock.Price.Currency
	r.Exchange = stock.Metadata.Exchange
	r.Sector = stock.Metadata.Sector
	r.Industry = stock.Metadata.Industry
	if stock.Metadata.MarketCap > 0 {
		r.MarketCap = stock.Metadata.MarketCap
	}
	if stock.Metadata.Country != "" {
		r.Country = stock.Metadata.Country
	}
	r.DataSource = stock.DataSource
	r.ExpiresAt = expiresAt
}
