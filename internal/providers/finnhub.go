package providers

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketlens/resolver-api/internal/types"
)

// Finnhub is the secondary provider. It is the only adapter that can look up
// a national code directly (company profile by ISIN), so it backs the chain
// for identifier kinds the primary cannot serve.
type Finnhub struct {
	endpoint string
	apiKey   string
	http     *httpClient
	log      zerolog.Logger
}

// NewFinnhub creates the adapter. endpoint should be the API root, e.g.
// https://finnhub.io/api/v1.
func NewFinnhub(endpoint, apiKey string, timeout time.Duration, log zerolog.Logger) *Finnhub {
	return &Finnhub{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     newHTTPClient(timeout),
		log:      log.With().Str("component", "provider").Str("provider", "finnhub").Logger(),
	}
}

func (f *Finnhub) Name() string { return "finnhub" }

func (f *Finnhub) Supports(kind types.IdentifierKind) bool {
	return kind == types.KindSymbol || kind == types.KindNationalCode
}

type fhQuote struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
}

type fhProfile struct {
	Ticker       string  `json:"ticker"`
	Name         string  `json:"name"`
	Exchange     string  `json:"exchange"`
	Industry     string  `json:"finnhubIndustry"`
	MarketCap    float64 `json:"marketCapitalization"` // millions
	Country      string  `json:"country"`
	Currency     string  `json:"currency"`
	ISIN         string  `json:"isin"`
	ShareOutstan float64 `json:"shareOutstanding"`
}

type fhSearchResponse struct {
	Result []struct {
		Symbol      string `json:"symbol"`
		Description string `json:"description"`
		Type        string `json:"type"`
	} `json:"result"`
}

// FetchByIdentifier resolves a symbol or national code. National codes go
// through the company profile first to discover the ticker, then the quote
// endpoint for the price snapshot.
func (f *Finnhub) FetchByIdentifier(ctx context.Context, id types.StockIdentifier) (*types.Stock, error) {
	profile, err := f.profile(ctx, id)
	if err != nil {
		return nil, err
	}
	if profile == nil || profile.Ticker == "" {
		return nil, nil
	}

	quote, err := f.quote(ctx, profile.Ticker)
	if err != nil {
		return nil, err
	}
	if quote.Current <= 0 {
		f.log.Debug().Str("symbol", profile.Ticker).Msg("no quote data")
		return nil, nil
	}

	currency := profile.Currency
	if len(currency) != 3 {
		currency = "USD"
	}

	stock := &types.Stock{
		Identifier:   id,
		Symbol:       profile.Ticker,
		NationalCode: profile.ISIN,
		Price: types.Price{
			Current:       quote.Current,
			Change:        quote.Change,
			ChangePercent: quote.ChangePercent,
			Currency:      currency,
		},
		Metadata: types.Metadata{
			Name:      profile.Name,
			Exchange:  profile.Exchange,
			Industry:  profile.Industry,
			MarketCap: profile.MarketCap * 1e6,
			Country:   profile.Country,
		},
		DataSource:  f.Name(),
		LastUpdated: time.Now(),
	}
	if id.Kind() == types.KindNationalCode {
		stock.NationalCode = id.Value()
	}
	return stock, nil
}

// SearchByName searches symbols and hydrates up to limit candidates.
func (f *Finnhub) SearchByName(ctx context.Context, name string, limit int) ([]types.Stock, error) {
	q := url.Values{}
	q.Set("q", name)
	q.Set("token", f.apiKey)

	var resp fhSearchResponse
	if err := f.http.getJSON(ctx, f.endpoint+"/search?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	stocks := make([]types.Stock, 0, limit)
	for _, r := range resp.Result {
		if len(stocks) >= limit {
			break
		}
		id, err := types.NewStockIdentifier(types.KindSymbol, r.Symbol)
		if err != nil {
			continue
		}
		stock, err := f.FetchByIdentifier(ctx, id)
		if err != nil || stock == nil {
			f.log.Debug().Err(err).Str("symbol", r.Symbol).Msg("skipping search candidate")
			continue
		}
		if stock.Metadata.Name == "" {
			stock.Metadata.Name = r.Description
		}
		stocks = append(stocks, *stock)
	}
	return stocks, nil
}

func (f *Finnhub) profile(ctx context.Context, id types.StockIdentifier) (*fhProfile, error) {
	q := url.Values{}
	q.Set("token", f.apiKey)
	switch id.Kind() {
	case types.KindSymbol:
		q.Set("symbol", id.Value())
	case types.KindNationalCode:
		q.Set("isin", id.Value())
	default:
		return nil, fmt.Errorf("unsupported identifier kind %s", id.Kind())
	}

	var profile fhProfile
	if err := f.http.getJSON(ctx, f.endpoint+"/stock/profile2?"+q.Encode(), &profile); err != nil {
		return nil, err
	}
	if profile.Ticker == "" && id.Kind() == types.KindSymbol {
		// Quote-only listings have no profile; fall back to the raw symbol.
		profile.Ticker = id.Value()
	}
	return &profile, nil
}

func (f *Finnhub) quote(ctx context.Context, symbol string) (*fhQuote, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("token", f.apiKey)

	var quote fhQuote
	if err := f.http.getJSON(ctx, f.endpoint+"/quote?"+q.Encode(), &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}
