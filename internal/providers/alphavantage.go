package providers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketlens/resolver-api/internal/types"
)

// AlphaVantage is the primary provider: broad symbol coverage, generous
// name search, no identifier-code lookups.
type AlphaVantage struct {
	endpoint string
	apiKey   string
	http     *httpClient
	log      zerolog.Logger
}

// NewAlphaVantage creates the adapter. endpoint should be the API root,
// e.g. https://www.alphavantage.co/query.
func NewAlphaVantage(endpoint, apiKey string, timeout time.Duration, log zerolog.Logger) *AlphaVantage {
	return &AlphaVantage{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     newHTTPClient(timeout),
		log:      log.With().Str("component", "provider").Str("provider", "alphavantage").Logger(),
	}
}

func (a *AlphaVantage) Name() string { return "alphavantage" }

// Supports covers ticker symbols only; national and local codes are not
// addressable through this API.
func (a *AlphaVantage) Supports(kind types.IdentifierKind) bool {
	return kind == types.KindSymbol
}

type avGlobalQuote struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
}

type avSearchResponse struct {
	BestMatches []struct {
		Symbol   string `json:"1. symbol"`
		Name     string `json:"2. name"`
		Region   string `json:"4. region"`
		Currency string `json:"8. currency"`
	} `json:"bestMatches"`
}

// FetchByIdentifier resolves a ticker through the global quote endpoint.
func (a *AlphaVantage) FetchByIdentifier(ctx context.Context, id types.StockIdentifier) (*types.Stock, error) {
	q := url.Values{}
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", id.Value())
	q.Set("apikey", a.apiKey)

	var resp avGlobalQuote
	if err := a.http.getJSON(ctx, a.endpoint+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	if resp.GlobalQuote.Symbol == "" {
		a.log.Debug().Str("symbol", id.Value()).Msg("no quote data")
		return nil, nil
	}

	price, err := strconv.ParseFloat(resp.GlobalQuote.Price, 64)
	if err != nil || price <= 0 {
		return nil, fmt.Errorf("unusable price %q for %s", resp.GlobalQuote.Price, id.Value())
	}
	change, _ := strconv.ParseFloat(resp.GlobalQuote.Change, 64)
	changePct, _ := strconv.ParseFloat(strings.TrimSuffix(resp.GlobalQuote.ChangePercent, "%"), 64)

	return &types.Stock{
		Identifier:  id,
		Symbol:      resp.GlobalQuote.Symbol,
		Price:       types.Price{Current: price, Change: change, ChangePercent: changePct, Currency: "USD"},
		DataSource:  a.Name(),
		LastUpdated: time.Now(),
	}, nil
}

// SearchByName runs a symbol search and hydrates up to limit candidates with
// quotes. Candidates whose quote lookup fails are skipped rather than
// failing the whole search.
func (a *AlphaVantage) SearchByName(ctx context.Context, name string, limit int) ([]types.Stock, error) {
	q := url.Values{}
	q.Set("function", "SYMBOL_SEARCH")
	q.Set("keywords", name)
	q.Set("apikey", a.apiKey)

	var resp avSearchResponse
	if err := a.http.getJSON(ctx, a.endpoint+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	stocks := make([]types.Stock, 0, limit)
	for _, m := range resp.BestMatches {
		if len(stocks) >= limit {
			break
		}
		id, err := types.NewStockIdentifier(types.KindSymbol, m.Symbol)
		if err != nil {
			continue
		}
		stock, err := a.FetchByIdentifier(ctx, id)
		if err != nil || stock == nil {
			a.log.Debug().Err(err).Str("symbol", m.Symbol).Msg("skipping search candidate")
			continue
		}
		stock.Metadata.Name = m.Name
		stock.Metadata.Country = m.Region
		if m.Currency != "" {
			stock.Price.Currency = m.Currency
		}
		stocks = append(stocks, *stock)
	}
	return stocks, nil
}
