package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketlens/resolver-api/internal/types"
)

// symbolTable is the local mapping consulted before any network reverse
// lookup. Entries cover the identifiers seen most often in search traffic.
var symbolTable = map[string]string{
	// national codes
	"US0378331005": "AAPL",
	"US5949181045": "MSFT",
	"US02079K3059": "GOOGL",
	"US0231351067": "AMZN",
	"US88160R1014": "TSLA",
	"US30303M1027": "META",
	"US67066G1040": "NVDA",
	"US0846707026": "BRK.B",
	// local codes
	"601398": "1398.HK",
	"005930": "005930.KS",
	"7203A1": "TM",
}

// ReverseLookup resolves numeric identifier codes to ticker symbols: local
// table first, then a best-effort OpenFIGI-style mapping call. It is a
// tertiary resolver; failures here never surface to the caller directly.
type ReverseLookup struct {
	endpoint string
	apiKey   string
	http     *httpClient
	log      zerolog.Logger
}

// NewReverseLookup creates the resolver. An empty endpoint disables the
// network path, leaving only the local table.
func NewReverseLookup(endpoint, apiKey string, timeout time.Duration, log zerolog.Logger) *ReverseLookup {
	return &ReverseLookup{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     newHTTPClient(timeout),
		log:      log.With().Str("component", "reverse_lookup").Logger(),
	}
}

type figiMappingRequest struct {
	IDType  string `json:"idType"`
	IDValue string `json:"idValue"`
}

type figiMappingResponse []struct {
	Data []struct {
		Ticker string `json:"ticker"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

// MapToSymbol resolves a national or local code to a symbol identifier.
// Returns a zero identifier and false when nothing matched.
func (r *ReverseLookup) MapToSymbol(ctx context.Context, id types.StockIdentifier) (types.StockIdentifier, bool) {
	if id.Kind() != types.KindNationalCode && id.Kind() != types.KindLocalCode {
		return types.StockIdentifier{}, false
	}

	if ticker, ok := symbolTable[id.Value()]; ok {
		sym, err := types.NewStockIdentifier(types.KindSymbol, ticker)
		if err == nil {
			return sym, true
		}
	}

	if r.endpoint == "" {
		return types.StockIdentifier{}, false
	}

	ticker, err := r.remoteLookup(ctx, id)
	if err != nil {
		r.log.Warn().Err(err).Str("identifier", id.String()).Msg("reverse lookup failed")
		return types.StockIdentifier{}, false
	}
	if ticker == "" {
		return types.StockIdentifier{}, false
	}

	sym, err := types.NewStockIdentifier(types.KindSymbol, ticker)
	if err != nil {
		return types.StockIdentifier{}, false
	}
	return sym, true
}

func (r *ReverseLookup) remoteLookup(ctx context.Context, id types.StockIdentifier) (string, error) {
	idType := "ID_ISIN"
	if id.Kind() == types.KindLocalCode {
		idType = "ID_EXCH_SYMBOL"
	}

	body, err := json.Marshal([]figiMappingRequest{{IDType: idType, IDValue: id.Value()}})
	if err != nil {
		return "", err
	}

	headers := map[string]string{}
	if r.apiKey != "" {
		headers["X-OPENFIGI-APIKEY"] = r.apiKey
	}

	var resp figiMappingResponse
	if err := r.http.postJSON(ctx, r.endpoint+"/v3/mapping", headers, bytes.NewReader(body), &resp); err != nil {
		return "", err
	}

	if len(resp) == 0 {
		return "", nil
	}
	if resp[0].Error != "" {
		return "", fmt.Errorf("mapping error: %s", resp[0].Error)
	}
	if len(resp[0].Data) == 0 {
		return "", nil
	}
	return resp[0].Data[0].Ticker, nil
}
