// Package identifier classifies raw query strings into typed security
// identifiers. Classification is pure: no I/O, deterministic output.
package identifier

import (
	"regexp"
	"strings"

	"github.com/marketlens/resolver-api/internal/types"
)

var (
	nationalCodePattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)
	localCodePattern    = regexp.MustCompile(`^[A-Z0-9]{6}$`)
	digitPattern        = regexp.MustCompile(`[0-9]`)
	alphaPattern        = regexp.MustCompile(`^[A-Za-z]+$`)
	symbolCharsPattern  = regexp.MustCompile(`^[A-Z0-9.\-]+$`)
)

// knownTickers disambiguates popular symbols that the length heuristics
// alone would misread (e.g. GOOGL is 5 alphabetic chars but not a name).
var knownTickers = map[string]struct{}{
	"AAPL": {}, "MSFT": {}, "GOOGL": {}, "GOOG": {}, "AMZN": {},
	"TSLA": {}, "META": {}, "NVDA": {}, "BRK.A": {}, "BRK.B": {},
	"JPM": {}, "V": {}, "UNH": {}, "TSM": {}, "AVGO": {}, "ORCL": {},
	"ADBE": {}, "NFLX": {}, "INTC": {}, "PYPL": {}, "SHOP": {},
}

// Classify turns a raw query into a typed identifier.
//
// Detection order is a deliberate disambiguation policy and must not be
// reordered: the 12-char national pattern is checked before anything else,
// the 6-char local pattern requires a digit so "AMAZON" falls through to the
// name rules, and the known-ticker list rescues symbols that look like words.
func Classify(raw string) (types.StockIdentifier, error) {
	q := strings.TrimSpace(raw)
	if q == "" {
		return types.StockIdentifier{}, &types.ValidationError{Field: "query", Reason: "empty query"}
	}
	upper := strings.ToUpper(q)

	if nationalCodePattern.MatchString(upper) {
		return types.NewStockIdentifier(types.KindNationalCode, upper)
	}

	if localCodePattern.MatchString(upper) && digitPattern.MatchString(upper) {
		return types.NewStockIdentifier(types.KindLocalCode, upper)
	}

	if strings.ContainsAny(q, " \t") {
		return types.NewStockIdentifier(types.KindName, q)
	}

	if _, ok := knownTickers[upper]; ok {
		return types.NewStockIdentifier(types.KindSymbol, upper)
	}
	if len(upper) <= 4 && symbolCharsPattern.MatchString(upper) {
		return types.NewStockIdentifier(types.KindSymbol, upper)
	}

	if len(q) >= 5 && alphaPattern.MatchString(q) {
		return types.NewStockIdentifier(types.KindName, q)
	}

	if len(upper) <= 20 && symbolCharsPattern.MatchString(upper) {
		return types.NewStockIdentifier(types.KindSymbol, upper)
	}

	return types.NewStockIdentifier(types.KindName, q)
}
