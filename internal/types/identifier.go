package types

import (
	"fmt"
	"regexp"
	"strings"
)

// IdentifierKind enumerates the identifier shapes a query can resolve to.
type IdentifierKind string

const (
	KindNationalCode IdentifierKind = "national_code" // ISIN-style, e.g. US0378331005
	KindLocalCode    IdentifierKind = "local_code"    // 6-char registry code, e.g. 601398
	KindSymbol       IdentifierKind = "symbol"        // exchange ticker, e.g. AAPL, BRK.B
	KindName         IdentifierKind = "name"          // free-text company name
)

var (
	nationalCodePattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)
	localCodePattern    = regexp.MustCompile(`^[A-Z0-9]{6}$`)
	symbolPattern       = regexp.MustCompile(`^[A-Z0-9.\-]{1,20}$`)
	digitPattern        = regexp.MustCompile(`[0-9]`)
)

// StockIdentifier is an immutable, validated security identifier.
// Exactly one field is authoritative; it is fixed at construction time.
type StockIdentifier struct {
	kind  IdentifierKind
	value string
}

// NewStockIdentifier validates value against the rules for kind and fails
// fast on malformed input.
func NewStockIdentifier(kind IdentifierKind, value string) (StockIdentifier, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return StockIdentifier{}, &ValidationError{Field: "identifier", Reason: "empty value"}
	}

	switch kind {
	case KindNationalCode:
		v = strings.ToUpper(v)
		if !nationalCodePattern.MatchString(v) {
			return StockIdentifier{}, &ValidationError{Field: "national_code", Reason: fmt.Sprintf("%q is not a valid 12-character code", v)}
		}
	case KindLocalCode:
		v = strings.ToUpper(v)
		if !localCodePattern.MatchString(v) || !digitPattern.MatchString(v) {
			return StockIdentifier{}, &ValidationError{Field: "local_code", Reason: fmt.Sprintf("%q is not a valid 6-character code", v)}
		}
	case KindSymbol:
		v = strings.ToUpper(v)
		if !symbolPattern.MatchString(v) {
			return StockIdentifier{}, &ValidationError{Field: "symbol", Reason: fmt.Sprintf("%q is not a valid ticker symbol", v)}
		}
	case KindName:
		if len(v) > 200 {
			return StockIdentifier{}, &ValidationError{Field: "name", Reason: "name too long"}
		}
	default:
		return StockIdentifier{}, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown identifier kind %q", kind)}
	}

	return StockIdentifier{kind: kind, value: v}, nil
}

// MustSymbol builds a symbol identifier and panics on invalid input.
// Intended for provider adapters mapping already-validated upstream tickers.
func MustSymbol(symbol string) StockIdentifier {
	id, err := NewStockIdentifier(KindSymbol, symbol)
	if err != nil {
		panic(err)
	}
	return id
}

// Kind returns the authoritative identifier kind.
func (s StockIdentifier) Kind() IdentifierKind { return s.kind }

// Value returns the normalized identifier value.
func (s StockIdentifier) Value() string { return s.value }

// PrimaryIdentifier returns the (kind, value) pair used for lookups.
func (s StockIdentifier) PrimaryIdentifier() (IdentifierKind, string) {
	return s.kind, s.value
}

// IsZero reports whether the identifier was never constructed.
func (s StockIdentifier) IsZero() bool { return s.kind == "" }

func (s StockIdentifier) String() string {
	return fmt.Sprintf("%s:%s", s.kind, s.value)
}
