package match

import (
	"sort"

	"github.com/marketlens/resolver-api/internal/types"
)

// Component weights of the combined 0–100 relevance score.
const (
	weightMatchQuality  = 40.0
	weightPopularity    = 30.0
	weightFieldPriority = 20.0
	weightRecency       = 10.0
)

// Candidate is one search result awaiting ranking.
type Candidate struct {
	Stock        types.Stock
	Match        Match
	MatchedField types.IdentifierKind
	SearchCount  int64 // historical search frequency for this symbol
	Score        float64
}

// Scorer combines match quality, popularity, matched-field priority and
// recency into a single relevance score.
type Scorer struct {
	// MaxSearchCount normalizes popularity; counts at or above it score
	// full marks. Guarded against zero in Score.
	MaxSearchCount int64
}

// NewScorer returns a scorer with the default popularity ceiling.
func NewScorer() *Scorer {
	return &Scorer{MaxSearchCount: 100}
}

// Score computes the 0–100 relevance of a candidate. recentQueries is the
// caller's own recent search list, most recent first; an empty list simply
// zeroes the recency component.
func (s *Scorer) Score(c Candidate, recentQueries []string) float64 {
	score := matchQuality(c.Match) * weightMatchQuality
	score += s.popularity(c) * weightPopularity
	score += fieldPriority(c.MatchedField) * weightFieldPriority
	score += recency(c.Stock.Symbol, recentQueries) * weightRecency
	return score
}

// Rank scores every candidate and sorts descending. The sort is stable, so
// equal scores keep their input order.
func (s *Scorer) Rank(candidates []Candidate, recentQueries []string) []Candidate {
	for i := range candidates {
		candidates[i].Score = s.Score(candidates[i], recentQueries)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

func matchQuality(m Match) float64 {
	switch m.Type {
	case MatchExact:
		return 1.0
	case MatchPrefix:
		return 0.6 + 0.2*m.Score
	case MatchFuzzy:
		return 0.4 + 0.2*m.Score
	case MatchContains:
		return 0.3
	default:
		return 0
	}
}

func (s *Scorer) popularity(c Candidate) float64 {
	ceiling := s.MaxSearchCount
	if ceiling <= 0 {
		ceiling = 1
	}
	freq := float64(c.SearchCount) / float64(ceiling)
	if freq > 1 {
		freq = 1
	}
	return 0.7*freq + 0.3*marketCapTier(c.Stock.Metadata.MarketCap)
}

// marketCapTier buckets market cap (in USD) into a popularity bonus.
func marketCapTier(cap float64) float64 {
	switch {
	case cap >= 200e9:
		return 1.0
	case cap >= 10e9:
		return 0.75
	case cap >= 2e9:
		return 0.5
	case cap > 0:
		return 0.25
	default:
		return 0
	}
}

func fieldPriority(kind types.IdentifierKind) float64 {
	switch kind {
	case types.KindSymbol:
		return 1.0
	case types.KindNationalCode:
		return 0.9
	case types.KindLocalCode:
		return 0.8
	case types.KindName:
		return 0.6
	default:
		return 0.5
	}
}

// recency rewards symbols near the front of the caller's recent-search list,
// decaying with position.
func recency(symbol string, recentQueries []string) float64 {
	norm := NormalizeSymbol(symbol)
	for i, q := range recentQueries {
		if NormalizeSymbol(q) == norm {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}
