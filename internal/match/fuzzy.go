// Package match provides typo-tolerant string similarity for symbols and
// company names, plus the relevance scoring used to rank search results.
package match

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Type classifies how a query matched a candidate, ordered by quality.
type Type int

const (
	MatchNone Type = iota
	MatchContains
	MatchFuzzy
	MatchPrefix
	MatchExact
)

func (t Type) String() string {
	switch t {
	case MatchExact:
		return "exact"
	case MatchPrefix:
		return "prefix"
	case MatchFuzzy:
		return "fuzzy"
	case MatchContains:
		return "contains"
	default:
		return "none"
	}
}

// Match is the outcome of comparing a query against one candidate field.
type Match struct {
	Type  Type
	Score float64 // 0.0–1.0 similarity
}

const (
	prefixFloor    = 0.5
	fuzzyThreshold = 0.6
)

// corporateSuffixes are stripped from names before comparison, longest
// first so "incorporated" is removed before "inc" would partially match.
var corporateSuffixes = []string{
	"incorporated", "corporation", "international", "holdings", "company",
	"limited", "group", "corp", "inc", "ltd", "plc", "co", "sa", "ag",
	"nv", "se",
}

var symbolReplacer = strings.NewReplacer(".", "", "-", "", " ", "")

// NormalizeSymbol strips separators and uppercases so BRK.B, BRK-B and brkb
// compare equal.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(symbolReplacer.Replace(strings.TrimSpace(s)))
}

// NormalizeName lowercases, collapses whitespace and strips trailing
// corporate suffixes.
func NormalizeName(s string) string {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.Join(strings.Fields(name), " ")
	name = strings.Trim(name, ".,")

	for changed := true; changed; {
		changed = false
		for _, suffix := range corporateSuffixes {
			for _, sep := range []string{" ", ", ", " ."} {
				if strings.HasSuffix(name, sep+suffix) {
					name = strings.TrimSuffix(name, sep+suffix)
					name = strings.Trim(name, " .,")
					changed = true
				}
			}
		}
	}
	return name
}

// Symbol compares a query against a candidate ticker symbol.
func Symbol(query, candidate string) Match {
	return compare(NormalizeSymbol(query), NormalizeSymbol(candidate))
}

// Name compares a query against a candidate company name. Multi-word
// candidates additionally get token-level comparison; the best of token-level
// and whole-string similarity wins.
func Name(query, candidate string) Match {
	q := NormalizeName(query)
	c := NormalizeName(candidate)

	best := compare(q, c)

	for _, token := range strings.Fields(c) {
		m := compare(q, token)
		// A token match is never better evidence than the same match on
		// the whole string, so cap its type at prefix.
		if m.Type == MatchExact {
			m = Match{Type: MatchPrefix, Score: m.Score}
		}
		if better(m, best) {
			best = m
		}
	}

	if best.Type == MatchNone && strings.Contains(c, q) && q != "" {
		best = Match{Type: MatchContains, Score: float64(len(q)) / float64(len(c))}
	}
	return best
}

func compare(q, c string) Match {
	if q == "" || c == "" {
		return Match{Type: MatchNone}
	}
	if q == c {
		return Match{Type: MatchExact, Score: 1.0}
	}
	if strings.HasPrefix(c, q) {
		ratio := float64(len(q)) / float64(len(c))
		if ratio < prefixFloor {
			ratio = prefixFloor
		}
		return Match{Type: MatchPrefix, Score: ratio}
	}
	if sim := similarity(q, c); sim >= fuzzyThreshold {
		return Match{Type: MatchFuzzy, Score: sim}
	}
	if strings.Contains(c, q) {
		return Match{Type: MatchContains, Score: float64(len(q)) / float64(len(c))}
	}
	return Match{Type: MatchNone}
}

// similarity maps edit distance onto 0.0–1.0.
func similarity(a, b string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}

func better(a, b Match) bool {
	if a.Type != b.Type {
		return a.Type > b.Type
	}
	return a.Score > b.Score
}
