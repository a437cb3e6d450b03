package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultNameThreshold is the similarity score at which a user-supplied name
// is accepted as matching the looked-up record. Empirically chosen; tunable
// via configuration.
const DefaultNameThreshold = 0.75

// defaultNoiseWords are tokens that carry no identity signal in ERP name
// fields: articles, account-type suffixes ("CTA CTE") and courtesy titles.
var defaultNoiseWords = []string{
	"el", "la", "los", "las", "de", "del", "van", "von",
	"cta", "cte", "cuenta", "corriente",
	"sr", "sra", "srta", "don", "dona", "dr", "dra", "lic", "ing",
}

// NameMatcher scores similarity between a user-supplied name and an external
// record, tolerating case, diacritics, punctuation and word-order noise
// ("PEREZ, JUAN CARLOS" vs "Juan Perez").
type NameMatcher struct {
	threshold float64
	noise     map[string]struct{}
}

// NewNameMatcher builds a matcher. A zero threshold selects the default; the
// extra noise words are added on top of the built-in list.
func NewNameMatcher(threshold float64, extraNoise []string) *NameMatcher {
	if threshold <= 0 {
		threshold = DefaultNameThreshold
	}
	noise := make(map[string]struct{}, len(defaultNoiseWords)+len(extraNoise))
	for _, w := range defaultNoiseWords {
		noise[w] = struct{}{}
	}
	for _, w := range extraNoise {
		noise[normalizeName(w)] = struct{}{}
	}
	return &NameMatcher{threshold: threshold, noise: noise}
}

// Match reports whether the two names are similar enough to accept.
func (m *NameMatcher) Match(a, b string) bool {
	return m.Similarity(a, b) >= m.threshold
}

// Threshold exposes the configured acceptance score.
func (m *NameMatcher) Threshold() float64 { return m.threshold }

// Similarity scores two names in [0,1]. Token-set based: a subset relation
// scores at least 0.8, otherwise Jaccard similarity with a boost when most of
// the smaller name matched.
func (m *NameMatcher) Similarity(a, b string) float64 {
	setA := m.tokens(a)
	setB := m.tokens(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}

	small, large := len(setA), len(setB)
	if small > large {
		small, large = large, small
	}

	if inter == small {
		score := 0.8 + float64(small)/float64(large)*0.2
		if score > 1.0 {
			score = 1.0
		}
		return score
	}

	union := len(setA) + len(setB) - inter
	score := float64(inter) / float64(union)
	if float64(inter)/float64(small) >= 0.8 {
		score += 0.3
		if score > 1.0 {
			score = 1.0
		}
	}
	return score
}

// tokens normalizes and splits a name into its significant word set.
func (m *NameMatcher) tokens(name string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(normalizeName(name)) {
		if len([]rune(tok)) < 2 {
			continue
		}
		if _, skip := m.noise[tok]; skip {
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

// normalizeName lowercases, strips diacritics and replaces punctuation with
// spaces.
func normalizeName(s string) string {
	decomposed := norm.NFD.String(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining mark left over from decomposition
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
