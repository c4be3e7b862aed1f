package merchant

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"fintrack/internal/core"
)

// minContainmentLen keeps one- and two-letter names from containing, or
// being contained in, everything.
const minContainmentLen = 3

// FindBestMatch returns the existing merchant that name refers to. Matching
// tries, in order: case-insensitive equality with a name or alias,
// containment in either direction, equal extracted brands, and finally string
// similarity. Every merchant at or above the resolver threshold is a
// candidate and the highest score wins, not the first merchant to clear the
// threshold. Equal scores go to the earlier merchant.
func (r *Resolver) FindBestMatch(name string, merchants []core.MerchantRecord) (core.MerchantRecord, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" || len(merchants) == 0 {
		return core.MerchantRecord{}, false
	}

	for _, m := range merchants {
		if strings.EqualFold(m.Name, needle) {
			return m, true
		}
		for _, a := range m.Aliases {
			if strings.EqualFold(a, needle) {
				return m, true
			}
		}
	}

	if utf8.RuneCountInString(needle) >= minContainmentLen {
		for _, m := range merchants {
			candidate := strings.ToLower(m.Name)
			if utf8.RuneCountInString(candidate) < minContainmentLen {
				continue
			}
			if strings.Contains(needle, candidate) || strings.Contains(candidate, needle) {
				return m, true
			}
		}
	}

	if brand, ok := r.ExtractBrand(name); ok {
		for _, m := range merchants {
			if other, ok := r.ExtractBrand(m.Name); ok && other == brand {
				return m, true
			}
		}
	}

	best, bestScore := -1, 0.0
	for i, m := range merchants {
		score := Similarity(needle, m.Name)
		if score >= r.threshold && score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return core.MerchantRecord{}, false
	}
	return merchants[best], true
}

// Similarity scores two names in [0, 1] as one minus the Levenshtein distance
// over the longer length. Case and diacritics are ignored and containment
// scores a perfect 1.
func Similarity(a, b string) float64 {
	a, b = foldName(a), foldName(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b || strings.Contains(a, b) || strings.Contains(b, a) {
		return 1
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// foldName lower-cases s and strips combining marks, so "Żabka" and "zabka"
// compare equal.
func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return folded
}
