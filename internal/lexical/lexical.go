// Package lexical implements the token-based similarity scheme used for
// both history research and pattern matching. Scoring is purely lexical:
// lowercase alphanumeric tokens with stopwords removed, compared as sets.
package lexical

import (
	"regexp"
	"sort"
	"strings"
)

var tokenRegex = regexp.MustCompile(`[a-z0-9]+`)

// stopwords are high-frequency tokens that carry no signal for issue
// similarity. The list is intentionally small; over-aggressive removal
// hurts short titles more than it helps long descriptions.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "in": true, "is": true, "it": true,
	"its": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "this": true, "to": true, "was": true, "when": true,
	"will": true, "with": true,
}

// TokenSet extracts the normalized token set from free text
func TokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokenRegex.FindAllString(strings.ToLower(text), -1) {
		if !stopwords[tok] {
			set[tok] = true
		}
	}
	return set
}

// Jaccard returns |a∩b| / |a∪b| for two token sets. Two empty sets score 0.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Similarity scores two free-text blobs in [0,1]
func Similarity(a, b string) float64 {
	return Jaccard(TokenSet(a), TokenSet(b))
}

// Signature produces the normalized textual fingerprint of an issue:
// its sorted, deduplicated token set joined by single spaces. Equal
// signatures mean lexically equivalent issues regardless of word order,
// case, or punctuation.
func Signature(text string) string {
	set := TokenSet(text)
	tokens := make([]string, 0, len(set))
	for tok := range set {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
