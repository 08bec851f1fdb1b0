package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// stopwords are trade-document filler that carries no signal about which
// cost line a row belongs to.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "at": {}, "for": {}, "in": {}, "of": {},
	"on": {}, "the": {}, "to": {}, "with": {},
	"allow": {}, "allowance": {}, "incl": {}, "include": {}, "including": {},
	"install": {}, "installation": {}, "supply": {}, "works": {},
}

// Normalize folds a free-text description into its canonical matching form:
// NFKC normalized, lowercased, punctuation replaced by spaces, stopwords
// dropped and whitespace collapsed. NFKC also folds typographic variants
// such as superscripts, so "m²" and "m2" compare equal.
func Normalize(s string) string {
	return strings.Join(TokensOf(s), " ")
}

// TokensOf returns the normalized tokens of a description, stopwords removed.
func TokensOf(s string) []string {
	folded := norm.NFKC.String(s)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(' ')
		}
	}
	var tokens []string
	for _, tok := range strings.Fields(b.String()) {
		if _, skip := stopwords[tok]; skip {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}
