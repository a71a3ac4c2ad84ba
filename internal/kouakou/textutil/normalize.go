// Package textutil provides the text normalization shared by the whole
// resolution pipeline: the fast path, the retriever, the extractor and the
// learning store must all see the same canonical form of an operator
// message, otherwise two spellings of the same sentence would produce two
// learning records or two different intent scores.
package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// diacriticStripper decomposes to NFD, drops combining marks and recomposes.
// "pèse" and "pese" normalize to the same token.
var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var (
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize lowercases, strips diacritics, collapses punctuation to
// whitespace and squeezes runs of whitespace. It is deterministic and
// idempotent; every layer of the pipeline compares normalized text only.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if out, _, err := transform.String(diacriticStripper, s); err == nil {
		s = out
	}
	s = punctRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// numPunctRe matches punctuation except the characters that carry meaning
// inside numbers and dates (decimal point/comma, date separators).
var numPunctRe = regexp.MustCompile(`[^\p{L}\p{N}\s.,/-]`)

// Fold lowercases and strips diacritics but keeps the punctuation needed to
// read numbers and dates ("50,5", "12/05"). The extractor works on folded
// text; everything that only compares words uses Normalize instead.
func Fold(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if out, _, err := transform.String(diacriticStripper, s); err == nil {
		s = out
	}
	s = numPunctRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Tokens splits normalized text into word tokens. The input is normalized
// first so callers can pass raw messages.
func Tokens(s string) []string {
	return strings.FieldsFunc(Normalize(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// stopWords are tokens too common in the corpus language to carry intent
// signal. Keyword extraction drops them.
var stopWords = map[string]struct{}{
	"le": {}, "la": {}, "les": {}, "un": {}, "une": {}, "des": {},
	"de": {}, "du": {}, "au": {}, "aux": {}, "et": {}, "ou": {},
	"je": {}, "tu": {}, "il": {}, "on": {}, "ai": {}, "est": {},
	"pour": {}, "avec": {}, "dans": {}, "sur": {}, "que": {}, "qui": {},
	"pas": {}, "plus": {}, "mon": {}, "ma": {}, "mes": {}, "ce": {},
	"cette": {}, "ces": {}, "son": {}, "sa": {}, "ses": {},
}

// Keywords extracts the significant tokens of a message: normalized words of
// at least three characters that are neither stop words nor pure numbers.
// This is the identity the learning store indexes records by.
func Keywords(s string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range Tokens(s) {
		if len(tok) < 3 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if isNumeric(tok) {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}
