package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Amounts are the trickiest field: the same message carries quantities,
// weights and prices, and only position and suffixes tell them apart.
// "j'ai vendu 5 porcs a 800 000" must read montant=800000, never 5.
// The rule runs after the quantity and weight rules and refuses any
// number those rules consumed.

const maxAmount = 5_000_000 * 100 // sanity ceiling well above the confirm threshold

var (
	suffixKRe  = regexp.MustCompile(`\b(\d+(?:[.,]\d+)?)\s*k\b`)
	millionRe  = regexp.MustCompile(`\b(\d+(?:[.,]\d+)?)\s*millions?\b`)
	currencyRe = regexp.MustCompile(`\b(\d[\d ]*\d|\d)\s*(?:fcfa|francs?|f)\b`)
	bareRe     = regexp.MustCompile(`\b\d[\d ]*\d\b|\b\d{3,}\b`)
)

// consumedRes are the patterns whose numbers belong to other fields. A bare
// amount candidate overlapping any of their number spans is skipped.
var consumedRes = []*regexp.Regexp{
	weightUnitRe,
	weightVerbRe,
	countUnitRe,
	countLabelRe,
	animalCodeRe,
	dayMonthRe,
	isoDateRe,
}

func applyAmount(msg string, _ *Context, _ Params) (Value, bool) {
	if m := suffixKRe.FindStringSubmatch(msg); m != nil {
		if v, ok := parseAmount(m[1], 1000); ok {
			return numberValue(v), true
		}
	}
	if m := millionRe.FindStringSubmatch(msg); m != nil {
		if v, ok := parseAmount(m[1], 1_000_000); ok {
			return numberValue(v), true
		}
	}
	if m := currencyRe.FindStringSubmatch(msg); m != nil {
		if v, ok := parseAmount(m[1], 1); ok {
			return numberValue(v), true
		}
	}

	taken := consumedSpans(msg)
	for _, span := range bareRe.FindAllStringIndex(msg, -1) {
		if overlaps(span, taken) {
			continue
		}
		if v, ok := parseAmount(msg[span[0]:span[1]], 1); ok {
			return numberValue(v), true
		}
	}
	return Value{}, false
}

// parseAmount reads a grouped number ("800 000", "150,5") and applies the
// unit multiplier. Amounts are positive integers of FCFA after scaling.
func parseAmount(s string, mult float64) (float64, bool) {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	v *= mult
	if v <= 0 || v > maxAmount {
		return 0, false
	}
	return v, true
}

func consumedSpans(msg string) [][]int {
	var spans [][]int
	for _, re := range consumedRes {
		spans = append(spans, re.FindAllStringIndex(msg, -1)...)
	}
	return spans
}

func overlaps(span []int, taken [][]int) bool {
	for _, t := range taken {
		if span[0] < t[1] && t[0] < span[1] {
			return true
		}
	}
	return false
}
