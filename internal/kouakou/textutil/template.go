package textutil

import "regexp"

// Template rewrites the variable parts of a message (amounts, weights,
// quantities, animal codes, buyer names, dates) into fixed placeholders so
// that "j'ai vendu 5 porcs a 800000" and "j'ai vendu 3 porcs a 500000"
// compare as the same sentence shape. Similarity scoring between a message
// and a corpus example always runs on templated text.
func Template(s string) string {
	s = Normalize(s)
	for _, sub := range templateSubs {
		s = sub.re.ReplaceAllString(s, sub.repl)
	}
	return whitespaceRe.ReplaceAllString(s, " ")
}

type templateSub struct {
	re   *regexp.Regexp
	repl string
}

// templateSubs is ordered: the narrow unit-anchored patterns run before the
// bare large-number pattern so a weight is never mislabeled as an amount.
var templateSubs = []templateSub{
	// weights: "45 kg", "pese 45"
	{regexp.MustCompile(`\d+[.,]?\d*\s*(?:kg|kilogramme?s?|kilos?)\b`), "[POIDS]"},
	{regexp.MustCompile(`\b(pese|poids|fait)\s+\d+[.,]?\d*`), "$1 [POIDS]"},
	// quantities: "5 porcs", "20 sacs"
	{regexp.MustCompile(`\d+\s*(?:porcs?|tetes?|sujets?|animaux|animal|sacs?)\b`), "[QUANTITE]"},
	{regexp.MustCompile(`\b(?:nombre|quantite|qte)\s+\d+`), "[QUANTITE]"},
	// amounts: 3+ digit figures, optionally grouped, optionally with a currency word
	{regexp.MustCompile(`\b\d[\d ]{2,}\s*(?:fcfa|francs?|f)?\b`), "[MONTANT]"},
	{regexp.MustCompile(`\b\d+k\b`), "[MONTANT]"},
	// animal codes: p001, porc001
	{regexp.MustCompile(`\b(?:p|porc)\d{1,4}\b`), "[CODE]"},
	// buyer names after a selling preposition: "chez kouame", "acheteur traore"
	{regexp.MustCompile(`\b(?:chez|acheteur|client)\s+\p{L}{2,}`), "[NOM]"},
}
