package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Rule names, recorded as Value provenance. Callers that care how a value
// was obtained (the fast path requires an explicit-unit weight, not a
// verb-inferred one) compare against these.
const (
	RuleAnimalCode   = "animal_code"
	RuleWeightUnit   = "poids_unit"
	RuleWeightVerb   = "poids_verb"
	RuleCountUnit    = "nombre_unit"
	RuleCountLabel   = "nombre_label"
	RuleAmount       = "montant"
	RuleDateRelative = "date_relative"
	RuleDateAbsolute = "date_absolute"
	RuleBuyer        = "acheteur"
	RuleCategory     = "categorie"
	RuleLabel        = "libelle"
	RuleFrequency    = "frequence"
)

// rules is the ordered extraction table. Order matters twice over: a later
// rule for the same field only runs when the earlier one found nothing, and
// the amount rule excludes every number a preceding rule (quantity, weight)
// already consumed. "5 porcs 800000" therefore reads amount=800000, not 5.
var rules = []Rule{
	{Name: RuleAnimalCode, Field: "animal_code", Apply: applyAnimalCode},
	{Name: RuleWeightUnit, Field: "poids_kg", Apply: applyWeightUnit},
	{Name: RuleWeightVerb, Field: "poids_kg", Apply: applyWeightVerb},
	{Name: RuleCountUnit, Field: "nombre", Apply: applyCountUnit},
	{Name: RuleCountLabel, Field: "nombre", Apply: applyCountLabel},
	{Name: RuleAmount, Field: "montant", Apply: applyAmount},
	{Name: RuleDateRelative, Field: "date", Apply: applyDateRelative},
	{Name: RuleDateAbsolute, Field: "date", Apply: applyDateAbsolute},
	{Name: RuleBuyer, Field: "acheteur", Apply: applyBuyer},
	{Name: RuleCategory, Field: "categorie", Apply: applyCategory},
	{Name: RuleLabel, Field: "libelle", Apply: applyLabel},
	{Name: RuleFrequency, Field: "frequence", Apply: applyFrequency},
}

// --- animal code -----------------------------------------------------------

var animalCodeRe = regexp.MustCompile(`\b(?:porc\s+|animal\s+)?(p-?\d{1,4})\b`)

func applyAnimalCode(msg string, ctx *Context, _ Params) (Value, bool) {
	m := animalCodeRe.FindStringSubmatch(msg)
	if m == nil {
		return Value{}, false
	}
	code := strings.ToUpper(strings.ReplaceAll(m[1], "-", ""))

	if ctx != nil && len(ctx.AnimalCodes) > 0 {
		for _, known := range ctx.AnimalCodes {
			if strings.EqualFold(known, code) {
				return stringValue(known), true
			}
		}
		// A candidate list was supplied and the code is not on it. Dropping
		// the field here beats guessing the nearest code: the caller turns
		// the absence into a targeted clarification.
		return Value{}, false
	}
	return stringValue(code), true
}

// --- weight ----------------------------------------------------------------

var (
	weightUnitRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:kg|kilogrammes?|kilos?)\b`)
	weightVerbRe = regexp.MustCompile(`\b(?:pese|poids|fait)\s+(\d+(?:[.,]\d+)?)\b`)
)

func applyWeightUnit(msg string, _ *Context, _ Params) (Value, bool) {
	return weightFrom(weightUnitRe, msg)
}

func applyWeightVerb(msg string, _ *Context, _ Params) (Value, bool) {
	return weightFrom(weightVerbRe, msg)
}

func weightFrom(re *regexp.Regexp, msg string) (Value, bool) {
	m := re.FindStringSubmatch(msg)
	if m == nil {
		return Value{}, false
	}
	w, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil || w <= 0 || w >= 1000 {
		return Value{}, false
	}
	return numberValue(w), true
}

// --- quantity --------------------------------------------------------------

var (
	countUnitRe  = regexp.MustCompile(`\b(\d+)\s*(?:porcs?|tetes?|sujets?|animaux|animal)\b`)
	countLabelRe = regexp.MustCompile(`\b(?:nombre|quantite|qte)\s*(?:de\s+)?(\d+)\b`)
)

func applyCountUnit(msg string, _ *Context, _ Params) (Value, bool) {
	return countFrom(countUnitRe, msg)
}

func applyCountLabel(msg string, _ *Context, _ Params) (Value, bool) {
	return countFrom(countLabelRe, msg)
}

func countFrom(re *regexp.Regexp, msg string) (Value, bool) {
	m := re.FindStringSubmatch(msg)
	if m == nil {
		return Value{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 || n >= 10000 {
		return Value{}, false
	}
	return numberValue(float64(n)), true
}

// --- date ------------------------------------------------------------------

var relativeDays = []struct {
	word   string
	offset int
}{
	// Longer phrases first so "avant hier" is not read as "hier".
	{"avant hier", -2},
	{"apres demain", 2},
	{"aujourd hui", 0},
	{"hier", -1},
	{"demain", 1},
}

func applyDateRelative(msg string, ctx *Context, _ Params) (Value, bool) {
	for _, rd := range relativeDays {
		if containsWord(msg, rd.word) {
			d := ctx.refDate().AddDate(0, 0, rd.offset)
			return dateValue(d.Format("2006-01-02")), true
		}
	}
	return Value{}, false
}

var (
	isoDateRe    = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	dayMonthRe   = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	monthPerYear = 12
)

func applyDateAbsolute(msg string, ctx *Context, _ Params) (Value, bool) {
	if m := isoDateRe.FindStringSubmatch(msg); m != nil {
		return isoDate(m[1], m[2], m[3])
	}
	if m := dayMonthRe.FindStringSubmatch(msg); m != nil {
		year := m[3]
		switch len(year) {
		case 0:
			year = strconv.Itoa(ctx.refDate().Year())
		case 2:
			year = "20" + year
		}
		return isoDate(year, m[2], m[1])
	}
	return Value{}, false
}

// isoDate validates the components and returns a canonical YYYY-MM-DD value.
// Out-of-range dates ("32/13") are dropped, not coerced.
func isoDate(y, mo, d string) (Value, bool) {
	year, _ := strconv.Atoi(y)
	month, _ := strconv.Atoi(mo)
	day, _ := strconv.Atoi(d)
	if year < 2000 || year > 2100 || month < 1 || month > monthPerYear || day < 1 || day > 31 {
		return Value{}, false
	}
	return dateValue(strconvPad(year, 4) + "-" + strconvPad(month, 2) + "-" + strconvPad(day, 2)), true
}

func strconvPad(n, width int) string {
	s := strconv.Itoa(n)
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// --- buyer -----------------------------------------------------------------

var buyerRes = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:acheteur|client|chez)\s+([a-z]{2,})\b`),
	// "a" and "pour" only introduce a buyer in a sale sentence.
	regexp.MustCompile(`\b(?:vendu|vente)\b.*?\b(?:a|pour)\s+([a-z]{2,})\b`),
}

var sameBuyerRe = regexp.MustCompile(`\b(?:le\s+)?meme(?:\s+acheteur)?\b`)

// buyerStopWords are words a buyer pattern can capture that are never names.
var buyerStopWords = map[string]struct{}{
	"le": {}, "la": {}, "les": {}, "un": {}, "une": {}, "des": {},
	"de": {}, "du": {}, "au": {}, "porc": {}, "porcs": {}, "fcfa": {},
	"tete": {}, "tetes": {}, "francs": {}, "prix": {},
}

func applyBuyer(msg string, ctx *Context, _ Params) (Value, bool) {
	if ctx != nil && len(ctx.RecentBuyers) > 0 && sameBuyerRe.MatchString(msg) {
		return stringValue(ctx.RecentBuyers[0]), true
	}
	for _, re := range buyerRes {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		name := m[1]
		if _, stop := buyerStopWords[name]; stop {
			continue
		}
		return stringValue(name), true
	}
	return Value{}, false
}

// --- category --------------------------------------------------------------

// categorySynonyms maps spoken vocabulary (including local idiom) to the
// canonical expense categories the finance records use.
var categorySynonyms = []struct {
	words    []string
	category string
}{
	{[]string{"provende", "aliment", "alimentation", "bouffe", "nourriture", "mais", "tourteau", "son de ble"}, "alimentation"},
	{[]string{"medicament", "medicaments", "medoc", "veto", "veterinaire", "vaccin", "soin", "soins", "deparasitant"}, "sante"},
	{[]string{"transport", "carburant", "essence", "gasoil"}, "transport"},
	{[]string{"eau", "forage", "electricite", "courant"}, "eau_electricite"},
	{[]string{"materiel", "equipement", "abreuvoir", "mangeoire", "construction"}, "equipement"},
	{[]string{"salaire", "main d oeuvre", "ouvrier", "employe"}, "main_oeuvre"},
}

func applyCategory(msg string, _ *Context, _ Params) (Value, bool) {
	for _, syn := range categorySynonyms {
		for _, w := range syn.words {
			if containsWord(msg, w) {
				return stringValue(syn.category), true
			}
		}
	}
	return Value{}, false
}

func containsWord(msg, w string) bool {
	idx := strings.Index(msg, w)
	if idx < 0 {
		return false
	}
	if idx > 0 && isWordChar(msg[idx-1]) {
		return false
	}
	end := idx + len(w)
	if end < len(msg) && isWordChar(msg[end]) {
		return false
	}
	return true
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// --- label -----------------------------------------------------------------

var labelRe = regexp.MustCompile(`\b(?:charge\s+fixe|charge|libelle)\s+(?:de\s+|pour\s+)?([a-z][a-z ]*?)(?:\s+\d|$)`)

func applyLabel(msg string, _ *Context, _ Params) (Value, bool) {
	m := labelRe.FindStringSubmatch(msg)
	if m == nil {
		return Value{}, false
	}
	label := strings.TrimSpace(m[1])
	if label == "" {
		return Value{}, false
	}
	return stringValue(label), true
}

// --- frequency -------------------------------------------------------------

func applyFrequency(msg string, _ *Context, _ Params) (Value, bool) {
	switch {
	case strings.Contains(msg, "trimestr"):
		return stringValue("trimestriel"), true
	case strings.Contains(msg, "annuel") || containsWord(msg, "annee"):
		return stringValue("annuel"), true
	case strings.Contains(msg, "mensuel") || containsWord(msg, "mois"):
		return stringValue("mensuel"), true
	}
	return Value{}, false
}
