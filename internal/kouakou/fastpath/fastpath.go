// Package fastpath recognizes a small enumerated set of canonical phrasings
// and resolves them without retrieval or classification. A form fires only
// when its trigger words match and its required parameters extract cleanly;
// there are no partial matches, so a hit carries confidence 1.0 and the
// caller may act on it directly.
package fastpath

import (
	"regexp"

	"github.com/kbrou/kouakou/internal/kouakou/extract"
	"github.com/kbrou/kouakou/internal/kouakou/intent"
	"github.com/kbrou/kouakou/internal/kouakou/textutil"
)

// form is one canonical phrasing. guard vetoes the form even when trigger
// matches (an expense query is not an expense). complete checks the form's
// required parameters and builds the candidate's parameter map.
type form struct {
	intent   string
	trigger  *regexp.Regexp
	guard    *regexp.Regexp
	complete func(p extract.Params) (map[string]any, bool)
}

// queryWordsRe marks information requests about money, which must never be
// recorded as transactions.
var queryWordsRe = regexp.MustCompile(`\b(?:du mois|en cours|ce mois|total|combien|quel est|mes depenses|bilan|couts?|recap)\b`)

var forms = []form{
	{
		intent:   intent.Other,
		trigger:  regexp.MustCompile(`^(?:bonjour|salut|bonsoir|hello|coucou|hey|hi|yo)\b`),
		complete: func(extract.Params) (map[string]any, bool) { return map[string]any{"greeting": true}, true },
	},
	{
		intent:  intent.CreateDepense,
		trigger: regexp.MustCompile(`\b(?:depenses?|dep|achete|paye|claque|bouffe|aliment|provende|medicaments?|medoc|veto|veterinaire)\b`),
		guard:   queryWordsRe,
		complete: func(p extract.Params) (map[string]any, bool) {
			montant, ok := p.Number("montant")
			if !ok || montant <= 100 {
				return nil, false
			}
			out := map[string]any{"montant": montant}
			if cat, ok := p.String("categorie"); ok {
				out["categorie"] = cat
			}
			return out, true
		},
	},
	{
		intent:  intent.CreateRevenu,
		trigger: regexp.MustCompile(`\b(?:vendu|vente|vendre)\b`),
		complete: func(p extract.Params) (map[string]any, bool) {
			montant, ok := p.Number("montant")
			if !ok || montant <= 100 {
				return nil, false
			}
			out := map[string]any{"montant": montant, "categorie": "vente_porc"}
			if n, ok := p.Number("nombre"); ok {
				out["nombre"] = n
			}
			if buyer, ok := p.String("acheteur"); ok {
				out["acheteur"] = buyer
			}
			return out, true
		},
	},
	{
		intent:  intent.CreatePesee,
		trigger: regexp.MustCompile(`\b(?:peser|pesee|pese|fait)\b`),
		complete: func(p extract.Params) (map[string]any, bool) {
			// Require an explicit unit: "fait 45 kg" is a weighing,
			// "fait 45 jours" is not.
			v, ok := p["poids_kg"]
			if !ok || v.Rule != extract.RuleWeightUnit {
				return nil, false
			}
			out := map[string]any{"poids_kg": v.Num}
			if code, ok := p.String("animal_code"); ok {
				out["animal_code"] = code
			}
			return out, true
		},
	},
	{
		intent:  intent.CreateVaccination,
		trigger: regexp.MustCompile(`\b(?:vaccins?|vacciner|vaccine|vaccination)\b`),
		complete: func(p extract.Params) (map[string]any, bool) {
			code, ok := p.String("animal_code")
			if !ok {
				return nil, false
			}
			return map[string]any{"animal_code": code}, true
		},
	},
	{
		intent:   intent.GetStatistics,
		trigger:  regexp.MustCompile(`\b(?:statistiques?|bilan|combien de porcs?|nombre de porcs?|cheptel)\b`),
		complete: noParams,
	},
	{
		intent:   intent.GetStockStatus,
		trigger:  regexp.MustCompile(`\b(?:stocks?|combien de provende|reste de provende|niveau de provende)\b`),
		complete: noParams,
	},
	{
		intent:   intent.CalculateCosts,
		trigger:  regexp.MustCompile(`\b(?:couts?|depense totale|mes depenses|combien j ai depense)\b|\bdepenses?\b.*\b(?:du mois|en cours|ce mois|total|combien|quel est)\b|\b(?:total|quel est|combien)\b.*\bdepenses?\b`),
		complete: noParams,
	},
	{
		intent:   intent.Other,
		trigger:  regexp.MustCompile(`\b(?:qui es[ -]tu|tu es qui|quel est ton nom|ton nom|comment tu t appelles|tu t appelles comment|comment tu te nommes|ton prenom|t appelles comment)\b`),
		complete: noParams,
	},
}

func noParams(extract.Params) (map[string]any, bool) { return map[string]any{}, true }

// knowledgeTopics maps education-question phrasings to a knowledge topic.
// Only topic-anchored questions take the fast path; generic question words
// ("comment", "pourquoi") are left to retrieval, which can weigh them
// against the transactional intents.
var knowledgeTopics = []struct {
	re    *regexp.Regexp
	topic string
}{
	{regexp.MustCompile(`\b(?:naisseur|engraisseur|cycle complet|types? d elevage)\b`), "types_elevage"},
	{regexp.MustCompile(`\b(?:races?|large white|landrace|duroc|pietrain|croisement|quelle race|meilleure race)\b`), "races"},
	{regexp.MustCompile(`\b(?:comment nourrir|ration|indice de consommation|fabriquer son aliment|cout alimentation)\b`), "alimentation"},
	{regexp.MustCompile(`\b(?:calendrier vaccination|maladies? des porcs|prophylaxie|biosecurite|peste porcine|rouget|gestation)\b`), "sante"},
	{regexp.MustCompile(`\b(?:rentabilite|combien gagner|marge par porc|investissement initial|seuil de rentabilite|capital necessaire|budget elevage)\b`), "finance"},
	{regexp.MustCompile(`\b(?:ou vendre|comment vendre|prix de vente|canaux de commercialisation|trouver des clients)\b`), "commerce"},
	{regexp.MustCompile(`\b(?:demarrer un elevage|par ou commencer|definir son objectif)\b`), "objectifs"},
	{regexp.MustCompile(`\b(?:ou construire|emplacement|terrain pour elevage|distance habitations)\b`), "emplacement"},
	{regexp.MustCompile(`\b(?:besoin en eau|combien d eau|qualite de l eau|forage ou puits)\b`), "eau"},
	{regexp.MustCompile(`\b(?:reglementation|obligations? legales?|normes? sanitaires?|declaration d elevage)\b`), "reglementation"},
}

// Match tries the canonical forms against the message, in order. It returns
// nil, false when no form fires completely; it never returns a partial match.
func Match(raw string) (*intent.Candidate, bool) {
	msg := textutil.Fold(raw)
	params := extract.Extract(raw, nil)

	for _, f := range forms {
		if !f.trigger.MatchString(msg) {
			continue
		}
		if f.guard != nil && f.guard.MatchString(msg) {
			continue
		}
		out, ok := f.complete(params)
		if !ok {
			continue
		}
		return &intent.Candidate{
			Intent:     f.intent,
			Confidence: 1,
			Source:     intent.SourceFastPath,
			Params:     out,
		}, true
	}

	for _, kt := range knowledgeTopics {
		if kt.re.MatchString(msg) {
			return &intent.Candidate{
				Intent:     intent.AnswerKnowledge,
				Confidence: 1,
				Source:     intent.SourceFastPath,
				Params:     map[string]any{"topic": kt.topic, "question": raw},
			}, true
		}
	}
	return nil, false
}
