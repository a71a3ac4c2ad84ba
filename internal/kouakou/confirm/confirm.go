// Package confirm decides whether a resolved action needs explicit user
// approval before it executes. The decision is a pure function of the action
// kind, the extracted parameters, the resolution confidence and the learned
// user preference; it never depends on retry state or conversation history.
package confirm

import (
	"strings"

	"github.com/kbrou/kouakou/internal/kouakou/extract"
)

// ActionKind classifies an intent for the confirmation rules.
type ActionKind int

const (
	// KindQuery is a read-only information request.
	KindQuery ActionKind = iota
	// KindMutation writes a record (sale, expense, weighing, ...).
	KindMutation
	// KindDestructive removes or invalidates existing data.
	KindDestructive
)

// destructiveMarkers identify delete-kind intents by name.
var destructiveMarkers = []string{"delete", "supprimer", "effacer"}

// queryPrefixes identify read-only intents by name.
var queryPrefixes = []string{"get_", "calculate_", "search_", "answer_"}

// KindOf derives the ActionKind from an intent name.
func KindOf(intentName string) ActionKind {
	for _, m := range destructiveMarkers {
		if strings.Contains(intentName, m) {
			return KindDestructive
		}
	}
	for _, p := range queryPrefixes {
		if strings.HasPrefix(intentName, p) {
			return KindQuery
		}
	}
	return KindMutation
}

// Preference is the learned per-user friction setting. It can only relax
// the low-confidence rule; destructive actions and large amounts are always
// confirmed regardless of preference.
type Preference struct {
	// SkipLowConfidence skips the "did you mean" confirmation for
	// low-confidence resolutions. Earned by users who consistently confirm
	// without corrections.
	SkipLowConfidence bool
}

const (
	// DefaultAmountCeiling is the FCFA amount above which any action is
	// confirmed, whatever its kind or confidence.
	DefaultAmountCeiling = 5_000_000

	// DefaultClarificationFloor is the confidence below which a
	// non-critical action asks "did you mean ...?" first.
	DefaultClarificationFloor = 0.80
)

// Policy holds the confirmation thresholds.
type Policy struct {
	// AmountCeiling is the monetary threshold for rule 2.
	// Zero means DefaultAmountCeiling.
	AmountCeiling float64

	// ClarificationFloor is the confidence threshold for rule 3.
	// Zero means DefaultClarificationFloor.
	ClarificationFloor float64
}

func (p Policy) withDefaults() Policy {
	if p.AmountCeiling <= 0 {
		p.AmountCeiling = DefaultAmountCeiling
	}
	if p.ClarificationFloor <= 0 {
		p.ClarificationFloor = DefaultClarificationFloor
	}
	return p
}

// amountFields are checked in order for the rule-2 monetary threshold.
var amountFields = []string{"montant", "prix", "cout"}

// criticalTerms in any string parameter force confirmation: grave sanitary
// decisions are treated like destructive actions.
var criticalTerms = []string{"abattage", "euthanasie", "quarantaine totale"}

// Reason says which rule demanded the confirmation. Callers phrase the
// prompt differently: a low-confidence hit reads "tu veux dire ... ?",
// the others read "confirmer ... ?".
type Reason int

const (
	// ReasonNone means the action runs without confirmation.
	ReasonNone Reason = iota
	// ReasonCritical covers destructive actions and grave sanitary
	// decisions.
	ReasonCritical
	// ReasonLargeAmount covers amounts above the ceiling.
	ReasonLargeAmount
	// ReasonLowConfidence covers resolutions below the clarification floor.
	ReasonLowConfidence
)

// Evaluate applies the confirmation rules in order and returns the first
// one that fires:
//  1. Destructive actions (and grave sanitary decisions) always confirm.
//  2. Amounts above the ceiling always confirm.
//  3. Confidence below the clarification floor confirms, unless the user
//     preference relaxes it.
//  4. Otherwise no confirmation.
//
// Preference can only affect rule 3.
func (p Policy) Evaluate(kind ActionKind, params extract.Params, confidence float64, pref Preference) Reason {
	p = p.withDefaults()

	if kind == KindDestructive || hasCriticalTerm(params) {
		return ReasonCritical
	}

	for _, field := range amountFields {
		if amount, ok := params.Number(field); ok && amount > p.AmountCeiling {
			return ReasonLargeAmount
		}
	}

	if confidence < p.ClarificationFloor && !pref.SkipLowConfidence {
		return ReasonLowConfidence
	}

	return ReasonNone
}

// Requires reports whether the action must be confirmed before execution.
func (p Policy) Requires(kind ActionKind, params extract.Params, confidence float64, pref Preference) bool {
	return p.Evaluate(kind, params, confidence, pref) != ReasonNone
}

func hasCriticalTerm(params extract.Params) bool {
	for _, v := range params {
		if v.Kind == extract.KindNumber {
			continue
		}
		for _, term := range criticalTerms {
			if strings.Contains(v.Str, term) {
				return true
			}
		}
	}
	return false
}
