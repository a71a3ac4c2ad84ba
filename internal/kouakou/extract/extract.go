// Package extract turns a free-form operator message into a typed parameter
// bag. Extraction is rule-driven: an ordered table of named rules runs most
// specific first, and the first rule to fill a field wins. A field that no
// rule can extract is simply absent from the result; extraction never fails.
package extract

import (
	"time"

	"github.com/kbrou/kouakou/internal/kouakou/textutil"
)

// Kind is the value type carried by an extracted parameter.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindDate   Kind = "date"
)

// Value is one extracted parameter with its provenance.
type Value struct {
	Kind Kind
	// Str holds string and date values (dates as YYYY-MM-DD).
	Str string
	// Num holds numeric values.
	Num float64
	// Rule is the name of the rule that produced the value.
	Rule string
}

// Params maps field names (montant, nombre, poids_kg, date, acheteur,
// animal_code, categorie, libelle, frequence) to extracted values.
type Params map[string]Value

// Number returns the numeric value of a field.
func (p Params) Number(field string) (float64, bool) {
	v, ok := p[field]
	if !ok || v.Kind != KindNumber {
		return 0, false
	}
	return v.Num, true
}

// String returns the string (or date) value of a field.
func (p Params) String(field string) (string, bool) {
	v, ok := p[field]
	if !ok || v.Kind == KindNumber {
		return "", false
	}
	return v.Str, true
}

// Has reports whether a field was extracted.
func (p Params) Has(field string) bool {
	_, ok := p[field]
	return ok
}

// Plain converts the bag to a map of plain Go values, the shape the
// orchestrator hands to action executors and the learning store.
func (p Params) Plain() map[string]any {
	out := make(map[string]any, len(p))
	for field, v := range p {
		if v.Kind == KindNumber {
			out[field] = v.Num
		} else {
			out[field] = v.Str
		}
	}
	return out
}

// Context supplies the domain lookups extraction rules may consult. All
// fields are optional; a zero Context disables the corresponding checks.
type Context struct {
	// AnimalCodes is the list of valid animal identifiers for the project.
	// When non-empty, an extracted code must match one entry exactly
	// (case-folded); near-misses are dropped rather than substituted.
	AnimalCodes []string

	// RecentBuyers lists buyers from recent transactions, most recent
	// first, used to resolve "le meme acheteur".
	RecentBuyers []string

	// ReferenceDate anchors relative date words. Zero means time.Now().
	ReferenceDate time.Time
}

func (c *Context) refDate() time.Time {
	if c == nil || c.ReferenceDate.IsZero() {
		return time.Now()
	}
	return c.ReferenceDate
}

// Rule is one entry of the extraction table. Apply inspects the folded
// message and the fields extracted so far (earlier rules run first, so a
// later rule can exclude numbers an earlier rule already consumed).
type Rule struct {
	Name  string
	Field string
	Apply func(msg string, ctx *Context, sofar Params) (Value, bool)
}

// Extract runs the rule table over the message. Calling it twice with the
// same inputs yields the same output: rules are pure functions of the
// folded text and the context.
func Extract(raw string, ctx *Context) Params {
	msg := textutil.Fold(raw)
	out := make(Params)
	for _, r := range rules {
		if out.Has(r.Field) {
			continue
		}
		if v, ok := r.Apply(msg, ctx, out); ok {
			v.Rule = r.Name
			out[r.Field] = v
		}
	}
	return out
}

func numberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func stringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func dateValue(iso string) Value  { return Value{Kind: KindDate, Str: iso} }
