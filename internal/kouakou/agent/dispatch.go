package agent

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kbrou/kouakou/internal/kouakou/intent"
)

// requiredParam names a parameter an action cannot run without, with the
// question asked when it is missing.
type requiredParam struct {
	field    string
	question string
}

// actionSpec drives the final stage of resolution for one operation:
// which parameters are mandatory, how the operation is named in a "tu veux
// dire ... ?" check, how the confirmation prompt reads and what the
// acknowledgement says. Adding an operation is a table entry, not a new
// branch.
type actionSpec struct {
	required []requiredParam
	label    string
	confirm  func(params map[string]any) string
	ack      func(params map[string]any) string
}

var actions = map[string]actionSpec{
	intent.CreateRevenu: {
		label: "enregistrer une vente",
		required: []requiredParam{
			{"montant", "Quel est le montant de la vente ?"},
		},
		confirm: func(p map[string]any) string {
			return fmt.Sprintf("Confirmer l'enregistrement d'une vente de %s ?", fcfa(p["montant"]))
		},
		ack: func(p map[string]any) string {
			return fmt.Sprintf("Vente de %s enregistrée.", fcfa(p["montant"]))
		},
	},
	intent.CreateDepense: {
		label: "enregistrer une dépense",
		required: []requiredParam{
			{"montant", "Quel est le montant de la dépense ?"},
		},
		confirm: func(p map[string]any) string {
			return fmt.Sprintf("Confirmer l'enregistrement d'une dépense de %s ?", fcfa(p["montant"]))
		},
		ack: func(p map[string]any) string {
			return fmt.Sprintf("Dépense de %s enregistrée.", fcfa(p["montant"]))
		},
	},
	intent.CreateChargeFixe: {
		label: "enregistrer une charge fixe",
		required: []requiredParam{
			{"montant", "Quel est le montant de la charge fixe ?"},
		},
		confirm: func(p map[string]any) string {
			return fmt.Sprintf("Confirmer la charge fixe de %s ?", fcfa(p["montant"]))
		},
		ack: func(p map[string]any) string {
			return fmt.Sprintf("Charge fixe de %s enregistrée.", fcfa(p["montant"]))
		},
	},
	intent.CreatePesee: {
		label: "enregistrer une pesée",
		required: []requiredParam{
			{"poids_kg", "Quel est le poids en kg ?"},
			{"animal_code", "Quel animal as-tu pesé ?"},
		},
		confirm: func(p map[string]any) string {
			return fmt.Sprintf("Confirmer la pesée de %v à %v kg ?", p["animal_code"], p["poids_kg"])
		},
		ack: func(p map[string]any) string {
			return fmt.Sprintf("Pesée enregistrée : %v fait %v kg.", p["animal_code"], p["poids_kg"])
		},
	},
	intent.CreateVaccination: {
		label: "enregistrer une vaccination",
		required: []requiredParam{
			{"animal_code", "Quel animal as-tu vacciné ?"},
		},
		confirm: func(p map[string]any) string {
			return fmt.Sprintf("Confirmer la vaccination de %v ?", p["animal_code"])
		},
		ack: func(p map[string]any) string {
			return fmt.Sprintf("Vaccination de %v enregistrée.", p["animal_code"])
		},
	},
	intent.CreateTraitement: {
		label: "enregistrer un traitement",
		required: []requiredParam{
			{"animal_code", "Quel animal as-tu traité ?"},
		},
		confirm: func(p map[string]any) string {
			return fmt.Sprintf("Confirmer le traitement de %v ?", p["animal_code"])
		},
		ack: func(p map[string]any) string {
			return fmt.Sprintf("Traitement de %v enregistré.", p["animal_code"])
		},
	},
	intent.GetStatistics: {
		label: "voir les statistiques",
		ack: func(map[string]any) string { return "Voici les statistiques de ton élevage." },
	},
	intent.GetStockStatus: {
		label: "voir l'état des stocks",
		ack: func(map[string]any) string { return "Voici l'état de ton stock de provende." },
	},
	intent.CalculateCosts: {
		label: "calculer tes dépenses",
		ack: func(map[string]any) string { return "Voici le total de tes dépenses." },
	},
	intent.SearchAnimal: {
		label: "chercher un animal",
		required: []requiredParam{
			{"animal_code", "Quel animal cherches-tu ?"},
		},
		ack: func(p map[string]any) string {
			return fmt.Sprintf("Voici la fiche de %v.", p["animal_code"])
		},
	},
	intent.DeleteRecord: {
		label: "supprimer un enregistrement",
		confirm: func(map[string]any) string {
			return "Confirmer la suppression ? Cette action est irréversible."
		},
		ack: func(map[string]any) string { return "Enregistrement supprimé." },
	},
}

// fcfa renders a monetary amount with the local currency, grouping
// thousands the way operators write them ("800 000 FCFA").
func fcfa(v any) string {
	n, ok := v.(float64)
	if !ok {
		return fmt.Sprintf("%v FCFA", v)
	}
	s := strconv.FormatFloat(n, 'f', -1, 64)
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 && r != '-' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte(',')
		b.WriteString(frac)
	}
	return b.String() + " FCFA"
}
