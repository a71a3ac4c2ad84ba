package extract

import (
	"reflect"
	"testing"
	"time"
)

func TestExtract_Weight(t *testing.T) {
	cases := []struct {
		msg    string
		code   string
		weight float64
	}{
		{"P001 fait 45 kg", "P001", 45},
		{"peser le porc P001 il fait 45 kg", "P001", 45},
		{"P002 pèse 50,5 kg", "P002", 50.5},
		{"P002 fait 50.5 kg", "P002", 50.5},
		{"pesée P003 : 62 kilos", "P003", 62},
	}
	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			p := Extract(tc.msg, nil)
			if got, _ := p.String("animal_code"); got != tc.code {
				t.Errorf("animal_code = %q, want %q", got, tc.code)
			}
			if got, _ := p.Number("poids_kg"); got != tc.weight {
				t.Errorf("poids_kg = %v, want %v", got, tc.weight)
			}
		})
	}
}

func TestExtract_AmountVsQuantity(t *testing.T) {
	cases := []struct {
		msg    string
		amount float64
		count  float64
	}{
		{"vendu 5 porcs 800000", 800000, 5},
		{"j'ai vendu 5 porcs à 800000", 800000, 5},
		{"vente de 3 porcs pour 450 000 fcfa", 450000, 3},
		{"j'ai dépensé 150k en provende", 150000, 0},
		{"vendu 2 porcs à 1 million", 1000000, 2},
	}
	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			p := Extract(tc.msg, nil)
			if got, _ := p.Number("montant"); got != tc.amount {
				t.Errorf("montant = %v, want %v", got, tc.amount)
			}
			got, ok := p.Number("nombre")
			if tc.count == 0 {
				if ok {
					t.Errorf("nombre = %v, want absent", got)
				}
			} else if got != tc.count {
				t.Errorf("nombre = %v, want %v", got, tc.count)
			}
		})
	}
}

func TestExtract_WeightIsNotAmount(t *testing.T) {
	p := Extract("P001 fait 45 kg", nil)
	if v, ok := p.Number("montant"); ok {
		t.Errorf("montant = %v, want absent", v)
	}
}

func TestExtract_Dates(t *testing.T) {
	ref := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ctx := &Context{ReferenceDate: ref}

	cases := []struct {
		msg  string
		want string
	}{
		{"pesée P001 45 kg hier", "2026-03-09"},
		{"vacciné les porcs avant hier", "2026-03-08"},
		{"vendu 2 porcs aujourd'hui", "2026-03-10"},
		{"vaccination prévue demain", "2026-03-11"},
		{"pesée du 15/01", "2026-01-15"},
		{"dépense du 15/01/2025", "2025-01-15"},
		{"dépense du 15/01/25", "2025-01-15"},
	}
	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			got, ok := Extract(tc.msg, ctx).String("date")
			if !ok || got != tc.want {
				t.Errorf("date = %q (ok=%v), want %q", got, ok, tc.want)
			}
		})
	}
}

func TestExtract_InvalidDateDropped(t *testing.T) {
	p := Extract("pesée du 32/13", &Context{ReferenceDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	if v, ok := p.String("date"); ok {
		t.Errorf("date = %q, want absent", v)
	}
}

func TestExtract_Buyer(t *testing.T) {
	cases := []struct {
		msg  string
		want string
	}{
		{"vendu 3 porcs à 450000 chez Kouamé", "kouame"},
		{"j'ai vendu 5 porcs à 800000 pour Kouamé", "kouame"},
		{"acheteur Diallo 2 porcs", "diallo"},
		{"vendu à Yao", "yao"},
	}
	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			got, ok := Extract(tc.msg, nil).String("acheteur")
			if !ok || got != tc.want {
				t.Errorf("acheteur = %q (ok=%v), want %q", got, ok, tc.want)
			}
		})
	}
}

func TestExtract_SameBuyerReference(t *testing.T) {
	ctx := &Context{RecentBuyers: []string{"kouame", "diallo"}}
	got, ok := Extract("vendu 2 porcs au même acheteur", ctx).String("acheteur")
	if !ok || got != "kouame" {
		t.Errorf("acheteur = %q (ok=%v), want %q", got, ok, "kouame")
	}

	// Without recent buyers there is nothing to resolve against.
	if v, ok := Extract("vendu 2 porcs au même acheteur", nil).String("acheteur"); ok {
		t.Errorf("acheteur = %q, want absent", v)
	}
}

func TestExtract_AnimalCodeValidation(t *testing.T) {
	ctx := &Context{AnimalCodes: []string{"P001", "P002"}}

	if got, _ := Extract("p001 fait 45 kg", ctx).String("animal_code"); got != "P001" {
		t.Errorf("animal_code = %q, want P001", got)
	}
	// A code outside the known list is dropped, not substituted.
	if v, ok := Extract("p009 fait 45 kg", ctx).String("animal_code"); ok {
		t.Errorf("animal_code = %q, want absent", v)
	}
}

func TestExtract_CategoryAndFrequency(t *testing.T) {
	p := Extract("charge fixe salaire 50000 mensuel", nil)
	if got, _ := p.String("categorie"); got != "main_oeuvre" {
		t.Errorf("categorie = %q, want main_oeuvre", got)
	}
	if got, _ := p.String("libelle"); got != "salaire" {
		t.Errorf("libelle = %q, want salaire", got)
	}
	if got, _ := p.String("frequence"); got != "mensuel" {
		t.Errorf("frequence = %q, want mensuel", got)
	}
	if got, _ := p.Number("montant"); got != 50000 {
		t.Errorf("montant = %v, want 50000", got)
	}

	// No frequency word means no frequency field, not a default.
	if v, ok := Extract("dépense provende 25000", nil).String("frequence"); ok {
		t.Errorf("frequence = %q, want absent", v)
	}
}

func TestExtract_CategorySynonyms(t *testing.T) {
	cases := []struct {
		msg  string
		want string
	}{
		{"acheté de la provende 30000", "alimentation"},
		{"médicaments pour les porcs 12000", "sante"},
		{"essence de la moto 5000", "transport"},
		{"facture courant 8000", "eau_electricite"},
	}
	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			got, ok := Extract(tc.msg, nil).String("categorie")
			if !ok || got != tc.want {
				t.Errorf("categorie = %q (ok=%v), want %q", got, ok, tc.want)
			}
		})
	}
}

func TestExtract_Deterministic(t *testing.T) {
	ctx := &Context{
		AnimalCodes:   []string{"P001"},
		RecentBuyers:  []string{"kouame"},
		ReferenceDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	msg := "j'ai vendu 5 porcs à 800000 chez Kouamé hier"
	first := Extract(msg, ctx)
	second := Extract(msg, ctx)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("extraction not deterministic:\nfirst  %#v\nsecond %#v", first, second)
	}
}

func TestExtract_Plain(t *testing.T) {
	p := Extract("P001 fait 45 kg", nil)
	plain := p.Plain()
	if plain["animal_code"] != "P001" {
		t.Errorf("plain animal_code = %v", plain["animal_code"])
	}
	if plain["poids_kg"] != 45.0 {
		t.Errorf("plain poids_kg = %v", plain["poids_kg"])
	}
}

func TestExtract_BoundsRejected(t *testing.T) {
	// A weight of a tonne or a herd of a million is a typo, not data.
	if v, ok := Extract("P001 fait 4500 kg", nil).Number("poids_kg"); ok {
		t.Errorf("poids_kg = %v, want absent", v)
	}
	if v, ok := Extract("vendu 99999 porcs", nil).Number("nombre"); ok {
		t.Errorf("nombre = %v, want absent", v)
	}
}
