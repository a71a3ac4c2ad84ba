package intent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoadCorpus(t *testing.T) {
	corpus, err := LoadCorpus()
	if err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	if len(corpus) < 10 {
		t.Fatalf("corpus has %d entries, want at least 10", len(corpus))
	}
	for _, entry := range corpus {
		if !Known(entry.Intent) {
			t.Errorf("corpus entry %q is not a known intent", entry.Intent)
		}
		if len(entry.Keywords) == 0 {
			t.Errorf("corpus entry %q has no keywords", entry.Intent)
		}
	}
}

func newTestRetriever(t *testing.T, embedder Embedder, tb TieBreaker) *Retriever {
	t.Helper()
	corpus, err := LoadCorpus()
	if err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	return NewRetriever(corpus, Config{}, embedder, tb, nil)
}

func TestRetrieve_KeywordPath(t *testing.T) {
	r := newTestRetriever(t, nil, nil)
	cases := []struct {
		msg    string
		intent string
	}{
		{"statistiques", GetStatistics},
		{"combien de provende il reste", GetStockStatus},
		{"total des dépenses du mois", CalculateCosts},
		{"j'ai vendu 5 porcs à 800000", CreateRevenu},
		{"enregistrer une pesée", CreatePesee},
		{"j'ai vacciné mes porcs", CreateVaccination},
		{"supprime la dernière dépense", DeleteRecord},
	}
	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			cands := r.Retrieve(context.Background(), "proj", tc.msg, 3)
			if len(cands) == 0 {
				t.Fatalf("Retrieve(%q) = empty", tc.msg)
			}
			if cands[0].Intent != tc.intent {
				t.Errorf("top intent = %s (%.2f), want %s", cands[0].Intent, cands[0].Confidence, tc.intent)
			}
			if cands[0].Source != SourceRetrieval {
				t.Errorf("source = %s, want %s", cands[0].Source, SourceRetrieval)
			}
			if cands[0].Confidence <= 0 || cands[0].Confidence > 1 {
				t.Errorf("confidence out of range: %v", cands[0].Confidence)
			}
		})
	}
}

func TestRetrieve_InflectedKeyword(t *testing.T) {
	r := newTestRetriever(t, nil, nil)

	// "revendu" matches the keyword "vendu" by containment even though no
	// message token equals it.
	cands := r.Retrieve(context.Background(), "proj", "j'ai revendu trois sujets", 3)
	if len(cands) == 0 {
		t.Fatal("inflected form retrieved nothing")
	}
	if cands[0].Intent != CreateRevenu {
		t.Errorf("top intent = %s, want %s", cands[0].Intent, CreateRevenu)
	}
}

func TestRetrieve_InflectionsOfSameKeywordCountOnce(t *testing.T) {
	corpus := []TrainingExample{
		{Intent: CreateDepense, Title: "depense", Keywords: []string{"depense", "depenses"}, Texts: []string{"noter une depense"}},
		{Intent: CalculateCosts, Title: "couts", Keywords: []string{"total", "depenses"}, Texts: []string{"total des depenses du mois"}},
	}
	r := NewRetriever(corpus, Config{}, nil, nil, nil)

	// "depense"/"depenses" are one stem; the totals entry matches two
	// distinct keywords and must rank first.
	cands := r.Retrieve(context.Background(), "proj", "total des depenses du mois", 2)
	if len(cands) == 0 {
		t.Fatal("retrieved nothing")
	}
	if cands[0].Intent != CalculateCosts {
		t.Errorf("top intent = %s, want %s", cands[0].Intent, CalculateCosts)
	}
}

func TestRetrieve_EmptyMeansEscalate(t *testing.T) {
	r := newTestRetriever(t, nil, nil)
	if cands := r.Retrieve(context.Background(), "proj", "xyzzy frobnicate", 3); len(cands) != 0 {
		t.Errorf("Retrieve of gibberish = %v, want empty", cands)
	}
}

func TestRetrieve_SortedDescending(t *testing.T) {
	r := newTestRetriever(t, nil, nil)
	cands := r.Retrieve(context.Background(), "proj", "mes dépenses du mois", 3)
	for i := 1; i < len(cands); i++ {
		if cands[i].Confidence > cands[i-1].Confidence {
			t.Errorf("candidates not sorted: %v", cands)
		}
	}
}

func TestRetrieve_MonotonicScore(t *testing.T) {
	r := newTestRetriever(t, nil, nil)
	base := topConfidence(r, CalculateCosts, "mes dépenses")
	more := topConfidence(r, CalculateCosts, "mes dépenses total")
	if more < base {
		t.Errorf("adding a matching keyword lowered confidence: %v -> %v", base, more)
	}
}

func topConfidence(r *Retriever, intentName, msg string) float64 {
	for _, c := range r.Retrieve(context.Background(), "proj", msg, 5) {
		if c.Intent == intentName {
			return c.Confidence
		}
	}
	return 0
}

type stubTieBreaker struct {
	usage     map[string]int
	corrected map[string]time.Time
}

func (s *stubTieBreaker) UsageCount(_, intentName string) int { return s.usage[intentName] }
func (s *stubTieBreaker) LastCorrectedAt(_, intentName string) time.Time {
	return s.corrected[intentName]
}

func TestRetrieve_TieBreakByUsage(t *testing.T) {
	corpus := []TrainingExample{
		{Intent: CreatePesee, Title: "alpha", Keywords: []string{"mesure"}, Texts: []string{"faire une mesure"}},
		{Intent: CreateVaccination, Title: "beta", Keywords: []string{"mesure"}, Texts: []string{"faire une mesure"}},
	}
	tb := &stubTieBreaker{usage: map[string]int{CreateVaccination: 7, CreatePesee: 1}}
	r := NewRetriever(corpus, Config{}, nil, tb, nil)

	cands := r.Retrieve(context.Background(), "proj", "faire une mesure", 2)
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2", len(cands))
	}
	if cands[0].Intent != CreateVaccination {
		t.Errorf("tie broken to %s, want %s (higher usage)", cands[0].Intent, CreateVaccination)
	}
}

func TestRetrieve_TieBreakByCorrection(t *testing.T) {
	corpus := []TrainingExample{
		{Intent: CreatePesee, Title: "alpha", Keywords: []string{"mesure"}, Texts: []string{"faire une mesure"}},
		{Intent: CreateVaccination, Title: "beta", Keywords: []string{"mesure"}, Texts: []string{"faire une mesure"}},
	}
	tb := &stubTieBreaker{
		usage:     map[string]int{},
		corrected: map[string]time.Time{CreatePesee: time.Now()},
	}
	r := NewRetriever(corpus, Config{}, nil, tb, nil)

	cands := r.Retrieve(context.Background(), "proj", "faire une mesure", 2)
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2", len(cands))
	}
	if cands[0].Intent != CreatePesee {
		t.Errorf("tie broken to %s, want %s (recent correction)", cands[0].Intent, CreatePesee)
	}
}

type stubEmbedder struct {
	vec   func(text string) []float32
	fail  bool
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.fail {
		return nil, errors.New("embedder down")
	}
	s.calls++
	return s.vec(text), nil
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if s.fail {
		return nil, errors.New("embedder down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = s.vec(t)
	}
	return out, nil
}

func TestRetrieve_SemanticPath(t *testing.T) {
	corpus := []TrainingExample{
		{Intent: CreateRevenu, Title: "vente", Keywords: []string{"vendu"}, Texts: []string{"j ai vendu des porcs"}},
		{Intent: CreatePesee, Title: "pesee", Keywords: []string{"pesee"}, Texts: []string{"peser un porc"}},
	}
	emb := &stubEmbedder{vec: func(text string) []float32 {
		if containsAny(text, "vendu", "vente", "cede") {
			return []float32{1, 0}
		}
		return []float32{0, 1}
	}}
	r := NewRetriever(corpus, Config{}, emb, nil, nil)

	// "cede" shares no keyword with the sale entry; only the embedding
	// space links them.
	cands := r.Retrieve(context.Background(), "proj", "j ai cede des animaux", 2)
	if len(cands) == 0 {
		t.Fatal("semantic path returned nothing")
	}
	if cands[0].Intent != CreateRevenu {
		t.Errorf("top intent = %s, want %s", cands[0].Intent, CreateRevenu)
	}
	if cands[0].Confidence < 0.9 {
		t.Errorf("confidence = %v, want >= 0.9 for an exact-direction match", cands[0].Confidence)
	}
}

func TestRetrieve_SemanticFailureFallsBackToKeywords(t *testing.T) {
	corpus := []TrainingExample{
		{Intent: CreateRevenu, Title: "vente", Keywords: []string{"vendu", "vente"}, Texts: []string{"j ai vendu des porcs"}},
	}
	emb := &stubEmbedder{fail: true}
	r := NewRetriever(corpus, Config{}, emb, nil, nil)

	cands := r.Retrieve(context.Background(), "proj", "vente de porcs vendu", 2)
	if len(cands) == 0 {
		t.Fatal("expected keyword fallback to produce a candidate")
	}
	if cands[0].Intent != CreateRevenu {
		t.Errorf("top intent = %s, want %s", cands[0].Intent, CreateRevenu)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
