// Package intent names the operations the assistant can perform and matches
// free-form messages against a curated example corpus. Matching is
// retrieval-augmented: a keyword-scored pass over the corpus first, an
// optional cosine-similarity pass over cached embeddings when an embedding
// provider is configured.
package intent

// Operation names. The set is closed per process: a candidate naming an
// unknown operation is discarded wherever it comes from.
const (
	CreateRevenu      = "create_revenu"
	CreateDepense     = "create_depense"
	CreateChargeFixe  = "create_charge_fixe"
	CreatePesee       = "create_pesee"
	CreateVaccination = "create_vaccination"
	CreateTraitement  = "create_traitement"
	GetStatistics     = "get_statistics"
	GetStockStatus    = "get_stock_status"
	CalculateCosts    = "calculate_costs"
	SearchAnimal      = "search_animal"
	AnswerKnowledge   = "answer_knowledge_question"
	DeleteRecord      = "delete_record"
	Other             = "other"
)

// All lists every known operation name.
var All = []string{
	CreateRevenu,
	CreateDepense,
	CreateChargeFixe,
	CreatePesee,
	CreateVaccination,
	CreateTraitement,
	GetStatistics,
	GetStockStatus,
	CalculateCosts,
	SearchAnimal,
	AnswerKnowledge,
	DeleteRecord,
	Other,
}

var known = func() map[string]struct{} {
	m := make(map[string]struct{}, len(All))
	for _, name := range All {
		m[name] = struct{}{}
	}
	return m
}()

// Known reports whether name is a recognized operation.
func Known(name string) bool {
	_, ok := known[name]
	return ok
}

// Source tells which stage of the pipeline produced a candidate.
type Source string

const (
	SourceFastPath    Source = "fast_path"
	SourceRetrieval   Source = "retrieval"
	SourceHostedModel Source = "hosted_model"
	SourceLearned     Source = "learned"
)

// Candidate is one possible resolution of a message, scored in [0,1].
type Candidate struct {
	Intent     string
	Confidence float64
	Source     Source
	Params     map[string]any
}
