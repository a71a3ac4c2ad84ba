package intent

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kbrou/kouakou/internal/kouakou/textutil"
)

// Keyword-path weights. A message scores against each corpus entry and only
// entries above the configured floor survive.
const (
	keywordWeight   = 10 // message contains one of the entry's keywords
	substringWeight = 5  // message token (len>2) is a substring of a keyword
	titleWeight     = 15 // message contains the entry's canonical title
	textTokenWeight = 2  // message token (len>3) appears in an example text
)

// Embedder is the slice of the embedding service the retriever needs. A nil
// Embedder disables the semantic path entirely.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// TieBreaker resolves equal retrieval scores from learning history. A nil
// TieBreaker leaves ties in corpus order.
type TieBreaker interface {
	// UsageCount returns how often the intent was successfully resolved
	// for the project.
	UsageCount(projectID, intentName string) int
	// LastCorrectedAt returns when the user last corrected a resolution
	// to this intent for the project; zero when never.
	LastCorrectedAt(projectID, intentName string) time.Time
}

// Config tunes the retriever. The literal values are hand-tuned, not
// derived; keep them configurable.
type Config struct {
	// Floor is the minimum keyword score an entry must exceed.
	Floor float64
	// ScoreScale divides the keyword score to produce a confidence.
	ScoreScale float64
	// MaxConfidence caps retrieval confidence; retrieval is never as
	// certain as the fast path.
	MaxConfidence float64
	// SemanticFloor is the minimum cosine similarity on the semantic path.
	SemanticFloor float64
}

func (c Config) withDefaults() Config {
	if c.Floor == 0 {
		c.Floor = 5
	}
	if c.ScoreScale == 0 {
		c.ScoreScale = 30
	}
	if c.MaxConfidence == 0 {
		c.MaxConfidence = 0.95
	}
	if c.SemanticFloor == 0 {
		c.SemanticFloor = 0.6
	}
	return c
}

// Retriever scores messages against the training corpus. Construction
// precomputes the inverted index and per-entry token sets; afterwards the
// struct is read-only except for the lazily built example embeddings,
// which are mutex-guarded, so it is safe for concurrent use.
type Retriever struct {
	cfg    Config
	corpus []TrainingExample
	log    *slog.Logger

	embedder   Embedder
	tieBreaker TieBreaker

	// index maps a significant token to the corpus entries whose example
	// texts contain it. Tokens present in >30% of entries are pruned as
	// stop words.
	index map[string][]int
	// textTokens holds, per entry, the token set of its example texts.
	textTokens []map[string]bool
	// templated holds, per entry, its example texts with numeric values
	// collapsed to placeholders, the form the semantic path embeds.
	templated [][]string

	vecMu       sync.Mutex
	exampleVecs [][][]float32
}

// NewRetriever builds a retriever over the corpus. embedder and tieBreaker
// may be nil.
func NewRetriever(corpus []TrainingExample, cfg Config, embedder Embedder, tieBreaker TieBreaker, log *slog.Logger) *Retriever {
	if log == nil {
		log = slog.Default()
	}
	r := &Retriever{
		cfg:        cfg.withDefaults(),
		corpus:     corpus,
		log:        log,
		embedder:   embedder,
		tieBreaker: tieBreaker,
		index:      make(map[string][]int),
		textTokens: make([]map[string]bool, len(corpus)),
		templated:  make([][]string, len(corpus)),
	}
	r.buildIndex()
	return r
}

func (r *Retriever) buildIndex() {
	for i, entry := range r.corpus {
		tokens := make(map[string]bool)
		r.templated[i] = make([]string, len(entry.Texts))
		for j, text := range entry.Texts {
			t := textutil.Template(text)
			r.templated[i][j] = t
			for _, w := range strings.Fields(t) {
				if len(w) < 3 || strings.HasPrefix(w, "[") {
					continue
				}
				tokens[w] = true
			}
		}
		r.textTokens[i] = tokens
		for w := range tokens {
			r.index[w] = append(r.index[w], i)
		}
	}

	// Tokens shared by nearly every entry discriminate nothing.
	stopThreshold := int(float64(len(r.corpus)) * 0.3)
	for w, entries := range r.index {
		if len(entries) > stopThreshold {
			delete(r.index, w)
		}
	}
}

// Retrieve returns up to topK candidates sorted by confidence descending.
// An empty result tells the caller to escalate to the hosted classifier.
func (r *Retriever) Retrieve(ctx context.Context, projectID, message string, topK int) []Candidate {
	if topK <= 0 {
		topK = 3
	}
	msg := textutil.Normalize(message)
	if msg == "" {
		return nil
	}

	if r.embedder != nil {
		if cands, ok := r.retrieveSemantic(ctx, projectID, msg, topK); ok {
			return cands
		}
	}
	return r.retrieveKeyword(projectID, msg, topK)
}

type scored struct {
	entry int
	score float64
}

func (r *Retriever) retrieveKeyword(projectID, msg string, topK int) []Candidate {
	tokens := uniqueTokens(msg)

	entries := r.candidateEntries(msg, tokens)
	results := make([]scored, 0, len(entries))
	for _, i := range entries {
		if s := r.scoreEntry(i, msg, tokens); s > r.cfg.Floor {
			results = append(results, scored{entry: i, score: s})
		}
	}
	r.sortScored(projectID, results)

	if len(results) > topK {
		results = results[:topK]
	}
	cands := make([]Candidate, len(results))
	for i, res := range results {
		cands[i] = Candidate{
			Intent:     r.corpus[res.entry].Intent,
			Confidence: math.Min(r.cfg.MaxConfidence, res.score/r.cfg.ScoreScale),
			Source:     SourceRetrieval,
		}
	}
	return cands
}

func (r *Retriever) scoreEntry(i int, msg string, tokens []string) float64 {
	entry := r.corpus[i]
	var score float64

	// A keyword matches by containment, so inflected forms ("revendu" for
	// "vendu") still score. Inflections of an already-matched keyword
	// ("depense" next to "depenses") count once.
	matched := make(map[string]bool)
	for _, kw := range entry.Keywords {
		if !strings.Contains(msg, kw) {
			continue
		}
		dup := false
		for m := range matched {
			if strings.Contains(m, kw) || strings.Contains(kw, m) {
				dup = true
				break
			}
		}
		matched[kw] = true
		if !dup {
			score += keywordWeight
		}
	}
	for _, t := range tokens {
		if len(t) < 3 || matched[t] {
			continue
		}
		for _, kw := range entry.Keywords {
			if !matched[kw] && strings.Contains(kw, t) {
				score += substringWeight
				break
			}
		}
	}
	if entry.Title != "" && strings.Contains(msg, entry.Title) {
		score += titleWeight
	}
	for _, t := range tokens {
		if len(t) > 3 && r.textTokens[i][t] {
			score += textTokenWeight
		}
	}
	return score
}

// candidateEntries preselects corpus entries via the inverted index plus a
// keyword containment scan, so an entry whose keyword appears only inside an
// inflected word is still scored. When nothing matches it falls back to
// scanning everything, so an index miss can only cost time, never recall.
func (r *Retriever) candidateEntries(msg string, tokens []string) []int {
	seen := make(map[int]bool)
	var out []int
	for _, t := range tokens {
		for _, i := range r.index[t] {
			if !seen[i] {
				seen[i] = true
				out = append(out, i)
			}
		}
	}
	for i, entry := range r.corpus {
		if seen[i] {
			continue
		}
		for _, kw := range entry.Keywords {
			if strings.Contains(msg, kw) {
				seen[i] = true
				out = append(out, i)
				break
			}
		}
	}
	if len(out) == 0 {
		out = make([]int, len(r.corpus))
		for i := range r.corpus {
			out[i] = i
		}
	}
	return out
}

// sortScored orders by score descending; exact ties fall back to learning
// history (higher usage count, then most recent correction).
func (r *Retriever) sortScored(projectID string, results []scored) {
	sort.SliceStable(results, func(a, b int) bool {
		ra, rb := results[a], results[b]
		if ra.score != rb.score {
			return ra.score > rb.score
		}
		if r.tieBreaker == nil {
			return false
		}
		ia, ib := r.corpus[ra.entry].Intent, r.corpus[rb.entry].Intent
		ua, ub := r.tieBreaker.UsageCount(projectID, ia), r.tieBreaker.UsageCount(projectID, ib)
		if ua != ub {
			return ua > ub
		}
		return r.tieBreaker.LastCorrectedAt(projectID, ia).After(r.tieBreaker.LastCorrectedAt(projectID, ib))
	})
}

// retrieveSemantic scores by cosine similarity against the cached example
// embeddings. ok is false when the embedding service failed or nothing
// cleared the similarity floor with a usable margin, in which case the
// caller runs the keyword path instead.
func (r *Retriever) retrieveSemantic(ctx context.Context, projectID, msg string, topK int) ([]Candidate, bool) {
	if err := r.ensureExampleVecs(ctx); err != nil {
		r.log.Debug("semantic retrieval unavailable", "error", err)
		return nil, false
	}
	qv, err := r.embedder.Embed(ctx, textutil.Template(msg))
	if err != nil {
		r.log.Debug("message embedding failed", "error", err)
		return nil, false
	}

	floor := r.cfg.SemanticFloor
	var results []scored
	for i := range r.corpus {
		best := 0.0
		for _, ev := range r.exampleVecs[i] {
			if sim := cosine(qv, ev); sim > best {
				best = sim
			}
		}
		if best >= floor {
			results = append(results, scored{entry: i, score: best})
		}
	}
	if len(results) == 0 {
		return nil, false
	}
	r.sortScored(projectID, results)
	if len(results) > topK {
		results = results[:topK]
	}

	cands := make([]Candidate, len(results))
	for i, res := range results {
		boost := (res.score - floor) / (1 - floor)
		cands[i] = Candidate{
			Intent:     r.corpus[res.entry].Intent,
			Confidence: math.Min(r.cfg.MaxConfidence, 0.7+0.3*boost),
			Source:     SourceRetrieval,
		}
	}
	return cands, true
}

// ensureExampleVecs embeds the whole corpus once, in one batch call per
// entry. The Embedder memoizes by exact text, so repeated calls after a
// transient failure only fetch what is still missing.
func (r *Retriever) ensureExampleVecs(ctx context.Context) error {
	r.vecMu.Lock()
	defer r.vecMu.Unlock()
	if r.exampleVecs != nil {
		return nil
	}
	vecs := make([][][]float32, len(r.corpus))
	for i := range r.corpus {
		vs, err := r.embedder.EmbedBatch(ctx, r.templated[i])
		if err != nil {
			return err
		}
		vecs[i] = vs
	}
	r.exampleVecs = vecs
	return nil
}

func uniqueTokens(msg string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range strings.Fields(msg) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
