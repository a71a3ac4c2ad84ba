// Package knowledge answers husbandry questions from the knowledge base.
// Search runs a scored relevance query against the store; when that query
// fails it degrades to an in-process scan over the active documents so a
// question never errors out just because the ranked query could not run.
package knowledge

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kbrou/kouakou/internal/kouakou/store"
	"github.com/kbrou/kouakou/internal/kouakou/textutil"
)

const (
	defaultLimit  = 3
	cacheTTL      = 5 * time.Minute
	minTermLength = 3
)

// Result is one ranked knowledge document, identical whichever search path
// produced it.
type Result struct {
	ID       string
	Category string
	Title    string
	Content  string
	Summary  string
	Keywords []string
	Priority int
	Score    float64
}

// Service searches and seeds the knowledge base.
type Service struct {
	store *store.Store
	cache *resultCache
	log   *slog.Logger
}

func NewService(st *store.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store: st,
		cache: newResultCache(cacheTTL),
		log:   log.With("component", "knowledge"),
	}
}

// Search ranks documents against the question. The primary path is the
// scored SQL query; on error it falls back to scoring the active documents
// in process with the same weights, so both paths rank identically.
func (s *Service) Search(ctx context.Context, query, category, projetID string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	key := cacheKey(projetID, category, terms, limit)
	if cached, ok := s.cache.get(key); ok {
		return cached, nil
	}

	results, err := s.searchPrimary(ctx, terms, category, projetID, limit)
	if err != nil {
		s.log.Warn("ranked knowledge query failed, scanning in process", "error", err)
		results, err = s.searchFallback(ctx, terms, category, projetID, limit)
		if err != nil {
			return nil, err
		}
	}

	s.cache.put(key, results)
	s.countViews(ctx, results)
	return results, nil
}

func (s *Service) searchPrimary(ctx context.Context, terms []string, category, projetID string, limit int) ([]Result, error) {
	matches, err := s.store.SearchKnowledge(ctx, terms, category, projetID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(matches))
	for _, m := range matches {
		out = append(out, toResult(m.Doc, m.Score))
	}
	return out, nil
}

func (s *Service) searchFallback(ctx context.Context, terms []string, category, projetID string, limit int) ([]Result, error) {
	docs, err := s.store.ActiveKnowledge(ctx, projetID)
	if err != nil {
		return nil, err
	}

	var out []Result
	for _, doc := range docs {
		if category != "" && doc.Category != category {
			continue
		}
		score := scoreDoc(doc, terms)
		if score <= 0 {
			continue
		}
		out = append(out, toResult(doc, score))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Priority > out[j].Priority
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// scoreDoc applies the relevance weights of the SQL query in process:
// title 10, keyword 8, content 3 per matching term.
func scoreDoc(doc store.KnowledgeDoc, terms []string) float64 {
	title := strings.ToLower(doc.Title)
	content := strings.ToLower(doc.Content)
	var score float64
	for _, term := range terms {
		if strings.Contains(title, term) {
			score += 10
		}
		if keywordMatches(doc.Keywords, term) {
			score += 8
		}
		if strings.Contains(content, term) {
			score += 3
		}
	}
	return score
}

func keywordMatches(keywords []string, term string) bool {
	for _, kw := range keywords {
		if strings.Contains(strings.ToLower(kw), term) {
			return true
		}
	}
	return false
}

func toResult(doc store.KnowledgeDoc, score float64) Result {
	return Result{
		ID:       doc.ID,
		Category: doc.Category,
		Title:    doc.Title,
		Content:  doc.Content,
		Summary:  doc.Summary.String,
		Keywords: doc.Keywords,
		Priority: doc.Priority,
		Score:    score,
	}
}

// countViews bumps the view counter of every returned document. The counter
// is advisory; failures are logged and swallowed.
func (s *Service) countViews(ctx context.Context, results []Result) {
	for _, r := range results {
		if err := s.store.IncrementViewCount(ctx, r.ID); err != nil {
			s.log.Warn("increment view count", "doc", r.ID, "error", err)
		}
	}
}

// MarkHelpful records operator feedback on a document.
func (s *Service) MarkHelpful(ctx context.Context, id string) error {
	return s.store.MarkHelpful(ctx, id)
}

// searchTerms reduces the question to the normalized tokens worth matching:
// significant keywords first, padded with any remaining tokens of useful
// length so short questions still produce terms.
func searchTerms(query string) []string {
	terms := textutil.Keywords(query)
	if len(terms) > 0 {
		return terms
	}
	var out []string
	for _, tok := range textutil.Tokens(query) {
		if len(tok) >= minTermLength {
			out = append(out, tok)
		}
	}
	return out
}

func cacheKey(projetID, category string, terms []string, limit int) string {
	return projetID + "|" + category + "|" + strings.Join(terms, " ") + "|" + strconv.Itoa(limit)
}
