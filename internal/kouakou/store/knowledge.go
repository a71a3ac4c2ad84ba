package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// KnowledgeDoc is one knowledge-base document.
type KnowledgeDoc struct {
	ID           string
	Category     string
	Title        string
	Keywords     []string
	Content      string
	Summary      sql.NullString
	Priority     int
	Visibility   string
	ProjetID     sql.NullString
	ViewCount    int
	HelpfulCount int
}

// KnowledgeMatch is one scored row of the knowledge relevance query.
type KnowledgeMatch struct {
	Doc   KnowledgeDoc
	Score float64
}

// Relevance weights of the knowledge query. A search term found in the
// title counts most, in the keyword list next, anywhere in the body least.
const (
	knowledgeTitleWeight   = 10
	knowledgeKeywordWeight = 8
	knowledgeContentWeight = 3
)

// InsertKnowledge stores a document.
func (s *Store) InsertKnowledge(ctx context.Context, doc *KnowledgeDoc) error {
	keywords, err := json.Marshal(doc.Keywords)
	if err != nil {
		return fmt.Errorf("store: marshal knowledge keywords: %w", err)
	}
	if doc.Priority == 0 {
		doc.Priority = 5
	}
	if doc.Visibility == "" {
		doc.Visibility = "global"
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO knowledge_base (
			id, category, title, keywords, content, summary,
			priority, visibility, projet_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Category, doc.Title, string(keywords), doc.Content, doc.Summary,
		doc.Priority, doc.Visibility, doc.ProjetID, now, now)
	if err != nil {
		return fmt.Errorf("store: insert knowledge: %w", err)
	}
	return nil
}

// SearchKnowledge runs the primary relevance query: each search term scores
// per document (title > keywords > content) and documents are ranked by
// total score, priority breaking ties.
func (s *Store) SearchKnowledge(ctx context.Context, terms []string, category, projetID string, limit int) ([]KnowledgeMatch, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	var scoreParts []string
	var args []any
	for _, term := range terms {
		pattern := "%" + strings.ToLower(term) + "%"
		scoreParts = append(scoreParts, fmt.Sprintf(`
			(CASE WHEN lower(title) LIKE ? THEN %d ELSE 0 END +
			 CASE WHEN lower(keywords) LIKE ? THEN %d ELSE 0 END +
			 CASE WHEN lower(content) LIKE ? THEN %d ELSE 0 END)`,
			knowledgeTitleWeight, knowledgeKeywordWeight, knowledgeContentWeight))
		args = append(args, pattern, pattern, pattern)
	}

	where := "is_active = 1 AND (visibility = 'global' OR projet_id = ?)"
	args = append(args, projetID)
	if category != "" {
		where += " AND category = ?"
		args = append(args, category)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, category, title, keywords, content, summary,
		       priority, visibility, projet_id, view_count, helpful_count,
		       (%s) AS relevance_score
		FROM knowledge_base
		WHERE %s
		GROUP BY id
		HAVING relevance_score > 0
		ORDER BY relevance_score DESC, priority DESC
		LIMIT ?
	`, strings.Join(scoreParts, " + "), where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search knowledge: %w", err)
	}
	defer rows.Close()

	var out []KnowledgeMatch
	for rows.Next() {
		m, err := scanKnowledgeMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanKnowledgeMatch(rows *sql.Rows) (*KnowledgeMatch, error) {
	var m KnowledgeMatch
	var keywords string
	if err := rows.Scan(&m.Doc.ID, &m.Doc.Category, &m.Doc.Title, &keywords,
		&m.Doc.Content, &m.Doc.Summary, &m.Doc.Priority, &m.Doc.Visibility,
		&m.Doc.ProjetID, &m.Doc.ViewCount, &m.Doc.HelpfulCount, &m.Score); err != nil {
		return nil, fmt.Errorf("store: scan knowledge match: %w", err)
	}
	if err := json.Unmarshal([]byte(keywords), &m.Doc.Keywords); err != nil {
		return nil, fmt.Errorf("store: decode knowledge keywords: %w", err)
	}
	return &m, nil
}

// ActiveKnowledge lists every active document visible to the project. The
// fallback search path scores these in process when the relevance query
// cannot be used.
func (s *Store) ActiveKnowledge(ctx context.Context, projetID string) ([]KnowledgeDoc, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, title, keywords, content, summary,
		       priority, visibility, projet_id, view_count, helpful_count
		FROM knowledge_base
		WHERE is_active = 1 AND (visibility = 'global' OR projet_id = ?)
		ORDER BY priority DESC, title ASC
	`, projetID)
	if err != nil {
		return nil, fmt.Errorf("store: list knowledge: %w", err)
	}
	defer rows.Close()

	var out []KnowledgeDoc
	for rows.Next() {
		var doc KnowledgeDoc
		var keywords string
		if err := rows.Scan(&doc.ID, &doc.Category, &doc.Title, &keywords,
			&doc.Content, &doc.Summary, &doc.Priority, &doc.Visibility,
			&doc.ProjetID, &doc.ViewCount, &doc.HelpfulCount); err != nil {
			return nil, fmt.Errorf("store: scan knowledge doc: %w", err)
		}
		if err := json.Unmarshal([]byte(keywords), &doc.Keywords); err != nil {
			return nil, fmt.Errorf("store: decode knowledge keywords: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// IncrementViewCount bumps a document's view counter.
func (s *Store) IncrementViewCount(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_base SET view_count = view_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: increment view count: %w", err)
	}
	return nil
}

// MarkHelpful bumps a document's helpful counter.
func (s *Store) MarkHelpful(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_base SET helpful_count = helpful_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: mark helpful: %w", err)
	}
	return nil
}
