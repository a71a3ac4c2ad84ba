package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Learning is one learning-store record.
type Learning struct {
	ID                string
	ProjetID          string
	LearningType      string
	UserMessage       string
	NormalizedMessage string
	Keywords          []string
	DetectedIntent    sql.NullString
	CorrectIntent     sql.NullString
	Params            sql.NullString // JSON object, as stored
	MemorizedResponse sql.NullString
	Confidence        float64
	UsageCount        int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// LearningMatch is one row of the keyword relevance query.
type LearningMatch struct {
	LearningID     string
	UserMessage    string
	DetectedIntent sql.NullString
	CorrectIntent  sql.NullString
	TotalScore     float64
	UsageCount     int
}

// usageBonusWeight is how much each prior use of a learning adds to its
// relevance score.
const usageBonusWeight = 0.1

// UpsertLearning inserts a learning or, when one already exists for the same
// (project, normalized message), bumps its usage count atomically in the
// same statement. The id of the surviving row is returned, which differs
// from l.ID when the insert collapsed into an existing record.
func (s *Store) UpsertLearning(ctx context.Context, l *Learning) (string, error) {
	keywords, err := json.Marshal(l.Keywords)
	if err != nil {
		return "", fmt.Errorf("store: marshal keywords: %w", err)
	}

	now := time.Now()
	var id string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO learnings (
			id, projet_id, learning_type, user_message, normalized_message,
			keywords, detected_intent, correct_intent, params,
			memorized_response, confidence, usage_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (projet_id, normalized_message) DO UPDATE SET
			usage_count = usage_count + 1,
			confidence = MAX(confidence, excluded.confidence),
			correct_intent = COALESCE(excluded.correct_intent, correct_intent),
			updated_at = excluded.updated_at
		RETURNING id
	`, l.ID, l.ProjetID, l.LearningType, l.UserMessage, l.NormalizedMessage,
		string(keywords), l.DetectedIntent, l.CorrectIntent, l.Params,
		l.MemorizedResponse, l.Confidence, now, now,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("store: upsert learning: %w", err)
	}
	return id, nil
}

// GetLearning retrieves a learning by id.
func (s *Store) GetLearning(ctx context.Context, id string) (*Learning, error) {
	l := &Learning{}
	var keywords string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, projet_id, learning_type, user_message, normalized_message,
		       keywords, detected_intent, correct_intent, params,
		       memorized_response, confidence, usage_count, created_at, updated_at
		FROM learnings
		WHERE id = ?
	`, id).Scan(
		&l.ID, &l.ProjetID, &l.LearningType, &l.UserMessage, &l.NormalizedMessage,
		&keywords, &l.DetectedIntent, &l.CorrectIntent, &l.Params,
		&l.MemorizedResponse, &l.Confidence, &l.UsageCount, &l.CreatedAt, &l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: learning not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get learning: %w", err)
	}
	if err := json.Unmarshal([]byte(keywords), &l.Keywords); err != nil {
		return nil, fmt.Errorf("store: decode keywords: %w", err)
	}
	return l, nil
}

// IndexKeywords writes the inverted keyword index entries for a learning.
// Re-indexing an existing keyword bumps its score instead of duplicating it.
func (s *Store) IndexKeywords(ctx context.Context, learningID string, keywords []string, intentName string) error {
	for _, kw := range keywords {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO learning_keywords (id, keyword, learning_id, intent, score)
			VALUES (?, ?, ?, ?, 1.0)
			ON CONFLICT (keyword, learning_id) DO UPDATE SET score = score + 0.1
		`, "kw_"+learningID+"_"+kw, kw, learningID, intentName)
		if err != nil {
			return fmt.Errorf("store: index keyword %q: %w", kw, err)
		}
	}
	return nil
}

// SearchLearningsByKeywords runs the keyword relevance query: matched
// keyword scores are summed per learning and prior usage adds a bonus, so a
// phrasing the operator repeats often outranks a one-off. Failure records
// are excluded; they are kept for analysis, not for reuse.
func (s *Store) SearchLearningsByKeywords(ctx context.Context, projetID string, keywords []string, limit int) ([]LearningMatch, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	placeholders := strings.Repeat("?,", len(keywords)-1) + "?"
	args := make([]any, 0, len(keywords)+2)
	args = append(args, projetID)
	for _, kw := range keywords {
		args = append(args, kw)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT l.id, l.user_message, l.detected_intent, l.correct_intent,
		       SUM(k.score) + MAX(l.usage_count) * %f AS total_score,
		       MAX(l.usage_count)
		FROM learnings l
		JOIN learning_keywords k ON k.learning_id = l.id
		WHERE l.projet_id = ? AND l.learning_type != 'failed_intent'
		      AND k.keyword IN (%s)
		GROUP BY l.id
		ORDER BY total_score DESC
		LIMIT ?
	`, usageBonusWeight, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("store: search learnings: %w", err)
	}
	defer rows.Close()

	var out []LearningMatch
	for rows.Next() {
		var m LearningMatch
		if err := rows.Scan(&m.LearningID, &m.UserMessage, &m.DetectedIntent,
			&m.CorrectIntent, &m.TotalScore, &m.UsageCount); err != nil {
			return nil, fmt.Errorf("store: scan learning match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// IncrementUsage bumps a learning's usage counter by id.
func (s *Store) IncrementUsage(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE learnings SET usage_count = usage_count + 1, updated_at = ? WHERE id = ?
	`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("store: increment usage: %w", err)
	}
	return nil
}

// IntentUsageCount sums the usage counters of all learnings resolving to the
// given intent within a project. Used as a retrieval tie-breaker.
func (s *Store) IntentUsageCount(ctx context.Context, projetID, intentName string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(usage_count), 0)
		FROM learnings
		WHERE projet_id = ? AND correct_intent = ?
	`, projetID, intentName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: intent usage count: %w", err)
	}
	return count, nil
}

// LastCorrectionAt returns when the intent was last corrected by a user in
// the project. The zero time means never.
func (s *Store) LastCorrectionAt(ctx context.Context, projetID, intentName string) (time.Time, error) {
	var t sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(updated_at)
		FROM learnings
		WHERE projet_id = ? AND correct_intent = ? AND learning_type = 'user_correction'
	`, projetID, intentName).Scan(&t)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: last correction: %w", err)
	}
	if !t.Valid {
		return time.Time{}, nil
	}
	return t.Time, nil
}
