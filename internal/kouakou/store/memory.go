package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ConversationMessage is one logged exchange of a conversation.
type ConversationMessage struct {
	ID             string
	ProjetID       string
	UserID         string
	ConversationID string
	Role           string // "user" or "assistant"
	Content        string
	Intent         sql.NullString
	ActionExecuted sql.NullString
	ActionSuccess  sql.NullBool
	CreatedAt      time.Time
}

// AppendConversationMessage logs one message. Callers treat failures as
// non-fatal; the conversation log is an audit trail, not pipeline state.
func (s *Store) AppendConversationMessage(ctx context.Context, m *ConversationMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_memory (
			id, projet_id, user_id, conversation_id, message_role,
			message_content, intent, action_executed, action_success, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ProjetID, m.UserID, m.ConversationID, m.Role,
		m.Content, m.Intent, m.ActionExecuted, m.ActionSuccess, time.Now())
	if err != nil {
		return fmt.Errorf("store: append conversation message: %w", err)
	}
	return nil
}

// ConversationHistory returns the messages of a conversation, oldest first.
func (s *Store) ConversationHistory(ctx context.Context, projetID, conversationID string, limit int) ([]ConversationMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, projet_id, user_id, conversation_id, message_role,
		       message_content, intent, action_executed, action_success, created_at
		FROM conversation_memory
		WHERE projet_id = ? AND conversation_id = ?
		ORDER BY created_at ASC
		LIMIT ?
	`, projetID, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: conversation history: %w", err)
	}
	defer rows.Close()

	var out []ConversationMessage
	for rows.Next() {
		var m ConversationMessage
		if err := rows.Scan(&m.ID, &m.ProjetID, &m.UserID, &m.ConversationID, &m.Role,
			&m.Content, &m.Intent, &m.ActionExecuted, &m.ActionSuccess, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan conversation message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
