package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskhive/taskhive/pkg/models"
)

// ConversationStore persists conversations and their messages.
// Messages are append-only; conversation deletion cascades to messages.
type ConversationStore struct {
	db *sql.DB
}

// NewConversationStore creates a ConversationStore.
func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// Create inserts an untitled conversation for userID.
func (s *ConversationStore) Create(ctx context.Context, userID string) (*models.Conversation, error) {
	now := utc(time.Now())
	conv := &models.Conversation{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO conversations (user_id, created_at, updated_at)
		VALUES ($1, $2, $2)
		RETURNING id, created_at, updated_at`,
		userID, now,
	).Scan(&conv.ID, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return conv, nil
}

// GetOwned loads a conversation owned by userID.
func (s *ConversationStore) GetOwned(ctx context.Context, userID string, id int64) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, created_at, updated_at FROM conversations
		WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	conv.CreatedAt = asUTC(conv.CreatedAt)
	conv.UpdatedAt = asUTC(conv.UpdatedAt)
	return &conv, nil
}

// List returns a user's conversations, most recently updated first.
func (s *ConversationStore) List(ctx context.Context, userID string) ([]*models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, created_at, updated_at FROM conversations
		WHERE user_id = $1 ORDER BY updated_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var convs []*models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conv.CreatedAt = asUTC(conv.CreatedAt)
		conv.UpdatedAt = asUTC(conv.UpdatedAt)
		convs = append(convs, &conv)
	}
	return convs, rows.Err()
}

// SetTitle stores a derived title. Only set once, when the first user
// message lands in a titleless conversation.
func (s *ConversationStore) SetTitle(ctx context.Context, id int64, title string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET title = $1, updated_at = $2
		WHERE id = $3 AND title IS NULL`,
		title, utc(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to set conversation title: %w", err)
	}
	return nil
}

// Touch bumps updated_at so the conversation sorts to the top of the list.
func (s *ConversationStore) Touch(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = $1 WHERE id = $2`, utc(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to touch conversation %d: %w", id, err)
	}
	return nil
}

// Delete removes a conversation owned by userID; messages cascade.
func (s *ConversationStore) Delete(ctx context.Context, userID string, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// AppendMessage inserts a message at the end of a conversation.
func (s *ConversationStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	var toolCallsJSON []byte
	if len(msg.ToolCalls) > 0 {
		raw, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to encode tool calls: %w", err)
		}
		toolCallsJSON = raw
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (conversation_id, role, content, tool_calls, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		msg.ConversationID, msg.Role, msg.Content, toolCallsJSON, utc(time.Now()),
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	msg.CreatedAt = asUTC(msg.CreatedAt)
	return nil
}

// Messages returns a conversation's messages in insertion order.
func (s *ConversationStore) Messages(ctx context.Context, conversationID int64) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, tool_calls, created_at FROM messages
		WHERE conversation_id = $1 ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*models.Message
	for rows.Next() {
		var msg models.Message
		var toolCallsJSON []byte
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content,
			&toolCallsJSON, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if len(toolCallsJSON) > 0 {
			if err := json.Unmarshal(toolCallsJSON, &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to decode tool calls for message %d: %w", msg.ID, err)
			}
		}
		msg.CreatedAt = asUTC(msg.CreatedAt)
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}
