package services

import (
	"context"

	"github.com/taskhive/taskhive/pkg/models"
	"github.com/taskhive/taskhive/pkg/store"
)

// ConversationStore is the conversation persistence surface.
// Implemented by store.ConversationStore.
type ConversationStore interface {
	Create(ctx context.Context, userID string) (*models.Conversation, error)
	GetOwned(ctx context.Context, userID string, id int64) (*models.Conversation, error)
	List(ctx context.Context, userID string) ([]*models.Conversation, error)
	SetTitle(ctx context.Context, id int64, title string) error
	Touch(ctx context.Context, id int64) error
	Delete(ctx context.Context, userID string, id int64) error
	AppendMessage(ctx context.Context, msg *models.Message) error
	Messages(ctx context.Context, conversationID int64) ([]*models.Message, error)
}

var _ ConversationStore = (*store.ConversationStore)(nil)

// ConversationService implements the conversation read surface.
type ConversationService struct {
	conversations ConversationStore
}

// NewConversationService creates a ConversationService.
func NewConversationService(conversations ConversationStore) *ConversationService {
	return &ConversationService{conversations: conversations}
}

// List returns a user's conversations, most recently updated first.
func (s *ConversationService) List(ctx context.Context, userID string) ([]*models.Conversation, error) {
	return s.conversations.List(ctx, userID)
}

// ConversationWithMessages is the detail view of one conversation.
type ConversationWithMessages struct {
	Conversation *models.Conversation `json:"conversation"`
	Messages     []*models.Message    `json:"messages"`
}

// Get loads a conversation and its messages in insertion order.
func (s *ConversationService) Get(ctx context.Context, userID string, id int64) (*ConversationWithMessages, error) {
	conversation, err := s.conversations.GetOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.conversations.Messages(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ConversationWithMessages{
		Conversation: conversation,
		Messages:     messages,
	}, nil
}

// Delete removes a conversation; messages cascade.
func (s *ConversationService) Delete(ctx context.Context, userID string, id int64) error {
	return s.conversations.Delete(ctx, userID, id)
}
