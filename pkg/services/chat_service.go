package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/taskhive/taskhive/pkg/agent"
	"github.com/taskhive/taskhive/pkg/models"
)

const messageMaxLen = 4000

// ValidateChatMessage enforces the chat message length bounds (1..4000
// characters, counted in runes).
func ValidateChatMessage(message string) error {
	if message == "" {
		return models.NewValidationError("message", "must not be empty")
	}
	if utf8.RuneCountInString(message) > messageMaxLen {
		return models.NewValidationError("message",
			fmt.Sprintf("must be at most %d characters", messageMaxLen))
	}
	return nil
}

// ToolDialer opens a user-scoped tool-server session for one agent run.
type ToolDialer interface {
	Dial(ctx context.Context, userID string) (agent.ToolExecutor, error)
}

// ToolDialerFunc adapts a function to the ToolDialer interface.
type ToolDialerFunc func(ctx context.Context, userID string) (agent.ToolExecutor, error)

// Dial implements ToolDialer.
func (f ToolDialerFunc) Dial(ctx context.Context, userID string) (agent.ToolExecutor, error) {
	return f(ctx, userID)
}

// AgentRunner abstracts the agent loop so handler tests can script it.
type AgentRunner interface {
	Run(ctx context.Context, input agent.RunInput, emit agent.EmitFunc) (*agent.RunResult, error)
}

// ChatService orchestrates one chat turn: conversation bookkeeping, the
// agent run, and message persistence. Used by both the buffered and the
// streaming chat endpoints; only the emit sink differs.
type ChatService struct {
	conversations ConversationStore
	runner        AgentRunner
	dialer        ToolDialer
	logger        *slog.Logger
}

// NewChatService creates a ChatService.
func NewChatService(conversations ConversationStore, runner AgentRunner, dialer ToolDialer) *ChatService {
	return &ChatService{
		conversations: conversations,
		runner:        runner,
		dialer:        dialer,
		logger:        slog.Default(),
	}
}

// ChatResult is the outcome of a completed chat turn.
type ChatResult struct {
	ConversationID int64  `json:"conversation_id"`
	MessageID      int64  `json:"message_id"`
	Response       string `json:"response"`
}

// Send runs one chat turn. The user message is persisted before the agent
// runs, so a failed run still leaves the conversation consistent; the
// assistant message is persisted only on success.
func (s *ChatService) Send(ctx context.Context, userID string, conversationID *int64, message string, emit agent.EmitFunc) (*ChatResult, error) {
	if err := ValidateChatMessage(message); err != nil {
		return nil, err
	}

	conversation, isNew, err := s.loadOrCreate(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	userMsg := &models.Message{
		ConversationID: conversation.ID,
		Role:           models.RoleUser,
		Content:        message,
	}
	if err := s.conversations.AppendMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	if isNew {
		if err := s.conversations.SetTitle(ctx, conversation.ID, models.DeriveTitle(message)); err != nil {
			s.logger.Warn("Failed to set conversation title",
				"conversation_id", conversation.ID, "error", err)
		}
	}

	history, err := s.history(ctx, conversation.ID)
	if err != nil {
		return nil, err
	}

	tools, err := s.dialer.Dial(ctx, userID)
	if err != nil {
		return nil, agent.NewError(agent.CodeToolError,
			fmt.Errorf("failed to reach tool server: %w", err))
	}

	result, err := s.runner.Run(ctx, agent.RunInput{
		Messages: history,
		Tools:    tools,
	}, emit)
	if err != nil {
		return nil, err
	}

	assistantMsg := &models.Message{
		ConversationID: conversation.ID,
		Role:           models.RoleAssistant,
		Content:        result.FinalText,
		ToolCalls:      toolCallRecords(result.ToolCalls),
	}
	if err := s.conversations.AppendMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}
	if err := s.conversations.Touch(ctx, conversation.ID); err != nil {
		s.logger.Warn("Failed to touch conversation",
			"conversation_id", conversation.ID, "error", err)
	}

	return &ChatResult{
		ConversationID: conversation.ID,
		MessageID:      assistantMsg.ID,
		Response:       result.FinalText,
	}, nil
}

// loadOrCreate resolves the target conversation. A missing id, or an id
// that does not resolve to a conversation the user owns, starts a fresh
// conversation instead of failing the turn.
func (s *ChatService) loadOrCreate(ctx context.Context, userID string, conversationID *int64) (*models.Conversation, bool, error) {
	if conversationID != nil {
		conversation, err := s.conversations.GetOwned(ctx, userID, *conversationID)
		switch {
		case err == nil:
			return conversation, false, nil
		case !errors.Is(err, models.ErrNotFound):
			return nil, false, err
		}
	}
	conversation, err := s.conversations.Create(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return conversation, true, nil
}

// history renders the stored conversation as model context.
func (s *ChatService) history(ctx context.Context, conversationID int64) ([]agent.Message, error) {
	stored, err := s.conversations.Messages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	history := make([]agent.Message, 0, len(stored))
	for _, msg := range stored {
		history = append(history, agent.Message{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return history, nil
}

func toolCallRecords(outcomes []agent.ToolCallOutcome) []models.ToolCallRecord {
	if len(outcomes) == 0 {
		return nil
	}
	records := make([]models.ToolCallRecord, len(outcomes))
	for i, outcome := range outcomes {
		records[i] = models.ToolCallRecord{
			CallID: outcome.CallID,
			Tool:   outcome.Tool,
			Args:   outcome.Args,
			Result: outcome.Result,
		}
	}
	return records
}
