package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/taskhive/taskhive/pkg/models"
	"github.com/taskhive/taskhive/pkg/services"
)

// ConversationAPI is the conversation read surface. Implemented by
// services.ConversationService.
type ConversationAPI interface {
	List(ctx context.Context, userID string) ([]*models.Conversation, error)
	Get(ctx context.Context, userID string, id int64) (*services.ConversationWithMessages, error)
	Delete(ctx context.Context, userID string, id int64) error
}

// listConversationsHandler handles GET /api/conversations.
func (s *Server) listConversationsHandler(c *echo.Context) error {
	conversations, err := s.conversations.List(c.Request().Context(), currentUser(c))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"conversations": conversations,
		"count":         len(conversations),
	})
}

// getConversationHandler handles GET /api/conversations/:id, returning the
// conversation and its messages in insertion order.
func (s *Server) getConversationHandler(c *echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	detail, err := s.conversations.Get(c.Request().Context(), currentUser(c), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

// deleteConversationHandler handles DELETE /api/conversations/:id.
// Messages cascade with the conversation.
func (s *Server) deleteConversationHandler(c *echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.conversations.Delete(c.Request().Context(), currentUser(c), id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
