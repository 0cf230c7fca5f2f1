package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/taskhive/taskhive/pkg/models"
)

// TagAPI is the tag surface the handlers call. Implemented by
// services.TagService.
type TagAPI interface {
	TagResolver
	Create(ctx context.Context, userID, name, color string) (*models.Tag, error)
	List(ctx context.Context, userID string) ([]models.Tag, error)
	Delete(ctx context.Context, userID string, id int64) error
}

type createTagRequest struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// createTagHandler handles POST /api/tags.
func (s *Server) createTagHandler(c *echo.Context) error {
	var req createTagRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	tag, err := s.tags.Create(c.Request().Context(), currentUser(c), req.Name, req.Color)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, tag)
}

// listTagsHandler handles GET /api/tags.
func (s *Server) listTagsHandler(c *echo.Context) error {
	tags, err := s.tags.List(c.Request().Context(), currentUser(c))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"tags": tags, "count": len(tags)})
}

// deleteTagHandler handles DELETE /api/tags/:id. Task links cascade.
func (s *Server) deleteTagHandler(c *echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.tags.Delete(c.Request().Context(), currentUser(c), id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
