package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/taskhive/taskhive/pkg/agent"
)

// sseWriter encodes agent stream events as Server-Sent Events frames.
// Each frame is flushed immediately so tokens reach the client as the
// model produces them.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter prepares the response for streaming and returns the frame
// writer. Fails when the underlying writer cannot flush.
func newSSEWriter(c *echo.Context) (*sseWriter, error) {
	h := c.Response().Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	var w http.ResponseWriter = c.Response()
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

// WriteEvent emits one named SSE frame: "event: <type>" followed by a
// single JSON data line.
func (s *sseWriter) WriteEvent(event agent.StreamEvent) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
