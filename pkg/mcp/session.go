// Package mcp provides the MCP (Model Context Protocol) client session the
// chat agent uses to reach the tool server.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/taskhive/taskhive/pkg/agent"
	"github.com/taskhive/taskhive/pkg/version"
)

const (
	initTimeout      = 10 * time.Second
	operationTimeout = 30 * time.Second
)

// Compile-time check that Session implements agent.ToolExecutor.
var _ agent.ToolExecutor = (*Session)(nil)

// Session is one user-scoped connection to the tool server. The user
// identity is bound at transport level via the connection URL, so every
// tool call on this session operates on that user's data and nothing else.
// Sessions are created per agent run and closed when the run ends.
type Session struct {
	session *mcpsdk.ClientSession
	userID  string
	logger  *slog.Logger
}

// Dialer creates tool-server sessions. The zero URL is invalid.
type Dialer struct {
	// ServerURL is the tool server's streamable HTTP endpoint.
	ServerURL string
}

// Dial opens a session bound to one user.
func (d *Dialer) Dial(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	endpoint, err := userEndpoint(d.ServerURL, userID)
	if err != nil {
		return nil, err
	}

	transport := &mcpsdk.StreamableClientTransport{
		Endpoint: endpoint,
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	session, err := client.Connect(initCtx, transport, nil)
	if err != nil {
		if closer, ok := mcpsdk.Transport(transport).(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("failed to connect to tool server: %w", err)
	}

	return NewSession(session, userID), nil
}

// NewSession wraps an established client session. Exposed so tests can
// connect over in-memory transports.
func NewSession(session *mcpsdk.ClientSession, userID string) *Session {
	return &Session{
		session: session,
		userID:  userID,
		logger:  slog.Default(),
	}
}

// ListTools discovers the tool catalog from the server.
func (s *Session) ListTools(ctx context.Context) ([]agent.ToolDefinition, error) {
	opCtx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	result, err := s.session.ListTools(opCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	tools := make([]agent.ToolDefinition, 0, len(result.Tools))
	for _, tool := range result.Tools {
		tools = append(tools, agent.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: marshalSchema(tool.InputSchema),
		})
	}
	return tools, nil
}

// Execute runs one tool call. Tool-level failures come back as an error
// ToolResult rather than a Go error, so the model can read them and adjust.
func (s *Session) Execute(ctx context.Context, call agent.ToolCall) (*agent.ToolResult, error) {
	args, err := parseArguments(call.Arguments)
	if err != nil {
		return &agent.ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			Content: fmt.Sprintf("Failed to parse tool arguments: %s", err),
			IsError: true,
		}, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	result, err := s.session.CallTool(opCtx, &mcpsdk.CallToolParams{
		Name:      call.Name,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("tool call %s: %w", call.Name, err)
	}

	return &agent.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: extractTextContent(result),
		IsError: result.IsError,
	}, nil
}

// Close releases the session.
func (s *Session) Close() error {
	return s.session.Close()
}

// userEndpoint appends the user identity to the server URL as a query
// parameter, which the server's accept path reads once per connection.
func userEndpoint(serverURL, userID string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid tool server url: %w", err)
	}
	q := u.Query()
	q.Set("user_id", userID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseArguments decodes the model's raw argument blob into a map.
func parseArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

// extractTextContent concatenates all text items from a tool result.
// Non-text content is skipped.
func extractTextContent(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		} else {
			slog.Debug("Tool returned non-text content, skipping",
				"content_type", fmt.Sprintf("%T", c))
		}
	}
	return strings.Join(parts, "\n")
}

// marshalSchema serializes a tool's input schema for the model client.
func marshalSchema(schema any) json.RawMessage {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		slog.Debug("Failed to marshal tool input schema", "error", err)
		return nil
	}
	return data
}
