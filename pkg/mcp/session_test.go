package mcp

import (
	"context"
	"encoding/json"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/pkg/agent"
)

// newTestSession wires a Session to an in-process MCP server over
// in-memory transports.
func newTestSession(t *testing.T, server *mcpsdk.Server) *Session {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		_ = server.Run(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return NewSession(session, "user-1")
}

func echoServer(t *testing.T) *mcpsdk.Server {
	t.Helper()

	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "test-tools", Version: "0"}, nil)
	server.AddTool(&mcpsdk.Tool{
		Name:        "echo",
		Description: "Echoes the message back",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"message": {"type": "string"}},
			"required": ["message"]
		}`),
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return nil, err
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: args.Message}},
		}, nil
	})
	return server
}

func TestSessionListTools(t *testing.T) {
	session := newTestSession(t, echoServer(t))

	tools, err := session.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)
	assert.Equal(t, "Echoes the message back", tools[0].Description)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(tools[0].InputSchema, &schema))
	assert.Equal(t, "object", schema["type"])
}

func TestSessionExecute(t *testing.T) {
	session := newTestSession(t, echoServer(t))

	result, err := session.Execute(context.Background(), agent.ToolCall{
		ID: "call-1", Name: "echo", Arguments: `{"message":"hello"}`,
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "hello", result.Content)
	assert.Equal(t, "call-1", result.CallID)
}

func TestSessionExecuteBadArguments(t *testing.T) {
	session := newTestSession(t, echoServer(t))

	result, err := session.Execute(context.Background(), agent.ToolCall{
		ID: "call-1", Name: "echo", Arguments: `[1,2,3]`,
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "Failed to parse tool arguments")
}

func TestUserEndpoint(t *testing.T) {
	endpoint, err := userEndpoint("http://localhost:8081/mcp", "user a/b")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8081/mcp?user_id=user+a%2Fb", endpoint)
}
