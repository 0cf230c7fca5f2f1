// Package llm implements the Gemini-backed model client for the chat agent.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/taskhive/taskhive/pkg/agent"
)

const defaultModel = "gemini-2.0-flash"

// Client talks to the Gemini API and implements agent.ModelClient.
type Client struct {
	client      *genai.Client
	model       string
	temperature *float32
	maxTokens   *int32
	maxRetries  int
	retryDelay  time.Duration
	logger      *slog.Logger
}

// NewClient creates a Gemini client configured from the environment:
// GEMINI_API_KEY (required), GEMINI_MODEL, GEMINI_TEMPERATURE,
// GEMINI_MAX_TOKENS, GEMINI_MAX_RETRIES.
func NewClient(ctx context.Context) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	inner, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = defaultModel
	}

	var temperature *float32
	if tempStr := os.Getenv("GEMINI_TEMPERATURE"); tempStr != "" {
		if temp, err := strconv.ParseFloat(tempStr, 32); err == nil {
			temp32 := float32(temp)
			temperature = &temp32
		}
	}

	var maxTokens *int32
	if maxStr := os.Getenv("GEMINI_MAX_TOKENS"); maxStr != "" {
		if max, err := strconv.ParseInt(maxStr, 10, 32); err == nil {
			max32 := int32(max)
			maxTokens = &max32
		}
	}

	maxRetries := 3
	if retryStr := os.Getenv("GEMINI_MAX_RETRIES"); retryStr != "" {
		if n, err := strconv.Atoi(retryStr); err == nil && n >= 0 {
			maxRetries = n
		}
	}

	logger := slog.Default()
	logger.Info("LLM client configured", "model", model)

	return &Client{
		client:      inner,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		maxRetries:  maxRetries,
		retryDelay:  time.Second,
		logger:      logger,
	}, nil
}

// GenerateStream invokes the model and streams normalized chunks.
// Transient failures (rate limits, 5xx, connection drops) are retried with
// exponential backoff, but only if no chunk has been delivered yet; once
// output started flowing a retry would duplicate text.
func (c *Client) GenerateStream(ctx context.Context, req agent.ModelRequest) (<-chan agent.StreamChunk, <-chan error) {
	chunks := make(chan agent.StreamChunk, 100)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		contents := convertMessages(req.Messages)
		config := c.buildConfig(req)

		var lastErr error
		for attempt := 0; attempt <= c.maxRetries; attempt++ {
			if attempt > 0 {
				delay := c.retryDelay * (1 << (attempt - 1))
				c.logger.Warn("Retrying model call", "attempt", attempt, "delay", delay, "error", lastErr)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}

			delivered, err := c.streamOnce(ctx, contents, config, chunks)
			if err == nil {
				return
			}
			if ctx.Err() != nil {
				errs <- ctx.Err()
				return
			}
			if delivered || !retryable(err) {
				errs <- err
				return
			}
			lastErr = err
		}

		errs <- fmt.Errorf("max retries exceeded: %w", lastErr)
	}()

	return chunks, errs
}

// streamOnce runs a single streaming call, forwarding normalized chunks.
// Reports whether any chunk was delivered before the error, if any.
func (c *Client) streamOnce(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig, chunks chan<- agent.StreamChunk) (bool, error) {
	delivered := false

	send := func(chunk agent.StreamChunk) bool {
		select {
		case chunks <- chunk:
			delivered = true
			return true
		case <-ctx.Done():
			return false
		}
	}

	for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, config) {
		if err != nil {
			return delivered, err
		}
		if resp == nil {
			continue
		}
		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					kind := agent.ChunkTextDelta
					if part.Thought {
						kind = agent.ChunkReasoning
					}
					if !send(agent.StreamChunk{Type: kind, Text: part.Text}) {
						return delivered, ctx.Err()
					}
				}
				if part.FunctionCall != nil {
					args, jsonErr := json.Marshal(part.FunctionCall.Args)
					if jsonErr != nil {
						args = []byte("{}")
					}
					call := &agent.ToolCall{
						ID:        toolCallID(part.FunctionCall.Name),
						Name:      part.FunctionCall.Name,
						Arguments: string(args),
					}
					if !send(agent.StreamChunk{Type: agent.ChunkToolCall, ToolCall: call}) {
						return delivered, ctx.Err()
					}
				}
			}
		}
	}

	return delivered, nil
}

// buildConfig assembles generation settings and the tool catalog.
func (c *Client) buildConfig(req agent.ModelRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	if c.temperature != nil {
		config.Temperature = c.temperature
	}
	if c.maxTokens != nil {
		config.MaxOutputTokens = *c.maxTokens
	}
	if len(req.Tools) > 0 {
		config.Tools = convertTools(req.Tools)
	}

	return config
}

// convertMessages maps the agent conversation onto Gemini contents.
// System turns are skipped; the system prompt rides in the config.
// Tool results go back as user-role function responses, which is how the
// Gemini API expects them.
func convertMessages(messages []agent.Message) []*genai.Content {
	var result []*genai.Content

	for _, msg := range messages {
		if msg.Role == agent.RoleSystem {
			continue
		}

		content := &genai.Content{}
		switch msg.Role {
		case agent.RoleAssistant:
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser
		}

		if msg.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
		}

		if msg.ToolCall != nil {
			var args map[string]any
			if err := json.Unmarshal([]byte(msg.ToolCall.Arguments), &args); err != nil {
				args = map[string]any{}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					Name: msg.ToolCall.Name,
					Args: args,
				},
			})
		}

		if msg.ToolResult != nil {
			var response map[string]any
			if err := json.Unmarshal([]byte(msg.ToolResult.Content), &response); err != nil {
				response = map[string]any{
					"result": msg.ToolResult.Content,
					"error":  msg.ToolResult.IsError,
				}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     msg.ToolResult.Name,
					Response: response,
				},
			})
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}

	return result
}

// convertTools maps the discovered tool catalog to Gemini function
// declarations.
func convertTools(tools []agent.ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  toGeminiSchema(tool.InputSchema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// toGeminiSchema converts a raw JSON schema into Gemini's schema type.
// Unknown or empty schemas degrade to an open object.
func toGeminiSchema(raw json.RawMessage) *genai.Schema {
	var schema map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &schema) != nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	return mapToGeminiSchema(schema)
}

func mapToGeminiSchema(schema map[string]any) *genai.Schema {
	result := &genai.Schema{}

	if t, ok := schema["type"].(string); ok {
		result.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schema["description"].(string); ok {
		result.Description = desc
	}
	if enum, ok := schema["enum"].([]any); ok {
		for _, v := range enum {
			if s, ok := v.(string); ok {
				result.Enum = append(result.Enum, s)
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		result.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				result.Properties[name] = mapToGeminiSchema(propMap)
			}
		}
	}
	if required, ok := schema["required"].([]any); ok {
		for _, v := range required {
			if s, ok := v.(string); ok {
				result.Required = append(result.Required, s)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		result.Items = mapToGeminiSchema(items)
	}

	return result
}

// retryable reports whether the model call should be attempted again.
func retryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "rate limit", "too many requests", "resource exhausted", "quota",
		"500", "502", "503", "504", "internal server error", "service unavailable", "overloaded",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "no such host",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func toolCallID(name string) string {
	return fmt.Sprintf("call_%s_%d", name, time.Now().UnixNano())
}
