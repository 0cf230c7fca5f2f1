package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// maxIterations bounds how many model invocations one run may make.
// Each tool-call round trip costs one iteration.
const maxIterations = 10

// toolCallTimeout bounds a single tool-server call.
const toolCallTimeout = 30 * time.Second

// RunInput is everything one agent run needs.
type RunInput struct {
	// Messages is the conversation context, oldest first, ending with the
	// incoming user message.
	Messages []Message
	// Tools is the per-run session to the tool server. The runner closes
	// it on every exit path.
	Tools ToolExecutor
}

// ToolCallOutcome records one tool invocation and its result, in order.
type ToolCallOutcome struct {
	CallID string `json:"call_id"`
	Tool   string `json:"tool"`
	Args   string `json:"args"`
	Result string `json:"result,omitempty"`
}

// RunResult is the outcome of a completed agent run.
type RunResult struct {
	FinalText string
	ToolCalls []ToolCallOutcome
}

// Runner drives the agent loop against a model and a tool executor.
type Runner struct {
	model  ModelClient
	logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(model ModelClient) *Runner {
	return &Runner{
		model:  model,
		logger: slog.Default(),
	}
}

// Run executes one agent loop. Events are emitted in the order the model
// produces them; the caller appends the terminal done/error frame after
// persisting the assistant message. Returns a classified *Error on failure.
//
// Cancellation: ctx aborts the run within one model read or client write.
// An in-flight tool call is allowed to finish (results discarded) rather
// than be aborted mid-mutation.
func (r *Runner) Run(ctx context.Context, input RunInput, emit EmitFunc) (*RunResult, error) {
	defer func() {
		if err := input.Tools.Close(); err != nil {
			r.logger.Warn("Failed to close tool session", "error", err)
		}
	}()

	tools, err := input.Tools.ListTools(ctx)
	if err != nil {
		return nil, NewError(CodeToolError, fmt.Errorf("tool discovery failed: %w", err))
	}

	emit(ThinkingEvent(Name, "Thinking..."))

	messages := input.Messages
	var fullResponse strings.Builder
	var finalSummary string
	var outcomes []ToolCallOutcome

	for iteration := 0; iteration < maxIterations; iteration++ {
		chunks, errs := r.model.GenerateStream(ctx, ModelRequest{
			SystemPrompt: SystemPrompt,
			Messages:     messages,
			Tools:        tools,
		})

		sawToolCall := false

	stream:
		for {
			select {
			case chunk, ok := <-chunks:
				if !ok {
					break stream
				}
				switch chunk.Type {
				case ChunkTextDelta:
					fullResponse.WriteString(chunk.Text)
					emit(TokenEvent(chunk.Text))

				case ChunkReasoning:
					// Internal trace only; never leaked to the client.
					r.logger.Debug("Model reasoning", "content", chunk.Text)

				case ChunkMessageOutput:
					finalSummary = chunk.Text

				case ChunkHandoff:
					emit(AgentUpdatedEvent(chunk.Agent, chunk.Text))

				case ChunkToolCall:
					sawToolCall = true
					call := *chunk.ToolCall
					outcome, runErr := r.handleToolCall(ctx, input.Tools, call, emit)
					if runErr != nil {
						return nil, runErr
					}
					outcomes = append(outcomes, *outcome)
					messages = append(messages,
						Message{Role: RoleAssistant, ToolCall: &call},
						Message{Role: RoleTool, ToolResult: &ToolResult{
							CallID:  call.ID,
							Name:    call.Name,
							Content: outcome.Result,
						}},
					)
				}

			case streamErr, ok := <-errs:
				if ok && streamErr != nil {
					if errors.Is(streamErr, context.Canceled) {
						return nil, streamErr
					}
					return nil, Classify(streamErr)
				}

			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		// No tool calls this round: the model is done talking.
		if !sawToolCall {
			text := fullResponse.String()
			if text == "" {
				text = finalSummary
			}
			return &RunResult{FinalText: text, ToolCalls: outcomes}, nil
		}
	}

	return nil, NewError(CodeAgentError,
		fmt.Errorf("agent exceeded %d iterations without completing", maxIterations))
}

// handleToolCall validates, emits, executes, and records one tool call.
func (r *Runner) handleToolCall(ctx context.Context, executor ToolExecutor, call ToolCall, emit EmitFunc) (*ToolCallOutcome, error) {
	// Arguments that don't parse as a JSON object are a model-behavior
	// error (e.g. concatenated arg blobs): surface a hint, don't retry.
	if !json.Valid([]byte(call.Arguments)) || !strings.HasPrefix(strings.TrimSpace(call.Arguments), "{") {
		return nil, NewError(CodeInvalidResponse,
			fmt.Errorf("tool %s received malformed arguments: %.120s", call.Name, call.Arguments))
	}

	emit(ToolCallEvent(call))

	callCtx, cancel := context.WithTimeout(ctx, toolCallTimeout)
	defer cancel()

	result, err := executor.Execute(callCtx, call)
	if err != nil {
		return nil, NewError(CodeToolError,
			fmt.Errorf("tool %s failed: %w", call.Name, err))
	}

	emit(ToolResultEvent(*result))

	return &ToolCallOutcome{
		CallID: call.ID,
		Tool:   call.Name,
		Args:   call.Arguments,
		Result: result.Content,
	}, nil
}
