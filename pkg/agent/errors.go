package agent

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrorCode is a stable, client-visible classification of an agent failure.
type ErrorCode string

const (
	CodeRateLimit        ErrorCode = "rate_limit"
	CodeAuthError        ErrorCode = "auth_error"
	CodeConnectionError  ErrorCode = "connection_error"
	CodeModelUnavailable ErrorCode = "model_unavailable"
	CodeTimeout          ErrorCode = "timeout"
	CodeToolError        ErrorCode = "tool_error"
	CodeInvalidResponse  ErrorCode = "invalid_response"
	CodeAgentError       ErrorCode = "agent_error"
	CodeUnknown          ErrorCode = "unknown_error"
)

// userMessages are the fixed, friendly strings surfaced to clients per code.
// Internal detail stays in the wrapped error and the logs.
var userMessages = map[ErrorCode]string{
	CodeRateLimit:        "The assistant is receiving too many requests right now. Please try again shortly.",
	CodeAuthError:        "The assistant is not available due to a configuration problem. Please contact support.",
	CodeConnectionError:  "Could not reach the assistant. Please check your connection and try again.",
	CodeModelUnavailable: "The assistant is temporarily unavailable. Please try again in a few minutes.",
	CodeTimeout:          "The assistant took too long to respond. Please try again.",
	CodeToolError:        "One of the assistant's tools failed. Please try again.",
	CodeInvalidResponse:  "The assistant produced an unexpected response. Please rephrase and try again.",
	CodeAgentError:       "The assistant ran into a problem handling your request. Please try again.",
	CodeUnknown:          "Something went wrong. Please try again.",
}

// Error is the tagged outcome crossing the agent boundary. Message is safe
// for clients; Err carries internal detail for logging.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with the canned user message for code.
func NewError(code ErrorCode, err error) *Error {
	return &Error{Code: code, Message: userMessages[code], Err: err}
}

// Classify maps an arbitrary failure to a stable code by inspecting the
// error text. Match order matters: rate limits before auth before network,
// since provider SDK messages often contain several trigger words.
func Classify(err error) *Error {
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted"):
		return NewError(CodeRateLimit, err)

	case strings.Contains(msg, "api key") || strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "unauthenticated") || strings.Contains(msg, "401") ||
		strings.Contains(msg, "403") || strings.Contains(msg, "permission"):
		return NewError(CodeAuthError, err)

	case strings.Contains(msg, "connection") || strings.Contains(msg, "network") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "refused"):
		return NewError(CodeConnectionError, err)

	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline"):
		return NewError(CodeTimeout, err)

	case strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "overloaded") || strings.Contains(msg, "internal error"):
		return NewError(CodeModelUnavailable, err)

	default:
		return NewError(CodeUnknown, err)
	}
}

// Retryable reports whether a code is worth an automatic retry.
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeRateLimit, CodeConnectionError, CodeModelUnavailable, CodeTimeout:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a code to the non-streaming chat response status.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeModelUnavailable, CodeConnectionError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
