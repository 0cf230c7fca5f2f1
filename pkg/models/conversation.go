package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// titleMaxLen bounds auto-derived conversation titles.
const titleMaxLen = 50

// Conversation is a chat thread owned by a user. Deleting a conversation
// cascades to its messages.
type Conversation struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Title     *string   `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message belongs to a conversation. Append-only: never mutated after insert.
type Message struct {
	ID             int64            `json:"id"`
	ConversationID int64            `json:"conversation_id"`
	Role           string           `json:"role"`
	Content        string           `json:"content"`
	ToolCalls      []ToolCallRecord `json:"tool_calls,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// ToolCallRecord is the opaque per-message record of a tool invocation.
type ToolCallRecord struct {
	CallID string `json:"call_id"`
	Tool   string `json:"tool"`
	Args   string `json:"args"`
	Result string `json:"result,omitempty"`
}

// DeriveTitle builds a conversation title from the first user message:
// whitespace is normalized and the result truncated to 50 characters with
// an ellipsis when longer. Truncation counts runes so a multibyte message
// never yields a broken sequence.
func DeriveTitle(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	if utf8.RuneCountInString(title) > titleMaxLen {
		title = string([]rune(title)[:titleMaxLen-3]) + "..."
	}
	return title
}
