package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// MaxMessageContentLength bounds stored message content.
const MaxMessageContentLength = 50_000

// TruncateContent caps content at MaxMessageContentLength runes.
func TruncateContent(content string) string {
	runes := []rune(content)
	if len(runes) <= MaxMessageContentLength {
		return content
	}
	return string(runes[:MaxMessageContentLength])
}

// Message is a single entry in a session's transcript. Messages are
// immutable once created; a session's message sequence is append-only
// and strictly time-ordered.
type Message struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count,omitempty"`
	ModelUsed  string    `json:"model_used,omitempty"`
	LatencyMS  int64     `json:"latency_ms,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ToolCall represents a model's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult represents the outcome of a tool execution, fed back to
// the model as a tool-role context entry keyed to its originating call.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// TurnReply is the shaped payload returned for one conversational turn.
type TurnReply struct {
	Text          string        `json:"text"`
	Chart         *ChartPayload `json:"chart,omitempty"`
	ToolCallCount int           `json:"tool_call_count"`
	TotalTokens   int           `json:"total_tokens"`
	Duration      time.Duration `json:"-"`
}
