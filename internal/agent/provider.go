package agent

import (
	"context"

	"github.com/haasonsaas/sage/pkg/models"
)

// LLMProvider defines the interface for Large Language Model backends.
//
// Implementations handle the specifics of each LLM API (Anthropic,
// OpenAI) while presenting a unified request/response interface to the
// runtime.
//
// Thread safety: implementations must be safe for concurrent use.
type LLMProvider interface {
	// Complete sends a conversation and returns the model's reply,
	// including any tool calls it wants executed.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []Model
}

// CompletionRequest contains all parameters for one model call.
type CompletionRequest struct {
	// Model specifies which LLM model to use. If empty, the provider's
	// default model is used.
	Model string `json:"model"`

	// System is the system prompt that sets the assistant's behavior.
	System string `json:"system,omitempty"`

	// Messages contains the conversation history in chronological order.
	Messages []CompletionMessage `json:"messages"`

	// Tools defines available tools the model can request to execute.
	Tools []Tool `json:"tools,omitempty"`

	// MaxTokens limits the generated response length. If 0, the
	// provider's default is used.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// CompletionMessage represents a single message in a conversation.
//
// Role values: "user", "assistant", "tool".
type CompletionMessage struct {
	// Role indicates who sent the message.
	Role string `json:"role"`

	// Content is the text content (may be empty for tool-only messages).
	Content string `json:"content,omitempty"`

	// ToolCalls contains tool execution requests from the assistant.
	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`

	// ToolResults contains responses from executed tools.
	ToolResults []models.ToolResult `json:"tool_results,omitempty"`
}

// CompletionResponse is the model's reply to one request.
type CompletionResponse struct {
	// Text is the assistant's text output, possibly empty when the
	// model only requests tools.
	Text string `json:"text,omitempty"`

	// ToolCalls lists the tool executions the model wants, in the
	// order it requested them.
	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`

	// StopReason indicates why generation stopped ("end_turn",
	// "tool_use", "max_tokens").
	StopReason string `json:"stop_reason,omitempty"`

	// Model is the model that produced the response.
	Model string `json:"model,omitempty"`

	// InputTokens is the number of prompt tokens consumed.
	InputTokens int `json:"input_tokens"`

	// OutputTokens is the number of tokens generated.
	OutputTokens int `json:"output_tokens"`
}

// TotalTokens returns the combined prompt and completion token count.
func (r *CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Model describes an available LLM model.
type Model struct {
	// ID is the API identifier for the model.
	ID string `json:"id"`

	// Name is the human-readable model name.
	Name string `json:"name"`

	// ContextSize is the maximum token context window.
	ContextSize int `json:"context_size"`
}
