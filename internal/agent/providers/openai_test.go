package providers

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/haasonsaas/sage/internal/agent"
	"github.com/haasonsaas/sage/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// fakeTool implements agent.Tool for conversion tests.
type fakeTool struct {
	name   string
	desc   string
	schema string
}

func (t *fakeTool) Name() string            { return t.name }
func (t *fakeTool) Description() string     { return t.desc }
func (t *fakeTool) Schema() json.RawMessage { return json.RawMessage(t.schema) }
func (t *fakeTool) Permission() agent.Permission {
	return agent.Permission{Resource: "Sales Invoice", Operation: "read"}
}
func (t *fakeTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	return &agent.ToolResult{Content: "ok"}, nil
}

func TestOpenAIConvertMessages(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{})
	messages := []agent.CompletionMessage{
		{Role: "user", Content: "show revenue"},
		{
			Role:    "assistant",
			Content: "Let me check.",
			ToolCalls: []models.ToolCall{
				{ID: "tc-1", Name: "get_revenue", Input: json.RawMessage(`{"period": "monthly"}`)},
			},
		},
		{
			Role: "tool",
			ToolResults: []models.ToolResult{
				{ToolCallID: "tc-1", Content: `{"total": 48200}`},
				{ToolCallID: "tc-2", Content: "boom", IsError: true},
			},
		},
	}

	got := p.convertMessages(messages, "you are helpful")
	if len(got) != 5 {
		t.Fatalf("got %d messages, want 5", len(got))
	}
	if got[0].Role != openai.ChatMessageRoleSystem || got[0].Content != "you are helpful" {
		t.Fatalf("system message = %+v", got[0])
	}
	if got[1].Role != openai.ChatMessageRoleUser {
		t.Fatalf("got[1].Role = %q", got[1].Role)
	}

	asst := got[2]
	if asst.Role != openai.ChatMessageRoleAssistant || len(asst.ToolCalls) != 1 {
		t.Fatalf("assistant message = %+v", asst)
	}
	if asst.ToolCalls[0].Function.Name != "get_revenue" {
		t.Fatalf("tool call function = %q", asst.ToolCalls[0].Function.Name)
	}
	if asst.ToolCalls[0].Function.Arguments != `{"period": "monthly"}` {
		t.Fatalf("tool call arguments = %q", asst.ToolCalls[0].Function.Arguments)
	}

	// Each tool result becomes its own message.
	if got[3].Role != openai.ChatMessageRoleTool || got[3].ToolCallID != "tc-1" {
		t.Fatalf("first tool result = %+v", got[3])
	}
	if got[4].ToolCallID != "tc-2" || got[4].Content != "boom" {
		t.Fatalf("second tool result = %+v", got[4])
	}
}

func TestOpenAIConvertMessagesNoSystem(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{})
	got := p.convertMessages([]agent.CompletionMessage{{Role: "user", Content: "hi"}}, "")
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1", len(got))
	}
	if got[0].Role != openai.ChatMessageRoleUser {
		t.Fatalf("got[0].Role = %q", got[0].Role)
	}
}

func TestOpenAIConvertTools(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{})
	tools := []agent.Tool{
		&fakeTool{
			name:   "get_revenue",
			desc:   "Totals revenue for a period",
			schema: `{"type": "object", "properties": {"period": {"type": "string"}}}`,
		},
		&fakeTool{name: "broken", schema: `not json`},
	}

	got := p.convertTools(tools)
	if len(got) != 2 {
		t.Fatalf("got %d tools, want 2", len(got))
	}
	fn := got[0].Function
	if fn.Name != "get_revenue" || fn.Description != "Totals revenue for a period" {
		t.Fatalf("function = %+v", fn)
	}
	params, ok := fn.Parameters.(map[string]any)
	if !ok || params["type"] != "object" {
		t.Fatalf("parameters = %#v", fn.Parameters)
	}

	// A bad schema degrades to an empty object schema.
	degraded, ok := got[1].Function.Parameters.(map[string]any)
	if !ok || degraded["type"] != "object" {
		t.Fatalf("degraded parameters = %#v", got[1].Function.Parameters)
	}
}

func TestOpenAICompleteRequiresKey(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{})
	_, err := p.Complete(context.Background(), &agent.CompletionRequest{})
	if err == nil || !strings.Contains(err.Error(), "api key") {
		t.Fatalf("err = %v", err)
	}
}
