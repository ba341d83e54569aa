package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/haasonsaas/sage/internal/agent"
	"github.com/haasonsaas/sage/pkg/models"
)

// AnthropicProvider implements agent.LLMProvider for Claude models.
//
// Anthropic keeps the system prompt out of the messages array and
// represents everything else as content blocks; tool results travel in
// user messages referencing the originating tool_use ID.
//
// Thread safety: safe for concurrent use.
type AnthropicProvider struct {
	client       anthropic.Client
	configured   bool
	defaultModel string
}

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key.
	APIKey string

	// DefaultModel is used when a request does not name a model.
	DefaultModel string

	// BaseURL overrides the API endpoint.
	BaseURL string
}

// NewAnthropicProvider creates an Anthropic provider. An empty API key
// is allowed for delayed configuration; Complete will error until one
// is set.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	p := &AnthropicProvider{defaultModel: cfg.DefaultModel}
	if p.defaultModel == "" {
		p.defaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.APIKey == "" {
		return p
	}

	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	p.client = anthropic.NewClient(options...)
	p.configured = true
	return p
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Models returns the supported Claude models.
func (p *AnthropicProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextSize: 200000},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextSize: 200000},
		{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", ContextSize: 200000},
	}
}

// Complete sends the conversation to Anthropic and returns the reply.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.CompletionResponse, error) {
	if !p.configured {
		return nil, errors.New("anthropic api key not configured")
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := p.convertTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, NewProviderError(p.Name(), model, err)
	}

	out := &agent.CompletionResponse{
		StopReason:   string(msg.StopReason),
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Text += b.Text
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{
				ID:    b.ID,
				Name:  b.Name,
				Input: json.RawMessage(b.Input),
			})
		}
	}
	return out, nil
}

// convertMessages converts internal messages to Anthropic content
// blocks. System messages are skipped; they ride in params.System.
func (p *AnthropicProvider) convertMessages(messages []agent.CompletionMessage) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, toolResult := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(
				toolResult.ToolCallID,
				toolResult.Content,
				toolResult.IsError,
			))
		}
		for _, toolCall := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal(toolCall.Input, &input); err != nil {
				return nil, fmt.Errorf("invalid tool call input: %w", err)
			}
			content = append(content, anthropic.NewToolUseBlock(
				toolCall.ID,
				input,
				toolCall.Name,
			))
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			// User and tool roles both map to user messages.
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

// convertTools converts tool definitions to Anthropic's tool schema.
func (p *AnthropicProvider) convertTools(tools []agent.Tool) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name(), err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name())
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name())
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description())
		result = append(result, toolParam)
	}
	return result, nil
}
