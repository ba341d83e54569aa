package providers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/haasonsaas/sage/internal/agent"
	"github.com/haasonsaas/sage/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements agent.LLMProvider for OpenAI's chat models.
//
// It converts between the internal message format and OpenAI's API
// format, including multi-turn tool (function) calling conversations.
// A custom BaseURL supports OpenAI-compatible endpoints.
//
// Thread safety: safe for concurrent use; each Complete call is an
// independent request.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key.
	APIKey string

	// DefaultModel is used when a request does not name a model.
	DefaultModel string

	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string
}

// NewOpenAIProvider creates an OpenAI provider. An empty API key is
// allowed for delayed configuration; Complete will error until one is
// set.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	p := &OpenAIProvider{defaultModel: cfg.DefaultModel}
	if p.defaultModel == "" {
		p.defaultModel = "gpt-4o"
	}
	if cfg.APIKey == "" {
		return p
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	p.client = openai.NewClientWithConfig(clientCfg)
	return p
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Models returns the supported chat models.
func (p *OpenAIProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000},
		{ID: "gpt-4o-mini", Name: "GPT-4o mini", ContextSize: 128000},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextSize: 128000},
	}
}

// Complete sends the conversation to OpenAI and returns the reply.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.CompletionResponse, error) {
	if p.client == nil {
		return nil, errors.New("openai api key not configured")
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: p.convertMessages(req.Messages, req.System),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = p.convertTools(req.Tools)
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		pe := NewProviderError(p.Name(), model, err)
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			pe = pe.WithStatus(apiErr.HTTPStatusCode)
		}
		return nil, pe
	}
	if len(resp.Choices) == 0 {
		return nil, NewProviderError(p.Name(), model, errors.New("empty response"))
	}

	choice := resp.Choices[0]
	out := &agent.CompletionResponse{
		Text:         choice.Message.Content,
		StopReason:   string(choice.FinishReason),
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

// convertMessages converts internal messages to OpenAI format. The
// system prompt is injected as the first message; tool results become
// one message per result.
func (p *OpenAIProvider) convertMessages(messages []agent.CompletionMessage, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case "assistant":
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}
			result = append(result, oaiMsg)

		case "tool":
			for _, tr := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}

		default:
			result = append(result, openai.ChatCompletionMessage{
				Role:    msg.Role,
				Content: msg.Content,
			})
		}
	}
	return result
}

// convertTools converts tool definitions to OpenAI function format. A
// tool with an unparsable schema degrades to an empty object schema so
// one bad tool does not break function calling.
func (p *OpenAIProvider) convertTools(tools []agent.Tool) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Schema(), &schemaMap); err != nil {
			schemaMap = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  schemaMap,
			},
		}
	}
	return result
}
