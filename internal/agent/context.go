package agent

import (
	"github.com/haasonsaas/sage/pkg/models"
)

// DefaultContextWindow is how many recent messages are sent to the
// model when no override is configured.
const DefaultContextWindow = 20

// ContextBuilder assembles the bounded conversation window for a model
// call.
type ContextBuilder struct {
	window int
}

// NewContextBuilder creates a context builder with the given window
// size. A non-positive size falls back to the default.
func NewContextBuilder(window int) *ContextBuilder {
	if window <= 0 {
		window = DefaultContextWindow
	}
	return &ContextBuilder{window: window}
}

// Window returns the configured window size.
func (b *ContextBuilder) Window() int {
	return b.window
}

// Build converts stored history into completion messages, keeping only
// the newest messages that fit the window. Order is chronological.
// System and tool rows are not replayed; tool exchanges live only
// inside a single turn.
func (b *ContextBuilder) Build(history []*models.Message) []CompletionMessage {
	var convo []*models.Message
	for _, msg := range history {
		if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
			continue
		}
		if msg.Content == "" {
			continue
		}
		convo = append(convo, msg)
	}
	if len(convo) > b.window {
		convo = convo[len(convo)-b.window:]
	}

	out := make([]CompletionMessage, 0, len(convo))
	for _, msg := range convo {
		out = append(out, CompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return out
}

// EstimateTokens approximates the token count of a text as one token
// per four characters, matching the coarse heuristic used for session
// accounting.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// EstimateMessagesTokens sums the token estimate over a window.
func EstimateMessagesTokens(msgs []CompletionMessage) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m.Content)
	}
	return total
}
