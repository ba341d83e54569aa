package agent

import (
	"fmt"
	"strings"
	"time"
)

// chartContract instructs the model how to embed chart data in a
// response. The response shaper extracts and validates the block.
const chartContract = `When the user asks for a visualization, or when data would be clearer as a chart, embed exactly one chart block in your response using this format:

{CHART_DATA}
{"type": "bar", "title": "Chart Title", "labels": ["A", "B"], "values": [1, 2], "x_axis_label": "Category", "y_axis_label": "Amount"}
{/CHART_DATA}

Rules:
- "type" must be one of: bar, line, pie
- "labels" and "values" must have the same length, between 2 and 50 points
- Keep explanatory text outside the block
- Never emit more than one chart block per response`

// SystemPromptInput carries the per-session values interpolated into
// the system prompt.
type SystemPromptInput struct {
	PrincipalID    string
	CompanyContext string
	Now            time.Time
}

// BuildSystemPrompt assembles the system prompt for a turn: the
// assistant's role, the company context, the current date for relative
// period resolution, and the chart embedding contract.
func BuildSystemPrompt(in SystemPromptInput) string {
	var b strings.Builder
	b.WriteString("You are a business data assistant. You answer questions about financial and operational data using the tools provided.\n\n")
	b.WriteString("Guidelines:\n")
	b.WriteString("- Use tools to fetch data; never invent figures\n")
	b.WriteString("- If a tool reports a permission error, tell the user which data you could not access and answer with what remains\n")
	b.WriteString("- Format monetary amounts with their currency\n")
	b.WriteString("- Be concise and answer the question that was asked\n")

	if in.CompanyContext != "" {
		fmt.Fprintf(&b, "\nAll queries are scoped to the company: %s\n", in.CompanyContext)
	}
	if !in.Now.IsZero() {
		fmt.Fprintf(&b, "\nThe current date is %s. Resolve relative periods like \"last month\" against it.\n", in.Now.Format("2006-01-02"))
	}

	b.WriteString("\n")
	b.WriteString(chartContract)
	return b.String()
}

// concludeDirective is appended when the tool budget is exhausted so
// the model produces a final answer instead of requesting more tools.
const concludeDirective = "Tool budget exhausted. Answer now using only the information already gathered. Do not request any more tools."
