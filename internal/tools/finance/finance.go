// Package finance provides the agent tools that answer financial
// questions: revenue and expense totals from raw records, and the
// standard financial statements through the report runner.
package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/sage/internal/agent"
	"github.com/haasonsaas/sage/internal/erp"
	"github.com/haasonsaas/sage/internal/tools"
)

// Config carries the defaults applied when a tool call omits them.
type Config struct {
	// DefaultCompany scopes queries when the model does not name one.
	DefaultCompany string

	// Currency is used for formatting amounts. Default: USD
	Currency string

	// RecordLimit caps the rows rendered in report output.
	// Default: tools.DefaultMaxRows
	RecordLimit int
}

func (c Config) currency() string {
	if c.Currency == "" {
		return "USD"
	}
	return c.Currency
}

// Tools returns the finance toolset over the given client.
func Tools(client erp.Client, cfg Config) []agent.Tool {
	return []agent.Tool{
		&RevenueTool{client: client, cfg: cfg},
		&ExpensesTool{client: client, cfg: cfg},
		&FinancialReportTool{client: client, cfg: cfg},
	}
}

type dateRangeParams struct {
	FromDate string `json:"from_date"`
	ToDate   string `json:"to_date"`
	Company  string `json:"company"`
}

func (p *dateRangeParams) validate() error {
	for _, d := range []string{p.FromDate, p.ToDate} {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", d)
		}
	}
	if p.ToDate < p.FromDate {
		return fmt.Errorf("to_date %s is before from_date %s", p.ToDate, p.FromDate)
	}
	return nil
}

const dateRangeSchema = `{
	"type": "object",
	"properties": {
		"from_date": {"type": "string", "description": "Start date in YYYY-MM-DD format"},
		"to_date": {"type": "string", "description": "End date in YYYY-MM-DD format"},
		"company": {"type": "string", "description": "Company name (optional, defaults to the configured company)"}
	},
	"required": ["from_date", "to_date"]
}`

// RevenueTool totals submitted sales invoices over a date range.
type RevenueTool struct {
	client erp.Client
	cfg    Config
}

func (t *RevenueTool) Name() string { return "get_revenue" }

func (t *RevenueTool) Description() string {
	return "Get total revenue for a company in a date range. Returns the sum of all income from submitted sales invoices."
}

func (t *RevenueTool) Schema() json.RawMessage { return json.RawMessage(dateRangeSchema) }

func (t *RevenueTool) Permission() agent.Permission {
	return agent.Permission{Resource: "Sales Invoice", Operation: "read"}
}

func (t *RevenueTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p dateRangeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	company := firstNonEmpty(p.Company, t.cfg.DefaultCompany)

	filters := []erp.Filter{
		{Field: "posting_date", Operator: ">=", Value: p.FromDate},
		{Field: "posting_date", Operator: "<=", Value: p.ToDate},
		{Field: "docstatus", Operator: "=", Value: 1},
	}
	if company != "" {
		filters = append(filters, erp.Filter{Field: "company", Operator: "=", Value: company})
	}

	records, err := t.client.List(ctx, erp.ListQuery{
		Resource: "Sales Invoice",
		Fields:   []string{"grand_total"},
		Filters:  filters,
	})
	if err != nil {
		return nil, fmt.Errorf("list sales invoices: %w", err)
	}

	if len(records) == 0 {
		return &agent.ToolResult{
			Content:      fmt.Sprintf("No revenue data found for the period %s to %s.", p.FromDate, p.ToDate),
			DataAccessed: []string{"Sales Invoice"},
		}, nil
	}

	total := 0.0
	for _, rec := range records {
		total += numField(rec, "grand_total")
	}

	content := fmt.Sprintf(
		"Total Revenue from %s to %s:\n- Amount: %s\n- Number of invoices: %d\n- Company: %s",
		p.FromDate, p.ToDate,
		tools.FormatAmount(t.cfg.currency(), total),
		len(records),
		companyLabel(company),
	)
	return &agent.ToolResult{
		Content:         content,
		RecordsReturned: len(records),
		DataAccessed:    []string{"Sales Invoice"},
	}, nil
}

// ExpensesTool totals expense postings from the general ledger over a
// date range.
type ExpensesTool struct {
	client erp.Client
	cfg    Config
}

func (t *ExpensesTool) Name() string { return "get_expenses" }

func (t *ExpensesTool) Description() string {
	return "Get total expenses for a company in a date range, summed from general ledger entries."
}

func (t *ExpensesTool) Schema() json.RawMessage { return json.RawMessage(dateRangeSchema) }

func (t *ExpensesTool) Permission() agent.Permission {
	return agent.Permission{Resource: "GL Entry", Operation: "read"}
}

func (t *ExpensesTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p dateRangeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	company := firstNonEmpty(p.Company, t.cfg.DefaultCompany)

	filters := []erp.Filter{
		{Field: "posting_date", Operator: ">=", Value: p.FromDate},
		{Field: "posting_date", Operator: "<=", Value: p.ToDate},
		{Field: "is_cancelled", Operator: "=", Value: 0},
		{Field: "root_type", Operator: "=", Value: "Expense"},
	}
	if company != "" {
		filters = append(filters, erp.Filter{Field: "company", Operator: "=", Value: company})
	}

	records, err := t.client.List(ctx, erp.ListQuery{
		Resource: "GL Entry",
		Fields:   []string{"debit", "credit"},
		Filters:  filters,
	})
	if err != nil {
		return nil, fmt.Errorf("list gl entries: %w", err)
	}

	if len(records) == 0 {
		return &agent.ToolResult{
			Content:      fmt.Sprintf("No expense data found for the period %s to %s.", p.FromDate, p.ToDate),
			DataAccessed: []string{"GL Entry"},
		}, nil
	}

	total := 0.0
	for _, rec := range records {
		total += numField(rec, "debit") - numField(rec, "credit")
	}

	content := fmt.Sprintf(
		"Total Expenses from %s to %s:\n- Amount: %s\n- Company: %s",
		p.FromDate, p.ToDate,
		tools.FormatAmount(t.cfg.currency(), total),
		companyLabel(company),
	)
	return &agent.ToolResult{
		Content:         content,
		RecordsReturned: len(records),
		DataAccessed:    []string{"GL Entry"},
	}, nil
}

// FinancialReportTool runs one of the standard financial statements.
type FinancialReportTool struct {
	client erp.Client
	cfg    Config
}

func (t *FinancialReportTool) Name() string { return "get_financial_report" }

func (t *FinancialReportTool) Description() string {
	return "Retrieve financial data from standard reports like Profit and Loss Statement, Balance Sheet, or Cash Flow."
}

func (t *FinancialReportTool) Schema() json.RawMessage {
	return json.RawMessage(`{
	"type": "object",
	"properties": {
		"report_name": {
			"type": "string",
			"enum": ["Profit and Loss Statement", "Balance Sheet", "Cash Flow"],
			"description": "Name of the financial report to execute"
		},
		"from_date": {"type": "string", "description": "Start date in YYYY-MM-DD format"},
		"to_date": {"type": "string", "description": "End date in YYYY-MM-DD format"},
		"company": {"type": "string", "description": "Company name (optional)"},
		"periodicity": {
			"type": "string",
			"enum": ["Monthly", "Quarterly", "Yearly"],
			"description": "Report periodicity (default: Monthly)"
		}
	},
	"required": ["report_name", "from_date", "to_date"]
}`)
}

func (t *FinancialReportTool) Permission() agent.Permission {
	return agent.Permission{Resource: "GL Entry", Operation: "read"}
}

func (t *FinancialReportTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p struct {
		dateRangeParams
		ReportName  string `json:"report_name"`
		Periodicity string `json:"periodicity"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	if p.Periodicity == "" {
		p.Periodicity = "Monthly"
	}
	company := firstNonEmpty(p.Company, t.cfg.DefaultCompany)
	if company == "" {
		return &agent.ToolResult{
			Content: "No company specified and no default company is configured.",
			IsError: true,
		}, nil
	}

	result, err := t.client.RunReport(ctx, p.ReportName, map[string]any{
		"company":           company,
		"period_start_date": p.FromDate,
		"period_end_date":   p.ToDate,
		"periodicity":       p.Periodicity,
	})
	if err != nil {
		return nil, fmt.Errorf("run report %s: %w", p.ReportName, err)
	}

	return &agent.ToolResult{
		Content:         tools.FormatReport(result, t.cfg.RecordLimit),
		RecordsReturned: len(result.Rows),
		DataAccessed:    []string{p.ReportName},
	}, nil
}

func numField(rec erp.Record, field string) float64 {
	switch v := rec[field].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func companyLabel(company string) string {
	if company == "" {
		return "All companies"
	}
	return company
}
