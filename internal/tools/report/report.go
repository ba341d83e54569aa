// Package report provides the generic report tools: run any report
// the principal can access, and discover which reports exist.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/haasonsaas/sage/internal/agent"
	"github.com/haasonsaas/sage/internal/erp"
	"github.com/haasonsaas/sage/internal/tools"
)

// Config tunes report output bounds.
type Config struct {
	// DefaultRows is the row count rendered when the model does not
	// ask for one. Default: tools.DefaultMaxRows
	DefaultRows int

	// MaxRows caps model-requested row counts.
	// Default: tools.HardMaxRows
	MaxRows int
}

// Tools returns the report toolset over the given client.
func Tools(client erp.Client, cfg Config) []agent.Tool {
	return []agent.Tool{
		&ExecuteReportTool{client: client, cfg: cfg},
		&ListReportsTool{client: client},
	}
}

// ExecuteReportTool runs a named report with arbitrary filters.
type ExecuteReportTool struct {
	client erp.Client
	cfg    Config
}

func (t *ExecuteReportTool) Name() string { return "execute_report" }

func (t *ExecuteReportTool) Description() string {
	return "Execute any standard report by name with filters. Use this for reports not covered by specialized tools, like Accounts Receivable, Sales Register, or General Ledger."
}

func (t *ExecuteReportTool) Schema() json.RawMessage {
	return json.RawMessage(`{
	"type": "object",
	"properties": {
		"report_name": {
			"type": "string",
			"description": "Exact name of the report (e.g. 'Accounts Receivable', 'Sales Register', 'General Ledger')"
		},
		"filters": {
			"type": "object",
			"description": "Report filters as key-value pairs (e.g. {\"company\": \"My Company\", \"from_date\": \"2026-01-01\"})"
		},
		"max_rows": {
			"type": "integer",
			"minimum": 1,
			"maximum": 100,
			"description": "Maximum rows to return (default 20)"
		}
	},
	"required": ["report_name"]
}`)
}

func (t *ExecuteReportTool) Permission() agent.Permission {
	return agent.Permission{Resource: "Report", Operation: "read"}
}

func (t *ExecuteReportTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p struct {
		ReportName string         `json:"report_name"`
		Filters    map[string]any `json:"filters"`
		MaxRows    int            `json:"max_rows"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.ReportName) == "" {
		return &agent.ToolResult{Content: "report_name is required", IsError: true}, nil
	}

	result, err := t.client.RunReport(ctx, p.ReportName, scrubFilters(p.Filters))
	if err != nil {
		if errors.Is(err, erp.ErrReportNotFound) {
			return &agent.ToolResult{
				Content: fmt.Sprintf("Report %q not found.", p.ReportName),
				IsError: true,
			}, nil
		}
		return nil, fmt.Errorf("run report %s: %w", p.ReportName, err)
	}

	return &agent.ToolResult{
		Content:         tools.FormatReport(result, tools.ClampRowsTo(p.MaxRows, t.cfg.DefaultRows, t.cfg.MaxRows)),
		RecordsReturned: len(result.Rows),
		DataAccessed:    []string{p.ReportName},
	}, nil
}

// ListReportsTool enumerates the reports the acting principal may run,
// grouped by module.
type ListReportsTool struct {
	client erp.Client
}

func (t *ListReportsTool) Name() string { return "list_available_reports" }

func (t *ListReportsTool) Description() string {
	return "List available reports that can be executed. Use this to discover what reports exist."
}

func (t *ListReportsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
	"type": "object",
	"properties": {
		"module": {
			"type": "string",
			"description": "Filter by module (e.g. 'Accounts', 'Selling', 'Stock')"
		}
	}
}`)
}

func (t *ListReportsTool) Permission() agent.Permission {
	return agent.Permission{Resource: "Report", Operation: "read"}
}

func (t *ListReportsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p struct {
		Module string `json:"module"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
	}

	reports, err := t.client.ListReports(ctx, erp.PrincipalFrom(ctx))
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	if p.Module != "" {
		filtered := reports[:0]
		for _, r := range reports {
			if strings.EqualFold(r.Module, p.Module) {
				filtered = append(filtered, r)
			}
		}
		reports = filtered
	}
	if len(reports) == 0 {
		return &agent.ToolResult{
			Content:      "No reports available for your access level.",
			DataAccessed: []string{"Report"},
		}, nil
	}

	sort.Slice(reports, func(i, j int) bool {
		if reports[i].Module != reports[j].Module {
			return reports[i].Module < reports[j].Module
		}
		return reports[i].Name < reports[j].Name
	})

	var b strings.Builder
	b.WriteString("**Available Reports:**\n")
	current := ""
	for _, r := range reports {
		if r.Module != current {
			current = r.Module
			fmt.Fprintf(&b, "\n**%s:**\n", current)
		}
		b.WriteString("- " + r.Name)
		if r.Description != "" {
			b.WriteString(" - " + r.Description)
		}
		b.WriteString("\n")
	}

	return &agent.ToolResult{
		Content:         strings.TrimRight(b.String(), "\n"),
		RecordsReturned: len(reports),
		DataAccessed:    []string{"Report"},
	}, nil
}

// scrubFilters drops null values so they don't reach the report
// runner as real filters.
func scrubFilters(filters map[string]any) map[string]any {
	if len(filters) == 0 {
		return nil
	}
	out := make(map[string]any, len(filters))
	for k, v := range filters {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}
