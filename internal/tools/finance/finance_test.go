package finance

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/haasonsaas/sage/internal/erp"
)

func seededClient() *erp.MemoryClient {
	client := erp.NewMemoryClient().AllowAll()
	client.SeedRecords("Sales Invoice", []erp.Record{
		{"name": "INV-001", "posting_date": "2026-07-03", "docstatus": 1, "company": "Acme Corp", "grand_total": 1200.0},
		{"name": "INV-002", "posting_date": "2026-07-18", "docstatus": 1, "company": "Acme Corp", "grand_total": 800.5},
		{"name": "INV-003", "posting_date": "2026-07-20", "docstatus": 0, "company": "Acme Corp", "grand_total": 999.0},
		{"name": "INV-004", "posting_date": "2026-08-02", "docstatus": 1, "company": "Acme Corp", "grand_total": 450.0},
		{"name": "INV-005", "posting_date": "2026-07-10", "docstatus": 1, "company": "Globex", "grand_total": 5000.0},
	})
	client.SeedRecords("GL Entry", []erp.Record{
		{"posting_date": "2026-07-05", "is_cancelled": 0, "root_type": "Expense", "company": "Acme Corp", "debit": 300.0, "credit": 0.0},
		{"posting_date": "2026-07-12", "is_cancelled": 0, "root_type": "Expense", "company": "Acme Corp", "debit": 150.0, "credit": 50.0},
		{"posting_date": "2026-07-15", "is_cancelled": 1, "root_type": "Expense", "company": "Acme Corp", "debit": 999.0, "credit": 0.0},
		{"posting_date": "2026-07-16", "is_cancelled": 0, "root_type": "Income", "company": "Acme Corp", "debit": 0.0, "credit": 2000.0},
	})
	client.SeedReport(
		erp.ReportInfo{Name: "Profit and Loss Statement", Module: "Accounts"},
		&erp.ReportResult{
			Name: "Profit and Loss Statement",
			Columns: []erp.Column{
				{Field: "account", Label: "Account", Type: "data"},
				{Field: "total", Label: "Total", Type: "currency"},
			},
			Rows: []erp.Record{
				{"account": "Income", "total": 2000.5},
				{"account": "Expenses", "total": -400.0},
			},
		},
	)
	return client
}

func TestRevenueToolSumsSubmittedInvoices(t *testing.T) {
	tool := &RevenueTool{client: seededClient(), cfg: Config{DefaultCompany: "Acme Corp"}}

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"from_date": "2026-07-01", "to_date": "2026-07-31"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", res.Content)
	}
	// Draft invoice, other company, and August invoice are excluded.
	if !strings.Contains(res.Content, "USD 2,000.50") {
		t.Fatalf("total wrong:\n%s", res.Content)
	}
	if !strings.Contains(res.Content, "Number of invoices: 2") {
		t.Fatalf("count wrong:\n%s", res.Content)
	}
	if res.RecordsReturned != 2 {
		t.Fatalf("RecordsReturned = %d", res.RecordsReturned)
	}
	if len(res.DataAccessed) != 1 || res.DataAccessed[0] != "Sales Invoice" {
		t.Fatalf("DataAccessed = %v", res.DataAccessed)
	}
}

func TestRevenueToolExplicitCompanyOverridesDefault(t *testing.T) {
	tool := &RevenueTool{client: seededClient(), cfg: Config{DefaultCompany: "Acme Corp"}}

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"from_date": "2026-07-01", "to_date": "2026-07-31", "company": "Globex"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(res.Content, "USD 5,000.00") || !strings.Contains(res.Content, "Company: Globex") {
		t.Fatalf("content:\n%s", res.Content)
	}
}

func TestRevenueToolEmptyPeriod(t *testing.T) {
	tool := &RevenueTool{client: seededClient(), cfg: Config{DefaultCompany: "Acme Corp"}}

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"from_date": "2025-01-01", "to_date": "2025-01-31"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.IsError || !strings.Contains(res.Content, "No revenue data found") {
		t.Fatalf("content:\n%s", res.Content)
	}
}

func TestRevenueToolRejectsBadDates(t *testing.T) {
	tool := &RevenueTool{client: seededClient(), cfg: Config{}}

	tests := []string{
		`{"from_date": "07/01/2026", "to_date": "2026-07-31"}`,
		`{"from_date": "2026-07-31", "to_date": "2026-07-01"}`,
	}
	for _, params := range tests {
		res, err := tool.Execute(context.Background(), json.RawMessage(params))
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if !res.IsError {
			t.Fatalf("expected error result for %s, got %q", params, res.Content)
		}
	}
}

func TestExpensesToolNetsDebitsAgainstCredits(t *testing.T) {
	tool := &ExpensesTool{client: seededClient(), cfg: Config{DefaultCompany: "Acme Corp"}}

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"from_date": "2026-07-01", "to_date": "2026-07-31"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	// 300 + (150 - 50); cancelled and income rows excluded.
	if !strings.Contains(res.Content, "USD 400.00") {
		t.Fatalf("total wrong:\n%s", res.Content)
	}
	if res.RecordsReturned != 2 {
		t.Fatalf("RecordsReturned = %d", res.RecordsReturned)
	}
	if len(res.DataAccessed) != 1 || res.DataAccessed[0] != "GL Entry" {
		t.Fatalf("DataAccessed = %v", res.DataAccessed)
	}
}

func TestFinancialReportTool(t *testing.T) {
	tool := &FinancialReportTool{client: seededClient(), cfg: Config{DefaultCompany: "Acme Corp"}}

	res, err := tool.Execute(context.Background(), json.RawMessage(
		`{"report_name": "Profit and Loss Statement", "from_date": "2026-01-01", "to_date": "2026-06-30"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(res.Content, "| Account | Total |") {
		t.Fatalf("table missing:\n%s", res.Content)
	}
	if res.RecordsReturned != 2 {
		t.Fatalf("RecordsReturned = %d", res.RecordsReturned)
	}
	if len(res.DataAccessed) != 1 || res.DataAccessed[0] != "Profit and Loss Statement" {
		t.Fatalf("DataAccessed = %v", res.DataAccessed)
	}
}

func TestFinancialReportToolRequiresCompany(t *testing.T) {
	tool := &FinancialReportTool{client: seededClient(), cfg: Config{}}

	res, err := tool.Execute(context.Background(), json.RawMessage(
		`{"report_name": "Balance Sheet", "from_date": "2026-01-01", "to_date": "2026-06-30"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "No company specified") {
		t.Fatalf("result = %+v", res)
	}
}

func TestToolsRegistration(t *testing.T) {
	set := Tools(seededClient(), Config{DefaultCompany: "Acme Corp"})
	if len(set) != 3 {
		t.Fatalf("got %d tools, want 3", len(set))
	}
	names := map[string]bool{}
	for _, tool := range set {
		names[tool.Name()] = true
		if tool.Schema() == nil {
			t.Errorf("%s has no schema", tool.Name())
		}
		if !tool.Permission().Required() {
			t.Errorf("%s declares no permission", tool.Name())
		}
	}
	for _, want := range []string{"get_revenue", "get_expenses", "get_financial_report"} {
		if !names[want] {
			t.Errorf("missing tool %s", want)
		}
	}
}
