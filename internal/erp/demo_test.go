package erp

import (
	"context"
	"testing"
	"time"
)

func TestSeedDemoPopulatesDataset(t *testing.T) {
	client := NewMemoryClient().AllowAll()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	SeedDemo(client, now)

	ctx := context.Background()

	invoices, err := client.List(ctx, ListQuery{
		Resource: "Sales Invoice",
		Filters:  []Filter{{Field: "docstatus", Operator: "=", Value: 1}},
	})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(invoices) != 36 {
		t.Fatalf("expected 36 posted invoices, got %d", len(invoices))
	}

	drafts, err := client.List(ctx, ListQuery{
		Resource: "Sales Invoice",
		Filters:  []Filter{{Field: "docstatus", Operator: "=", Value: 0}},
	})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("expected 1 draft invoice, got %d", len(drafts))
	}

	entries, err := client.List(ctx, ListQuery{
		Resource: "GL Entry",
		Filters:  []Filter{{Field: "root_type", Operator: "=", Value: "Expense"}},
	})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(entries) != 48 {
		t.Fatalf("expected 48 ledger entries, got %d", len(entries))
	}

	reports, err := client.ListReports(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("ListReports returned error: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(reports))
	}

	result, err := client.RunReport(ctx, "Profit and Loss Statement", nil)
	if err != nil {
		t.Fatalf("RunReport returned error: %v", err)
	}
	if len(result.Rows) == 0 {
		t.Fatal("expected profit and loss rows")
	}
}
