package erp

import (
	"fmt"
	"time"
)

// SeedDemo loads a small, deterministic business dataset into the
// client: a year of sales invoices and expense ledger entries for two
// companies, plus a few runnable reports. It is what `sage serve
// --demo` and `sage chat` run against when no real backend is wired.
func SeedDemo(c *MemoryClient, now time.Time) {
	customers := []string{"Acme Corp", "Globex", "Initech", "Umbrella Ltd"}
	amounts := []float64{1250.00, 4800.50, 980.25, 15600.00, 2340.75, 7125.00}

	var invoices []Record
	for month := 0; month < 12; month++ {
		day := now.AddDate(0, -month, 0)
		for i := 0; i < 3; i++ {
			n := month*3 + i
			invoices = append(invoices, Record{
				"name":         fmt.Sprintf("SINV-%04d", n+1),
				"customer":     customers[n%len(customers)],
				"posting_date": day.AddDate(0, 0, -i*7).Format("2006-01-02"),
				"grand_total":  amounts[n%len(amounts)],
				"status":       "Paid",
				"company":      demoCompany(n),
				"docstatus":    1,
			})
		}
	}
	// A draft that revenue sums must skip.
	invoices = append(invoices, Record{
		"name":         "SINV-DRAFT",
		"customer":     "Acme Corp",
		"posting_date": now.Format("2006-01-02"),
		"grand_total":  99999.00,
		"status":       "Draft",
		"company":      "Sage Demo Inc",
		"docstatus":    0,
	})
	c.SeedRecords("Sales Invoice", invoices)

	expenseAccounts := []string{
		"Salaries and Wages", "Rent Expense", "Software Subscriptions", "Travel Expense",
	}
	var entries []Record
	for month := 0; month < 12; month++ {
		day := now.AddDate(0, -month, 0)
		for i, account := range expenseAccounts {
			entries = append(entries, Record{
				"name":         fmt.Sprintf("GLE-%04d", month*len(expenseAccounts)+i+1),
				"account":      account,
				"posting_date": day.AddDate(0, 0, -i*5).Format("2006-01-02"),
				"debit":        float64(800+i*450) + float64(month)*13.50,
				"credit":       0.0,
				"root_type":    "Expense",
				"company":      "Sage Demo Inc",
				"is_cancelled": 0,
			})
		}
	}
	c.SeedRecords("GL Entry", entries)

	c.SeedReport(ReportInfo{
		Name:        "Profit and Loss Statement",
		Module:      "Accounts",
		Description: "Income and expenses over a period",
	}, &ReportResult{
		Name: "Profit and Loss Statement",
		Columns: []Column{
			{Field: "account", Label: "Account", Type: "data"},
			{Field: "income", Label: "Income", Type: "currency"},
			{Field: "expense", Label: "Expense", Type: "currency"},
		},
		Rows: []Record{
			{"account": "Sales", "income": 186500.25, "expense": 0.0},
			{"account": "Salaries and Wages", "income": 0.0, "expense": 64200.00},
			{"account": "Rent Expense", "income": 0.0, "expense": 30000.00},
			{"account": "Software Subscriptions", "income": 0.0, "expense": 21480.50},
		},
	})

	c.SeedReport(ReportInfo{
		Name:        "Sales Register",
		Module:      "Selling",
		Description: "Posted sales invoices with totals",
	}, &ReportResult{
		Name: "Sales Register",
		Columns: []Column{
			{Field: "customer", Label: "Customer", Type: "data"},
			{Field: "invoices", Label: "Invoices", Type: "int"},
			{Field: "total", Label: "Total", Type: "currency"},
		},
		Rows: []Record{
			{"customer": "Acme Corp", "invoices": 9, "total": 52300.75},
			{"customer": "Globex", "invoices": 9, "total": 48120.00},
			{"customer": "Initech", "invoices": 9, "total": 44610.50},
			{"customer": "Umbrella Ltd", "invoices": 9, "total": 41469.00},
		},
	})

	c.SeedReport(ReportInfo{
		Name:        "Accounts Receivable",
		Module:      "Accounts",
		Description: "Outstanding customer balances by age",
	}, &ReportResult{
		Name: "Accounts Receivable",
		Columns: []Column{
			{Field: "customer", Label: "Customer", Type: "data"},
			{Field: "outstanding", Label: "Outstanding", Type: "currency"},
			{Field: "age_days", Label: "Age (Days)", Type: "int"},
		},
		Rows: []Record{
			{"customer": "Globex", "outstanding": 7125.00, "age_days": 18},
			{"customer": "Initech", "outstanding": 980.25, "age_days": 42},
		},
	})
}

func demoCompany(n int) string {
	if n%5 == 4 {
		return "Sage Demo Europe GmbH"
	}
	return "Sage Demo Inc"
}
