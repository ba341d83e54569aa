// Package tools holds formatting shared by the agent's tool packages:
// report results and record lists rendered as markdown the model can
// read, with bounded row counts.
package tools

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/haasonsaas/sage/internal/erp"
)

// Row bounds for formatted output. Past a hundred rows the context
// cost outweighs anything the model can do with the data.
const (
	DefaultMaxRows = 20
	HardMaxRows    = 100
)

// ClampRowsTo normalizes a requested row limit against a configured
// fallback and ceiling. Non-positive fallback or ceiling take the
// package defaults.
func ClampRowsTo(requested, fallback, ceiling int) int {
	if fallback <= 0 {
		fallback = DefaultMaxRows
	}
	if ceiling <= 0 {
		ceiling = HardMaxRows
	}
	if fallback > ceiling {
		fallback = ceiling
	}
	if requested <= 0 {
		return fallback
	}
	if requested > ceiling {
		return ceiling
	}
	return requested
}

// FormatReport renders a report result as a markdown table capped at
// maxRows, with numeric column totals appended.
func FormatReport(result *erp.ReportResult, maxRows int) string {
	if result == nil || len(result.Rows) == 0 {
		return "The report returned no results for the given criteria."
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	var b strings.Builder
	rows := result.Rows
	if len(rows) > maxRows {
		fmt.Fprintf(&b, "Showing first %d of %d total rows.\n\n", maxRows, len(rows))
		rows = rows[:maxRows]
	}

	labels := make([]string, len(result.Columns))
	for i, col := range result.Columns {
		labels[i] = col.Label
		if labels[i] == "" {
			labels[i] = col.Field
		}
	}
	b.WriteString("| " + strings.Join(labels, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(labels)) + "\n")

	for _, row := range rows {
		cells := make([]string, len(result.Columns))
		for i, col := range result.Columns {
			cells[i] = FormatValue(row[col.Field])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	if totals := columnTotals(result.Columns, rows); len(totals) > 0 {
		b.WriteString("\n**Totals:**\n")
		keys := make([]string, 0, len(totals))
		for k := range totals {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, FormatValue(totals[k]))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatRecords renders records as a numbered field list capped at
// maxItems, in the stored field order of the fields slice.
func FormatRecords(records []erp.Record, fields []string, maxItems int) string {
	if len(records) == 0 {
		return "No items found."
	}
	if maxItems <= 0 {
		maxItems = DefaultMaxRows
	}

	var b strings.Builder
	total := len(records)
	if total > maxItems {
		fmt.Fprintf(&b, "Showing %d of %d total items:\n\n", maxItems, total)
		records = records[:maxItems]
	}

	for i, rec := range records {
		parts := make([]string, 0, len(fields))
		for _, field := range fields {
			val := rec[field]
			if val == nil || val == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s: %s", fieldLabel(field), FormatValue(val)))
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.Join(parts, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatAmount renders a monetary amount with its currency code and
// thousands separators.
func FormatAmount(currency string, amount float64) string {
	if currency == "" {
		currency = "USD"
	}
	return currency + " " + groupDigits(fmt.Sprintf("%.2f", amount))
}

// FormatValue renders a single cell. Floats get separators and two
// decimals; everything else prints as-is.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return groupDigits(fmt.Sprintf("%.2f", x))
	case float32:
		return groupDigits(fmt.Sprintf("%.2f", x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}

func columnTotals(columns []erp.Column, rows []erp.Record) map[string]float64 {
	totals := make(map[string]float64)
	for _, col := range columns {
		if col.Type != "currency" && col.Type != "int" && col.Type != "float" {
			continue
		}
		label := col.Label
		if label == "" {
			label = col.Field
		}
		sum := 0.0
		found := false
		for _, row := range rows {
			if n, ok := asFloat(row[col.Field]); ok {
				sum += n
				found = true
			}
		}
		if found {
			totals[label] = sum
		}
	}
	return totals
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

// groupDigits inserts thousands separators into a formatted decimal.
func groupDigits(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String()
	if hasFrac {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

func fieldLabel(field string) string {
	words := strings.Split(field, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
