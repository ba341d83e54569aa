package response

import (
	"context"
	"strings"
	"testing"

	"github.com/haasonsaas/sage/pkg/models"
)

const validBlock = `{CHART_DATA}
{"type": "bar", "title": "Monthly Revenue", "labels": ["Jan", "Feb", "Mar"], "values": [100, 200, 150], "x_axis_label": "Month", "y_axis_label": "USD"}
{/CHART_DATA}`

func TestShapeExtractsChart(t *testing.T) {
	s := NewShaper(nil)
	text := "Here is the revenue trend:\n\n" + validBlock + "\n\nRevenue peaked in February."

	cleaned, chart := s.Shape(context.Background(), text)
	if chart == nil {
		t.Fatal("expected chart")
	}
	if chart.Type != models.ChartBar || chart.Title != "Monthly Revenue" {
		t.Fatalf("chart = %+v", chart)
	}
	if len(chart.Labels) != 3 || chart.Values[1] != 200 {
		t.Fatalf("data = %v / %v", chart.Labels, chart.Values)
	}
	if chart.XAxisLabel != "Month" || chart.YAxisLabel != "USD" {
		t.Fatalf("axes = %q / %q", chart.XAxisLabel, chart.YAxisLabel)
	}

	if strings.Contains(cleaned, "CHART_DATA") {
		t.Fatalf("block not stripped: %q", cleaned)
	}
	if !strings.Contains(cleaned, "revenue trend") || !strings.Contains(cleaned, "peaked in February") {
		t.Fatalf("surrounding text lost: %q", cleaned)
	}
	if strings.Contains(cleaned, "\n\n\n") {
		t.Fatalf("blank runs not collapsed: %q", cleaned)
	}
}

func TestShapeAppliesDefaultColors(t *testing.T) {
	s := NewShaper(nil)
	_, chart := s.Shape(context.Background(), validBlock)
	if chart == nil {
		t.Fatal("expected chart")
	}
	if len(chart.Colors) != 3 {
		t.Fatalf("got %d colors, want 3", len(chart.Colors))
	}
	if chart.Colors[0] != models.DefaultChartColors[0] {
		t.Fatalf("colors[0] = %q", chart.Colors[0])
	}
}

func TestShapeKeepsProvidedColors(t *testing.T) {
	s := NewShaper(nil)
	text := `{CHART_DATA}{"type": "pie", "labels": ["A", "B"], "values": [1, 2], "colors": ["#111111", "#222222"]}{/CHART_DATA}`
	_, chart := s.Shape(context.Background(), text)
	if chart == nil {
		t.Fatal("expected chart")
	}
	if len(chart.Colors) != 2 || chart.Colors[0] != "#111111" {
		t.Fatalf("colors = %v", chart.Colors)
	}
}

func TestShapeDropsInvalidCharts(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "bad type", payload: `{"type": "scatter", "labels": ["A", "B"], "values": [1, 2]}`},
		{name: "length mismatch", payload: `{"type": "bar", "labels": ["A", "B"], "values": [1]}`},
		{name: "single point", payload: `{"type": "line", "labels": ["A"], "values": [1]}`},
		{name: "not json", payload: `{"type": "bar", "labels": [`},
	}
	s := NewShaper(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := "Before.\n{CHART_DATA}" + tt.payload + "{/CHART_DATA}\nAfter."
			cleaned, chart := s.Shape(context.Background(), text)
			if chart != nil {
				t.Fatalf("expected nil chart, got %+v", chart)
			}
			if strings.Contains(cleaned, "CHART_DATA") {
				t.Fatalf("invalid block not stripped: %q", cleaned)
			}
			if !strings.Contains(cleaned, "Before.") || !strings.Contains(cleaned, "After.") {
				t.Fatalf("text damaged: %q", cleaned)
			}
		})
	}
}

func TestShapeNoBlock(t *testing.T) {
	s := NewShaper(nil)
	cleaned, chart := s.Shape(context.Background(), "Plain answer with no chart.")
	if chart != nil {
		t.Fatalf("chart = %+v", chart)
	}
	if cleaned != "Plain answer with no chart." {
		t.Fatalf("cleaned = %q", cleaned)
	}
}

func TestShapeUnterminatedBlockLeftVisible(t *testing.T) {
	s := NewShaper(nil)
	text := `Something went sideways {CHART_DATA}{"type": "bar"`
	cleaned, chart := s.Shape(context.Background(), text)
	if chart != nil {
		t.Fatalf("chart = %+v", chart)
	}
	if !strings.Contains(cleaned, "{CHART_DATA}") {
		t.Fatalf("unterminated block should stay visible: %q", cleaned)
	}
}

func TestShapeMultipleBlocksUsesFirst(t *testing.T) {
	s := NewShaper(nil)
	second := `{CHART_DATA}{"type": "pie", "labels": ["X", "Y"], "values": [5, 6]}{/CHART_DATA}`
	text := validBlock + "\nAnd another:\n" + second

	cleaned, chart := s.Shape(context.Background(), text)
	if chart == nil || chart.Type != models.ChartBar {
		t.Fatalf("expected first chart, got %+v", chart)
	}
	if strings.Contains(cleaned, "CHART_DATA") {
		t.Fatalf("extra block not stripped: %q", cleaned)
	}
}
