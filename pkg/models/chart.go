package models

import "fmt"

// ChartType identifies the visualization type a chart payload targets.
type ChartType string

const (
	ChartBar  ChartType = "bar"
	ChartLine ChartType = "line"
	ChartPie  ChartType = "pie"
)

// Chart payload bounds. A chart with a single data point is noise, and
// anything past fifty points is unreadable in the UI.
const (
	MinChartPoints = 2
	MaxChartPoints = 50
)

// DefaultChartColors is the palette applied when the model supplies none.
var DefaultChartColors = []string{
	"#2491eb", "#5e64ff", "#00c3b3", "#28c76f", "#ff6b6b",
	"#f9c846", "#743ee2", "#ea5455", "#a5a5a5", "#1a1a2e",
}

// ChartPayload is the structured chart description extracted from a
// model reply. Labels and Values are parallel slices.
type ChartPayload struct {
	Type       ChartType `json:"chart_type"`
	Title      string    `json:"title,omitempty"`
	Labels     []string  `json:"labels"`
	Values     []float64 `json:"values"`
	XAxisLabel string    `json:"x_axis_label,omitempty"`
	YAxisLabel string    `json:"y_axis_label,omitempty"`
	Colors     []string  `json:"colors,omitempty"`
}

// Validate checks structural invariants: a known chart type, matching
// label/value lengths, and a point count within [MinChartPoints,
// MaxChartPoints].
func (c *ChartPayload) Validate() error {
	switch c.Type {
	case ChartBar, ChartLine, ChartPie:
	default:
		return fmt.Errorf("unsupported chart type %q", c.Type)
	}
	if len(c.Labels) != len(c.Values) {
		return fmt.Errorf("labels (%d) and values (%d) must have equal length", len(c.Labels), len(c.Values))
	}
	if len(c.Labels) < MinChartPoints {
		return fmt.Errorf("chart requires at least %d data points, got %d", MinChartPoints, len(c.Labels))
	}
	if len(c.Labels) > MaxChartPoints {
		return fmt.Errorf("chart exceeds %d data points: %d", MaxChartPoints, len(c.Labels))
	}
	return nil
}
