// Package response shapes raw model output into the payload returned
// to clients, extracting the embedded chart block when one is present.
package response

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/haasonsaas/sage/internal/observability"
	"github.com/haasonsaas/sage/pkg/models"
)

const (
	chartOpenTag  = "{CHART_DATA}"
	chartCloseTag = "{/CHART_DATA}"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Shaper extracts the chart block from model text and validates it. A
// malformed block never fails the turn; the chart is dropped and the
// cleaned text still goes out.
type Shaper struct {
	logger *observability.Logger
}

// NewShaper creates a response shaper.
func NewShaper(logger *observability.Logger) *Shaper {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Shaper{logger: logger}
}

// chartBlock is the in-band JSON format the model emits, per the
// system prompt's chart contract.
type chartBlock struct {
	Type       string    `json:"type"`
	Title      string    `json:"title"`
	Labels     []string  `json:"labels"`
	Values     []float64 `json:"values"`
	XAxisLabel string    `json:"x_axis_label"`
	YAxisLabel string    `json:"y_axis_label"`
	Colors     []string  `json:"colors"`
}

// Shape strips chart blocks from the text and returns the cleaned text
// plus the parsed chart, or nil when no valid chart was embedded. Only
// the first block is parsed; any extras are stripped and ignored.
func (s *Shaper) Shape(ctx context.Context, text string) (string, *models.ChartPayload) {
	cleaned, blocks := stripChartBlocks(text)
	if len(blocks) == 0 {
		return cleaned, nil
	}
	if len(blocks) > 1 {
		s.logger.Warn(ctx, "multiple chart blocks in response, using first", "blocks", len(blocks))
	}

	chart, err := parseChart(blocks[0])
	if err != nil {
		s.logger.Warn(ctx, "dropping invalid chart block", "error", err)
		return cleaned, nil
	}
	return cleaned, chart
}

// stripChartBlocks removes every delimited block from the text and
// returns the raw payloads. An unterminated open tag is left in place;
// mangled output should stay visible rather than silently vanish.
func stripChartBlocks(text string) (string, []string) {
	var blocks []string
	var b strings.Builder
	rest := text

	for {
		open := strings.Index(rest, chartOpenTag)
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[open:], chartCloseTag)
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += open

		b.WriteString(rest[:open])
		blocks = append(blocks, strings.TrimSpace(rest[open+len(chartOpenTag):end]))
		rest = rest[end+len(chartCloseTag):]
	}

	cleaned := blankRuns.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(cleaned), blocks
}

// parseChart decodes and validates one block payload, applying the
// default palette when the model supplied no colors.
func parseChart(raw string) (*models.ChartPayload, error) {
	var block chartBlock
	if err := json.Unmarshal([]byte(raw), &block); err != nil {
		return nil, err
	}

	chart := &models.ChartPayload{
		Type:       models.ChartType(block.Type),
		Title:      block.Title,
		Labels:     block.Labels,
		Values:     block.Values,
		XAxisLabel: block.XAxisLabel,
		YAxisLabel: block.YAxisLabel,
		Colors:     block.Colors,
	}
	if err := chart.Validate(); err != nil {
		return nil, err
	}

	if len(chart.Colors) == 0 {
		chart.Colors = make([]string, len(chart.Labels))
		for i := range chart.Colors {
			chart.Colors[i] = models.DefaultChartColors[i%len(models.DefaultChartColors)]
		}
	}
	return chart, nil
}
