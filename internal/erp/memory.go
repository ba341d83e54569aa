package erp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryClient is an in-memory Client used for local development and
// tests. Records, reports, and grants are seeded up front.
type MemoryClient struct {
	mu        sync.RWMutex
	records   map[string][]Record
	reports   map[string]*ReportResult
	reportDds map[string]ReportInfo
	grants    map[string]map[string]map[Operation]bool
	allowAll  bool
}

// NewMemoryClient creates an empty in-memory client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		records:   make(map[string][]Record),
		reports:   make(map[string]*ReportResult),
		reportDds: make(map[string]ReportInfo),
		grants:    make(map[string]map[string]map[Operation]bool),
	}
}

// AllowAll makes every permission check pass. Development use only.
func (c *MemoryClient) AllowAll() *MemoryClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowAll = true
	return c
}

// SeedRecords registers records for a resource type.
func (c *MemoryClient) SeedRecords(resource string, records []Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[resource] = append(c.records[resource], records...)
}

// SeedReport registers a canned report result.
func (c *MemoryClient) SeedReport(info ReportInfo, result *ReportResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reportDds[info.Name] = info
	c.reports[info.Name] = result
}

// Grant allows the principal to perform op on resource.
func (c *MemoryClient) Grant(principalID, resource string, op Operation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.grants[principalID] == nil {
		c.grants[principalID] = make(map[string]map[Operation]bool)
	}
	if c.grants[principalID][resource] == nil {
		c.grants[principalID][resource] = make(map[Operation]bool)
	}
	c.grants[principalID][resource][op] = true
}

// HasPermission implements Client.
func (c *MemoryClient) HasPermission(ctx context.Context, principalID, resource string, op Operation) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.allowAll {
		return true, nil
	}
	return c.grants[principalID][resource][op], nil
}

// List implements Client.
func (c *MemoryClient) List(ctx context.Context, q ListQuery) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, ok := c.records[q.Resource]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, q.Resource)
	}

	var out []Record
	for _, row := range rows {
		if matchesAll(row, q.Filters) {
			out = append(out, projectFields(row, q.Fields))
		}
	}

	if q.OrderBy != "" {
		sortRecords(out, q.OrderBy)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// RunReport implements Client.
func (c *MemoryClient) RunReport(ctx context.Context, name string, filters map[string]any) (*ReportResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	result, ok := c.reports[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, name)
	}

	// Canned results ignore filter values but a copy keeps callers from
	// mutating seeded state.
	out := &ReportResult{Name: result.Name, Columns: result.Columns}
	out.Rows = append(out.Rows, result.Rows...)
	return out, nil
}

// ListReports implements Client.
func (c *MemoryClient) ListReports(ctx context.Context, principalID string) ([]ReportInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ReportInfo, 0, len(c.reportDds))
	for _, info := range c.reportDds {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func matchesAll(row Record, filters []Filter) bool {
	for _, f := range filters {
		if !matches(row, f) {
			return false
		}
	}
	return true
}

func matches(row Record, f Filter) bool {
	val, ok := row[f.Field]
	if !ok {
		return false
	}
	switch f.Operator {
	case "", "=":
		return compareValues(val, f.Value) == 0
	case "!=":
		return compareValues(val, f.Value) != 0
	case ">":
		return compareValues(val, f.Value) > 0
	case "<":
		return compareValues(val, f.Value) < 0
	case ">=":
		return compareValues(val, f.Value) >= 0
	case "<=":
		return compareValues(val, f.Value) <= 0
	case "like":
		s, _ := val.(string)
		p, _ := f.Value.(string)
		return strings.Contains(strings.ToLower(s), strings.ToLower(strings.Trim(p, "%")))
	default:
		return false
	}
}

// compareValues orders two loosely typed field values. Numbers compare
// numerically, everything else by string form.
func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func projectFields(row Record, fields []string) Record {
	if len(fields) == 0 {
		out := make(Record, len(row))
		for k, v := range row {
			out[k] = v
		}
		return out
	}
	out := make(Record, len(fields))
	for _, f := range fields {
		if v, ok := row[f]; ok {
			out[f] = v
		}
	}
	return out
}

func sortRecords(rows []Record, orderBy string) {
	field := orderBy
	desc := false
	if f, dir, ok := strings.Cut(orderBy, " "); ok {
		field = f
		desc = strings.EqualFold(dir, "desc")
	}
	sort.SliceStable(rows, func(i, j int) bool {
		cmp := compareValues(rows[i][field], rows[j][field])
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}
