// Package erp defines the interface to the backing business system:
// permission checks, record queries, and report execution.
package erp

import (
	"context"
	"errors"
	"fmt"
)

// Common errors returned by Client implementations.
var (
	// ErrResourceNotFound indicates the named resource type does not exist.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrReportNotFound indicates the named report does not exist.
	ErrReportNotFound = errors.New("report not found")
)

// Operation is a kind of access to check against the permission model.
type Operation string

const (
	OperationRead   Operation = "read"
	OperationWrite  Operation = "write"
	OperationSubmit Operation = "submit"
)

// Record is a single business record as a field map.
type Record map[string]any

// Filter constrains a record query to rows whose field matches a value
// under the given comparison operator.
type Filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"` // =, !=, >, <, >=, <=, like
	Value    any    `json:"value"`
}

// ListQuery describes a bounded record query.
type ListQuery struct {
	Resource string
	Fields   []string
	Filters  []Filter
	OrderBy  string
	Limit    int
}

// ReportResult is the outcome of running a report.
type ReportResult struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
	Rows    []Record `json:"rows"`
}

// Column describes one report column.
type Column struct {
	Field string `json:"field"`
	Label string `json:"label"`
	Type  string `json:"type"` // data, currency, int, float, date, link
}

// ReportInfo describes an available report.
type ReportInfo struct {
	Name        string `json:"name"`
	Module      string `json:"module"`
	Description string `json:"description"`
}

// Client is the surface the agent's tools use to reach the business
// system. Implementations must enforce nothing themselves; permission
// checks happen explicitly through HasPermission before any access.
type Client interface {
	// HasPermission reports whether the principal may perform the
	// operation on the resource type.
	HasPermission(ctx context.Context, principalID, resource string, op Operation) (bool, error)

	// List returns records matching the query. Implementations cap the
	// row count at the query limit.
	List(ctx context.Context, q ListQuery) ([]Record, error)

	// RunReport executes a named report with the given filter values.
	RunReport(ctx context.Context, name string, filters map[string]any) (*ReportResult, error)

	// ListReports enumerates reports the principal may run.
	ListReports(ctx context.Context, principalID string) ([]ReportInfo, error)
}

// PermissionDeniedError reports a failed permission check with enough
// detail for auditing.
type PermissionDeniedError struct {
	PrincipalID string
	Resource    string
	Op          Operation
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s cannot %s %s", e.PrincipalID, e.Op, e.Resource)
}

// IsPermissionDenied checks if err is a permission denial.
func IsPermissionDenied(err error) bool {
	var pde *PermissionDeniedError
	return errors.As(err, &pde)
}
