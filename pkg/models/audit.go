package models

import (
	"encoding/json"
	"time"
)

// ToolCallStatus is the result classification of one tool invocation.
type ToolCallStatus string

const (
	ToolCallSuccess          ToolCallStatus = "success"
	ToolCallError            ToolCallStatus = "error"
	ToolCallPermissionDenied ToolCallStatus = "permission_denied"
)

// QueryOutcome classifies how a top-level user query ended.
type QueryOutcome string

const (
	OutcomeCompleted QueryOutcome = "completed"
	OutcomeError     QueryOutcome = "error"
	OutcomeCancelled QueryOutcome = "cancelled"
)

// Bounded summary lengths for audit records.
const (
	MaxResponseSummaryLength = 500
	MaxToolSummaryLength     = 1000
)

// AuditEntry is the record-of-truth for one conversational turn. Exactly
// one entry exists per top-level user query, regardless of outcome.
// Entries are immutable once written and are retained even when the
// owning session is deleted.
type AuditEntry struct {
	ID                     string       `json:"id"`
	SessionID              string       `json:"session_id"`
	PrincipalID            string       `json:"principal_id"`
	QueryText              string       `json:"query_text"`
	ResponseSummary        string       `json:"response_summary,omitempty"`
	DataAccessed           []string     `json:"data_accessed,omitempty"`
	PermissionChecksPassed bool         `json:"permission_checks_passed"`
	Outcome                QueryOutcome `json:"outcome"`
	ErrorMessage           string       `json:"error_message,omitempty"`
	ToolsCalled            int          `json:"tools_called"`
	TotalTokens            int          `json:"total_tokens"`
	DurationMS             int64        `json:"duration_ms"`
	TraceID                string       `json:"trace_id,omitempty"`
	CreatedAt              time.Time    `json:"created_at"`
}

// ToolCallRecord captures one tool invocation within a turn. The record
// is written before execution and updated after, so a crash mid-call
// still leaves a partial record behind.
type ToolCallRecord struct {
	ID              string          `json:"id"`
	AuditEntryID    string          `json:"audit_entry_id"`
	SessionID       string          `json:"session_id"`
	ToolName        string          `json:"tool_name"`
	Parameters      json.RawMessage `json:"parameters,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	DurationMS      int64           `json:"duration_ms"`
	Status          ToolCallStatus  `json:"status"`
	ResultSummary   string          `json:"result_summary,omitempty"`
	ErrorDetails    string          `json:"error_details,omitempty"`
	RecordsReturned int             `json:"records_returned"`
}

// TruncateSummary bounds s to max runes, appending an ellipsis marker
// when content was dropped.
func TruncateSummary(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
