package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/haasonsaas/sage/internal/observability"
	"github.com/haasonsaas/sage/pkg/models"
)

// sensitiveKeys are parameter names whose values are replaced before an
// audit record is written.
var sensitiveKeys = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"credential",
	"private_key",
}

const redactedPlaceholder = "[REDACTED]"

// Recorder writes audit records without ever failing the operation
// being audited. Persistence errors and panics inside the recorder are
// logged and counted, then swallowed.
type Recorder struct {
	store   Store
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRecorder creates an audit recorder.
func NewRecorder(store Store, logger *observability.Logger, metrics *observability.Metrics) *Recorder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Recorder{store: store, logger: logger, metrics: metrics}
}

// RecordQuery persists the audit entry for one completed turn. Summary
// fields are truncated to their bounds before writing. The entry ID is
// set on success so tool records can reference it.
func (r *Recorder) RecordQuery(ctx context.Context, entry *models.AuditEntry) {
	defer r.recoverWrite(ctx, "record query")

	entry.ResponseSummary = models.TruncateSummary(entry.ResponseSummary, models.MaxResponseSummaryLength)
	entry.ErrorMessage = models.TruncateSummary(entry.ErrorMessage, models.MaxResponseSummaryLength)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.TraceID == "" {
		entry.TraceID = observability.GetTraceID(ctx)
	}

	if err := r.store.SaveEntry(ctx, entry); err != nil {
		r.writeFailed(ctx, "audit entry write failed", err,
			"session_id", entry.SessionID,
			"outcome", string(entry.Outcome),
		)
	}
}

// BeginToolCall writes the tool call record before execution starts and
// returns it for completion. Parameters are redacted. A nil return
// means the write failed; CompleteToolCall tolerates it.
func (r *Recorder) BeginToolCall(ctx context.Context, auditEntryID, sessionID, toolName string, params json.RawMessage) *models.ToolCallRecord {
	defer r.recoverWrite(ctx, "begin tool call")

	record := &models.ToolCallRecord{
		AuditEntryID: auditEntryID,
		SessionID:    sessionID,
		ToolName:     toolName,
		Parameters:   RedactParameters(params),
		StartedAt:    time.Now().UTC(),
		Status:       models.ToolCallError, // overwritten on completion
	}
	if err := r.store.SaveToolCall(ctx, record); err != nil {
		r.writeFailed(ctx, "tool call record write failed", err,
			"session_id", sessionID,
			"tool", toolName,
		)
		return nil
	}
	return record
}

// CompleteToolCall fills in the outcome of a started tool call. The
// result summary is truncated to its bound. A nil record is a no-op.
func (r *Recorder) CompleteToolCall(ctx context.Context, record *models.ToolCallRecord, status models.ToolCallStatus, resultSummary, errorDetails string, recordsReturned int) {
	if record == nil {
		return
	}
	defer r.recoverWrite(ctx, "complete tool call")

	record.DurationMS = time.Since(record.StartedAt).Milliseconds()
	record.Status = status
	record.ResultSummary = models.TruncateSummary(resultSummary, models.MaxToolSummaryLength)
	record.ErrorDetails = models.TruncateSummary(errorDetails, models.MaxToolSummaryLength)
	record.RecordsReturned = recordsReturned

	if err := r.store.UpdateToolCall(ctx, record); err != nil {
		r.writeFailed(ctx, "tool call record update failed", err,
			"session_id", record.SessionID,
			"tool", record.ToolName,
		)
	}
}

// Entries returns the audit trail of a session in chronological order.
func (r *Recorder) Entries(ctx context.Context, sessionID string, limit int) ([]*models.AuditEntry, error) {
	return r.store.ListEntries(ctx, sessionID, limit)
}

// ToolCalls returns the tool invocations recorded under an entry.
func (r *Recorder) ToolCalls(ctx context.Context, auditEntryID string) ([]*models.ToolCallRecord, error) {
	return r.store.ListToolCalls(ctx, auditEntryID)
}

func (r *Recorder) recoverWrite(ctx context.Context, op string) {
	if rec := recover(); rec != nil {
		r.writeFailed(ctx, "audit recorder panic", nil, "op", op, "panic", rec)
	}
}

func (r *Recorder) writeFailed(ctx context.Context, msg string, err error, args ...any) {
	if r.metrics != nil {
		r.metrics.AuditWriteFailures.Inc()
	}
	if err != nil {
		args = append(args, "error", err)
	}
	r.logger.Error(ctx, msg, args...)
}

// RedactParameters replaces values of sensitive keys in a JSON object
// with a placeholder, recursing into nested objects. Invalid JSON is
// passed through untouched.
func RedactParameters(params json.RawMessage) json.RawMessage {
	if len(params) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(params, &obj); err != nil {
		return params
	}
	redactMap(obj)
	out, err := json.Marshal(obj)
	if err != nil {
		return params
	}
	return out
}

func redactMap(obj map[string]any) {
	for key, val := range obj {
		if isSensitiveKey(key) {
			obj[key] = redactedPlaceholder
			continue
		}
		if nested, ok := val.(map[string]any); ok {
			redactMap(nested)
		}
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
