package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/sage/pkg/models"
)

// SQLiteStore implements the audit Store on a SQLite database. It
// shares the connection owned by the sessions store; audit rows carry
// no foreign keys so entries survive session deletion.
type SQLiteStore struct {
	db *sql.DB

	stmtSaveEntry      *sql.Stmt
	stmtSaveToolCall   *sql.Stmt
	stmtUpdateToolCall *sql.Stmt
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	principal_id TEXT NOT NULL,
	query_text TEXT NOT NULL,
	response_summary TEXT NOT NULL DEFAULT '',
	data_accessed TEXT NOT NULL DEFAULT '',
	permission_checks_passed INTEGER NOT NULL DEFAULT 1,
	outcome TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	tools_called INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	trace_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_entries(session_id, created_at);

CREATE TABLE IF NOT EXISTS audit_tool_calls (
	id TEXT PRIMARY KEY,
	audit_entry_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	parameters TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMP NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	result_summary TEXT NOT NULL DEFAULT '',
	error_details TEXT NOT NULL DEFAULT '',
	records_returned INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_audit_tool_calls_entry ON audit_tool_calls(audit_entry_id, started_at);
`

// NewSQLiteStore migrates the audit schema on db and prepares the
// write path.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if _, err := db.Exec(auditSchema); err != nil {
		return nil, fmt.Errorf("failed to migrate audit schema: %w", err)
	}

	store := &SQLiteStore{db: db}
	var err error

	store.stmtSaveEntry, err = db.Prepare(`
		INSERT INTO audit_entries (id, session_id, principal_id, query_text, response_summary, data_accessed, permission_checks_passed, outcome, error_message, tools_called, total_tokens, duration_ms, trace_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare save entry: %w", err)
	}

	store.stmtSaveToolCall, err = db.Prepare(`
		INSERT INTO audit_tool_calls (id, audit_entry_id, session_id, tool_name, parameters, started_at, duration_ms, status, result_summary, error_details, records_returned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare save tool call: %w", err)
	}

	store.stmtUpdateToolCall, err = db.Prepare(`
		UPDATE audit_tool_calls
		SET duration_ms = ?, status = ?, result_summary = ?, error_details = ?, records_returned = ?
		WHERE id = ?
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare update tool call: %w", err)
	}

	return store, nil
}

// Close releases the prepared statements. The shared connection is
// owned elsewhere and is left open.
func (s *SQLiteStore) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{s.stmtSaveEntry, s.stmtSaveToolCall, s.stmtUpdateToolCall} {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing audit store: %v", errs)
	}
	return nil
}

func (s *SQLiteStore) SaveEntry(ctx context.Context, entry *models.AuditEntry) error {
	if entry == nil {
		return errors.New("entry is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.stmtSaveEntry.ExecContext(ctx,
		entry.ID,
		entry.SessionID,
		entry.PrincipalID,
		entry.QueryText,
		entry.ResponseSummary,
		strings.Join(entry.DataAccessed, ","),
		entry.PermissionChecksPassed,
		string(entry.Outcome),
		entry.ErrorMessage,
		entry.ToolsCalled,
		entry.TotalTokens,
		entry.DurationMS,
		entry.TraceID,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save audit entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveToolCall(ctx context.Context, record *models.ToolCallRecord) error {
	if record == nil {
		return errors.New("record is required")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = time.Now().UTC()
	}

	_, err := s.stmtSaveToolCall.ExecContext(ctx,
		record.ID,
		record.AuditEntryID,
		record.SessionID,
		record.ToolName,
		string(record.Parameters),
		record.StartedAt,
		record.DurationMS,
		string(record.Status),
		record.ResultSummary,
		record.ErrorDetails,
		record.RecordsReturned,
	)
	if err != nil {
		return fmt.Errorf("failed to save tool call record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateToolCall(ctx context.Context, record *models.ToolCallRecord) error {
	if record == nil {
		return errors.New("record is required")
	}

	res, err := s.stmtUpdateToolCall.ExecContext(ctx,
		record.DurationMS,
		string(record.Status),
		record.ResultSummary,
		record.ErrorDetails,
		record.RecordsReturned,
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update tool call record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *SQLiteStore) ListEntries(ctx context.Context, sessionID string, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, principal_id, query_text, response_summary, data_accessed, permission_checks_passed, outcome, error_message, tools_called, total_tokens, duration_ms, trace_id, created_at
		FROM audit_entries WHERE session_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var out []*models.AuditEntry
	for rows.Next() {
		entry := &models.AuditEntry{}
		var outcome, dataAccessed string
		err := rows.Scan(
			&entry.ID,
			&entry.SessionID,
			&entry.PrincipalID,
			&entry.QueryText,
			&entry.ResponseSummary,
			&dataAccessed,
			&entry.PermissionChecksPassed,
			&outcome,
			&entry.ErrorMessage,
			&entry.ToolsCalled,
			&entry.TotalTokens,
			&entry.DurationMS,
			&entry.TraceID,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.Outcome = models.QueryOutcome(outcome)
		if dataAccessed != "" {
			entry.DataAccessed = strings.Split(dataAccessed, ",")
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}

	// Query returns newest first; reverse for chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteStore) ListToolCalls(ctx context.Context, auditEntryID string) ([]*models.ToolCallRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, audit_entry_id, session_id, tool_name, parameters, started_at, duration_ms, status, result_summary, error_details, records_returned
		FROM audit_tool_calls WHERE audit_entry_id = ?
		ORDER BY started_at ASC
	`, auditEntryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool call records: %w", err)
	}
	defer rows.Close()

	var out []*models.ToolCallRecord
	for rows.Next() {
		record := &models.ToolCallRecord{}
		var status, params string
		err := rows.Scan(
			&record.ID,
			&record.AuditEntryID,
			&record.SessionID,
			&record.ToolName,
			&params,
			&record.StartedAt,
			&record.DurationMS,
			&status,
			&record.ResultSummary,
			&record.ErrorDetails,
			&record.RecordsReturned,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tool call record: %w", err)
		}
		record.Status = models.ToolCallStatus(status)
		if params != "" {
			record.Parameters = json.RawMessage(params)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tool call records: %w", err)
	}
	return out, nil
}
