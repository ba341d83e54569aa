package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/sage/internal/observability"
	"github.com/haasonsaas/sage/pkg/models"
)

func TestRecorder_RecordQuery(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, observability.NopLogger(), nil)
	ctx := context.Background()

	entry := &models.AuditEntry{
		SessionID:              "sess-1",
		PrincipalID:            "alice@example.com",
		QueryText:              "what was revenue last month",
		ResponseSummary:        "Revenue was 5000",
		Outcome:                models.OutcomeCompleted,
		PermissionChecksPassed: true,
	}
	rec.RecordQuery(ctx, entry)

	if entry.ID == "" {
		t.Fatal("RecordQuery should assign an ID")
	}
	entries, err := store.ListEntries(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].QueryText != "what was revenue last month" {
		t.Errorf("QueryText = %q", entries[0].QueryText)
	}
}

func TestRecorder_RecordQueryTruncatesSummary(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, observability.NopLogger(), nil)

	entry := &models.AuditEntry{
		SessionID:       "sess-1",
		ResponseSummary: strings.Repeat("x", 2000),
		Outcome:         models.OutcomeCompleted,
	}
	rec.RecordQuery(context.Background(), entry)

	want := models.MaxResponseSummaryLength + len("...")
	if len(entry.ResponseSummary) != want {
		t.Errorf("summary length = %d, want %d", len(entry.ResponseSummary), want)
	}
}

type failingStore struct {
	*MemoryStore
}

func (f *failingStore) SaveEntry(ctx context.Context, entry *models.AuditEntry) error {
	return errors.New("disk full")
}

func (f *failingStore) SaveToolCall(ctx context.Context, record *models.ToolCallRecord) error {
	return errors.New("disk full")
}

func TestRecorder_WriteFailureDoesNotPropagate(t *testing.T) {
	rec := NewRecorder(&failingStore{NewMemoryStore()}, observability.NopLogger(), nil)
	ctx := context.Background()

	// Neither call may panic or surface the error.
	rec.RecordQuery(ctx, &models.AuditEntry{SessionID: "sess-1"})
	record := rec.BeginToolCall(ctx, "entry-1", "sess-1", "get_revenue", nil)
	if record != nil {
		t.Error("BeginToolCall should return nil when the write fails")
	}
	rec.CompleteToolCall(ctx, record, models.ToolCallSuccess, "", "", 0)
}

type panickyStore struct {
	*MemoryStore
}

func (p *panickyStore) SaveEntry(ctx context.Context, entry *models.AuditEntry) error {
	panic("boom")
}

func TestRecorder_PanicRecovered(t *testing.T) {
	rec := NewRecorder(&panickyStore{NewMemoryStore()}, observability.NopLogger(), nil)
	rec.RecordQuery(context.Background(), &models.AuditEntry{SessionID: "sess-1"})
}

func TestRecorder_ToolCallLifecycle(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, observability.NopLogger(), nil)
	ctx := context.Background()

	params := json.RawMessage(`{"report_type":"revenue","api_key":"sk-secret"}`)
	record := rec.BeginToolCall(ctx, "entry-1", "sess-1", "get_revenue", params)
	if record == nil {
		t.Fatal("BeginToolCall returned nil")
	}

	// Written before completion so a crash leaves a partial record.
	calls, err := store.ListToolCalls(ctx, "entry-1")
	if err != nil {
		t.Fatalf("ListToolCalls: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("got %d records, want 1", len(calls))
	}
	if strings.Contains(string(calls[0].Parameters), "sk-secret") {
		t.Error("sensitive parameter should be redacted")
	}

	rec.CompleteToolCall(ctx, record, models.ToolCallSuccess, "rows: 12", "", 12)

	calls, err = store.ListToolCalls(ctx, "entry-1")
	if err != nil {
		t.Fatalf("ListToolCalls: %v", err)
	}
	got := calls[0]
	if got.Status != models.ToolCallSuccess {
		t.Errorf("Status = %q, want success", got.Status)
	}
	if got.RecordsReturned != 12 {
		t.Errorf("RecordsReturned = %d, want 12", got.RecordsReturned)
	}
	if got.ResultSummary != "rows: 12" {
		t.Errorf("ResultSummary = %q", got.ResultSummary)
	}
}

func TestRedactParameters(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		check func(t *testing.T, out string)
	}{
		{
			name: "top level key",
			in:   `{"password":"hunter2","query":"revenue"}`,
			check: func(t *testing.T, out string) {
				if strings.Contains(out, "hunter2") {
					t.Error("password value leaked")
				}
				if !strings.Contains(out, "revenue") {
					t.Error("benign value dropped")
				}
			},
		},
		{
			name: "nested key",
			in:   `{"options":{"api_key":"sk-123"}}`,
			check: func(t *testing.T, out string) {
				if strings.Contains(out, "sk-123") {
					t.Error("nested api_key leaked")
				}
			},
		},
		{
			name: "case insensitive substring",
			in:   `{"AuthToken":"abc"}`,
			check: func(t *testing.T, out string) {
				if strings.Contains(out, "abc") {
					t.Error("AuthToken value leaked")
				}
			},
		},
		{
			name: "invalid json passes through",
			in:   `not json`,
			check: func(t *testing.T, out string) {
				if out != "not json" {
					t.Errorf("out = %q, want passthrough", out)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := RedactParameters(json.RawMessage(tt.in))
			tt.check(t, string(out))
		})
	}
}

func TestRedactParameters_Empty(t *testing.T) {
	if got := RedactParameters(nil); got != nil {
		t.Errorf("RedactParameters(nil) = %q, want nil", got)
	}
}
