// Package audit persists a permanent record of every query, tool
// invocation, and permission decision. Audit writes never fail the
// user-facing operation; persistence errors are reported out of band.
package audit

import (
	"context"
	"errors"

	"github.com/haasonsaas/sage/pkg/models"
)

// ErrEntryNotFound indicates the audit entry or tool record is missing.
var ErrEntryNotFound = errors.New("audit entry not found")

// Store is the interface for audit persistence. Entries are append
// only; tool call records are updated once when execution finishes.
type Store interface {
	SaveEntry(ctx context.Context, entry *models.AuditEntry) error
	SaveToolCall(ctx context.Context, record *models.ToolCallRecord) error
	UpdateToolCall(ctx context.Context, record *models.ToolCallRecord) error

	ListEntries(ctx context.Context, sessionID string, limit int) ([]*models.AuditEntry, error)
	ListToolCalls(ctx context.Context, auditEntryID string) ([]*models.ToolCallRecord, error)
}
