package audit

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/sage/pkg/models"
)

// MemoryStore provides an in-memory audit Store for testing and local
// runs.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]*models.AuditEntry
	toolCalls map[string]*models.ToolCallRecord
}

// NewMemoryStore creates a new in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:   map[string]*models.AuditEntry{},
		toolCalls: map[string]*models.ToolCallRecord{},
	}
}

func (m *MemoryStore) SaveEntry(ctx context.Context, entry *models.AuditEntry) error {
	if entry == nil {
		return errors.New("entry is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *entry
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	entry.ID = clone.ID
	entry.CreatedAt = clone.CreatedAt
	m.entries[clone.ID] = &clone
	return nil
}

func (m *MemoryStore) SaveToolCall(ctx context.Context, record *models.ToolCallRecord) error {
	if record == nil {
		return errors.New("record is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *record
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.StartedAt.IsZero() {
		clone.StartedAt = time.Now()
	}
	record.ID = clone.ID
	record.StartedAt = clone.StartedAt
	m.toolCalls[clone.ID] = &clone
	return nil
}

func (m *MemoryStore) UpdateToolCall(ctx context.Context, record *models.ToolCallRecord) error {
	if record == nil {
		return errors.New("record is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.toolCalls[record.ID]; !ok {
		return ErrEntryNotFound
	}
	clone := *record
	m.toolCalls[clone.ID] = &clone
	return nil
}

func (m *MemoryStore) ListEntries(ctx context.Context, sessionID string, limit int) ([]*models.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.AuditEntry
	for _, e := range m.entries {
		if e.SessionID == sessionID {
			clone := *e
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MemoryStore) ListToolCalls(ctx context.Context, auditEntryID string) ([]*models.ToolCallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.ToolCallRecord
	for _, r := range m.toolCalls {
		if r.AuditEntryID == auditEntryID {
			clone := *r
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}
