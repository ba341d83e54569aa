package sessions

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/sage/pkg/models"
)

// maxMessagesPerSession limits messages stored per session to prevent
// unbounded memory growth. When exceeded, the oldest messages are
// trimmed.
const maxMessagesPerSession = 1000

// MemoryStore provides an in-memory Store implementation for testing
// and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	messages map[string][]*models.Message
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*models.Session{},
		messages: map[string][]*models.Message{},
	}
}

func (m *MemoryStore) Create(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("session is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := cloneSession(session)
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	if clone.LastActivity.IsZero() {
		clone.LastActivity = clone.CreatedAt
	}
	if clone.Status == "" {
		clone.Status = models.SessionActive
	}
	clone.Version = 1
	// Reflect generated fields back to caller.
	session.ID = clone.ID
	session.CreatedAt = clone.CreatedAt
	session.LastActivity = clone.LastActivity
	session.Status = clone.Status
	session.Version = clone.Version
	m.sessions[clone.ID] = clone
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(session), nil
}

func (m *MemoryStore) Update(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("session is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.sessions[session.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Version != session.Version {
		return ErrVersionConflict
	}
	clone := cloneSession(session)
	clone.CreatedAt = existing.CreatedAt
	clone.Version = existing.Version + 1
	m.sessions[clone.ID] = clone
	session.Version = clone.Version
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

func (m *MemoryStore) ListByPrincipal(ctx context.Context, principalID string, opts ListOptions) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Session
	for _, s := range m.sessions {
		if s.PrincipalID != principalID {
			continue
		}
		if opts.Status != "" && s.Status != opts.Status {
			continue
		}
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *MemoryStore) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Session
	for _, s := range m.sessions {
		if s.Status != models.SessionActive {
			continue
		}
		if s.LastActivity.Before(cutoff) {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.Before(out[j].LastActivity)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return ErrNotFound
	}

	clone := cloneMessage(msg)
	clone.SessionID = sessionID
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	msg.ID = clone.ID
	msg.SessionID = clone.SessionID
	msg.CreatedAt = clone.CreatedAt

	msgs := append(m.messages[sessionID], clone)
	if len(msgs) > maxMessagesPerSession {
		msgs = msgs[len(msgs)-maxMessagesPerSession:]
	}
	m.messages[sessionID] = msgs
	return nil
}

func (m *MemoryStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*models.Message, len(msgs))
	for i, msg := range msgs {
		out[i] = cloneMessage(msg)
	}
	return out, nil
}

func (m *MemoryStore) FirstUserMessage(ctx context.Context, sessionID string) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, msg := range m.messages[sessionID] {
		if msg.Role == models.RoleUser {
			return cloneMessage(msg), nil
		}
	}
	return nil, nil
}

func cloneSession(s *models.Session) *models.Session {
	clone := *s
	return &clone
}

func cloneMessage(msg *models.Message) *models.Message {
	clone := *msg
	return &clone
}
