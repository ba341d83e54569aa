// Package sessions provides session persistence and lifecycle management.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/sage/pkg/models"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound indicates the session does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrVersionConflict indicates a concurrent update won.
	ErrVersionConflict = errors.New("session version conflict")
)

// Store is the interface for session persistence.
type Store interface {
	// Session CRUD
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	// Update persists the session if its Version matches the stored
	// row, then increments it. Returns ErrVersionConflict otherwise.
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id string) error

	// Session lookup
	ListByPrincipal(ctx context.Context, principalID string, opts ListOptions) ([]*models.Session, error)
	// ListStale returns active sessions whose last activity is before
	// the cutoff.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.Session, error)

	// Message history
	AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error
	// GetHistory returns the newest limit messages in chronological
	// order. A limit of 0 returns all messages.
	GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)
	// FirstUserMessage returns the earliest user message of the
	// session, or nil when the session has none.
	FirstUserMessage(ctx context.Context, sessionID string) (*models.Message, error)
}

// ListOptions configures session listing.
type ListOptions struct {
	Status models.SessionStatus
	Limit  int
	Offset int
}
