package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/sage/internal/observability"
	"github.com/haasonsaas/sage/pkg/models"
)

// Lifecycle errors returned by the Manager.
var (
	// ErrUnauthorized indicates the principal does not own the session.
	ErrUnauthorized = errors.New("session belongs to another principal")
	// ErrSessionTerminated indicates the session is closed or expired.
	ErrSessionTerminated = errors.New("session is no longer active")
)

// ManagerConfig configures session lifecycle behavior.
type ManagerConfig struct {
	// ExpiryThreshold is how long a session may idle before it expires.
	ExpiryThreshold time.Duration
	// SweepBatchSize bounds how many stale sessions one sweep expires.
	SweepBatchSize int
}

// DefaultManagerConfig returns the default lifecycle configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ExpiryThreshold: 24 * time.Hour,
		SweepBatchSize:  500,
	}
}

// Manager owns session lifecycle: creation, ownership checks, activity
// tracking, and expiry.
type Manager struct {
	store   Store
	config  ManagerConfig
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewManager creates a session manager.
func NewManager(store Store, config ManagerConfig, logger *observability.Logger, metrics *observability.Metrics) *Manager {
	if config.ExpiryThreshold <= 0 {
		config.ExpiryThreshold = 24 * time.Hour
	}
	if config.SweepBatchSize <= 0 {
		config.SweepBatchSize = 500
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Manager{
		store:   store,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Create starts a new active session for the principal.
func (m *Manager) Create(ctx context.Context, principalID, companyContext string) (*models.Session, error) {
	if principalID == "" {
		return nil, errors.New("principal ID is required")
	}
	session := &models.Session{
		PrincipalID:    principalID,
		CompanyContext: companyContext,
		Status:         models.SessionActive,
	}
	if err := m.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if m.metrics != nil {
		m.metrics.ActiveSessions.Inc()
	}
	m.logger.Info(ctx, "session created",
		"session_id", session.ID,
		"principal_id", principalID,
	)
	return session, nil
}

// ValidateOwnership loads the session and checks that the principal
// owns it and that it is still usable. A stale session is marked
// expired on access and reported as terminated.
func (m *Manager) ValidateOwnership(ctx context.Context, sessionID, principalID string) (*models.Session, error) {
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// Ownership before liveness: never leak another principal's
	// session state through a different error.
	if session.PrincipalID != principalID {
		return nil, ErrUnauthorized
	}
	if session.Status.Terminal() {
		return nil, ErrSessionTerminated
	}
	if m.isStale(session) {
		if err := m.expire(ctx, session); err != nil {
			return nil, err
		}
		return nil, ErrSessionTerminated
	}
	return session, nil
}

// Touch updates the session's activity timestamp and usage counters
// after a completed turn.
func (m *Manager) Touch(ctx context.Context, session *models.Session, messagesAdded, tokensUsed int) error {
	session.LastActivity = m.now().UTC()
	session.MessageCount += messagesAdded
	session.TotalTokens += tokensUsed
	if err := m.store.Update(ctx, session); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Close marks the session closed. Closing a terminated session is a
// no-op.
func (m *Manager) Close(ctx context.Context, sessionID, principalID string) error {
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.PrincipalID != principalID {
		return ErrUnauthorized
	}
	if session.Status.Terminal() {
		return nil
	}

	session.Status = models.SessionClosed
	session.LastActivity = m.now().UTC()
	if err := m.store.Update(ctx, session); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	if m.metrics != nil {
		m.metrics.ActiveSessions.Dec()
	}
	m.logger.Info(ctx, "session closed", "session_id", sessionID)
	return nil
}

// Delete removes the session and its messages after an ownership
// check. Audit entries are retained elsewhere.
func (m *Manager) Delete(ctx context.Context, sessionID, principalID string) error {
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.PrincipalID != principalID {
		return ErrUnauthorized
	}

	wasActive := session.Status == models.SessionActive
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if wasActive && m.metrics != nil {
		m.metrics.ActiveSessions.Dec()
	}
	m.logger.Info(ctx, "session deleted", "session_id", sessionID)
	return nil
}

// ExpireStale marks all active sessions idle past the threshold as
// expired and returns how many were expired.
func (m *Manager) ExpireStale(ctx context.Context) (int, error) {
	cutoff := m.now().UTC().Add(-m.config.ExpiryThreshold)
	stale, err := m.store.ListStale(ctx, cutoff, m.config.SweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale sessions: %w", err)
	}

	expired := 0
	for _, session := range stale {
		if err := m.expire(ctx, session); err != nil {
			// A version conflict means someone else touched the
			// session; skip it and let the next sweep decide.
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		m.logger.Info(ctx, "expired stale sessions", "count", expired)
	}
	return expired, nil
}

func (m *Manager) isStale(session *models.Session) bool {
	return m.now().UTC().Sub(session.LastActivity) > m.config.ExpiryThreshold
}

func (m *Manager) expire(ctx context.Context, session *models.Session) error {
	session.Status = models.SessionExpired
	if err := m.store.Update(ctx, session); err != nil {
		return fmt.Errorf("failed to expire session: %w", err)
	}
	if m.metrics != nil {
		m.metrics.ActiveSessions.Dec()
	}
	m.logger.Info(ctx, "session expired",
		"session_id", session.ID,
		"last_activity", session.LastActivity,
	)
	return nil
}
