// Package service exposes the chat surface: session management and the
// message round-trip through the agent runtime.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/haasonsaas/sage/internal/agent"
	"github.com/haasonsaas/sage/internal/audit"
	"github.com/haasonsaas/sage/internal/observability"
	"github.com/haasonsaas/sage/internal/ratelimit"
	"github.com/haasonsaas/sage/internal/response"
	"github.com/haasonsaas/sage/internal/sessions"
	"github.com/haasonsaas/sage/pkg/models"
)

// ErrEmptyMessage indicates the message was empty after sanitization.
var ErrEmptyMessage = errors.New("message is empty")

// RateLimitedError reports a denied request with the wait duration.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

// MessageTooLongError reports input over the configured cap.
type MessageTooLongError struct {
	Length, Max int
}

func (e *MessageTooLongError) Error() string {
	return fmt.Sprintf("message length %d exceeds maximum %d", e.Length, e.Max)
}

// ChatConfig configures the chat service.
type ChatConfig struct {
	// MaxMessageLength caps user input before the turn starts.
	// Default: 10000
	MaxMessageLength int

	// PreviewLength is how much of the opening message session
	// listings carry. Default: 100
	PreviewLength int

	// HistoryLimit is the default page size for GetHistory. Default: 50
	HistoryLimit int
}

// DefaultChatConfig returns the default chat configuration.
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		MaxMessageLength: 10_000,
		PreviewLength:    100,
		HistoryLimit:     50,
	}
}

// ChatService orchestrates one conversational surface: rate limiting,
// session ownership, the agent turn, persistence, auditing, and
// response shaping.
type ChatService struct {
	sessions *sessions.Manager
	store    sessions.Store
	limiter  *ratelimit.Limiter
	runtime  *agent.Runtime
	recorder *audit.Recorder
	shaper   *response.Shaper
	builder  *agent.ContextBuilder
	config   ChatConfig
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewChatService assembles the chat service.
func NewChatService(
	manager *sessions.Manager,
	store sessions.Store,
	limiter *ratelimit.Limiter,
	runtime *agent.Runtime,
	recorder *audit.Recorder,
	shaper *response.Shaper,
	builder *agent.ContextBuilder,
	config ChatConfig,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *ChatService {
	if config.MaxMessageLength <= 0 {
		config.MaxMessageLength = 10_000
	}
	if config.PreviewLength <= 0 {
		config.PreviewLength = 100
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 50
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if shaper == nil {
		shaper = response.NewShaper(logger)
	}
	if builder == nil {
		builder = agent.NewContextBuilder(0)
	}
	return &ChatService{
		sessions: manager,
		store:    store,
		limiter:  limiter,
		runtime:  runtime,
		recorder: recorder,
		shaper:   shaper,
		builder:  builder,
		config:   config,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// CreateSession opens a new session for the principal.
func (s *ChatService) CreateSession(ctx context.Context, principalID, companyContext string) (*models.Session, error) {
	return s.sessions.Create(ctx, principalID, companyContext)
}

// SendMessage runs one full turn: admission, sanitization, the agent
// loop, persistence, and shaping. Exactly one audit entry is written
// per accepted message, whatever the outcome.
func (s *ChatService) SendMessage(ctx context.Context, sessionID, principalID, text string) (*models.TurnReply, error) {
	if s.limiter != nil {
		if allowed, retryAfter := s.limiter.Admit(principalID); !allowed {
			if s.metrics != nil {
				s.metrics.RateLimitDenials.Inc()
			}
			s.logger.Warn(ctx, "rate limit denial", "principal_id", principalID)
			return nil, &RateLimitedError{RetryAfter: retryAfter}
		}
	}

	session, err := s.sessions.ValidateOwnership(ctx, sessionID, principalID)
	if err != nil {
		return nil, err
	}

	query, err := s.sanitize(text)
	if err != nil {
		return nil, err
	}

	history, err := s.store.GetHistory(ctx, sessionID, s.builder.Window())
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	start := s.now()
	entry := &models.AuditEntry{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		PrincipalID: principalID,
		QueryText:   query,
		CreatedAt:   start,
	}

	result, err := s.runtime.RunTurn(ctx, &agent.TurnRequest{
		SessionID:    sessionID,
		PrincipalID:  principalID,
		AuditEntryID: entry.ID,
		System: agent.BuildSystemPrompt(agent.SystemPromptInput{
			PrincipalID:    principalID,
			CompanyContext: session.CompanyContext,
			Now:            start,
		}),
		History: history,
		Query:   query,
	})

	duration := s.now().Sub(start)
	entry.DurationMS = duration.Milliseconds()
	s.observeTurn(entry, result, err, duration)
	// The audit entry is written even when the caller has gone away.
	s.recorder.RecordQuery(context.WithoutCancel(ctx), entry)

	if err != nil {
		if errors.Is(err, agent.ErrTurnCancelled) {
			return nil, err
		}
		s.logger.Error(ctx, "turn failed",
			"session_id", sessionID,
			"principal_id", principalID,
			"error", err,
		)
		return nil, fmt.Errorf("%s: %w", UserFacingMessage(err), err)
	}

	text, chart := s.shaper.Shape(ctx, result.Text)

	if err := s.persistTurn(ctx, session, query, text, result, duration); err != nil {
		// The user already got their answer computed; log and return it.
		s.logger.Error(ctx, "persist turn", "session_id", sessionID, "error", err)
	}

	return &models.TurnReply{
		Text:          text,
		Chart:         chart,
		ToolCallCount: result.ToolCallCount,
		TotalTokens:   result.TotalTokens,
		Duration:      duration,
	}, nil
}

// GetHistory returns limit messages in chronological order, skipping
// the newest offset messages.
func (s *ChatService) GetHistory(ctx context.Context, sessionID, principalID string, limit, offset int) ([]*models.Message, error) {
	if _, err := s.sessions.ValidateOwnership(ctx, sessionID, principalID); err != nil {
		// Terminated sessions keep their history readable.
		if !errors.Is(err, sessions.ErrSessionTerminated) {
			return nil, err
		}
	}
	if limit <= 0 {
		limit = s.config.HistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	msgs, err := s.store.GetHistory(ctx, sessionID, limit+offset)
	if err != nil {
		return nil, err
	}
	if offset >= len(msgs) {
		return nil, nil
	}
	return msgs[:len(msgs)-offset], nil
}

// ListSessions lists the principal's sessions, newest activity first,
// each with a preview of its opening message.
func (s *ChatService) ListSessions(ctx context.Context, principalID string, opts sessions.ListOptions) ([]*models.SessionSummary, error) {
	list, err := s.store.ListByPrincipal(ctx, principalID, opts)
	if err != nil {
		return nil, err
	}

	summaries := make([]*models.SessionSummary, 0, len(list))
	for _, sess := range list {
		summary := &models.SessionSummary{
			ID:             sess.ID,
			Status:         sess.Status,
			CompanyContext: sess.CompanyContext,
			MessageCount:   sess.MessageCount,
			CreatedAt:      sess.CreatedAt,
			LastActivity:   sess.LastActivity,
		}
		first, err := s.store.FirstUserMessage(ctx, sess.ID)
		if err == nil && first != nil {
			summary.FirstMessagePreview = models.TruncateSummary(first.Content, s.config.PreviewLength)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// CloseSession closes the session. Closing an already terminated
// session is a no-op.
func (s *ChatService) CloseSession(ctx context.Context, sessionID, principalID string) error {
	return s.sessions.Close(ctx, sessionID, principalID)
}

// DeleteSession removes the session and its messages. Audit entries
// are retained.
func (s *ChatService) DeleteSession(ctx context.Context, sessionID, principalID string) error {
	return s.sessions.Delete(ctx, sessionID, principalID)
}

// RateLimitStatus reports the principal's remaining request budget.
func (s *ChatService) RateLimitStatus(principalID string) ratelimit.Status {
	if s.limiter == nil {
		return ratelimit.Status{Key: principalID}
	}
	return s.limiter.StatusFor(principalID)
}

// AuditTrail returns the newest limit audit entries for a session.
func (s *ChatService) AuditTrail(ctx context.Context, sessionID string, limit int) ([]*models.AuditEntry, error) {
	return s.recorder.Entries(ctx, sessionID, limit)
}

// ExpireSessions transitions stale sessions to expired and returns how
// many were transitioned.
func (s *ChatService) ExpireSessions(ctx context.Context) (int, error) {
	return s.sessions.ExpireStale(ctx)
}

// sanitize trims and bounds user input, stripping control characters
// other than newline and tab.
func (s *ChatService) sanitize(text string) (string, error) {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	cleaned := strings.TrimSpace(b.String())

	if cleaned == "" {
		return "", ErrEmptyMessage
	}
	if len(cleaned) > s.config.MaxMessageLength {
		return "", &MessageTooLongError{Length: len(cleaned), Max: s.config.MaxMessageLength}
	}
	return cleaned, nil
}

// observeTurn fills the audit entry's outcome fields and emits turn
// metrics.
func (s *ChatService) observeTurn(entry *models.AuditEntry, result *agent.TurnResult, err error, duration time.Duration) {
	switch {
	case errors.Is(err, agent.ErrTurnCancelled):
		entry.Outcome = models.OutcomeCancelled
	case err != nil:
		entry.Outcome = models.OutcomeError
		entry.ErrorMessage = err.Error()
	default:
		entry.Outcome = models.OutcomeCompleted
		entry.ResponseSummary = result.Text
	}
	if result != nil {
		entry.ToolsCalled = result.ToolCallCount
		entry.TotalTokens = result.TotalTokens
		entry.DataAccessed = result.DataAccessed
		entry.PermissionChecksPassed = result.PermissionChecksPassed
	} else {
		entry.PermissionChecksPassed = true
	}

	if s.metrics != nil {
		s.metrics.QueryCounter.WithLabelValues(string(entry.Outcome)).Inc()
		s.metrics.TurnDuration.Observe(duration.Seconds())
	}
}

// persistTurn appends the user and assistant messages and bumps the
// session counters.
func (s *ChatService) persistTurn(ctx context.Context, session *models.Session, query, reply string, result *agent.TurnResult, duration time.Duration) error {
	now := s.now()
	reply = models.TruncateContent(reply)
	userMsg := &models.Message{
		ID:         uuid.New().String(),
		SessionID:  session.ID,
		Role:       models.RoleUser,
		Content:    query,
		TokenCount: agent.EstimateTokens(query),
		CreatedAt:  now,
	}
	if err := s.store.AppendMessage(ctx, session.ID, userMsg); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}

	assistantMsg := &models.Message{
		ID:         uuid.New().String(),
		SessionID:  session.ID,
		Role:       models.RoleAssistant,
		Content:    reply,
		TokenCount: agent.EstimateTokens(reply),
		ModelUsed:  result.ModelUsed,
		LatencyMS:  duration.Milliseconds(),
		CreatedAt:  now.Add(time.Millisecond),
	}
	if err := s.store.AppendMessage(ctx, session.ID, assistantMsg); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}

	if err := s.sessions.Touch(ctx, session, 2, result.TotalTokens); err != nil {
		if !errors.Is(err, sessions.ErrVersionConflict) {
			return fmt.Errorf("touch session: %w", err)
		}
		// A concurrent turn won the version race; reload and retry
		// once so this turn's counters still land.
		fresh, gerr := s.store.Get(ctx, session.ID)
		if gerr != nil {
			return fmt.Errorf("reload session after conflict: %w", gerr)
		}
		if terr := s.sessions.Touch(ctx, fresh, 2, result.TotalTokens); terr != nil {
			return fmt.Errorf("touch session: %w", terr)
		}
	}
	return nil
}

// UserFacingMessage maps internal failures to stable messages that do
// not leak configuration or stack detail.
func UserFacingMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key"), strings.Contains(msg, "auth"):
		return "The assistant is not configured correctly. Please contact your administrator"
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "overloaded"):
		return "The assistant is handling too many requests right now. Please try again in a moment"
	case strings.Contains(msg, "connection"), strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return "The assistant could not be reached. Please try again"
	case strings.Contains(msg, "permission"):
		return "You do not have access to some of the requested data"
	default:
		return "Something went wrong while processing your message. Please try again"
	}
}
