package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/sage/pkg/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface backed by SQLite.
type SQLiteStore struct {
	db *sql.DB

	// Prepared statements for the hot path
	stmtCreateSession    *sql.Stmt
	stmtGetSession       *sql.Stmt
	stmtUpdateSession    *sql.Stmt
	stmtDeleteSession    *sql.Stmt
	stmtAppendMessage    *sql.Stmt
	stmtGetHistory       *sql.Stmt
	stmtFirstUserMessage *sql.Stmt
}

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	principal_id TEXT NOT NULL,
	status TEXT NOT NULL,
	company_context TEXT NOT NULL DEFAULT '',
	message_count INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	version INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL,
	last_activity TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_principal ON sessions(principal_id, last_activity);
CREATE INDEX IF NOT EXISTS idx_sessions_stale ON sessions(status, last_activity);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	token_count INTEGER NOT NULL DEFAULT 0,
	model_used TEXT NOT NULL DEFAULT '',
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
`

// NewSQLiteStore opens (or creates) a SQLite database at path and
// migrates the schema. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(sessionsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return store, nil
}

// DB exposes the underlying database connection for related stores.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.stmtCreateSession, err = s.db.Prepare(`
		INSERT INTO sessions (id, principal_id, status, company_context, message_count, total_tokens, version, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare create session: %w", err)
	}

	s.stmtGetSession, err = s.db.Prepare(`
		SELECT id, principal_id, status, company_context, message_count, total_tokens, version, created_at, last_activity
		FROM sessions WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get session: %w", err)
	}

	s.stmtUpdateSession, err = s.db.Prepare(`
		UPDATE sessions
		SET status = ?, company_context = ?, message_count = ?, total_tokens = ?, last_activity = ?, version = version + 1
		WHERE id = ? AND version = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare update session: %w", err)
	}

	s.stmtDeleteSession, err = s.db.Prepare(`
		DELETE FROM sessions WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete session: %w", err)
	}

	s.stmtAppendMessage, err = s.db.Prepare(`
		INSERT INTO messages (id, session_id, role, content, token_count, model_used, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare append message: %w", err)
	}

	s.stmtGetHistory, err = s.db.Prepare(`
		SELECT id, session_id, role, content, token_count, model_used, latency_ms, created_at
		FROM messages WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get history: %w", err)
	}

	s.stmtFirstUserMessage, err = s.db.Prepare(`
		SELECT id, session_id, role, content, token_count, model_used, latency_ms, created_at
		FROM messages WHERE session_id = ? AND role = ?
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare first user message: %w", err)
	}

	return nil
}

// Close closes the prepared statements and the database connection.
func (s *SQLiteStore) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{
		s.stmtCreateSession, s.stmtGetSession, s.stmtUpdateSession,
		s.stmtDeleteSession, s.stmtAppendMessage, s.stmtGetHistory,
		s.stmtFirstUserMessage,
	} {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing store: %v", errs)
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("session is required")
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	if session.LastActivity.IsZero() {
		session.LastActivity = session.CreatedAt
	}
	if session.Status == "" {
		session.Status = models.SessionActive
	}
	session.Version = 1

	_, err := s.stmtCreateSession.ExecContext(ctx,
		session.ID,
		session.PrincipalID,
		string(session.Status),
		session.CompanyContext,
		session.MessageCount,
		session.TotalTokens,
		session.Version,
		session.CreatedAt,
		session.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Session, error) {
	row := s.stmtGetSession.QueryRowContext(ctx, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (s *SQLiteStore) Update(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("session is required")
	}

	res, err := s.stmtUpdateSession.ExecContext(ctx,
		string(session.Status),
		session.CompanyContext,
		session.MessageCount,
		session.TotalTokens,
		session.LastActivity,
		session.ID,
		session.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing row from a version race.
		if _, getErr := s.Get(ctx, session.ID); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	session.Version++
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.stmtDeleteSession.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListByPrincipal(ctx context.Context, principalID string, opts ListOptions) ([]*models.Session, error) {
	query := `
		SELECT id, principal_id, status, company_context, message_count, total_tokens, version, created_at, last_activity
		FROM sessions WHERE principal_id = ?`
	args := []any{principalID}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	query += " ORDER BY last_activity DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		// SQLite requires a LIMIT clause before OFFSET; -1 means unlimited.
		query += " LIMIT -1"
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *SQLiteStore) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.Session, error) {
	query := `
		SELECT id, principal_id, status, company_context, message_count, total_tokens, version, created_at, last_activity
		FROM sessions WHERE status = ? AND last_activity < ?
		ORDER BY last_activity ASC`
	args := []any{string(models.SessionActive), cutoff}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	if _, err := s.Get(ctx, sessionID); err != nil {
		return err
	}
	msg.SessionID = sessionID
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.stmtAppendMessage.ExecContext(ctx,
		msg.ID,
		msg.SessionID,
		string(msg.Role),
		msg.Content,
		msg.TokenCount,
		msg.ModelUsed,
		msg.LatencyMS,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unlimited
	}
	rows, err := s.stmtGetHistory.QueryContext(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}

	// Query returns newest first; callers expect chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *SQLiteStore) FirstUserMessage(ctx context.Context, sessionID string) (*models.Message, error) {
	row := s.stmtFirstUserMessage.QueryRowContext(ctx, sessionID, string(models.RoleUser))
	msg := &models.Message{}
	var role string
	err := row.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &msg.TokenCount, &msg.ModelUsed, &msg.LatencyMS, &msg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get first user message: %w", err)
	}
	msg.Role = models.Role(role)
	return msg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	session := &models.Session{}
	var status string
	err := row.Scan(
		&session.ID,
		&session.PrincipalID,
		&status,
		&session.CompanyContext,
		&session.MessageCount,
		&session.TotalTokens,
		&session.Version,
		&session.CreatedAt,
		&session.LastActivity,
	)
	if err != nil {
		return nil, err
	}
	session.Status = models.SessionStatus(status)
	return session, nil
}

func scanSessions(rows *sql.Rows) ([]*models.Session, error) {
	var out []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}

func scanMessage(rows *sql.Rows) (*models.Message, error) {
	msg := &models.Message{}
	var role string
	err := rows.Scan(
		&msg.ID,
		&msg.SessionID,
		&role,
		&msg.Content,
		&msg.TokenCount,
		&msg.ModelUsed,
		&msg.LatencyMS,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	msg.Role = models.Role(role)
	return msg, nil
}
