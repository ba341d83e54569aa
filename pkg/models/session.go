// Package models defines the shared domain types for Sage: sessions,
// messages, tool calls, chart payloads, and audit records.
package models

import "time"

// SessionStatus is the lifecycle state of a chat session.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionClosed  SessionStatus = "closed"
	SessionExpired SessionStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
// Closed and Expired sessions never become active again.
func (s SessionStatus) Terminal() bool {
	return s == SessionClosed || s == SessionExpired
}

// Session represents a conversation thread owned by a single principal.
//
// The owner never changes after creation, and status transitions are
// monotonic: Active -> Closed (user action) or Active -> Expired
// (inactivity) are the only moves. Version supports optimistic
// concurrency on updates; two turns racing on the same session must not
// both win.
type Session struct {
	ID             string        `json:"id"`
	PrincipalID    string        `json:"principal_id"`
	Status         SessionStatus `json:"status"`
	CompanyContext string        `json:"company_context,omitempty"`
	MessageCount   int           `json:"message_count"`
	TotalTokens    int           `json:"total_tokens"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"created_at"`
	LastActivity   time.Time     `json:"last_activity"`
}

// SessionSummary is the listing projection of a session, including a
// preview of the opening user message for display purposes.
type SessionSummary struct {
	ID                  string        `json:"id"`
	Status              SessionStatus `json:"status"`
	CompanyContext      string        `json:"company_context,omitempty"`
	MessageCount        int           `json:"message_count"`
	CreatedAt           time.Time     `json:"created_at"`
	LastActivity        time.Time     `json:"last_activity"`
	FirstMessagePreview string        `json:"first_message_preview,omitempty"`
}
