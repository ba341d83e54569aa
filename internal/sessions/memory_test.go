package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/sage/pkg/models"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := &models.Session{PrincipalID: "user@example.com"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if session.ID == "" {
		t.Fatal("Create should assign an ID")
	}
	if session.Status != models.SessionActive {
		t.Errorf("Status = %q, want active", session.Status)
	}
	if session.Version != 1 {
		t.Errorf("Version = %d, want 1", session.Version)
	}

	got, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.PrincipalID != "user@example.com" {
		t.Errorf("PrincipalID = %q", got.PrincipalID)
	}
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_UpdateVersionConflict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := &models.Session{PrincipalID: "user@example.com"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}

	stale := *session
	session.MessageCount = 2
	if err := store.Update(ctx, session); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if session.Version != 2 {
		t.Errorf("Version = %d, want 2", session.Version)
	}

	stale.MessageCount = 99
	if err := store.Update(ctx, &stale); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("err = %v, want ErrVersionConflict", err)
	}
}

func TestMemoryStore_ListByPrincipal(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s := &models.Session{PrincipalID: "alice@example.com"}
		if err := store.Create(ctx, s); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	other := &models.Session{PrincipalID: "bob@example.com"}
	if err := store.Create(ctx, other); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.ListByPrincipal(ctx, "alice@example.com", ListOptions{})
	if err != nil {
		t.Fatalf("ListByPrincipal: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d sessions, want 3", len(got))
	}

	got, err = store.ListByPrincipal(ctx, "alice@example.com", ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListByPrincipal: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d sessions with limit, want 2", len(got))
	}
}

func TestMemoryStore_ListStale(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	old := &models.Session{
		PrincipalID:  "user@example.com",
		LastActivity: time.Now().Add(-48 * time.Hour),
	}
	if err := store.Create(ctx, old); err != nil {
		t.Fatalf("Create: %v", err)
	}
	fresh := &models.Session{PrincipalID: "user@example.com"}
	if err := store.Create(ctx, fresh); err != nil {
		t.Fatalf("Create: %v", err)
	}

	stale, err := store.ListStale(ctx, time.Now().Add(-24*time.Hour), 0)
	if err != nil {
		t.Fatalf("ListStale: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Errorf("unexpected stale sessions: %v", stale)
	}
}

func TestMemoryStore_MessageHistory(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := &models.Session{PrincipalID: "user@example.com"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}

	base := time.Now()
	contents := []string{"first", "second", "third"}
	for i, c := range contents {
		msg := &models.Message{
			Role:      models.RoleUser,
			Content:   c,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.AppendMessage(ctx, session.ID, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	// Newest 2, chronological order.
	history, err := store.GetHistory(ctx, session.ID, 2)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d messages, want 2", len(history))
	}
	if history[0].Content != "second" || history[1].Content != "third" {
		t.Errorf("unexpected window: %q, %q", history[0].Content, history[1].Content)
	}

	first, err := store.FirstUserMessage(ctx, session.ID)
	if err != nil {
		t.Fatalf("FirstUserMessage: %v", err)
	}
	if first == nil || first.Content != "first" {
		t.Errorf("FirstUserMessage = %v, want first", first)
	}
}

func TestMemoryStore_AppendMessageUnknownSession(t *testing.T) {
	store := NewMemoryStore()
	err := store.AppendMessage(context.Background(), "missing", &models.Message{Role: models.RoleUser, Content: "hi"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := &models.Session{PrincipalID: "user@example.com"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.AppendMessage(ctx, session.ID, &models.Message{Role: models.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	if err := store.Delete(ctx, session.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, session.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: %v, want ErrNotFound", err)
	}
	history, err := store.GetHistory(ctx, session.ID, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("messages should be removed with the session, got %d", len(history))
	}
}
