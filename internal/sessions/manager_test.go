package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/sage/internal/observability"
	"github.com/haasonsaas/sage/pkg/models"
)

func newTestManager(t *testing.T) (*Manager, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	mgr := NewManager(store, DefaultManagerConfig(), observability.NopLogger(), nil)
	return mgr, store
}

func TestManager_CreateAndValidate(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	session, err := mgr.Create(ctx, "alice@example.com", "Acme Corp")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := mgr.ValidateOwnership(ctx, session.ID, "alice@example.com")
	if err != nil {
		t.Fatalf("ValidateOwnership: %v", err)
	}
	if got.ID != session.ID {
		t.Errorf("got session %q, want %q", got.ID, session.ID)
	}
}

func TestManager_CreateRequiresPrincipal(t *testing.T) {
	mgr, _ := newTestManager(t)
	if _, err := mgr.Create(context.Background(), "", ""); err == nil {
		t.Error("Create with empty principal should fail")
	}
}

func TestManager_ValidateRejectsOtherPrincipal(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	session, err := mgr.Create(ctx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = mgr.ValidateOwnership(ctx, session.ID, "mallory@example.com")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestManager_ValidateRejectsClosed(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	session, err := mgr.Create(ctx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mgr.Close(ctx, session.ID, "alice@example.com"); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err = mgr.ValidateOwnership(ctx, session.ID, "alice@example.com")
	if !errors.Is(err, ErrSessionTerminated) {
		t.Errorf("err = %v, want ErrSessionTerminated", err)
	}
}

func TestManager_ValidateExpiresStaleSessionOnAccess(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	session, err := mgr.Create(ctx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Jump the clock past the expiry threshold.
	mgr.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	_, err = mgr.ValidateOwnership(ctx, session.ID, "alice@example.com")
	if !errors.Is(err, ErrSessionTerminated) {
		t.Fatalf("err = %v, want ErrSessionTerminated", err)
	}

	got, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.SessionExpired {
		t.Errorf("Status = %q, want expired", got.Status)
	}
}

func TestManager_OwnershipCheckedBeforeLiveness(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	session, err := mgr.Create(ctx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mgr.Close(ctx, session.ID, "alice@example.com"); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A non-owner probing a closed session still sees unauthorized.
	_, err = mgr.ValidateOwnership(ctx, session.ID, "mallory@example.com")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestManager_Touch(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	session, err := mgr.Create(ctx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := mgr.Touch(ctx, session, 2, 150); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	got, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", got.MessageCount)
	}
	if got.TotalTokens != 150 {
		t.Errorf("TotalTokens = %d, want 150", got.TotalTokens)
	}
}

func TestManager_CloseIdempotent(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	session, err := mgr.Create(ctx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mgr.Close(ctx, session.ID, "alice@example.com"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := mgr.Close(ctx, session.ID, "alice@example.com"); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestManager_CloseRejectsOtherPrincipal(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	session, err := mgr.Create(ctx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mgr.Close(ctx, session.ID, "mallory@example.com"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestManager_Delete(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	session, err := mgr.Create(ctx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mgr.Delete(ctx, session.ID, "mallory@example.com"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if err := mgr.Delete(ctx, session.ID, "alice@example.com"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, session.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("session should be gone, got %v", err)
	}
}

func TestManager_ExpireStale(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	stale := &models.Session{
		PrincipalID:  "alice@example.com",
		LastActivity: time.Now().UTC().Add(-30 * time.Hour),
	}
	if err := store.Create(ctx, stale); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := mgr.Create(ctx, "alice@example.com", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	expired, err := mgr.ExpireStale(ctx)
	if err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if expired != 1 {
		t.Errorf("expired = %d, want 1", expired)
	}

	got, err := store.Get(ctx, stale.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.SessionExpired {
		t.Errorf("Status = %q, want expired", got.Status)
	}
}
