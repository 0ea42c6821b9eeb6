package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/glossbook/auth-backend/internal/domain"
	"github.com/glossbook/auth-backend/pkg/config"
)

func newTestRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisSessionStore) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	store, err := NewRedisSessionStore(&config.RedisConfig{Address: mr.Addr()}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRedisSessionStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return mr, store
}

func newStoredSession(userID string) *domain.Session {
	now := time.Now()
	return &domain.Session{
		ID: domain.NewSessionID(),
		Identity: domain.IdentitySnapshot{
			UserID: userID,
			Role:   domain.RoleClient,
		},
		CreatedAt:    now,
		LastActivity: now,
		IP:           "203.0.113.7",
	}
}

func TestRedisSessionStore_SaveAndGet(t *testing.T) {
	_, store := newTestRedisStore(t)
	ctx := context.Background()

	session := newStoredSession("user-1")
	if err := store.Save(ctx, session, time.Hour); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Identity.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", got.Identity.UserID)
	}
	if got.IP != "203.0.113.7" {
		t.Errorf("IP = %q, want 203.0.113.7", got.IP)
	}
}

func TestRedisSessionStore_Get_Missing(t *testing.T) {
	_, store := newTestRedisStore(t)

	_, err := store.Get(context.Background(), "no-such-session")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() error = %v, want ErrSessionNotFound", err)
	}
}

func TestRedisSessionStore_TTLExpiry(t *testing.T) {
	mr, store := newTestRedisStore(t)
	ctx := context.Background()

	session := newStoredSession("user-1")
	if err := store.Save(ctx, session, time.Minute); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() after TTL error = %v, want ErrSessionNotFound", err)
	}
}

func TestRedisSessionStore_SaveRefreshesTTL(t *testing.T) {
	mr, store := newTestRedisStore(t)
	ctx := context.Background()

	session := newStoredSession("user-1")
	if err := store.Save(ctx, session, time.Minute); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Activity 45s in: re-save pushes expiry a full window out.
	mr.FastForward(45 * time.Second)
	if err := store.Save(ctx, session, time.Minute); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	mr.FastForward(45 * time.Second)
	if _, err := store.Get(ctx, session.ID); err != nil {
		t.Errorf("session expired despite sliding refresh: %v", err)
	}
}

func TestRedisSessionStore_Delete_Idempotent(t *testing.T) {
	_, store := newTestRedisStore(t)
	ctx := context.Background()

	session := newStoredSession("user-1")
	if err := store.Save(ctx, session, time.Hour); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.Delete(ctx, session.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, session.ID); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
}

func TestRedisSessionStore_ListByUser(t *testing.T) {
	mr, store := newTestRedisStore(t)
	ctx := context.Background()

	first := newStoredSession("user-1")
	second := newStoredSession("user-1")
	other := newStoredSession("user-2")

	for _, s := range []*domain.Session{first, second, other} {
		if err := store.Save(ctx, s, time.Hour); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	sessions, err := store.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("ListByUser() returned %d sessions, want 2", len(sessions))
	}

	// Expired member in the user set gets pruned, not returned.
	mr.FastForward(2 * time.Hour)
	sessions, err = store.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListByUser() after expiry error = %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("ListByUser() returned %d expired sessions, want 0", len(sessions))
	}
}

func TestMemorySessionStore_TTLExpiry(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	session := newStoredSession("user-1")
	if err := store.Save(ctx, session, -time.Second); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := store.Get(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() of expired session error = %v, want ErrSessionNotFound", err)
	}
}
