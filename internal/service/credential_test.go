package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/glossbook/auth-backend/internal/domain"
	"github.com/glossbook/auth-backend/internal/storage/memory"
)

func seedUserWithCredentials(t *testing.T, store *memory.Store, passwordHash string, credIDs ...string) *domain.User {
	t.Helper()
	ctx := context.Background()

	user := testUser()
	if passwordHash != "" {
		user.PasswordHash = &passwordHash
	}
	if err := store.Users().Create(ctx, user); err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	for _, id := range credIDs {
		cred := &domain.Credential{
			CredentialID: id,
			OwnerID:      user.ID,
			PublicKey:    []byte{0x01},
			DeviceLabel:  "Passkey",
		}
		if err := store.Credentials().Create(ctx, cred); err != nil {
			t.Fatalf("seeding credential %s: %v", id, err)
		}
	}
	return user
}

func TestCredentialService_List(t *testing.T) {
	store := memory.NewStore()
	svc := NewCredentialService(store, zap.NewNop())
	user := seedUserWithCredentials(t, store, "", "cred-a", "cred-b")

	creds, err := svc.List(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(creds) != 2 {
		t.Errorf("List() returned %d credentials, want 2", len(creds))
	}
}

func TestCredentialService_Rename(t *testing.T) {
	store := memory.NewStore()
	svc := NewCredentialService(store, zap.NewNop())
	user := seedUserWithCredentials(t, store, "", "cred-a")
	ctx := context.Background()

	if err := svc.Rename(ctx, user.ID, "cred-a", "iPhone 17"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	creds, _ := svc.List(ctx, user.ID)
	if creds[0].DeviceLabel != "iPhone 17" {
		t.Errorf("DeviceLabel = %q, want iPhone 17", creds[0].DeviceLabel)
	}

	if err := svc.Rename(ctx, user.ID, "no-such-cred", "x"); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("Rename() missing error = %v, want ErrCredentialNotFound", err)
	}
}

func TestCredentialService_Delete_LastCredentialBlocked(t *testing.T) {
	store := memory.NewStore()
	svc := NewCredentialService(store, zap.NewNop())
	user := seedUserWithCredentials(t, store, "", "cred-a")
	ctx := context.Background()

	err := svc.Delete(ctx, user.ID, "cred-a")
	if !errors.Is(err, ErrLastCredentialRemovalBlocked) {
		t.Fatalf("Delete() error = %v, want ErrLastCredentialRemovalBlocked", err)
	}

	// Credential must still be there.
	creds, _ := svc.List(ctx, user.ID)
	if len(creds) != 1 {
		t.Errorf("credential removed despite guard, %d remain", len(creds))
	}
}

func TestCredentialService_Delete_LastCredentialWithPassword(t *testing.T) {
	store := memory.NewStore()
	svc := NewCredentialService(store, zap.NewNop())
	// Hash of "password" at cost 10.
	user := seedUserWithCredentials(t, store, "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy", "cred-a")
	ctx := context.Background()

	// A password on file is an alternate login method, so deletion of the
	// only passkey is allowed.
	if err := svc.Delete(ctx, user.ID, "cred-a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	creds, _ := svc.List(ctx, user.ID)
	if len(creds) != 0 {
		t.Errorf("%d credentials remain, want 0", len(creds))
	}
}

func TestCredentialService_Delete_CorruptPasswordHashDoesNotCount(t *testing.T) {
	store := memory.NewStore()
	svc := NewCredentialService(store, zap.NewNop())
	user := seedUserWithCredentials(t, store, "$2a$10$truncated", "cred-a")
	ctx := context.Background()

	err := svc.Delete(ctx, user.ID, "cred-a")
	if !errors.Is(err, ErrLastCredentialRemovalBlocked) {
		t.Fatalf("Delete() error = %v, want ErrLastCredentialRemovalBlocked", err)
	}
}

func TestCredentialService_Delete_NotLast(t *testing.T) {
	store := memory.NewStore()
	svc := NewCredentialService(store, zap.NewNop())
	user := seedUserWithCredentials(t, store, "", "cred-a", "cred-b")
	ctx := context.Background()

	if err := svc.Delete(ctx, user.ID, "cred-a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	creds, _ := svc.List(ctx, user.ID)
	if len(creds) != 1 {
		t.Errorf("%d credentials remain, want 1", len(creds))
	}
}

func TestCredentialService_Delete_NotOwned(t *testing.T) {
	store := memory.NewStore()
	svc := NewCredentialService(store, zap.NewNop())
	owner := seedUserWithCredentials(t, store, "", "cred-a", "cred-b")
	ctx := context.Background()

	stranger := testUser()
	stranger.Phone = "+15559990000"
	if err := store.Users().Create(ctx, stranger); err != nil {
		t.Fatalf("seeding stranger: %v", err)
	}
	for _, id := range []string{"cred-s1", "cred-s2"} {
		if err := store.Credentials().Create(ctx, &domain.Credential{CredentialID: id, OwnerID: stranger.ID, PublicKey: []byte{0x02}}); err != nil {
			t.Fatalf("seeding stranger credential: %v", err)
		}
	}

	// Deleting someone else's credential reads as not found.
	if err := svc.Delete(ctx, stranger.ID, "cred-a"); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("Delete() cross-owner error = %v, want ErrCredentialNotFound", err)
	}

	creds, _ := svc.List(ctx, owner.ID)
	if len(creds) != 2 {
		t.Errorf("owner lost a credential to a cross-owner delete, %d remain", len(creds))
	}
}
