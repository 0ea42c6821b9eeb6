package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/glossbook/auth-backend/internal/domain"
	"github.com/glossbook/auth-backend/internal/storage/memory"
)

func TestIdentityService_ResolveOrCreate(t *testing.T) {
	store := memory.NewStore()
	svc := NewIdentityService(store, zap.NewNop())
	ctx := context.Background()

	user, err := svc.ResolveOrCreate(ctx, "+15551234567", Profile{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Role:      domain.RoleStylist,
	})
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}

	if user.Phone != "+15551234567" {
		t.Errorf("Phone = %q, want +15551234567", user.Phone)
	}
	if user.Role != domain.RoleStylist {
		t.Errorf("Role = %v, want STYLIST", user.Role)
	}
	if user.Username != "user_4567" {
		t.Errorf("Username = %q, want user_4567", user.Username)
	}
	if !user.PhoneVerified {
		t.Error("PhoneVerified = false, want true after provisioning")
	}
	if user.LastName == nil || *user.LastName != "Lovelace" {
		t.Errorf("LastName = %v, want Lovelace", user.LastName)
	}
}

func TestIdentityService_ResolveOrCreate_Idempotent(t *testing.T) {
	store := memory.NewStore()
	svc := NewIdentityService(store, zap.NewNop())
	ctx := context.Background()

	first, err := svc.ResolveOrCreate(ctx, "+15551234567", Profile{FirstName: "Ada"})
	if err != nil {
		t.Fatalf("first ResolveOrCreate() error = %v", err)
	}

	// A second call with different profile data must return the existing
	// account untouched, not create or overwrite.
	second, err := svc.ResolveOrCreate(ctx, "+15551234567", Profile{FirstName: "Other"})
	if err != nil {
		t.Fatalf("second ResolveOrCreate() error = %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("two calls produced two accounts: %v and %v", first.ID, second.ID)
	}
	if second.FirstName != "Ada" {
		t.Errorf("FirstName = %q, want original Ada", second.FirstName)
	}
}

func TestIdentityService_ResolveOrCreate_DefaultRole(t *testing.T) {
	store := memory.NewStore()
	svc := NewIdentityService(store, zap.NewNop())

	user, err := svc.ResolveOrCreate(context.Background(), "+15551234567", Profile{})
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}
	if user.Role != domain.RoleClient {
		t.Errorf("Role = %v, want default CLIENT", user.Role)
	}
}

func TestUsernameFromPhone(t *testing.T) {
	tests := []struct {
		phone string
		want  string
	}{
		{"+15551234567", "user_4567"},
		{"+3361234", "user_1234"},
		{"+123", "user_123"},
	}

	for _, tt := range tests {
		if got := usernameFromPhone(tt.phone); got != tt.want {
			t.Errorf("usernameFromPhone(%q) = %q, want %q", tt.phone, got, tt.want)
		}
	}
}
