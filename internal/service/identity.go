package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/glossbook/auth-backend/internal/domain"
	"github.com/glossbook/auth-backend/internal/storage"
)

// Profile carries the optional account details collected during signup.
type Profile struct {
	FirstName string
	LastName  string
	Email     string
	Role      domain.Role
}

// IdentityService provisions accounts for first-time passkey users.
// Registration ceremonies run before the account exists, so the
// provisioner is called once the ceremony has verified and turns a
// normalized phone into a persistent user, idempotently.
type IdentityService struct {
	store  storage.Store
	logger *zap.Logger
}

// NewIdentityService creates a new IdentityService
func NewIdentityService(store storage.Store, logger *zap.Logger) *IdentityService {
	return &IdentityService{
		store:  store,
		logger: logger.Named("identity-service"),
	}
}

// ResolveOrCreate returns the account for a normalized phone, creating
// it if none exists. Re-running with the same phone always converges on
// one account: a concurrent Create losing the unique-index race falls
// back to reading the winner's row.
func (s *IdentityService) ResolveOrCreate(ctx context.Context, phone string, profile Profile) (*domain.User, error) {
	user, err := s.store.Users().GetByPhone(ctx, phone)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	role := profile.Role
	if role == "" {
		role = domain.RoleClient
	}

	user = &domain.User{
		ID:            domain.NewUserID(),
		Phone:         phone,
		Username:      usernameFromPhone(phone),
		FirstName:     profile.FirstName,
		Role:          role,
		PhoneVerified: true,
	}
	if profile.LastName != "" {
		user.LastName = &profile.LastName
	}
	if profile.Email != "" {
		user.Email = &profile.Email
	}

	err = s.store.Users().Create(ctx, user)
	if errors.Is(err, storage.ErrAlreadyExists) {
		// Lost the race to a concurrent registration for the same phone.
		return s.store.Users().GetByPhone(ctx, phone)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("Account provisioned",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)),
	)
	return user, nil
}

// RecordLogin appends an audit entry for a successful authentication.
// Auditing must never fail a login, so errors are logged and swallowed.
func (s *IdentityService) RecordLogin(ctx context.Context, userID domain.UserID, method, ip, userAgent, deviceLabel string) {
	record := &domain.LoginRecord{
		ID:          uuid.New().String(),
		UserID:      userID,
		Method:      method,
		IP:          ip,
		UserAgent:   userAgent,
		DeviceLabel: deviceLabel,
		CreatedAt:   time.Now(),
	}
	if err := s.store.LoginHistory().Append(ctx, record); err != nil {
		s.logger.Warn("Failed to record login",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
}

// LoginHistory returns the most recent successful logins for a user.
func (s *IdentityService) LoginHistory(ctx context.Context, userID domain.UserID, limit int) ([]*domain.LoginRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.LoginHistory().GetByUser(ctx, userID, limit)
}

// usernameFromPhone derives a default handle from the last digits of the
// phone number. Usernames are display-only and changeable later.
func usernameFromPhone(phone string) string {
	digits := phone
	if len(digits) > 0 && digits[0] == '+' {
		digits = digits[1:]
	}
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	return "user_" + digits
}
