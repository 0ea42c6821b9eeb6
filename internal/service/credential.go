package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/glossbook/auth-backend/internal/domain"
	"github.com/glossbook/auth-backend/internal/storage"
)

var (
	ErrCredentialNotFound           = errors.New("credential not found")
	ErrLastCredentialRemovalBlocked = errors.New("cannot remove the only credential without a password on file")
)

// CredentialService manages a user's registered passkeys: listing,
// renaming, and deletion with the lockout guard.
type CredentialService struct {
	store  storage.Store
	logger *zap.Logger
}

// NewCredentialService creates a new CredentialService
func NewCredentialService(store storage.Store, logger *zap.Logger) *CredentialService {
	return &CredentialService{
		store:  store,
		logger: logger.Named("credential-service"),
	}
}

// List returns all credentials of a user, oldest first.
func (s *CredentialService) List(ctx context.Context, userID domain.UserID) ([]*domain.Credential, error) {
	return s.store.Credentials().GetAllByOwner(ctx, userID)
}

// Rename changes a credential's device label. Only the owner can rename.
func (s *CredentialService) Rename(ctx context.Context, userID domain.UserID, credentialID, label string) error {
	err := s.store.Credentials().Rename(ctx, credentialID, userID, label)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrCredentialNotFound
	}
	return err
}

// Delete removes a credential. Deleting the account's only credential is
// refused unless a password fallback exists, so the user cannot lock
// themselves out.
func (s *CredentialService) Delete(ctx context.Context, userID domain.UserID, credentialID string) error {
	count, err := s.store.Credentials().CountByOwner(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to count credentials: %w", err)
	}

	if count <= 1 {
		user, err := s.store.Users().GetByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}
		if !hasUsablePassword(user) {
			s.logger.Warn("Blocked removal of last credential",
				zap.String("user_id", userID.String()),
			)
			return ErrLastCredentialRemovalBlocked
		}
	}

	err = s.store.Credentials().Delete(ctx, credentialID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrCredentialNotFound
	}
	if err != nil {
		return err
	}

	s.logger.Info("Credential deleted",
		zap.String("user_id", userID.String()),
		zap.String("credential_id", credentialID),
	)
	return nil
}

// hasUsablePassword reports whether the account carries a structurally
// valid bcrypt hash. A truncated or corrupt hash cannot be logged in
// with, so it does not count as a login fallback.
func hasUsablePassword(user *domain.User) bool {
	if !user.HasPassword() {
		return false
	}
	_, err := bcrypt.Cost([]byte(*user.PasswordHash))
	return err == nil
}
