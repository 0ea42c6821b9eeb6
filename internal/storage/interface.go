package storage

import (
	"context"
	"errors"
	"time"

	"github.com/glossbook/auth-backend/internal/domain"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrStaleCounter  = errors.New("stale signature counter")
	ErrInvalidInput  = errors.New("invalid input")
	ErrDatabase      = errors.New("database error")
)

// UserStore defines the interface for user storage operations
type UserStore interface {
	// Create creates a new user
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)

	// GetByPhone retrieves a user by normalized phone number
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)

	// Update updates a user
	Update(ctx context.Context, user *domain.User) error

	// Delete deletes a user
	Delete(ctx context.Context, id domain.UserID) error
}

// CredentialStore persists registered authenticators, one document per
// credential keyed by the authenticator-assigned credential ID.
type CredentialStore interface {
	// Create creates a new credential
	Create(ctx context.Context, credential *domain.Credential) error

	// GetByID retrieves a credential by its credential ID
	GetByID(ctx context.Context, credentialID string) (*domain.Credential, error)

	// GetAllByOwner retrieves all credentials owned by a user
	GetAllByOwner(ctx context.Context, ownerID domain.UserID) ([]*domain.Credential, error)

	// CountByOwner counts credentials owned by a user
	CountByOwner(ctx context.Context, ownerID domain.UserID) (int64, error)

	// BumpCounter conditionally advances the signature counter. The write
	// succeeds only when newCounter is strictly greater than the stored
	// value; a failed condition returns ErrStaleCounter so two concurrent
	// assertions cannot both appear fresh.
	BumpCounter(ctx context.Context, credentialID string, newCounter uint32, usedAt time.Time) error

	// TouchUsed updates last_used_at without advancing the counter, for
	// authenticators that never increment it.
	TouchUsed(ctx context.Context, credentialID string, usedAt time.Time) error

	// Rename updates the device label of a credential owned by ownerID
	Rename(ctx context.Context, credentialID string, ownerID domain.UserID, label string) error

	// Delete removes a credential owned by ownerID
	Delete(ctx context.Context, credentialID string, ownerID domain.UserID) error
}

// ChallengeStore persists single-use ceremony challenges.
type ChallengeStore interface {
	// Create creates a new challenge
	Create(ctx context.Context, challenge *domain.Challenge) error

	// Consume atomically finds the newest non-expired challenge matching
	// subject and type and deletes it in the same operation. When two
	// callers race on one challenge exactly one succeeds; the other
	// observes ErrNotFound.
	Consume(ctx context.Context, subject string, typ domain.ChallengeType) (*domain.Challenge, error)

	// DeleteExpired deletes all expired challenges
	DeleteExpired(ctx context.Context) error
}

// LoginHistoryStore records successful authentications.
type LoginHistoryStore interface {
	// Append stores a login record
	Append(ctx context.Context, record *domain.LoginRecord) error

	// GetByUser retrieves recent login records for a user, newest first
	GetByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.LoginRecord, error)
}

// Store aggregates all storage interfaces
type Store interface {
	Users() UserStore
	Credentials() CredentialStore
	Challenges() ChallengeStore
	LoginHistory() LoginHistoryStore

	// Close closes the storage connection
	Close() error

	// Ping checks if the storage is alive
	Ping(ctx context.Context) error
}
