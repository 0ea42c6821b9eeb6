package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/glossbook/auth-backend/internal/domain"
	"github.com/glossbook/auth-backend/pkg/config"
)

var ErrOwnershipViolation = errors.New("session belongs to another user")

// SessionManager handles server-side session lifecycle: creation after a
// verified ceremony, sliding idle expiry, and revocation.
type SessionManager struct {
	store  SessionStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewSessionManager creates a new SessionManager
func NewSessionManager(store SessionStore, cfg *config.SessionStoreConfig, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		store:  store,
		ttl:    time.Duration(cfg.InactivityTTLMinutes) * time.Minute,
		logger: logger.Named("session-manager"),
	}
}

// TTL returns the configured inactivity timeout.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Create mints a brand-new session for an authenticated user. The ID is
// always freshly generated here, never taken from the request, so a
// pre-authentication session identifier can never survive login.
func (m *SessionManager) Create(ctx context.Context, user *domain.User, ip, userAgent string) (*domain.Session, error) {
	now := time.Now()
	session := &domain.Session{
		ID:           domain.NewSessionID(),
		Identity:     domain.Snapshot(user),
		CreatedAt:    now,
		LastActivity: now,
		IP:           ip,
		UserAgent:    userAgent,
	}

	if err := m.store.Save(ctx, session, m.ttl); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	m.logger.Info("Session created",
		zap.String("user_id", session.Identity.UserID),
		zap.String("ip", ip),
	)
	return session, nil
}

// Get retrieves a live session without touching its expiry.
func (m *SessionManager) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.store.Get(ctx, sessionID)
}

// Touch marks a session as active and pushes its expiry a full idle
// window into the future.
func (m *SessionManager) Touch(ctx context.Context, session *domain.Session) error {
	session.LastActivity = time.Now()
	if err := m.store.Save(ctx, session, m.ttl); err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}
	return nil
}

// Destroy removes a session. Destroying an already-gone session succeeds.
func (m *SessionManager) Destroy(ctx context.Context, sessionID string) error {
	return m.store.Delete(ctx, sessionID)
}

// ListByIdentity returns all live sessions for a user.
func (m *SessionManager) ListByIdentity(ctx context.Context, userID string) ([]*domain.Session, error) {
	return m.store.ListByUser(ctx, userID)
}

// Revoke deletes a specific session after checking it belongs to the
// caller. A session owned by someone else is rejected, not deleted.
func (m *SessionManager) Revoke(ctx context.Context, callerID, sessionID string) error {
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Identity.UserID != callerID {
		m.logger.Warn("Cross-user session revocation blocked",
			zap.String("caller", callerID),
			zap.String("owner", session.Identity.UserID),
		)
		return ErrOwnershipViolation
	}
	return m.store.Delete(ctx, sessionID)
}

// RevokeAllExcept deletes every session of a user except the one making
// the request, for a "sign out everywhere else" action.
func (m *SessionManager) RevokeAllExcept(ctx context.Context, userID, keepSessionID string) (int, error) {
	sessions, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	revoked := 0
	for _, session := range sessions {
		if session.ID == keepSessionID {
			continue
		}
		if err := m.store.Delete(ctx, session.ID); err != nil {
			return revoked, err
		}
		revoked++
	}

	m.logger.Info("Revoked sessions",
		zap.String("user_id", userID),
		zap.Int("count", revoked),
	)
	return revoked, nil
}

// Close releases the underlying store.
func (m *SessionManager) Close() error {
	return m.store.Close()
}
