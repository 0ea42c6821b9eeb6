package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/glossbook/auth-backend/internal/storage"
	"github.com/glossbook/auth-backend/pkg/config"
)

// Services aggregates all application services
type Services struct {
	Identity         *IdentityService
	Passkey          *PasskeyService
	Credential       *CredentialService
	Session          *SessionManager
	Token            *TokenService
	ChallengeCleanup *ChallengeCleanupWorker
}

// NewServices creates a new Services instance
func NewServices(store storage.Store, cfg *config.Config, logger *zap.Logger) (*Services, error) {
	identity := NewIdentityService(store, logger)

	passkey, err := NewPasskeyService(store, identity, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create passkey service: %w", err)
	}

	sessionStore, err := newSessionStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	return &Services{
		Identity:         identity,
		Passkey:          passkey,
		Credential:       NewCredentialService(store, logger),
		Session:          NewSessionManager(sessionStore, &cfg.SessionStore, logger),
		Token:            NewTokenService(&cfg.JWT, logger),
		ChallengeCleanup: NewChallengeCleanupWorker(&cfg.WebAuthn, store, logger),
	}, nil
}

func newSessionStore(cfg *config.Config, logger *zap.Logger) (SessionStore, error) {
	switch cfg.SessionStore.Type {
	case "redis":
		return NewRedisSessionStore(&cfg.SessionStore.Redis, logger)
	default:
		return NewMemorySessionStore(), nil
	}
}

// Start starts background workers
func (s *Services) Start() {
	if s.ChallengeCleanup != nil {
		s.ChallengeCleanup.Start()
	}
}

// Stop gracefully stops background workers
func (s *Services) Stop() {
	if s.ChallengeCleanup != nil {
		s.ChallengeCleanup.Stop()
	}
	if s.Session != nil {
		_ = s.Session.Close()
	}
}
