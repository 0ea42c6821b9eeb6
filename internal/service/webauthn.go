package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"go.uber.org/zap"

	"github.com/glossbook/auth-backend/internal/domain"
	"github.com/glossbook/auth-backend/internal/storage"
	"github.com/glossbook/auth-backend/pkg/config"
)

var (
	ErrChallengeExpiredOrMissing   = errors.New("challenge expired or missing")
	ErrVerificationFailed          = errors.New("verification failed")
	ErrCounterReplaySuspected      = errors.New("signature counter replay suspected")
	ErrCredentialAlreadyRegistered = errors.New("credential already registered")
)

// PasskeyService runs the WebAuthn ceremonies: first-time registration,
// usernameless login, and adding a credential to an existing account.
// Every ceremony consumes its challenge exactly once before any
// cryptographic verification happens.
type PasskeyService struct {
	store    storage.Store
	identity *IdentityService
	cfg      *config.Config
	logger   *zap.Logger
	webauthn *webauthn.WebAuthn

	challengeTTL time.Duration
}

// NewPasskeyService creates a new PasskeyService
func NewPasskeyService(store storage.Store, identity *IdentityService, cfg *config.Config, logger *zap.Logger) (*PasskeyService, error) {
	wconfig := &webauthn.Config{
		RPDisplayName: cfg.Server.RPName,
		RPID:          cfg.Server.RPID,
		RPOrigins:     []string{cfg.Server.RPOrigin},
	}

	wa, err := webauthn.New(wconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn: %w", err)
	}

	return &PasskeyService{
		store:        store,
		identity:     identity,
		cfg:          cfg,
		logger:       logger.Named("passkey-service"),
		webauthn:     wa,
		challengeTTL: time.Duration(cfg.WebAuthn.ChallengeTTL) * time.Second,
	}, nil
}

// passkeyUser implements webauthn.User. The user handle is always the
// normalized phone: registration runs before an account exists, so the
// phone is the only identifier stable across the whole ceremony.
type passkeyUser struct {
	handle      []byte
	name        string
	displayName string
	credentials []webauthn.Credential
}

func (u *passkeyUser) WebAuthnID() []byte                         { return u.handle }
func (u *passkeyUser) WebAuthnName() string                       { return u.name }
func (u *passkeyUser) WebAuthnDisplayName() string                { return u.displayName }
func (u *passkeyUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

// toWebauthnCredential converts a stored credential for the verifier.
func toWebauthnCredential(c *domain.Credential) (webauthn.Credential, error) {
	rawID, err := base64.RawURLEncoding.DecodeString(c.CredentialID)
	if err != nil {
		return webauthn.Credential{}, fmt.Errorf("malformed credential id: %w", err)
	}

	transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
	for _, t := range c.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}

	return webauthn.Credential{
		ID:              rawID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       transports,
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.AAGUID,
			SignCount: c.Counter,
		},
	}, nil
}

func encodeCredentialID(rawID []byte) string {
	return base64.RawURLEncoding.EncodeToString(rawID)
}

// issueChallenge persists a ceremony challenge under subject and type.
func (s *PasskeyService) issueChallenge(ctx context.Context, subject string, typ domain.ChallengeType, value string) error {
	now := time.Now()
	challenge := &domain.Challenge{
		ID:        domain.NewChallengeID(),
		Subject:   subject,
		Type:      typ,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(s.challengeTTL),
	}
	if err := s.store.Challenges().Create(ctx, challenge); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	return nil
}

// consumeChallenge atomically claims the newest live challenge for a
// subject. Missing, expired and already-consumed all look the same to
// the caller.
func (s *PasskeyService) consumeChallenge(ctx context.Context, subject string, typ domain.ChallengeType) (*domain.Challenge, error) {
	challenge, err := s.store.Challenges().Consume(ctx, subject, typ)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrChallengeExpiredOrMissing
		}
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}
	return challenge, nil
}

// BeginRegistration starts a registration ceremony keyed by normalized
// phone. The account does not exist yet; if it does, its credentials are
// excluded so the same authenticator is not enrolled twice.
func (s *PasskeyService) BeginRegistration(ctx context.Context, phone string) (*protocol.CredentialCreation, error) {
	waUser := &passkeyUser{
		handle:      []byte(phone),
		name:        phone,
		displayName: phone,
	}

	opts := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			// Platform attachment: the passkey stays on the device,
			// roaming/cross-device authenticators are not offered.
			AuthenticatorAttachment: protocol.Platform,
			ResidentKey:             protocol.ResidentKeyRequirementRequired,
			UserVerification:        protocol.VerificationRequired,
		}),
	}

	if exclusions, err := s.exclusionsForPhone(ctx, phone); err != nil {
		return nil, err
	} else if len(exclusions) > 0 {
		opts = append(opts, webauthn.WithExclusions(exclusions))
	}

	creation, session, err := s.webauthn.BeginRegistration(waUser, opts...)
	if err != nil {
		s.logger.Error("Failed to begin registration", zap.Error(err))
		return nil, fmt.Errorf("failed to begin registration: %w", err)
	}

	if err := s.issueChallenge(ctx, phone, domain.ChallengeRegistration, session.Challenge); err != nil {
		return nil, err
	}

	s.logger.Info("Started registration", zap.String("phone", phone))
	return creation, nil
}

func (s *PasskeyService) exclusionsForPhone(ctx context.Context, phone string) ([]protocol.CredentialDescriptor, error) {
	user, err := s.store.Users().GetByPhone(ctx, phone)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return s.exclusionsForUser(ctx, user.ID)
}

func (s *PasskeyService) exclusionsForUser(ctx context.Context, userID domain.UserID) ([]protocol.CredentialDescriptor, error) {
	credentials, err := s.store.Credentials().GetAllByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	descriptors := make([]protocol.CredentialDescriptor, 0, len(credentials))
	for _, c := range credentials {
		wc, err := toWebauthnCredential(c)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, wc.Descriptor())
	}
	return descriptors, nil
}

// FinishRegistration verifies an attestation response against the
// consumed challenge, provisions the account if needed, and stores the
// new credential.
func (s *PasskeyService) FinishRegistration(ctx context.Context, phone string, profile Profile, deviceLabel string, response []byte) (*domain.User, *domain.Credential, error) {
	challenge, err := s.consumeChallenge(ctx, phone, domain.ChallengeRegistration)
	if err != nil {
		return nil, nil, err
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(response))
	if err != nil {
		s.logger.Warn("Failed to parse attestation response", zap.Error(err))
		return nil, nil, ErrVerificationFailed
	}

	sessionData := webauthn.SessionData{
		Challenge:        challenge.Value,
		UserID:           []byte(phone),
		UserVerification: protocol.VerificationRequired,
	}
	waUser := &passkeyUser{handle: []byte(phone), name: phone, displayName: phone}

	credential, err := s.webauthn.CreateCredential(waUser, sessionData, parsed)
	if err != nil {
		s.logger.Warn("Registration verification failed", zap.Error(err))
		return nil, nil, ErrVerificationFailed
	}

	user, err := s.identity.ResolveOrCreate(ctx, phone, profile)
	if err != nil {
		return nil, nil, err
	}

	stored, err := s.storeCredential(ctx, user.ID, credential, deviceLabel)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("Passkey registered",
		zap.String("user_id", user.ID.String()),
		zap.String("credential_id", stored.CredentialID),
	)
	return user, stored, nil
}

func (s *PasskeyService) storeCredential(ctx context.Context, ownerID domain.UserID, credential *webauthn.Credential, deviceLabel string) (*domain.Credential, error) {
	if deviceLabel == "" {
		deviceLabel = "Passkey"
	}

	transports := make([]string, 0, len(credential.Transport))
	for _, t := range credential.Transport {
		transports = append(transports, string(t))
	}

	stored := &domain.Credential{
		CredentialID:    encodeCredentialID(credential.ID),
		OwnerID:         ownerID,
		PublicKey:       credential.PublicKey,
		AttestationType: credential.AttestationType,
		Transports:      transports,
		AAGUID:          credential.Authenticator.AAGUID,
		Counter:         credential.Authenticator.SignCount,
		DeviceLabel:     deviceLabel,
		CreatedAt:       time.Now(),
	}

	if err := s.store.Credentials().Create(ctx, stored); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, ErrCredentialAlreadyRegistered
		}
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}
	return stored, nil
}

// BeginLogin starts a usernameless (discoverable credential) login
// ceremony. No identifier is known yet, so the challenge is stored under
// the shared discoverable subject.
func (s *PasskeyService) BeginLogin(ctx context.Context) (*protocol.CredentialAssertion, error) {
	assertion, session, err := s.webauthn.BeginDiscoverableLogin(
		webauthn.WithUserVerification(protocol.VerificationRequired),
	)
	if err != nil {
		s.logger.Error("Failed to begin login", zap.Error(err))
		return nil, fmt.Errorf("failed to begin login: %w", err)
	}

	if err := s.issueChallenge(ctx, domain.DiscoverableSubject, domain.ChallengeAuthentication, session.Challenge); err != nil {
		return nil, err
	}

	return assertion, nil
}

// FinishLogin verifies an assertion response. The credential named in
// the response decides which account logs in; the caller supplies no
// identifier. All verification failures are indistinguishable to the
// client.
func (s *PasskeyService) FinishLogin(ctx context.Context, response []byte) (*domain.User, *domain.Credential, error) {
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(response))
	if err != nil {
		s.logger.Warn("Failed to parse assertion response", zap.Error(err))
		return nil, nil, ErrVerificationFailed
	}

	challenge, err := s.consumeChallenge(ctx, domain.DiscoverableSubject, domain.ChallengeAuthentication)
	if err != nil {
		return nil, nil, err
	}

	credentialID := encodeCredentialID(parsed.RawID)
	stored, err := s.store.Credentials().GetByID(ctx, credentialID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("Assertion for unknown credential", zap.String("credential_id", credentialID))
			return nil, nil, ErrVerificationFailed
		}
		return nil, nil, fmt.Errorf("failed to get credential: %w", err)
	}

	owner, err := s.store.Users().GetByID(ctx, stored.OwnerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrVerificationFailed
		}
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}

	sessionData := webauthn.SessionData{
		Challenge:        challenge.Value,
		UserVerification: protocol.VerificationRequired,
	}

	handler := func(rawID, userHandle []byte) (webauthn.User, error) {
		wc, err := toWebauthnCredential(stored)
		if err != nil {
			return nil, err
		}
		return &passkeyUser{
			handle:      []byte(owner.Phone),
			name:        owner.Phone,
			displayName: owner.DisplayName(),
			credentials: []webauthn.Credential{wc},
		}, nil
	}

	validated, err := s.webauthn.ValidateDiscoverableLogin(handler, sessionData, parsed)
	if err != nil {
		s.logger.Warn("Login verification failed", zap.Error(err))
		return nil, nil, ErrVerificationFailed
	}

	if err := s.advanceCounter(ctx, stored, validated); err != nil {
		return nil, nil, err
	}

	now := time.Now()
	owner.LastLoginAt = &now
	if err := s.store.Users().Update(ctx, owner); err != nil {
		// Don't fail login for this
		s.logger.Warn("Failed to update last login", zap.Error(err))
	}

	s.logger.Info("User logged in via passkey", zap.String("user_id", owner.ID.String()))
	return owner, stored, nil
}

// advanceCounter enforces signature counter monotonicity. Authenticators
// that never count report zero forever; that one case skips the check.
// Anything else that fails to move the counter strictly forward is
// treated as a cloned authenticator.
func (s *PasskeyService) advanceCounter(ctx context.Context, stored *domain.Credential, validated *webauthn.Credential) error {
	now := time.Now()

	if validated.Authenticator.CloneWarning {
		s.logger.Error("Clone warning on credential", zap.String("credential_id", stored.CredentialID))
		return ErrCounterReplaySuspected
	}

	reported := validated.Authenticator.SignCount
	if stored.Counter == 0 && reported == 0 {
		if err := s.store.Credentials().TouchUsed(ctx, stored.CredentialID, now); err != nil {
			return fmt.Errorf("failed to touch credential: %w", err)
		}
		return nil
	}

	err := s.store.Credentials().BumpCounter(ctx, stored.CredentialID, reported, now)
	if errors.Is(err, storage.ErrStaleCounter) {
		s.logger.Error("Stale signature counter",
			zap.String("credential_id", stored.CredentialID),
			zap.Uint32("stored", stored.Counter),
			zap.Uint32("reported", reported),
		)
		return ErrCounterReplaySuspected
	}
	if err != nil {
		return fmt.Errorf("failed to bump counter: %w", err)
	}

	stored.Counter = reported
	stored.LastUsedAt = &now
	return nil
}

// BeginAddCredential starts enrollment of an additional authenticator
// for a logged-in account. Existing credentials are excluded.
func (s *PasskeyService) BeginAddCredential(ctx context.Context, userID domain.UserID) (*protocol.CredentialCreation, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	exclusions, err := s.exclusionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	waUser := &passkeyUser{
		handle:      []byte(user.Phone),
		name:        user.Phone,
		displayName: user.DisplayName(),
	}

	opts := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			ResidentKey:             protocol.ResidentKeyRequirementRequired,
			UserVerification:        protocol.VerificationRequired,
		}),
	}
	if len(exclusions) > 0 {
		opts = append(opts, webauthn.WithExclusions(exclusions))
	}

	creation, session, err := s.webauthn.BeginRegistration(waUser, opts...)
	if err != nil {
		s.logger.Error("Failed to begin add-credential", zap.Error(err))
		return nil, fmt.Errorf("failed to begin add-credential: %w", err)
	}

	if err := s.issueChallenge(ctx, userID.String(), domain.ChallengeAddCredential, session.Challenge); err != nil {
		return nil, err
	}

	return creation, nil
}

// FinishAddCredential verifies the attestation and attaches the new
// credential to the caller's account.
func (s *PasskeyService) FinishAddCredential(ctx context.Context, userID domain.UserID, deviceLabel string, response []byte) (*domain.Credential, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	challenge, err := s.consumeChallenge(ctx, userID.String(), domain.ChallengeAddCredential)
	if err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(response))
	if err != nil {
		s.logger.Warn("Failed to parse attestation response", zap.Error(err))
		return nil, ErrVerificationFailed
	}

	sessionData := webauthn.SessionData{
		Challenge:        challenge.Value,
		UserID:           []byte(user.Phone),
		UserVerification: protocol.VerificationRequired,
	}
	waUser := &passkeyUser{handle: []byte(user.Phone), name: user.Phone, displayName: user.DisplayName()}

	credential, err := s.webauthn.CreateCredential(waUser, sessionData, parsed)
	if err != nil {
		s.logger.Warn("Add-credential verification failed", zap.Error(err))
		return nil, ErrVerificationFailed
	}

	stored, err := s.storeCredential(ctx, user.ID, credential, deviceLabel)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Credential added",
		zap.String("user_id", user.ID.String()),
		zap.String("credential_id", stored.CredentialID),
	)
	return stored, nil
}
