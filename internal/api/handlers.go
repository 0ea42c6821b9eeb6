package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/glossbook/auth-backend/internal/domain"
	"github.com/glossbook/auth-backend/internal/service"
	"github.com/glossbook/auth-backend/pkg/config"
	"github.com/glossbook/auth-backend/pkg/middleware"
	"github.com/glossbook/auth-backend/pkg/phone"
)

// Handlers aggregates all HTTP handlers
type Handlers struct {
	services *service.Services
	cfg      *config.Config
	limiter  *middleware.AuthRateLimiter
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance. The limiter may be nil
// when rate limiting is disabled.
func NewHandlers(services *service.Services, cfg *config.Config, limiter *middleware.AuthRateLimiter, logger *zap.Logger) *Handlers {
	return &Handlers{
		services: services,
		cfg:      cfg,
		limiter:  limiter,
		logger:   logger.Named("handlers"),
	}
}

// Health handles the /health endpoint
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:       "ok",
		Service:      "auth-backend",
		APIVersion:   CurrentAPIVersion,
		Capabilities: APICapabilities[CurrentAPIVersion],
	})
}

// authResponse is returned by every successful ceremony that ends in a
// login: the session rides in the cookie, the legacy token in the body.
type authResponse struct {
	Token    string                  `json:"token"`
	Identity domain.IdentitySnapshot `json:"identity"`
}

// establishSession creates a fresh session for the user, sets the
// session cookie and signs the legacy bearer token. The session id is
// always newly generated here, never carried over from the request.
func (h *Handlers) establishSession(c *gin.Context, user *domain.User) (*authResponse, error) {
	session, err := h.services.Session.Create(c.Request.Context(), user, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := h.services.Token.Sign(user)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	h.setSessionCookie(c, session.ID, int(h.services.Session.TTL().Seconds()))
	return &authResponse{Token: token, Identity: session.Identity}, nil
}

func (h *Handlers) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		h.cfg.SessionStore.CookieName,
		value,
		maxAge,
		"/",
		h.cfg.SessionStore.CookieDomain,
		h.cfg.SessionStore.CookieSecure,
		true, // HttpOnly
	)
}

// recordFailure feeds the rate limiter so failed ceremonies cost extra.
func (h *Handlers) recordFailure(c *gin.Context) {
	if h.limiter != nil {
		h.limiter.RecordFailure(c.ClientIP())
	}
}

// parseSignupRole maps a requested role onto the marketplace sides a
// user may self-select. Admin accounts are never self-service.
func parseSignupRole(raw string) (domain.Role, error) {
	switch domain.Role(raw) {
	case "":
		return domain.RoleClient, nil
	case domain.RoleClient:
		return domain.RoleClient, nil
	case domain.RoleStylist:
		return domain.RoleStylist, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

// WebAuthn ceremony handlers

type registerOptionsRequest struct {
	Phone string `json:"phone" binding:"required"`
	Role  string `json:"role"`
}

// RegisterOptions begins passkey registration for a phone number. The
// account does not exist yet; the ceremony is keyed by normalized phone.
func (h *Handlers) RegisterOptions(c *gin.Context) {
	var req registerOptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "phone is required"})
		return
	}

	normalized, err := phone.Normalize(req.Phone)
	if err != nil {
		c.JSON(400, gin.H{"error": "Invalid phone number"})
		return
	}
	if _, err := parseSignupRole(req.Role); err != nil {
		c.JSON(400, gin.H{"error": "Invalid role"})
		return
	}

	options, err := h.services.Passkey.BeginRegistration(c.Request.Context(), normalized)
	if err != nil {
		h.logger.Error("Failed to start registration", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to start registration"})
		return
	}

	c.JSON(200, options)
}

type registerVerifyRequest struct {
	Phone      string          `json:"phone" binding:"required"`
	FirstName  string          `json:"firstName"`
	LastName   string          `json:"lastName"`
	Email      string          `json:"email"`
	Role       string          `json:"role"`
	DeviceName string          `json:"deviceName"`
	Credential json.RawMessage `json:"credential" binding:"required"`
}

// RegisterVerify completes passkey registration: verifies the
// attestation against the stored challenge, provisions the account and
// logs the new user in.
func (h *Handlers) RegisterVerify(c *gin.Context) {
	var req registerVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "phone and credential are required"})
		return
	}

	normalized, err := phone.Normalize(req.Phone)
	if err != nil {
		c.JSON(400, gin.H{"error": "Invalid phone number"})
		return
	}
	role, err := parseSignupRole(req.Role)
	if err != nil {
		c.JSON(400, gin.H{"error": "Invalid role"})
		return
	}

	profile := service.Profile{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Role:      role,
	}

	user, credential, err := h.services.Passkey.FinishRegistration(c.Request.Context(), normalized, profile, req.DeviceName, req.Credential)
	if err != nil {
		h.failCeremony(c, "registration", err)
		return
	}

	resp, err := h.establishSession(c, user)
	if err != nil {
		h.logger.Error("Failed to establish session after registration", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to complete registration"})
		return
	}

	h.services.Identity.RecordLogin(c.Request.Context(), user.ID, "webauthn_register", c.ClientIP(), c.Request.UserAgent(), credential.DeviceLabel)
	c.JSON(200, resp)
}

// LoginOptions begins a discoverable (usernameless) login ceremony.
func (h *Handlers) LoginOptions(c *gin.Context) {
	options, err := h.services.Passkey.BeginLogin(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to start login", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to start login"})
		return
	}

	c.JSON(200, options)
}

type loginVerifyRequest struct {
	Assertion json.RawMessage `json:"assertion" binding:"required"`
}

// LoginVerify completes a discoverable login. The credential named in
// the assertion identifies the account; no phone or username is sent.
func (h *Handlers) LoginVerify(c *gin.Context) {
	var req loginVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "assertion is required"})
		return
	}

	user, credential, err := h.services.Passkey.FinishLogin(c.Request.Context(), req.Assertion)
	if err != nil {
		h.failCeremony(c, "login", err)
		return
	}

	resp, err := h.establishSession(c, user)
	if err != nil {
		h.logger.Error("Failed to establish session after login", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to complete login"})
		return
	}

	h.services.Identity.RecordLogin(c.Request.Context(), user.ID, "webauthn_login", c.ClientIP(), c.Request.UserAgent(), credential.DeviceLabel)
	c.JSON(200, resp)
}

// AddCredentialOptions begins registration of an additional passkey for
// the authenticated user, excluding already-registered credentials.
func (h *Handlers) AddCredentialOptions(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(401, gin.H{"error": "Authentication required"})
		return
	}

	options, err := h.services.Passkey.BeginAddCredential(c.Request.Context(), domain.UserIDFromString(identity.UserID))
	if err != nil {
		h.logger.Error("Failed to start credential addition", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to start credential addition"})
		return
	}

	c.JSON(200, options)
}

type addVerifyRequest struct {
	DeviceName string          `json:"deviceName"`
	Credential json.RawMessage `json:"credential" binding:"required"`
}

// AddCredentialVerify completes registration of an additional passkey.
func (h *Handlers) AddCredentialVerify(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(401, gin.H{"error": "Authentication required"})
		return
	}

	var req addVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "credential is required"})
		return
	}

	credential, err := h.services.Passkey.FinishAddCredential(c.Request.Context(), domain.UserIDFromString(identity.UserID), req.DeviceName, req.Credential)
	if err != nil {
		h.failCeremony(c, "credential addition", err)
		return
	}

	c.JSON(200, gin.H{"credential": passkeyViewOf(credential)})
}

// failCeremony maps ceremony errors onto responses. Everything that
// could tell an attacker why verification failed collapses to a single
// generic answer.
func (h *Handlers) failCeremony(c *gin.Context, ceremony string, err error) {
	switch {
	case errors.Is(err, service.ErrCredentialAlreadyRegistered):
		c.JSON(409, gin.H{"error": "Credential already registered"})
	case errors.Is(err, service.ErrChallengeExpiredOrMissing),
		errors.Is(err, service.ErrVerificationFailed),
		errors.Is(err, service.ErrCounterReplaySuspected):
		h.logger.Warn("Ceremony failed",
			zap.String("ceremony", ceremony),
			zap.String("ip", c.ClientIP()),
			zap.Error(err),
		)
		h.recordFailure(c)
		c.JSON(401, gin.H{"error": "Verification failed"})
	default:
		h.logger.Error("Ceremony error", zap.String("ceremony", ceremony), zap.Error(err))
		c.JSON(500, gin.H{"error": "Verification could not be completed"})
	}
}
