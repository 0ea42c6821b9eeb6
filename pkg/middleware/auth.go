package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/glossbook/auth-backend/internal/domain"
	"github.com/glossbook/auth-backend/internal/service"
)

// Context keys set by the auth gate.
const (
	ContextIdentity   = "identity"
	ContextSession    = "session"
	ContextAuthMethod = "auth_method"
)

// Auth method values.
const (
	AuthMethodSession = "session"
	AuthMethodToken   = "token"
)

// Auth is the dual authentication gate. A session cookie, when present,
// is authoritative: it either authenticates the request or fails it. The
// legacy bearer token is consulted only when no cookie was sent at all,
// so a revoked session cannot be bypassed by also attaching a token.
func Auth(sessions *service.SessionManager, tokens *service.TokenService, cookieName string, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("auth-gate")

	return func(c *gin.Context) {
		if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
			session, err := sessions.Get(c.Request.Context(), cookie)
			if err != nil {
				c.JSON(401, gin.H{"error": "Authentication required"})
				c.Abort()
				return
			}

			// Sliding expiry: activity extends the session.
			if err := sessions.Touch(c.Request.Context(), session); err != nil {
				log.Warn("Failed to refresh session", zap.Error(err))
			}

			c.Set(ContextIdentity, &session.Identity)
			c.Set(ContextSession, session)
			c.Set(ContextAuthMethod, AuthMethodSession)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(401, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			c.JSON(401, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		identity, err := tokens.Verify(strings.TrimSpace(parts[1]))
		if err != nil {
			c.JSON(401, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set(ContextIdentity, identity)
		c.Set(ContextAuthMethod, AuthMethodToken)
		c.Next()
	}
}

// IdentityFrom returns the authenticated identity, if any.
func IdentityFrom(c *gin.Context) (*domain.IdentitySnapshot, bool) {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*domain.IdentitySnapshot)
	return identity, ok
}

// SessionFrom returns the backing session for cookie-authenticated
// requests. Bearer-authenticated requests have none.
func SessionFrom(c *gin.Context) (*domain.Session, bool) {
	v, ok := c.Get(ContextSession)
	if !ok {
		return nil, false
	}
	session, ok := v.(*domain.Session)
	return session, ok
}

// AuthMethodFrom reports how the request authenticated.
func AuthMethodFrom(c *gin.Context) string {
	return c.GetString(ContextAuthMethod)
}

// Logger returns a gin middleware for request logging
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
