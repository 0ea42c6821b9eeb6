package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/glossbook/auth-backend/internal/domain"
	"github.com/glossbook/auth-backend/internal/service"
	"github.com/glossbook/auth-backend/pkg/middleware"
)

// sessionView is the session shape exposed over the API.
type sessionView struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	IP           string    `json:"ip"`
	UserAgent    string    `json:"userAgent"`
	IsCurrent    bool      `json:"isCurrent"`
}

func sessionViewOf(s *domain.Session, currentID string) sessionView {
	return sessionView{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		IP:           s.IP,
		UserAgent:    s.UserAgent,
		IsCurrent:    s.ID == currentID,
	}
}

// CSRFToken mints a fresh CSRF token bound to the caller's session and
// delivers it both as a cookie and in the body. Bearer-authenticated
// requests bypass CSRF entirely and have nothing to bind to.
func (h *Handlers) CSRFToken(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(400, gin.H{"error": "CSRF tokens apply to session authentication only"})
		return
	}

	token := middleware.NewCSRFToken(h.cfg.CSRF.Secret, session.ID)

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		h.cfg.CSRF.CookieName,
		token,
		int(h.services.Session.TTL().Seconds()),
		"/",
		h.cfg.SessionStore.CookieDomain,
		h.cfg.SessionStore.CookieSecure,
		true, // HttpOnly: the token travels back in the body, not via document.cookie
	)

	c.JSON(200, gin.H{
		"csrfToken":  token,
		"headerName": h.cfg.CSRF.HeaderName,
	})
}

// CurrentSession describes how the request authenticated and, for
// cookie-authenticated requests, the backing session.
func (h *Handlers) CurrentSession(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(401, gin.H{"error": "Authentication required"})
		return
	}

	resp := gin.H{
		"identity":   identity,
		"authMethod": middleware.AuthMethodFrom(c),
	}
	if session, ok := middleware.SessionFrom(c); ok {
		resp["session"] = sessionViewOf(session, session.ID)
	}
	c.JSON(200, resp)
}

// ListSessions returns every active session of the caller, marking the
// one backing this request.
func (h *Handlers) ListSessions(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(401, gin.H{"error": "Authentication required"})
		return
	}

	sessions, err := h.services.Session.ListByIdentity(c.Request.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to list sessions"})
		return
	}

	currentID := ""
	if current, ok := middleware.SessionFrom(c); ok {
		currentID = current.ID
	}

	views := make([]sessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, sessionViewOf(session, currentID))
	}
	c.JSON(200, gin.H{"sessions": views})
}

// RevokeSession destroys one of the caller's sessions by id. Sessions
// of other users are not revealed: the ownership check runs before any
// mutation.
func (h *Handlers) RevokeSession(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(401, gin.H{"error": "Authentication required"})
		return
	}

	err := h.services.Session.Revoke(c.Request.Context(), identity.UserID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			c.JSON(404, gin.H{"error": "Session not found"})
		case errors.Is(err, service.ErrOwnershipViolation):
			c.JSON(403, gin.H{"error": "Session belongs to another user"})
		default:
			h.logger.Error("Failed to revoke session", zap.Error(err))
			c.JSON(500, gin.H{"error": "Failed to revoke session"})
		}
		return
	}

	c.JSON(200, gin.H{"status": "revoked"})
}

// RevokeAllSessions destroys every session of the caller except the one
// backing this request. A bearer-authenticated caller has no current
// session, so everything goes.
func (h *Handlers) RevokeAllSessions(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(401, gin.H{"error": "Authentication required"})
		return
	}

	keepID := ""
	if current, ok := middleware.SessionFrom(c); ok {
		keepID = current.ID
	}

	revoked, err := h.services.Session.RevokeAllExcept(c.Request.Context(), identity.UserID, keepID)
	if err != nil {
		h.logger.Error("Failed to revoke sessions", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to revoke sessions"})
		return
	}

	c.JSON(200, gin.H{"revoked": revoked})
}

// loginRecordView is the login-history shape exposed over the API.
type loginRecordView struct {
	Method     string    `json:"method"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"userAgent"`
	DeviceName string    `json:"deviceName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// LoginHistory returns the caller's recent successful logins, newest
// first.
func (h *Handlers) LoginHistory(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(401, gin.H{"error": "Authentication required"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	records, err := h.services.Identity.LoginHistory(c.Request.Context(), domain.UserIDFromString(identity.UserID), limit)
	if err != nil {
		h.logger.Error("Failed to load login history", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to load login history"})
		return
	}

	views := make([]loginRecordView, 0, len(records))
	for _, record := range records {
		views = append(views, loginRecordView{
			Method:     record.Method,
			IP:         record.IP,
			UserAgent:  record.UserAgent,
			DeviceName: record.DeviceLabel,
			CreatedAt:  record.CreatedAt,
		})
	}
	c.JSON(200, gin.H{"logins": views})
}

// Logout destroys the current session and clears both auth cookies.
// Idempotent: logging out twice is still a logout.
func (h *Handlers) Logout(c *gin.Context) {
	if session, ok := middleware.SessionFrom(c); ok {
		if err := h.services.Session.Destroy(c.Request.Context(), session.ID); err != nil {
			h.logger.Warn("Failed to destroy session on logout", zap.Error(err))
		}
	}

	h.setSessionCookie(c, "", -1)
	c.SetCookie(h.cfg.CSRF.CookieName, "", -1, "/", h.cfg.SessionStore.CookieDomain, h.cfg.SessionStore.CookieSecure, true)

	c.JSON(200, gin.H{"status": "logged out"})
}
