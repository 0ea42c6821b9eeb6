package api

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/glossbook/auth-backend/internal/domain"
	"github.com/glossbook/auth-backend/internal/service"
	"github.com/glossbook/auth-backend/pkg/middleware"
)

// passkeyView is the credential shape exposed over the API. Key
// material and the signature counter stay server-side.
type passkeyView struct {
	ID         string     `json:"id"`
	DeviceName string     `json:"deviceName"`
	Transports []string   `json:"transports,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

func passkeyViewOf(c *domain.Credential) passkeyView {
	return passkeyView{
		ID:         c.CredentialID,
		DeviceName: c.DeviceLabel,
		Transports: c.Transports,
		CreatedAt:  c.CreatedAt,
		LastUsedAt: c.LastUsedAt,
	}
}

// ListCredentials returns the caller's registered passkeys.
func (h *Handlers) ListCredentials(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(401, gin.H{"error": "Authentication required"})
		return
	}

	credentials, err := h.services.Credential.List(c.Request.Context(), domain.UserIDFromString(identity.UserID))
	if err != nil {
		h.logger.Error("Failed to list credentials", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to list credentials"})
		return
	}

	views := make([]passkeyView, 0, len(credentials))
	for _, credential := range credentials {
		views = append(views, passkeyViewOf(credential))
	}
	c.JSON(200, gin.H{"credentials": views})
}

type renameCredentialRequest struct {
	DeviceName string `json:"deviceName" binding:"required"`
}

// RenameCredential updates the display label of one of the caller's
// passkeys. The lookup is owner-scoped, so a foreign credential id
// behaves like a missing one.
func (h *Handlers) RenameCredential(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(401, gin.H{"error": "Authentication required"})
		return
	}

	var req renameCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "deviceName is required"})
		return
	}

	err := h.services.Credential.Rename(c.Request.Context(), domain.UserIDFromString(identity.UserID), c.Param("id"), req.DeviceName)
	if err != nil {
		if errors.Is(err, service.ErrCredentialNotFound) {
			c.JSON(404, gin.H{"error": "Credential not found"})
			return
		}
		h.logger.Error("Failed to rename credential", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to rename credential"})
		return
	}

	c.JSON(200, gin.H{"status": "renamed"})
}

// DeleteCredential removes one of the caller's passkeys. Deleting the
// only credential is refused unless a password fallback is on file.
func (h *Handlers) DeleteCredential(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(401, gin.H{"error": "Authentication required"})
		return
	}

	err := h.services.Credential.Delete(c.Request.Context(), domain.UserIDFromString(identity.UserID), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCredentialNotFound):
			c.JSON(404, gin.H{"error": "Credential not found"})
		case errors.Is(err, service.ErrLastCredentialRemovalBlocked):
			c.JSON(409, gin.H{"error": "Cannot delete the only passkey on the account"})
		default:
			h.logger.Error("Failed to delete credential", zap.Error(err))
			c.JSON(500, gin.H{"error": "Failed to delete credential"})
		}
		return
	}

	c.JSON(200, gin.H{"status": "deleted"})
}
