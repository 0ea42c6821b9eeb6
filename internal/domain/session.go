package domain

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// IdentitySnapshot is the claim set copied into a session (and mirrored
// into legacy bearer tokens) at creation time. It is not a live join:
// if authorization-relevant fields on the user change, existing sessions
// keep the old snapshot until recreated.
type IdentitySnapshot struct {
	UserID        string `json:"user_id" bson:"user_id"`
	Role          Role   `json:"role" bson:"role"`
	DisplayName   string `json:"display_name" bson:"display_name"`
	Phone         string `json:"phone" bson:"phone"`
	PhoneVerified bool   `json:"phone_verified" bson:"phone_verified"`
	EmailVerified bool   `json:"email_verified" bson:"email_verified"`
}

// Snapshot captures the identity claims of a user at a point in time.
func Snapshot(u *User) IdentitySnapshot {
	return IdentitySnapshot{
		UserID:        u.ID.String(),
		Role:          u.Role,
		DisplayName:   u.DisplayName(),
		Phone:         u.Phone,
		PhoneVerified: u.PhoneVerified,
		EmailVerified: u.EmailVerified,
	}
}

// Session is a server-side authenticated session. The ID is regenerated
// on every successful login, never carried over from a pre-auth request.
type Session struct {
	ID           string           `json:"id"`
	Identity     IdentitySnapshot `json:"identity"`
	CreatedAt    time.Time        `json:"created_at"`
	LastActivity time.Time        `json:"last_activity"`
	IP           string           `json:"ip"`
	UserAgent    string           `json:"user_agent"`
}

// NewSessionID generates an unguessable session identifier.
func NewSessionID() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
