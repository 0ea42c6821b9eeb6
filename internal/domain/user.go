package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role defines which side of the marketplace an account belongs to.
type Role string

const (
	RoleClient  Role = "CLIENT"
	RoleStylist Role = "STYLIST"
	RoleAdmin   Role = "ADMIN"
)

// UserID represents a unique user identifier
type UserID struct {
	ID string `json:"id" bson:"id"`
}

// NewUserID creates a new user ID
func NewUserID() UserID {
	return UserID{ID: uuid.New().String()}
}

// UserIDFromString creates a UserID from a string
func UserIDFromString(id string) UserID {
	return UserID{ID: id}
}

// String returns the string representation
func (u UserID) String() string {
	return u.ID
}

// User represents an account. Phone is the stable external identifier:
// passkey registration happens before the account exists, so the ceremony
// is keyed by normalized phone until the identity provisioner runs.
type User struct {
	ID            UserID  `json:"id" bson:"_id"`
	Phone         string  `json:"phone" bson:"phone"`
	Email         *string `json:"email,omitempty" bson:"email,omitempty"`
	Username      string  `json:"username" bson:"username"`
	FirstName     string  `json:"first_name" bson:"first_name"`
	LastName      *string `json:"last_name,omitempty" bson:"last_name,omitempty"`
	Role          Role    `json:"role" bson:"role"`
	PasswordHash  *string `json:"-" bson:"password_hash,omitempty"`
	PhoneVerified bool    `json:"phone_verified" bson:"phone_verified"`
	EmailVerified bool    `json:"email_verified" bson:"email_verified"`

	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty" bson:"last_login_at,omitempty"`
}

// DisplayName returns the name shown to other users.
func (u *User) DisplayName() string {
	if u.LastName != nil && *u.LastName != "" {
		return u.FirstName + " " + *u.LastName
	}
	return u.FirstName
}

// HasPassword reports whether a password fallback is on file. An account
// must keep at least one usable login method, so credential deletion
// consults this.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
