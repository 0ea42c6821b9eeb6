package domain

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// ChallengeType identifies which ceremony a challenge belongs to.
type ChallengeType string

const (
	ChallengeRegistration   ChallengeType = "registration"
	ChallengeAuthentication ChallengeType = "authentication"
	ChallengeAddCredential  ChallengeType = "add_credential"
)

// DiscoverableSubject is the sentinel subject hint for usernameless
// authentication, where no identifier is known before the authenticator
// responds.
const DiscoverableSubject = "discoverable"

// Challenge is a single-use, time-boxed ceremony challenge. Subject is a
// user id, a normalized phone (pre-account registration), or
// DiscoverableSubject. A challenge is consumed at most once: lookup and
// delete happen in one atomic storage operation.
type Challenge struct {
	ID        string        `json:"id" bson:"_id"`
	Subject   string        `json:"subject" bson:"subject"`
	Type      ChallengeType `json:"type" bson:"type"`
	Value     string        `json:"value" bson:"value"` // base64url, >=32 bytes of entropy
	CreatedAt time.Time     `json:"created_at" bson:"created_at"`
	ExpiresAt time.Time     `json:"expires_at" bson:"expires_at"`
}

// IsExpired reports whether the challenge TTL has elapsed.
func (c *Challenge) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// NewChallengeID generates a random challenge record identifier.
func NewChallengeID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
