package domain

import "time"

// Credential is one registered authenticator. Many credentials may
// reference the same owner; the owner must always retain at least one
// usable login method.
type Credential struct {
	CredentialID    string     `json:"credential_id" bson:"_id"` // base64url
	OwnerID         UserID     `json:"owner_id" bson:"owner_id"`
	PublicKey       []byte     `json:"public_key" bson:"public_key"`
	AttestationType string     `json:"attestation_type" bson:"attestation_type"`
	Transports      []string   `json:"transports" bson:"transports"`
	AAGUID          []byte     `json:"aaguid" bson:"aaguid"`
	Counter         uint32     `json:"counter" bson:"counter"`
	DeviceLabel     string     `json:"device_label" bson:"device_label"`
	CreatedAt       time.Time  `json:"created_at" bson:"created_at"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty" bson:"last_used_at,omitempty"`
}

// LoginRecord is an append-only audit entry for a successful
// authentication.
type LoginRecord struct {
	ID          string    `json:"id" bson:"_id"`
	UserID      UserID    `json:"user_id" bson:"user_id"`
	Method      string    `json:"method" bson:"method"`
	IP          string    `json:"ip" bson:"ip"`
	UserAgent   string    `json:"user_agent" bson:"user_agent"`
	DeviceLabel string    `json:"device_label" bson:"device_label"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}
