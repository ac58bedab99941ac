package models

import "time"

// Credential is a registered WebAuthn public key. CredentialID and
// PublicKey are raw bytes here; storage keeps them as base64url text.
type Credential struct {
	CredentialID []byte
	UserID       string
	DeviceID     *int64
	PublicKey    []byte
	Counter      uint32
	DeviceType   string
	BackedUp     bool
	Transports   []string
	AAGUID       []byte
	CreatedAt    time.Time
	LastUsedAt   *time.Time
}

// Credential device types as reported by the authenticator flags.
const (
	DeviceTypeSingle = "singleDevice"
	DeviceTypeMulti  = "multiDevice"
)
