package models

import "time"

// CeremonyResponse is the closed set of client payloads produced by an
// authenticator: RegistrationResponse or AuthenticationResponse.
type CeremonyResponse interface {
	ceremony() string
}

// RegistrationResponse is the attestation returned by
// navigator.credentials.create. Binary fields are base64url.
type RegistrationResponse struct {
	CredentialID      string   `json:"id" validate:"required"`
	RawID             string   `json:"rawId" validate:"required"`
	Type              string   `json:"type" validate:"required,eq=public-key"`
	ClientDataJSON    string   `json:"clientDataJSON" validate:"required"`
	AttestationObject string   `json:"attestationObject" validate:"required"`
	Transports        []string `json:"transports,omitempty"`
}

func (RegistrationResponse) ceremony() string { return "webauthn.create" }

// AuthenticationResponse is the assertion returned by
// navigator.credentials.get. The counter travels inside AuthenticatorData.
type AuthenticationResponse struct {
	CredentialID      string `json:"id" validate:"required"`
	RawID             string `json:"rawId" validate:"required"`
	Type              string `json:"type" validate:"required,eq=public-key"`
	ClientDataJSON    string `json:"clientDataJSON" validate:"required"`
	AuthenticatorData string `json:"authenticatorData" validate:"required"`
	Signature         string `json:"signature" validate:"required"`
	UserHandle        string `json:"userHandle,omitempty"`
}

func (AuthenticationResponse) ceremony() string { return "webauthn.get" }

// Ceremony names the client data type expected for r.
func Ceremony(r CeremonyResponse) string { return r.ceremony() }

// RegistrationChallenge is handed to the client to create a credential.
type RegistrationChallenge struct {
	Challenge          string        `json:"challenge"`
	RPID               string        `json:"rp_id"`
	RPName             string        `json:"rp_name"`
	UserID             string        `json:"user_id"`
	UserName           string        `json:"user_name"`
	ExcludeCredentials []string      `json:"exclude_credentials"`
	Timeout            time.Duration `json:"timeout"`
	// Options is the full PublicKeyCredentialCreationOptions document.
	Options []byte `json:"options"`
}

// AuthenticationChallenge is handed to a group member to endorse a request.
type AuthenticationChallenge struct {
	RequestID          int64         `json:"request_id"`
	Challenge          string        `json:"challenge"`
	IssuedAt           time.Time     `json:"issued_at"`
	Timeout            time.Duration `json:"timeout"`
	RPID               string        `json:"rp_id"`
	AllowedCredentials []string      `json:"allowed_credentials"`
	UserVerification   string        `json:"user_verification"`
}

// VerifiedRegistration is what a successful attestation yields; the caller
// persists it.
type VerifiedRegistration struct {
	CredentialID []byte
	PublicKey    []byte
	Counter      uint32
	DeviceType   string
	BackedUp     bool
	Transports   []string
	AAGUID       []byte
}

// VerifiedAuthentication is what a successful assertion yields.
type VerifiedAuthentication struct {
	CredentialID []byte
	Counter      uint32
	// CounterSupported is false when both the stored and the asserted
	// counters are zero, i.e. the authenticator does not implement one.
	CounterSupported bool
}
