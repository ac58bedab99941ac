package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/signoff/internal/b64x"
	"github.com/dmitrijs2005/signoff/internal/common"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// RelyingParty runs the two WebAuthn ceremonies. It never touches storage.
//
// Verification failures are reported as common.ErrInvalidAuthentication and
// counter regressions as common.ErrReplayDetected.
type RelyingParty interface {
	ID() string
	Timeout() time.Duration

	// BeginRegistration issues a fresh random challenge for user. The returned
	// session must be presented again to FinishRegistration.
	BeginRegistration(user *models.User, exclude []*models.Credential) (*models.RegistrationChallenge, *webauthn.SessionData, error)
	FinishRegistration(user *models.User, session webauthn.SessionData, resp *models.RegistrationResponse) (*models.VerifiedRegistration, error)

	// FinishLogin verifies an assertion made with cred over challenge.
	FinishLogin(user *models.User, cred *models.Credential, challenge []byte, expires time.Time, resp *models.AuthenticationResponse) (*models.VerifiedAuthentication, error)
}

// WebAuthnRelyingParty implements RelyingParty with go-webauthn. Attestation
// is "none" and user verification is always required.
type WebAuthnRelyingParty struct {
	webAuthn *webauthn.WebAuthn
	rpID     string
	rpName   string
	timeout  time.Duration
}

func NewWebAuthnRelyingParty(rpID, rpName string, origins []string, timeout time.Duration) (*WebAuthnRelyingParty, error) {
	cfg := &webauthn.Config{
		RPDisplayName:         rpName,
		RPID:                  rpID,
		RPOrigins:             origins,
		AttestationPreference: protocol.PreferNoAttestation,
		Timeouts: webauthn.TimeoutsConfig{
			Login: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    timeout,
				TimeoutUVD: timeout,
			},
			Registration: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    timeout,
				TimeoutUVD: timeout,
			},
		},
	}

	w, err := webauthn.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebAuthn instance: %w", err)
	}

	return &WebAuthnRelyingParty{webAuthn: w, rpID: rpID, rpName: rpName, timeout: timeout}, nil
}

func (rp *WebAuthnRelyingParty) ID() string { return rp.rpID }

func (rp *WebAuthnRelyingParty) Timeout() time.Duration { return rp.timeout }

func (rp *WebAuthnRelyingParty) BeginRegistration(user *models.User, exclude []*models.Credential) (*models.RegistrationChallenge, *webauthn.SessionData, error) {
	exclusions := make([]protocol.CredentialDescriptor, 0, len(exclude))
	excludeIDs := make([]string, 0, len(exclude))
	for _, c := range exclude {
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: protocol.URLEncodedBase64(c.CredentialID),
		})
		excludeIDs = append(excludeIDs, b64x.Encode(c.CredentialID))
	}

	creation, session, err := rp.webAuthn.BeginRegistration(newWebAuthnUser(user, nil),
		webauthn.WithExclusions(exclusions),
		webauthn.WithConveyancePreference(protocol.PreferNoAttestation),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementPreferred,
			UserVerification: protocol.VerificationRequired,
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("begin registration: %w", err)
	}

	options, err := json.Marshal(creation)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal creation options: %w", err)
	}

	return &models.RegistrationChallenge{
		Challenge:          session.Challenge,
		RPID:               rp.rpID,
		RPName:             rp.rpName,
		UserID:             user.ID,
		UserName:           newWebAuthnUser(user, nil).WebAuthnName(),
		ExcludeCredentials: excludeIDs,
		Timeout:            rp.timeout,
		Options:            options,
	}, session, nil
}

func (rp *WebAuthnRelyingParty) FinishRegistration(user *models.User, session webauthn.SessionData, resp *models.RegistrationResponse) (*models.VerifiedRegistration, error) {
	if !bytes.Equal(session.UserID, []byte(user.ID)) {
		return nil, fmt.Errorf("%w: session belongs to another user", common.ErrInvalidAuthentication)
	}

	parsed, err := parseRegistration(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidAuthentication, err)
	}

	cred, err := rp.webAuthn.CreateCredential(newWebAuthnUser(user, nil), session, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidAuthentication, describe(err))
	}

	transports := make([]string, 0, len(cred.Transport))
	for _, t := range cred.Transport {
		transports = append(transports, string(t))
	}

	deviceType := models.DeviceTypeSingle
	if cred.Flags.BackupEligible {
		deviceType = models.DeviceTypeMulti
	}

	return &models.VerifiedRegistration{
		CredentialID: cred.ID,
		PublicKey:    cred.PublicKey,
		Counter:      cred.Authenticator.SignCount,
		DeviceType:   deviceType,
		BackedUp:     cred.Flags.BackupState,
		Transports:   transports,
		AAGUID:       cred.Authenticator.AAGUID,
	}, nil
}

func (rp *WebAuthnRelyingParty) FinishLogin(user *models.User, cred *models.Credential, challenge []byte, expires time.Time, resp *models.AuthenticationResponse) (*models.VerifiedAuthentication, error) {
	rawID, err := b64x.Decode(resp.RawID)
	if err != nil || !bytes.Equal(rawID, cred.CredentialID) {
		return nil, fmt.Errorf("%w: credential id mismatch", common.ErrInvalidAuthentication)
	}
	if cred.UserID != user.ID {
		return nil, fmt.Errorf("%w: credential belongs to another user", common.ErrInvalidAuthentication)
	}

	parsed, err := parseAuthentication(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidAuthentication, err)
	}
	if !parsed.Response.AuthenticatorData.Flags.UserVerified() {
		return nil, fmt.Errorf("%w: user verification required", common.ErrInvalidAuthentication)
	}

	session := webauthn.SessionData{
		Challenge:            b64x.Encode(challenge),
		RelyingPartyID:       rp.rpID,
		UserID:               []byte(user.ID),
		AllowedCredentialIDs: [][]byte{cred.CredentialID},
		UserVerification:     protocol.VerificationRequired,
		Expires:              expires,
	}

	validated, err := rp.webAuthn.ValidateLogin(newWebAuthnUser(user, []*models.Credential{cred}), session, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidAuthentication, describe(err))
	}

	asserted := parsed.Response.AuthenticatorData.Counter
	counterless := cred.Counter == 0 && asserted == 0
	if validated.Authenticator.CloneWarning || (!counterless && asserted <= cred.Counter) {
		return nil, fmt.Errorf("%w: counter %d not above %d", common.ErrReplayDetected, asserted, cred.Counter)
	}

	return &models.VerifiedAuthentication{
		CredentialID:     cred.CredentialID,
		Counter:          asserted,
		CounterSupported: !counterless,
	}, nil
}

// W3C JSON shapes understood by the protocol parsers.
type attestationBody struct {
	ID       string `json:"id"`
	RawID    string `json:"rawId"`
	Type     string `json:"type"`
	Response struct {
		ClientDataJSON    string   `json:"clientDataJSON"`
		AttestationObject string   `json:"attestationObject"`
		Transports        []string `json:"transports,omitempty"`
	} `json:"response"`
}

type assertionBody struct {
	ID       string `json:"id"`
	RawID    string `json:"rawId"`
	Type     string `json:"type"`
	Response struct {
		ClientDataJSON    string `json:"clientDataJSON"`
		AuthenticatorData string `json:"authenticatorData"`
		Signature         string `json:"signature"`
		UserHandle        string `json:"userHandle,omitempty"`
	} `json:"response"`
}

func parseRegistration(resp *models.RegistrationResponse) (*protocol.ParsedCredentialCreationData, error) {
	var body attestationBody
	body.ID, body.RawID, body.Type = resp.CredentialID, resp.RawID, resp.Type
	body.Response.ClientDataJSON = resp.ClientDataJSON
	body.Response.AttestationObject = resp.AttestationObject
	body.Response.Transports = resp.Transports

	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return protocol.ParseCredentialCreationResponseBody(bytes.NewReader(b))
}

func parseAuthentication(resp *models.AuthenticationResponse) (*protocol.ParsedCredentialAssertionData, error) {
	var body assertionBody
	body.ID, body.RawID, body.Type = resp.CredentialID, resp.RawID, resp.Type
	body.Response.ClientDataJSON = resp.ClientDataJSON
	body.Response.AuthenticatorData = resp.AuthenticatorData
	body.Response.Signature = resp.Signature
	body.Response.UserHandle = resp.UserHandle

	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return protocol.ParseCredentialRequestResponseBody(bytes.NewReader(b))
}

// describe keeps the developer detail go-webauthn attaches to its errors.
func describe(err error) string {
	var perr *protocol.Error
	if errors.As(err, &perr) && perr.DevInfo != "" {
		return perr.Details + ": " + perr.DevInfo
	}
	return err.Error()
}
