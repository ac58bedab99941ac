package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/dmitrijs2005/signoff/internal/b64x"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

const (
	flagUP = 0x01
	flagUV = 0x04
	flagBE = 0x08
	flagBS = 0x10
	flagAT = 0x40
)

// softAuthenticator is a software ES256 authenticator producing "none"
// attestations and assertions the way a browser would relay them.
type softAuthenticator struct {
	key     *ecdsa.PrivateKey
	credID  []byte
	rpID    string
	origin  string
	counter uint32
	// extra flags, e.g. flagBE|flagBS for a synced passkey
	extra byte
}

func newSoftAuthenticator(t *testing.T, rpID, origin string) *softAuthenticator {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	id := make([]byte, 16)
	_, err = rand.Read(id)
	require.NoError(t, err)
	return &softAuthenticator{key: key, credID: id, rpID: rpID, origin: origin}
}

func (a *softAuthenticator) cosePublicKey(t *testing.T) []byte {
	t.Helper()
	pub, err := a.key.PublicKey.ECDH()
	require.NoError(t, err)
	raw := pub.Bytes() // 0x04 || X || Y
	b, err := cbor.Marshal(map[int]any{1: 2, 3: -7, -1: 1, -2: raw[1:33], -3: raw[33:65]})
	require.NoError(t, err)
	return b
}

func (a *softAuthenticator) clientData(t *testing.T, typ, challenge, origin string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"type":        typ,
		"challenge":   challenge,
		"origin":      origin,
		"crossOrigin": false,
	})
	require.NoError(t, err)
	return b
}

func (a *softAuthenticator) authData(flags byte, attested []byte) []byte {
	rpHash := sha256.Sum256([]byte(a.rpID))
	out := append([]byte{}, rpHash[:]...)
	out = append(out, flags|a.extra)
	out = binary.BigEndian.AppendUint32(out, a.counter)
	return append(out, attested...)
}

func (a *softAuthenticator) register(t *testing.T, challenge string) *models.RegistrationResponse {
	t.Helper()

	attested := make([]byte, 16) // zero AAGUID
	attested = binary.BigEndian.AppendUint16(attested, uint16(len(a.credID)))
	attested = append(attested, a.credID...)
	attested = append(attested, a.cosePublicKey(t)...)

	attObj, err := cbor.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": a.authData(flagUP|flagUV|flagAT, attested),
	})
	require.NoError(t, err)

	id := b64x.Encode(a.credID)
	return &models.RegistrationResponse{
		CredentialID:      id,
		RawID:             id,
		Type:              "public-key",
		ClientDataJSON:    b64x.Encode(a.clientData(t, "webauthn.create", challenge, a.origin)),
		AttestationObject: b64x.Encode(attObj),
		Transports:        []string{"internal"},
	}
}

type assertOptions struct {
	origin   string
	noUV     bool
	userID   string
	signWith *ecdsa.PrivateKey
}

func (a *softAuthenticator) assert(t *testing.T, challenge []byte, opts assertOptions) *models.AuthenticationResponse {
	t.Helper()

	origin := a.origin
	if opts.origin != "" {
		origin = opts.origin
	}
	flags := byte(flagUP | flagUV)
	if opts.noUV {
		flags = flagUP
	}
	key := a.key
	if opts.signWith != nil {
		key = opts.signWith
	}

	authData := a.authData(flags, nil)
	clientData := a.clientData(t, "webauthn.get", b64x.Encode(challenge), origin)
	clientHash := sha256.Sum256(clientData)
	digest := sha256.Sum256(append(append([]byte{}, authData...), clientHash[:]...))
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	require.NoError(t, err)

	id := b64x.Encode(a.credID)
	resp := &models.AuthenticationResponse{
		CredentialID:      id,
		RawID:             id,
		Type:              "public-key",
		ClientDataJSON:    b64x.Encode(clientData),
		AuthenticatorData: b64x.Encode(authData),
		Signature:         b64x.Encode(sig),
	}
	if opts.userID != "" {
		resp.UserHandle = b64x.Encode([]byte(opts.userID))
	}
	return resp
}
