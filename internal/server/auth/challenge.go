package auth

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"
)

// ChallengeSize is the length in bytes of derived authentication challenges.
const ChallengeSize = 32

const challengeInfoLabel = "signoff/authn-challenge/v1"

// ChallengeDeriver computes authentication challenges bound to a request,
// a user and an issue time. Nothing is stored between issue and verify: the
// verifier derives the same value again from the same inputs.
type ChallengeDeriver struct {
	secret []byte
}

func NewChallengeDeriver(secret []byte) (*ChallengeDeriver, error) {
	if len(secret) < ChallengeSize {
		return nil, errors.New("challenge secret too short")
	}
	return &ChallengeDeriver{secret: append([]byte(nil), secret...)}, nil
}

// Derive returns HKDF-SHA256(secret, info) where info encodes requestID,
// issuedAt at millisecond precision and userID.
func (d *ChallengeDeriver) Derive(requestID int64, userID string, issuedAt time.Time) ([]byte, error) {
	info := make([]byte, 0, len(challengeInfoLabel)+16+len(userID))
	info = append(info, challengeInfoLabel...)
	info = binary.BigEndian.AppendUint64(info, uint64(requestID))
	info = binary.BigEndian.AppendUint64(info, uint64(issuedAt.UnixMilli()))
	// userID goes last so no separator is needed
	info = append(info, userID...)

	out := make([]byte, ChallengeSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, d.secret, nil, info), out); err != nil {
		return nil, fmt.Errorf("derive challenge: %w", err)
	}
	return out, nil
}
