// Package sessions keeps pending WebAuthn registration ceremonies in Redis.
// Each entry is readable once and expires with the challenge.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/signoff/internal/common"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "signoff:registration:"

// Registration is a ceremony in flight: the go-webauthn session plus the
// device the new credential should be bound to, if any.
type Registration struct {
	Session  webauthn.SessionData
	DeviceID *int64
}

type Store interface {
	Save(ctx context.Context, r *Registration) error
	// Take returns and deletes the registration for challenge. A missing or
	// already consumed entry yields common.ErrChallengeExpired.
	Take(ctx context.Context, challenge string) (*Registration, error)
}

type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: DefaultPrefix, ttl: ttl}
}

type credentialParameter struct {
	Type      string `json:"type"`
	Algorithm int64  `json:"alg"`
}

type entry struct {
	Challenge        string                `json:"challenge"`
	RelyingPartyID   string                `json:"rp_id"`
	UserID           []byte                `json:"user_id"`
	UserVerification string                `json:"user_verification"`
	Expires          int64                 `json:"expires"` // unix millis
	CredParams       []credentialParameter `json:"cred_params,omitempty"`
	DeviceID         *int64                `json:"device_id,omitempty"`
}

func (s *RedisStore) Save(ctx context.Context, r *Registration) error {
	if r == nil || r.Session.Challenge == "" {
		return errors.New("registration without challenge")
	}

	e := entry{
		Challenge:        r.Session.Challenge,
		RelyingPartyID:   r.Session.RelyingPartyID,
		UserID:           r.Session.UserID,
		UserVerification: string(r.Session.UserVerification),
		Expires:          r.Session.Expires.UnixMilli(),
		DeviceID:         r.DeviceID,
	}
	for _, cp := range r.Session.CredParams {
		e.CredParams = append(e.CredParams, credentialParameter{Type: string(cp.Type), Algorithm: int64(cp.Algorithm)})
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+e.Challenge, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}

	return nil
}

func (s *RedisStore) Take(ctx context.Context, challenge string) (*Registration, error) {
	if challenge == "" {
		return nil, common.ErrChallengeExpired
	}

	data, err := s.client.GetDel(ctx, s.prefix+challenge).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrChallengeExpired
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal registration: %w", err)
	}

	r := &Registration{
		Session: webauthn.SessionData{
			Challenge:        e.Challenge,
			RelyingPartyID:   e.RelyingPartyID,
			UserID:           e.UserID,
			UserVerification: protocol.UserVerificationRequirement(e.UserVerification),
			Expires:          time.UnixMilli(e.Expires),
		},
		DeviceID: e.DeviceID,
	}
	for _, cp := range e.CredParams {
		r.Session.CredParams = append(r.Session.CredParams, protocol.CredentialParameter{
			Type:      protocol.CredentialType(cp.Type),
			Algorithm: webauthncose.COSEAlgorithmIdentifier(cp.Algorithm),
		})
	}

	return r, nil
}
