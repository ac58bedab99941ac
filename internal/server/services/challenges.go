package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/signoff/internal/b64x"
	"github.com/dmitrijs2005/signoff/internal/common"
	"github.com/dmitrijs2005/signoff/internal/server/auth"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/signoff/internal/server/sessions"
	"github.com/go-webauthn/webauthn/protocol"
)

// clockSkew bounds how far in the future a client supplied issuedAt may be.
const clockSkew = 5 * time.Second

// ChallengeService issues and verifies WebAuthn challenges.
//
// Registration challenges are random and kept once in the session store.
// Authentication challenges are derived from (request, user, issuedAt) with
// the server secret, so nothing is stored between issuing and verifying; the
// approvals uniqueness constraint bounds what a replay could achieve.
type ChallengeService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	rp          auth.RelyingParty
	deriver     *auth.ChallengeDeriver
	sessions    sessions.Store
}

func NewChallengeService(db *sql.DB, m repomanager.RepositoryManager, rp auth.RelyingParty,
	deriver *auth.ChallengeDeriver, store sessions.Store) *ChallengeService {
	return &ChallengeService{db: db, repomanager: m, rp: rp, deriver: deriver, sessions: store}
}

// IssueRegistrationChallenge starts a credential registration for userID,
// optionally bound to one of the user's devices. The user's existing
// credentials (only those of the device, when given) are excluded.
func (s *ChallengeService) IssueRegistrationChallenge(ctx context.Context, userID string, deviceID *int64) (*models.RegistrationChallenge, error) {
	user, err := s.repomanager.Users(s.db).Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	creds := s.repomanager.Credentials(s.db)
	var exclude []*models.Credential
	if deviceID != nil {
		d, err := s.repomanager.Devices(s.db).Get(ctx, *deviceID)
		if err != nil {
			return nil, err
		}
		if d.UserID != userID {
			return nil, common.ErrorForbidden
		}
		exclude, err = creds.ListByUserAndDevice(ctx, userID, d.ID)
		if err != nil {
			return nil, err
		}
	} else {
		exclude, err = creds.ListByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	challenge, session, err := s.rp.BeginRegistration(user, exclude)
	if err != nil {
		return nil, fmt.Errorf("error starting registration: %w", err)
	}

	if err := s.sessions.Save(ctx, &sessions.Registration{Session: *session, DeviceID: deviceID}); err != nil {
		return nil, err
	}

	return challenge, nil
}

// VerifyRegistration consumes the registration session of challenge and
// verifies resp against it. Nothing is persisted.
func (s *ChallengeService) VerifyRegistration(ctx context.Context, userID, challenge string, resp *models.RegistrationResponse) (*models.VerifiedRegistration, *int64, error) {
	reg, err := s.sessions.Take(ctx, challenge)
	if err != nil {
		return nil, nil, err
	}
	if !reg.Session.Expires.IsZero() && now().After(reg.Session.Expires) {
		return nil, nil, common.ErrChallengeExpired
	}

	user, err := s.repomanager.Users(s.db).Get(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	v, err := s.rp.FinishRegistration(user, reg.Session, resp)
	if err != nil {
		return nil, nil, err
	}
	return v, reg.DeviceID, nil
}

// IssueAuthenticationChallenge produces the challenge userID signs to endorse
// requestID.
func (s *ChallengeService) IssueAuthenticationChallenge(ctx context.Context, requestID int64, userID string) (*models.AuthenticationChallenge, error) {
	req, err := s.repomanager.Requests(s.db).Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status == models.StatusRejected {
		return nil, common.ErrRequestClosed
	}

	if err := s.requireGroupMember(ctx, req.PackageID, userID); err != nil {
		return nil, err
	}

	creds, err := s.repomanager.Credentials(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, common.ErrNoCredentials
	}

	issuedAt := time.UnixMilli(now().UnixMilli()).UTC()
	challenge, err := s.deriver.Derive(requestID, userID, issuedAt)
	if err != nil {
		return nil, err
	}

	allowed := make([]string, 0, len(creds))
	for _, c := range creds {
		allowed = append(allowed, b64x.Encode(c.CredentialID))
	}

	return &models.AuthenticationChallenge{
		RequestID:          requestID,
		Challenge:          b64x.Encode(challenge),
		IssuedAt:           issuedAt,
		Timeout:            s.rp.Timeout(),
		RPID:               s.rp.ID(),
		AllowedCredentials: allowed,
		UserVerification:   string(protocol.VerificationRequired),
	}, nil
}

// VerifyAuthentication re-derives the challenge of (requestID, userID,
// issuedAt) and checks resp against cred. It does not touch storage beyond
// loading the user.
func (s *ChallengeService) VerifyAuthentication(ctx context.Context, requestID int64, userID string, issuedAt time.Time,
	cred *models.Credential, resp *models.AuthenticationResponse) (*models.VerifiedAuthentication, error) {
	t := now()
	expires := issuedAt.Add(s.rp.Timeout())
	if t.After(expires) {
		return nil, common.ErrChallengeExpired
	}
	if issuedAt.After(t.Add(clockSkew)) {
		return nil, fmt.Errorf("%w: challenge issued in the future", common.ErrInvalidAuthentication)
	}

	user, err := s.repomanager.Users(s.db).Get(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidAuthentication
		}
		return nil, err
	}

	challenge, err := s.deriver.Derive(requestID, userID, issuedAt)
	if err != nil {
		return nil, err
	}

	return s.rp.FinishLogin(user, cred, challenge, expires, resp)
}

func (s *ChallengeService) requireGroupMember(ctx context.Context, packageID int64, userID string) error {
	_, err := s.repomanager.Groups(s.db).FindMembership(ctx, packageID, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorForbidden
		}
		return err
	}
	return nil
}
