package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/signoff/internal/b64x"
	"github.com/dmitrijs2005/signoff/internal/common"
	"github.com/dmitrijs2005/signoff/internal/dbx"
	"github.com/dmitrijs2005/signoff/internal/logging"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/repomanager"
)

// EndorsementService runs the endorse flow: authorization, assertion
// verification, approval plus counter bump in one transaction, then quorum
// evaluation on fresh reads.
type EndorsementService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	challenges  *ChallengeService
	quorum      *QuorumEngine
	log         logging.Logger
}

func NewEndorsementService(db *sql.DB, m repomanager.RepositoryManager, challenges *ChallengeService,
	quorum *QuorumEngine, log logging.Logger) *EndorsementService {
	return &EndorsementService{
		db:          db,
		repomanager: m,
		challenges:  challenges,
		quorum:      quorum,
		log:         log.With("module", "endorsements"),
	}
}

func (s *EndorsementService) Begin(ctx context.Context, userID string, requestID int64) (*models.AuthenticationChallenge, error) {
	return s.challenges.IssueAuthenticationChallenge(ctx, requestID, userID)
}

// Endorse records userID's approval of requestID if resp is a valid
// assertion over the challenge issued at issuedAt.
func (s *EndorsementService) Endorse(ctx context.Context, userID string, requestID int64, issuedAt time.Time,
	resp *models.AuthenticationResponse) (*models.Evaluation, error) {
	req, err := s.repomanager.Requests(s.db).Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status == models.StatusRejected {
		return nil, common.ErrRequestClosed
	}
	if err := s.challenges.requireGroupMember(ctx, req.PackageID, userID); err != nil {
		return nil, err
	}

	cred, err := s.lookupCredential(ctx, userID, resp)
	if err != nil {
		return nil, err
	}

	v, err := s.challenges.VerifyAuthentication(ctx, requestID, userID, issuedAt, cred, resp)
	if err != nil {
		s.log.Warn(ctx, "endorsement rejected", "request_id", requestID, "user_id", userID, "error", err)
		return nil, err
	}

	// The approval goes in first: its (request, user) unique index settles a
	// same-user race as Conflict before the counter is compared.
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.quorum.recordEndorsement(ctx, tx, requestID, userID, cred.CredentialID); err != nil {
			return err
		}
		if !v.CounterSupported {
			return nil
		}
		return s.repomanager.Credentials(tx).BumpCounter(ctx, cred.CredentialID, v.Counter)
	})
	if err != nil {
		if errors.Is(err, common.ErrReplayDetected) {
			s.log.Warn(ctx, "signature counter did not increase", "request_id", requestID, "user_id", userID)
		}
		return nil, err
	}

	s.log.Info(ctx, "endorsement recorded", "request_id", requestID, "user_id", userID)

	return s.quorum.Evaluate(ctx, requestID)
}

// lookupCredential resolves the credential the assertion claims to use. Any
// mismatch is an authentication failure rather than NotFound.
func (s *EndorsementService) lookupCredential(ctx context.Context, userID string, resp *models.AuthenticationResponse) (*models.Credential, error) {
	id, err := b64x.Decode(resp.RawID)
	if err != nil || len(id) == 0 {
		return nil, common.ErrInvalidAuthentication
	}

	cred, err := s.repomanager.Credentials(s.db).FindByCredentialID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidAuthentication
		}
		return nil, err
	}
	if cred.UserID != userID {
		return nil, common.ErrInvalidAuthentication
	}
	return cred, nil
}
