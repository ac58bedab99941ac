package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/signoff/internal/common"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/repomanager"
)

// CredentialService is the credential store plus the registration ceremony
// that feeds it.
type CredentialService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	challenges  *ChallengeService
}

func NewCredentialService(db *sql.DB, m repomanager.RepositoryManager, challenges *ChallengeService) *CredentialService {
	return &CredentialService{db: db, repomanager: m, challenges: challenges}
}

// RegisterCredential stores a verified credential. A duplicate credential id
// yields ErrorConflict.
func (s *CredentialService) RegisterCredential(ctx context.Context, c *models.Credential) error {
	return s.repomanager.Credentials(s.db).Create(ctx, c)
}

func (s *CredentialService) BeginRegistration(ctx context.Context, userID string, deviceID *int64) (*models.RegistrationChallenge, error) {
	return s.challenges.IssueRegistrationChallenge(ctx, userID, deviceID)
}

// FinishRegistration verifies the attestation for challenge and stores the
// resulting credential.
func (s *CredentialService) FinishRegistration(ctx context.Context, userID, challenge string, resp *models.RegistrationResponse) (*models.Credential, error) {
	v, deviceID, err := s.challenges.VerifyRegistration(ctx, userID, challenge, resp)
	if err != nil {
		return nil, err
	}

	c := &models.Credential{
		CredentialID: v.CredentialID,
		UserID:       userID,
		DeviceID:     deviceID,
		PublicKey:    v.PublicKey,
		Counter:      v.Counter,
		DeviceType:   v.DeviceType,
		BackedUp:     v.BackedUp,
		Transports:   v.Transports,
		AAGUID:       v.AAGUID,
	}
	if err := s.RegisterCredential(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CredentialService) FindByCredentialID(ctx context.Context, credentialID []byte) (*models.Credential, error) {
	return s.repomanager.Credentials(s.db).FindByCredentialID(ctx, credentialID)
}

func (s *CredentialService) ListByUser(ctx context.Context, userID string) ([]*models.Credential, error) {
	return s.repomanager.Credentials(s.db).ListByUser(ctx, userID)
}

// DiscoveryCredential is the most recently registered credential of a
// device. Older ones stay valid for endorsing.
func (s *CredentialService) DiscoveryCredential(ctx context.Context, userID string, deviceID int64) (*models.Credential, error) {
	list, err := s.repomanager.Credentials(s.db).ListByUserAndDevice(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, common.ErrorNotFound
	}
	return list[len(list)-1], nil
}

func (s *CredentialService) BumpCounter(ctx context.Context, credentialID []byte, newCounter uint32) error {
	return s.repomanager.Credentials(s.db).BumpCounter(ctx, credentialID, newCounter)
}
