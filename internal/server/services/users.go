package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/signoff/internal/server/auth"
	"github.com/dmitrijs2005/signoff/internal/server/config"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// UserService provisions identities and access tokens for operators. In
// production both come from the identity provider.
type UserService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                          db,
		repomanager:                 m,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
	}
}

func (s *UserService) CreateUser(ctx context.Context, email, displayName string) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).Create(ctx, &models.User{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return u, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.repomanager.Users(s.db).Get(ctx, id)
}

// IssueToken mints an access token for u.
func (s *UserService) IssueToken(u *models.User, validity time.Duration) (string, error) {
	if validity <= 0 {
		validity = s.accessTokenValidityDuration
	}
	return auth.GenerateToken(auth.Principal{UserID: u.ID, Email: u.Email}, s.jwtSecret, validity)
}
