// Package services contains the server-side business logic: package and
// group administration, credential registration, the challenge
// issuer/verifier, the quorum engine and the request lifecycle.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/signoff/internal/common"
	"github.com/dmitrijs2005/signoff/internal/dbx"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/repomanager"
)

// now is the service clock.
var now = time.Now

// PackageService is the package/membership collaborator every authorization
// check goes through.
type PackageService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewPackageService(db *sql.DB, m repomanager.RepositoryManager) *PackageService {
	return &PackageService{db: db, repomanager: m}
}

func (s *PackageService) IsMember(ctx context.Context, packageID int64, userID string) (bool, error) {
	return s.repomanager.Packages(s.db).IsMember(ctx, packageID, userID)
}

func (s *PackageService) PackageExists(ctx context.Context, packageID int64) (bool, error) {
	return s.repomanager.Packages(s.db).Exists(ctx, packageID)
}

func (s *PackageService) ResolveOwner(ctx context.Context, packageID int64) (string, error) {
	p, err := s.repomanager.Packages(s.db).Get(ctx, packageID)
	if err != nil {
		return "", err
	}
	return p.OwnerID, nil
}

// RequireMember returns ErrorForbidden unless userID is a member of
// packageID. Unknown packages are reported the same way.
func (s *PackageService) RequireMember(ctx context.Context, packageID int64, userID string) error {
	return requireMember(ctx, s.repomanager, s.db, packageID, userID)
}

// CreatePackage creates a package owned by ownerID, who becomes its first
// member.
func (s *PackageService) CreatePackage(ctx context.Context, ownerID, name string) (*models.Package, error) {
	var p *models.Package
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Packages(tx)

		var err error
		p, err = repo.Create(ctx, &models.Package{Name: name, OwnerID: ownerID})
		if err != nil {
			return fmt.Errorf("error creating package: %w", err)
		}
		if err := repo.AddMember(ctx, p.ID, ownerID); err != nil {
			return fmt.Errorf("error adding owner: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// AddMemberByEmail adds the user registered under email to the package.
func (s *PackageService) AddMemberByEmail(ctx context.Context, actingUserID string, packageID int64, email string) (*models.User, error) {
	if err := s.RequireMember(ctx, packageID, actingUserID); err != nil {
		return nil, err
	}

	u, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := s.repomanager.Packages(s.db).AddMember(ctx, packageID, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// RemoveMember drops userID from the package and from its approval group.
// The owner cannot be removed.
func (s *PackageService) RemoveMember(ctx context.Context, actingUserID string, packageID int64, userID string) error {
	if err := s.RequireMember(ctx, packageID, actingUserID); err != nil {
		return err
	}

	owner, err := s.ResolveOwner(ctx, packageID)
	if err != nil {
		return err
	}
	if owner == userID {
		return common.ErrorForbidden
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		groups := s.repomanager.Groups(tx)
		m, err := groups.FindMembership(ctx, packageID, userID)
		switch {
		case err == nil:
			if err := groups.RemoveMember(ctx, m.GroupID, userID); err != nil {
				return err
			}
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}
		return s.repomanager.Packages(tx).RemoveMember(ctx, packageID, userID)
	})
}

func (s *PackageService) ListMembers(ctx context.Context, actingUserID string, packageID int64) ([]*models.PackageMember, error) {
	if err := s.RequireMember(ctx, packageID, actingUserID); err != nil {
		return nil, err
	}
	return s.repomanager.Packages(s.db).ListMembers(ctx, packageID)
}

// ListPackages returns the packages userID belongs to.
func (s *PackageService) ListPackages(ctx context.Context, userID string) ([]*models.Package, error) {
	return s.repomanager.Packages(s.db).ListForUser(ctx, userID)
}

// GetPackage returns packageID to one of its members. Unknown packages are
// reported as ErrorForbidden, like every other membership check.
func (s *PackageService) GetPackage(ctx context.Context, actingUserID string, packageID int64) (*models.Package, error) {
	if err := s.RequireMember(ctx, packageID, actingUserID); err != nil {
		return nil, err
	}
	return s.repomanager.Packages(s.db).Get(ctx, packageID)
}

func requireMember(ctx context.Context, m repomanager.RepositoryManager, db dbx.DBTX, packageID int64, userID string) error {
	ok, err := m.Packages(db).IsMember(ctx, packageID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrorForbidden
	}
	return nil
}
