package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/signoff/internal/common"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/repomanager"
)

// GroupService maintains the membership index: package -> approval groups ->
// users, with at most one group per user per package.
type GroupService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewGroupService(db *sql.DB, m repomanager.RepositoryManager) *GroupService {
	return &GroupService{db: db, repomanager: m}
}

// CreateGroup creates an empty group. The package must exist and
// actingUserID must be one of its members; otherwise ErrorForbidden.
func (s *GroupService) CreateGroup(ctx context.Context, actingUserID string, packageID int64, name string) (*models.ApprovalGroup, error) {
	exists, err := s.repomanager.Packages(s.db).Exists(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, common.ErrorForbidden
	}
	if err := requireMember(ctx, s.repomanager, s.db, packageID, actingUserID); err != nil {
		return nil, err
	}

	return s.repomanager.Groups(s.db).Create(ctx, &models.ApprovalGroup{PackageID: packageID, Name: name}, actingUserID)
}

// AddMember puts userID into the group. userID must already be a package
// member, otherwise ErrorNotFound. A user already in any group of the same
// package yields ErrorConflict.
func (s *GroupService) AddMember(ctx context.Context, actingUserID string, groupID int64, userID string) (*models.GroupMember, error) {
	repo := s.repomanager.Groups(s.db)

	g, err := repo.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.repomanager, s.db, g.PackageID, actingUserID); err != nil {
		return nil, err
	}
	ok, err := s.repomanager.Packages(s.db).IsMember(ctx, g.PackageID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %s is not a package member: %w", userID, common.ErrorNotFound)
	}

	_, err = repo.FindMembership(ctx, g.PackageID, userID)
	switch {
	case err == nil:
		return nil, common.ErrorConflict
	case !errors.Is(err, common.ErrorNotFound):
		return nil, err
	}

	m := &models.GroupMember{GroupID: g.ID, PackageID: g.PackageID, UserID: userID}
	if err := repo.AddMember(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// RemoveMember is idempotent.
func (s *GroupService) RemoveMember(ctx context.Context, actingUserID string, groupID int64, userID string) error {
	repo := s.repomanager.Groups(s.db)

	g, err := repo.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if err := requireMember(ctx, s.repomanager, s.db, g.PackageID, actingUserID); err != nil {
		return err
	}

	return repo.RemoveMember(ctx, groupID, userID)
}

func (s *GroupService) GetGroup(ctx context.Context, groupID int64) (*models.ApprovalGroup, error) {
	return s.repomanager.Groups(s.db).Get(ctx, groupID)
}

func (s *GroupService) ListGroups(ctx context.Context, packageID int64) ([]*models.ApprovalGroup, error) {
	return s.repomanager.Groups(s.db).ListByPackage(ctx, packageID)
}

func (s *GroupService) ListMembers(ctx context.Context, groupID int64) ([]*models.GroupMember, error) {
	return s.repomanager.Groups(s.db).ListMembers(ctx, groupID)
}
