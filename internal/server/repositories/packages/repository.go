// Package packages stores packages and their members.
package packages

import (
	"context"

	"github.com/dmitrijs2005/signoff/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, p *models.Package) (*models.Package, error)
	Get(ctx context.Context, id int64) (*models.Package, error)
	Exists(ctx context.Context, id int64) (bool, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Package, error)

	// AddMember returns ErrorConflict for an existing member and
	// ErrorNotFound for an unknown package or user.
	AddMember(ctx context.Context, packageID int64, userID string) error
	RemoveMember(ctx context.Context, packageID int64, userID string) error
	IsMember(ctx context.Context, packageID int64, userID string) (bool, error)
	ListMembers(ctx context.Context, packageID int64) ([]*models.PackageMember, error)
}
