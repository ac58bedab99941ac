// Package groups stores approval groups and their members.
//
// A user belongs to at most one group per package. The constraint lives in
// the approval_group_members table; callers are still expected to check
// FindMembership first so the conflict is reported before any write.
package groups

import (
	"context"

	"github.com/dmitrijs2005/signoff/internal/server/models"
)

type Repository interface {
	// Create inserts g only if actingUserID is a member of g.PackageID.
	// Otherwise it returns ErrorForbidden and writes nothing.
	Create(ctx context.Context, g *models.ApprovalGroup, actingUserID string) (*models.ApprovalGroup, error)
	Get(ctx context.Context, id int64) (*models.ApprovalGroup, error)
	ListByPackage(ctx context.Context, packageID int64) ([]*models.ApprovalGroup, error)

	AddMember(ctx context.Context, m *models.GroupMember) error
	RemoveMember(ctx context.Context, groupID int64, userID string) error
	ListMembers(ctx context.Context, groupID int64) ([]*models.GroupMember, error)

	// FindMembership returns the group membership of userID within
	// packageID, or ErrorNotFound.
	FindMembership(ctx context.Context, packageID int64, userID string) (*models.GroupMember, error)
	// ListMemberUserIDs returns every user in any group of packageID.
	ListMemberUserIDs(ctx context.Context, packageID int64) ([]string, error)
}
