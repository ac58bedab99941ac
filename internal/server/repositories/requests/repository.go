// Package requests stores approval requests.
package requests

import (
	"context"

	"github.com/dmitrijs2005/signoff/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, req *models.ApprovalRequest) (*models.ApprovalRequest, error)
	Get(ctx context.Context, id int64) (*models.ApprovalRequest, error)
	ListByPackage(ctx context.Context, packageID int64) ([]*models.ApprovalRequest, error)

	// Transition moves a pending request to status. It reports false, with a
	// nil error, when the request was no longer pending.
	Transition(ctx context.Context, id int64, status models.RequestStatus) (bool, error)
}
