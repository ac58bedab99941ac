// Package approvals stores endorsements and answers the quorum join.
package approvals

import (
	"context"

	"github.com/dmitrijs2005/signoff/internal/server/models"
)

type Repository interface {
	// Create records an endorsement. A second endorsement of the same request
	// by the same user yields ErrorConflict.
	Create(ctx context.Context, a *models.Approval) error
	ListByRequest(ctx context.Context, requestID int64) ([]*models.Approval, error)

	// SatisfiedGroupIDs returns the distinct ids of groups of the request's
	// package that have at least one endorsing member, in ascending order.
	SatisfiedGroupIDs(ctx context.Context, requestID int64) ([]int64, error)
}
