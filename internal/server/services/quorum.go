package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/signoff/internal/common"
	"github.com/dmitrijs2005/signoff/internal/dbx"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/repomanager"
)

// QuorumEngine records endorsements and decides whether every approval group
// of a request's package has been satisfied.
type QuorumEngine struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	lifecycle   *RequestService
}

func NewQuorumEngine(db *sql.DB, m repomanager.RepositoryManager, lifecycle *RequestService) *QuorumEngine {
	return &QuorumEngine{db: db, repomanager: m, lifecycle: lifecycle}
}

// RecordEndorsement stores an approval of requestID by userID. The caller
// must already have verified the user's assertion for this request.
func (q *QuorumEngine) RecordEndorsement(ctx context.Context, requestID int64, userID string, credentialID []byte) error {
	return q.recordEndorsement(ctx, q.db, requestID, userID, credentialID)
}

// recordEndorsement runs on db so the endorsement flow can share its
// transaction. Approved requests still accept late endorsements; rejected
// ones do not.
func (q *QuorumEngine) recordEndorsement(ctx context.Context, db dbx.DBTX, requestID int64, userID string, credentialID []byte) error {
	req, err := q.repomanager.Requests(db).Get(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status == models.StatusRejected {
		return common.ErrRequestClosed
	}

	return q.repomanager.Approvals(db).Create(ctx, &models.Approval{
		RequestID:    requestID,
		UserID:       userID,
		CredentialID: credentialID,
	})
}

// Evaluate recomputes group coverage and approves a pending request once
// every group is covered. A package without groups never reaches quorum.
func (q *QuorumEngine) Evaluate(ctx context.Context, requestID int64) (*models.Evaluation, error) {
	req, err := q.repomanager.Requests(q.db).Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	groups, err := q.repomanager.Groups(q.db).ListByPackage(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}
	satisfied, err := q.repomanager.Approvals(q.db).SatisfiedGroupIDs(ctx, requestID)
	if err != nil {
		return nil, err
	}

	ev := &models.Evaluation{
		RequestID:       requestID,
		PackageID:       req.PackageID,
		Status:          req.Status,
		RequiredGroups:  make([]int64, 0, len(groups)),
		SatisfiedGroups: satisfied,
	}
	for _, g := range groups {
		ev.RequiredGroups = append(ev.RequiredGroups, g.ID)
	}
	ev.QuorumMet = quorumMet(ev.RequiredGroups, satisfied)

	if !ev.QuorumMet || req.Status != models.StatusPending {
		return ev, nil
	}

	changed, err := q.lifecycle.Approve(ctx, requestID)
	if err != nil {
		return nil, err
	}
	ev.Transitioned = changed
	// lost to a concurrent evaluator or reject; report what is stored
	if !changed {
		cur, err := q.repomanager.Requests(q.db).Get(ctx, requestID)
		if err != nil {
			return nil, err
		}
		ev.Status = cur.Status
		return ev, nil
	}
	ev.Status = models.StatusApproved
	return ev, nil
}

func quorumMet(required, satisfied []int64) bool {
	if len(required) == 0 {
		return false
	}
	have := make(map[int64]struct{}, len(satisfied))
	for _, id := range satisfied {
		have[id] = struct{}{}
	}
	for _, id := range required {
		if _, ok := have[id]; !ok {
			return false
		}
	}
	return true
}
