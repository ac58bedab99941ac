package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/signoff/internal/common"
	"github.com/dmitrijs2005/signoff/internal/logging"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/dmitrijs2005/signoff/internal/server/notify"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/repomanager"
)

// RequestService owns the request state machine: pending -> approved or
// pending -> rejected. Terminal states never change.
type RequestService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	publisher   notify.Publisher
	log         logging.Logger
}

func NewRequestService(db *sql.DB, m repomanager.RepositoryManager, pub notify.Publisher, log logging.Logger) *RequestService {
	return &RequestService{db: db, repomanager: m, publisher: pub, log: log.With("module", "requests")}
}

// Create opens a pending request and notifies every approval group member of
// the package.
func (s *RequestService) Create(ctx context.Context, actingUserID string, packageID int64, title string) (*models.ApprovalRequest, error) {
	if err := requireMember(ctx, s.repomanager, s.db, packageID, actingUserID); err != nil {
		return nil, err
	}

	req, err := s.repomanager.Requests(s.db).Create(ctx, &models.ApprovalRequest{PackageID: packageID, Title: title})
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	targets, err := s.repomanager.Groups(s.db).ListMemberUserIDs(ctx, packageID)
	if err != nil {
		s.log.Error(ctx, "resolving notification targets", "request_id", req.ID, "error", err)
	}
	s.publisher.Publish(ctx, notify.Event{
		Kind:          notify.KindRequestCreated,
		PackageID:     packageID,
		RequestID:     req.ID,
		Title:         req.Title,
		TargetUserIDs: targets,
	})

	s.log.Info(ctx, "request created", "request_id", req.ID, "package_id", packageID)
	return req, nil
}

// Approve moves a pending request to approved. It reports whether this call
// made the transition; only that caller emits request-approved.
func (s *RequestService) Approve(ctx context.Context, requestID int64) (bool, error) {
	changed, err := s.repomanager.Requests(s.db).Transition(ctx, requestID, models.StatusApproved)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	req, err := s.repomanager.Requests(s.db).Get(ctx, requestID)
	if err != nil {
		s.log.Error(ctx, "loading approved request", "request_id", requestID, "error", err)
		return true, nil
	}

	var targets []string
	members, err := s.repomanager.Packages(s.db).ListMembers(ctx, req.PackageID)
	if err != nil {
		s.log.Error(ctx, "resolving notification targets", "request_id", requestID, "error", err)
	}
	for _, m := range members {
		targets = append(targets, m.UserID)
	}

	s.publisher.Publish(ctx, notify.Event{
		Kind:          notify.KindRequestApproved,
		PackageID:     req.PackageID,
		RequestID:     req.ID,
		Title:         req.Title,
		TargetUserIDs: targets,
	})

	s.log.Info(ctx, "request approved", "request_id", requestID, "package_id", req.PackageID)
	return true, nil
}

// Reject closes a pending request. Package members only.
func (s *RequestService) Reject(ctx context.Context, actingUserID string, requestID int64) (*models.ApprovalRequest, error) {
	repo := s.repomanager.Requests(s.db)

	req, err := repo.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.repomanager, s.db, req.PackageID, actingUserID); err != nil {
		return nil, err
	}
	if req.Status.IsTerminal() {
		return nil, common.ErrRequestClosed
	}

	changed, err := repo.Transition(ctx, requestID, models.StatusRejected)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, common.ErrRequestClosed
	}

	s.log.Info(ctx, "request rejected", "request_id", requestID, "by", actingUserID)
	return repo.Get(ctx, requestID)
}

func (s *RequestService) Get(ctx context.Context, requestID int64) (*models.ApprovalRequest, error) {
	return s.repomanager.Requests(s.db).Get(ctx, requestID)
}

func (s *RequestService) ListByPackage(ctx context.Context, packageID int64) ([]*models.ApprovalRequest, error) {
	return s.repomanager.Requests(s.db).ListByPackage(ctx, packageID)
}
