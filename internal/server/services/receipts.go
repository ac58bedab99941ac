package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/signoff/internal/common"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/dmitrijs2005/signoff/internal/server/receipts"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/repomanager"
)

type ReceiptService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       receipts.Store
}

// NewReceiptService accepts a nil store when receipts are disabled.
func NewReceiptService(db *sql.DB, m repomanager.RepositoryManager, store receipts.Store) *ReceiptService {
	return &ReceiptService{db: db, repomanager: m, store: store}
}

// GetReceiptURL returns a presigned link to the receipt of an approved
// request. Package members only.
func (s *ReceiptService) GetReceiptURL(ctx context.Context, actingUserID string, requestID int64) (string, error) {
	req, err := s.repomanager.Requests(s.db).Get(ctx, requestID)
	if err != nil {
		return "", err
	}
	if err := requireMember(ctx, s.repomanager, s.db, req.PackageID, actingUserID); err != nil {
		return "", err
	}
	if req.Status != models.StatusApproved || s.store == nil {
		return "", common.ErrorNotFound
	}

	return s.store.URL(ctx, req.PackageID, req.ID)
}
