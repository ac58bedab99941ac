package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/signoff/internal/common"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/repomanager"
)

// Directory resolves notification targets for the notify sinks.
type Directory struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	devices     *DeviceService
}

func NewDirectory(db *sql.DB, m repomanager.RepositoryManager) *Directory {
	return &Directory{db: db, repomanager: m, devices: NewDeviceService(db, m)}
}

// Users skips ids that no longer exist.
func (d *Directory) Users(ctx context.Context, ids []string) ([]*models.User, error) {
	repo := d.repomanager.Users(d.db)

	var result []*models.User
	for _, id := range ids {
		u, err := repo.Get(ctx, id)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				continue
			}
			return nil, err
		}
		result = append(result, u)
	}
	return result, nil
}

func (d *Directory) Devices(ctx context.Context, userIDs []string) ([]*models.Device, error) {
	return d.devices.ListDevicesForUsers(ctx, userIDs)
}

func (d *Directory) Receipt(ctx context.Context, requestID int64) (*models.Receipt, error) {
	req, err := d.repomanager.Requests(d.db).Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	list, err := d.repomanager.Approvals(d.db).ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	r := &models.Receipt{Request: *req, GeneratedAt: now().UTC()}
	for _, a := range list {
		r.Approvals = append(r.Approvals, *a)
	}
	return r, nil
}
