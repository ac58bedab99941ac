package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/repomanager"
)

type DeviceService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewDeviceService(db *sql.DB, m repomanager.RepositoryManager) *DeviceService {
	return &DeviceService{db: db, repomanager: m}
}

// RegisterDevice upserts a device by push token.
func (s *DeviceService) RegisterDevice(ctx context.Context, userID, name, pushToken string) (*models.Device, error) {
	d, err := s.repomanager.Devices(s.db).Upsert(ctx, &models.Device{UserID: userID, Name: name, PushToken: pushToken})
	if err != nil {
		return nil, fmt.Errorf("error registering device: %w", err)
	}
	return d, nil
}

func (s *DeviceService) ListDevices(ctx context.Context, userID string) ([]*models.Device, error) {
	return s.repomanager.Devices(s.db).ListByUser(ctx, userID)
}

// ListDevicesForUsers returns every device of every user in userIDs.
func (s *DeviceService) ListDevicesForUsers(ctx context.Context, userIDs []string) ([]*models.Device, error) {
	repo := s.repomanager.Devices(s.db)

	var result []*models.Device
	for _, id := range userIDs {
		list, err := repo.ListByUser(ctx, id)
		if err != nil {
			return nil, err
		}
		result = append(result, list...)
	}
	return result, nil
}
