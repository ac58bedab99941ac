// Package devices stores notification endpoints registered by users.
package devices

import (
	"context"

	"github.com/dmitrijs2005/signoff/internal/server/models"
)

type Repository interface {
	// Upsert registers a device by push token. Re-registering the same token
	// renames the device; a token owned by another user yields ErrorConflict.
	Upsert(ctx context.Context, device *models.Device) (*models.Device, error)
	Get(ctx context.Context, id int64) (*models.Device, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Device, error)
}
