// Package credentials persists WebAuthn public keys and their signature
// counters.
package credentials

import (
	"context"

	"github.com/dmitrijs2005/signoff/internal/server/models"
)

// Repository defines credential persistence. Credential ids are raw bytes at
// this boundary.
type Repository interface {
	// Create inserts a credential. A duplicate id yields ErrorConflict and an
	// unknown user or device yields ErrorNotFound.
	Create(ctx context.Context, c *models.Credential) error

	FindByCredentialID(ctx context.Context, credentialID []byte) (*models.Credential, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Credential, error)
	ListByUserAndDevice(ctx context.Context, userID string, deviceID int64) ([]*models.Credential, error)

	// BumpCounter stores newCounter only if it is strictly greater than the
	// stored value. Otherwise ErrReplayDetected is returned and nothing changes.
	BumpCounter(ctx context.Context, credentialID []byte, newCounter uint32) error
}
