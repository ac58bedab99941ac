// Package notify delivers request lifecycle events to users on a best-effort
// basis. Publishing never blocks and delivery failures never reach the
// caller that produced the event.
package notify

import (
	"context"
	"time"

	"github.com/dmitrijs2005/signoff/internal/server/models"
)

type Kind string

const (
	KindRequestCreated  Kind = "request-created"
	KindRequestApproved Kind = "request-approved"
)

type Event struct {
	Kind          Kind      `json:"kind"`
	PackageID     int64     `json:"package_id"`
	RequestID     int64     `json:"request_id"`
	Title         string    `json:"title"`
	TargetUserIDs []string  `json:"-"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher is what services depend on.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Sink delivers one event to one channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// Directory resolves notification targets.
type Directory interface {
	Users(ctx context.Context, ids []string) ([]*models.User, error)
	Devices(ctx context.Context, userIDs []string) ([]*models.Device, error)
	Receipt(ctx context.Context, requestID int64) (*models.Receipt, error)
}
