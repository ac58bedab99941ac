package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/signoff/internal/server/receipts"
)

var errNoStore = errors.New("receipt store is nil")

// ReceiptSink archives a receipt for every approved request.
type ReceiptSink struct {
	store receipts.Store
	dir   Directory
}

func NewReceiptSink(store receipts.Store, dir Directory) (*ReceiptSink, error) {
	if store == nil {
		return nil, errNoStore
	}
	return &ReceiptSink{store: store, dir: dir}, nil
}

func (s *ReceiptSink) Name() string { return "receipts" }

func (s *ReceiptSink) Deliver(ctx context.Context, e Event) error {
	if e.Kind != KindRequestApproved {
		return nil
	}

	r, err := s.dir.Receipt(ctx, e.RequestID)
	if err != nil {
		return fmt.Errorf("build receipt: %w", err)
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now().UTC()
	}

	return s.store.Put(ctx, r)
}
