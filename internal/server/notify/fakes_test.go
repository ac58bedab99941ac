package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dmitrijs2005/signoff/internal/logging"
	"github.com/dmitrijs2005/signoff/internal/server/models"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (logging.Logger, *syncBuffer) {
	var buf syncBuffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return logging.NewSlogLogger(slog.New(h)), &buf
}

type recordingSink struct {
	name string
	err  error
	// gate, when set, blocks Deliver until it is closed; started receives
	// one value per Deliver call.
	gate    chan struct{}
	started chan struct{}

	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(ctx context.Context, e Event) error {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSink) got() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

type fakeDirectory struct {
	users    map[string]*models.User
	devices  map[string][]*models.Device
	receipts map[int64]*models.Receipt
	err      error
}

func (d *fakeDirectory) Users(_ context.Context, ids []string) ([]*models.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []*models.User
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *fakeDirectory) Devices(_ context.Context, ids []string) ([]*models.Device, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []*models.Device
	for _, id := range ids {
		out = append(out, d.devices[id]...)
	}
	return out, nil
}

func (d *fakeDirectory) Receipt(_ context.Context, requestID int64) (*models.Receipt, error) {
	if d.err != nil {
		return nil, d.err
	}
	r, ok := d.receipts[requestID]
	if !ok {
		return nil, errors.New("no such request")
	}
	return r, nil
}
