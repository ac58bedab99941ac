package notify

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/signoff/internal/logging"
)

const DefaultDeliveryTimeout = 10 * time.Second

// Dispatcher queues events and hands them to every sink from a single worker.
// It is created once at start-up and shared by all services.
type Dispatcher struct {
	log     logging.Logger
	sinks   []Sink
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan queued
	done   chan struct{}
}

type queued struct {
	ctx context.Context
	e   Event
}

func NewDispatcher(log logging.Logger, size int, sinks ...Sink) *Dispatcher {
	d := &Dispatcher{
		log:     log.With("module", "notify"),
		sinks:   sinks,
		timeout: DefaultDeliveryTimeout,
		queue:   make(chan queued, size),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Publish enqueues e. A full queue or a closed dispatcher drops the event.
func (d *Dispatcher) Publish(ctx context.Context, e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warn(ctx, "dispatcher closed, event dropped", "kind", e.Kind, "request_id", e.RequestID)
		return
	}

	select {
	case d.queue <- queued{ctx: context.WithoutCancel(ctx), e: e}:
	default:
		d.log.Warn(ctx, "notification queue full, event dropped", "kind", e.Kind, "request_id", e.RequestID)
	}
}

// Close stops accepting events and waits for queued ones to be delivered or
// for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for q := range d.queue {
		d.deliver(q.ctx, q.e)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	for _, s := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := s.Deliver(sctx, e)
		cancel()
		if err != nil {
			d.log.Error(ctx, "notification delivery failed",
				"sink", s.Name(), "kind", e.Kind, "request_id", e.RequestID, "error", err)
			continue
		}
		d.log.Debug(ctx, "notification delivered", "sink", s.Name(), "kind", e.Kind, "request_id", e.RequestID)
	}
}
