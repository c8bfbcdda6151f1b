package remote

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kalambet/wterm/internal/settings"
)

// Confirmer performs one blocking confirmation round trip.
type Confirmer interface {
	Confirm(ctx context.Context, event string, payload any) (int, error)
}

type request struct {
	event   string
	payload any
	cb      func(ack int)
}

// Dispatcher turns a blocking Confirmer into a fire-and-forget transport.
// Requests are delivered one at a time in the order they were sent, and every
// callback runs on the Run goroutine.
type Dispatcher struct {
	confirmer Confirmer
	queue     chan request
	logger    *slog.Logger

	mu      sync.Mutex
	stopped bool
}

// NewDispatcher creates a Dispatcher. If queueSize is <= 0, it defaults to 64.
func NewDispatcher(c Confirmer, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher{
		confirmer: c,
		queue:     make(chan request, queueSize),
		logger:    slog.Default(),
	}
}

// Send queues a confirmation. When the queue is full or the dispatcher has
// stopped, cb receives settings.AckRejected immediately.
func (d *Dispatcher) Send(event string, payload any, cb func(ack int)) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		cb(settings.AckRejected)
		return
	}
	select {
	case d.queue <- request{event: event, payload: payload, cb: cb}:
		d.mu.Unlock()
	default:
		d.mu.Unlock()
		d.logger.Warn("confirmation queue full, rejecting", "event", event)
		cb(settings.AckRejected)
	}
}

// Run delivers queued requests until ctx is cancelled. Requests still queued
// at that point are rejected.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.stop()
			return
		case r := <-d.queue:
			d.deliver(ctx, r)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, r request) {
	ack, err := d.confirmer.Confirm(ctx, r.event, r.payload)
	if err != nil {
		d.logger.Warn("confirmation failed", "event", r.event, "error", err)
		ack = settings.AckRejected
	}
	r.cb(ack)
}

func (d *Dispatcher) stop() {
	d.mu.Lock()
	d.stopped = true
	var pending []request
	for {
		select {
		case r := <-d.queue:
			pending = append(pending, r)
			continue
		default:
		}
		break
	}
	d.mu.Unlock()

	for _, r := range pending {
		r.cb(settings.AckRejected)
	}
}

// Loopback acknowledges every request. It stands in for the peer when the
// terminal runs without one.
type Loopback struct{}

func (Loopback) Send(_ string, _ any, cb func(ack int)) { cb(settings.AckOK) }
