// Package alert delivers lifecycle alerts to notification targets.
// Delivery is at-most-once: the lifecycle layer only hands an alert over
// after the corresponding token flag is durably persisted, and the
// dispatcher never retries a failed target.
package alert

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"launchwatch/internal/domain"
	"launchwatch/internal/storage"
)

// Notifier pushes one alert to an external target. Implementations must be
// safe for concurrent use. A returned error is logged and dropped.
type Notifier interface {
	Notify(ctx context.Context, a *domain.Alert) error
}

// Options configures a Dispatcher. All fields are optional.
type Options struct {
	// Store persists dispatched alerts for later inspection. Nil disables
	// persistence.
	Store storage.AlertStore
	// Notifiers receive every alert in registration order.
	Notifiers []Notifier
	// SubscribeBuffer is the channel capacity handed to Subscribe callers.
	// Defaults to 16.
	SubscribeBuffer int
	Logger          *log.Logger
}

// Dispatcher assigns alert identity, persists the record and fans it out
// to notifiers and channel subscribers.
type Dispatcher struct {
	store     storage.AlertStore
	notifiers []Notifier
	logger    *log.Logger
	buffer    int

	mu     sync.Mutex
	subs   []chan *domain.Alert
	closed bool
}

func NewDispatcher(opts Options) *Dispatcher {
	if opts.SubscribeBuffer <= 0 {
		opts.SubscribeBuffer = 16
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[alert] ", log.LstdFlags)
	}
	return &Dispatcher{
		store:     opts.Store,
		notifiers: opts.Notifiers,
		logger:    opts.Logger,
		buffer:    opts.SubscribeBuffer,
	}
}

// Dispatch completes the alert payload, persists it and fans it out. It
// never fails the caller: by the time an alert reaches the dispatcher the
// originating state transition is already durable, so delivery problems
// are logged and swallowed rather than retried.
func (d *Dispatcher) Dispatch(ctx context.Context, a *domain.Alert) {
	if a == nil {
		return
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp == 0 {
		a.Timestamp = time.Now().UnixMilli()
	}

	if d.store != nil {
		if err := d.store.Insert(ctx, a); err != nil {
			d.logger.Printf("persist alert %s for %s: %v", a.Type, a.TokenAddress, err)
		}
	}

	for _, n := range d.notifiers {
		if err := n.Notify(ctx, a); err != nil {
			d.logger.Printf("notify %T for %s %s: %v", n, a.Type, a.TokenAddress, err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- a:
		default:
			// Slow consumer: drop rather than stall the pipeline.
			d.logger.Printf("subscriber full, dropping %s alert for %s", a.Type, a.TokenAddress)
		}
	}
}

// Subscribe returns a channel receiving every subsequently dispatched
// alert. The channel is closed by Close. Alerts are dropped for
// subscribers that fall behind their buffer.
func (d *Dispatcher) Subscribe() <-chan *domain.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := make(chan *domain.Alert, d.buffer)
	if d.closed {
		close(ch)
		return ch
	}
	d.subs = append(d.subs, ch)
	return ch
}

// Close terminates all subscriber channels. Dispatch calls after Close
// still persist and notify but no longer reach subscribers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, ch := range d.subs {
		close(ch)
	}
	d.subs = nil
}
