// Package notify fans portal events out to external sinks (a signed webhook
// and NATS) from a single background worker, so request handlers never wait
// on delivery.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the portal.
const (
	NoticeImportant   = "notice.important"
	VacationRequested = "vacation.requested"
	VacationDecided   = "vacation.decided"
	ReportReplied     = "report.replied"
	ReportReminder    = "report.reminder"
	EquipmentAssigned = "equipment.assigned"
	EquipmentReturned = "equipment.returned"
)

// Event is one notification.
type Event struct {
	Type       string    `json:"type"`
	Actor      string    `json:"actor,omitempty"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Summary    string    `json:"summary"`
	Recipients []string  `json:"recipients,omitempty"`
	At         time.Time `json:"at"`
}

// Sink delivers events somewhere.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
	Close() error
}

// Publisher is the handler-facing side of a Dispatcher.
type Publisher interface {
	Publish(ev Event) bool
}

// Stats are cumulative dispatcher counters.
type Stats struct {
	Published uint64
	Dropped   uint64
	Delivered uint64
	Failed    uint64
}

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("notify: dispatcher closed")

// Dispatcher queues events and delivers them to every sink in order from a
// single worker goroutine.
type Dispatcher struct {
	queue   chan Event
	sinks   []Sink
	logger  *slog.Logger
	timeout time.Duration

	closeOnce sync.Once
	closed    atomic.Bool
	mu        sync.RWMutex // guards queue send vs close
	done      chan struct{}

	published atomic.Uint64
	dropped   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

// NewDispatcher starts a dispatcher with a queue of size capacity.
func NewDispatcher(capacity int, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if capacity <= 0 {
		capacity = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		queue:   make(chan Event, capacity),
		sinks:   sinks,
		logger:  logger,
		timeout: 10 * time.Second,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Publish enqueues ev without blocking. It returns false when the event was
// dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Publish(ev Event) bool {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed.Load() {
		d.dropped.Add(1)
		return false
	}
	select {
	case d.queue <- ev:
		d.published.Add(1)
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("notify queue full, dropping event", "type", ev.Type, "entity_id", ev.EntityID)
		return false
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.queue {
		for _, s := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			err := s.Send(ctx, ev)
			cancel()
			if err != nil {
				d.failed.Add(1)
				d.logger.Error("notify delivery failed", "sink", s.Name(), "type", ev.Type, "err", err)
				continue
			}
			d.delivered.Add(1)
		}
	}
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Published: d.published.Load(),
		Dropped:   d.dropped.Load(),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
	}
}

// Close stops accepting events and waits for queued ones to drain or for ctx
// to expire, then closes the sinks.
func (d *Dispatcher) Close(ctx context.Context) error {
	err := ErrClosed
	d.closeOnce.Do(func() {
		err = nil
		d.mu.Lock()
		d.closed.Store(true)
		close(d.queue)
		d.mu.Unlock()

		select {
		case <-d.done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		for _, s := range d.sinks {
			if cerr := s.Close(); cerr != nil {
				d.logger.Warn("close notify sink", "sink", s.Name(), "err", cerr)
			}
		}
	})
	return err
}

// Discard is a Publisher that drops everything.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(Event) bool { return true }
