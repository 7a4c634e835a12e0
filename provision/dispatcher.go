package provision

import (
	"context"
	"log/slog"
	"time"
)

// HousekeepingInterval is how often advertising is adjusted to the network
// state.
const HousekeepingInterval = 5 * time.Minute

const eventBuffer = 16

// Dispatcher feeds events to a Handler one at a time and runs its periodic
// housekeeping on the same goroutine.
type Dispatcher struct {
	handler  *Handler
	events   chan Event
	interval time.Duration
	logger   *slog.Logger
}

type DispatcherOption func(*Dispatcher)

func WithHousekeepingInterval(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) { dp.interval = d }
}

func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(dp *Dispatcher) { dp.logger = l }
}

func NewDispatcher(h *Handler, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handler:  h,
		events:   make(chan Event, eventBuffer),
		interval: HousekeepingInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Post queues an event. It never blocks; false means the queue was full and
// the event was dropped.
func (d *Dispatcher) Post(ev Event) bool {
	select {
	case d.events <- ev:
		return true
	default:
		d.logger.Warn("Configuration event dropped", "event", ev.Kind)
		return false
	}
}

// Run starts the handler and then handles events until ctx is done. Events
// posted while the handler starts are queued.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.handler.Start(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-d.events:
			if err := d.handler.Handle(ctx, ev); err != nil {
				d.logger.Error("Configuration event failed", "event", ev.Kind, "client", ev.Client, "error", err)
			}
		case <-ticker.C:
			d.handler.Housekeep(ctx)
		}
	}
}
