// Package gateway validates outbound SMS requests and hands them to the
// modem once it is registered on the network.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"i4.energy/across/smsbridge/modem"
)

//go:generate go tool mockgen -source=gateway.go -destination=mock_gateway_test.go -package=gateway

// Modem is the part of modem.Modem the gateway uses.
type Modem interface {
	IsCsRegistered(ctx context.Context) bool
	SendSMS(ctx context.Context, recipient, message string) error
}

// Indicator shows that a request is being handled.
type Indicator interface {
	Set(on bool)
}

type Option func(*Gateway)

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

func WithIndicator(i Indicator) Option {
	return func(g *Gateway) { g.indicator = i }
}

// Gateway is safe for concurrent use. It admits one submission at a time and
// rejects the others with ErrBusy instead of queueing them.
type Gateway struct {
	modem     Modem
	logger    *slog.Logger
	indicator Indicator
	busy      atomic.Bool
}

func New(m Modem, opts ...Option) *Gateway {
	g := &Gateway{
		modem:  m,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit validates msg, checks the registration and sends. A nil error means
// the modem accepted the message for delivery.
func (g *Gateway) Submit(ctx context.Context, msg OutboundMessage) error {
	if g.indicator != nil {
		g.indicator.Set(true)
		defer g.indicator.Set(false)
	}

	if err := msg.Validate(); err != nil {
		return err
	}

	if !g.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer g.busy.Store(false)

	id := uuid.New()
	log := g.logger.With("submission", id, "to", msg.Phone)

	if !g.modem.IsCsRegistered(ctx) {
		log.Warn("Refusing SMS, modem not registered")
		return ErrNotRegistered
	}

	start := time.Now()
	err := g.modem.SendSMS(ctx, msg.Phone, msg.Message)
	switch {
	case err == nil:
		log.Info("SMS sent", "length", len(msg.Message), "took", time.Since(start))
		return nil
	case errors.Is(err, modem.ErrBusy):
		return ErrBusy
	default:
		log.Error("Failed to send SMS", "error", err)
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
}
