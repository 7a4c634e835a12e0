package modem

import (
	"context"
	"time"
)

// PowerLine drives the modem's active-low power key.
type PowerLine interface {
	// Pulse pulls the line low for d and releases it.
	Pulse(ctx context.Context, d time.Duration) error
}

// Pulse widths of the SIM7000 power key. The module ignores shorter pulses.
const (
	PowerOnPulse  = time.Second
	PowerOffPulse = 1500 * time.Millisecond
	// RestartSettle is the pause between the off and on pulses of a restart.
	RestartSettle = time.Second
	// RestartRecovery is waited after a restart caused by a failed handshake.
	RestartRecovery = 2 * time.Second
)

// PowerOn pulses the power key to start the modem.
func (m *Modem) PowerOn(ctx context.Context) error {
	if err := m.pulse(ctx, PowerOnPulse); err != nil {
		return err
	}
	m.fire(ctx, evPowerOn)
	return nil
}

// PowerOff holds the power key long enough for a graceful shutdown.
func (m *Modem) PowerOff(ctx context.Context) error {
	if err := m.pulse(ctx, PowerOffPulse); err != nil {
		return err
	}
	m.fire(ctx, evPowerOff)
	return nil
}

// Restart power-cycles the modem.
func (m *Modem) Restart(ctx context.Context) error {
	m.logger.Info("Power cycling modem")
	if err := m.PowerOff(ctx); err != nil {
		return err
	}
	if err := sleep(ctx, RestartSettle); err != nil {
		return err
	}
	return m.PowerOn(ctx)
}

func (m *Modem) pulse(ctx context.Context, d time.Duration) error {
	if m.config.power == nil {
		return ErrNoPowerControl
	}
	return m.config.power.Pulse(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
