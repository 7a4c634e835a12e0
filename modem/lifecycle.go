package modem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/looplab/fsm"

	"i4.energy/across/smsbridge/at"
	"i4.energy/across/smsbridge/carrier"
	"i4.energy/across/smsbridge/registration"
)

// Lifecycle states.
const (
	StatePoweredOff         = "powered_off"
	StateBooting            = "booting"
	StateInitialized        = "initialized"
	StateRadioConfiguring   = "radio_configuring"
	StateCsRegistered       = "cs_registered"
	StateRegistrationFailed = "registration_failed"
)

const (
	evPowerOn            = "power_on"
	evPowerOff           = "power_off"
	evReset              = "reset"
	evInitialized        = "initialized"
	evConfigure          = "configure"
	evRegistered         = "registered"
	evRegistrationFailed = "registration_failed"
)

var poweredStates = []string{
	StateBooting, StateInitialized, StateRadioConfiguring, StateCsRegistered, StateRegistrationFailed,
}

func newLifecycle(logger *slog.Logger) *fsm.FSM {
	return fsm.NewFSM(
		StatePoweredOff,
		fsm.Events{
			{Name: evPowerOn, Src: []string{StatePoweredOff}, Dst: StateBooting},
			{Name: evPowerOff, Src: poweredStates, Dst: StatePoweredOff},
			{Name: evReset, Src: poweredStates, Dst: StateBooting},
			{Name: evInitialized, Src: []string{StateBooting}, Dst: StateInitialized},
			{Name: evConfigure, Src: []string{StateInitialized}, Dst: StateRadioConfiguring},
			{Name: evRegistered, Src: []string{StateRadioConfiguring}, Dst: StateCsRegistered},
			{Name: evRegistrationFailed, Src: []string{StateRadioConfiguring}, Dst: StateRegistrationFailed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Info("Modem state changed", "from", e.Src, "to", e.Dst, "event", e.Event)
			},
		},
	)
}

// State returns the current lifecycle state.
func (m *Modem) State() string {
	return m.lifecycle.Current()
}

// fire applies a lifecycle event. Events that do not apply to the current
// state are logged and ignored; the state machine records what the modem did,
// it does not gate it.
func (m *Modem) fire(ctx context.Context, event string) {
	err := m.lifecycle.Event(context.WithoutCancel(ctx), event)
	if err == nil {
		return
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return
	}
	m.logger.Debug("Lifecycle event ignored", "event", event, "state", m.lifecycle.Current(), "error", err)
}

// Report describes a completed bring-up.
type Report struct {
	IMSI         carrier.IMSI        `json:"imsi,omitempty"`
	Profile      *carrier.Profile    `json:"profile,omitempty"`
	Registration registration.Result `json:"registration"`
	Started      time.Time           `json:"started"`
	Finished     time.Time           `json:"finished"`
}

// BringUp takes the modem from wherever it is to a circuit-switched
// registration. It blocks for as long as the registration search runs, which
// is bounded by the per-mode timeout times the number of candidate modes.
//
// A modem that does not answer the handshake is power-cycled and ErrInitFailed
// is returned; the caller decides when to try again. ErrRegistrationFailed
// means every radio mode was tried without success.
func (m *Modem) BringUp(ctx context.Context) (report Report, err error) {
	report.Started = time.Now()
	defer func() { report.Finished = time.Now() }()

	if m.closed.Load() {
		return report, ErrAlreadyClosed
	}

	switch {
	case m.State() != StatePoweredOff:
		m.fire(ctx, evReset)
	case m.probe(ctx):
		// Already running, e.g. after a restart of this process.
		m.fire(ctx, evPowerOn)
	default:
		if err := m.PowerOn(ctx); err != nil {
			if !errors.Is(err, ErrNoPowerControl) {
				return report, fmt.Errorf("power on: %w", err)
			}
			m.fire(ctx, evPowerOn)
		}
	}

	if err := m.handshake(ctx); err != nil {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		m.logger.Error("Modem init failed, restarting", "error", err)
		if err := m.Restart(ctx); err == nil {
			if err := sleep(ctx, RestartRecovery); err != nil {
				return report, err
			}
		} else if !errors.Is(err, ErrNoPowerControl) {
			m.logger.Error("Failed to restart modem", "error", err)
		}
		return report, fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	m.fire(ctx, evInitialized)

	m.logDiagnostics(ctx)

	if err := m.unlockSIM(ctx); err != nil {
		return report, err
	}

	if err := m.expectOK(ctx, at.CmdSetTextMode, m.config.atTimeout); err != nil {
		return report, fmt.Errorf("set SMS text mode: %w", err)
	}
	for _, cmd := range []string{at.CmdRegistrationURC, at.CmdGPRSRegistrationURC} {
		if err := m.expectOK(ctx, cmd, m.config.atTimeout); err != nil {
			m.logger.Warn("Failed to enable registration reports", "command", cmd, "error", err)
		}
	}

	imsi, err := m.ReadIMSI(ctx)
	if err != nil {
		m.logger.Warn("Could not read subscriber identity, using generic radio settings", "error", err)
	}
	report.IMSI = imsi
	report.Profile = m.config.resolver.Resolve(imsi)
	m.logger.Info("Carrier profile selected", "network", imsi.NetworkID(), "profile", report.Profile.String())

	m.fire(ctx, evConfigure)
	res, err := m.orchestrator.Run(ctx, report.Profile, m.config.perModeTimeout)
	report.Registration = res
	if err != nil {
		return report, err
	}
	if !res.Registered {
		m.fire(ctx, evRegistrationFailed)
		return report, ErrRegistrationFailed
	}
	m.fire(ctx, evRegistered)
	m.logSystemInfo(ctx)
	return report, nil
}

// RegistrationSnapshot reports the progress of the current or last
// registration search.
func (m *Modem) RegistrationSnapshot() registration.State {
	return m.orchestrator.Snapshot()
}

const probeTimeout = time.Second

// probe reports whether the modem answers a bare AT.
func (m *Modem) probe(ctx context.Context) bool {
	ok, _, err := m.exec(ctx, at.CmdAt, "", probeTimeout)
	return err == nil && ok
}

func (m *Modem) exec(ctx context.Context, cmd, prefix string, timeout time.Duration) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sendCommand(cmd); err != nil {
		return false, "", err
	}
	ok, line := m.awaitResponse(ctx, timeout, prefix)
	return ok, line, nil
}

// handshake waits for the modem to answer, then switches echo off and
// enables verbose errors.
func (m *Modem) handshake(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.initTimeout)
	defer cancel()

	for !m.probe(ctx) {
		if err := sleep(ctx, probeTimeout/2); err != nil {
			return fmt.Errorf("modem not responding: %w", err)
		}
	}

	if err := m.expectOK(ctx, at.CmdEchoOff, m.config.atTimeout); err != nil {
		return fmt.Errorf("could not disable echo: %w", err)
	}
	if err := m.expectOK(ctx, at.CmdVerboseErrors, m.config.atTimeout); err != nil {
		return fmt.Errorf("could not enable verbose errors: %w", err)
	}
	return nil
}

// unlockSIM enters the configured PIN when the SIM asks for one.
func (m *Modem) unlockSIM(ctx context.Context) error {
	status, err := m.simStatus(ctx)
	if err != nil {
		return fmt.Errorf("query SIM status: %w", err)
	}

	switch status {
	case at.SimReady:
		return nil

	case at.SimPin:
		if m.config.simPIN == "" {
			return ErrSIMPinRequired
		}
		if err := m.expectOK(ctx, at.EnterPIN(m.config.simPIN), m.config.atTimeout); err != nil {
			return fmt.Errorf("%w: %v", ErrSIMPinRejected, err)
		}
		return m.waitForSIMReady(ctx, PollConfig{})

	default:
		return fmt.Errorf("unsupported SIM state: %q", status)
	}
}

func (m *Modem) simStatus(ctx context.Context) (string, error) {
	lines, err := m.lockedQuery(ctx, at.CmdSimStatus, m.config.atTimeout)
	if err != nil {
		return "", err
	}
	status, ok := at.ParseSimStatus(lines)
	if !ok {
		return "", fmt.Errorf("unexpected SIM status response %q", strings.Join(lines, " "))
	}
	return status, nil
}

// PollConfig defines configuration for polling operations like waiting for SIM readiness.
type PollConfig struct {
	// Interval is the time between polling attempts
	Interval time.Duration
	// Timeout is the maximum time to wait for the condition
	Timeout time.Duration
}

// waitForSIMReady polls the SIM until it reports READY. The SIM needs a
// moment to authenticate after the PIN has been accepted.
func (m *Modem) waitForSIMReady(ctx context.Context, config PollConfig) error {
	interval := config.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		status, err := m.simStatus(ctx)
		if err == nil && status == at.SimReady {
			return nil
		}
		if errors.Is(err, ErrAlreadyClosed) {
			return fmt.Errorf("SIM status check failed: %w", err)
		}
		if err := sleep(ctx, interval); err != nil {
			return fmt.Errorf("SIM not ready: %w", err)
		}
	}
}

// logDiagnostics records what the module reports about itself. Failures are
// not interesting enough to stop a bring-up.
func (m *Modem) logDiagnostics(ctx context.Context) {
	for _, cmd := range []string{at.CmdModemInfo, at.CmdModelName, at.CmdProductInfo, at.CmdPreferredMode, at.CmdLTEPreference} {
		lines, err := m.lockedQuery(ctx, cmd, m.config.atTimeout)
		if err != nil {
			m.logger.Debug("Diagnostic query failed", "command", cmd, "error", err)
			continue
		}
		m.logger.Debug("Modem diagnostics", "command", cmd, "response", strings.Join(lines, " | "))
	}
}

// logSystemInfo records the serving cell once registered.
func (m *Modem) logSystemInfo(ctx context.Context) {
	lines, err := m.lockedQuery(ctx, at.CmdSystemInfo, m.config.atTimeout)
	if err != nil {
		m.logger.Debug("System information unavailable", "error", err)
		return
	}
	for _, line := range lines {
		if at.HasPrefix(line, at.InfoSystem) {
			m.logger.Info("Serving cell", "cpsi", at.TrimPrefix(line, at.InfoSystem))
		}
	}
}
