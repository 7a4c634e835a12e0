// Package registration walks a carrier profile's radio modes until the modem
// reports a circuit-switched registration.
package registration

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"i4.energy/across/smsbridge/at"
	"i4.energy/across/smsbridge/carrier"
)

// Radio is the part of the modem the orchestrator drives. Setters may fail
// on a flaky link; the orchestrator logs those failures and keeps polling,
// since the modem often applies the setting anyway.
type Radio interface {
	SetNetworkMode(ctx context.Context, mode carrier.Mode) error
	SetLTEPreference(ctx context.Context, pref carrier.LTEPreference) error
	LockOperator(ctx context.Context, numeric string, tech carrier.AccessTech) error
	AutoOperator(ctx context.Context) error
	SignalQuality(ctx context.Context) (int, bool)
	Registration(ctx context.Context) at.RegStatus
}

// Indicator is a status output that blinks while the radio searches.
type Indicator interface {
	Toggle()
	Set(on bool)
}

type nopIndicator struct{}

func (nopIndicator) Toggle()  {}
func (nopIndicator) Set(bool) {}

const (
	DefaultPollInterval   = time.Second
	DefaultSettleDelay    = 3 * time.Second
	DefaultPerModeTimeout = 60 * time.Second
)

// Orchestrator runs registration attempts. One Orchestrator serves one modem;
// Run must not be called concurrently.
type Orchestrator struct {
	radio        Radio
	indicator    Indicator
	logger       *slog.Logger
	pollInterval time.Duration
	settle       time.Duration

	mu    sync.Mutex
	state State
}

type Option func(*Orchestrator)

func WithIndicator(i Indicator) Option {
	return func(o *Orchestrator) {
		if i != nil {
			o.indicator = i
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPollInterval sets how often registration is queried within a mode.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.pollInterval = d }
}

// WithSettleDelay sets the pause between applying a mode and the first poll.
func WithSettleDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.settle = d }
}

func New(radio Radio, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		radio:        radio,
		indicator:    nopIndicator{},
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
		settle:       DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run tries each candidate mode of the profile in order (GenericModes for a
// nil profile) and stops at the first one that registers. When all of them
// fail and the fully automatic configuration has not been tried yet, it is
// tried once more as a last resort.
//
// Exhaustion is reported through Result.Registered; the error is only set
// when ctx ends the run early.
func (o *Orchestrator) Run(ctx context.Context, profile *carrier.Profile, perModeTimeout time.Duration) (Result, error) {
	if perModeTimeout <= 0 {
		perModeTimeout = DefaultPerModeTimeout
	}
	o.reset(profile)
	defer o.indicator.Set(true)

	var res Result
	for _, mode := range profile.Candidates() {
		plan := planFor(profile, mode)
		res.Tried = append(res.Tried, mode)
		ok, err := o.attempt(ctx, plan, perModeTimeout)
		if err != nil {
			res.State = o.Snapshot()
			return res, err
		}
		if ok {
			return o.finish(res, mode), nil
		}
		o.logger.Warn("Radio mode did not register", "mode", mode, "profile", profile.String())
	}

	if !automaticTried(profile) {
		res.Tried = append(res.Tried, carrier.ModeAutomatic)
		res.LastResort = true
		o.logger.Info("All profile modes failed, trying automatic selection")
		ok, err := o.attempt(ctx, plan{mode: carrier.ModeAutomatic}, perModeTimeout)
		if err != nil {
			res.State = o.Snapshot()
			return res, err
		}
		if ok {
			return o.finish(res, carrier.ModeAutomatic), nil
		}
	}

	res.State = o.Snapshot()
	o.logger.Error("Registration failed on every radio mode", "tried", res.Tried)
	return res, nil
}

// Snapshot returns the state of the current or most recent run.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

type plan struct {
	mode carrier.Mode
	pref carrier.LTEPreference
	lock string
	tech carrier.AccessTech
}

func planFor(p *carrier.Profile, mode carrier.Mode) plan {
	pl := plan{mode: mode}
	if p == nil {
		return pl
	}
	if mode.IsLTE() {
		pl.pref = p.LTEPreference
	}
	if p.OperatorLock != "" && lockApplies(mode, p.LockTech) {
		pl.lock, pl.tech = p.OperatorLock, p.LockTech
	}
	return pl
}

// lockApplies reports whether a manual selection on tech can succeed while
// the radio is restricted to mode.
func lockApplies(mode carrier.Mode, tech carrier.AccessTech) bool {
	switch mode {
	case carrier.ModeGSMOnly:
		return tech == carrier.TechGSM
	case carrier.ModeLTEOnly:
		return tech == carrier.TechCatM || tech == carrier.TechNBIoT
	default:
		return true
	}
}

func automaticTried(p *carrier.Profile) bool {
	if !slices.Contains(p.Candidates(), carrier.ModeAutomatic) {
		return false
	}
	return p == nil || p.OperatorLock == ""
}

func (o *Orchestrator) attempt(ctx context.Context, pl plan, timeout time.Duration) (bool, error) {
	log := o.logger.With("mode", pl.mode)
	log.Info("Trying radio mode")
	o.update(func(s *State) { s.Mode = pl.mode })

	if err := o.radio.SetNetworkMode(ctx, pl.mode); err != nil {
		log.Warn("Failed to set network mode", "error", err)
	}
	if pl.pref != carrier.LTEUnspecified {
		if err := o.radio.SetLTEPreference(ctx, pl.pref); err != nil {
			log.Warn("Failed to set LTE preference", "preference", pl.pref, "error", err)
		}
	}
	if pl.lock != "" {
		if err := o.radio.LockOperator(ctx, pl.lock, pl.tech); err != nil {
			log.Warn("Failed to lock operator", "operator", pl.lock, "error", err)
		}
	} else if err := o.radio.AutoOperator(ctx); err != nil {
		log.Warn("Failed to select automatic operator", "error", err)
	}

	if err := sleep(ctx, o.settle); err != nil {
		return false, err
	}

	deadline := time.Now().Add(timeout)
	for {
		csq, ok := o.radio.SignalQuality(ctx)
		if !ok {
			csq = UnknownSignal
		}
		status := o.radio.Registration(ctx)
		o.update(func(s *State) {
			s.SignalQuality = csq
			s.Status = status
			s.Attempts++
		})
		log.Debug("Registration poll", "csq", csq, "status", status)
		if status.Registered() {
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		o.indicator.Toggle()
		if err := sleep(ctx, o.pollInterval); err != nil {
			return false, err
		}
	}
}

func (o *Orchestrator) finish(res Result, mode carrier.Mode) Result {
	res.Registered = true
	res.Mode = mode
	res.State = o.Snapshot()
	o.logger.Info("Registered on network", "mode", mode, "status", res.State.Status, "csq", res.State.SignalQuality)
	return res
}

func (o *Orchestrator) reset(p *carrier.Profile) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = State{Profile: p.String(), Status: at.RegNotRegistered, SignalQuality: UnknownSignal}
}

func (o *Orchestrator) update(fn func(*State)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.state)
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
