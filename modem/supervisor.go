package modem

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jpillora/backoff"
)

// BringUpper is the part of a Modem the Supervisor drives.
type BringUpper interface {
	BringUp(ctx context.Context) (Report, error)
}

// Supervisor runs BringUp in the background so the rest of the process stays
// responsive during the multi-minute registration search.
//
// A handshake failure is retried with exponential backoff. Any other outcome,
// including exhausting every radio mode, is final until Trigger is called.
type Supervisor struct {
	modem   BringUpper
	logger  *slog.Logger
	backoff *backoff.Backoff
	trigger chan struct{}

	mu     sync.Mutex
	status SupervisorStatus
}

// SupervisorStatus is a snapshot of the supervisor for status reporting.
type SupervisorStatus struct {
	Running  bool      `json:"running"`
	Runs     int       `json:"runs"`
	LastErr  string    `json:"last_error,omitempty"`
	Last     *Report   `json:"last,omitempty"`
	NextTry  time.Time `json:"next_try,omitzero"`
	Attempts int       `json:"init_attempts"`
}

type SupervisorOption func(*Supervisor)

// WithBackoff replaces the retry policy for failed handshakes.
func WithBackoff(b *backoff.Backoff) SupervisorOption {
	return func(s *Supervisor) { s.backoff = b }
}

func WithSupervisorLogger(l *slog.Logger) SupervisorOption {
	return func(s *Supervisor) { s.logger = l }
}

func NewSupervisor(m BringUpper, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		modem:  m,
		logger: slog.Default(),
		backoff: &backoff.Backoff{
			Min:    5 * time.Second,
			Max:    5 * time.Minute,
			Factor: 2,
			Jitter: true,
		},
		trigger: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run brings the modem up and then waits for triggers until ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var retry *time.Timer
		var wait <-chan time.Time
		if errors.Is(err, ErrInitFailed) {
			d := s.backoff.Duration()
			s.update(func(st *SupervisorStatus) { st.NextTry = time.Now().Add(d) })
			s.logger.Warn("Modem bring-up will be retried", "in", d, "error", err)
			retry = time.NewTimer(d)
			wait = retry.C
		} else {
			s.backoff.Reset()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		case <-s.trigger:
			s.logger.Info("Modem bring-up requested")
		}
		if retry != nil {
			retry.Stop()
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context) error {
	s.update(func(st *SupervisorStatus) {
		st.Running = true
		st.NextTry = time.Time{}
	})

	report, err := s.modem.BringUp(ctx)

	s.update(func(st *SupervisorStatus) {
		st.Running = false
		st.Runs++
		st.Last = &report
		st.LastErr = ""
		if err != nil {
			st.LastErr = err.Error()
		}
		if errors.Is(err, ErrInitFailed) {
			st.Attempts++
		} else {
			st.Attempts = 0
		}
	})

	switch {
	case err == nil:
		s.logger.Info("Modem ready", "mode", report.Registration.Mode, "profile", report.Profile.String())
	case ctx.Err() != nil:
	default:
		s.logger.Error("Modem bring-up failed", "error", err)
	}
	return err
}

// Trigger asks for another bring-up. Requests made while one is already
// pending are merged.
func (s *Supervisor) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Supervisor) Status() SupervisorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Supervisor) update(fn func(*SupervisorStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}
