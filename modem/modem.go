// Package modem drives a SIMCom-class cellular modem over AT commands: power
// sequencing, bring-up to a circuit-switched registration and SMS submission.
package modem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"
	"golang.org/x/sync/singleflight"

	"i4.energy/across/smsbridge/at"
	"i4.energy/across/smsbridge/registration"
)

const (
	// maxLineLength caps a single response line; longer input is treated as
	// line noise.
	maxLineLength = 4096
	// lineBuffer is how many solicited lines may queue while no command is
	// waiting for them.
	lineBuffer = 64
)

// Modem represents a cellular modem that communicates via AT commands.
//
// A single reader goroutine owns the read side of the transport and splits
// the stream into lines. Unsolicited result codes go to URC(); everything
// else is handed to the command in flight. Exactly one command is in flight
// at a time.
type Modem struct {
	// transport provides the physical connection to the modem (serial, TCP, etc.)
	transport Transport
	// config contains the modem configuration settings
	config Config
	logger *slog.Logger

	// lines carries solicited output from the reader goroutine
	lines chan string
	// urcChan receives Unsolicited Result Codes from the modem
	urcChan chan string
	// readErr is set by the reader before lines is closed
	readErr error
	// done is closed when the reader goroutine exits
	done chan struct{}

	// mu keeps a single command exchange on the wire
	mu sync.Mutex
	// busy is the SMS submission permit
	busy   atomic.Bool
	closed atomic.Bool

	lifecycle    *fsm.FSM
	regQuery     singleflight.Group
	orchestrator *registration.Orchestrator
}

// New dials the modem and starts reading from it. The modem is not touched
// otherwise; BringUp performs the handshake and registration.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial modem: %w", err)
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	if config.keepAwake {
		if err := keepAwake(transport); err != nil {
			config.logger.Warn("Failed to assert DTR", "error", err)
		}
	}
	if config.trace {
		transport = Trace(transport, config.logger.With("component", "at"))
	}

	m := &Modem{
		transport: transport,
		config:    config,
		logger:    config.logger,
		lines:     make(chan string, lineBuffer),
		urcChan:   make(chan string, 100), // Buffered to prevent blocking on URCs
		done:      make(chan struct{}),
	}
	m.lifecycle = newLifecycle(m.logger)
	m.orchestrator = registration.New(m,
		registration.WithIndicator(config.indicator),
		registration.WithLogger(m.logger.With("component", "registration")),
		registration.WithPollInterval(config.pollInterval),
		registration.WithSettleDelay(config.settleDelay),
	)

	go m.readLoop()
	return m, nil
}

// readLoop is the only reader of the transport. It exits when the transport
// reports an error, which includes being closed.
func (m *Modem) readLoop() {
	defer close(m.done)
	defer close(m.lines)

	scanner := bufio.NewScanner(m.transport)
	scanner.Buffer(make([]byte, 0, 256), maxLineLength)
	scanner.Split(at.Splitter)

	for scanner.Scan() {
		token := scanner.Text()
		if token == "" {
			continue
		}
		if at.Classify(token) == at.TypeURC {
			select {
			case m.urcChan <- token:
			default:
				m.logger.Debug("URC dropped", "urc", token)
			}
			continue
		}
		select {
		case m.lines <- token:
		default:
			m.logger.Debug("Unclaimed modem output dropped", "line", token)
		}
	}

	err := scanner.Err()
	if errors.Is(err, bufio.ErrTooLong) {
		err = ErrLineTooLong
	}
	if err == nil {
		err = io.EOF
	}
	m.readErr = err
	if !m.closed.Load() {
		m.logger.Error("Modem read loop stopped", "error", err)
	}
}

// URC returns a read-only channel that receives Unsolicited Result Codes.
// These are asynchronous notifications from the modem (e.g., incoming SMS,
// boot progress). The channel is buffered and drops codes nobody consumes.
func (m *Modem) URC() <-chan string {
	return m.urcChan
}

// Done is closed once the modem stops reading, after Close or on a transport
// failure.
func (m *Modem) Done() <-chan struct{} {
	return m.done
}

// Close releases the transport. After calling Close the modem cannot be
// reused.
func (m *Modem) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrAlreadyClosed
	}
	return m.transport.Close()
}

// Exec sends a command and waits for its response using the default command
// timeout. See awaitResponse for the meaning of prefix and of the results.
func (m *Modem) Exec(ctx context.Context, cmd, prefix string) (bool, string, error) {
	return m.exec(ctx, cmd, prefix, m.config.atTimeout)
}

// sendCommand discards output left over from earlier exchanges and writes a
// command line. The caller must hold m.mu.
func (m *Modem) sendCommand(cmd string) error {
	m.drain()
	return m.writeRaw(strings.TrimSpace(cmd) + "\r")
}

func (m *Modem) writeRaw(s string) error {
	if m.closed.Load() {
		return ErrAlreadyClosed
	}
	if _, err := io.WriteString(m.transport, s); err != nil {
		return fmt.Errorf("write %q: %w", strings.TrimSpace(s), err)
	}
	return nil
}

func (m *Modem) drain() {
	for {
		select {
		case line, ok := <-m.lines:
			if !ok {
				return
			}
			m.logger.Debug("Discarding stale modem output", "line", line)
		default:
			return
		}
	}
}

// awaitResponse waits for the reply to the command just sent.
//
// With an empty prefix it waits for the final result code and reports
// whether it was OK. With at.Prompt it waits for the SMS input prompt. With
// any other prefix it waits for the final result code and reports whether an
// information line with that prefix came before it; the first such line is
// returned.
//
// A timeout is not an error: it yields (false, ""). When nothing matched, the
// returned line is the final result code, if any.
func (m *Modem) awaitResponse(ctx context.Context, timeout time.Duration, prefix string) (bool, string) {
	resp, err := m.readResponse(ctx, timeout, prefix == at.Prompt)
	if err != nil {
		m.logger.Debug("No response from modem", "error", err)
		return false, ""
	}

	switch prefix {
	case at.Prompt:
		if resp.prompt {
			return true, at.Prompt
		}
		return false, resp.final
	case "":
		return resp.final == at.OK, resp.final
	}

	for _, line := range resp.lines {
		if at.HasPrefix(line, prefix) {
			return true, line
		}
	}
	return false, resp.final
}

// response is the output of one command exchange.
type response struct {
	lines  []string
	final  string
	prompt bool
}

// readResponse collects lines until a final result code, the prompt (when
// untilPrompt is set) or the timeout. Running out of time leaves final
// empty and is not an error; cancellation and transport failure are.
func (m *Modem) readResponse(ctx context.Context, timeout time.Duration, untilPrompt bool) (response, error) {
	var resp response

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return resp, ctx.Err()
		case <-timer.C:
			return resp, nil
		case line, ok := <-m.lines:
			if !ok {
				return resp, m.readErr
			}
			switch at.Classify(line) {
			case at.TypeFinal:
				resp.final = line
				return resp, nil
			case at.TypePrompt:
				if untilPrompt {
					resp.prompt = true
					return resp, nil
				}
			default:
				resp.lines = append(resp.lines, line)
			}
		}
	}
}

// query runs a command that must end in OK and returns its information
// lines. The caller must hold m.mu.
func (m *Modem) query(ctx context.Context, cmd string, timeout time.Duration) ([]string, error) {
	if err := m.sendCommand(cmd); err != nil {
		return nil, err
	}
	resp, err := m.readResponse(ctx, timeout, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	switch resp.final {
	case at.OK:
		return resp.lines, nil
	case "":
		return resp.lines, fmt.Errorf("%s: %w", cmd, ErrTimeout)
	default:
		return resp.lines, fmt.Errorf("%s: %s", cmd, resp.final)
	}
}

// expectOK runs a command under the lock and checks for OK.
func (m *Modem) expectOK(ctx context.Context, cmd string, timeout time.Duration) error {
	_, err := m.lockedQuery(ctx, cmd, timeout)
	return err
}

func (m *Modem) lockedQuery(ctx context.Context, cmd string, timeout time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.query(ctx, cmd, timeout)
}
