// Package wifi joins the device to a wireless network through
// NetworkManager's nmcli.
package wifi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ConnectTimeout bounds a single association attempt.
const ConnectTimeout = 120 * time.Second

// NoAddress is reported while not connected.
const NoAddress = "0.0.0.0"

var (
	ErrInProgress   = errors.New("connection already in progress")
	ErrNoSSID       = errors.New("network name is required")
	ErrNotConnected = errors.New("not connected")
)

// Runner executes a command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return out, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return out, err
}

// Credentials select the network to join.
type Credentials struct {
	SSID     string
	Password string
	// Hostname is announced to the network when set.
	Hostname string
}

// Status is the connection state reported by probes.
type Status struct {
	Connected bool   `json:"connected"`
	IPAddress string `json:"ipAddress"`
}

type Option func(*Connector)

func WithRunner(r Runner) Option {
	return func(c *Connector) { c.run = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Connector) { c.logger = l }
}

// WithTimeout overrides ConnectTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Connector) { c.timeout = d }
}

// Connector manages one wireless interface. Only one Connect runs at a time;
// others fail with ErrInProgress.
type Connector struct {
	iface   string
	run     Runner
	logger  *slog.Logger
	timeout time.Duration

	trying atomic.Bool
	mu     sync.Mutex
	status Status
}

func NewConnector(iface string, opts ...Option) *Connector {
	c := &Connector{
		iface:   iface,
		run:     execRunner{},
		logger:  slog.Default(),
		timeout: ConnectTimeout,
		status:  Status{IPAddress: NoAddress},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect joins the network and returns the address it was given.
func (c *Connector) Connect(ctx context.Context, creds Credentials) (net.IP, error) {
	if creds.SSID == "" {
		return nil, ErrNoSSID
	}
	if !c.trying.CompareAndSwap(false, true) {
		c.logger.Warn("Connection already in progress", "ssid", creds.SSID)
		return nil, ErrInProgress
	}
	defer c.trying.Store(false)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if creds.Hostname != "" {
		if _, err := c.run.Run(ctx, "nmcli", "general", "hostname", creds.Hostname); err != nil {
			c.logger.Warn("Failed to set hostname", "hostname", creds.Hostname, "error", err)
		}
	}

	c.logger.Info("Connecting", "ssid", creds.SSID, "interface", c.iface)
	args := []string{"--wait", fmt.Sprint(int(c.timeout.Seconds())), "device", "wifi", "connect", creds.SSID}
	if creds.Password != "" {
		args = append(args, "password", creds.Password)
	}
	if c.iface != "" {
		args = append(args, "ifname", c.iface)
	}
	if _, err := c.run.Run(ctx, "nmcli", args...); err != nil {
		c.setStatus(Status{IPAddress: NoAddress})
		return nil, fmt.Errorf("connect to %q: %w", creds.SSID, err)
	}

	ip, err := c.address(ctx)
	if err != nil {
		c.setStatus(Status{IPAddress: NoAddress})
		return nil, err
	}
	c.setStatus(Status{Connected: true, IPAddress: ip.String()})
	c.logger.Info("Connected", "ssid", creds.SSID, "ip", ip)
	return ip, nil
}

// address reads the first IPv4 address of the interface.
func (c *Connector) address(ctx context.Context) (net.IP, error) {
	out, err := c.run.Run(ctx, "nmcli", "-g", "IP4.ADDRESS", "device", "show", c.iface)
	if err != nil {
		return nil, fmt.Errorf("read address: %w", err)
	}
	for _, field := range strings.FieldsFunc(string(out), func(r rune) bool { return r == '|' || r == '\n' }) {
		addr, _, _ := strings.Cut(strings.TrimSpace(field), "/")
		if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil {
			return ip, nil
		}
	}
	return nil, fmt.Errorf("read address: %w", ErrNotConnected)
}

// Refresh reads the link state of the interface from NetworkManager. It
// brings Status in line with a network joined before the process started.
func (c *Connector) Refresh(ctx context.Context) (Status, error) {
	ip, err := c.address(ctx)
	switch {
	case err == nil:
		c.setStatus(Status{Connected: true, IPAddress: ip.String()})
	case errors.Is(err, ErrNotConnected):
		c.setStatus(Status{IPAddress: NoAddress})
		err = nil
	}
	return c.Status(), err
}

// Disconnect leaves the current network.
func (c *Connector) Disconnect(ctx context.Context) error {
	if !c.Status().Connected {
		return ErrNotConnected
	}
	if _, err := c.run.Run(ctx, "nmcli", "device", "disconnect", c.iface); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	c.setStatus(Status{IPAddress: NoAddress})
	return nil
}

func (c *Connector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Connector) setStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}
