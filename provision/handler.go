package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"i4.energy/across/smsbridge/settings"
	"i4.energy/across/smsbridge/wifi"
)

// Notifications pushed to the client after a write.
const (
	notifyConnectedPrefix = "S:WC,NR,IP:"
	NotifyConnectFailed   = "S:WF,NR"
	NotifySettingsChanged = "S:SI,NR"
)

// NotifyConnected is sent when the device joined the network at addr.
func NotifyConnected(addr string) string {
	return notifyConnectedPrefix + addr
}

var (
	ErrEmptyPayload   = errors.New("empty configuration payload")
	ErrInvalidPayload = errors.New("invalid configuration payload")
	ErrUnknownEvent   = errors.New("unknown event")
)

// Notifier pushes a short status string to the connected client.
type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// Advertiser makes the device discoverable for provisioning.
type Advertiser interface {
	StartAdvertising(ctx context.Context) error
	StopAdvertising(ctx context.Context) error
}

// Connector joins the wireless network. *wifi.Connector implements it.
type Connector interface {
	Connect(ctx context.Context, creds wifi.Credentials) (net.IP, error)
	Disconnect(ctx context.Context) error
	Refresh(ctx context.Context) (wifi.Status, error)
	Status() wifi.Status
}

// Snapshotter answers a read with the status of every component.
type Snapshotter interface {
	JSON() ([]byte, error)
}

type Option func(*Handler)

func WithNotifier(n Notifier) Option {
	return func(h *Handler) { h.notifier = n }
}

func WithAdvertiser(a Advertiser) Option {
	return func(h *Handler) { h.advertiser = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithOnChange registers a hook that runs after accepted settings were saved.
func WithOnChange(fn func()) Option {
	return func(h *Handler) { h.onChange = fn }
}

// WithRestart registers the hook a write with "restart": true invokes.
func WithRestart(fn func()) Option {
	return func(h *Handler) { h.restart = fn }
}

// Handler reacts to configuration channel events. Handle is meant to be
// called from a single goroutine, normally a Dispatcher; Settings may be
// called from anywhere.
type Handler struct {
	store      settings.Store
	wifi       Connector
	status     Snapshotter
	notifier   Notifier
	advertiser Advertiser
	onChange   func()
	restart    func()
	logger     *slog.Logger

	mu      sync.Mutex
	current settings.Settings
	clients int

	table map[EventKind]func(context.Context, Event) error
}

func NewHandler(store settings.Store, current settings.Settings, conn Connector, status Snapshotter, opts ...Option) *Handler {
	h := &Handler{
		store:    store,
		wifi:     conn,
		status:   status,
		logger:   slog.Default(),
		current:  current,
		onChange: func() {},
		restart:  func() {},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.table = map[EventKind]func(context.Context, Event) error{
		Connected:    h.connected,
		Disconnected: h.disconnected,
		ConfigRead:   h.read,
		ConfigWrite:  h.write,
	}
	return h
}

// Handle dispatches ev to its handler.
func (h *Handler) Handle(ctx context.Context, ev Event) error {
	fn, ok := h.table[ev.Kind]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownEvent, ev.Kind)
	}
	return fn(ctx, ev)
}

// Settings returns the settings currently in effect.
func (h *Handler) Settings() settings.Settings {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Clients returns the number of connected configuration clients.
func (h *Handler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients
}

func (h *Handler) connected(_ context.Context, ev Event) error {
	h.mu.Lock()
	h.clients++
	h.mu.Unlock()
	h.logger.Info("Client connected", "client", ev.Client)
	return nil
}

func (h *Handler) disconnected(ctx context.Context, ev Event) error {
	h.mu.Lock()
	h.clients = max(0, h.clients-1)
	h.mu.Unlock()
	h.logger.Info("Client disconnected", "client", ev.Client)

	if h.advertiser != nil && !h.wifi.Status().Connected {
		if err := h.advertiser.StartAdvertising(ctx); err != nil {
			return fmt.Errorf("resume advertising: %w", err)
		}
		h.logger.Info("Advertising resumed")
	}
	return nil
}

func (h *Handler) read(_ context.Context, ev Event) error {
	h.logger.Info("Read request received", "client", ev.Client)
	data, err := h.status.JSON()
	if err != nil {
		return fmt.Errorf("collect status: %w", err)
	}
	if ev.Reply != nil {
		ev.Reply(data)
	}
	return nil
}

// write applies a configuration payload. Fields of the wrong type are
// ignored; the network credentials only count when both are present.
func (h *Handler) write(ctx context.Context, ev Event) error {
	if len(ev.Payload) == 0 {
		return ErrEmptyPayload
	}
	var doc map[string]any
	if err := json.Unmarshal(ev.Payload, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	next := h.Settings()
	var changed, nameChanged, reconnect bool

	if name, ok := doc["deviceName"].(string); ok {
		next.DeviceName = name
		changed, nameChanged = true, true
		h.logger.Info("Device name received", "deviceName", name)
	}
	ssid, okSSID := doc["ssid"].(string)
	password, okPassword := doc["password"].(string)
	if okSSID && okPassword {
		next.SSID, next.Password = ssid, password
		changed, reconnect = true, true
		h.logger.Info("Network credentials received", "ssid", ssid)
	}

	if changed {
		if err := h.store.Save(ctx, next); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		h.mu.Lock()
		h.current = next
		h.mu.Unlock()
	}

	if reconnect {
		h.reconnect(ctx, next)
	}
	if nameChanged {
		h.logger.Info("Settings changed, restart required to apply")
		h.notify(ctx, NotifySettingsChanged)
	}
	if changed {
		h.onChange()
	}

	if restart, ok := doc["restart"].(bool); ok && restart {
		h.logger.Info("Restarting to apply new settings")
		h.restart()
	}
	return nil
}

func (h *Handler) reconnect(ctx context.Context, s settings.Settings) {
	if h.wifi.Status().Connected {
		h.logger.Info("Disconnecting from network")
		if err := h.wifi.Disconnect(ctx); err != nil {
			h.logger.Warn("Failed to disconnect", "error", err)
		}
	}

	ip, err := h.wifi.Connect(ctx, wifi.Credentials{SSID: s.SSID, Password: s.Password, Hostname: s.DeviceName})
	if err != nil {
		h.logger.Error("Failed to connect to network", "ssid", s.SSID, "error", err)
		h.notify(ctx, NotifyConnectFailed)
		return
	}
	h.notify(ctx, NotifyConnected(ip.String()))
}

func (h *Handler) notify(ctx context.Context, msg string) {
	if h.notifier == nil {
		h.logger.Debug("No notifier, dropping notification", "notification", msg)
		return
	}
	if err := h.notifier.Notify(ctx, msg); err != nil {
		h.logger.Warn("Failed to notify client", "notification", msg, "error", err)
	}
}

// Start reads the current link state and, when the device is offline but
// has stored credentials, makes one attempt to join that network. Advertising
// then follows the outcome.
func (h *Handler) Start(ctx context.Context) {
	if _, err := h.wifi.Refresh(ctx); err != nil {
		h.logger.Warn("Failed to read network state", "error", err)
	}

	s := h.Settings()
	switch {
	case h.wifi.Status().Connected:
		h.logger.Info("Already on the network", "ip", h.wifi.Status().IPAddress)
	case s.SSID != "":
		ip, err := h.wifi.Connect(ctx, wifi.Credentials{SSID: s.SSID, Password: s.Password, Hostname: s.DeviceName})
		if err != nil {
			h.logger.Error("Failed to connect to stored network", "ssid", s.SSID, "error", err)
			break
		}
		h.logger.Info("Connected to stored network", "ssid", s.SSID, "ip", ip)
	default:
		h.logger.Info("No stored network, waiting for configuration")
	}

	h.Housekeep(ctx)
}

// Housekeep adjusts advertising to the network state: a device that is on
// the network stops advertising, one that is not starts again.
func (h *Handler) Housekeep(ctx context.Context) {
	if h.advertiser == nil {
		return
	}
	if h.wifi.Status().Connected {
		h.logger.Debug("Stop advertising")
		if err := h.advertiser.StopAdvertising(ctx); err != nil {
			h.logger.Warn("Failed to stop advertising", "error", err)
		}
		return
	}
	h.logger.Debug("Start advertising")
	if err := h.advertiser.StartAdvertising(ctx); err != nil {
		h.logger.Warn("Failed to start advertising", "error", err)
	}
}
