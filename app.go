package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"i4.energy/across/smsbridge/board"
	"i4.energy/across/smsbridge/gateway"
	"i4.energy/across/smsbridge/modem"
	"i4.energy/across/smsbridge/probe"
	"i4.energy/across/smsbridge/provision"
	"i4.energy/across/smsbridge/settings"
	"i4.energy/across/smsbridge/wifi"
)

const shutdownTimeout = 30 * time.Second

// errRestartRequested ends Run when a configuration write asked for a
// restart. The service manager is expected to start the process again.
var (
	errRestartRequested = errors.New("restart requested")
	errModemLost        = errors.New("modem connection lost")
)

// App owns every component of the process. It is built once by NewApp and
// torn down by Close.
type App struct {
	config *Config
	logger *slog.Logger

	store      settings.Store
	powerKey   *board.PowerKey
	led        *board.LED
	modem      *modem.Modem
	supervisor *modem.Supervisor
	gateway    *gateway.Gateway
	wifi       *wifi.Connector
	probes     *probe.Registry
	handler    *provision.Handler
	dispatcher *provision.Dispatcher
	mqtt       *provision.MQTT
	http       *http.Server

	restart chan struct{}
	closers []io.Closer
}

// NewApp opens the settings store and the modem and wires the components.
func NewApp(ctx context.Context, cfg *Config, logger *slog.Logger) (*App, error) {
	a := &App{
		config:  cfg,
		logger:  logger,
		restart: make(chan struct{}, 1),
	}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.config

	store, err := settings.OpenBadger(cfg.SettingsPath)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store)

	current, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	a.logger.Info("Settings loaded", "settings", current.Sanitized())

	a.powerKey, a.led, err = board.Open(cfg.PowerKeyPin, cfg.LEDPin)
	if err != nil {
		return fmt.Errorf("open board: %w", err)
	}

	resolver, err := cfg.Resolver()
	if err != nil {
		return err
	}

	builder := modem.NewConfigBuilder().
		WithSimPIN(cfg.SimPIN).
		WithPerModeTimeout(cfg.PerModeTimeout).
		WithPollInterval(cfg.PollInterval).
		WithResolver(resolver).
		WithTrace(cfg.TraceAT).
		WithKeepAwake(true).
		WithLogger(a.logger.With("component", "modem")).
		WithDialer(modem.SerialDialer{
			PortName: cfg.SerialPort,
			BaudRate: cfg.BaudRate,
		})
	if a.powerKey != nil {
		builder = builder.WithPowerLine(a.powerKey)
	}
	if a.led != nil {
		builder = builder.WithIndicator(a.led)
	}
	modemConfig, err := builder.Build()
	if err != nil {
		return fmt.Errorf("modem config: %w", err)
	}

	a.modem, err = modem.New(ctx, modemConfig)
	if err != nil {
		return fmt.Errorf("open modem: %w", err)
	}

	a.supervisor = modem.NewSupervisor(a.modem, modem.WithSupervisorLogger(a.logger.With("component", "supervisor")))
	a.gateway = gateway.New(a.modem,
		gateway.WithLogger(a.logger.With("component", "gateway")),
		gateway.WithIndicator(a.led),
	)
	a.wifi = wifi.NewConnector(cfg.WifiInterface, wifi.WithLogger(a.logger.With("component", "wifi")))

	a.probes = probe.NewRegistry()

	opts := []provision.Option{
		provision.WithLogger(a.logger.With("component", "provision")),
		provision.WithOnChange(a.supervisor.Trigger),
		provision.WithRestart(a.requestRestart),
	}
	if cfg.MQTT.Broker != "" {
		a.mqtt = provision.NewMQTT(provision.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
		}, a.gateway, a.deviceName, a.logger.With("component", "mqtt"))
		opts = append(opts, provision.WithNotifier(a.mqtt), provision.WithAdvertiser(a.mqtt))
	}
	a.handler = provision.NewHandler(store, current, a.wifi, a.probes, opts...)
	a.dispatcher = provision.NewDispatcher(a.handler, provision.WithDispatcherLogger(a.logger.With("component", "dispatcher")))

	if err := a.registerProbes(); err != nil {
		return err
	}

	server := &Server{
		Logger:    a.logger.With("component", "server"),
		Gateway:   a.gateway,
		Status:    a.probes,
		Indicator: a.led,
	}
	a.http = &http.Server{
		Addr:              cfg.BindAddress,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

func (a *App) deviceName() string {
	return a.handler.Settings().DeviceName
}

func (a *App) registerProbes() error {
	probes := map[string]probe.Probe{
		"wifiStatus": func() any { return a.wifi.Status() },
		"settings":   func() any { return a.handler.Settings().Sanitized() },
		"modem": func() any {
			return struct {
				State      string                 `json:"state"`
				Registered bool                   `json:"registered"`
				Supervisor modem.SupervisorStatus `json:"supervisor"`
			}{
				State:      a.modem.State(),
				Registered: a.modem.State() == modem.StateCsRegistered,
				Supervisor: a.supervisor.Status(),
			}
		},
		"registration": func() any { return a.modem.RegistrationSnapshot() },
	}
	for _, name := range []string{"wifiStatus", "settings", "modem", "registration"} {
		if err := a.probes.Register(name, probes[name]); err != nil {
			return fmt.Errorf("register probe %s: %w", name, err)
		}
	}
	return nil
}

func (a *App) requestRestart() {
	select {
	case a.restart <- struct{}{}:
	default:
	}
}

// Run serves until ctx is done, a component fails or a restart is requested.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("Starting HTTP server", "address", a.http.Addr)
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("Closing HTTP server")
		if err := a.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error { return a.supervisor.Run(ctx) })
	g.Go(func() error { return a.dispatcher.Run(ctx) })
	g.Go(func() error { return a.logURCs(ctx) })
	if a.mqtt != nil {
		g.Go(func() error { return a.mqtt.Run(ctx, a.dispatcher) })
	}
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-a.restart:
			return errRestartRequested
		case <-a.modem.Done():
			return errModemLost
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// logURCs reports unsolicited modem output, such as incoming message
// indications, until the modem or ctx is done.
func (a *App) logURCs(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.modem.Done():
			return nil
		case urc := <-a.modem.URC():
			a.logger.Debug("Unsolicited modem output", "urc", urc)
		}
	}
}

// Close releases the resources in reverse order of acquisition; the modem is
// always last.
func (a *App) Close() error {
	a.led.Set(false)
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	if a.modem != nil {
		a.logger.Info("Closing modem connection")
		errs = append(errs, a.modem.Close())
	}
	return errors.Join(errs...)
}
