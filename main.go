package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// exitRestart tells the service manager that a restart was requested rather
// than that the process failed.
const exitRestart = 3

func main() {
	configFile := flag.String("config", "", "Path to a YAML configuration file")
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the modem")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("log-file", "", "Write logs to this file, rotated, instead of stderr")
	flag.String("sim-pin", "", "SIM card PIN code (if required)")
	flag.Bool("trace-at", false, "Log every exchange with the modem at debug level")
	flag.Duration("per-mode-timeout", 0, "Registration wait per radio mode")
	flag.Duration("poll-interval", 0, "Pause between registration queries")
	flag.String("settings-path", "/var/lib/smsbridge", "Directory of the settings store")
	flag.String("power-key-pin", "", "GPIO driving the modem power key")
	flag.String("led-pin", "", "GPIO driving the status LED")
	flag.String("wifi-interface", "wlan0", "Wireless interface managed by the configuration channel")
	flag.String("mqtt-broker", "", "MQTT broker URL, empty disables MQTT")
	flag.String("mqtt-client-id", "smsbridge", "MQTT client ID")
	flag.String("mqtt-topic-prefix", "smsbridge", "Prefix of every MQTT topic")
	flag.String("mqtt-username", "", "MQTT username")
	flag.String("mqtt-password", "", "MQTT password")
	flag.Parse()

	os.Exit(run(*configFile))
}

func run(configFile string) int {
	config, err := LoadConfig(WithDefaults(), WithFile(configFile), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	logger, logCloser := newLogger(config.Log)
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, config, logger)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		return 1
	}

	logger.Info("Starting SMS bridge", "serial_port", config.SerialPort, "bind_address", config.BindAddress)

	err = app.Run(ctx)
	if cerr := app.Close(); cerr != nil {
		logger.Error("Failed to close", "error", cerr)
	}
	switch {
	case errors.Is(err, errRestartRequested):
		logger.Info("Exiting for restart")
		return exitRestart
	case err != nil:
		logger.Error("Stopped", "error", err)
		return 1
	}
	logger.Info("Stopped")
	return 0
}
