package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"i4.energy/across/smsbridge/carrier"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string `yaml:"serial_port"`
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int `yaml:"baud_rate"`
	// SimPIN is the SIM card PIN code
	SimPIN string `yaml:"sim_pin"`
	// TraceAT logs every byte exchanged with the modem at debug level
	TraceAT bool `yaml:"trace_at"`

	// PerModeTimeout bounds the registration wait for each radio mode
	PerModeTimeout time.Duration `yaml:"per_mode_timeout"`
	// PollInterval is the pause between registration queries
	PollInterval time.Duration `yaml:"poll_interval"`

	Log LogConfig `yaml:"log"`

	// SettingsPath is the directory of the persisted settings store
	SettingsPath string `yaml:"settings_path"`

	// PowerKeyPin and LEDPin name GPIO lines (e.g. "GPIO4"). Empty disables
	// the respective output.
	PowerKeyPin string `yaml:"power_key_pin"`
	LEDPin      string `yaml:"led_pin"`

	// WifiInterface is the wireless device the configuration channel manages
	WifiInterface string `yaml:"wifi_interface"`

	MQTT MQTTConfig `yaml:"mqtt"`

	// Carriers are tried before the built-in carrier table
	Carriers []carrier.Profile `yaml:"carriers"`
}

// LogConfig controls the log level and destination
type LogConfig struct {
	// Level sets the logging level (e.g. "debug", "info", "warn", "error")
	Level string `yaml:"level"`
	// File enables a rotating log file instead of stderr
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
}

// MQTTConfig configures the broker connection. An empty Broker disables MQTT.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.PerModeTimeout = 90 * time.Second
		c.PollInterval = time.Second
		c.Log = LogConfig{Level: "info", MaxSize: 10, MaxBackups: 3, MaxAge: 28}
		c.SettingsPath = "/var/lib/smsbridge"
		c.WifiInterface = "wlan0"
		c.MQTT.ClientID = "smsbridge"
		c.MQTT.TopicPrefix = "smsbridge"
		return nil
	}
}

// WithFile loads configuration from a YAML file. An empty path is a no-op.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		for key, set := range c.setters() {
			if v := os.Getenv(envName(key)); v != "" {
				if err := set(v); err != nil {
					return fmt.Errorf("%s: %w", envName(key), err)
				}
			}
		}
		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		setters := c.setters()
		var err error
		fSet.Visit(func(f *flag.Flag) {
			set, ok := setters[f.Name]
			if !ok || err != nil {
				return
			}
			if e := set(f.Value.String()); e != nil {
				err = fmt.Errorf("-%s: %w", f.Name, e)
			}
		})
		return err
	}
}

// envName maps a flag name to its environment variable, e.g. "baud-rate" to
// "BAUD_RATE".
func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// setters maps every flag name to the field it sets.
func (c *Config) setters() map[string]func(string) error {
	str := func(p *string) func(string) error {
		return func(v string) error { *p = v; return nil }
	}
	num := func(p *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*p = n
			return nil
		}
	}
	dur := func(p *time.Duration) func(string) error {
		return func(v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			*p = d
			return nil
		}
	}
	boolean := func(p *bool) func(string) error {
		return func(v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*p = b
			return nil
		}
	}

	return map[string]func(string) error{
		"bind-address":      str(&c.BindAddress),
		"serial-port":       str(&c.SerialPort),
		"baud-rate":         num(&c.BaudRate),
		"sim-pin":           str(&c.SimPIN),
		"trace-at":          boolean(&c.TraceAT),
		"per-mode-timeout":  dur(&c.PerModeTimeout),
		"poll-interval":     dur(&c.PollInterval),
		"log-level":         str(&c.Log.Level),
		"log-file":          str(&c.Log.File),
		"settings-path":     str(&c.SettingsPath),
		"power-key-pin":     str(&c.PowerKeyPin),
		"led-pin":           str(&c.LEDPin),
		"wifi-interface":    str(&c.WifiInterface),
		"mqtt-broker":       str(&c.MQTT.Broker),
		"mqtt-client-id":    str(&c.MQTT.ClientID),
		"mqtt-topic-prefix": str(&c.MQTT.TopicPrefix),
		"mqtt-username":     str(&c.MQTT.Username),
		"mqtt-password":     str(&c.MQTT.Password),
	}
}

// Resolver builds the carrier resolver from the configured carriers followed
// by the built-in table.
func (c *Config) Resolver() (*carrier.Resolver, error) {
	profiles := append(append([]carrier.Profile(nil), c.Carriers...), carrier.Builtin()...)
	return carrier.NewResolver(profiles, nil)
}
