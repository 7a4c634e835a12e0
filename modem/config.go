package modem

import (
	"log/slog"
	"time"

	"i4.energy/across/smsbridge/carrier"
	"i4.energy/across/smsbridge/registration"
)

// Config holds the modem settings. Build one with NewConfigBuilder.
type Config struct {
	dialer    Dialer
	simPIN    string
	power     PowerLine
	indicator registration.Indicator
	resolver  *carrier.Resolver
	logger    *slog.Logger
	trace     bool
	keepAwake bool

	// atTimeout bounds ordinary commands.
	atTimeout time.Duration
	// initTimeout bounds the handshake after power-on.
	initTimeout time.Duration
	// regQueryTimeout bounds a single AT+CREG? query.
	regQueryTimeout time.Duration
	// sendTimeout bounds the wait for +CMGS after a message body.
	sendTimeout time.Duration
	// operatorTimeout bounds AT+COPS, which the modem may hold until it has
	// attempted the selection.
	operatorTimeout time.Duration

	perModeTimeout time.Duration
	pollInterval   time.Duration
	settleDelay    time.Duration
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.atTimeout <= 0 {
		c.atTimeout = 5 * time.Second
	}
	if c.initTimeout <= 0 {
		c.initTimeout = 10 * time.Second
	}
	if c.regQueryTimeout <= 0 {
		c.regQueryTimeout = 2 * time.Second
	}
	if c.sendTimeout <= 0 {
		c.sendTimeout = 60 * time.Second
	}
	if c.operatorTimeout <= 0 {
		c.operatorTimeout = 10 * time.Second
	}
	if c.perModeTimeout <= 0 {
		c.perModeTimeout = registration.DefaultPerModeTimeout
	}
	if c.pollInterval <= 0 {
		c.pollInterval = registration.DefaultPollInterval
	}
	if c.settleDelay < 0 {
		c.settleDelay = 0
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.resolver == nil {
		// The built-in table is validated by the carrier package tests.
		c.resolver, _ = carrier.NewResolver(carrier.Builtin(), nil)
	}
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{config: Config{
		keepAwake:   true,
		settleDelay: registration.DefaultSettleDelay,
	}}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

func (b *ConfigBuilder) WithSimPIN(pin string) *ConfigBuilder {
	b.config.simPIN = pin
	return b
}

func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.atTimeout = d
	return b
}

func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.initTimeout = d
	return b
}

func (b *ConfigBuilder) WithRegistrationQueryTimeout(d time.Duration) *ConfigBuilder {
	b.config.regQueryTimeout = d
	return b
}

func (b *ConfigBuilder) WithSendTimeout(d time.Duration) *ConfigBuilder {
	b.config.sendTimeout = d
	return b
}

func (b *ConfigBuilder) WithOperatorTimeout(d time.Duration) *ConfigBuilder {
	b.config.operatorTimeout = d
	return b
}

// WithPerModeTimeout sets how long each radio mode gets to register.
func (b *ConfigBuilder) WithPerModeTimeout(d time.Duration) *ConfigBuilder {
	b.config.perModeTimeout = d
	return b
}

func (b *ConfigBuilder) WithPollInterval(d time.Duration) *ConfigBuilder {
	b.config.pollInterval = d
	return b
}

// WithSettleDelay sets the pause after switching radio mode. Zero disables it.
func (b *ConfigBuilder) WithSettleDelay(d time.Duration) *ConfigBuilder {
	b.config.settleDelay = d
	return b
}

// WithPowerLine enables power sequencing through the modem's power key.
func (b *ConfigBuilder) WithPowerLine(p PowerLine) *ConfigBuilder {
	b.config.power = p
	return b
}

func (b *ConfigBuilder) WithIndicator(i registration.Indicator) *ConfigBuilder {
	b.config.indicator = i
	return b
}

func (b *ConfigBuilder) WithResolver(r *carrier.Resolver) *ConfigBuilder {
	b.config.resolver = r
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

// WithTrace logs every byte exchanged with the modem at debug level.
func (b *ConfigBuilder) WithTrace(on bool) *ConfigBuilder {
	b.config.trace = on
	return b
}

// WithKeepAwake controls whether DTR is asserted on serial transports.
func (b *ConfigBuilder) WithKeepAwake(on bool) *ConfigBuilder {
	b.config.keepAwake = on
	return b
}

func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
