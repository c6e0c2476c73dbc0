package device

import (
	"fmt"
	"log/slog"
	"time"

	"i4.energy/across/loramon/at"
)

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

// Config describes one session. Zero durations are replaced by the
// module's protocol defaults.
type Config struct {
	Role     Role
	Dialer   Dialer
	PortName string
	Radio    at.RadioConfig

	// SendInterval is the minimum spacing between two transmissions.
	SendInterval time.Duration
	// SettleDelay follows every configuration command and the temperature
	// query; the module drops commands that arrive faster.
	SettleDelay time.Duration
	// PollInterval is the idle sleep of every loop iteration.
	PollInterval time.Duration
	// ErrorPause follows an I/O error inside the loop.
	ErrorPause time.Duration
	// TemperatureTimeout bounds the wait for a temperature response.
	TemperatureTimeout time.Duration

	EventBuffer int
	Logger      *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Radio == (at.RadioConfig{}) {
		c.Radio = at.DefaultRadioConfig()
	}
	if c.SendInterval == 0 {
		c.SendInterval = 5 * time.Second
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = 500 * time.Millisecond
	}
	if c.PollInterval == 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.ErrorPause == 0 {
		c.ErrorPause = time.Second
	}
	if c.TemperatureTimeout == 0 {
		c.TemperatureTimeout = 5 * time.Second
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = 100
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.PortName == "" {
		if s, ok := c.Dialer.(fmt.Stringer); ok {
			c.PortName = s.String()
		}
	}
}

// ConfigBuilder assembles a Config step by step.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithRole(role Role) *ConfigBuilder {
	b.config.Role = role
	return b
}

func (b *ConfigBuilder) WithDialer(dialer Dialer) *ConfigBuilder {
	b.config.Dialer = dialer
	return b
}

// WithSerialPort installs a SerialDialer for name and records name as the
// session's port.
func (b *ConfigBuilder) WithSerialPort(name string, baudRate int, readTimeout time.Duration) *ConfigBuilder {
	b.config.Dialer = SerialDialer{PortName: name, BaudRate: baudRate, ReadTimeout: readTimeout}
	b.config.PortName = name
	return b
}

func (b *ConfigBuilder) WithPortName(name string) *ConfigBuilder {
	b.config.PortName = name
	return b
}

func (b *ConfigBuilder) WithRadio(radio at.RadioConfig) *ConfigBuilder {
	b.config.Radio = radio
	return b
}

func (b *ConfigBuilder) WithSendInterval(d time.Duration) *ConfigBuilder {
	b.config.SendInterval = d
	return b
}

func (b *ConfigBuilder) WithSettleDelay(d time.Duration) *ConfigBuilder {
	b.config.SettleDelay = d
	return b
}

func (b *ConfigBuilder) WithPollInterval(d time.Duration) *ConfigBuilder {
	b.config.PollInterval = d
	return b
}

func (b *ConfigBuilder) WithErrorPause(d time.Duration) *ConfigBuilder {
	b.config.ErrorPause = d
	return b
}

func (b *ConfigBuilder) WithTemperatureTimeout(d time.Duration) *ConfigBuilder {
	b.config.TemperatureTimeout = d
	return b
}

func (b *ConfigBuilder) WithEventBuffer(n int) *ConfigBuilder {
	b.config.EventBuffer = n
	return b
}

func (b *ConfigBuilder) WithLogger(logger *slog.Logger) *ConfigBuilder {
	b.config.Logger = logger
	return b
}

// Build validates the configuration and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
