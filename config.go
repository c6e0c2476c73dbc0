package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
	"i4.energy/across/loramon/at"
	"i4.energy/across/loramon/relay"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the control server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`

	// TxPort is the serial port of the transmitting module (e.g. "/dev/ttyUSB0")
	TxPort string `yaml:"tx_port"`
	// RxPort is the serial port of the receiving module (e.g. "/dev/ttyUSB1")
	RxPort string `yaml:"rx_port"`
	// BaudRate is the UART speed of both modules
	BaudRate int `yaml:"baud_rate"`
	// ReadTimeout bounds a single serial read
	ReadTimeout time.Duration `yaml:"read_timeout"`

	Radio at.RadioConfig `yaml:"radio"`
	// SendInterval is the minimum spacing between two transmissions
	SendInterval time.Duration `yaml:"send_interval"`
	// ReceiverLead delays the transmitter start behind the receiver start
	ReceiverLead time.Duration `yaml:"receiver_lead"`

	// Message is queued on the transmitter right after start, if set
	Message string `yaml:"message"`
	// Duration stops the daemon after a fixed time, zero runs until signalled
	Duration time.Duration `yaml:"duration"`

	MQTT relay.MQTTConfig `yaml:"mqtt"`
	NATS relay.NATSConfig `yaml:"nats"`
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

	if config.TxPort == config.RxPort {
		return nil, fmt.Errorf("transmitter and receiver share port %q", config.TxPort)
	}
	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.LogLevel = "info"
		c.TxPort = "/dev/ttyUSB0"
		c.RxPort = "/dev/ttyUSB1"
		c.BaudRate = 9600
		c.ReadTimeout = time.Second
		c.Radio = at.DefaultRadioConfig()
		c.SendInterval = 5 * time.Second
		c.MQTT.TopicPrefix = "loramon"
		c.NATS.SubjectPrefix = "loramon"
		return nil
	}
}

// WithFile overlays the YAML file at path. An empty path or a missing file
// leaves the configuration unchanged.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
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
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if port := os.Getenv("TX_PORT"); port != "" {
			c.TxPort = port
		}

		if port := os.Getenv("RX_PORT"); port != "" {
			c.RxPort = port
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if interval := os.Getenv("SEND_INTERVAL"); interval != "" {
			if d, err := time.ParseDuration(interval); err == nil {
				c.SendInterval = d
			}
		}

		if broker := os.Getenv("MQTT_BROKER"); broker != "" {
			c.MQTT.Broker = broker
		}

		if user := os.Getenv("MQTT_USERNAME"); user != "" {
			c.MQTT.Username = user
		}

		if pass := os.Getenv("MQTT_PASSWORD"); pass != "" {
			c.MQTT.Password = pass
		}

		if url := os.Getenv("NATS_URL"); url != "" {
			c.NATS.URL = url
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var errs []error
		duration := func(name, value string, dst *time.Duration) {
			d, err := time.ParseDuration(value)
			if err != nil {
				errs = append(errs, fmt.Errorf("flag -%s: %w", name, err))
				return
			}
			*dst = d
		}

		fSet.Visit(func(f *flag.Flag) {
			value := f.Value.String()
			switch f.Name {
			case "bind-address":
				c.BindAddress = value
			case "log-level":
				c.LogLevel = value
			case "tx-port":
				c.TxPort = value
			case "rx-port":
				c.RxPort = value
			case "baud-rate":
				if b, err := strconv.Atoi(value); err == nil {
					c.BaudRate = b
				}
			case "frequency":
				if v, err := strconv.ParseFloat(value, 64); err == nil {
					c.Radio.FrequencyMHz = v
				}
			case "spreading-factor":
				if v, err := strconv.Atoi(value); err == nil {
					c.Radio.SpreadingFactor = v
				}
			case "power":
				if v, err := strconv.Atoi(value); err == nil {
					c.Radio.PowerDBm = v
				}
			case "send-interval":
				duration(f.Name, value, &c.SendInterval)
			case "receiver-lead":
				duration(f.Name, value, &c.ReceiverLead)
			case "duration":
				duration(f.Name, value, &c.Duration)
			case "message":
				c.Message = value
			case "mqtt-broker":
				c.MQTT.Broker = value
			case "nats-url":
				c.NATS.URL = value
			}
		})
		return errors.Join(errs...)
	}
}
