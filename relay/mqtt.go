package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig describes the MQTT broker events are published to.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	// Timeout bounds connecting and every publish acknowledgement.
	Timeout time.Duration `yaml:"timeout"`
}

// mqttClient is the part of mqtt.Client the relay uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes envelopes to <prefix>/<device>/<kind>.
type MQTT struct {
	client  mqttClient
	prefix  string
	qos     byte
	timeout time.Duration
}

// DialMQTT connects to the broker in config. The client reconnects on its
// own after the first successful connection.
func DialMQTT(config MQTTConfig, logger *slog.Logger) (*MQTT, error) {
	if config.Broker == "" {
		return nil, ErrNoBroker
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.ClientID == "" {
		config.ClientID = "loramon"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(config.Timeout)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("MQTT connected", "broker", config.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "broker", config.Broker, "error", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(config.Timeout) {
		return nil, fmt.Errorf("connect to %s: %w", config.Broker, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", config.Broker, err)
	}
	return newMQTT(client, config), nil
}

func newMQTT(client mqttClient, config MQTTConfig) *MQTT {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	return &MQTT{
		client:  client,
		prefix:  config.TopicPrefix,
		qos:     config.QoS,
		timeout: config.Timeout,
	}
}

// Publish implements Publisher. It waits for the broker's acknowledgement
// up to the configured timeout or until ctx ends.
func (m *MQTT) Publish(ctx context.Context, env Envelope) error {
	data, err := env.payload()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	topic := Topic(m.prefix, env)
	token := m.client.Publish(topic, m.qos, false, data)

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("mqtt %s: %w", topic, ErrPublishTimeout)
	case <-ctx.Done():
		return fmt.Errorf("mqtt %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt %s: %w", topic, err)
	}
	return nil
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}

func (m *MQTT) String() string {
	return "mqtt"
}
