package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig describes the NATS server events are published to.
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Name              string        `yaml:"name"`
	SubjectPrefix     string        `yaml:"subject_prefix"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	MaxReconnects     int           `yaml:"max_reconnects"`
}

// natsConn is the part of *nats.Conn the relay uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATS publishes envelopes to <prefix>.<device>.<kind>.
type NATS struct {
	conn   natsConn
	prefix string
}

// DialNATS connects to the server in config.
func DialNATS(config NATSConfig, logger *slog.Logger) (*NATS, error) {
	if config.URL == "" {
		return nil, ErrNoBroker
	}
	if config.Name == "" {
		config.Name = "loramon"
	}
	if config.ReconnectInterval == 0 {
		config.ReconnectInterval = 2 * time.Second
	}
	if config.MaxReconnects == 0 {
		config.MaxReconnects = -1
	}

	nc, err := nats.Connect(config.URL,
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectInterval),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "url", config.URL, "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", config.URL, err)
	}
	logger.Info("NATS connected", "url", nc.ConnectedUrl())
	return newNATS(nc, config), nil
}

func newNATS(conn natsConn, config NATSConfig) *NATS {
	return &NATS{conn: conn, prefix: config.SubjectPrefix}
}

// Publish implements Publisher. NATS core publishing is fire-and-forget, so
// ctx is only checked before the message is handed to the client.
func (n *NATS) Publish(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := env.payload()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	subject := Subject(n.prefix, env)
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}

func (n *NATS) String() string {
	return "nats"
}
