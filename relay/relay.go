// Package relay forwards session events to message brokers.
//
// Every event is wrapped in an Envelope and published as JSON. Brokers are
// optional: the monitor runs with any number of publishers, including none.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"i4.energy/across/loramon/device"
)

var (
	// ErrPublishTimeout is returned when the broker did not acknowledge a
	// publish within the configured timeout.
	ErrPublishTimeout = errors.New("publish timed out")

	// ErrNoBroker is returned by the dial functions when no broker address
	// is configured.
	ErrNoBroker = errors.New("no broker configured")
)

// Publisher delivers envelopes to one broker.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// Envelope is the wire form of a session event.
type Envelope struct {
	ID        string    `json:"id"`
	Device    string    `json:"device"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text,omitempty"`
	Connected bool      `json:"connected"`
	Time      time.Time `json:"time"`
}

// NewEnvelope wraps ev under a fresh random id.
func NewEnvelope(ev device.Event) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Device:    ev.Device,
		Kind:      ev.Kind.String(),
		Text:      ev.Text,
		Connected: ev.Connected,
		Time:      ev.Time,
	}
}

func (e Envelope) payload() ([]byte, error) {
	return json.Marshal(e)
}

// Topic returns the MQTT topic of env under prefix, e.g.
// loramon/transmitter/status.
func Topic(prefix string, env Envelope) string {
	return join("/", prefix, env)
}

// Subject returns the NATS subject of env under prefix, e.g.
// loramon.receiver.message.
func Subject(prefix string, env Envelope) string {
	return join(".", prefix, env)
}

func join(sep, prefix string, env Envelope) string {
	parts := make([]string, 0, 3)
	if p := strings.Trim(prefix, sep); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, strings.ToLower(env.Device), env.Kind)
	return strings.Join(parts, sep)
}
