package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"i4.energy/across/loramon/device"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeMQTT struct {
	mu           sync.Mutex
	published    []published
	token        mqtt.Token
	disconnected bool
}

func (c *fakeMQTT) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic, qos, payload.([]byte)})
	return c.token
}

func (c *fakeMQTT) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

type fakeNATS struct {
	subjects []string
	data     [][]byte
	err      error
	drained  bool
}

func (c *fakeNATS) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.data = append(c.data, data)
	return nil
}

func (c *fakeNATS) Drain() error {
	c.drained = true
	return nil
}

func sampleEvent() device.Event {
	return device.Event{
		Kind:   device.KindMessage,
		Device: "Receiver",
		Text:   "Received message: Hello",
		Time:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewEnvelope(t *testing.T) {
	env := NewEnvelope(sampleEvent())

	if _, err := uuid.Parse(env.ID); err != nil {
		t.Errorf("expected a uuid id, got %q: %v", env.ID, err)
	}
	if env.Device != "Receiver" || env.Kind != "message" || env.Text != "Received message: Hello" {
		t.Errorf("unexpected envelope: %+v", env)
	}
	if other := NewEnvelope(sampleEvent()); other.ID == env.ID {
		t.Error("expected distinct ids per envelope")
	}
}

func TestTopicAndSubject(t *testing.T) {
	status := NewEnvelope(device.Event{Kind: device.KindStatus, Device: "Transmitter"})
	connection := NewEnvelope(device.Event{Kind: device.KindConnection, Device: "Receiver"})

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"topic", Topic("loramon", status), "loramon/transmitter/status"},
		{"topic trailing slash", Topic("site/a/", connection), "site/a/receiver/connection"},
		{"topic without prefix", Topic("", status), "transmitter/status"},
		{"subject", Subject("loramon", connection), "loramon.receiver.connection"},
		{"subject without prefix", Subject("", status), "transmitter.status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, tt.got)
			}
		})
	}
}

func TestMQTTPublish(t *testing.T) {
	t.Run("Publishes JSON envelope", func(t *testing.T) {
		client := &fakeMQTT{token: completedToken(nil)}
		m := newMQTT(client, MQTTConfig{TopicPrefix: "loramon", QoS: 1})

		env := NewEnvelope(sampleEvent())
		if err := m.Publish(context.Background(), env); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(client.published) != 1 {
			t.Fatalf("expected 1 publish, got %d", len(client.published))
		}
		p := client.published[0]
		if p.topic != "loramon/receiver/message" {
			t.Errorf("unexpected topic %q", p.topic)
		}
		if p.qos != 1 {
			t.Errorf("expected qos 1, got %d", p.qos)
		}
		var got Envelope
		if err := json.Unmarshal(p.payload, &got); err != nil {
			t.Fatalf("payload is not JSON: %v", err)
		}
		if got.ID != env.ID || got.Text != env.Text || !got.Time.Equal(env.Time) {
			t.Errorf("expected %+v, got %+v", env, got)
		}
	})

	t.Run("Broker error", func(t *testing.T) {
		brokerErr := errors.New("not authorized")
		m := newMQTT(&fakeMQTT{token: completedToken(brokerErr)}, MQTTConfig{})

		if err := m.Publish(context.Background(), NewEnvelope(sampleEvent())); !errors.Is(err, brokerErr) {
			t.Errorf("expected broker error, got: %v", err)
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		pending := &fakeToken{done: make(chan struct{})}
		m := newMQTT(&fakeMQTT{token: pending}, MQTTConfig{Timeout: 10 * time.Millisecond})

		if err := m.Publish(context.Background(), NewEnvelope(sampleEvent())); !errors.Is(err, ErrPublishTimeout) {
			t.Errorf("expected ErrPublishTimeout, got: %v", err)
		}
	})

	t.Run("Context canceled", func(t *testing.T) {
		pending := &fakeToken{done: make(chan struct{})}
		m := newMQTT(&fakeMQTT{token: pending}, MQTTConfig{Timeout: time.Minute})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := m.Publish(ctx, NewEnvelope(sampleEvent())); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got: %v", err)
		}
	})

	t.Run("Close disconnects", func(t *testing.T) {
		client := &fakeMQTT{token: completedToken(nil)}
		if err := newMQTT(client, MQTTConfig{}).Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !client.disconnected {
			t.Error("expected client to be disconnected")
		}
	})
}

func TestNATSPublish(t *testing.T) {
	t.Run("Publishes JSON envelope", func(t *testing.T) {
		conn := &fakeNATS{}
		n := newNATS(conn, NATSConfig{SubjectPrefix: "loramon"})

		if err := n.Publish(context.Background(), NewEnvelope(sampleEvent())); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(conn.subjects) != 1 || conn.subjects[0] != "loramon.receiver.message" {
			t.Fatalf("unexpected subjects %v", conn.subjects)
		}
		var got Envelope
		if err := json.Unmarshal(conn.data[0], &got); err != nil {
			t.Fatalf("payload is not JSON: %v", err)
		}
		if got.Kind != "message" {
			t.Errorf("expected kind message, got %q", got.Kind)
		}
	})

	t.Run("Connection error", func(t *testing.T) {
		connErr := errors.New("connection closed")
		n := newNATS(&fakeNATS{err: connErr}, NATSConfig{})

		if err := n.Publish(context.Background(), NewEnvelope(sampleEvent())); !errors.Is(err, connErr) {
			t.Errorf("expected connection error, got: %v", err)
		}
	})

	t.Run("Close drains", func(t *testing.T) {
		conn := &fakeNATS{}
		if err := newNATS(conn, NATSConfig{}).Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !conn.drained {
			t.Error("expected connection to be drained")
		}
	})
}

func TestDialWithoutBroker(t *testing.T) {
	if _, err := DialMQTT(MQTTConfig{}, nil); !errors.Is(err, ErrNoBroker) {
		t.Errorf("MQTT: expected ErrNoBroker, got: %v", err)
	}
	if _, err := DialNATS(NATSConfig{}, nil); !errors.Is(err, ErrNoBroker) {
		t.Errorf("NATS: expected ErrNoBroker, got: %v", err)
	}
}
