package device_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"i4.energy/across/loramon/device"
)

const eventWait = 2 * time.Second

// fastConfig returns a builder with protocol delays shrunk for tests.
func fastConfig(role device.Role, dialer device.Dialer) *device.ConfigBuilder {
	return device.NewConfigBuilder().
		WithRole(role).
		WithDialer(dialer).
		WithPortName("/dev/test-" + strings.ToLower(role.String())).
		WithSettleDelay(time.Millisecond).
		WithPollInterval(time.Millisecond).
		WithErrorPause(5 * time.Millisecond).
		WithTemperatureTimeout(300 * time.Millisecond).
		WithSendInterval(time.Hour)
}

func newSession(t *testing.T, b *device.ConfigBuilder) *device.Session {
	t.Helper()
	config, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	s, err := device.New(config)
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}
	return s
}

// startSession starts a session over a fresh TestTransport and registers
// Stop as cleanup.
func startSession(t *testing.T, b *device.ConfigBuilder) (*device.Session, *device.TestTransport) {
	t.Helper()
	transport := device.NewTestTransport()
	s := newSession(t, b.WithDialer(device.StaticDialer{Transport: transport}))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error from Start(): %v", err)
	}
	t.Cleanup(func() { s.Stop() })
	return s, transport
}

// waitEvent consumes events until match accepts one.
func waitEvent(t *testing.T, s *device.Session, match func(device.Event) bool) device.Event {
	t.Helper()
	deadline := time.After(eventWait)
	for {
		select {
		case ev := <-s.Events():
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("%s: expected event not received within %v", s.Role(), eventWait)
			return device.Event{}
		}
	}
}

func statusIs(text string) func(device.Event) bool {
	return func(ev device.Event) bool {
		return ev.Kind == device.KindStatus && ev.Text == text
	}
}

func statusHasPrefix(prefix string) func(device.Event) bool {
	return func(ev device.Event) bool {
		return ev.Kind == device.KindStatus && strings.HasPrefix(ev.Text, prefix)
	}
}

func messageIs(text string) func(device.Event) bool {
	return func(ev device.Event) bool {
		return ev.Kind == device.KindMessage && ev.Text == text
	}
}

func connectionIs(connected bool) func(device.Event) bool {
	return func(ev device.Event) bool {
		return ev.Kind == device.KindConnection && ev.Connected == connected
	}
}

// drainEvents returns everything currently buffered on the event channel.
func drainEvents(s *device.Session) []device.Event {
	var out []device.Event
	for {
		select {
		case ev := <-s.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

// waitWrite returns the next write that starts with prefix.
func waitWrite(t *testing.T, transport *device.TestTransport, prefix string) string {
	t.Helper()
	deadline := time.After(eventWait)
	for {
		select {
		case w := <-transport.Writes():
			if strings.HasPrefix(w, prefix) {
				return w
			}
		case <-deadline:
			t.Fatalf("no write starting with %q within %v", prefix, eventWait)
			return ""
		}
	}
}
