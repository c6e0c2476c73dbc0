// Package monitor runs a transmitter and a receiver session side by side.
//
// A Monitor starts and stops both sessions together, drains their event
// streams from a single goroutine, logs every event and hands it to one
// forwarding goroutine per configured relay.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"i4.energy/across/loramon/at"
	"i4.energy/across/loramon/device"
	"i4.energy/across/loramon/relay"
)

var (
	// ErrNoSession is returned by New when either role has no session.
	ErrNoSession = errors.New("monitor needs a transmitter and a receiver session")

	// ErrRoleMismatch is returned by New when a session is passed in the
	// other role's slot.
	ErrRoleMismatch = errors.New("session role mismatch")
)

// Config wires a Monitor.
type Config struct {
	Transmitter *device.Session
	Receiver    *device.Session
	// Publishers receive every event; publish errors are logged only.
	Publishers []relay.Publisher
	// ReceiverLead delays the transmitter start behind the receiver start.
	ReceiverLead time.Duration
	// PublishTimeout bounds a single relay publish.
	PublishTimeout time.Duration
	// RelayBuffer is the number of events queued per publisher before new
	// ones are dropped.
	RelayBuffer int
	Logger      *slog.Logger
}

// Monitor owns a transmitter/receiver pair.
type Monitor struct {
	tx, rx     *device.Session
	forwarders []*forwarder
	lead       time.Duration
	logger     *slog.Logger

	mu   sync.Mutex
	last map[device.Role]lastEvent
	// abort cancels the latest Start
	abort  context.CancelFunc
	closed bool
}

type lastEvent struct {
	status  string
	message string
	at      time.Time
}

// DeviceStatus is a snapshot of one session.
type DeviceStatus struct {
	Device      string    `json:"device"`
	Port        string    `json:"port"`
	State       string    `json:"state"`
	Connected   bool      `json:"connected"`
	LastStatus  string    `json:"last_status,omitempty"`
	LastMessage string    `json:"last_message,omitempty"`
	LastEvent   time.Time `json:"last_event,omitzero"`
}

func New(config Config) (*Monitor, error) {
	if config.Transmitter == nil || config.Receiver == nil {
		return nil, ErrNoSession
	}
	if config.Transmitter.Role() != device.Transmitter || config.Receiver.Role() != device.Receiver {
		return nil, ErrRoleMismatch
	}
	if config.PublishTimeout == 0 {
		config.PublishTimeout = 5 * time.Second
	}
	if config.RelayBuffer <= 0 {
		config.RelayBuffer = 64
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	forwarders := make([]*forwarder, 0, len(config.Publishers))
	for _, p := range config.Publishers {
		forwarders = append(forwarders, newForwarder(p, config.RelayBuffer, config.PublishTimeout, config.Logger))
	}

	return &Monitor{
		tx:         config.Transmitter,
		rx:         config.Receiver,
		forwarders: forwarders,
		lead:       config.ReceiverLead,
		logger:     config.Logger,
		last:       make(map[device.Role]lastEvent),
	}, nil
}

// Start starts both sessions concurrently, the transmitter ReceiverLead
// after the receiver. Both starts run to completion even if one fails; the
// first failure is returned. A Stop during Start aborts the starts still
// pending.
func (m *Monitor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.mu.Lock()
	m.abort = cancel
	m.mu.Unlock()

	var g errgroup.Group

	g.Go(func() error {
		if err := m.rx.Start(ctx); err != nil {
			return fmt.Errorf("%s: %w", m.rx.Role(), err)
		}
		return nil
	})
	g.Go(func() error {
		if m.lead > 0 {
			select {
			case <-time.After(m.lead):
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", m.tx.Role(), ctx.Err())
			}
		}
		if err := m.tx.Start(ctx); err != nil {
			return fmt.Errorf("%s: %w", m.tx.Role(), err)
		}
		return nil
	})
	return g.Wait()
}

// Stop stops both sessions. Stopping a session that is not running is a
// no-op, so Stop is safe after a partial Start.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.abort != nil {
		m.abort()
		m.abort = nil
	}
	m.mu.Unlock()

	var g errgroup.Group
	for _, s := range []*device.Session{m.tx, m.rx} {
		g.Go(func() error {
			if err := s.Stop(); err != nil {
				return fmt.Errorf("%s: %w", s.Role(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Run consumes both event streams until ctx ends.
func (m *Monitor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.tx.Events():
			m.handle(m.tx.Role(), ev)
		case ev := <-m.rx.Events():
			m.handle(m.rx.Role(), ev)
		}
	}
}

func (m *Monitor) handle(role device.Role, ev device.Event) {
	m.mu.Lock()
	last := m.last[role]
	switch ev.Kind {
	case device.KindStatus:
		last.status = ev.Text
	case device.KindMessage:
		last.message = ev.Text
	}
	last.at = ev.Time
	m.last[role] = last

	if !m.closed && len(m.forwarders) > 0 {
		env := relay.NewEnvelope(ev)
		for _, f := range m.forwarders {
			f.offer(env)
		}
	}
	m.mu.Unlock()

	logger := m.logger.With("device", ev.Device, "kind", ev.Kind.String())
	switch ev.Kind {
	case device.KindConnection:
		logger.Info("Connection status changed", "connected", ev.Connected)
	case device.KindMessage:
		logger.Info(ev.Text)
	default:
		logger.Debug(ev.Text)
	}
}

// Enqueue queues text on the transmitter.
func (m *Monitor) Enqueue(text string) {
	m.tx.Enqueue(text)
}

// ReadTemperature reads the transmitter's module temperature.
func (m *Monitor) ReadTemperature(ctx context.Context) (float64, error) {
	return m.tx.ReadTemperature(ctx)
}

// SendTemperature reads the transmitter's temperature and queues it, with
// two decimals, as the next message.
func (m *Monitor) SendTemperature(ctx context.Context) (string, error) {
	value, err := m.tx.ReadTemperature(ctx)
	if err != nil {
		return "", err
	}
	text := fmt.Sprintf("%.2f", value)
	m.tx.Enqueue(text)
	return text, nil
}

// Radio returns the RF parameters shared by both sessions.
func (m *Monitor) Radio() at.RadioConfig {
	return m.tx.Radio()
}

// Status returns a snapshot of both sessions, transmitter first.
func (m *Monitor) Status() []DeviceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]DeviceStatus, 0, 2)
	for _, s := range []*device.Session{m.tx, m.rx} {
		state := s.State()
		last := m.last[s.Role()]
		out = append(out, DeviceStatus{
			Device:      s.Role().String(),
			Port:        s.Port(),
			State:       state.String(),
			Connected:   s.Connected(),
			LastStatus:  last.status,
			LastMessage: last.message,
			LastEvent:   last.at,
		})
	}
	return out
}

// Close stops both sessions, flushes the relay queues and closes every
// publisher. Events handled after Close are no longer relayed.
func (m *Monitor) Close() error {
	errs := []error{m.Stop()}

	m.mu.Lock()
	forwarders := m.forwarders
	if m.closed {
		forwarders = nil
	}
	m.closed = true
	m.mu.Unlock()

	for _, f := range forwarders {
		if err := f.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %v: %w", f.publisher, err))
		}
	}
	return errors.Join(errs...)
}
