package device

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"i4.energy/across/loramon/at"
)

// Session drives one LoRa module in one fixed role. It owns the connection
// from Start to Stop: a reader goroutine turns the byte stream into lines and
// a loop goroutine is the only writer, the only consumer of those lines and
// the only place a temperature query runs.
//
// All progress is reported on Events. The channel is buffered; events that do
// not fit are dropped and logged rather than stalling the loop.
type Session struct {
	config Config
	logger *slog.Logger

	events chan Event
	// temperature funnels ReadTemperature requests into the loop so the
	// query and passive receive handling never touch the port concurrently
	temperature chan *temperatureRequest

	mu sync.Mutex
	// state is the lifecycle position reported by State
	state State
	// link is the connection of the current run, nil when not active
	link *link
	// cancel stops the current run, nil when not running
	cancel context.CancelFunc
	// done is closed when the current run has ended: its loop returned or
	// its Start gave up
	done chan struct{}
	// pending is the next message to transmit, empty when nothing is queued
	pending  string
	lastSend time.Time
}

// link bundles the per-run connection and the reader goroutine's outputs.
// partial and queue are owned by the loop goroutine.
type link struct {
	transport Transport
	chunks    chan chunk
	readErrs  chan error
	reader    sync.WaitGroup
	// epoch counts input flushes; chunks read under an older epoch are stale
	epoch atomic.Uint64

	partial []byte
	queue   []string
}

// chunk is one read from the transport, tagged with the flush epoch current
// when the read returned.
type chunk struct {
	data  []byte
	epoch uint64
}

// New creates a Session in the idle state. Nothing is opened until Start.
func New(config Config) (*Session, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	return &Session{
		config:      config,
		logger:      config.Logger.With("device", config.Role.String(), "port", config.PortName),
		events:      make(chan Event, config.EventBuffer),
		temperature: make(chan *temperatureRequest),
		state:       StateIdle,
	}, nil
}

// Events returns the session's event stream. It is never closed.
func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) Role() Role {
	return s.config.Role
}

func (s *Session) Port() string {
	return s.config.PortName
}

func (s *Session) Radio() at.RadioConfig {
	return s.config.Radio
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether the port is open, from a successful dial until
// the session closes.
func (s *Session) Connected() bool {
	state := s.State()
	return state == StateConfiguring || state == StateActive
}

// Start connects to the module, runs the configuration sequence and launches
// the active loop. Connection and configuration failures are reported as
// events and returned wrapped in ErrConnection or ErrConfiguration; the
// session is then closed and Start may be called again. A Stop while Start
// is still connecting or configuring makes Start close the port and return
// ErrStopped.
//
// ctx bounds dialing and configuration only. The loop runs until Stop.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateClosed {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.state = StateConnecting
	s.mu.Unlock()

	// startCtx ends with the caller's ctx or with Stop
	startCtx, stopStart := context.WithCancel(ctx)
	defer stopStart()
	defer context.AfterFunc(runCtx, stopStart)()

	transport, err := s.config.Dialer.Dial(startCtx)
	if err == nil && transport == nil {
		err = ErrNoTransport
	}
	if err != nil {
		s.abortStart(cancel, done)
		s.status("Connection error: %v", err)
		s.connection(false)
		if runCtx.Err() != nil {
			return ErrStopped
		}
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	s.setState(StateConfiguring)
	s.status("Connected to %s", s.config.PortName)
	s.connection(true)

	if err := s.configure(startCtx, transport); err != nil {
		stopped := runCtx.Err() != nil
		if !stopped {
			s.status("Configuration error: %v", err)
		}
		if cerr := transport.Close(); cerr != nil {
			s.logger.Warn("Failed to close transport after aborted start", "error", cerr)
		}
		s.abortStart(cancel, done)
		s.disconnected()
		if stopped {
			return ErrStopped
		}
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	l := &link{
		transport: transport,
		chunks:    make(chan chunk, 16),
		readErrs:  make(chan error),
	}

	s.mu.Lock()
	if runCtx.Err() != nil {
		s.mu.Unlock()
		if cerr := transport.Close(); cerr != nil {
			s.logger.Warn("Failed to close transport after aborted start", "error", cerr)
		}
		s.abortStart(cancel, done)
		s.disconnected()
		return ErrStopped
	}
	s.link = l
	s.state = StateActive
	s.mu.Unlock()

	l.reader.Add(1)
	go s.read(runCtx, l)
	go func() {
		defer close(done)
		s.loop(runCtx, l)
	}()

	s.logger.Info("Session active", "role", s.config.Role.String())
	return nil
}

// abortStart ends a Start that never reached the active loop and releases a
// Stop waiting for it.
func (s *Session) abortStart(cancel context.CancelFunc, done chan struct{}) {
	cancel()
	s.mu.Lock()
	if s.done == done {
		s.cancel = nil
	}
	s.state = StateClosed
	s.mu.Unlock()
	close(done)
}

// Stop ends the active loop, waiting for an in-flight temperature query to
// finish, and closes the connection. A Start still connecting or configuring
// is aborted and waited for. Stop is a no-op on a session that is not
// running. The returned error is the transport's close error, if any.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	l := s.link
	s.link = nil
	s.mu.Unlock()
	if l == nil {
		// Start closed the port itself
		return nil
	}

	err := l.transport.Close()
	l.reader.Wait()

	s.setState(StateClosed)
	s.disconnected()
	if err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// Enqueue makes text the next message to transmit, replacing any message
// that has not been sent yet. Only a Transmitter ever sends it, no sooner
// than the send interval after the previous transmission. An empty text
// clears the queue.
func (s *Session) Enqueue(text string) {
	s.mu.Lock()
	s.pending = text
	s.mu.Unlock()

	s.status("Queued message for sending: %s", text)
}

// configure runs the fixed AT sequence. Each command is followed by the
// settle delay before the next one is written.
func (s *Session) configure(ctx context.Context, t Transport) error {
	type step struct {
		cmd  string
		done string
	}
	steps := []step{
		{at.ModeTest(), "Set TEST mode"},
		{at.RFConfig(s.config.Radio), "Configured LoRa parameters"},
	}
	if s.config.Role == Receiver {
		steps = append(steps, step{at.ReceiveMode(), "Started listening for packets"})
	}

	for _, step := range steps {
		if err := write(t, step.cmd); err != nil {
			return err
		}
		if !sleep(ctx, s.config.SettleDelay) {
			return fmt.Errorf("after %s: %w", strings.TrimSpace(step.cmd), ctx.Err())
		}
		s.status("%s", step.done)
	}
	return nil
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) status(format string, args ...any) {
	s.emit(Event{Kind: KindStatus, Text: fmt.Sprintf(format, args...)})
}

func (s *Session) message(format string, args ...any) {
	s.emit(Event{Kind: KindMessage, Text: fmt.Sprintf(format, args...)})
}

func (s *Session) connection(connected bool) {
	s.emit(Event{Kind: KindConnection, Connected: connected})
}

func (s *Session) disconnected() {
	s.status("Disconnected")
	s.connection(false)
}

func (s *Session) emit(ev Event) {
	ev.Device = s.config.Role.String()
	ev.Time = time.Now()
	s.logger.Debug("Session event", "kind", ev.Kind.String(), "text", ev.Text, "connected", ev.Connected)

	select {
	case s.events <- ev:
	default:
		s.logger.Warn("Event channel full, dropping event", "kind", ev.Kind.String(), "text", ev.Text)
	}
}

func write(t io.Writer, cmd string) error {
	if _, err := io.WriteString(t, cmd); err != nil {
		return fmt.Errorf("write command %q: %w", strings.TrimSpace(cmd), err)
	}
	return nil
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
