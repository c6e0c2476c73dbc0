package device

import (
	"context"
	"io"
	"sync"
)

// TestTransport is a test helper that simulates a blocking transport using channels.
// This is needed because the session's reader goroutine continuously reads from the
// transport, and we need reads to block until data is available (like a real serial
// port would). Every write is recorded and published on Writes.
type TestTransport struct {
	mu       sync.Mutex
	readChan chan []byte
	closed   bool

	// rest holds the part of a SendData chunk a short read left behind. It
	// has its own lock since SendData holds mu while the channel is full.
	restMu sync.Mutex
	rest   []byte

	writes   chan string
	written  []string
	writeErr error
	resets   int
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 10),
		writes:   make(chan string, 100),
	}
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	if t.writeErr != nil {
		return 0, t.writeErr
	}
	t.written = append(t.written, string(p))
	select {
	case t.writes <- string(p):
	default:
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	t.restMu.Lock()
	if len(t.rest) > 0 {
		n = copy(p, t.rest)
		t.rest = t.rest[n:]
		t.restMu.Unlock()
		return n, nil
	}
	t.restMu.Unlock()

	data, ok := <-t.readChan
	if !ok {
		return 0, io.EOF
	}
	n = copy(p, data)
	if n < len(data) {
		t.restMu.Lock()
		t.rest = append(t.rest, data[n:]...)
		t.restMu.Unlock()
	}
	return n, nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// ResetInputBuffer drops data queued with SendData but not yet read.
func (t *TestTransport) ResetInputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resets++
	t.restMu.Lock()
	t.rest = nil
	t.restMu.Unlock()
	if t.closed {
		return nil
	}
	for {
		select {
		case <-t.readChan:
		default:
			return nil
		}
	}
}

func (t *TestTransport) ResetOutputBuffer() error {
	return nil
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the module.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// Writes publishes every successful write in order.
func (t *TestTransport) Writes() <-chan string {
	return t.writes
}

// Written returns a copy of all successful writes so far.
func (t *TestTransport) Written() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.written...)
}

// FailWrites makes every following write return err; nil restores writes.
func (t *TestTransport) FailWrites(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

// Resets reports how many times ResetInputBuffer was called.
func (t *TestTransport) Resets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resets
}

// Closed reports whether Close was called.
func (t *TestTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// StaticDialer hands out the same Transport on every Dial.
type StaticDialer struct {
	Transport Transport
	Err       error
}

func (d StaticDialer) Dial(ctx context.Context) (Transport, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Transport, ctx.Err()
}
