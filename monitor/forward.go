package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"i4.energy/across/loramon/relay"
)

// forwarder feeds one publisher from its own goroutine so a slow broker
// never holds up event draining. Envelopes that do not fit the queue are
// dropped.
type forwarder struct {
	publisher relay.Publisher
	queue     chan relay.Envelope
	timeout   time.Duration
	logger    *slog.Logger
	done      chan struct{}
}

func newForwarder(p relay.Publisher, buffer int, timeout time.Duration, logger *slog.Logger) *forwarder {
	f := &forwarder{
		publisher: p,
		queue:     make(chan relay.Envelope, buffer),
		timeout:   timeout,
		logger:    logger.With("relay", fmt.Sprint(p)),
		done:      make(chan struct{}),
	}
	go f.run()
	return f
}

func (f *forwarder) run() {
	defer close(f.done)
	for env := range f.queue {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		if err := f.publisher.Publish(ctx, env); err != nil {
			f.logger.Warn("Failed to relay event", "device", env.Device, "kind", env.Kind, "error", err)
		}
		cancel()
	}
}

func (f *forwarder) offer(env relay.Envelope) {
	select {
	case f.queue <- env:
	default:
		f.logger.Warn("Relay queue full, dropping event", "device", env.Device, "kind", env.Kind)
	}
}

// close publishes what is still queued and then closes the publisher.
func (f *forwarder) close() error {
	close(f.queue)
	<-f.done
	return f.publisher.Close()
}
