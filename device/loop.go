package device

import (
	"context"
	"fmt"
	"time"

	"i4.energy/across/loramon/at"
)

// readChunk is the most the reader takes from the transport in one read.
const readChunk = 1024

// read is the only goroutine that reads from the transport. Raw reads go to
// l.chunks tagged with the flush epoch; framing them into lines is left to
// the loop, so a flush also drops bytes read but not yet framed. A read
// error is handed to the loop, which reports it and pauses, and reading then
// resumes: the loop survives transient port errors and only cancellation
// ends it.
func (s *Session) read(ctx context.Context, l *link) {
	defer l.reader.Done()
	r := &patientReader{ctx: ctx, r: l.transport}

	for {
		buf := make([]byte, readChunk)
		n, err := r.Read(buf)
		if n > 0 {
			c := chunk{data: buf[:n], epoch: l.epoch.Load()}
			select {
			case l.chunks <- c:
			case <-ctx.Done():
				return
			}
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		select {
		case l.readErrs <- err:
		case <-ctx.Done():
			return
		}
	}
}

// feed frames a chunk into queued lines. Chunks read before the last flush
// are dropped.
func (l *link) feed(c chunk) {
	if c.epoch != l.epoch.Load() {
		return
	}
	l.partial = append(l.partial, c.data...)
	for {
		advance, token, _ := at.Splitter(l.partial, false)
		if advance == 0 {
			break
		}
		if line := at.Sanitize(token); line != "" {
			l.queue = append(l.queue, line)
		}
		l.partial = l.partial[advance:]
	}
	if len(l.partial) == 0 {
		l.partial = nil
	}
}

// next pops the oldest framed line.
func (l *link) next() (string, bool) {
	if len(l.queue) == 0 {
		return "", false
	}
	line := l.queue[0]
	l.queue = l.queue[1:]
	return line, true
}

// discard drops all input received so far and starts a new epoch.
func (l *link) discard() int {
	l.epoch.Add(1)
	dropped := len(l.queue)
	for {
		select {
		case <-l.chunks:
			dropped++
		default:
			l.partial, l.queue = nil, nil
			return dropped
		}
	}
}

// loop is the active loop of a session. Each iteration serves a waiting
// temperature query, handles at most one received line, transmits the
// pending message when due and then sleeps for the poll interval.
func (s *Session) loop(ctx context.Context, l *link) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.temperature:
			value, err := s.measure(l)
			req.resp <- temperatureResult{value: value, err: err}
		default:
		}

		if err := s.poll(l); err != nil {
			s.status("Error: %v", err)
			if !sleep(ctx, s.config.ErrorPause) {
				return
			}
			continue
		}

		if !sleep(ctx, s.config.PollInterval) {
			return
		}
	}
}

func (s *Session) poll(l *link) error {
	if len(l.queue) == 0 {
		select {
		case c := <-l.chunks:
			l.feed(c)
		case err := <-l.readErrs:
			return fmt.Errorf("read: %w", err)
		default:
		}
	}
	if line, ok := l.next(); ok {
		s.receive(line)
	}

	if s.config.Role == Transmitter {
		return s.transmit(l.transport)
	}
	return nil
}

// receive surfaces every line and decodes packets on a Receiver. A packet
// that fails to decode is reported and dropped.
func (s *Session) receive(line string) {
	s.status("Received: %s", line)

	if s.config.Role != Receiver || !at.IsPacket(line) {
		return
	}
	text, err := at.DecodePacket(line)
	if err != nil {
		s.status("Failed to decode message: %v", err)
		return
	}
	s.message("Received message: %s", text)
}

// transmit writes the pending message once the send interval has elapsed.
// A failed write leaves the message queued for the next attempt.
func (s *Session) transmit(t Transport) error {
	s.mu.Lock()
	text := s.pending
	due := text != "" && time.Since(s.lastSend) >= s.config.SendInterval
	s.mu.Unlock()

	if !due {
		return nil
	}
	if err := write(t, at.TransmitPacket(text)); err != nil {
		return err
	}

	s.mu.Lock()
	s.lastSend = time.Now()
	// a message queued during the write stays pending
	if s.pending == text {
		s.pending = ""
	}
	s.mu.Unlock()

	s.message("Sent message: %s", text)
	return nil
}
