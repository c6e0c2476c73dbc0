package device

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"i4.energy/across/loramon/at"
)

type temperatureRequest struct {
	resp chan temperatureResult
}

type temperatureResult struct {
	value float64
	err   error
}

// accumulator collects the answer to one temperature query.
type accumulator struct {
	lines    []string
	complete bool
	value    float64
	found    bool
}

func (a *accumulator) transcript() string {
	var b strings.Builder
	for _, line := range a.lines {
		b.WriteString("RAW> ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// ReadTemperature queries the module's internal sensor and blocks until the
// module answered or the temperature timeout passed.
//
// The query runs on the session's loop, which pauses receive handling for
// its duration. It returns ErrNotConnected outside the active state,
// ErrTemperatureTimeout when the answer did not complete in time and
// ErrNoTemperature when it completed without a reading. ctx only limits how
// long the caller waits; once accepted, the query itself always runs to its
// end and Stop waits for it.
func (s *Session) ReadTemperature(ctx context.Context) (float64, error) {
	s.mu.Lock()
	state, done := s.state, s.done
	s.mu.Unlock()

	if state != StateActive {
		s.status("Error: Device not connected")
		return 0, ErrNotConnected
	}

	req := &temperatureRequest{resp: make(chan temperatureResult, 1)}
	select {
	case s.temperature <- req:
	case <-done:
		s.status("Error: Device not connected")
		return 0, ErrNotConnected
	case <-ctx.Done():
		return 0, fmt.Errorf("temperature request not accepted: %w", ctx.Err())
	}

	select {
	case res := <-req.resp:
		return res.value, res.err
	case <-ctx.Done():
		return 0, fmt.Errorf("waiting for temperature: %w", ctx.Err())
	}
}

// measure performs the temperature query on the loop goroutine.
func (s *Session) measure(l *link) (float64, error) {
	if err := s.flush(l); err != nil {
		s.status("Temperature reading error: %v", err)
		return 0, err
	}

	s.status("Sending temperature read command...")
	if err := write(l.transport, at.QueryTemperature()); err != nil {
		s.status("Temperature reading error: %v", err)
		return 0, err
	}
	time.Sleep(s.config.SettleDelay)

	acc := &accumulator{}
	timeout := time.NewTimer(s.config.TemperatureTimeout)
	defer timeout.Stop()

wait:
	for !acc.complete {
		if line, ok := l.next(); ok {
			s.accumulate(acc, line)
			continue
		}
		select {
		case c := <-l.chunks:
			l.feed(c)
		case err := <-l.readErrs:
			s.status("Error: read: %v", err)
			time.Sleep(s.config.PollInterval)
		case <-timeout.C:
			break wait
		}
	}

	s.status("Complete response:\n%s", acc.transcript())

	switch {
	case acc.found:
		s.status("Final temperature: %s°C", formatTemperature(acc.value))
		return acc.value, nil
	case acc.complete:
		s.status("Temperature data not found in response")
		return 0, ErrNoTemperature
	default:
		s.status("Timeout waiting for complete response")
		return 0, ErrTemperatureTimeout
	}
}

// flush discards everything received or queued before the query, including
// bytes the reader goroutine already took from the port.
func (s *Session) flush(l *link) error {
	if err := l.transport.ResetInputBuffer(); err != nil {
		return fmt.Errorf("reset input buffer: %w", err)
	}
	if err := l.transport.ResetOutputBuffer(); err != nil {
		return fmt.Errorf("reset output buffer: %w", err)
	}
	if n := l.discard(); n > 0 {
		s.logger.Debug("Discarded input before temperature query", "count", n)
	}
	return nil
}

// accumulate records one response line. Completion and temperature
// extraction are independent: a TEMP line is parsed whatever else it holds,
// and a malformed value only costs that line.
func (s *Session) accumulate(acc *accumulator, line string) {
	acc.lines = append(acc.lines, line)
	s.status("Response line: '%s'", line)

	if at.IsComplete(line) {
		acc.complete = true
	}
	if !strings.Contains(line, at.TempMarker) {
		return
	}

	s.status("Found temperature data: '%s'", line)
	value, ok, err := at.ParseTemperature(line)
	switch {
	case err != nil:
		s.status("Parse error: %v in '%s'", err, line)
	case ok:
		acc.value, acc.found = value, true
		s.status("Parsed temperature: %s°C", formatTemperature(value))
	default:
		s.logger.Debug("No temperature value in line", "line", line)
	}
}

func formatTemperature(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
