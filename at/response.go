package at

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformedTemperature is returned when a line carries a TEMP marker
	// but the value next to it is not a number.
	ErrMalformedTemperature = errors.New("malformed temperature")

	// ErrMalformedPacket is returned when a receive notification has no
	// quoted payload, the payload is not valid hex, or it is not ASCII text.
	ErrMalformedPacket = errors.New("malformed packet")
)

// ParseTemperature extracts a reading from a single response line.
//
// Two layouts are accepted, tried in order:
//
//	+TEST: TEMP,23.50   marker, comma, number
//	+TEST: TEMP 23.50   marker token followed by a number token
//
// ok is false when the line carries no temperature in either layout. A
// recognised layout holding a bad number yields ErrMalformedTemperature.
func ParseTemperature(line string) (value float64, ok bool, err error) {
	if _, after, found := strings.Cut(line, TempMarker+","); found {
		v, err := strconv.ParseFloat(strings.TrimSpace(after), 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %q: %w", ErrMalformedTemperature, line, err)
		}
		return v, true, nil
	}

	if !strings.Contains(line, ":") || !strings.Contains(line, TempMarker) {
		return 0, false, nil
	}
	parts := strings.Fields(line)
	for i, part := range parts {
		if part != TempMarker || i == len(parts)-1 {
			continue
		}
		v, err := strconv.ParseFloat(parts[i+1], 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %q: %w", ErrMalformedTemperature, line, err)
		}
		return v, true, nil
	}
	return 0, false, nil
}

// IsPacket reports whether line is a received packet notification.
func IsPacket(line string) bool {
	return strings.Contains(line, RxMarker)
}

// DecodePacket returns the text carried by a receive notification such as
//
//	+TEST: RX "48656C6C6F"
func DecodePacket(line string) (string, error) {
	parts := strings.Split(line, Quote)
	if len(parts) < 2 {
		return "", fmt.Errorf("%w: no quoted payload in %q", ErrMalformedPacket, line)
	}
	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedPacket, err)
	}
	for i, b := range data {
		if b >= 0x80 {
			return "", fmt.Errorf("%w: non-ASCII byte 0x%02x at position %d", ErrMalformedPacket, b, i)
		}
	}
	return string(data), nil
}
