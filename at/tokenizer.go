package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter is used for tokenizing the radio module output. It uses
// the signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// Lines are split on LF and a trailing CR is dropped, so both CRLF and bare LF
// terminated output are accepted. The module echoes nothing but its own
// notifications, so no prompt handling is needed.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[0:i], []byte{'\r'}), nil
	}

	if atEOF {
		return len(data), bytes.TrimSuffix(data, []byte{'\r'}), nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Sanitize turns a raw token into the text the session works with:
// bytes outside of 7-bit ASCII are dropped and surrounding whitespace is trimmed.
func Sanitize(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		if c < 0x80 {
			b.WriteByte(c)
		}
	}
	return strings.TrimSpace(b.String())
}

// Classify identifies the nature of the module output. Completion tokens win
// over data markers, so an error line mentioning TEMP is still an error.
func Classify(line string) ResponseType {
	switch {
	case line == OK:
		return TypeFinal
	case strings.Contains(line, ERROR):
		return TypeError
	case strings.Contains(line, RxMarker):
		return TypePacket
	case strings.Contains(line, TempMarker):
		return TypeTemperature
	default:
		return TypeInfo
	}
}

// IsComplete reports whether line terminates a command response.
func IsComplete(line string) bool {
	t := Classify(line)
	return t == TypeFinal || t == TypeError
}
