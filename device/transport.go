package device

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the factory UART speed of the radio modules.
	DefaultBaudRate = 9600
	// DefaultReadTimeout bounds a single serial read.
	DefaultReadTimeout = time.Second
)

// Transport represents an established, bidirectional byte stream to a LoRa module.
//
// A Transport is assumed to be already connected and ready for use. Besides
// plain I/O it must be able to discard pending data in both directions, which
// a temperature query does before writing its command. serial.Port satisfies
// Transport.
type Transport interface {
	io.ReadWriteCloser
	// ResetInputBuffer discards data received but not yet read.
	ResetInputBuffer() error
	// ResetOutputBuffer discards data written but not yet transmitted.
	ResetOutputBuffer() error
}

// Dialer opens a Transport to a LoRa module.
//
// Dialer abstracts how the connection is created (for example, via a serial
// port or a test double). A Session dials every time it is started.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport cannot be
	// established.
	Dial(ctx context.Context) (Transport, error)
}

// SerialDialer opens a LoRa module over a serial port using go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, e.g. /dev/ttyUSB0 or /dev/cu.usbserial-10.
	PortName string
	// BaudRate defaults to DefaultBaudRate. Ignored when Mode is set.
	BaudRate int
	// ReadTimeout defaults to DefaultReadTimeout.
	ReadTimeout time.Duration
	// Mode overrides the 8N1 line settings derived from BaudRate.
	Mode *serial.Mode
}

// Dial implements Dialer.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("lora: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("lora: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud == 0 {
			baud = DefaultBaudRate
		}
		mode = &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("lora: open %s: %w", d.PortName, err)
	}

	timeout := d.ReadTimeout
	if timeout == 0 {
		timeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("lora: set read timeout on %s: %w", d.PortName, err)
	}
	return port, nil
}

func (d SerialDialer) String() string {
	return d.PortName
}

// patientReader hides read timeouts: a serial read that times out returns no
// data and no error. Reads are retried until data, an error, or cancellation.
type patientReader struct {
	ctx context.Context
	r   io.Reader
}

func (p *patientReader) Read(b []byte) (int, error) {
	for {
		n, err := p.r.Read(b)
		if n > 0 || err != nil {
			return n, err
		}
		if err := p.ctx.Err(); err != nil {
			return 0, err
		}
	}
}
