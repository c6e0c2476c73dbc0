package device

import "errors"

var (
	// ErrNoDialer is returned when a Session is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the module.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNoTransport is returned when a Dialer reports success but hands back
	// no Transport.
	ErrNoTransport = errors.New("dialer returned no transport")

	// ErrAlreadyRunning is returned when Start is called on a Session that is
	// connecting, configuring or active.
	ErrAlreadyRunning = errors.New("session already running")

	// ErrConnection wraps failures to open the port. Start may be retried.
	ErrConnection = errors.New("connection failed")

	// ErrConfiguration wraps write failures during the configuration
	// sequence. The connection has been closed when it is returned.
	ErrConfiguration = errors.New("configuration failed")

	// ErrStopped is returned by Start when Stop was called before the
	// session became active. The connection has been closed.
	ErrStopped = errors.New("session stopped during start")

	// ErrNotConnected is returned by ReadTemperature when the session is not
	// in its active loop.
	ErrNotConnected = errors.New("device not connected")

	// ErrTemperatureTimeout is returned when the module did not finish its
	// answer to a temperature query in time and no reading was seen.
	ErrTemperatureTimeout = errors.New("timeout waiting for complete response")

	// ErrNoTemperature is returned when the module finished its answer to a
	// temperature query without a usable reading.
	ErrNoTemperature = errors.New("temperature data not found in response")
)
