package device

import "time"

// Role selects the configuration step and loop behaviour of a session.
type Role int

const (
	// Transmitter sends the pending message on every send interval.
	Transmitter Role = iota
	// Receiver enables continuous reception and decodes packets.
	Receiver
)

func (r Role) String() string {
	switch r {
	case Transmitter:
		return "Transmitter"
	case Receiver:
		return "Receiver"
	default:
		return "Unknown"
	}
}

// State is the lifecycle position of a session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConfiguring
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConfiguring:
		return "configuring"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Kind tags an Event.
type Kind int

const (
	// KindStatus carries a free-form progress or diagnostic line.
	KindStatus Kind = iota
	// KindMessage reports a message sent or received over the air.
	KindMessage
	// KindConnection reports the port being opened or closed.
	KindConnection
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindMessage:
		return "message"
	case KindConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// Event is everything a session reports to its caller.
type Event struct {
	Kind   Kind
	Device string
	// Text is set for KindStatus and KindMessage.
	Text string
	// Connected is set for KindConnection.
	Connected bool
	Time      time.Time
}
