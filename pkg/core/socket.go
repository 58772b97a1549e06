package core

import "fmt"

// Protocol is the transport kind of a socket.
type Protocol int

// Supported protocol kinds.
const (
	// Datagram sockets are connectionless; they become Established as soon
	// as their address set validates.
	Datagram Protocol = iota

	// Stream sockets are connection-oriented and pass through the
	// Listening or Connecting states before Established.
	Stream
)

// String implements fmt.Stringer.
func (p Protocol) String() string {
	switch p {
	case Datagram:
		return "datagram"
	case Stream:
		return "stream"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// Valid reports whether p names a known protocol kind.
func (p Protocol) Valid() bool {
	return p == Datagram || p == Stream
}

// Profile is a named policy for ranking address-set entries when selecting
// a path for one send. The universe is closed and small.
type Profile int

// Selection profiles.
const (
	// ProfileDefault picks the first viable address in set order.
	ProfileDefault Profile = iota

	// ProfileLowestLatency picks the viable address with the lowest
	// reported latency.
	ProfileLowestLatency

	// ProfileHighestBandwidth picks the viable address with the highest
	// reported bandwidth.
	ProfileHighestBandwidth

	// ProfileMostReliable picks the viable address with the lowest
	// reported loss rate.
	ProfileMostReliable
)

// String implements fmt.Stringer.
func (p Profile) String() string {
	switch p {
	case ProfileDefault:
		return "default"
	case ProfileLowestLatency:
		return "lowestLatency"
	case ProfileHighestBandwidth:
		return "highestBandwidth"
	case ProfileMostReliable:
		return "mostReliable"
	default:
		return fmt.Sprintf("profile(%d)", int(p))
	}
}

// Valid reports whether p names a known profile.
func (p Profile) Valid() bool {
	switch p {
	case ProfileDefault, ProfileLowestLatency, ProfileHighestBandwidth, ProfileMostReliable:
		return true
	default:
		return false
	}
}

// ParseProfile maps a config/CLI profile name to its Profile value.
func ParseProfile(name string) (Profile, error) {
	switch name {
	case "", "default":
		return ProfileDefault, nil
	case "lowestLatency", "lowest-latency":
		return ProfileLowestLatency, nil
	case "highestBandwidth", "highest-bandwidth":
		return ProfileHighestBandwidth, nil
	case "mostReliable", "most-reliable":
		return ProfileMostReliable, nil
	default:
		return 0, fmt.Errorf("unknown profile %q", name)
	}
}

// SocketState is the connection state of a socket.
type SocketState int

// Socket states. Closed and Failed are terminal.
const (
	StateCreated SocketState = iota
	StateListening
	StateConnecting
	StateEstablished
	StateClosed
	StateFailed
)

// String implements fmt.Stringer.
func (s SocketState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateListening:
		return "listening"
	case StateConnecting:
		return "connecting"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the state admits no further transitions.
func (s SocketState) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// SocketCounters contains the counters tracked per socket. A snapshot of
// these is what callers receive from the stats API.
type SocketCounters struct {
	// MessagesSent is the number of successful sends.
	MessagesSent uint64

	// MessagesReceived is the number of successful receives.
	MessagesReceived uint64

	// BytesSent is the number of payload bytes sent.
	BytesSent uint64

	// BytesReceived is the number of payload bytes received.
	BytesReceived uint64

	// Failures is the number of failed sends and receives.
	Failures uint64

	// SendsPerPath counts successful sends keyed by Address key.
	SendsPerPath map[string]uint64

	// ReceivesPerPath counts successful receives keyed by Address key.
	ReceivesPerPath map[string]uint64
}
