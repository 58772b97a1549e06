package core

import (
	"context"
	"errors"
	"time"
)

// PathMetadata describes the current quality of one path as reported by a
// PathEngine. Selection treats it as an opaque ranking input; the engine is
// free to fill only the fields it can measure.
type PathMetadata struct {
	// Viable reports whether the path can currently carry traffic.
	Viable bool

	// Latency is the most recent path latency estimate.
	Latency time.Duration

	// BandwidthKbps is the estimated available bandwidth.
	BandwidthKbps uint64

	// LossRate is the observed loss fraction in [0,1].
	LossRate float64
}

// PathEngine is the collaborator that performs actual transmission,
// reception, and path-quality reporting. The socket core calls it and never
// reimplements it; wire framing and path discovery live behind this
// boundary.
type PathEngine interface {
	// QueryViability reports whether the path is currently usable.
	QueryViability(addr Address) bool

	// Metadata returns the current quality metadata for the path.
	Metadata(addr Address) PathMetadata

	// Transmit sends data over the given path.
	Transmit(addr Address, data []byte) error

	// AwaitArrival blocks until data arrives on any path in the set, the
	// context is cancelled, or the engine fails. The returned Address
	// identifies the path the data arrived over.
	AwaitArrival(ctx context.Context, set AddressSet) (data []byte, from Address, err error)
}

// fatalError marks an engine error as unrecoverable. Sockets that observe a
// fatal engine error transition to the Failed state.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return "fatal path engine error: " + e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// FatalError wraps err so that IsFatal reports true for it.
func FatalError(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err carries an unrecoverable engine fault.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}
