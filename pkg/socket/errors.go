package socket

import "errors"

// Error taxonomy for the socket core. Callers match with errors.Is; nothing
// in this package retries internally.
var (
	// ErrInvalidArgument reports malformed construction or call inputs.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidHandle reports an unknown, stale, or already-closed handle.
	ErrInvalidHandle = errors.New("invalid socket handle")

	// ErrInvalidState reports an operation invoked from a connection state
	// that forbids it.
	ErrInvalidState = errors.New("invalid socket state")

	// ErrClosed reports that the handle was torn down, possibly while the
	// operation was blocked on it.
	ErrClosed = errors.New("socket closed")

	// ErrWouldBlock reports transient unavailability on every candidate
	// path when the caller asked not to wait.
	ErrWouldBlock = errors.New("operation would block")

	// ErrTimeout reports that no path became viable within the send
	// timeout. Caller-retriable.
	ErrTimeout = errors.New("operation timed out")

	// ErrUnsupportedProfile reports an unknown selection profile.
	ErrUnsupportedProfile = errors.New("unsupported selection profile")

	// ErrBufferTooSmall reports that the arrived datagram exceeds the
	// caller's capacity. The datagram is not silently truncated.
	ErrBufferTooSmall = errors.New("buffer too small for datagram")

	// ErrSnapshotReleased reports a read from a stats snapshot after its
	// explicit release.
	ErrSnapshotReleased = errors.New("stats snapshot used after release")

	// ErrSocketFailed reports that the socket hit an unrecoverable path
	// engine fault; only Close is useful afterwards.
	ErrSocketFailed = errors.New("socket in failed state")
)
