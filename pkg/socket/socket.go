package socket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/irctrakz/pathsock/pkg/core"
	"github.com/irctrakz/pathsock/pkg/logging"
	"github.com/irctrakz/pathsock/pkg/selection"
)

// Socket is one live path-aware socket. It owns its immutable address set,
// its connection state, and its statistics record. Sockets are created and
// owned exclusively by a Table; the integer handle is the only reference
// callers ever hold.
type Socket struct {
	handle   int32
	protocol core.Protocol
	srcPort  uint16
	dstPort  uint16
	addrs    core.AddressSet
	engine   core.PathEngine
	stats    *statsRecord

	sendTimeout  time.Duration
	pollInterval time.Duration

	// closeCtx is cancelled by close so that blocked accept/receive/send
	// calls on this socket unblock promptly instead of hanging.
	closeCtx context.Context
	cancel   context.CancelFunc

	mu    sync.Mutex
	state core.SocketState
}

func newSocket(protocol core.Protocol, addrs core.AddressSet, srcPort, dstPort uint16,
	engine core.PathEngine, sendTimeout, pollInterval time.Duration) *Socket {

	ctx, cancel := context.WithCancel(context.Background())
	s := &Socket{
		protocol:     protocol,
		srcPort:      srcPort,
		dstPort:      dstPort,
		addrs:        addrs,
		engine:       engine,
		stats:        newStatsRecord(),
		sendTimeout:  sendTimeout,
		pollInterval: pollInterval,
		closeCtx:     ctx,
		cancel:       cancel,
		state:        core.StateCreated,
	}

	switch {
	case protocol == core.Datagram:
		// Datagram sockets skip Listening/Connecting entirely.
		s.state = core.StateEstablished
	case dstPort == 0:
		// Stream socket with no destination port: server role.
		s.state = core.StateListening
	default:
		// Stream socket with a destination: the engine completes its
		// handshake on the first successful transmit.
		s.state = core.StateConnecting
	}
	return s
}

// Protocol returns the socket's protocol kind.
func (s *Socket) Protocol() core.Protocol { return s.protocol }

// Addresses returns a copy of the socket's address set.
func (s *Socket) Addresses() core.AddressSet { return s.addrs.Clone() }

// State returns the current connection state.
func (s *Socket) State() core.SocketState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// stateError maps a forbidden state to the taxonomy error for it.
func stateError(state core.SocketState) error {
	switch state {
	case core.StateClosed:
		return ErrClosed
	case core.StateFailed:
		return ErrSocketFailed
	default:
		return fmt.Errorf("%w: %s", ErrInvalidState, state)
	}
}

// checkSendable returns nil when the current state permits sending.
func (s *Socket) checkSendable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case core.StateEstablished, core.StateConnecting:
		return nil
	default:
		return stateError(s.state)
	}
}

// send transmits data over a path chosen by profile. It returns the number
// of bytes accepted by the engine.
func (s *Socket) send(data []byte, profile core.Profile) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty payload", ErrInvalidArgument)
	}
	if !profile.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedProfile, int(profile))
	}
	if err := s.checkSendable(); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(s.sendTimeout)
	for {
		addr, ok, err := selection.Pick(profile, s.addrs, s.engine.Metadata)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnsupportedProfile, err)
		}
		if ok {
			err := s.engine.Transmit(addr, data)
			if err == nil {
				s.promoteEstablished()
				s.stats.recordSend(addr, len(data))
				logging.Debugf("socket %d: sent %d bytes via %s (profile=%s)",
					s.handle, len(data), addr, profile)
				return len(data), nil
			}
			s.stats.recordFailure()
			if core.IsFatal(err) {
				s.fail(err)
				return 0, fmt.Errorf("%w: %v", ErrSocketFailed, err)
			}
			logging.Debugf("socket %d: transmit via %s failed: %v", s.handle, addr, err)
		}

		// No path accepted the data; wait for viability to change, bounded
		// by the send timeout, and stay responsive to close.
		if !time.Now().Before(deadline) {
			s.stats.recordFailure()
			return 0, fmt.Errorf("%w: no viable path for %s", ErrTimeout, profile)
		}
		select {
		case <-s.closeCtx.Done():
			return 0, s.closedError()
		case <-time.After(s.pollInterval):
		}
	}
}

// trySend is the non-blocking variant of send: one selection attempt, one
// transmit, no waiting for viability to change.
func (s *Socket) trySend(data []byte, profile core.Profile) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty payload", ErrInvalidArgument)
	}
	if !profile.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedProfile, int(profile))
	}
	if err := s.checkSendable(); err != nil {
		return 0, err
	}

	addr, ok, err := selection.Pick(profile, s.addrs, s.engine.Metadata)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedProfile, err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: no viable path", ErrWouldBlock)
	}
	if err := s.engine.Transmit(addr, data); err != nil {
		s.stats.recordFailure()
		if core.IsFatal(err) {
			s.fail(err)
			return 0, fmt.Errorf("%w: %v", ErrSocketFailed, err)
		}
		return 0, fmt.Errorf("transmit via %s: %w", addr, err)
	}
	s.promoteEstablished()
	s.stats.recordSend(addr, len(data))
	return len(data), nil
}

// promoteEstablished moves a Connecting socket to Established after its
// first successful transmit.
func (s *Socket) promoteEstablished() {
	s.mu.Lock()
	if s.state == core.StateConnecting {
		s.state = core.StateEstablished
		logging.Debugf("socket %d: established", s.handle)
	}
	s.mu.Unlock()
}

// receive blocks until data arrives on any bound path and returns the
// payload together with the address of the path it arrived over. A datagram
// larger than capacity fails ErrBufferTooSmall; it is never silently
// truncated.
func (s *Socket) receive(capacity int) ([]byte, core.Address, error) {
	if capacity <= 0 {
		return nil, core.Address{}, fmt.Errorf("%w: capacity %d", ErrInvalidArgument, capacity)
	}
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != core.StateEstablished {
		return nil, core.Address{}, stateError(state)
	}

	data, from, err := s.engine.AwaitArrival(s.closeCtx, s.addrs)
	if err != nil {
		if s.closeCtx.Err() != nil {
			return nil, core.Address{}, s.closedError()
		}
		s.stats.recordFailure()
		if core.IsFatal(err) {
			s.fail(err)
			return nil, core.Address{}, fmt.Errorf("%w: %v", ErrSocketFailed, err)
		}
		return nil, core.Address{}, fmt.Errorf("await arrival: %w", err)
	}
	if len(data) > capacity {
		s.stats.recordFailure()
		return nil, core.Address{}, fmt.Errorf("%w: datagram %d > capacity %d",
			ErrBufferTooSmall, len(data), capacity)
	}

	s.stats.recordReceive(from, len(data))
	logging.Debugf("socket %d: received %d bytes from %s", s.handle, len(data), from)
	return data, from, nil
}

// waitPeer blocks a Listening socket until a peer's connection request
// arrives and returns the peer's address. The request payload itself is a
// handshake marker owned by the engine and is not delivered to callers.
func (s *Socket) waitPeer() (core.Address, error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != core.StateListening {
		return core.Address{}, stateError(state)
	}

	_, from, err := s.engine.AwaitArrival(s.closeCtx, s.addrs)
	if err != nil {
		if s.closeCtx.Err() != nil {
			return core.Address{}, s.closedError()
		}
		if core.IsFatal(err) {
			s.fail(err)
			return core.Address{}, fmt.Errorf("%w: %v", ErrSocketFailed, err)
		}
		return core.Address{}, fmt.Errorf("await connection: %w", err)
	}
	return from, nil
}

// closedError distinguishes close from a terminal engine fault for blocked
// operations that were woken by context cancellation.
func (s *Socket) closedError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == core.StateFailed {
		return ErrSocketFailed
	}
	return ErrClosed
}

// fail moves the socket to the terminal Failed state and wakes any blocked
// operations.
func (s *Socket) fail(cause error) {
	s.mu.Lock()
	if !s.state.Terminal() {
		s.state = core.StateFailed
		logging.Errorf("socket %d: unrecoverable engine fault: %v", s.handle, cause)
	}
	s.mu.Unlock()
	s.cancel()
}

// close moves the socket to Closed and wakes any blocked operations.
func (s *Socket) close() {
	s.mu.Lock()
	if s.state != core.StateClosed {
		s.state = core.StateClosed
	}
	s.mu.Unlock()
	s.cancel()
}

// snapshot produces a detached copy of the current counters.
func (s *Socket) snapshot() *StatsSnapshot {
	return &StatsSnapshot{counters: s.stats.load()}
}
