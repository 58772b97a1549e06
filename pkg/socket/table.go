package socket

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/irctrakz/pathsock/pkg/core"
	"github.com/irctrakz/pathsock/pkg/logging"
)

const (
	// Handle layout: generation (15 bits) over slot index (16 bits). The
	// top bit stays clear so handles are always non-negative int32s.
	handleIndexBits = 16
	handleIndexMask = 1<<handleIndexBits - 1
	handleGenMask   = 1<<15 - 1
	maxSlots        = handleIndexMask + 1

	defaultSendTimeout  = 3 * time.Second
	defaultPollInterval = 10 * time.Millisecond
)

// Options tunes table-wide socket behavior.
type Options struct {
	// SendTimeout bounds how long a send waits for any path to become
	// viable before failing ErrTimeout.
	SendTimeout time.Duration

	// PollInterval is the re-check interval while a send waits for
	// viability.
	PollInterval time.Duration
}

// slot is one entry of the handle arena. The generation is stamped into the
// handle at create time and bumped when the slot is recycled, so a handle
// held across close+create of the same index never aliases the new socket.
type slot struct {
	gen  int32
	sock *Socket
}

// Table is the process-wide registry mapping integer handles to live
// sockets. It is the single source of truth for handle allocation,
// validation, and teardown, and the only structure in the package that
// takes a global lock.
type Table struct {
	engine core.PathEngine
	opts   Options

	mu    sync.Mutex
	slots []slot
	free  []int32
}

// NewTable creates an empty socket table backed by the given path engine.
func NewTable(engine core.PathEngine, opts Options) *Table {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Table{engine: engine, opts: opts}
}

// Create validates the destination addresses, allocates a fresh handle, and
// constructs a socket in its initial connection state.
func (t *Table) Create(protocol core.Protocol, addrs []core.Address, srcPort, dstPort uint16) (int32, error) {
	if !protocol.Valid() {
		return -1, fmt.Errorf("%w: unknown protocol %d", ErrInvalidArgument, int(protocol))
	}
	set, err := core.NewAddressSet(addrs)
	if err != nil {
		return -1, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	sock := newSocket(protocol, set, srcPort, dstPort, t.engine, t.opts.SendTimeout, t.opts.PollInterval)
	initial := sock.state

	t.mu.Lock()
	handle, err := t.allocLocked(sock)
	t.mu.Unlock()
	if err != nil {
		return -1, err
	}

	logging.Debugf("table: created %s socket handle=%d addrs=%d state=%s",
		protocol, handle, len(set), initial)
	return handle, nil
}

// allocLocked stores sock in a fresh or recycled slot and returns its
// generation-stamped handle. Caller holds t.mu.
func (t *Table) allocLocked(sock *Socket) (int32, error) {
	var idx int32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[idx].gen = (t.slots[idx].gen + 1) & handleGenMask
	} else {
		if len(t.slots) >= maxSlots {
			return -1, fmt.Errorf("%w: socket table full", ErrInvalidArgument)
		}
		idx = int32(len(t.slots))
		t.slots = append(t.slots, slot{})
	}
	t.slots[idx].sock = sock

	handle := t.slots[idx].gen<<handleIndexBits | idx
	sock.handle = handle
	return handle, nil
}

// lookup resolves a handle to its live socket. Handles whose slot was
// closed but not yet recycled report ErrClosed; never-allocated or recycled
// handles report ErrInvalidHandle.
func (t *Table) lookup(handle int32) (*Socket, error) {
	if handle < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHandle, handle)
	}
	idx := handle & handleIndexMask
	gen := handle >> handleIndexBits

	t.mu.Lock()
	defer t.mu.Unlock()
	if int(idx) >= len(t.slots) || t.slots[idx].gen != gen {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHandle, handle)
	}
	if t.slots[idx].sock == nil {
		return nil, fmt.Errorf("%w: handle %d", ErrClosed, handle)
	}
	return t.slots[idx].sock, nil
}

// Close tears the socket down, wakes any blocked operations on it with
// ErrClosed, and marks the handle's slot reusable.
func (t *Table) Close(handle int32) error {
	t.mu.Lock()
	idx := handle & handleIndexMask
	gen := handle >> handleIndexBits
	if handle < 0 || int(idx) >= len(t.slots) || t.slots[idx].gen != gen || t.slots[idx].sock == nil {
		t.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrInvalidHandle, handle)
	}
	sock := t.slots[idx].sock
	t.slots[idx].sock = nil
	t.free = append(t.free, idx)
	t.mu.Unlock()

	sock.close()
	logging.Debugf("table: closed handle=%d", handle)
	return nil
}

// Accept blocks until a peer connection request arrives at the listening
// socket, then returns a new Established handle bound to the peer's path.
// The listening handle stays unchanged and reusable for further accepts.
func (t *Table) Accept(handle int32) (int32, error) {
	sock, err := t.lookup(handle)
	if err != nil {
		return -1, err
	}
	peer, err := sock.waitPeer()
	if err != nil {
		return -1, err
	}

	conn := newSocket(sock.protocol, core.AddressSet{peer}, sock.srcPort, peer.Port,
		t.engine, t.opts.SendTimeout, t.opts.PollInterval)
	conn.mu.Lock()
	conn.state = core.StateEstablished
	conn.mu.Unlock()

	t.mu.Lock()
	newHandle, err := t.allocLocked(conn)
	t.mu.Unlock()
	if err != nil {
		return -1, err
	}

	logging.Infof("table: accepted connection from %s on handle=%d -> handle=%d",
		peer, handle, newHandle)
	return newHandle, nil
}

// Send transmits data using the default profile: the first address in set
// order that the engine reports viable.
func (t *Table) Send(handle int32, data []byte) (int, error) {
	sock, err := t.lookup(handle)
	if err != nil {
		return 0, err
	}
	return sock.send(data, core.ProfileDefault)
}

// TrySend transmits without waiting: when no path is currently viable it
// fails ErrWouldBlock immediately instead of polling until the timeout.
func (t *Table) TrySend(handle int32, data []byte) (int, error) {
	sock, err := t.lookup(handle)
	if err != nil {
		return 0, err
	}
	return sock.trySend(data, core.ProfileDefault)
}

// SendWithProfile transmits data over the path the named profile selects.
func (t *Table) SendWithProfile(handle int32, data []byte, profile core.Profile) (int, error) {
	sock, err := t.lookup(handle)
	if err != nil {
		return 0, err
	}
	return sock.send(data, profile)
}

// Receive blocks until data arrives on any path bound to the socket and
// returns the payload and the address of the arrival path.
func (t *Table) Receive(handle int32, capacity int) ([]byte, core.Address, error) {
	sock, err := t.lookup(handle)
	if err != nil {
		return nil, core.Address{}, err
	}
	return sock.receive(capacity)
}

// State reports the socket's current connection state.
func (t *Table) State(handle int32) (core.SocketState, error) {
	sock, err := t.lookup(handle)
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return core.StateClosed, nil
		}
		return 0, err
	}
	return sock.State(), nil
}

// Stats returns a detached snapshot of the socket's counters. The snapshot
// outlives the socket and must be released by the caller.
func (t *Table) Stats(handle int32) (*StatsSnapshot, error) {
	sock, err := t.lookup(handle)
	if err != nil {
		return nil, err
	}
	return sock.snapshot(), nil
}
