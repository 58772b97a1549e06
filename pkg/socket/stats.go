package socket

import (
	"sync"
	"sync/atomic"

	"github.com/irctrakz/pathsock/pkg/core"
)

// statsRecord holds the live counters for one socket. Scalar counters are
// atomics; the per-path maps take the small mutex. Counters only ever go up
// for the life of the socket.
type statsRecord struct {
	messagesSent     uint64
	messagesReceived uint64
	bytesSent        uint64
	bytesReceived    uint64
	failures         uint64

	mu              sync.Mutex
	sendsPerPath    map[string]uint64
	receivesPerPath map[string]uint64
}

func newStatsRecord() *statsRecord {
	return &statsRecord{
		sendsPerPath:    make(map[string]uint64),
		receivesPerPath: make(map[string]uint64),
	}
}

// recordSend accounts one successful send of n bytes over path.
func (r *statsRecord) recordSend(path core.Address, n int) {
	atomic.AddUint64(&r.messagesSent, 1)
	atomic.AddUint64(&r.bytesSent, uint64(n))
	r.mu.Lock()
	r.sendsPerPath[path.Key()]++
	r.mu.Unlock()
}

// recordReceive accounts one successful receive of n bytes from path.
func (r *statsRecord) recordReceive(path core.Address, n int) {
	atomic.AddUint64(&r.messagesReceived, 1)
	atomic.AddUint64(&r.bytesReceived, uint64(n))
	r.mu.Lock()
	r.receivesPerPath[path.Key()]++
	r.mu.Unlock()
}

// recordFailure accounts one failed send or receive.
func (r *statsRecord) recordFailure() {
	atomic.AddUint64(&r.failures, 1)
}

// load produces an independent copy of the current counters.
func (r *statsRecord) load() core.SocketCounters {
	c := core.SocketCounters{
		MessagesSent:     atomic.LoadUint64(&r.messagesSent),
		MessagesReceived: atomic.LoadUint64(&r.messagesReceived),
		BytesSent:        atomic.LoadUint64(&r.bytesSent),
		BytesReceived:    atomic.LoadUint64(&r.bytesReceived),
		Failures:         atomic.LoadUint64(&r.failures),
		SendsPerPath:     make(map[string]uint64),
		ReceivesPerPath:  make(map[string]uint64),
	}
	r.mu.Lock()
	for k, v := range r.sendsPerPath {
		c.SendsPerPath[k] = v
	}
	for k, v := range r.receivesPerPath {
		c.ReceivesPerPath[k] = v
	}
	r.mu.Unlock()
	return c
}

// StatsSnapshot is a detached, read-only copy of a socket's counters. Its
// lifetime is independent of the socket it came from: closing the socket
// does not invalidate an outstanding snapshot. Callers own the snapshot and
// must Release it when done; reads after Release fail ErrSnapshotReleased.
// The explicit pairing is a contract, not a hint, so that snapshots can
// cross boundaries that expect deterministic release points.
type StatsSnapshot struct {
	counters core.SocketCounters
	released uint32
}

// Counters returns the copied counters.
func (s *StatsSnapshot) Counters() (core.SocketCounters, error) {
	if atomic.LoadUint32(&s.released) != 0 {
		return core.SocketCounters{}, ErrSnapshotReleased
	}
	return s.counters, nil
}

// BytesSent returns the copied bytes-sent counter.
func (s *StatsSnapshot) BytesSent() (uint64, error) {
	c, err := s.Counters()
	if err != nil {
		return 0, err
	}
	return c.BytesSent, nil
}

// BytesReceived returns the copied bytes-received counter.
func (s *StatsSnapshot) BytesReceived() (uint64, error) {
	c, err := s.Counters()
	if err != nil {
		return 0, err
	}
	return c.BytesReceived, nil
}

// Release invalidates the snapshot. Releasing twice is an error so that
// double-release bugs surface instead of passing silently.
func (s *StatsSnapshot) Release() error {
	if !atomic.CompareAndSwapUint32(&s.released, 0, 1) {
		return ErrSnapshotReleased
	}
	return nil
}

// Released reports whether Release has been called.
func (s *StatsSnapshot) Released() bool {
	return atomic.LoadUint32(&s.released) != 0
}
