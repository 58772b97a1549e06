// Package engine provides a concrete PathEngine over a plain UDP underlay.
// Each engine owns one local UDP socket; candidate paths are remote
// host:port endpoints tagged with their AS identifier. Framing on the wire
// is the engine's private concern: a one-byte IA length, the IA bytes, then
// the payload, so arrivals can be attributed to the path they came in on.
package engine

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/net/ipv4"

	"github.com/irctrakz/pathsock/pkg/core"
	"github.com/irctrakz/pathsock/pkg/logging"
)

const (
	maxDatagram = 65535
	maxIALen    = 255
)

// Config configures a UDP path engine.
type Config struct {
	// ListenAddress is the local UDP address, e.g. "0.0.0.0:30100".
	ListenAddress string `json:"listenAddress" yaml:"listenAddress"`

	// LocalIA is the AS identifier stamped on outbound frames.
	LocalIA string `json:"localIA" yaml:"localIA"`

	// TTL overrides the IP TTL on outbound datagrams. Zero keeps the
	// kernel default.
	TTL int `json:"ttl" yaml:"ttl"`

	// TOS sets the DSCP/ECN byte on outbound datagrams. Zero leaves it.
	TOS int `json:"tos" yaml:"tos"`

	// FailureThreshold is the consecutive transmit failure count after
	// which a path stops being viable. Defaults to 3.
	FailureThreshold int `json:"failureThreshold" yaml:"failureThreshold"`

	// BacklogSize bounds buffered arrivals nobody is waiting for yet.
	// Defaults to 256; the oldest datagram is dropped on overflow.
	BacklogSize int `json:"backlogSize" yaml:"backlogSize"`
}

// arrival is one inbound datagram after deframing.
type arrival struct {
	from core.Address
	data []byte
}

// waiter is one blocked AwaitArrival call.
type waiter struct {
	set core.AddressSet
	ch  chan arrival
}

// Metrics counts engine-level events.
type Metrics struct {
	DatagramsSent     uint64
	DatagramsReceived uint64
	BytesSent         uint64
	BytesReceived     uint64
	BacklogDrops      uint64
	Errors            uint64
}

// UDPEngine is a core.PathEngine over a single local UDP socket.
type UDPEngine struct {
	config  Config
	tracker *pathTracker
	metrics Metrics

	mu      sync.Mutex
	running bool
	conn    net.PacketConn
	stopCh  chan struct{}
	wg      sync.WaitGroup

	waitMu  sync.Mutex
	waiters []*waiter
	backlog []arrival

	log *logging.Entry
}

var _ core.PathEngine = (*UDPEngine)(nil)

// NewUDPEngine creates a UDP engine; call Start before handing it to a
// socket table.
func NewUDPEngine(config Config) *UDPEngine {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 3
	}
	if config.BacklogSize <= 0 {
		config.BacklogSize = 256
	}
	return &UDPEngine{
		config:  config,
		tracker: newPathTracker(config.FailureThreshold),
		stopCh:  make(chan struct{}),
		log:     logging.Component("engine"),
	}
}

// SetPathHint installs static quality metadata (latency, bandwidth, loss)
// for one candidate path. Selection profiles rank on these hints.
func (e *UDPEngine) SetPathHint(addr core.Address, meta core.PathMetadata) {
	e.tracker.setHint(addr, meta)
}

// Start binds the local socket and starts the read loop.
func (e *UDPEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("udp engine already running")
	}

	conn, err := net.ListenPacket("udp4", e.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", e.config.ListenAddress, err)
	}
	e.conn = conn

	// TTL/TOS policy mirrors outbound header synthesis: apply overrides
	// when configured, otherwise leave the kernel defaults alone.
	p := ipv4.NewPacketConn(conn)
	if e.config.TTL > 0 {
		if err := p.SetTTL(e.config.TTL); err != nil {
			e.log.Warnf("failed to set TTL %d: %v", e.config.TTL, err)
		}
	}
	if e.config.TOS > 0 {
		if err := p.SetTOS(e.config.TOS); err != nil {
			e.log.Warnf("failed to set TOS %d: %v", e.config.TOS, err)
		}
	}

	e.running = true
	e.wg.Add(1)
	go e.readLoop()

	e.log.Infof("udp engine listening on %s (ia=%s)", conn.LocalAddr(), e.config.LocalIA)
	return nil
}

// Stop closes the local socket and wakes blocked AwaitArrival calls with a
// fatal error.
func (e *UDPEngine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	close(e.stopCh)
	conn := e.conn
	e.conn = nil
	e.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	e.wg.Wait()

	e.log.Infof("udp engine stopped")
	return nil
}

// LocalAddr returns the bound local address, or nil before Start.
func (e *UDPEngine) LocalAddr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil
	}
	return e.conn.LocalAddr()
}

// Metrics returns a copy of the engine counters.
func (e *UDPEngine) Metrics() Metrics {
	return Metrics{
		DatagramsSent:     atomic.LoadUint64(&e.metrics.DatagramsSent),
		DatagramsReceived: atomic.LoadUint64(&e.metrics.DatagramsReceived),
		BytesSent:         atomic.LoadUint64(&e.metrics.BytesSent),
		BytesReceived:     atomic.LoadUint64(&e.metrics.BytesReceived),
		BacklogDrops:      atomic.LoadUint64(&e.metrics.BacklogDrops),
		Errors:            atomic.LoadUint64(&e.metrics.Errors),
	}
}

// QueryViability implements core.PathEngine.
func (e *UDPEngine) QueryViability(addr core.Address) bool {
	return e.tracker.viable(addr)
}

// Metadata implements core.PathEngine.
func (e *UDPEngine) Metadata(addr core.Address) core.PathMetadata {
	return e.tracker.metadata(addr)
}

// Transmit implements core.PathEngine. The frame carries the local IA so
// the remote engine can attribute the arrival.
func (e *UDPEngine) Transmit(addr core.Address, data []byte) error {
	e.mu.Lock()
	conn := e.conn
	running := e.running
	e.mu.Unlock()
	if !running || conn == nil {
		return core.FatalError(fmt.Errorf("udp engine not running"))
	}

	if len(e.config.LocalIA) > maxIALen {
		return fmt.Errorf("local IA too long: %d bytes", len(e.config.LocalIA))
	}
	frame := make([]byte, 0, 1+len(e.config.LocalIA)+len(data))
	frame = append(frame, byte(len(e.config.LocalIA)))
	frame = append(frame, e.config.LocalIA...)
	frame = append(frame, data...)
	if len(frame) > maxDatagram {
		return fmt.Errorf("payload of %d bytes exceeds datagram limit", len(data))
	}

	raddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", addr.Host, addr.Port))
	if err != nil {
		e.tracker.recordFailure(addr)
		atomic.AddUint64(&e.metrics.Errors, 1)
		return fmt.Errorf("resolve %s: %w", addr, err)
	}

	if _, err := conn.WriteTo(frame, raddr); err != nil {
		e.tracker.recordFailure(addr)
		atomic.AddUint64(&e.metrics.Errors, 1)
		return fmt.Errorf("transmit to %s: %w", addr, err)
	}

	e.tracker.recordSuccess(addr)
	atomic.AddUint64(&e.metrics.DatagramsSent, 1)
	atomic.AddUint64(&e.metrics.BytesSent, uint64(len(data)))
	e.log.Debugf("transmitted %d bytes to %s", len(data), addr)
	return nil
}

// AwaitArrival implements core.PathEngine. It blocks until a datagram
// arrives from an address in set, the context is cancelled, or the engine
// stops.
func (e *UDPEngine) AwaitArrival(ctx context.Context, set core.AddressSet) ([]byte, core.Address, error) {
	w := &waiter{set: set, ch: make(chan arrival, 1)}

	e.waitMu.Lock()
	// Serve from the backlog first so arrivals that beat the receive call
	// are not lost.
	for i, a := range e.backlog {
		if matches(set, a.from) {
			e.backlog = append(e.backlog[:i], e.backlog[i+1:]...)
			e.waitMu.Unlock()
			return a.data, a.from, nil
		}
	}
	e.waiters = append(e.waiters, w)
	e.waitMu.Unlock()

	select {
	case <-ctx.Done():
		e.removeWaiter(w)
		// A datagram may have been delivered concurrently with the
		// cancellation; hand it back to the backlog instead of dropping it.
		select {
		case a := <-w.ch:
			e.pushBacklog(a)
		default:
		}
		return nil, core.Address{}, ctx.Err()
	case <-e.stopCh:
		e.removeWaiter(w)
		return nil, core.Address{}, core.FatalError(fmt.Errorf("udp engine stopped"))
	case a := <-w.ch:
		return a.data, a.from, nil
	}
}

// matches reports whether from belongs to set. The IA check is exact; the
// host check tolerates the source port differing from the configured path
// port, since replies come from the remote engine's bound socket.
func matches(set core.AddressSet, from core.Address) bool {
	for _, a := range set {
		if a.IA == from.IA && a.Host == from.Host {
			return true
		}
	}
	return false
}

func (e *UDPEngine) removeWaiter(w *waiter) {
	e.waitMu.Lock()
	for i, cand := range e.waiters {
		if cand == w {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			break
		}
	}
	e.waitMu.Unlock()
}

func (e *UDPEngine) pushBacklog(a arrival) {
	e.waitMu.Lock()
	if len(e.backlog) >= e.config.BacklogSize {
		e.backlog = e.backlog[1:]
		atomic.AddUint64(&e.metrics.BacklogDrops, 1)
	}
	e.backlog = append(e.backlog, a)
	e.waitMu.Unlock()
}

// deliver hands an arrival to the first waiter whose set covers the source
// path, or parks it in the backlog.
func (e *UDPEngine) deliver(a arrival) {
	e.waitMu.Lock()
	for i, w := range e.waiters {
		if matches(w.set, a.from) {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			e.waitMu.Unlock()
			w.ch <- a
			return
		}
	}
	if len(e.backlog) >= e.config.BacklogSize {
		e.backlog = e.backlog[1:]
		atomic.AddUint64(&e.metrics.BacklogDrops, 1)
	}
	e.backlog = append(e.backlog, a)
	e.waitMu.Unlock()
}

// readLoop reads datagrams off the local socket, deframes them, and routes
// them to waiting receives.
func (e *UDPEngine) readLoop() {
	defer e.wg.Done()

	buf := make([]byte, maxDatagram)
	for {
		e.mu.Lock()
		conn := e.conn
		e.mu.Unlock()
		if conn == nil {
			return
		}

		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-e.stopCh:
				return
			default:
			}
			e.log.Errorf("read failed: %v", err)
			atomic.AddUint64(&e.metrics.Errors, 1)
			continue
		}
		if n < 1 {
			continue
		}

		iaLen := int(buf[0])
		if n < 1+iaLen {
			e.log.Debugf("dropping malformed frame from %v (len=%d)", peer, n)
			atomic.AddUint64(&e.metrics.Errors, 1)
			continue
		}
		ia := string(buf[1 : 1+iaLen])
		payload := make([]byte, n-1-iaLen)
		copy(payload, buf[1+iaLen:n])

		udpPeer, ok := peer.(*net.UDPAddr)
		if !ok {
			atomic.AddUint64(&e.metrics.Errors, 1)
			continue
		}
		from := core.Address{
			IA:   ia,
			Host: udpPeer.IP.String(),
			Port: uint16(udpPeer.Port),
		}

		atomic.AddUint64(&e.metrics.DatagramsReceived, 1)
		atomic.AddUint64(&e.metrics.BytesReceived, uint64(len(payload)))
		e.log.Debugf("received %d bytes from %s", len(payload), from)

		e.deliver(arrival{from: from, data: payload})
	}
}
