package socket

import (
	"context"
	"sync"

	"github.com/irctrakz/pathsock/pkg/core"
)

// MockEngine is a scripted PathEngine for testing the socket core without a
// real underlay. Viability and metadata are set per address; arrivals are
// injected through a channel so tests control exactly when a blocked
// receive wakes up.
type MockEngine struct {
	mu       sync.Mutex
	metadata map[string]core.PathMetadata

	// TransmitErr, when set, is returned by every Transmit call.
	TransmitErr error

	// transmitted records every successful Transmit in order.
	transmitted []MockTransmission

	arrivals chan MockArrival
}

// MockTransmission is one recorded Transmit call.
type MockTransmission struct {
	Addr core.Address
	Data []byte
}

// MockArrival is one inbound datagram to hand to AwaitArrival.
type MockArrival struct {
	From core.Address
	Data []byte
	Err  error
}

var _ core.PathEngine = (*MockEngine)(nil)

// NewMockEngine creates a mock engine with no viable paths and no pending
// arrivals.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		metadata: make(map[string]core.PathMetadata),
		arrivals: make(chan MockArrival, 16),
	}
}

// SetMetadata scripts the metadata reported for addr.
func (m *MockEngine) SetMetadata(addr core.Address, meta core.PathMetadata) {
	m.mu.Lock()
	m.metadata[addr.Key()] = meta
	m.mu.Unlock()
}

// SetViable scripts bare viability for addr, leaving quality fields zero.
func (m *MockEngine) SetViable(addr core.Address, viable bool) {
	m.mu.Lock()
	meta := m.metadata[addr.Key()]
	meta.Viable = viable
	m.metadata[addr.Key()] = meta
	m.mu.Unlock()
}

// QueryViability implements core.PathEngine.
func (m *MockEngine) QueryViability(addr core.Address) bool {
	return m.Metadata(addr).Viable
}

// Metadata implements core.PathEngine.
func (m *MockEngine) Metadata(addr core.Address) core.PathMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metadata[addr.Key()]
}

// Transmit implements core.PathEngine.
func (m *MockEngine) Transmit(addr core.Address, data []byte) error {
	m.mu.Lock()
	err := m.TransmitErr
	if err == nil {
		buf := make([]byte, len(data))
		copy(buf, data)
		m.transmitted = append(m.transmitted, MockTransmission{Addr: addr, Data: buf})
	}
	m.mu.Unlock()
	return err
}

// Transmitted returns a copy of all recorded transmissions.
func (m *MockEngine) Transmitted() []MockTransmission {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockTransmission, len(m.transmitted))
	copy(out, m.transmitted)
	return out
}

// InjectArrival queues one inbound datagram for AwaitArrival.
func (m *MockEngine) InjectArrival(from core.Address, data []byte) {
	m.arrivals <- MockArrival{From: from, Data: data}
}

// InjectError queues an error result for AwaitArrival.
func (m *MockEngine) InjectError(err error) {
	m.arrivals <- MockArrival{Err: err}
}

// AwaitArrival implements core.PathEngine.
func (m *MockEngine) AwaitArrival(ctx context.Context, set core.AddressSet) ([]byte, core.Address, error) {
	select {
	case <-ctx.Done():
		return nil, core.Address{}, ctx.Err()
	case a := <-m.arrivals:
		if a.Err != nil {
			return nil, core.Address{}, a.Err
		}
		return a.Data, a.From, nil
	}
}
