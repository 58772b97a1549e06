package engine

import (
	"sync"
	"sync/atomic"

	"github.com/irctrakz/pathsock/pkg/core"
)

// pathTracker keeps per-path health and quality bookkeeping for the engine.
// A path starts viable and stays viable until its consecutive transmit
// failure streak crosses the configured threshold; one success clears the
// streak. Quality fields (latency/bandwidth/loss hints) come from static
// configuration, since a datagram underlay has no acknowledgment stream to
// measure against.
type pathTracker struct {
	threshold uint32

	mu     sync.Mutex
	states map[string]*pathState
}

type pathState struct {
	failures uint32
	static   core.PathMetadata
	hasHint  bool
}

func newPathTracker(threshold int) *pathTracker {
	if threshold <= 0 {
		threshold = 3
	}
	return &pathTracker{
		threshold: uint32(threshold),
		states:    make(map[string]*pathState),
	}
}

func (t *pathTracker) state(addr core.Address) *pathState {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[addr.Key()]
	if !ok {
		s = &pathState{}
		t.states[addr.Key()] = s
	}
	return s
}

// setHint installs static quality metadata for a path.
func (t *pathTracker) setHint(addr core.Address, meta core.PathMetadata) {
	s := t.state(addr)
	t.mu.Lock()
	s.static = meta
	s.hasHint = true
	t.mu.Unlock()
}

// recordSuccess clears the path's failure streak.
func (t *pathTracker) recordSuccess(addr core.Address) {
	atomic.StoreUint32(&t.state(addr).failures, 0)
}

// recordFailure bumps the path's failure streak.
func (t *pathTracker) recordFailure(addr core.Address) {
	atomic.AddUint32(&t.state(addr).failures, 1)
}

// viable reports whether the path's failure streak is under the threshold.
func (t *pathTracker) viable(addr core.Address) bool {
	return atomic.LoadUint32(&t.state(addr).failures) < t.threshold
}

// metadata merges the static quality hint with observed health.
func (t *pathTracker) metadata(addr core.Address) core.PathMetadata {
	s := t.state(addr)
	t.mu.Lock()
	meta := s.static
	t.mu.Unlock()
	meta.Viable = atomic.LoadUint32(&s.failures) < t.threshold
	return meta
}
