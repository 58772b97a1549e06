// Package selection implements profile-driven path selection over an
// address set. Selection is a pure function of the profile, the set order,
// and the per-address metadata supplied by the caller, so tests can inject
// synthetic viability inputs and expect deterministic results.
package selection

import (
	"fmt"

	"github.com/irctrakz/pathsock/pkg/core"
)

// MetadataFunc supplies current metadata for one address. In production it
// is backed by a PathEngine; tests pass a fixture.
type MetadataFunc func(core.Address) core.PathMetadata

// Pick selects the address to use for one send. It returns ok=false when no
// address in the set is currently viable; that is unavailability, not an
// error about the set itself. The only error case is an unknown profile.
//
// Ties rank by position: when a profile scores two addresses equally, the
// earlier entry in set order wins, so identical metadata inputs always
// produce the identical choice.
func Pick(profile core.Profile, set core.AddressSet, meta MetadataFunc) (core.Address, bool, error) {
	if !profile.Valid() {
		return core.Address{}, false, fmt.Errorf("unsupported profile %d", int(profile))
	}

	var (
		best     core.Address
		bestMeta core.PathMetadata
		found    bool
	)
	for _, addr := range set {
		m := meta(addr)
		if !m.Viable {
			continue
		}
		if profile == core.ProfileDefault {
			// First viable in set order.
			return addr, true, nil
		}
		if !found || better(profile, m, bestMeta) {
			best, bestMeta, found = addr, m, true
		}
	}
	return best, found, nil
}

// better reports whether candidate strictly outranks incumbent under the
// given profile. Equal scores return false, which preserves set order.
func better(profile core.Profile, candidate, incumbent core.PathMetadata) bool {
	switch profile {
	case core.ProfileLowestLatency:
		return candidate.Latency < incumbent.Latency
	case core.ProfileHighestBandwidth:
		return candidate.BandwidthKbps > incumbent.BandwidthKbps
	case core.ProfileMostReliable:
		return candidate.LossRate < incumbent.LossRate
	default:
		return false
	}
}
