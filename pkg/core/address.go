package core

import (
	"fmt"
	"strings"
)

// Address identifies one endpoint reachable over one network-layer path:
// an autonomous-system-scope identifier, a host address inside that AS,
// and an optional per-path port.
type Address struct {
	// IA is the isolation-domain/AS identifier, e.g. "1-ff00:0:110".
	IA string `json:"ia" yaml:"ia"`

	// Host is the host-layer address within the AS.
	Host string `json:"host" yaml:"host"`

	// Port is the optional per-path port. Zero means unset.
	Port uint16 `json:"port" yaml:"port"`
}

// Validate checks that the address is well-formed.
func (a Address) Validate() error {
	if strings.TrimSpace(a.IA) == "" {
		return fmt.Errorf("address has empty AS identifier")
	}
	if strings.TrimSpace(a.Host) == "" {
		return fmt.Errorf("address %q has empty host", a.IA)
	}
	return nil
}

// Key returns a stable string form used to key per-path counters and
// arrival attribution. Two addresses compare equal iff their keys match.
func (a Address) Key() string {
	return fmt.Sprintf("%s,%s:%d", a.IA, a.Host, a.Port)
}

// String implements fmt.Stringer.
func (a Address) String() string {
	return a.Key()
}

// AddressSet is the ordered collection of candidate path addresses bound to
// a socket at creation time. It is validated and copied once and never
// mutated afterwards; position order is the default selection order and the
// tie-break for profile-based selection.
type AddressSet []Address

// NewAddressSet validates and copies the given addresses.
func NewAddressSet(addrs []Address) (AddressSet, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("address set is empty")
	}
	set := make(AddressSet, len(addrs))
	for i, a := range addrs {
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("address %d: %w", i, err)
		}
		set[i] = a
	}
	return set, nil
}

// Contains reports whether addr is a member of the set.
func (s AddressSet) Contains(addr Address) bool {
	key := addr.Key()
	for _, a := range s {
		if a.Key() == key {
			return true
		}
	}
	return false
}

// Clone returns an independent copy of the set.
func (s AddressSet) Clone() AddressSet {
	out := make(AddressSet, len(s))
	copy(out, s)
	return out
}
