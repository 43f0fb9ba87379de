package ipv6ddns

import "net/netip"

// Address flag bits, mirrored from Linux's <linux/if_addr.h> IFA_F_* values.
// Only the bits the eligibility predicate cares about are named; golang.org/x/sys/unix
// defines the authoritative constants used when parsing netlink messages.
const (
	FlagTemporary  uint32 = 0x01 // IFA_F_TEMPORARY (alias IFA_F_SECONDARY): privacy-extension address
	FlagDADFailed  uint32 = 0x08 // IFA_F_DADFAILED
	FlagDeprecated uint32 = 0x20 // IFA_F_DEPRECATED
	FlagTentative  uint32 = 0x40 // IFA_F_TENTATIVE
)

// ScopeUniverse is the RT_SCOPE_UNIVERSE value: global scope.
const ScopeUniverse uint8 = 0

// IPv6Address is an address observed on the host together with the
// interface-flag bitfield and scope the kernel reported for it.
type IPv6Address struct {
	Addr  netip.Addr
	Flags uint32
	Scope uint8
}

// Eligible reports whether a is a candidate for DNS sync: global scope, none
// of the tentative/deprecated/DAD-failed/temporary flags set, and not
// loopback unless allowLoopback is true. A loopback address admitted by
// allowLoopback is exempt from the scope check, since ::1 carries host scope.
func (a IPv6Address) Eligible(allowLoopback bool) bool {
	if !a.Addr.Is6() || a.Addr.Is4In6() {
		return false
	}
	if a.Scope != ScopeUniverse && !(allowLoopback && a.Addr.IsLoopback()) {
		return false
	}
	if a.Flags&(FlagTentative|FlagDeprecated|FlagDADFailed|FlagTemporary) != 0 {
		return false
	}
	if a.Addr.IsLoopback() && !allowLoopback {
		return false
	}
	return true
}

// AddressSet is the current set of eligible addresses on the host, keyed by
// address so repeated observations of the same address collapse naturally.
type AddressSet map[netip.Addr]IPv6Address

// Clone returns a shallow copy, safe to hand to a goroutine that does not
// share state with the observer's internal map.
func (s AddressSet) Clone() AddressSet {
	c := make(AddressSet, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Chosen returns the lexicographically smallest address in the set and true,
// or the zero value and false if the set is empty. This is the sole
// deterministic tie-break rule used throughout the reconciler.
func (s AddressSet) Chosen() (netip.Addr, bool) {
	var min netip.Addr
	found := false
	for addr := range s {
		if !found || addr.Less(min) {
			min = addr
			found = true
		}
	}
	return min, found
}

// Equal reports whether two sets contain the same addresses (flags/scope are
// not compared; only membership matters for reconciliation decisions).
func (s AddressSet) Equal(other AddressSet) bool {
	if len(s) != len(other) {
		return false
	}
	for addr := range s {
		if _, ok := other[addr]; !ok {
			return false
		}
	}
	return true
}
