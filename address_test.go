package ipv6ddns

import (
	"net/netip"
	"testing"
)

func mustAddr(t *testing.T, s string) netip.Addr {
	t.Helper()
	a, err := netip.ParseAddr(s)
	if err != nil {
		t.Fatalf("error parsing %s: %s", s, err)
	}
	return a
}

func TestEligible(t *testing.T) {
	cases := []struct {
		name     string
		addr     IPv6Address
		loopback bool
		want     bool
	}{
		{"global ok", IPv6Address{Addr: mustAddr(t, "2001:db8::1"), Scope: ScopeUniverse}, false, true},
		{"tentative rejected", IPv6Address{Addr: mustAddr(t, "2001:db8::1"), Scope: ScopeUniverse, Flags: FlagTentative}, false, false},
		{"deprecated rejected", IPv6Address{Addr: mustAddr(t, "2001:db8::1"), Scope: ScopeUniverse, Flags: FlagDeprecated}, false, false},
		{"dad failed rejected", IPv6Address{Addr: mustAddr(t, "2001:db8::1"), Scope: ScopeUniverse, Flags: FlagDADFailed}, false, false},
		{"temporary rejected", IPv6Address{Addr: mustAddr(t, "2001:db8::1"), Scope: ScopeUniverse, Flags: FlagTemporary}, false, false},
		{"non-universe scope rejected", IPv6Address{Addr: mustAddr(t, "fe80::1"), Scope: 253}, false, false},
		{"loopback rejected by default", IPv6Address{Addr: mustAddr(t, "::1"), Scope: ScopeUniverse}, false, false},
		{"loopback allowed when configured", IPv6Address{Addr: mustAddr(t, "::1"), Scope: ScopeUniverse}, true, true},
		{"ipv4-mapped rejected", IPv6Address{Addr: mustAddr(t, "::ffff:192.0.2.1"), Scope: ScopeUniverse}, false, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.addr.Eligible(c.loopback); got != c.want {
				t.Fatalf("Eligible() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestAddressSetChosen(t *testing.T) {
	if _, ok := (AddressSet{}).Chosen(); ok {
		t.Fatalf("empty set should report no chosen address")
	}

	a := mustAddr(t, "2001:db8::1")
	b := mustAddr(t, "2001:db8::2")
	set := AddressSet{
		a: {Addr: a, Scope: ScopeUniverse},
		b: {Addr: b, Scope: ScopeUniverse},
	}
	chosen, ok := set.Chosen()
	if !ok || chosen != a {
		t.Fatalf("Chosen() = %v, %v, want %v, true", chosen, ok, a)
	}
}

func TestAddressSetEqual(t *testing.T) {
	a := mustAddr(t, "2001:db8::1")
	s1 := AddressSet{a: {Addr: a}}
	s2 := AddressSet{a: {Addr: a}}
	if !s1.Equal(s2) {
		t.Fatalf("expected equal sets to compare equal")
	}
	s3 := AddressSet{}
	if s1.Equal(s3) {
		t.Fatalf("expected sets of different size to compare unequal")
	}
}
