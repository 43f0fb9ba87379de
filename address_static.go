package ipv6ddns

import (
	"context"
	"fmt"
	"net/netip"
)

// StaticObserver constructs an Observer that reports the single address
// parsed from addr once, then blocks until ctx is canceled. This is the
// fixed-output analogue of the teacher's FromString resolver, repurposed
// here for driving the Reconciler in tests and for manual overrides when a
// host's interfaces cannot be trusted (e.g. a container without netlink
// access but a known-good address supplied externally).
func StaticObserver(addr string, allowLoopback bool) (Observer, error) {
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("ipv6ddns.StaticObserver: unable to parse address: %w", err)
	}
	if !a.Is6() {
		return nil, fmt.Errorf("ipv6ddns.StaticObserver: %s is not an IPv6 address", addr)
	}
	ia := IPv6Address{Addr: a, Scope: scopeFor(a)}
	if !ia.Eligible(allowLoopback) {
		return nil, fmt.Errorf("ipv6ddns.StaticObserver: %s is not an eligible address", addr)
	}
	return staticObserver{addr: ia}, nil
}

type staticObserver struct {
	addr IPv6Address
}

func (s staticObserver) Run(ctx context.Context, out chan<- AddressSet) error {
	sendCoalesced(ctx, out, AddressSet{s.addr.Addr: s.addr})
	<-ctx.Done()
	return nil
}
