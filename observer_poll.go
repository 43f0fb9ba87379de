package ipv6ddns

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"
)

// pollObserver enumerates the host's IPv6 addresses on a fixed interval via
// net.InterfaceAddrs, the portable fallback used when a kernel subscription
// is unavailable (non-Linux build, explicit configuration, or a netlink
// socket failure reported by the event-mode observer). Adapted from the
// teacher's localResolver, which enumerated all interface addresses for a
// one-shot DNS update rather than for a debounced notification stream.
type pollObserver struct {
	cfg observerConfig
}

func (p *pollObserver) Run(ctx context.Context, out chan<- AddressSet) error {
	current, err := p.snapshot()
	if err != nil {
		p.cfg.logger.Printf("ipv6ddns: initial address poll failed: %s", err)
		current = AddressSet{}
	}
	sendCoalesced(ctx, out, current)

	ticker := time.NewTicker(p.cfg.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			next, err := p.snapshot()
			if err != nil {
				p.cfg.logger.Printf("ipv6ddns: address poll failed: %s", err)
				continue
			}
			if next.Equal(current) {
				continue
			}
			select {
			case out <- next:
				current = next
			case <-ctx.Done():
				return nil
			default:
				// out still holds an unread set; current is kept so the
				// next tick compares against it and sends again.
			}
		}
	}
}

func (p *pollObserver) snapshot() (AddressSet, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("error getting interface addresses: %w", err)
	}
	set := AddressSet{}
	for _, a := range addrs {
		prefix, err := netip.ParsePrefix(a.String())
		if err != nil {
			continue
		}
		ip := prefix.Addr()
		if !ip.Is6() || ip.Is4In6() {
			continue
		}
		entry := IPv6Address{
			Addr:  ip,
			Scope: scopeFor(ip),
		}
		if !entry.Eligible(p.cfg.allowLoopback) {
			continue
		}
		set[ip] = entry
	}
	return set, nil
}

// scopeFor approximates RT_SCOPE_UNIVERSE vs link-local/loopback scope from
// the address itself, since net.InterfaceAddrs exposes no scope field. This
// is only used by the portable poll fallback; the netlink observer reads the
// kernel-reported scope directly.
func scopeFor(ip netip.Addr) uint8 {
	switch {
	case ip.IsLoopback():
		return 254 // RT_SCOPE_HOST
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return 253 // RT_SCOPE_LINK
	default:
		return ScopeUniverse
	}
}
