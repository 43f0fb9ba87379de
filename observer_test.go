package ipv6ddns

import (
	"context"
	"testing"
	"time"
)

func TestSendCoalescedDeliversWhenBufferIsFree(t *testing.T) {
	out := make(chan AddressSet, 1)
	ctx := context.Background()

	want := addrSetOf(t, "2001:db8::1")
	sendCoalesced(ctx, out, want)

	select {
	case got := <-out:
		if !got.Equal(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	default:
		t.Fatalf("expected a value on out")
	}
}

func TestSendCoalescedDropsWhenBufferIsFull(t *testing.T) {
	// out is send-only from sendCoalesced's perspective (it cannot drain a
	// stale value), so a second send while the first is still unconsumed
	// must not block and must leave the first value in place — the caller
	// is expected to retry with fresher state on its next tick/event rather
	// than rely on this call to replace anything.
	out := make(chan AddressSet, 1)
	ctx := context.Background()

	first := addrSetOf(t, "2001:db8::1")
	second := addrSetOf(t, "2001:db8::2")

	sendCoalesced(ctx, out, first)
	sendCoalesced(ctx, out, second)

	select {
	case got := <-out:
		if !got.Equal(first) {
			t.Fatalf("expected the unconsumed first value to remain, got %v", got)
		}
	default:
		t.Fatalf("expected a value on out")
	}

	select {
	case extra := <-out:
		t.Fatalf("expected only one buffered value, got extra: %v", extra)
	default:
	}
}

func TestSendCoalescedRespectsContextCancellation(t *testing.T) {
	out := make(chan AddressSet) // unbuffered with no reader, so the send cannot complete; sendCoalesced must still return
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		sendCoalesced(ctx, out, addrSetOf(t, "2001:db8::1"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sendCoalesced did not return after context cancellation")
	}
}

func TestScopeFor(t *testing.T) {
	cases := []struct {
		addr string
		want uint8
	}{
		{"::1", 254},
		{"fe80::1", 253},
		{"2001:db8::1", ScopeUniverse},
	}
	for _, c := range cases {
		if got := scopeFor(mustAddr(t, c.addr)); got != c.want {
			t.Fatalf("scopeFor(%s) = %d, want %d", c.addr, got, c.want)
		}
	}
}

func TestStaticObserverSendsOnce(t *testing.T) {
	obs, err := StaticObserver("2001:db8::1", false)
	if err != nil {
		t.Fatalf("StaticObserver: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan AddressSet, 1)

	done := make(chan error, 1)
	go func() { done <- obs.Run(ctx, out) }()

	select {
	case set := <-out:
		chosen, ok := set.Chosen()
		if !ok || chosen != mustAddr(t, "2001:db8::1") {
			t.Fatalf("unexpected bootstrap set: %v", set)
		}
	case <-time.After(time.Second):
		t.Fatalf("StaticObserver did not send its bootstrap set")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %s", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancellation")
	}
}

func TestStaticObserverRejectsIneligibleAddress(t *testing.T) {
	if _, err := StaticObserver("::1", false); err == nil {
		t.Fatalf("expected an error constructing a StaticObserver from a loopback address without allowLoopback")
	}
	if _, err := StaticObserver("::1", true); err != nil {
		t.Fatalf("StaticObserver(::1, allowLoopback=true) should succeed, got: %s", err)
	}
}

func TestStaticObserverRejectsIPv4(t *testing.T) {
	if _, err := StaticObserver("192.0.2.1", false); err == nil {
		t.Fatalf("expected an error constructing a StaticObserver from an IPv4 address")
	}
}
