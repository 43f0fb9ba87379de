package ipv6ddns

import (
	"context"
	"log"
	"time"
)

// coalesceWindow is the suggested coalescing window from spec §4.1/§9 Open
// Question (b): events arriving within this window of each other are
// collapsed into a single notification carrying the final state.
const coalesceWindow = 50 * time.Millisecond

// DefaultPollInterval is used by the polling observer when no interval is
// configured, matching the original implementation's default.
const DefaultPollInterval = 60 * time.Second

// Observer produces a restartable, coalescing stream of AddressSet
// notifications reflecting the host's eligible IPv6 addresses. Run must send
// a bootstrap dump of the current set before any incremental update, and
// must keep running (falling back to polling on subscription failure rather
// than returning) until ctx is canceled.
type Observer interface {
	Run(ctx context.Context, out chan<- AddressSet) error
}

// ObserverOption configures an Observer returned by NewObserver.
type ObserverOption func(*observerConfig)

type observerConfig struct {
	allowLoopback bool
	pollInterval  time.Duration
	forcePoll     bool
	logger        *log.Logger
}

// WithAllowLoopback makes ::1 an eligible address, for local testing only
// (spec §3).
func WithAllowLoopback(allow bool) ObserverOption {
	return func(c *observerConfig) { c.allowLoopback = allow }
}

// WithPollInterval sets the fallback polling interval.
func WithPollInterval(d time.Duration) ObserverOption {
	return func(c *observerConfig) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithForcePoll skips the kernel-subscription attempt entirely, always
// starting in poll mode. Used for hosts without netlink and for tests.
func WithForcePoll(force bool) ObserverOption {
	return func(c *observerConfig) { c.forcePoll = force }
}

// WithObserverLogger sets the logger used for downgrade/warning messages.
func WithObserverLogger(logger *log.Logger) ObserverOption {
	return func(c *observerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewObserver returns the platform's preferred Observer: a kernel
// subscription (netlink) based implementation on Linux, falling back
// automatically to polling if the subscription cannot be opened, and a
// polling-only implementation elsewhere. See observer_linux.go,
// observer_other.go and observer_poll.go.
func NewObserver(options ...ObserverOption) Observer {
	cfg := observerConfig{
		pollInterval: DefaultPollInterval,
		logger:       discard,
	}
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.forcePoll {
		return &pollObserver{cfg: cfg}
	}
	return newPlatformObserver(cfg)
}

// sendCoalesced delivers set on out with a single non-blocking send. out is
// send-only (the Observer.Run contract), so a full buffer cannot be drained
// here; instead the caller already coalesces its own state before calling
// (the netlink observer's debounce timer) and this update is simply dropped
// if a previous one is still sitting unread — the consumer drains events
// promptly, and the next state change carries the latest value forward.
// The poll observer's ticker loop does its own non-blocking send and sends
// an undelivered set again on the next tick. out must be a buffered channel
// of capacity >= 1.
func sendCoalesced(ctx context.Context, out chan<- AddressSet, set AddressSet) {
	select {
	case out <- set:
	case <-ctx.Done():
	default:
	}
}
