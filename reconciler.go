package ipv6ddns

import (
	"context"
	"errors"
	"io"
	"log"
	"net/netip"
	"time"
)

// discard is the default logger used whenever no logger is configured,
// matching the teacher's ddns.go: var discard = log.New(io.Discard, "", log.LstdFlags).
var discard = log.New(io.Discard, "", log.LstdFlags)

const (
	backoffBase        = 5 * time.Second
	backoffMax         = 600 * time.Second
	backoffMaxExponent = 10
)

// backoffDelay implements "min(5s * 2^(n-1), 600s)" with the exponent capped
// at ten (spec §4.2 "Failure path"), ported from
// original_source/src/daemon.rs's backoff_delay.
func backoffDelay(consecutiveFailures int) time.Duration {
	if consecutiveFailures < 1 {
		consecutiveFailures = 1
	}
	exp := consecutiveFailures - 1
	if exp > backoffMaxExponent {
		exp = backoffMaxExponent
	}
	delay := backoffBase * time.Duration(1<<uint(exp))
	if delay > backoffMax {
		delay = backoffMax
	}
	return delay
}

// stateKind is the SyncState discriminant from spec §3.
type stateKind int

const (
	StateUnknown stateKind = iota
	StateSynced
	StateError
)

// SyncState is the reconciler's single piece of shared mutable state (spec
// §5 "Shared resources"). Only the Reconciler's own goroutine ever writes
// it.
type SyncState struct {
	Kind stateKind

	// Valid when Kind == StateSynced.
	Address  netip.Addr
	RecordID string

	// Valid when Kind == StateError.
	ConsecutiveFailures int
	NextAttemptAt       time.Time
}

// ReconcilerOption configures a Reconciler returned by NewReconciler.
type ReconcilerOption func(*Reconciler) error

// WithMultiRecordPolicy sets the policy applied when the provider reports
// more than one AAAA record for the configured name. Defaults to PolicyError.
func WithMultiRecordPolicy(p MultiRecordPolicy) ReconcilerOption {
	return func(r *Reconciler) error {
		r.policy = p
		return nil
	}
}

// WithReconcilerLogger sets the logger used for state transitions, the
// mandatory "Synced (ID: ...)" line, and error/warning messages.
func WithReconcilerLogger(logger *log.Logger) ReconcilerOption {
	return func(r *Reconciler) error {
		if logger != nil {
			r.logger = logger
		}
		return nil
	}
}

// WithStateObserver registers a callback invoked synchronously, from the
// Run goroutine, every time SyncState changes. SyncState itself is owned
// exclusively by that goroutine (spec §5 "Shared resources"); a callback is
// the only safe way for something like a health-check endpoint to observe
// it without adding a lock to the reconciler's hot path. The callback must
// do its own synchronization if it hands the value to another goroutine.
func WithStateObserver(fn func(SyncState)) ReconcilerOption {
	return func(r *Reconciler) error {
		r.onStateChange = fn
		return nil
	}
}

// NewReconciler constructs a Reconciler that drives record toward the
// host's chosen IPv6 address via provider, following the teacher's
// functional-options constructor idiom (ddns.New / clientOption).
func NewReconciler(provider Provider, record string, options ...ReconcilerOption) (*Reconciler, error) {
	if record == "" {
		return nil, errors.New("ipv6ddns.NewReconciler: record name cannot be empty")
	}
	if provider == nil {
		return nil, errors.New("ipv6ddns.NewReconciler: provider cannot be nil")
	}
	r := &Reconciler{
		provider: provider,
		record:   record,
		logger:   discard,
	}
	for _, opt := range options {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Reconciler owns SyncState and drives convergence toward
// Synced{chosen_address} (spec §4.2). It is not safe for concurrent use:
// Run is meant to be the only goroutine ever touching its fields.
type Reconciler struct {
	provider      Provider
	record        string
	policy        MultiRecordPolicy
	logger        *log.Logger
	onStateChange func(SyncState)

	state SyncState

	lastDesired    netip.Addr
	lastHasDesired bool
	loggedEmpty    bool

	inFlight bool

	pendingValid      bool
	pendingDesired    netip.Addr
	pendingHasDesired bool
	pendingForced     bool

	retryTimer *time.Timer
}

// State returns a copy of the current SyncState. Safe to call only from the
// goroutine running Run, or after Run has returned.
func (r *Reconciler) State() SyncState { return r.state }

type syncResult struct {
	addr     netip.Addr
	recordID string
	err      error
}

// Run is the single cooperative event-loop task (spec §5). It multiplexes
// ObserverEvent, ForceResync and RetryTimer inputs, enforces at-most-one
// in-flight provider call, and returns when ctx is canceled. If ready is
// non-nil it is closed once the loop is prepared to receive input, so a
// caller can delay starting the Observer until the Reconciler will not miss
// the bootstrap notification (spec §4.2 "Startup ordering").
func (r *Reconciler) Run(ctx context.Context, events <-chan AddressSet, forceResync <-chan struct{}, ready chan<- struct{}) error {
	resultCh := make(chan syncResult, 1)
	defer r.cancelRetry()

	if ready != nil {
		close(ready)
	}

	for {
		var retryC <-chan time.Time
		if r.retryTimer != nil {
			retryC = r.retryTimer.C
		}
		select {
		case <-ctx.Done():
			return nil

		case set, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			desired, has := set.Chosen()
			r.lastDesired, r.lastHasDesired = desired, has
			if !has && r.state.Kind == StateUnknown && !r.loggedEmpty {
				r.logger.Printf("ipv6ddns: no IPv6 on startup")
				r.loggedEmpty = true
			}
			r.evaluate(ctx, desired, has, false, resultCh)

		case _, ok := <-forceResync:
			if !ok {
				forceResync = nil
				continue
			}
			r.cancelRetry()
			r.evaluate(ctx, r.lastDesired, r.lastHasDesired, true, resultCh)

		case <-retryC:
			r.retryTimer = nil
			r.evaluate(ctx, r.lastDesired, r.lastHasDesired, true, resultCh)

		case res := <-resultCh:
			r.inFlight = false
			if res.err == nil {
				r.setState(SyncState{Kind: StateSynced, Address: res.addr, RecordID: res.recordID})
				r.logger.Printf("Synced (ID: %s) address=%s", res.recordID, res.addr)
			} else {
				r.onFailure(res.err)
			}
			if r.pendingValid {
				forced := r.pendingForced
				r.pendingValid, r.pendingForced = false, false
				if forced {
					r.cancelRetry()
				}
				r.evaluate(ctx, r.pendingDesired, r.pendingHasDesired, forced, resultCh)
			}
		}
	}
}

// evaluate implements the decision table of spec §4.2.
func (r *Reconciler) evaluate(ctx context.Context, desired netip.Addr, has bool, forced bool, resultCh chan syncResult) {
	if r.inFlight {
		r.pendingDesired, r.pendingHasDesired, r.pendingValid = desired, has, true
		r.pendingForced = r.pendingForced || forced
		return
	}

	switch r.state.Kind {
	case StateUnknown:
		if !has {
			return
		}
		r.attempt(ctx, desired, resultCh)

	case StateSynced:
		if !has {
			return // remain Synced(A); do not delete the remote record
		}
		if desired == r.state.Address && !forced {
			return // no-op
		}
		r.attempt(ctx, desired, resultCh)

	case StateError:
		if !forced {
			return // only act on RetryTimer or ForceResync; desired already recorded above
		}
		if !has {
			// Still nothing to sync: re-arm the retry timer rather than
			// leaving it canceled, or a later ObserverEvent bringing the
			// address back (which is not itself forced) would never be
			// acted on.
			r.rearmRetry()
			return
		}
		r.attempt(ctx, desired, resultCh)
	}
}

// rearmRetry schedules another retry attempt at the current backoff cadence
// if none is currently pending. Used when a forced evaluation (ForceResync
// or a just-fired RetryTimer) finds StateError but no eligible address yet,
// so the reconciler keeps checking back instead of stalling until the next
// SIGHUP.
func (r *Reconciler) rearmRetry() {
	if r.retryTimer != nil {
		return
	}
	delay := backoffDelay(r.state.ConsecutiveFailures)
	r.state.NextAttemptAt = time.Now().Add(delay)
	r.retryTimer = time.NewTimer(delay)
}

func (r *Reconciler) attempt(ctx context.Context, addr netip.Addr, resultCh chan syncResult) {
	r.inFlight = true
	go func() {
		id, err := r.provider.UpsertAAAA(ctx, r.record, addr, r.policy)
		resultCh <- syncResult{addr: addr, recordID: id, err: err}
	}()
}

func (r *Reconciler) onFailure(err error) {
	cf := 0
	if r.state.Kind == StateError {
		cf = r.state.ConsecutiveFailures
	}
	cf++

	var nre *NonRetriableError
	var delay time.Duration
	if errors.As(err, &nre) {
		// "treat as retriable with max cap" (spec §4.2): auth/policy errors
		// do not self-heal quickly, so jump straight to the long backoff.
		delay = backoffMax
		r.logger.Printf("ipv6ddns: non-retriable provider error, backing off %s: %s", delay, err)
	} else {
		delay = backoffDelay(cf)
		r.logger.Printf("ipv6ddns: provider error, retrying in %s: %s", delay, err)
	}

	r.setState(SyncState{
		Kind:                StateError,
		ConsecutiveFailures: cf,
		NextAttemptAt:       time.Now().Add(delay),
	})
	r.retryTimer = time.NewTimer(delay)
}

func (r *Reconciler) setState(s SyncState) {
	r.state = s
	if r.onStateChange != nil {
		r.onStateChange(s)
	}
}

func (r *Reconciler) cancelRetry() {
	if r.retryTimer != nil {
		r.retryTimer.Stop()
		r.retryTimer = nil
	}
}
