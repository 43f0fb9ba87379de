package ipv6ddns

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
)

// DNSRecord is an opaque provider record identifier plus the AAAA value and
// name, unchanged from spec §3. Its existence is never cached across
// process restarts; the reconciler re-derives truth from the provider on
// every attempt where it matters.
type DNSRecord struct {
	ID      string
	Name    string
	Content netip.Addr
}

// MultiRecordPolicy governs what happens when the provider reports more
// than one AAAA record for the configured name (spec §4.3).
type MultiRecordPolicy int

const (
	// PolicyError refuses to act and reports a non-retriable policy error.
	PolicyError MultiRecordPolicy = iota
	// PolicyFirst updates the first record in listing order, ignoring the rest.
	PolicyFirst
	// PolicyAll updates every matching record.
	PolicyAll
)

// ParseMultiRecordPolicy parses the config value and its original_source
// synonyms (error|fail|reject, first|update_first|updatefirst,
// all|update_all|updateall), matching the acceptance rules in
// original_source/src/main.rs's parse_multi_record.
func ParseMultiRecordPolicy(s string) (MultiRecordPolicy, error) {
	switch normalizePolicy(s) {
	case "error", "fail", "reject":
		return PolicyError, nil
	case "first", "update_first", "updatefirst":
		return PolicyFirst, nil
	case "all", "update_all", "updateall":
		return PolicyAll, nil
	default:
		return 0, &NonRetriableError{Cause: errInvalidMultiRecordPolicy(s)}
	}
}

func normalizePolicy(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func errInvalidMultiRecordPolicy(s string) error {
	return fmt.Errorf("invalid multi_record policy: %q. use: error|first|all", s)
}

func (p MultiRecordPolicy) String() string {
	switch p {
	case PolicyFirst:
		return "first"
	case PolicyAll:
		return "all"
	default:
		return "error"
	}
}

// Provider is the narrow, provider-agnostic capability the core depends on
// (spec §4.3): list the AAAA records for a name, and idempotently upsert the
// target address under a multi-record policy. The default implementation
// (cloudflareProvider, in cloudflare.go) targets Cloudflare's public API.
type Provider interface {
	ListAAAA(ctx context.Context, name string) ([]DNSRecord, error)
	UpsertAAAA(ctx context.Context, name string, addr netip.Addr, policy MultiRecordPolicy) (recordID string, err error)
}

// RetriableError marks a Provider failure that should be retried with
// backoff: network errors, timeouts, HTTP 429, HTTP 5xx (spec §4.3).
type RetriableError struct {
	Cause error
}

func (e *RetriableError) Error() string { return e.Cause.Error() }
func (e *RetriableError) Unwrap() error { return e.Cause }

// NonRetriableError marks a Provider failure the reconciler must not retry
// quickly: HTTP 4xx other than 429 (typically authentication or
// invalid-input), and policy errors raised by the client itself. Per spec
// §4.2 "Failure path", these still result in a long (capped) backoff rather
// than a crash, since an operator may fix credentials without restarting.
type NonRetriableError struct {
	Cause error
}

func (e *NonRetriableError) Error() string { return e.Cause.Error() }
func (e *NonRetriableError) Unwrap() error { return e.Cause }
