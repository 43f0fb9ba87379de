package ipv6ddns

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/cloudflare/cloudflare-go"
)

const dnsCommentManagedBy = "managed by ipv6ddns"

// NewCloudflareProvider constructs the default Provider implementation,
// targeting Cloudflare's public API with the given API token and zone ID.
// timeout bounds every HTTP call the provider makes (spec §4.3 "Timeouts").
func NewCloudflareProvider(apiToken, zoneID string, timeout time.Duration) (Provider, error) {
	return newCloudflareProvider(apiToken, zoneID, timeout)
}

// WithCloudflareLogger attaches logger to a Provider previously constructed
// with NewCloudflareProvider, if it is one; otherwise it is a no-op. It
// sets only the provider's logger; the reconciler's logger is set
// separately with WithReconcilerLogger.
func WithCloudflareLogger(provider Provider, logger *log.Logger) {
	if cf, ok := provider.(*cloudflareProvider); ok && logger != nil {
		cf.logger = logger
	}
}

// newCloudflareProvider constructs a Provider backed by Cloudflare's DNS
// API, scoped to a single zone (unlike the teacher's newCloudflareProvider,
// which resolved the zone from a domain suffix match against every zone
// visible to the token; this daemon is handed a zone_id directly by
// configuration, per spec §3).
func newCloudflareProvider(token, zoneID string, timeout time.Duration) (cf *cloudflareProvider, err error) {
	cf = new(cloudflareProvider)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cf.api, err = cloudflare.NewWithAPIToken(token, cloudflare.HTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("error creating cloudflare api client: %w", err)
	}
	cf.zoneID = zoneID
	cf.logger = discard
	return cf, nil
}

// cloudflareProvider implements ipv6ddns.Provider. Construct it via
// NewCloudflareProvider.
type cloudflareProvider struct {
	api    *cloudflare.API
	zoneID string
	logger *log.Logger
}

func (cf *cloudflareProvider) ListAAAA(ctx context.Context, name string) ([]DNSRecord, error) {
	records, _, err := cf.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(cf.zoneID), cloudflare.ListDNSRecordsParams{
		Type: "AAAA",
		Name: name,
	})
	if err != nil {
		return nil, classifyCloudflareError(err)
	}
	out := make([]DNSRecord, 0, len(records))
	for _, r := range records {
		addr, err := netip.ParseAddr(r.Content)
		if err != nil {
			continue
		}
		out = append(out, DNSRecord{ID: r.ID, Name: r.Name, Content: addr})
	}
	return out, nil
}

// UpsertAAAA implements the algorithm of spec §4.3, ported from
// original_source/src/cloudflare.rs's upsert_aaaa_record: zero records
// create, one record is compared for idempotence before updating, multiple
// records apply the configured MultiRecordPolicy.
func (cf *cloudflareProvider) UpsertAAAA(ctx context.Context, name string, addr netip.Addr, policy MultiRecordPolicy) (string, error) {
	records, err := cf.ListAAAA(ctx, name)
	if err != nil {
		return "", fmt.Errorf("unable to list AAAA records for %s: %w", name, err)
	}

	switch len(records) {
	case 0:
		return cf.create(ctx, name, addr)
	case 1:
		if records[0].Content == addr {
			return records[0].ID, nil // idempotent no-op (spec §4.3 "Idempotence")
		}
		return cf.update(ctx, records[0].ID, name, addr)
	}

	switch policy {
	case PolicyError:
		return "", &NonRetriableError{Cause: fmt.Errorf(
			"multiple AAAA records found for %s (%d); refusing to update under multi_record=error", name, len(records))}
	case PolicyFirst:
		first := records[0]
		if first.Content == addr {
			return first.ID, nil
		}
		return cf.update(ctx, first.ID, name, addr)
	case PolicyAll:
		var (
			firstID string
			haveID  bool
		)
		for _, r := range records {
			if r.Content == addr {
				if !haveID {
					firstID, haveID = r.ID, true
				}
				continue
			}
			id, err := cf.update(ctx, r.ID, name, addr)
			if err != nil {
				// Open Question (a): no rollback of previously updated
				// records; each call is independent (see DESIGN.md).
				return "", err
			}
			if !haveID {
				firstID, haveID = id, true
			}
		}
		return firstID, nil
	default:
		return "", &NonRetriableError{Cause: fmt.Errorf("unknown multi_record policy %v", policy)}
	}
}

func (cf *cloudflareProvider) create(ctx context.Context, name string, addr netip.Addr) (string, error) {
	cf.logger.Printf("creating AAAA record for %s -> %s", name, addr)
	record, err := cf.api.CreateDNSRecord(ctx, cloudflare.ZoneIdentifier(cf.zoneID), cloudflare.CreateDNSRecordParams{
		Type:    "AAAA",
		Name:    name,
		Content: addr.String(),
		TTL:     1, // "automatic" TTL, matching DNS_TTL_AUTO in the original source
		Comment: dnsCommentManagedBy,
	})
	if err != nil {
		return "", classifyCloudflareError(err)
	}
	return record.ID, nil
}

func (cf *cloudflareProvider) update(ctx context.Context, recordID, name string, addr netip.Addr) (string, error) {
	cf.logger.Printf("updating AAAA record %s for %s -> %s", recordID, name, addr)
	record, err := cf.api.UpdateDNSRecord(ctx, cloudflare.ZoneIdentifier(cf.zoneID), cloudflare.UpdateDNSRecordParams{
		ID:      recordID,
		Type:    "AAAA",
		Name:    name,
		Content: addr.String(),
	})
	if err != nil {
		return "", classifyCloudflareError(err)
	}
	return record.ID, nil
}

// classifyCloudflareError maps a cloudflare-go error into RetriableError or
// NonRetriableError per spec §4.3's classification table: network errors
// and timeouts are retriable, as are 429 and 5xx; other 4xx are
// non-retriable (typically authentication or invalid input).
func classifyCloudflareError(err error) error {
	if err == nil {
		return nil
	}
	var cfErr *cloudflare.Error
	if errors.As(err, &cfErr) {
		switch {
		case cfErr.StatusCode == 429:
			return &RetriableError{Cause: err}
		case cfErr.StatusCode >= 500 && cfErr.StatusCode <= 599:
			return &RetriableError{Cause: err}
		case cfErr.StatusCode >= 400:
			return &NonRetriableError{Cause: err}
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &RetriableError{Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RetriableError{Cause: err}
	}
	// Unrecognized shape: treat conservatively as retriable so a transient
	// client-library hiccup cannot wedge the daemon into a long backoff.
	return &RetriableError{Cause: err}
}
