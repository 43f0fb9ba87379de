package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ipv6ddns/ipv6ddns"
)

type fakeStateProvider struct {
	state       ipv6ddns.SyncState
	lastSync    time.Time
	hasLastSync bool
}

func (f fakeStateProvider) HealthState() (ipv6ddns.SyncState, time.Time, bool) {
	return f.state, f.lastSync, f.hasLastSync
}

func TestHandleSyncedIsHealthy(t *testing.T) {
	s := &Server{Provider: fakeStateProvider{
		state:       ipv6ddns.SyncState{Kind: ipv6ddns.StateSynced},
		lastSync:    time.Now().Add(-5 * time.Second),
		hasLastSync: true,
	}}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.handle(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp Response
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("error decoding response: %s", err)
	}
	if !resp.Healthy || resp.Status != "ok" || resp.SyncState != "synced" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.LastSyncSecondsAgo == nil || *resp.LastSyncSecondsAgo < 0 {
		t.Fatalf("expected a non-negative LastSyncSecondsAgo, got %v", resp.LastSyncSecondsAgo)
	}
}

func TestHandleErrorStateIsUnhealthy(t *testing.T) {
	s := &Server{Provider: fakeStateProvider{
		state: ipv6ddns.SyncState{Kind: ipv6ddns.StateError, ConsecutiveFailures: 3},
	}}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.handle(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	var resp Response
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("error decoding response: %s", err)
	}
	if resp.Healthy || resp.Status != "degraded" || resp.SyncState != "error" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.ErrorCount != 3 {
		t.Fatalf("ErrorCount = %d, want 3", resp.ErrorCount)
	}
	if resp.LastSyncSecondsAgo != nil {
		t.Fatalf("expected no LastSyncSecondsAgo when a sync has never succeeded")
	}
}

func TestHandleUnknownStateIsUnhealthy(t *testing.T) {
	s := &Server{Provider: fakeStateProvider{state: ipv6ddns.SyncState{Kind: ipv6ddns.StateUnknown}}}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.handle(rr, req)

	var resp Response
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("error decoding response: %s", err)
	}
	if resp.SyncState != "unknown" || resp.Healthy {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestServerStartStopNoopWhenPortZero(t *testing.T) {
	s := &Server{Port: 0, Provider: fakeStateProvider{}}
	if err := s.Start(); err != nil {
		t.Fatalf("Start with Port 0 should be a no-op, got error: %s", err)
	}
}
