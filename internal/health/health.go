// Package health implements the daemon's health-check HTTP endpoint,
// supplementing spec.md (which names health_port as a recognized config key
// but treats the endpoint itself as an external collaborator) from
// original_source/src/health.rs.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ipv6ddns/ipv6ddns"
)

// Response is the JSON body served at /healthz, matching health.rs's
// HealthResponse shape.
type Response struct {
	Status             string   `json:"status"`
	SyncState          string   `json:"sync_state"`
	LastSyncSecondsAgo *float64 `json:"last_sync_seconds_ago"`
	ErrorCount         uint64   `json:"error_count"`
	Healthy            bool     `json:"healthy"`
}

// StateProvider supplies the current reconciler state and the time of the
// last successful sync. ipv6ddns.Reconciler does not track "last sync time"
// itself (SyncState has no such field per spec §3), so the caller supplies
// it via a small adapter; see cmd/ipv6ddnsd.
type StateProvider interface {
	HealthState() (state ipv6ddns.SyncState, lastSync time.Time, hasLastSync bool)
}

// Server serves Response on GET /healthz. A zero Port disables it entirely
// (spec §6 "health_port").
type Server struct {
	Port     int
	Provider StateProvider
	Logger   *log.Logger

	mu       sync.Mutex
	listener net.Listener
	srv      *http.Server
}

// Start binds the listener and begins serving in the background. It is a
// no-op if Port is 0.
func (s *Server) Start() error {
	if s.Port == 0 {
		return nil
	}
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handle)
	s.srv = &http.Server{Handler: mux}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Port))
	if err != nil {
		return fmt.Errorf("error starting health check server: %w", err)
	}
	s.listener = ln
	logger.Printf("health check server listening on %s", ln.Addr())

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Printf("health check server error: %s", err)
		}
	}()
	return nil
}

// Stop shuts the server down, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	resp := s.build()
	w.Header().Set("Content-Type", "application/json")
	if !resp.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) build() Response {
	state, lastSync, hasLastSync := s.Provider.HealthState()

	var syncState string
	var healthy bool
	switch state.Kind {
	case ipv6ddns.StateSynced:
		syncState, healthy = "synced", true
	case ipv6ddns.StateError:
		syncState, healthy = "error", false
	default:
		syncState, healthy = "unknown", false
	}

	var lastSyncSecondsAgo *float64
	if hasLastSync {
		secs := time.Since(lastSync).Seconds()
		if secs < 0 {
			secs = 0
		}
		lastSyncSecondsAgo = &secs
	}

	status := "degraded"
	if healthy {
		status = "ok"
	}

	return Response{
		Status:             status,
		SyncState:          syncState,
		LastSyncSecondsAgo: lastSyncSecondsAgo,
		ErrorCount:         uint64(state.ConsecutiveFailures),
		Healthy:            healthy,
	}
}
