// Command ipv6ddnsd runs the ipv6ddns reconciliation daemon: it watches the
// host's global IPv6 addresses and keeps a single Cloudflare AAAA record in
// sync with whichever address is chosen.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ipv6ddns/ipv6ddns"
	"github.com/ipv6ddns/ipv6ddns/internal/config"
	"github.com/ipv6ddns/ipv6ddns/internal/health"
)

const version = "1.0.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout *os.File) int {
	fs := flag.NewFlagSet("ipv6ddnsd", flag.ContinueOnError)
	configPath := fs.String("config", "/etc/ipv6ddns/config.toml", "path to the configuration file")
	configTest := fs.Bool("config-test", false, "validate configuration and exit")
	showVersion := fs.Bool("version", false, "print the version and exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: ipv6ddnsd [--config path] [--config-test] [--version]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintf(stdout, "ipv6ddnsd %s\n", version)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ipv6ddnsd: invalid configuration: %s\n", err)
		return 1
	}

	if *configTest {
		fmt.Fprintln(stdout, "configuration OK")
		return 0
	}

	logger := ipv6ddns.NewRedactingLogger(os.Stderr, log.LstdFlags, cfg.APIToken, cfg.ZoneID)
	logger.Printf("starting ipv6ddnsd %s: zone=%s record=%s multi_record=%s", version, cfg.ZoneID, cfg.RecordName, cfg.MultiRecord)

	if err := runDaemon(cfg, logger); err != nil {
		logger.Printf("fatal: %s", err)
		return 1
	}
	return 0
}

func runDaemon(cfg *config.Config, logger *log.Logger) error {
	provider, err := ipv6ddns.NewCloudflareProvider(cfg.APIToken, cfg.ZoneID, time.Duration(cfg.TimeoutSec)*time.Second)
	if err != nil {
		return fmt.Errorf("error creating DNS provider: %w", err)
	}
	ipv6ddns.WithCloudflareLogger(provider, logger)

	tracker := &stateTracker{}
	reconciler, err := ipv6ddns.NewReconciler(provider, cfg.RecordName,
		ipv6ddns.WithMultiRecordPolicy(cfg.MultiRecord),
		ipv6ddns.WithReconcilerLogger(logger),
		ipv6ddns.WithStateObserver(tracker.observe),
	)
	if err != nil {
		return fmt.Errorf("error creating reconciler: %w", err)
	}

	observer := ipv6ddns.NewObserver(
		ipv6ddns.WithAllowLoopback(cfg.AllowLoopback),
		ipv6ddns.WithPollInterval(time.Duration(cfg.PollIntervalS)*time.Second),
		ipv6ddns.WithObserverLogger(logger),
		ipv6ddns.WithForcePoll(os.Getenv("IPV6DDNS_FORCE_POLL") == "1"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	forceResync := make(chan struct{}, 1)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGTERM:
				logger.Printf("received SIGTERM, shutting down")
				cancel()
				return
			case syscall.SIGHUP:
				logger.Printf("received SIGHUP, forcing resync")
				select {
				case forceResync <- struct{}{}:
				default:
				}
			}
		}
	}()

	healthSrv := &health.Server{Port: cfg.HealthPort, Provider: tracker, Logger: logger}
	if err := healthSrv.Start(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = healthSrv.Stop(shutdownCtx)
	}()

	events := make(chan ipv6ddns.AddressSet, 1)
	ready := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := reconciler.Run(ctx, events, forceResync, ready); err != nil {
			logger.Printf("reconciler stopped: %s", err)
		}
	}()

	// Wait for the reconciler's select loop to be ready before starting the
	// observer, so its bootstrap notification is never dropped (spec §4.2
	// "Startup ordering").
	<-ready

	go func() {
		defer wg.Done()
		if err := observer.Run(ctx, events); err != nil {
			logger.Printf("observer stopped: %s", err)
		}
	}()

	wg.Wait()
	return nil
}

// stateTracker adapts the Reconciler's state-change callback (SyncState
// carries no last-sync timestamp, per spec §3) into health.StateProvider by
// remembering when the state last became Synced. observe is only ever
// called from the reconciler's own goroutine (via WithStateObserver); the
// mutex exists solely to make HealthState safe for the HTTP handler
// goroutine to call concurrently.
type stateTracker struct {
	mu          sync.Mutex
	state       ipv6ddns.SyncState
	lastSync    time.Time
	hasLastSync bool
}

func (t *stateTracker) observe(s ipv6ddns.SyncState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s.Kind == ipv6ddns.StateSynced && (t.state.Kind != ipv6ddns.StateSynced || t.state.Address != s.Address) {
		t.lastSync, t.hasLastSync = time.Now(), true
	}
	t.state = s
}

func (t *stateTracker) HealthState() (ipv6ddns.SyncState, time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.lastSync, t.hasLastSync
}
