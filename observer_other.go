//go:build !linux

package ipv6ddns

// newPlatformObserver on non-Linux hosts always returns the polling
// observer: there is no portable kernel subscription mechanism this daemon
// targets (spec §4.1 "Poll mode (fallback): ... non-Linux host").
func newPlatformObserver(cfg observerConfig) Observer {
	return &pollObserver{cfg: cfg}
}
