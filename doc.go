/*
Package ipv6ddns implements the reconciliation engine of a long-running
daemon that keeps a single DNS AAAA record aligned with the host's current
preferred global IPv6 address.

The engine is three collaborating pieces: an [Observer] that watches the
host's IPv6 addresses (via a kernel subscription where available, falling
back to polling), a [Reconciler] that owns the sync state machine and
debounces and retries updates, and a [Provider] that translates a desired
address into DNS provider API calls.

Usage starts with [NewReconciler], which takes a [Provider] implementation
(see [NewCloudflareProvider]) and returns a value whose [Reconciler.Run]
drives the event loop until its context is canceled.
*/
package ipv6ddns
