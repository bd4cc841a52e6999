// Package connection runs the top-level uplink loop.
//
// The loop waits once for the network stack to become usable, then forever:
//
//  1. Sleeps the retry delay (fixed 1 second by default)
//  2. Runs one session attempt (transport connect + handshake)
//  3. Serves an established channel with the configured Handler and closes it
//  4. Sleeps the post-attempt delay (3 seconds), whatever the outcome
//
// Every recoverable failure is treated the same way: it is logged and the
// whole attempt is retried. An attempt is never resumed mid-way.
//
// # Retry Policy
//
// FixedDelay reproduces the device's baseline behaviour. Backoff is an
// exponential alternative with jitter:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// Both are reset after an established session.
package connection
