// Package transport defines the low-level delivery primitive the bridge
// protocol runs on: a bidirectional, best-effort, asynchronous channel
// between two contexts. The primitive contracts no delivery acknowledgment
// and no ordering; the protocol layers above are designed to tolerate both.
package transport

// Listener receives every inbound delivery regardless of type: the raw data
// and the origin the transport itself attributes to the sender. The
// transport-reported origin is authoritative for security decisions.
type Listener func(data []byte, origin string)

// Transport is the delivery primitive consumed by a bridge instance.
type Transport interface {
	// Send hands data to the peer context, filtered by target origin: the
	// delivery is silently discarded when the peer's origin does not match,
	// mirroring the underlying messaging primitive. The wildcard "*" matches
	// any peer. Send fails when the channel is closed or the peer context is
	// unavailable.
	Send(data []byte, targetOrigin string) error

	// SetListener registers this instance's single inbound listener,
	// replacing any previous one. Passing nil removes the listener.
	SetListener(l Listener)

	// Connected reports whether the peer context is currently judged
	// reachable. The primitive offers no push notification for this; callers
	// poll.
	Connected() bool

	// Close tears down this side of the channel. Subsequent sends fail.
	Close() error
}
