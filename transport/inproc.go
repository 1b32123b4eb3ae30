package transport

import (
	"sync"

	"github.com/saquib34/react-iframe-bridge/errors"
)

// Endpoint is one side of an in-process transport pair. Deliveries run
// synchronously on the sender's goroutine; the protocol above must not
// assume otherwise (the contract stays best-effort and unordered).
type Endpoint struct {
	mu       sync.Mutex
	origin   string
	peer     *Endpoint
	listener Listener
	closed   bool
}

// NewPair creates two linked in-process endpoints. The origin given for each
// side becomes the transport-reported origin of everything it sends.
func NewPair(originA, originB string) (*Endpoint, *Endpoint) {
	a := &Endpoint{origin: originA}
	b := &Endpoint{origin: originB}
	a.peer = b
	b.peer = a
	return a, b
}

// Origin returns the origin this endpoint attributes to its own sends.
func (e *Endpoint) Origin() string {
	return e.origin
}

// Send delivers data to the peer endpoint. A target-origin filter that does
// not match the peer discards the delivery without error, mirroring the
// messaging primitive's behavior.
func (e *Endpoint) Send(data []byte, targetOrigin string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.WrapTransport(errors.ErrListenerClosed, "Endpoint", "Send", "endpoint closed")
	}
	peer := e.peer
	e.mu.Unlock()

	if peer == nil {
		return errors.WrapTransport(errors.ErrNotConnected, "Endpoint", "Send", "no peer")
	}

	peer.mu.Lock()
	if peer.closed {
		peer.mu.Unlock()
		return errors.WrapTransport(errors.ErrNotConnected, "Endpoint", "Send", "peer closed")
	}
	if targetOrigin != "*" && targetOrigin != peer.origin {
		peer.mu.Unlock()
		return nil
	}
	listener := peer.listener
	peer.mu.Unlock()

	if listener != nil {
		// Copy so the receiver never aliases the sender's buffer.
		buf := make([]byte, len(data))
		copy(buf, data)
		listener(buf, e.origin)
	}
	return nil
}

// SetListener registers the inbound listener for this endpoint.
func (e *Endpoint) SetListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = l
}

// Connected reports whether both sides of the pair are open.
func (e *Endpoint) Connected() bool {
	e.mu.Lock()
	closed := e.closed
	peer := e.peer
	e.mu.Unlock()

	if closed || peer == nil {
		return false
	}
	peer.mu.Lock()
	defer peer.mu.Unlock()
	return !peer.closed
}

// Close tears down this side of the pair.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.listener = nil
	return nil
}
