// Package ws carries the bridge protocol over a WebSocket link, for host and
// embedded contexts that live in separate processes. The transport-reported
// origin of every inbound delivery is the peer origin captured during the
// handshake, never anything the payload claims.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/saquib34/react-iframe-bridge/errors"
	"github.com/saquib34/react-iframe-bridge/transport"
)

// Conn adapts a websocket connection to the transport primitive.
type Conn struct {
	mu         sync.Mutex
	conn       *websocket.Conn
	peerOrigin string
	listener   transport.Listener
	closed     bool
	logger     *slog.Logger
	done       chan struct{}
}

// NewConn wraps an established websocket connection and starts its read
// loop. peerOrigin is the origin attributed to everything the peer sends;
// servers take it from the handshake's Origin header, clients from
// configuration.
func NewConn(conn *websocket.Conn, peerOrigin string, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Conn{
		conn:       conn,
		peerOrigin: peerOrigin,
		logger:     logger,
		done:       make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Dial connects to a bridge websocket endpoint. localOrigin is sent as the
// handshake Origin header; peerOrigin becomes the transport-reported origin
// of inbound deliveries.
func Dial(ctx context.Context, url, localOrigin, peerOrigin string, logger *slog.Logger) (*Conn, error) {
	header := http.Header{}
	header.Set("Origin", localOrigin)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, errors.WrapTransport(err, "Conn", "Dial", "websocket handshake")
	}
	return NewConn(conn, peerOrigin, logger), nil
}

// Upgrader returns a websocket upgrader whose origin check delegates to
// allowed, typically the security gate's ValidateOrigin.
func Upgrader(allowed func(origin string) bool) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return allowed(r.Header.Get("Origin"))
		},
	}
}

// Send writes data as one text frame. A target-origin filter that does not
// match the peer discards the delivery without error.
func (c *Conn) Send(data []byte, targetOrigin string) error {
	if targetOrigin != "*" && targetOrigin != c.peerOrigin {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.WrapTransport(errors.ErrNotConnected, "Conn", "Send", "connection closed")
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.WrapTransport(err, "Conn", "Send", "write frame")
	}
	return nil
}

// SetListener registers the inbound listener.
func (c *Conn) SetListener(l transport.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

// Connected reports whether the link is still open.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close shuts the link down and stops the read loop.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.listener = nil
	conn := c.conn
	c.mu.Unlock()

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := conn.Close()
	<-c.done
	return err
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasClosed := c.closed
			c.closed = true
			c.listener = nil
			c.mu.Unlock()
			if !wasClosed {
				c.logger.Debug("websocket read loop ended", "error", err)
			}
			return
		}

		c.mu.Lock()
		listener := c.listener
		origin := c.peerOrigin
		c.mu.Unlock()

		if listener != nil {
			listener(data, origin)
		}
	}
}
