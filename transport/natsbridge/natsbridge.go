// Package natsbridge carries the bridge protocol over a pair of core NATS
// subjects, for host and embedded contexts connected through a broker rather
// than a direct link. Plain publish/subscribe only: the protocol assumes a
// best-effort transport, so no stream persistence is involved.
//
// The sender's origin travels in a message header. That header is set by
// this transport, not by the payload, so it plays the role of the
// transport-reported origin on the receiving side.
package natsbridge

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/saquib34/react-iframe-bridge/errors"
	"github.com/saquib34/react-iframe-bridge/transport"
)

// originHeader carries the sender origin on every published message.
const originHeader = "Bridge-Origin"

// Config describes one side of a NATS-backed bridge link.
type Config struct {
	// URL is the NATS server address, e.g. nats://localhost:4222.
	URL string

	// LocalOrigin is stamped into the origin header of outbound messages.
	LocalOrigin string

	// PeerOrigin is the origin expected from the peer; the target-origin
	// filter on Send compares against it.
	PeerOrigin string

	// SendSubject is the subject the peer side subscribes on.
	SendSubject string

	// RecvSubject is the subject this side subscribes on.
	RecvSubject string

	// Name identifies the connection to the NATS server. Optional.
	Name string
}

// Link adapts a NATS connection to the transport primitive.
type Link struct {
	mu       sync.Mutex
	cfg      Config
	nc       *nats.Conn
	sub      *nats.Subscription
	listener transport.Listener
	closed   bool
	logger   *slog.Logger
}

// Connect dials the NATS server and subscribes to the receive subject.
func Connect(cfg Config, logger *slog.Logger) (*Link, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendSubject == "" || cfg.RecvSubject == "" {
		return nil, errors.WrapValidation(errors.ErrInvalidConfig, "Link", "Connect",
			"send and receive subjects are required")
	}

	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errors.WrapTransport(err, "Link", "Connect", "dial nats")
	}

	l := &Link{cfg: cfg, nc: nc, logger: logger}

	sub, err := nc.Subscribe(cfg.RecvSubject, l.onMessage)
	if err != nil {
		nc.Close()
		return nil, errors.WrapTransport(err, "Link", "Connect", "subscribe")
	}
	l.sub = sub

	return l, nil
}

func (l *Link) onMessage(msg *nats.Msg) {
	origin := msg.Header.Get(originHeader)
	if origin == "" {
		// No attribution, no trust: surface an impossible origin so the
		// security gate rejects it.
		origin = "nats://unattributed"
	}

	l.mu.Lock()
	listener := l.listener
	l.mu.Unlock()

	if listener != nil {
		listener(msg.Data, origin)
	}
}

// Send publishes data on the send subject with the local origin header. A
// target-origin filter that does not match the peer discards the delivery
// without error.
func (l *Link) Send(data []byte, targetOrigin string) error {
	if targetOrigin != "*" && targetOrigin != l.cfg.PeerOrigin {
		return nil
	}

	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return errors.WrapTransport(errors.ErrNotConnected, "Link", "Send", "link closed")
	}

	msg := &nats.Msg{
		Subject: l.cfg.SendSubject,
		Data:    data,
		Header:  nats.Header{originHeader: []string{l.cfg.LocalOrigin}},
	}
	if err := l.nc.PublishMsg(msg); err != nil {
		return errors.WrapTransport(err, "Link", "Send", "publish")
	}
	return nil
}

// SetListener registers the inbound listener.
func (l *Link) SetListener(fn transport.Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listener = fn
}

// Connected reports whether the NATS connection is currently established.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed && l.nc.Status() == nats.CONNECTED
}

// Close unsubscribes and drains the connection.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.listener = nil
	sub := l.sub
	nc := l.nc
	l.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			l.logger.Debug("unsubscribe on close", "error", err)
		}
	}
	nc.Close()
	return nil
}
