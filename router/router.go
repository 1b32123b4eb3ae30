// Package router is the single entry point for all inbound envelopes. It
// runs the security gate, then the codec's format validation, then
// demultiplexes: response envelopes go to the correlation engine, regular
// envelopes to the handlers registered for their exact type.
package router

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sync"

	"github.com/saquib34/react-iframe-bridge/correlation"
	"github.com/saquib34/react-iframe-bridge/envelope"
	"github.com/saquib34/react-iframe-bridge/errors"
	"github.com/saquib34/react-iframe-bridge/metric"
	"github.com/saquib34/react-iframe-bridge/security"
)

// Dispatcher routes validated inbound envelopes. Failures during inbound
// processing are terminal for that single message only: they are recorded as
// the "last error" and the message is dropped, never crashing the dispatch
// loop or affecting unrelated pending requests and handlers.
type Dispatcher struct {
	gate     *security.Gate
	registry *Registry
	engine   *correlation.Engine
	logger   *slog.Logger
	metrics  *metric.Metrics
	debug    bool

	errMu   sync.Mutex
	lastErr error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics attaches protocol metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithDebug enables verbose logging of every dispatch event.
func WithDebug(debug bool) Option {
	return func(d *Dispatcher) { d.debug = debug }
}

// NewDispatcher wires the gate, registry, and correlation engine together.
// The logger may be nil.
func NewDispatcher(gate *security.Gate, registry *Registry, engine *correlation.Engine,
	logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		gate:     gate,
		registry: registry,
		engine:   engine,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// envelopeHead is the minimal pre-validation peek at an inbound frame, enough
// to run the security gate (declared origin) and pick the response/message
// path (type) before the matching schema runs.
type envelopeHead struct {
	Type   string `json:"type"`
	Origin string `json:"origin"`
}

// Dispatch processes one raw inbound delivery attributed by the transport to
// transportOrigin.
func (d *Dispatcher) Dispatch(transportOrigin string, raw []byte) {
	if d.metrics != nil {
		d.metrics.MessagesReceived.Inc()
	}

	var head envelopeHead
	declared := transportOrigin
	if err := json.Unmarshal(raw, &head); err == nil && head.Origin != "" {
		declared = head.Origin
	}

	if err := d.gate.ValidateIncoming(transportOrigin, declared, raw); err != nil {
		d.recordFailure(err, transportOrigin)
		return
	}

	if envelope.IsResponseType(head.Type) {
		resp, err := envelope.ParseResponse(raw)
		if err != nil {
			d.recordFailure(err, transportOrigin)
			return
		}
		d.engine.Resolve(resp)
		d.recordSuccess()
		if d.debug {
			d.logger.Debug("response routed to correlation engine",
				"type", resp.Type, "response_id", resp.ResponseID)
		}
		return
	}

	msg, err := envelope.ParseMessage(raw)
	if err != nil {
		d.recordFailure(err, transportOrigin)
		return
	}

	handlers := d.registry.HandlersFor(msg.Type)
	if len(handlers) == 0 {
		// Receivers are not obligated to handle every type.
		d.recordSuccess()
		if d.debug {
			d.logger.Debug("no handler registered, dropping", "type", msg.Type)
		}
		return
	}

	for i, h := range handlers {
		d.invoke(i, h, msg)
	}
	if d.metrics != nil {
		d.metrics.Dispatched.WithLabelValues(msg.Type).Inc()
	}
	d.recordSuccess()
	if d.debug {
		d.logger.Debug("message dispatched", "type", msg.Type, "handlers", len(handlers))
	}
}

// invoke runs one handler, isolating panics so a faulty subscriber cannot
// break the others or the dispatch loop itself.
func (d *Dispatcher) invoke(index int, h Handler, msg *envelope.Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic",
				"type", msg.Type,
				"handler_index", index,
				"panic", r)
		}
	}()
	h(msg.Payload, msg)
}

// LastError returns the most recent inbound-processing failure, or nil after
// a successful dispatch. This is the single host-facing error slot the
// surface exposes for rendering connection/error status.
func (d *Dispatcher) LastError() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.lastErr
}

func (d *Dispatcher) recordSuccess() {
	d.errMu.Lock()
	d.lastErr = nil
	d.errMu.Unlock()
}

func (d *Dispatcher) recordFailure(err error, transportOrigin string) {
	d.errMu.Lock()
	d.lastErr = err
	d.errMu.Unlock()

	switch {
	case errors.IsSecurity(err):
		if d.metrics != nil {
			d.metrics.SecurityRejections.WithLabelValues(securityReason(err)).Inc()
		}
		d.logger.Warn("inbound message rejected by security gate",
			"origin", transportOrigin, "error", err)
	case errors.IsValidation(err):
		if d.metrics != nil {
			d.metrics.ValidationFailures.Inc()
		}
		d.logger.Warn("inbound message failed validation",
			"origin", transportOrigin, "error", err)
	default:
		d.logger.Error("inbound message dropped",
			"origin", transportOrigin, "error", err)
	}
}

func securityReason(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrOriginNotAllowed):
		return "origin_not_allowed"
	case stderrors.Is(err, errors.ErrRateLimited):
		return "rate_limited"
	case stderrors.Is(err, errors.ErrMessageTooLarge):
		return "message_too_large"
	case stderrors.Is(err, errors.ErrOriginMismatch):
		return "origin_mismatch"
	default:
		return "other"
	}
}
