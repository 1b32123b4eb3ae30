// Package bridge assembles the protocol core into one endpoint instance: a
// transport subscription feeding the security gate, codec, correlation
// engine, and handler registry, plus the outbound send/request surface.
// One Bridge owns exactly one transport listener; teardown releases it along
// with every pending request and subscription.
package bridge

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/saquib34/react-iframe-bridge/config"
	"github.com/saquib34/react-iframe-bridge/correlation"
	"github.com/saquib34/react-iframe-bridge/envelope"
	"github.com/saquib34/react-iframe-bridge/errors"
	"github.com/saquib34/react-iframe-bridge/health"
	"github.com/saquib34/react-iframe-bridge/metric"
	"github.com/saquib34/react-iframe-bridge/pkg/retry"
	"github.com/saquib34/react-iframe-bridge/pkg/timestamp"
	"github.com/saquib34/react-iframe-bridge/router"
	"github.com/saquib34/react-iframe-bridge/security"
	"github.com/saquib34/react-iframe-bridge/transport"
)

type phase int

const (
	phaseCreated phase = iota
	phaseInitialized
	phaseStarted
	phaseStopped
)

// healthPollInterval is how often the transport reachability probe re-runs.
const healthPollInterval = time.Second

// Bridge is one endpoint of the messaging protocol.
type Bridge struct {
	cfg    *config.Config
	tr     transport.Transport
	logger *slog.Logger

	metrics    *metric.Registry
	monitor    *health.Monitor
	gate       *security.Gate
	registry   *router.Registry
	engine     *correlation.Engine
	dispatcher *router.Dispatcher
	poller     *health.Poller

	mu    sync.Mutex
	phase phase
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// WithMetrics supplies a shared metrics registry instead of a private one.
func WithMetrics(reg *metric.Registry) Option {
	return func(b *Bridge) { b.metrics = reg }
}

// WithHealthMonitor supplies a shared health monitor instead of a private one.
func WithHealthMonitor(m *health.Monitor) Option {
	return func(b *Bridge) { b.monitor = m }
}

// New creates a bridge over tr. Call Initialize and Start before use.
func New(cfg *config.Config, tr transport.Transport, opts ...Option) *Bridge {
	b := &Bridge{
		cfg: cfg,
		tr:  tr,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if cfg != nil {
		b.logger = b.logger.With("origin", cfg.Origin)
	}
	return b
}

// Initialize validates the configuration and wires the internal components.
func (b *Bridge) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.phase != phaseCreated {
		return errors.Wrap(errors.ErrAlreadyStarted, "Bridge", "Initialize", "initialize components")
	}
	if b.cfg == nil {
		return errors.WrapValidation(errors.ErrMissingConfig, "Bridge", "Initialize", "configuration required")
	}
	if b.tr == nil {
		return errors.WrapValidation(errors.ErrMissingConfig, "Bridge", "Initialize", "transport required")
	}
	if err := b.cfg.Validate(b.logger); err != nil {
		return err
	}

	if b.metrics == nil {
		b.metrics = metric.NewRegistry()
	}
	if b.monitor == nil {
		b.monitor = health.NewMonitor()
	}

	core := b.metrics.Core()
	debug := b.cfg.Communication.Debug

	b.gate = security.NewGate(b.cfg, b.logger)
	b.registry = router.NewRegistry()
	b.engine = correlation.NewEngine(b.logger,
		correlation.WithMetrics(core), correlation.WithDebug(debug))
	b.dispatcher = router.NewDispatcher(b.gate, b.registry, b.engine, b.logger,
		router.WithMetrics(core), router.WithDebug(debug))
	b.poller = health.NewPoller("transport", healthPollInterval, b.tr.Connected,
		b.monitor, func(connected bool) {
			if connected {
				core.Connected.Set(1)
			} else {
				core.Connected.Set(0)
			}
		})

	b.phase = phaseInitialized
	b.logger.Info("bridge initialized",
		"allowed_origins", len(b.cfg.AllowedOrigins),
		"max_message_size", b.cfg.MaxMessageSize,
		"rate_limit_per_second", b.cfg.RateLimitPerSecond)
	return nil
}

// Start installs the transport listener and begins health polling. The
// context bounds the poller's lifetime alongside Stop.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.phase {
	case phaseCreated:
		return errors.Wrap(errors.ErrNotStarted, "Bridge", "Start", "initialize first")
	case phaseStarted:
		return errors.Wrap(errors.ErrAlreadyStarted, "Bridge", "Start", "start bridge")
	case phaseStopped:
		return errors.Wrap(errors.ErrAlreadyStopped, "Bridge", "Start", "start bridge")
	}

	b.tr.SetListener(func(data []byte, origin string) {
		b.dispatcher.Dispatch(origin, data)
	})
	b.poller.Start(ctx)

	b.phase = phaseStarted
	b.logger.Info("bridge started")
	return nil
}

// Stop tears the bridge down: the transport listener is removed, every
// pending request fails, and all subscriptions are dropped. The injected
// transport itself is left open for its owner to close. Stop returns once
// teardown completes or the timeout elapses, whichever is first.
func (b *Bridge) Stop(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	b.mu.Lock()
	if b.phase != phaseStarted {
		b.mu.Unlock()
		return errors.Wrap(errors.ErrNotStarted, "Bridge", "Stop", "stop bridge")
	}
	b.phase = phaseStopped
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.tr.SetListener(nil)
		b.poller.Stop()
		b.engine.CancelAll()
		b.registry.Clear()
		b.gate.Reset()
	}()

	select {
	case <-done:
		b.logger.Info("bridge stopped")
		return nil
	case <-time.After(timeout):
		return errors.WrapTransport(errors.ErrListenerClosed, "Bridge", "Stop",
			"teardown did not complete within "+timeout.String())
	}
}

// Send emits a fire-and-forget message of msgType. Transport failures are
// returned synchronously; there is no delivery acknowledgment beyond that.
func (b *Bridge) Send(msgType string, payload any) error {
	if err := b.checkStarted(); err != nil {
		return err
	}
	if err := checkRequestType(msgType); err != nil {
		return err
	}

	msg := envelope.NewMessage(msgType, payload, b.cfg.Origin, b.cfg.TargetOrigin)
	return b.emit(msg.Type, msg, msg.TargetOrigin)
}

// Request sends a message and blocks until the matching response arrives,
// the configured timeout fires, or ctx is cancelled. Exactly one attempt;
// see RequestWithRetry for the configured retry loop.
func (b *Bridge) Request(ctx context.Context, msgType string, payload any) (any, error) {
	return b.RequestWithTimeout(ctx, msgType, payload, b.cfg.Communication.Timeout())
}

// RequestWithTimeout is Request with a per-call timeout override.
func (b *Bridge) RequestWithTimeout(ctx context.Context, msgType string, payload any,
	timeout time.Duration) (any, error) {
	if err := b.checkStarted(); err != nil {
		return nil, err
	}
	if err := checkRequestType(msgType); err != nil {
		return nil, err
	}

	msg := envelope.NewMessage(msgType, payload, b.cfg.Origin, b.cfg.TargetOrigin)

	// Registration precedes the send so a response delivered synchronously by
	// the transport still finds its pending entry.
	pending := b.engine.Register(msg.ID, timeout)
	if err := b.emit(msg.Type, msg, msg.TargetOrigin); err != nil {
		b.engine.Cancel(msg.ID)
		return nil, err
	}
	return pending.Await(ctx)
}

// RequestWithRetry is Request wrapped in the configured retry loop:
// communication.retryAttempts total attempts spaced communication.retryDelay
// apart. Security and validation failures never retry.
func (b *Bridge) RequestWithRetry(ctx context.Context, msgType string, payload any) (any, error) {
	attempts := b.cfg.Communication.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return retry.DoWithResult(ctx, retry.Config{
		MaxAttempts: attempts,
		Delay:       b.cfg.Communication.RetryDelay(),
		Multiplier:  1.0,
	}, func() (any, error) {
		return b.Request(ctx, msgType, payload)
	})
}

// Respond answers a previously received message. The response type, target,
// and correlation id all derive from the original.
func (b *Bridge) Respond(original *envelope.Message, success bool, payload any, errMsg string) error {
	if err := b.checkStarted(); err != nil {
		return err
	}

	resp := envelope.NewResponse(original, success, payload, errMsg, b.cfg.Origin)
	return b.emit(resp.Type, resp, resp.TargetOrigin)
}

// Subscribe registers a handler for msgType and returns its removal func.
// On a bridge that has not been initialized there is no registry to attach
// to; Subscribe returns nil so the misuse is visible to the caller.
func (b *Bridge) Subscribe(msgType string, h router.Handler) func() {
	b.mu.Lock()
	registry := b.registry
	b.mu.Unlock()
	if registry == nil {
		b.logger.Warn("subscribe before initialize ignored", "type", msgType)
		return nil
	}
	return registry.Subscribe(msgType, h)
}

// SignalReady announces that this side finished initializing, carrying its
// origin and the announcement time.
func (b *Bridge) SignalReady() error {
	return b.Send(envelope.TypeReady, envelope.ReadyPayload{
		Origin:    b.cfg.Origin,
		Timestamp: timestamp.Now(),
	})
}

// LastError returns the most recent inbound-processing failure, or nil after
// a clean dispatch. Nil before the bridge is initialized: nothing has been
// processed yet.
func (b *Bridge) LastError() error {
	b.mu.Lock()
	dispatcher := b.dispatcher
	b.mu.Unlock()
	if dispatcher == nil {
		return nil
	}
	return dispatcher.LastError()
}

// Connected reports whether the transport currently judges the peer
// reachable. False when no transport was supplied.
func (b *Bridge) Connected() bool {
	if b.tr == nil {
		return false
	}
	return b.tr.Connected()
}

// Health returns the monitor tracking this bridge's component statuses.
func (b *Bridge) Health() *health.Monitor {
	return b.monitor
}

// Metrics returns the metrics registry, for scraping or test inspection.
func (b *Bridge) Metrics() *metric.Registry {
	return b.metrics
}

// emit marshals the envelope, enforces the outbound size ceiling, and hands
// it to the transport.
func (b *Bridge) emit(msgType string, env any, targetOrigin string) error {
	raw, err := envelope.Marshal(env)
	if err != nil {
		return err
	}
	if err := b.gate.ValidateMessageSize(raw); err != nil {
		return err
	}
	if err := b.tr.Send(raw, targetOrigin); err != nil {
		return errors.WrapTransport(err, "Bridge", "emit", "send "+msgType)
	}
	if core := b.metrics.Core(); core != nil {
		core.MessagesSent.WithLabelValues(msgType).Inc()
	}
	if b.cfg.Communication.Debug {
		b.logger.Debug("message sent", "type", msgType, "target_origin", targetOrigin)
	}
	return nil
}

func (b *Bridge) checkStarted() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.phase {
	case phaseStarted:
		return nil
	case phaseStopped:
		return errors.Wrap(errors.ErrAlreadyStopped, "Bridge", "checkStarted", "use bridge")
	default:
		return errors.Wrap(errors.ErrNotStarted, "Bridge", "checkStarted", "use bridge")
	}
}

// checkRequestType rejects outbound types carrying the reserved response
// suffix; allowing them would make the demultiplexer treat a plain message
// as a response.
func checkRequestType(msgType string) error {
	if strings.TrimSpace(msgType) == "" {
		return errors.WrapValidation(errors.ErrInvalidEnvelope, "Bridge", "checkRequestType",
			"message type must not be empty")
	}
	if envelope.IsResponseType(msgType) {
		return errors.WrapValidation(errors.ErrInvalidEnvelope, "Bridge", "checkRequestType",
			"message type must not end in "+envelope.ResponseSuffix)
	}
	return nil
}
