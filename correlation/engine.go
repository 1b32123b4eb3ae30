// Package correlation bridges the uncorrelated, fire-and-forget transport
// into point-to-point request/response semantics. Each outbound request
// registers a pending entry keyed by its message id; the entry is resolved by
// the matching response or by timeout, whichever occurs first, exactly once.
package correlation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/saquib34/react-iframe-bridge/envelope"
	"github.com/saquib34/react-iframe-bridge/errors"
	"github.com/saquib34/react-iframe-bridge/metric"
)

// Result is the terminal outcome of a pending request.
type Result struct {
	Payload any
	Err     error
}

// Pending is the caller's handle on an outstanding request.
type Pending struct {
	id   string
	done <-chan Result
}

// ID returns the correlation id of the originating message.
func (p *Pending) ID() string {
	return p.id
}

// Await blocks until the request resolves, times out, or ctx is cancelled.
// Context cancellation abandons the wait; the entry itself is still cleaned
// up by its timer.
func (p *Pending) Await(ctx context.Context) (any, error) {
	select {
	case res := <-p.done:
		return res.Payload, res.Err
	case <-ctx.Done():
		return nil, errors.WrapTransport(ctx.Err(), "Pending", "Await", "wait for response")
	}
}

type pendingEntry struct {
	done  chan Result
	timer *time.Timer
}

// Engine manages the pending-request table. Multiple pending requests coexist
// concurrently, keyed independently by message id; each resolves on its own
// as its matching response or timeout occurs, with no ordering between them.
type Engine struct {
	mu      sync.Mutex
	pending map[string]*pendingEntry
	logger  *slog.Logger
	metrics *metric.Metrics
	debug   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics attaches protocol metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithDebug enables verbose logging of correlation events.
func WithDebug(debug bool) Option {
	return func(e *Engine) { e.debug = debug }
}

// NewEngine creates an empty correlation engine. The logger may be nil.
func NewEngine(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		pending: make(map[string]*pendingEntry),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register creates a pending entry for a just-sent request and arms its
// timeout. The returned handle completes when either the matching response
// arrives or the timer fires; the later of the two racing events is a no-op.
func (e *Engine) Register(id string, timeout time.Duration) *Pending {
	done := make(chan Result, 1)

	e.mu.Lock()
	entry := &pendingEntry{done: done}
	entry.timer = time.AfterFunc(timeout, func() {
		e.complete(id, Result{Err: errors.NewTimeout("Engine", "Register", timeout)}, "timeout")
	})
	e.pending[id] = entry
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.PendingRequests.Inc()
	}
	if e.debug {
		e.logger.Debug("pending request registered", "id", id, "timeout", timeout)
	}

	return &Pending{id: id, done: done}
}

// Resolve completes the pending request matching response.ResponseID. When no
// entry matches (already timed out, or a forged or duplicate response) this
// is a silent no-op, logged only in debug mode - never an error.
func (e *Engine) Resolve(resp *envelope.Response) {
	res := Result{}
	if resp.Success {
		res.Payload = resp.Payload
	} else {
		msg := resp.Error
		if msg == "" {
			msg = "request failed without error description"
		}
		res.Err = errors.WrapTransport(errors.ErrRequestFailed, "Engine", "Resolve", msg)
	}

	outcome := "success"
	if !resp.Success {
		outcome = "failure"
	}
	e.complete(resp.ResponseID, res, outcome)
}

// complete removes the entry and delivers the result. At most one resolution
// ever occurs per id: once an entry is removed, later calls find nothing.
func (e *Engine) complete(id string, res Result, outcome string) {
	e.mu.Lock()
	entry, ok := e.pending[id]
	if ok {
		delete(e.pending, id)
		entry.timer.Stop()
	}
	e.mu.Unlock()

	if !ok {
		if e.debug {
			e.logger.Debug("no pending request for resolution", "id", id, "outcome", outcome)
		}
		return
	}

	entry.done <- res

	if e.metrics != nil {
		e.metrics.PendingRequests.Dec()
		e.metrics.RequestsResolved.WithLabelValues(outcome).Inc()
		if outcome == "timeout" {
			e.metrics.RequestTimeouts.Inc()
		}
	}
	if e.debug {
		e.logger.Debug("pending request resolved", "id", id, "outcome", outcome)
	}
}

// Cancel releases one pending entry, failing its awaiter. Used when the send
// that the entry was registered for never left the transport; registration
// happens before the send so a synchronously-delivered response can never
// beat its own pending entry.
func (e *Engine) Cancel(id string) bool {
	e.mu.Lock()
	entry, ok := e.pending[id]
	if ok {
		delete(e.pending, id)
		entry.timer.Stop()
	}
	e.mu.Unlock()

	if !ok {
		return false
	}

	entry.done <- Result{Err: errors.WrapTransport(errors.ErrRequestFailed,
		"Engine", "Cancel", "request abandoned before send completed")}
	if e.metrics != nil {
		e.metrics.PendingRequests.Dec()
		e.metrics.RequestsResolved.WithLabelValues("cancelled").Inc()
	}
	if e.debug {
		e.logger.Debug("pending request cancelled", "id", id)
	}
	return true
}

// Len returns the number of outstanding pending requests.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// CancelAll releases every pending entry, stopping its timer and failing the
// awaiting caller with a transport error. Part of the teardown contract: no
// timer may outlive the owning bridge instance.
func (e *Engine) CancelAll() {
	e.mu.Lock()
	entries := e.pending
	e.pending = make(map[string]*pendingEntry)
	e.mu.Unlock()

	for id, entry := range entries {
		entry.timer.Stop()
		entry.done <- Result{Err: errors.WrapTransport(errors.ErrListenerClosed,
			"Engine", "CancelAll", "bridge torn down with request outstanding")}
		if e.metrics != nil {
			e.metrics.PendingRequests.Dec()
			e.metrics.RequestsResolved.WithLabelValues("cancelled").Inc()
		}
		if e.debug {
			e.logger.Debug("pending request cancelled", "id", id)
		}
	}
}
