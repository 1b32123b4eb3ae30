// Package sharedstate keeps one named value eventually consistent across the
// two contexts of a bridge. Conflicts resolve last-writer-wins on the logical
// timestamp carried with every update; there is no consensus and no history,
// only convergence to the highest-stamped write both sides have seen.
package sharedstate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/saquib34/react-iframe-bridge/envelope"
	"github.com/saquib34/react-iframe-bridge/errors"
	"github.com/saquib34/react-iframe-bridge/metric"
	"github.com/saquib34/react-iframe-bridge/pkg/timestamp"
	"github.com/saquib34/react-iframe-bridge/router"
)

// Capability is the slice of the bridge surface the synchronizer runs on.
// Anything that can send, request, respond, and subscribe can host a sync.
type Capability interface {
	Send(msgType string, payload any) error
	Request(ctx context.Context, msgType string, payload any) (any, error)
	Respond(original *envelope.Message, success bool, payload any, errMsg string) error
	Subscribe(msgType string, h router.Handler) func()
	Connected() bool
}

// State is the synchronizer's lifecycle position.
type State int

const (
	// StateUninitialized means the sync holds only its local default and the
	// bootstrap exchange has not completed.
	StateUninitialized State = iota

	// StateSynced means the bootstrap exchange finished. The peer's value was
	// adopted when it carried a newer timestamp; otherwise the local value
	// stands. Either way the sync is live from here on.
	StateSynced
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// statePayload is the wire shape for both broadcast updates and bootstrap
// responses: the value plus the logical timestamp that orders it.
type statePayload[T any] struct {
	Value     T     `json:"value"`
	Timestamp int64 `json:"timestamp"`
}

// Sync replicates one keyed value of type T over a Capability. All methods
// are safe for concurrent use; handlers fire on transport goroutines.
type Sync[T any] struct {
	key     string
	cap     Capability
	clock   *timestamp.Clock
	logger  *slog.Logger
	metrics *metric.Metrics
	debug   bool

	mu          sync.Mutex
	value       T
	lastApplied int64
	state       State
	lastErr     error

	unsubUpdate  func()
	unsubRequest func()
	started      bool
}

// Option configures a Sync.
type Option[T any] func(*Sync[T])

// WithMetrics attaches protocol metrics.
func WithMetrics[T any](m *metric.Metrics) Option[T] {
	return func(s *Sync[T]) { s.metrics = m }
}

// WithDebug enables verbose logging of every state transition.
func WithDebug[T any](debug bool) Option[T] {
	return func(s *Sync[T]) { s.debug = debug }
}

// NewSync creates a synchronizer for key holding initial as the local
// default. The default carries logical timestamp zero, so it loses to any
// real write from either side. The logger may be nil.
func NewSync[T any](key string, initial T, capability Capability,
	logger *slog.Logger, opts ...Option[T]) *Sync[T] {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sync[T]{
		key:    key,
		cap:    capability,
		clock:  timestamp.NewClock(),
		logger: logger.With("sync_key", key),
		value:  initial,
		state:  StateUninitialized,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes to the key's update and bootstrap-request types, then
// requests the peer's current value in the background. Bootstrap failure is
// not fatal: lacking an answer, the local default stands and the sync still
// goes live.
func (s *Sync[T]) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.ErrAlreadyStarted
	}
	s.started = true
	// Subscribed under the lock so a racing Stop always sees both
	// unsubscribe funcs or neither. Handlers never fire during Subscribe,
	// so no re-entrancy on s.mu is possible here.
	s.unsubUpdate = s.cap.Subscribe(envelope.StateUpdateType(s.key), s.onUpdate)
	s.unsubRequest = s.cap.Subscribe(envelope.StateRequestType(s.key), s.onRequest)
	s.mu.Unlock()

	go s.bootstrap(ctx)
	return nil
}

// Stop removes the subscriptions. Start is not reusable after Stop.
func (s *Sync[T]) Stop() {
	s.mu.Lock()
	unsubUpdate, unsubRequest := s.unsubUpdate, s.unsubRequest
	s.unsubUpdate, s.unsubRequest = nil, nil
	s.mu.Unlock()

	if unsubUpdate != nil {
		unsubUpdate()
	}
	if unsubRequest != nil {
		unsubRequest()
	}
}

func (s *Sync[T]) bootstrap(ctx context.Context) {
	payload, err := s.cap.Request(ctx, envelope.StateRequestType(s.key), nil)
	if err != nil {
		// The peer may not exist yet, or holds no value either way.
		s.mu.Lock()
		s.state = StateSynced
		s.mu.Unlock()
		if s.debug {
			s.logger.Debug("bootstrap unanswered, keeping local default", "error", err)
		}
		return
	}

	remote, err := envelope.DecodePayload[statePayload[T]](payload)
	if err != nil {
		s.mu.Lock()
		s.state = StateSynced
		s.lastErr = errors.WrapValidation(err, "Sync", "bootstrap", "decode peer state")
		s.mu.Unlock()
		s.logger.Warn("bootstrap response undecodable, keeping local default", "error", err)
		return
	}

	applied := s.apply(remote, true)
	if s.debug {
		s.logger.Debug("bootstrap complete", "adopted_peer_value", applied)
	}
}

// Set applies v locally with a fresh logical timestamp and broadcasts it.
// The local apply is unconditional and survives a failed broadcast; the send
// error is returned and recorded so the surface can render it.
func (s *Sync[T]) Set(v T) error {
	s.mu.Lock()
	ts := s.clock.Next()
	s.value = v
	s.lastApplied = ts
	s.mu.Unlock()

	err := s.cap.Send(envelope.StateUpdateType(s.key), statePayload[T]{Value: v, Timestamp: ts})
	if err != nil {
		err = errors.WrapTransport(err, "Sync", "Set", "broadcast state update")
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		s.logger.Warn("state broadcast failed, local value stands", "error", err)
		return err
	}
	if s.debug {
		s.logger.Debug("state set and broadcast", "timestamp", ts)
	}
	return nil
}

// Get returns the current value.
func (s *Sync[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Status returns the synchronizer's lifecycle position.
func (s *Sync[T]) Status() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the most recent sync failure, or nil.
func (s *Sync[T]) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// onUpdate handles an inbound broadcast for this key.
func (s *Sync[T]) onUpdate(payload any, _ *envelope.Message) {
	remote, err := envelope.DecodePayload[statePayload[T]](payload)
	if err != nil {
		s.mu.Lock()
		s.lastErr = errors.WrapValidation(err, "Sync", "onUpdate", "decode state update")
		s.mu.Unlock()
		s.logger.Warn("state update undecodable, dropping", "error", err)
		return
	}
	s.apply(remote, false)
}

// apply installs a remote value iff its timestamp is strictly greater than
// the last applied one. Ties and stale stamps drop silently: both sides
// already converged, or will once the newer write arrives.
func (s *Sync[T]) apply(remote statePayload[T], bootstrap bool) bool {
	s.mu.Lock()
	s.clock.Observe(remote.Timestamp)
	if bootstrap {
		s.state = StateSynced
	}
	if remote.Timestamp <= s.lastApplied {
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.StateUpdatesDropped.Inc()
		}
		if s.debug {
			s.logger.Debug("stale state update dropped", "remote_timestamp", remote.Timestamp)
		}
		return false
	}
	s.value = remote.Value
	s.lastApplied = remote.Timestamp
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.StateUpdatesApplied.Inc()
	}
	if s.debug {
		s.logger.Debug("remote state applied", "remote_timestamp", remote.Timestamp)
	}
	return true
}

// onRequest answers a peer's bootstrap request with the current value and its
// timestamp. A sync that has never been written answers with timestamp zero,
// which the requester's own guard then ignores.
func (s *Sync[T]) onRequest(_ any, msg *envelope.Message) {
	s.mu.Lock()
	current := statePayload[T]{Value: s.value, Timestamp: s.lastApplied}
	s.mu.Unlock()

	if err := s.cap.Respond(msg, true, current, ""); err != nil {
		s.mu.Lock()
		s.lastErr = errors.WrapTransport(err, "Sync", "onRequest", "answer bootstrap request")
		s.mu.Unlock()
		s.logger.Warn("bootstrap answer failed", "error", err)
	}
}
