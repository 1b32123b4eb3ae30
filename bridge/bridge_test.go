package bridge

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saquib34/react-iframe-bridge/config"
	"github.com/saquib34/react-iframe-bridge/envelope"
	"github.com/saquib34/react-iframe-bridge/errors"
	"github.com/saquib34/react-iframe-bridge/sharedstate"
	"github.com/saquib34/react-iframe-bridge/transport"
)

const (
	hostOrigin  = "https://host.example.com"
	frameOrigin = "https://frame.example.com"
)

func testConfig(origin, target string) *config.Config {
	return &config.Config{
		Origin:         origin,
		TargetOrigin:   target,
		AllowedOrigins: []string{target},
		Communication: config.CommunicationConfig{
			TimeoutMs: 1000,
		},
	}
}

func startBridge(t *testing.T, cfg *config.Config, tr transport.Transport) *Bridge {
	t.Helper()
	b := New(cfg, tr, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, b.Initialize())
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Stop(time.Second) })
	return b
}

// newPair wires two started bridges over an in-process transport pair.
func newPair(t *testing.T) (host, frame *Bridge, hostEnd, frameEnd *transport.Endpoint) {
	t.Helper()
	hostEnd, frameEnd = transport.NewPair(hostOrigin, frameOrigin)
	host = startBridge(t, testConfig(hostOrigin, frameOrigin), hostEnd)
	frame = startBridge(t, testConfig(frameOrigin, hostOrigin), frameEnd)
	return host, frame, hostEnd, frameEnd
}

func TestBridge_SendDeliversToSubscriber(t *testing.T) {
	host, frame, _, _ := newPair(t)

	var got atomic.Value
	frame.Subscribe("EVENT", func(payload any, msg *envelope.Message) {
		got.Store(msg.Origin)
		assert.Equal(t, map[string]any{"n": float64(1)}, payload)
	})

	require.NoError(t, host.Send("EVENT", map[string]any{"n": 1}))
	assert.Equal(t, hostOrigin, got.Load())
	assert.NoError(t, frame.LastError())
}

func TestBridge_RequestResponseRoundTrip(t *testing.T) {
	host, frame, _, _ := newPair(t)

	frame.Subscribe("PING", func(payload any, msg *envelope.Message) {
		require.NoError(t, frame.Respond(msg, true, map[string]any{"pong": payload}, ""))
	})

	payload, err := host.Request(context.Background(), "PING", "hello")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"pong": "hello"}, payload)
}

func TestBridge_RequestRoundTripWithWildcardTarget(t *testing.T) {
	hostEnd, frameEnd := transport.NewPair(hostOrigin, frameOrigin)
	cfg := testConfig(hostOrigin, frameOrigin)
	cfg.TargetOrigin = envelope.TargetAny
	host := startBridge(t, cfg, hostEnd)
	frame := startBridge(t, testConfig(frameOrigin, hostOrigin), frameEnd)

	frame.Subscribe("PING", func(payload any, msg *envelope.Message) {
		require.NoError(t, frame.Respond(msg, true, map[string]any{"pong": payload}, ""))
	})

	// The response must declare the frame's real origin, not echo the
	// wildcard back, or the host's gate rejects it.
	payload, err := host.Request(context.Background(), "PING", "hello")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"pong": "hello"}, payload)
	assert.NoError(t, host.LastError())
}

func TestBridge_RequestFailureResponse(t *testing.T) {
	host, frame, _, _ := newPair(t)

	frame.Subscribe("OP", func(_ any, msg *envelope.Message) {
		require.NoError(t, frame.Respond(msg, false, nil, "remote refused"))
	})

	_, err := host.Request(context.Background(), "OP", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRequestFailed)
	assert.Contains(t, err.Error(), "remote refused")
}

func TestBridge_RequestTimeoutNamesTheTimeout(t *testing.T) {
	host, _, _, _ := newPair(t)

	// Nobody handles SLOW_OP, so no response ever comes.
	start := time.Now()
	_, err := host.RequestWithTimeout(context.Background(), "SLOW_OP", nil, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err))
	assert.Contains(t, err.Error(), "50ms")
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestBridge_RequestRejectsResponseSuffixType(t *testing.T) {
	host, _, _, _ := newPair(t)

	_, err := host.Request(context.Background(), "PING_RESPONSE", nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	require.Error(t, host.Send("PING_RESPONSE", nil))
}

func TestBridge_RequestWithRetryEventuallySucceeds(t *testing.T) {
	hostEnd, frameEnd := transport.NewPair(hostOrigin, frameOrigin)
	cfg := testConfig(hostOrigin, frameOrigin)
	cfg.Communication.RetryAttempts = 3
	cfg.Communication.RetryDelayMs = 1
	host := startBridge(t, cfg, hostEnd)
	frame := startBridge(t, testConfig(frameOrigin, hostOrigin), frameEnd)

	var calls atomic.Int32
	frame.Subscribe("FLAKY", func(_ any, msg *envelope.Message) {
		if calls.Add(1) < 3 {
			require.NoError(t, frame.Respond(msg, false, nil, "not yet"))
			return
		}
		require.NoError(t, frame.Respond(msg, true, "done", ""))
	})

	payload, err := host.RequestWithRetry(context.Background(), "FLAKY", nil)
	require.NoError(t, err)
	assert.Equal(t, "done", payload)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBridge_RequestWithRetryDoesNotRetryValidationFailures(t *testing.T) {
	hostEnd, _ := transport.NewPair(hostOrigin, frameOrigin)
	cfg := testConfig(hostOrigin, frameOrigin)
	cfg.Communication.RetryAttempts = 3
	host := startBridge(t, cfg, hostEnd)

	_, err := host.RequestWithRetry(context.Background(), "BAD_RESPONSE", nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestBridge_SpoofedDeclaredOriginRejected(t *testing.T) {
	host, _, _, frameEnd := newPair(t)

	invoked := false
	host.Subscribe("EVENT", func(any, *envelope.Message) { invoked = true })

	// The frame's transport origin is fixed, but the envelope claims to come
	// from the host itself. Declared and transport origins disagree.
	forged := envelope.NewMessage("EVENT", nil, hostOrigin, hostOrigin)
	raw, err := envelope.Marshal(forged)
	require.NoError(t, err)
	require.NoError(t, frameEnd.Send(raw, envelope.TargetAny))

	assert.False(t, invoked, "spoofed message must not reach handlers")
	assert.ErrorIs(t, host.LastError(), errors.ErrOriginMismatch)
}

func TestBridge_DisallowedOriginRejected(t *testing.T) {
	host, _, _, frameEnd := newPair(t)

	invoked := false
	host.Subscribe("EVENT", func(any, *envelope.Message) { invoked = true })

	forged := envelope.NewMessage("EVENT", nil, "https://evil.example.com", hostOrigin)
	raw, err := envelope.Marshal(forged)
	require.NoError(t, err)
	require.NoError(t, frameEnd.Send(raw, envelope.TargetAny))

	assert.False(t, invoked)
	assert.ErrorIs(t, host.LastError(), errors.ErrOriginNotAllowed)
}

func TestBridge_SignalReady(t *testing.T) {
	host, frame, _, _ := newPair(t)

	ready := make(chan envelope.ReadyPayload, 1)
	host.Subscribe(envelope.TypeReady, func(payload any, _ *envelope.Message) {
		decoded, err := envelope.DecodePayload[envelope.ReadyPayload](payload)
		require.NoError(t, err)
		ready <- decoded
	})

	require.NoError(t, frame.SignalReady())

	select {
	case p := <-ready:
		assert.Equal(t, frameOrigin, p.Origin)
		assert.Positive(t, p.Timestamp)
	default:
		t.Fatal("ready signal never arrived")
	}
}

func TestBridge_UnsubscribeStopsDelivery(t *testing.T) {
	host, frame, _, _ := newPair(t)

	var calls atomic.Int32
	unsub := frame.Subscribe("EVENT", func(any, *envelope.Message) { calls.Add(1) })

	require.NoError(t, host.Send("EVENT", nil))
	unsub()
	require.NoError(t, host.Send("EVENT", nil))

	assert.Equal(t, int32(1), calls.Load())
}

func TestBridge_LastErrorClearedOnCleanDispatch(t *testing.T) {
	host, _, _, frameEnd := newPair(t)
	host.Subscribe("EVENT", func(any, *envelope.Message) {})

	require.NoError(t, frameEnd.Send([]byte("not json"), envelope.TargetAny))
	require.Error(t, host.LastError())

	good := envelope.NewMessage("EVENT", nil, frameOrigin, hostOrigin)
	raw, err := envelope.Marshal(good)
	require.NoError(t, err)
	require.NoError(t, frameEnd.Send(raw, envelope.TargetAny))
	assert.NoError(t, host.LastError())
}

func TestBridge_OversizedOutboundRejected(t *testing.T) {
	hostEnd, _ := transport.NewPair(hostOrigin, frameOrigin)
	cfg := testConfig(hostOrigin, frameOrigin)
	cfg.MaxMessageSize = 64
	host := startBridge(t, cfg, hostEnd)

	err := host.Send("EVENT", map[string]any{"filler": string(make([]byte, 256))})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMessageTooLarge)
}

func TestBridge_LifecycleOrdering(t *testing.T) {
	hostEnd, _ := transport.NewPair(hostOrigin, frameOrigin)
	b := New(testConfig(hostOrigin, frameOrigin), hostEnd,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	require.Error(t, b.Start(context.Background()), "start before initialize")
	require.Error(t, b.Send("EVENT", nil), "send before start")
	assert.Nil(t, b.Subscribe("EVENT", func(any, *envelope.Message) {}),
		"subscribe before initialize")
	assert.NoError(t, b.LastError(), "no failures before initialize")
	assert.True(t, b.Connected(), "transport pair is open even before initialize")

	untransported := New(testConfig(hostOrigin, frameOrigin), nil,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	assert.False(t, untransported.Connected())
	require.Error(t, untransported.Initialize())

	require.NoError(t, b.Initialize())
	require.Error(t, b.Initialize(), "second initialize")

	require.NoError(t, b.Start(context.Background()))
	require.Error(t, b.Start(context.Background()), "second start")

	require.NoError(t, b.Stop(time.Second))
	require.Error(t, b.Stop(time.Second), "second stop")
	assert.ErrorIs(t, b.Send("EVENT", nil), errors.ErrAlreadyStopped)
}

func TestBridge_StopFailsPendingRequests(t *testing.T) {
	hostEnd, _ := transport.NewPair(hostOrigin, frameOrigin)
	host := startBridge(t, testConfig(hostOrigin, frameOrigin), hostEnd)

	errCh := make(chan error, 1)
	go func() {
		_, err := host.RequestWithTimeout(context.Background(), "SLOW_OP", nil, time.Minute)
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return host.engine.Len() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, host.Stop(time.Second))

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrListenerClosed)
	case <-time.After(time.Second):
		t.Fatal("pending request survived Stop")
	}
}

func TestBridge_ConnectedTracksPeer(t *testing.T) {
	host, _, _, frameEnd := newPair(t)

	assert.True(t, host.Connected())
	require.NoError(t, frameEnd.Close())
	assert.False(t, host.Connected())
}

func TestBridge_SharedStateConvergesAcrossPair(t *testing.T) {
	host, frame, _, _ := newPair(t)

	hostSync := sharedstate.NewSync[string]("theme", "light", host, nil)
	frameSync := sharedstate.NewSync[string]("theme", "light", frame, nil)
	require.NoError(t, hostSync.Start(context.Background()))
	require.NoError(t, frameSync.Start(context.Background()))
	defer hostSync.Stop()
	defer frameSync.Stop()

	require.NoError(t, hostSync.Set("dark"))
	require.Eventually(t, func() bool {
		return frameSync.Get() == "dark"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, frameSync.Set("sepia"))
	require.Eventually(t, func() bool {
		return hostSync.Get() == "sepia"
	}, time.Second, 5*time.Millisecond)
}

func TestBridge_SharedStateBootstrapFromPeer(t *testing.T) {
	host, frame, _, _ := newPair(t)

	hostSync := sharedstate.NewSync[string]("theme", "light", host, nil)
	require.NoError(t, hostSync.Start(context.Background()))
	defer hostSync.Stop()
	require.NoError(t, hostSync.Set("dark"))

	// A late-joining peer requests the current value on startup.
	frameSync := sharedstate.NewSync[string]("theme", "light", frame, nil)
	require.NoError(t, frameSync.Start(context.Background()))
	defer frameSync.Stop()

	require.Eventually(t, func() bool {
		return frameSync.Status() == sharedstate.StateSynced && frameSync.Get() == "dark"
	}, time.Second, 5*time.Millisecond)
}
