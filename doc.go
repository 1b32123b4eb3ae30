// Package iframebridge is the root of a secure host-to-frame messaging
// protocol core: typed JSON envelopes exchanged between two mutually
// untrusting contexts over a best-effort transport, with origin-based
// security enforcement, request/response correlation, and last-writer-wins
// shared state.
//
// # Architecture
//
// Each endpoint runs one bridge instance over one transport channel:
//
//	┌──────────────────────────────────────┐
//	│               Bridge                 │  lifecycle, send/request
//	│   (initialize, start, stop)          │  surface
//	└──────────────────────────────────────┘
//	           ↓ inbound deliveries
//	┌──────────────────────────────────────┐
//	│         Security Gate                │  allow-list, rate limit,
//	│   (origin, size, spoof checks)       │  size ceiling
//	└──────────────────────────────────────┘
//	           ↓ validated frames
//	┌──────────────────────────────────────┐
//	│         Dispatch Router              │  responses → correlation
//	│   (type demux, handler registry)     │  messages  → handlers
//	└──────────────────────────────────────┘
//
// # Packages
//
// Protocol core:
//   - envelope: wire format, schema validation, reserved types
//   - security: origin allow-list, per-origin rate limiting, size ceiling
//   - correlation: pending-request table, timeouts, exactly-once resolution
//   - router: handler registry and inbound dispatch
//   - sharedstate: keyed last-writer-wins state replication
//   - bridge: endpoint assembly and public surface
//
// Transports:
//   - transport: the delivery primitive and an in-process pair
//   - transport/ws: WebSocket-backed channel
//   - transport/natsbridge: NATS-backed channel
//
// Infrastructure:
//   - config: configuration surface, validation, file loading
//   - errors: classified protocol errors
//   - metric: Prometheus metrics
//   - health: component health and connection polling
//   - pkg/retry: retry policies layered over single-attempt requests
//   - pkg/timestamp: millisecond timestamps and logical clocks
//
// # Trust model
//
// Every inbound frame is untrusted until the security gate passes it: the
// transport-reported origin must be allow-listed, must match the envelope's
// declared origin, and must be within its rate budget; the frame must fit
// the size ceiling and the envelope schema. Outbound traffic is filtered by
// target origin so payloads never reach an unintended peer.
package iframebridge
