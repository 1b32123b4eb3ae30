package envelope

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/saquib34/react-iframe-bridge/errors"
	"github.com/saquib34/react-iframe-bridge/pkg/timestamp"
)

// Reserved protocol message types. These are part of the wire contract and
// must match exactly for interop with peer implementations.
const (
	// TypeReady signals that the embedded context finished initializing.
	// Carries {origin, timestamp} as payload.
	TypeReady = "IFRAME_READY"

	// ResponseSuffix is appended to a request's type to form its response
	// type. Request type names must not already end in this suffix.
	ResponseSuffix = "_RESPONSE"

	// stateUpdatePrefix and stateRequestPrefix form the reserved types for
	// shared-state broadcast and bootstrap, keyed by upper-cased sync key.
	stateUpdatePrefix  = "SHARED_STATE_UPDATE_"
	stateRequestPrefix = "SHARED_STATE_REQUEST_"
)

// TargetAny is the wildcard target-origin sentinel meaning "any recipient".
const TargetAny = "*"

// Envelope holds the base fields shared by every protocol message kind.
// The id correlates requests to responses and supports idempotency checks;
// the timestamp orders state-sync conflicts (no cross-context clock sync is
// implied); the origin is the sender's declared origin, re-verified against
// the transport-reported origin on receipt.
type Envelope struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Timestamp    int64  `json:"timestamp"`
	Origin       string `json:"origin"`
	TargetOrigin string `json:"targetOrigin"`
}

// Message is a plain protocol message carrying application data.
type Message struct {
	Envelope
	Payload any `json:"payload,omitempty"`
}

// Response answers a specific Message, correlated by ResponseID.
// By convention Payload is set when Success is true and Error when false.
type Response struct {
	Envelope
	ResponseID string `json:"responseId"`
	Success    bool   `json:"success"`
	Payload    any    `json:"payload,omitempty"`
	Error      string `json:"error,omitempty"`
}

// NewMessage creates a plain message with a fresh unique id and a current
// timestamp. No validation is applied here beyond what the format validator
// enforces on receipt; outbound payloads are trusted as produced by local
// application code.
func NewMessage(msgType string, payload any, origin, targetOrigin string) *Message {
	return &Message{
		Envelope: Envelope{
			ID:           uuid.NewString(),
			Type:         msgType,
			Timestamp:    timestamp.Now(),
			Origin:       origin,
			TargetOrigin: targetOrigin,
		},
		Payload: payload,
	}
}

// NewResponse creates the response to original. The response type is derived
// as original.Type + "_RESPONSE" - the contract dispatch relies on to route
// responses to the correlation engine - and the target origin is the original
// sender's declared origin. responderOrigin is the answering side's own
// origin; the original's targetOrigin cannot serve here because it may be
// the wildcard, which would fail the requester's declared-origin cross-check.
func NewResponse(original *Message, success bool, payload any, errMsg, responderOrigin string) *Response {
	return &Response{
		Envelope: Envelope{
			ID:           uuid.NewString(),
			Type:         original.Type + ResponseSuffix,
			Timestamp:    timestamp.Now(),
			Origin:       responderOrigin,
			TargetOrigin: original.Origin,
		},
		ResponseID: original.ID,
		Success:    success,
		Payload:    payload,
		Error:      errMsg,
	}
}

// IsResponseType reports whether a type string names a response envelope.
func IsResponseType(msgType string) bool {
	return strings.HasSuffix(msgType, ResponseSuffix)
}

// StateUpdateType returns the reserved broadcast type for a sync key.
func StateUpdateType(key string) string {
	return stateUpdatePrefix + strings.ToUpper(key)
}

// StateRequestType returns the reserved bootstrap-request type for a sync key.
func StateRequestType(key string) string {
	return stateRequestPrefix + strings.ToUpper(key)
}

// Validate checks the envelope base fields: well-formed uuid id, non-empty
// type, positive timestamp, non-empty origins.
func (e *Envelope) Validate() error {
	if e.ID == "" {
		return errors.WrapValidation(errors.ErrInvalidEnvelope, "Envelope", "Validate",
			"id must not be empty")
	}
	if _, err := uuid.Parse(e.ID); err != nil {
		return errors.WrapValidation(errors.ErrInvalidEnvelope, "Envelope", "Validate",
			fmt.Sprintf("id %q is not a well-formed uuid", e.ID))
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.WrapValidation(errors.ErrInvalidEnvelope, "Envelope", "Validate",
			"type must be a non-empty string")
	}
	if e.Timestamp <= 0 {
		return errors.WrapValidation(errors.ErrInvalidEnvelope, "Envelope", "Validate",
			"timestamp must be positive")
	}
	if e.Origin == "" {
		return errors.WrapValidation(errors.ErrInvalidEnvelope, "Envelope", "Validate",
			"origin must not be empty")
	}
	if e.TargetOrigin == "" {
		return errors.WrapValidation(errors.ErrInvalidEnvelope, "Envelope", "Validate",
			"targetOrigin must not be empty")
	}
	return nil
}

// Validate checks the full response shape: base envelope fields plus a
// well-formed correlation id and the reserved response type suffix.
func (r *Response) Validate() error {
	if err := r.Envelope.Validate(); err != nil {
		return err
	}
	if r.ResponseID == "" {
		return errors.WrapValidation(errors.ErrInvalidResponse, "Response", "Validate",
			"responseId must not be empty")
	}
	if _, err := uuid.Parse(r.ResponseID); err != nil {
		return errors.WrapValidation(errors.ErrInvalidResponse, "Response", "Validate",
			fmt.Sprintf("responseId %q is not a well-formed uuid", r.ResponseID))
	}
	if !IsResponseType(r.Type) {
		return errors.WrapValidation(errors.ErrInvalidResponse, "Response", "Validate",
			fmt.Sprintf("type %q lacks the response suffix", r.Type))
	}
	return nil
}
