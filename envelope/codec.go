package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/saquib34/react-iframe-bridge/errors"
)

// JSON Schemas for the two wire shapes. Schema validation runs on every
// inbound envelope before any application code sees it: the transport
// primitive accepts arbitrary untyped data from any context that can reach
// it, so the codec is the sole type boundary.
const messageSchema = `{
	"type": "object",
	"required": ["id", "type", "timestamp", "origin", "targetOrigin"],
	"properties": {
		"id": {"type": "string", "minLength": 36, "maxLength": 36},
		"type": {"type": "string", "minLength": 1},
		"timestamp": {"type": "integer", "minimum": 1},
		"origin": {"type": "string", "minLength": 1},
		"targetOrigin": {"type": "string", "minLength": 1},
		"payload": {}
	}
}`

const responseSchema = `{
	"type": "object",
	"required": ["id", "type", "timestamp", "origin", "targetOrigin", "responseId", "success"],
	"properties": {
		"id": {"type": "string", "minLength": 36, "maxLength": 36},
		"type": {"type": "string", "minLength": 1},
		"timestamp": {"type": "integer", "minimum": 1},
		"origin": {"type": "string", "minLength": 1},
		"targetOrigin": {"type": "string", "minLength": 1},
		"responseId": {"type": "string", "minLength": 36, "maxLength": 36},
		"success": {"type": "boolean"},
		"payload": {},
		"error": {"type": "string"}
	}
}`

var (
	compiledMessageSchema  *gojsonschema.Schema
	compiledResponseSchema *gojsonschema.Schema
)

func init() {
	var err error
	compiledMessageSchema, err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(messageSchema))
	if err != nil {
		panic("failed to compile message schema: " + err.Error())
	}
	compiledResponseSchema, err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(responseSchema))
	if err != nil {
		panic("failed to compile response schema: " + err.Error())
	}
}

// Marshal serializes a message or response for transport hand-off.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WrapValidation(err, "Codec", "Marshal", "serialize envelope")
	}
	return data, nil
}

// ParseMessage structurally validates raw bytes against the plain-message
// shape and decodes them. This is the defense against malformed or
// adversarial data arriving from the transport.
func ParseMessage(raw []byte) (*Message, error) {
	if err := checkSchema(compiledMessageSchema, raw, "message"); err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errors.WrapValidation(err, "Codec", "ParseMessage", "decode message")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ParseResponse structurally validates raw bytes against the response shape
// and decodes them.
func ParseResponse(raw []byte) (*Response, error) {
	if err := checkSchema(compiledResponseSchema, raw, "response"); err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.WrapValidation(err, "Codec", "ParseResponse", "decode response")
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PeekType extracts the type tag from raw bytes without full validation, so
// the router can decide between the message and response paths before
// running the matching schema.
func PeekType(raw []byte) (string, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", errors.WrapValidation(err, "Codec", "PeekType", "decode type tag")
	}
	if head.Type == "" {
		return "", errors.WrapValidation(errors.ErrInvalidEnvelope, "Codec", "PeekType",
			"type must be a non-empty string")
	}
	return head.Type, nil
}

func checkSchema(schema *gojsonschema.Schema, raw []byte, shape string) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errors.WrapValidation(err, "Codec", "checkSchema",
			fmt.Sprintf("load %s document", shape))
	}
	if !result.Valid() {
		descs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descs = append(descs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return errors.WrapValidation(errors.ErrInvalidEnvelope, "Codec", "checkSchema",
			fmt.Sprintf("%s schema: %v", shape, descs))
	}
	return nil
}
