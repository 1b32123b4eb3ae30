package envelope

import (
	"encoding/json"

	"github.com/saquib34/react-iframe-bridge/errors"
)

// DecodePayload converts a decoded JSON payload (typically map[string]any
// after transit) into a concrete type via a JSON round-trip. Payloads are
// schema-checked only at the trust boundary; this adds the typed view that
// application handlers and the state synchronizer work with.
func DecodePayload[T any](payload any) (T, error) {
	var out T
	if payload == nil {
		return out, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return out, errors.WrapValidation(err, "Codec", "DecodePayload", "re-serialize payload")
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, errors.WrapValidation(err, "Codec", "DecodePayload", "decode payload")
	}
	return out, nil
}

// ReadyPayload is the payload carried by the IFRAME_READY signal.
type ReadyPayload struct {
	Origin    string `json:"origin"`
	Timestamp int64  `json:"timestamp"`
}
