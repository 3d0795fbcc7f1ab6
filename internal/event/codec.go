package event

import (
	"encoding/json"
	"fmt"
)

// Encode serializes an envelope to its canonical snake_case JSON form.
func Encode(e *Envelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope %s: %w", e.EventID, err)
	}
	return data, nil
}

// Decode parses and validates an envelope from canonical JSON. Encoding then
// decoding an envelope yields a structurally equal value.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
