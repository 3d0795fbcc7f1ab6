package event

import "errors"

var (
	// ErrInvalidEventType indicates the event type does not match the
	// AggregateName.VerbPhrase grammar.
	ErrInvalidEventType = errors.New("invalid event type")

	// ErrInvalidEnvelope indicates a malformed identifier or missing field.
	ErrInvalidEnvelope = errors.New("invalid envelope")
)
