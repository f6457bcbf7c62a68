package wire

import "errors"

// Decode/encode failures. These are protocol errors per the session engine's
// error taxonomy: logged, never fatal to a connection.
var (
	// ErrMalformedFrame is returned when a frame's tag is unknown, its
	// fixed-size fields are truncated, or its length prefix overruns the
	// remaining input.
	ErrMalformedFrame = errors.New("wire: malformed frame")

	// ErrWrongMessageType is returned by a typed payload accessor when the
	// envelope's msg_type does not carry that payload kind.
	ErrWrongMessageType = errors.New("wire: wrong message type for payload accessor")

	// ErrPayloadTooLarge is returned when a payload length prefix exceeds
	// MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("wire: payload exceeds maximum size")
)

// MaxPayloadSize bounds a single envelope's payload. 16 MiB matches the
// upper bound reasonable for a typical design-document delta.
const MaxPayloadSize = 16 << 20
