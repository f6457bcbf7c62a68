// Package wire implements the binary envelope shared by every client and
// server message in the collaboration protocol.
//
// The envelope is a fixed-size header — a one-byte type tag, two 16-byte
// identifiers, and an 8-byte clock — followed by a length-prefixed opaque
// payload. Encoding is deterministic: the same Envelope value always
// produces the same bytes, and decoding recovers every field bit-exactly.
package wire

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// MsgType tags the envelope's payload kind. The set is closed: new message
// kinds are not meant to be added without revisiting every switch over this
// type in the session engine.
type MsgType byte

const (
	MsgSyncStep1  MsgType = 1
	MsgSyncStep2  MsgType = 2
	MsgDelta      MsgType = 3
	MsgAwareness  MsgType = 4
	MsgPeerJoined MsgType = 5
	MsgPeerLeft   MsgType = 6
	MsgPing       MsgType = 7
	MsgPong       MsgType = 8
)

// String renders the tag for logging; unknown tags render as "Unknown"
// rather than panicking.
func (t MsgType) String() string {
	switch t {
	case MsgSyncStep1:
		return "SyncStep1"
	case MsgSyncStep2:
		return "SyncStep2"
	case MsgDelta:
		return "Delta"
	case MsgAwareness:
		return "Awareness"
	case MsgPeerJoined:
		return "PeerJoined"
	case MsgPeerLeft:
		return "PeerLeft"
	case MsgPing:
		return "Ping"
	case MsgPong:
		return "Pong"
	default:
		return "Unknown"
	}
}

func validMsgType(t MsgType) bool {
	return t >= MsgSyncStep1 && t <= MsgPong
}

// headerSize is 1 (tag) + 16 (peer_id) + 16 (doc_id) + 8 (clock).
const headerSize = 1 + 16 + 16 + 8

// Envelope is the single tagged record carried by every frame on the wire.
type Envelope struct {
	Type    MsgType
	PeerID  uuid.UUID
	DocID   uuid.UUID
	Clock   uint64
	Payload []byte
}

// Encode serializes the envelope deterministically: tag, peer_id, doc_id,
// clock (big-endian for on-wire readability in captures), then a 4-byte
// big-endian payload length followed by the raw payload bytes.
func Encode(e Envelope) []byte {
	out := make([]byte, headerSize+4+len(e.Payload))
	out[0] = byte(e.Type)
	copy(out[1:17], e.PeerID[:])
	copy(out[17:33], e.DocID[:])
	binary.BigEndian.PutUint64(out[33:41], e.Clock)
	binary.BigEndian.PutUint32(out[41:45], uint32(len(e.Payload)))
	copy(out[45:], e.Payload)
	return out
}

// Decode parses a frame produced by Encode. It fails with ErrMalformedFrame
// if the tag is unrecognized, the fixed header is truncated, or the payload
// length prefix overruns the remaining bytes. It fails with
// ErrPayloadTooLarge if the declared payload length exceeds MaxPayloadSize.
func Decode(b []byte) (Envelope, error) {
	if len(b) < headerSize+4 {
		return Envelope{}, ErrMalformedFrame
	}
	typ := MsgType(b[0])
	if !validMsgType(typ) {
		return Envelope{}, ErrMalformedFrame
	}
	var e Envelope
	e.Type = typ
	copy(e.PeerID[:], b[1:17])
	copy(e.DocID[:], b[17:33])
	e.Clock = binary.BigEndian.Uint64(b[33:41])
	payloadLen := binary.BigEndian.Uint32(b[41:45])
	if payloadLen > MaxPayloadSize {
		return Envelope{}, ErrPayloadTooLarge
	}
	rest := b[45:]
	if uint32(len(rest)) < payloadLen {
		return Envelope{}, ErrMalformedFrame
	}
	e.Payload = append([]byte(nil), rest[:payloadLen]...)
	return e, nil
}
