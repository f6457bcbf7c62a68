package wire

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/google/uuid"
)

// RGBA is a peer's cursor/presence color. Derived deterministically from
// the peer's id so every client renders the same peer with the same color
// without a negotiation round trip.
type RGBA struct {
	R, G, B, A byte
}

// DeriveColor hashes peerID with FNV-1a and maps the low 24 bits onto a
// saturated, readable color (alpha is always fully opaque). The mapping is
// stable across processes and languages as long as the hash and bit layout
// match — both fixed here.
func DeriveColor(peerID uuid.UUID) RGBA {
	h := fnv.New32a()
	_, _ = h.Write(peerID[:])
	sum := h.Sum32()
	return RGBA{
		R: byte(sum>>16) | 0x40, // keep channels away from near-black
		G: byte(sum>>8) | 0x40,
		B: byte(sum) | 0x40,
		A: 0xFF,
	}
}

// PeerInfo is the payload carried by a PeerJoined envelope.
type PeerInfo struct {
	PeerID      uuid.UUID
	DisplayName string
	Color       RGBA
}

// EncodePeerInfo serializes a PeerInfo: peer_id[16] ‖ rgba[4] ‖
// name_len[2,BE] ‖ name_bytes.
func EncodePeerInfo(p PeerInfo) []byte {
	name := []byte(p.DisplayName)
	out := make([]byte, 16+4+2+len(name))
	copy(out[0:16], p.PeerID[:])
	out[16], out[17], out[18], out[19] = p.Color.R, p.Color.G, p.Color.B, p.Color.A
	binary.BigEndian.PutUint16(out[20:22], uint16(len(name)))
	copy(out[22:], name)
	return out
}

// DecodePeerInfo is the inverse of EncodePeerInfo.
func DecodePeerInfo(b []byte) (PeerInfo, error) {
	if len(b) < 22 {
		return PeerInfo{}, ErrMalformedFrame
	}
	var p PeerInfo
	copy(p.PeerID[:], b[0:16])
	p.Color = RGBA{R: b[16], G: b[17], B: b[18], A: b[19]}
	nameLen := binary.BigEndian.Uint16(b[20:22])
	if len(b[22:]) < int(nameLen) {
		return PeerInfo{}, ErrMalformedFrame
	}
	p.DisplayName = string(b[22 : 22+int(nameLen)])
	return p, nil
}

// PeerInfoOf decodes the PeerJoined payload carried by e. It fails with
// ErrWrongMessageType if e is not a PeerJoined envelope.
func PeerInfoOf(e Envelope) (PeerInfo, error) {
	if e.Type != MsgPeerJoined {
		return PeerInfo{}, ErrWrongMessageType
	}
	return DecodePeerInfo(e.Payload)
}

// CursorPos is a caret position within a document, in the original's
// spatial coordinate units (pixels in the desktop app; opaque to the core).
type CursorPos struct {
	X, Y uint32
}

// SelectionRange is a pair of offsets bracketing a selection.
type SelectionRange struct {
	Start, End uint32
}

// AwarenessState is the presence payload carried by an Awareness envelope.
// Recovered from logos-collab/src/presence.rs: an optional cursor and an
// optional selection (the per-peer color travels in PeerInfo, not here).
// The replica never sees this payload; the session engine decodes it only
// to validate it before broadcasting the envelope, and the room fabric
// relays it as opaque bytes.
type AwarenessState struct {
	Cursor    *CursorPos
	Selection *SelectionRange
}

const (
	awarenessFlagCursor    = 1 << 0
	awarenessFlagSelection = 1 << 1
)

// EncodeAwareness serializes an AwarenessState as a 1-byte presence flag
// followed by 8 optional bytes per present field.
func EncodeAwareness(a AwarenessState) []byte {
	var flags byte
	if a.Cursor != nil {
		flags |= awarenessFlagCursor
	}
	if a.Selection != nil {
		flags |= awarenessFlagSelection
	}
	out := []byte{flags}
	if a.Cursor != nil {
		var buf [8]byte
		binary.BigEndian.PutUint32(buf[0:4], a.Cursor.X)
		binary.BigEndian.PutUint32(buf[4:8], a.Cursor.Y)
		out = append(out, buf[:]...)
	}
	if a.Selection != nil {
		var buf [8]byte
		binary.BigEndian.PutUint32(buf[0:4], a.Selection.Start)
		binary.BigEndian.PutUint32(buf[4:8], a.Selection.End)
		out = append(out, buf[:]...)
	}
	return out
}

// DecodeAwareness is the inverse of EncodeAwareness.
func DecodeAwareness(b []byte) (AwarenessState, error) {
	if len(b) < 1 {
		return AwarenessState{}, ErrMalformedFrame
	}
	flags := b[0]
	rest := b[1:]
	var a AwarenessState
	if flags&awarenessFlagCursor != 0 {
		if len(rest) < 8 {
			return AwarenessState{}, ErrMalformedFrame
		}
		a.Cursor = &CursorPos{
			X: binary.BigEndian.Uint32(rest[0:4]),
			Y: binary.BigEndian.Uint32(rest[4:8]),
		}
		rest = rest[8:]
	}
	if flags&awarenessFlagSelection != 0 {
		if len(rest) < 8 {
			return AwarenessState{}, ErrMalformedFrame
		}
		a.Selection = &SelectionRange{
			Start: binary.BigEndian.Uint32(rest[0:4]),
			End:   binary.BigEndian.Uint32(rest[4:8]),
		}
	}
	return a, nil
}

// AwarenessOf decodes the Awareness payload carried by e. It fails with
// ErrWrongMessageType if e is not an Awareness envelope.
func AwarenessOf(e Envelope) (AwarenessState, error) {
	if e.Type != MsgAwareness {
		return AwarenessState{}, ErrWrongMessageType
	}
	return DecodeAwareness(e.Payload)
}
