package wire

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Envelope{
		{Type: MsgDelta, PeerID: uuid.New(), DocID: uuid.New(), Clock: 42, Payload: []byte("hello")},
		{Type: MsgPing, PeerID: uuid.Nil, DocID: uuid.Nil, Clock: 0, Payload: nil},
		{Type: MsgSyncStep2, PeerID: uuid.New(), DocID: uuid.New(), Clock: 7, Payload: make([]byte, 0)},
	}
	for _, e := range cases {
		got, err := Decode(Encode(e))
		require.NoError(t, err)
		assert.Equal(t, e.Type, got.Type)
		assert.Equal(t, e.PeerID, got.PeerID)
		assert.Equal(t, e.DocID, got.DocID)
		assert.Equal(t, e.Clock, got.Clock)
		if len(e.Payload) == 0 {
			assert.Empty(t, got.Payload)
		} else {
			assert.Equal(t, e.Payload, got.Payload)
		}
	}
}

func TestDecodeUnknownMsgType(t *testing.T) {
	e := Encode(Envelope{Type: MsgPing, PeerID: uuid.New(), DocID: uuid.New()})
	e[0] = 99
	_, err := Decode(e)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeTruncatedHeader(t *testing.T) {
	_, err := Decode(make([]byte, 10))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeTruncatedPayload(t *testing.T) {
	e := Encode(Envelope{Type: MsgDelta, PeerID: uuid.New(), DocID: uuid.New(), Payload: []byte("0123456789")})
	truncated := e[:len(e)-5]
	_, err := Decode(truncated)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodePayloadTooLarge(t *testing.T) {
	e := Encode(Envelope{Type: MsgDelta, PeerID: uuid.New(), DocID: uuid.New()})
	// Overwrite the length prefix to claim an oversized payload.
	e[41], e[42], e[43], e[44] = 0xFF, 0xFF, 0xFF, 0xFF
	_, err := Decode(e)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestPeerInfoRoundTrip(t *testing.T) {
	p := PeerInfo{PeerID: uuid.New(), DisplayName: "Alice", Color: DeriveColor(uuid.New())}
	got, err := DecodePeerInfo(EncodePeerInfo(p))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestPeerInfoOfWrongType(t *testing.T) {
	e := Envelope{Type: MsgDelta}
	_, err := PeerInfoOf(e)
	assert.ErrorIs(t, err, ErrWrongMessageType)
}

func TestAwarenessRoundTrip(t *testing.T) {
	a := AwarenessState{
		Cursor:    &CursorPos{X: 10, Y: 20},
		Selection: &SelectionRange{Start: 5, End: 9},
	}
	got, err := DecodeAwareness(EncodeAwareness(a))
	require.NoError(t, err)
	assert.Equal(t, a, got)

	empty := AwarenessState{}
	got2, err := DecodeAwareness(EncodeAwareness(empty))
	require.NoError(t, err)
	assert.Nil(t, got2.Cursor)
	assert.Nil(t, got2.Selection)
}

func TestDeriveColorIsStable(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, DeriveColor(id), DeriveColor(id))
}
