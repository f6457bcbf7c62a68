package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gorillaws "github.com/gorilla/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabmesh/collabd/internal/wire"
)

func TestConnSendAndRecvRoundTrip(t *testing.T) {
	up := NewUpgrader(DefaultConfig())

	serverErrCh := make(chan error, 1)
	var serverEnv wire.Envelope

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r)
		if err != nil {
			serverErrCh <- err
			return
		}
		defer conn.Close()

		env, err := conn.Recv()
		if err != nil {
			serverErrCh <- err
			return
		}
		serverEnv = env

		reply := wire.Envelope{Type: wire.MsgSyncStep2, PeerID: env.PeerID, DocID: env.DocID, Clock: 7}
		serverErrCh <- conn.Send(context.Background(), reply)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer clientConn.Close()

	docID, peerID := uuid.New(), uuid.New()
	sent := wire.Envelope{Type: wire.MsgSyncStep1, PeerID: peerID, DocID: docID, Payload: []byte("state-vector")}
	require.NoError(t, clientConn.WriteMessage(gorillaws.BinaryMessage, wire.Encode(sent)))

	msgType, data, err := clientConn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, gorillaws.BinaryMessage, msgType)

	require.NoError(t, <-serverErrCh)

	reply, err := wire.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, wire.MsgSyncStep2, reply.Type)
	assert.Equal(t, uint64(7), reply.Clock)

	assert.Equal(t, wire.MsgSyncStep1, serverEnv.Type)
	assert.Equal(t, peerID, serverEnv.PeerID)
	assert.Equal(t, []byte("state-vector"), serverEnv.Payload)
}

func TestRecvRejectsTextFrame(t *testing.T) {
	up := NewUpgrader(DefaultConfig())
	resultCh := make(chan error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r)
		if err != nil {
			resultCh <- err
			return
		}
		defer conn.Close()
		_, err = conn.Recv()
		resultCh <- err
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer clientConn.Close()

	require.NoError(t, clientConn.WriteMessage(gorillaws.TextMessage, []byte("not a binary envelope")))
	err = <-resultCh
	assert.Error(t, err)
}
