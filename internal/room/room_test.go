package room

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddPeerAndBroadcastDeliversInOrder(t *testing.T) {
	docID := uuid.New()
	r := New(docID, 8, nil)
	peerID := uuid.New()
	sub := r.AddPeer(peerID)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		r.Broadcast(uuid.Nil, []byte{byte(i)})
	}

	for i := 0; i < 5; i++ {
		payload, err := sub.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, payload, "broadcast fan-out preserves send order per peer")
	}
}

func TestBroadcastSuppressesSender(t *testing.T) {
	docID := uuid.New()
	r := New(docID, 8, nil)
	sender := uuid.New()
	other := uuid.New()

	senderSub := r.AddPeer(sender)
	otherSub := r.AddPeer(other)

	r.Broadcast(sender, []byte("delta"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := senderSub.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "a peer never receives its own broadcast")

	payload, err := otherSub.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("delta"), payload)
}

func TestRemovePeerClosesSubscription(t *testing.T) {
	docID := uuid.New()
	r := New(docID, 4, nil)
	peerID := uuid.New()
	sub := r.AddPeer(peerID)

	r.RemovePeer(peerID)
	assert.False(t, r.HasPeer(peerID))

	_, err := sub.Recv(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}

type recordingRecorder struct {
	broadcasts int
	lastPeers  int
	lags       []uint64
}

func (r *recordingRecorder) ObserveBroadcast(docID uuid.UUID, peerCount int) {
	r.broadcasts++
	r.lastPeers = peerCount
}

func (r *recordingRecorder) ObserveLag(docID uuid.UUID, skipped uint64) {
	r.lags = append(r.lags, skipped)
}

// TestLaggedConsumerSignal exercises the "Lagged consumer" scenario:
// a peer whose inbound buffer is too small for a burst of broadcasts sees a
// LaggedError reporting how many messages it missed, then resumes reading
// whatever is left in its buffer — it is never silently desynced.
func TestLaggedConsumerSignal(t *testing.T) {
	docID := uuid.New()
	rec := &recordingRecorder{}
	r := New(docID, 2, rec)
	slowPeer := uuid.New()
	sub := r.AddPeer(slowPeer)

	for i := 0; i < 5; i++ {
		r.Broadcast(uuid.Nil, []byte{byte(i)})
	}

	ctx := context.Background()
	_, err := sub.Recv(ctx)
	var lagged *LaggedError
	require.Error(t, err)
	require.True(t, errors.As(err, &lagged))
	assert.Equal(t, uint64(3), lagged.Skipped, "buffer of 2 holding messages {3,4} means {0,1,2} were dropped")
	require.Len(t, rec.lags, 1)
	assert.Equal(t, uint64(3), rec.lags[0])

	remaining := make([][]byte, 0, 2)
	for i := 0; i < 2; i++ {
		payload, err := sub.Recv(ctx)
		require.NoError(t, err)
		remaining = append(remaining, payload)
	}
	assert.Equal(t, [][]byte{{3}, {4}}, remaining)
}

func TestRecorderObservesBroadcastFanout(t *testing.T) {
	docID := uuid.New()
	rec := &recordingRecorder{}
	r := New(docID, 4, rec)
	r.AddPeer(uuid.New())
	r.AddPeer(uuid.New())

	r.Broadcast(uuid.Nil, []byte("x"))
	assert.Equal(t, 1, rec.broadcasts)
	assert.Equal(t, 2, rec.lastPeers)
}

// TestStatsTracksSentAndDropped exercises the occupancy/throughput contract
// a room's Stats reports: active peers, cumulative messages delivered, and
// cumulative messages dropped to backpressure.
func TestStatsTracksSentAndDropped(t *testing.T) {
	docID := uuid.New()
	r := New(docID, 2, nil)
	slowPeer := uuid.New()
	r.AddPeer(slowPeer)

	for i := 0; i < 5; i++ {
		r.Broadcast(uuid.Nil, []byte{byte(i)})
	}

	stats := r.Stats()
	assert.Equal(t, docID, stats.DocID)
	assert.Equal(t, 1, stats.ActivePeers)
	assert.Equal(t, uint64(5), stats.MessagesSent, "every one of the 5 broadcasts was enqueued, even ones later evicted")
	assert.Equal(t, uint64(3), stats.MessagesDropped, "3 of those enqueued messages were evicted to make room for a newer one")
}

func TestManagerGetOrCreateReusesRoom(t *testing.T) {
	m := NewManager(8, nil)
	docID := uuid.New()

	r1 := m.GetOrCreate(docID)
	r2 := m.GetOrCreate(docID)
	assert.Same(t, r1, r2)
	assert.Equal(t, 1, m.RoomCount())
}

func TestManagerRemoveIfEmpty(t *testing.T) {
	m := NewManager(8, nil)
	docID := uuid.New()
	r := m.GetOrCreate(docID)
	peerID := uuid.New()
	r.AddPeer(peerID)

	assert.False(t, m.RemoveIfEmpty(docID), "room still has a peer")
	r.RemovePeer(peerID)
	assert.True(t, m.RemoveIfEmpty(docID))

	_, ok := m.Room(docID)
	assert.False(t, ok)
}

func TestManagerActiveDocuments(t *testing.T) {
	m := NewManager(8, nil)
	a, b := uuid.New(), uuid.New()
	m.GetOrCreate(a)
	m.GetOrCreate(b)

	assert.ElementsMatch(t, []uuid.UUID{a, b}, m.ActiveDocuments())
}
