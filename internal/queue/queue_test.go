package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueuePreservesOrder(t *testing.T) {
	q := New(4)
	require.NoError(t, q.Enqueue(1, []byte("a")))
	require.NoError(t, q.Enqueue(2, []byte("b")))
	require.NoError(t, q.Enqueue(3, []byte("c")))

	assert.Equal(t, 3, q.Len())
	assert.False(t, q.IsFull())
}

// TestReconnectReplay exercises the "Reconnect replay" scenario: a
// client buffers messages while offline, then drains them in the exact
// order they were enqueued once it reconnects, leaving the queue empty.
func TestReconnectReplay(t *testing.T) {
	q := New(8)
	for clock := uint64(1); clock <= 5; clock++ {
		require.NoError(t, q.Enqueue(clock, []byte{byte(clock)}))
	}

	drained := q.Drain()
	require.Len(t, drained, 5)
	for i, e := range drained {
		assert.Equal(t, uint64(i+1), e.Clock)
		assert.Equal(t, []byte{byte(i + 1)}, e.Payload)
	}
	assert.Equal(t, 0, q.Len(), "drain empties the queue")
}

func TestEnqueueReturnsConnectionClosedWhenFull(t *testing.T) {
	q := New(2)
	require.NoError(t, q.Enqueue(1, []byte("a")))
	require.NoError(t, q.Enqueue(2, []byte("b")))

	err := q.Enqueue(3, []byte("c"))
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.True(t, q.IsFull())
	assert.Equal(t, 2, q.Len())
}

func TestDrainOnEmptyQueueReturnsNothing(t *testing.T) {
	q := New(4)
	assert.Empty(t, q.Drain())
}

func TestDefaultReconnectPolicy(t *testing.T) {
	p := DefaultReconnectPolicy()
	assert.Equal(t, 500*time.Millisecond, p.InitialBackoff)
	assert.Equal(t, 30*time.Second, p.MaxBackoff)
	assert.Equal(t, 2.0, p.BackoffFactor)
}

func TestNextDelayGrowsAndCaps(t *testing.T) {
	p := ReconnectPolicy{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     1 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0,
	}

	assert.Equal(t, 100*time.Millisecond, p.NextDelay(1))
	assert.Equal(t, 200*time.Millisecond, p.NextDelay(2))
	assert.Equal(t, 400*time.Millisecond, p.NextDelay(3))
	assert.Equal(t, 800*time.Millisecond, p.NextDelay(4))
	assert.Equal(t, 1*time.Second, p.NextDelay(5), "capped at MaxBackoff")
	assert.Equal(t, 1*time.Second, p.NextDelay(20), "stays capped for later attempts")
}

func TestNextDelayJitterStaysWithinBounds(t *testing.T) {
	p := ReconnectPolicy{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0.2,
	}

	for i := 0; i < 50; i++ {
		d := p.NextDelay(1)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}

func TestNextDelayTreatsNonPositiveAttemptAsFirst(t *testing.T) {
	p := ReconnectPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffFactor: 2, JitterFactor: 0}
	assert.Equal(t, p.NextDelay(1), p.NextDelay(0))
	assert.Equal(t, p.NextDelay(1), p.NextDelay(-5))
}
