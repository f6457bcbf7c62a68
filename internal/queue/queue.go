// Package queue implements the client-side offline buffer: a bounded,
// ordered FIFO of outbound messages held while a client is disconnected
// from the server, replayed in order the moment it reconnects.
package queue

import (
	"errors"
	"sync"
)

// ErrConnectionClosed is returned by Enqueue once the queue has reached its
// capacity — an offline client has a hard bound on how much unsent state it
// will hold, rather than growing without limit.
var ErrConnectionClosed = errors.New("queue: connection closed, offline queue is full")

// Entry is one buffered (clock, payload) pair awaiting replay.
type Entry struct {
	Clock   uint64
	Payload []byte
}

// Queue is a bounded FIFO of Entry values.
type Queue struct {
	mu       sync.Mutex
	capacity int
	entries  []Entry
}

// New creates a Queue bounded at capacity entries. A non-positive capacity
// falls back to a sane default rather than an unbounded queue.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	return &Queue{capacity: capacity}
}

// Enqueue appends (clock, payload) to the queue, returning
// ErrConnectionClosed if the queue is already at capacity.
func (q *Queue) Enqueue(clock uint64, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) >= q.capacity {
		return ErrConnectionClosed
	}
	q.entries = append(q.entries, Entry{Clock: clock, Payload: payload})
	return nil
}

// Len reports how many entries are currently buffered.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// IsFull reports whether the queue is at capacity.
func (q *Queue) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries) >= q.capacity
}

// Drain returns every buffered entry in enqueue order and empties the
// queue — the replay-on-reconnect step a caller runs once its connection
// comes back.
func (q *Queue) Drain() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.entries
	q.entries = nil
	return out
}
