// Package room implements the broadcast fan-out fabric each collaborative
// document uses to relay deltas, awareness updates, and presence changes to
// every other connected peer: one Room per document, holding one bounded
// channel per peer.
package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrSubscriptionClosed is returned by Subscription.Recv once the peer has
// been removed from its room.
var ErrSubscriptionClosed = errors.New("room: subscription closed")

// LaggedError reports that a subscriber's inbound buffer filled and the
// fabric dropped the oldest queued message to make room for a new one — the
// Go analogue of tokio::sync::broadcast::Receiver's RecvError::Lagged(n).
// A session reading this should treat its view of the room as having
// skipped Skipped messages, not as a fatal error.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("room: consumer lagged, skipped %d message(s)", e.Skipped)
}

// Recorder observes room activity for external metrics. The zero value
// (nil) is valid on every Room and simply records nothing.
type Recorder interface {
	ObserveBroadcast(docID uuid.UUID, peerCount int)
	ObserveLag(docID uuid.UUID, skipped uint64)
}

type peer struct {
	ch      chan []byte
	dropped atomic.Uint64
}

// Subscription is a peer's read handle on a Room.
type Subscription struct {
	peerID   uuid.UUID
	docID    uuid.UUID
	p        *peer
	recorder Recorder
}

// Recv blocks until a message is available, the subscription's room removes
// this peer, or ctx is cancelled. If the fabric dropped messages for this
// peer since the last Recv, the first call after the drop returns a
// *LaggedError instead of a payload — the caller decides how to recover
// (typically: resync from the replica's state vector).
func (s *Subscription) Recv(ctx context.Context) ([]byte, error) {
	if n := s.p.dropped.Swap(0); n > 0 {
		if s.recorder != nil {
			s.recorder.ObserveLag(s.docID, n)
		}
		return nil, &LaggedError{Skipped: n}
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case payload, ok := <-s.p.ch:
		if !ok {
			return nil, ErrSubscriptionClosed
		}
		return payload, nil
	}
}

// PeerID returns the peer this subscription was created for.
func (s *Subscription) PeerID() uuid.UUID { return s.peerID }

// Room is the broadcast fabric for a single document: every connected peer
// gets its own bounded inbound channel, fed by Broadcast with a shared
// (unsliced, unmodified) byte payload — zero-copy fan-out, since no peer's
// delivery path re-encodes or re-allocates the envelope bytes.
type Room struct {
	docID      uuid.UUID
	bufferSize int
	recorder   Recorder

	sentTotal    atomic.Uint64
	droppedTotal atomic.Uint64

	mu    sync.RWMutex
	peers map[uuid.UUID]*peer
}

// New creates a Room for docID. bufferSize bounds each peer's inbound
// channel; a slow peer never backs up a fast one, it only loses its own
// oldest undelivered messages (see LaggedError).
func New(docID uuid.UUID, bufferSize int, recorder Recorder) *Room {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &Room{
		docID:      docID,
		bufferSize: bufferSize,
		recorder:   recorder,
		peers:      make(map[uuid.UUID]*peer),
	}
}

// DocID returns the document this room fans out for.
func (r *Room) DocID() uuid.UUID { return r.docID }

// AddPeer registers peerID and returns its read subscription. Adding the
// same peerID twice replaces its previous channel (the old subscription's
// Recv starts returning ErrSubscriptionClosed).
func (r *Room) AddPeer(peerID uuid.UUID) *Subscription {
	p := &peer{ch: make(chan []byte, r.bufferSize)}

	r.mu.Lock()
	if old, ok := r.peers[peerID]; ok {
		close(old.ch)
	}
	r.peers[peerID] = p
	r.mu.Unlock()

	return &Subscription{peerID: peerID, docID: r.docID, p: p, recorder: r.recorder}
}

// RemovePeer unregisters peerID and closes its channel, unblocking any
// pending Recv with ErrSubscriptionClosed. A no-op if peerID is not present.
func (r *Room) RemovePeer(peerID uuid.UUID) {
	r.mu.Lock()
	p, ok := r.peers[peerID]
	if ok {
		delete(r.peers, peerID)
	}
	r.mu.Unlock()

	if ok {
		close(p.ch)
	}
}

// HasPeer reports whether peerID currently holds a subscription.
func (r *Room) HasPeer(peerID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.peers[peerID]
	return ok
}

// PeerCount reports the number of currently connected peers.
func (r *Room) PeerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Peers returns a snapshot of currently connected peer IDs.
func (r *Room) Peers() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(r.peers))
	for id := range r.peers {
		out = append(out, id)
	}
	return out
}

// Broadcast fans payload out to every peer in the room except excludeID —
// the session sending a delta never wants its own broadcast echoed back.
// Pass uuid.Nil to exclude nobody.
func (r *Room) Broadcast(excludeID uuid.UUID, payload []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for id, p := range r.peers {
		if id == excludeID {
			continue
		}
		r.deliver(p, payload)
		delivered++
	}
	if r.recorder != nil {
		r.recorder.ObserveBroadcast(r.docID, delivered)
	}
}

// deliver sends payload to p's channel, dropping the oldest queued message
// and recording the drop if the channel is full. This favors newest state
// over perfect delivery — the right tradeoff for a CRDT delta stream, where
// a later delta already subsumes an earlier one a slow peer never saw.
func (r *Room) deliver(p *peer, payload []byte) {
	select {
	case p.ch <- payload:
		r.sentTotal.Add(1)
		return
	default:
	}

	select {
	case <-p.ch:
		p.dropped.Add(1)
		r.droppedTotal.Add(1)
	default:
	}

	select {
	case p.ch <- payload:
		r.sentTotal.Add(1)
	default:
		// The channel refilled before we could re-send (a concurrent
		// Recv raced us); count this message as dropped too rather
		// than retry indefinitely.
		p.dropped.Add(1)
		r.droppedTotal.Add(1)
	}
}

// Stats is a point-in-time snapshot of a room's occupancy and throughput.
type Stats struct {
	DocID           uuid.UUID
	ActivePeers     int
	MessagesSent    uint64
	MessagesDropped uint64
}

// Stats reports the room's current occupancy plus its cumulative delivered
// and dropped message counts.
func (r *Room) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		DocID:           r.docID,
		ActivePeers:     len(r.peers),
		MessagesSent:    r.sentTotal.Load(),
		MessagesDropped: r.droppedTotal.Load(),
	}
}
