package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/collabmesh/collabd/internal/replica"
	"github.com/collabmesh/collabd/internal/room"
	"github.com/collabmesh/collabd/internal/wire"
)

// Session is one connection's view of the collaboration protocol: it owns
// the Handshake → Joined → Exchange → Leaving → Closed state machine,
// holds the document it joined and a reference to that document's shared
// Replica, and the room subscription it reads broadcasts from.
//
// A Session serializes its own state: HandleEnvelope and Leave hold the
// same mutex, matching the single-reader-goroutine-per-connection shape a
// real transport gives this engine.
type Session struct {
	engine      *Engine
	peerID      uuid.UUID
	displayName string
	sender      Sender

	mu      sync.Mutex
	state   State
	docID   uuid.UUID
	replica replica.Replica
	sub     *room.Subscription
}

// PeerID returns this session's peer identifier.
func (s *Session) PeerID() uuid.UUID { return s.peerID }

// State reports the session's current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscription returns the room subscription this session reads broadcasts
// from, once the handshake has completed. Returns nil before that.
func (s *Session) Subscription() *room.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub
}

func (s *Session) transitionLocked(next State) error {
	if !s.state.canTransitionTo(next) {
		return &ErrIllegalTransition{From: s.state, To: next}
	}
	s.state = next
	return nil
}

// HandleEnvelope dispatches one inbound envelope according to the
// session's current state. The first message must be a PeerJoined — every
// other message type is rejected with ErrUnexpectedMessage until the
// handshake completes.
func (s *Session) HandleEnvelope(ctx context.Context, env wire.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateHandshake:
		return s.handleHandshakeLocked(ctx, env)
	case StateJoined:
		if err := s.transitionLocked(StateExchange); err != nil {
			return err
		}
		return s.handleExchangeLocked(ctx, env)
	case StateExchange:
		return s.handleExchangeLocked(ctx, env)
	default:
		return ErrSessionClosed
	}
}

// handleHandshakeLocked is triggered by the peer's inbound PeerJoined
// envelope: it extracts (peer_id, doc_id, peer_info) from the envelope —
// peer_id and doc_id from the header, peer_info decoded from the payload,
// degrading to an "Anonymous" placeholder if that payload doesn't decode —
// then joins the room and replies with SyncStep2.
func (s *Session) handleHandshakeLocked(ctx context.Context, env wire.Envelope) error {
	if env.Type != wire.MsgPeerJoined {
		return ErrUnexpectedMessage
	}

	peerID := env.PeerID
	docID := env.DocID

	info, err := wire.DecodePeerInfo(env.Payload)
	if err != nil {
		info = wire.PeerInfo{PeerID: peerID, DisplayName: "Anonymous", Color: wire.DeriveColor(peerID)}
	}

	r, err := s.engine.loadReplica(ctx, docID)
	if err != nil {
		return fmt.Errorf("session: load replica: %w", err)
	}
	s.peerID = peerID
	s.docID = docID
	s.replica = r
	s.displayName = info.DisplayName

	clock := s.engine.NextDeltaVersion()
	reply := wire.Envelope{
		Type:    wire.MsgSyncStep2,
		PeerID:  peerID,
		DocID:   docID,
		Clock:   clock,
		Payload: r.Diff(nil),
	}
	if err := s.sender.Send(ctx, reply); err != nil {
		return fmt.Errorf("session: send sync step2: %w", err)
	}

	rm := s.engine.rooms.GetOrCreate(docID)
	s.sub = rm.AddPeer(peerID)

	joined := wire.Envelope{
		Type:    wire.MsgPeerJoined,
		PeerID:  peerID,
		DocID:   docID,
		Clock:   clock,
		Payload: wire.EncodePeerInfo(info),
	}
	rm.Broadcast(peerID, wire.Encode(joined))

	if err := s.transitionLocked(StateJoined); err != nil {
		return err
	}
	s.engine.logger.Info("peer joined", "peer_id", peerID, "doc_id", docID, "display_name", info.DisplayName)
	return nil
}

func (s *Session) handleExchangeLocked(ctx context.Context, env wire.Envelope) error {
	if env.DocID != s.docID {
		return ErrWrongDocument
	}

	switch env.Type {
	case wire.MsgDelta:
		return s.handleDeltaLocked(ctx, env)
	case wire.MsgAwareness:
		return s.handleAwarenessLocked(ctx, env)
	case wire.MsgPing:
		return s.handlePingLocked(ctx, env)
	case wire.MsgPong:
		return nil
	default:
		return ErrUnexpectedMessage
	}
}

func (s *Session) handleDeltaLocked(ctx context.Context, env wire.Envelope) error {
	if err := s.replica.ApplyUpdate(env.Payload); err != nil {
		return fmt.Errorf("session: apply delta: %w", err)
	}

	version := s.engine.NextDeltaVersion()
	if _, err := s.engine.store.StoreDelta(ctx, s.docID, version, env.Payload); err != nil {
		return fmt.Errorf("session: persist delta: %w", err)
	}
	s.engine.appendWAL(ctx, s.docID, env.Payload)

	out := wire.Envelope{Type: wire.MsgDelta, PeerID: s.peerID, DocID: s.docID, Clock: version, Payload: env.Payload}
	if rm, ok := s.engine.rooms.Room(s.docID); ok {
		rm.Broadcast(s.peerID, wire.Encode(out))
	}
	return nil
}

func (s *Session) handleAwarenessLocked(ctx context.Context, env wire.Envelope) error {
	if _, err := wire.AwarenessOf(env); err != nil {
		return fmt.Errorf("session: decode awareness: %w", err)
	}
	if rm, ok := s.engine.rooms.Room(s.docID); ok {
		rm.Broadcast(s.peerID, wire.Encode(env))
	}
	return nil
}

func (s *Session) handlePingLocked(ctx context.Context, env wire.Envelope) error {
	pong := wire.Envelope{Type: wire.MsgPong, PeerID: s.peerID, DocID: s.docID, Clock: env.Clock}
	return s.sender.Send(ctx, pong)
}

// Leave evicts the session from its room, broadcasts PeerLeft to whoever
// remains, and — if that leaves the room empty — hands the document off to
// the engine's room-GC path (final snapshot write, delta compaction,
// in-memory replica eviction). Safe to call more than once; the second
// call is a no-op.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil
	}
	if err := s.transitionLocked(StateLeaving); err != nil {
		return err
	}

	if rm, ok := s.engine.rooms.Room(s.docID); ok {
		rm.RemovePeer(s.peerID)
		left := wire.Envelope{
			Type:   wire.MsgPeerLeft,
			PeerID: s.peerID,
			DocID:  s.docID,
			Clock:  s.engine.NextDeltaVersion(),
		}
		rm.Broadcast(s.peerID, wire.Encode(left))
	}
	s.engine.releaseReplicaIfEmpty(ctx, s.docID)

	return s.transitionLocked(StateClosed)
}
