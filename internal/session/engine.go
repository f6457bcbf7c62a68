// Package session implements the per-connection state machine that turns
// wire envelopes into room broadcasts and persistence-store writes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/collabmesh/collabd/internal/replica"
	"github.com/collabmesh/collabd/internal/room"
	"github.com/collabmesh/collabd/internal/store"
	"github.com/collabmesh/collabd/internal/wal"
	"github.com/collabmesh/collabd/internal/wire"
)

// Sender is how a Session writes an outbound envelope back to its own
// connection — Ping replies and the initial SyncStep2 never go through the
// room fabric, only direct-to-sender.
type Sender interface {
	Send(ctx context.Context, env wire.Envelope) error
}

// ReplicaFactory constructs a fresh, empty Replica for a document the
// engine has not seen yet. Swap this to wire in a real CRDT implementation;
// the default produces replica.Opaque.
type ReplicaFactory func() replica.Replica

// Engine creates sessions and holds the shared state they coordinate
// through: the room manager, the persistence store, an optional
// write-ahead log, and one in-memory Replica per currently-open document.
// A process runs exactly one Engine.
type Engine struct {
	rooms          *room.Manager
	store          *store.Store
	wal            *wal.Log
	replicaFactory ReplicaFactory
	logger         *slog.Logger

	deltaVersion atomic.Uint64

	mu   sync.Mutex
	docs map[uuid.UUID]replica.Replica
}

// NewEngine wires together a room manager and persistence store. Every
// accepted delta is written to the store with StoreDelta; walLog, when
// non-nil, additionally buffers each delta as a WAL entry. walLog may be
// nil, in which case no WAL entries are written.
func NewEngine(rooms *room.Manager, st *store.Store, walLog *wal.Log, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		rooms:          rooms,
		store:          st,
		wal:            walLog,
		replicaFactory: func() replica.Replica { return replica.NewOpaque() },
		logger:         logger,
		docs:           make(map[uuid.UUID]replica.Replica),
	}
}

// SetReplicaFactory overrides how the engine constructs a Replica for a
// document it hasn't loaded yet. Must be called before any session joins.
func (e *Engine) SetReplicaFactory(f ReplicaFactory) {
	e.replicaFactory = f
}

// NextDeltaVersion hands out the next value of the engine-wide monotonic
// delta counter, used both to stamp outgoing envelopes' Clock field and as
// the per-document delta version stored alongside each payload.
func (e *Engine) NextDeltaVersion() uint64 {
	return e.deltaVersion.Add(1)
}

// NewSession creates a fresh session for peerID, starting in StateHandshake.
func (e *Engine) NewSession(peerID uuid.UUID, displayName string, sender Sender) *Session {
	return &Session{
		engine:      e,
		peerID:      peerID,
		displayName: displayName,
		sender:      sender,
		state:       StateHandshake,
	}
}

// PreloadAll loads every document the store knows about into memory before
// the server starts accepting connections — recovery on startup: a peer
// joining a pre-existing document never waits on its own connection for
// on-demand re-hydration, because loadReplica has already cached it.
func (e *Engine) PreloadAll(ctx context.Context) error {
	docIDs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("session: list documents: %w", err)
	}
	for _, docID := range docIDs {
		if _, err := e.loadReplica(ctx, docID); err != nil {
			return fmt.Errorf("session: preload %s: %w", docID, err)
		}
	}
	return nil
}

// loadReplica returns the in-memory Replica for docID, constructing and
// preloading it from the persistence store the first time it's referenced —
// either eagerly via PreloadAll at startup, or lazily here if a peer joins a
// document PreloadAll somehow missed (e.g. one created after the process
// started enumerating the store).
func (e *Engine) loadReplica(ctx context.Context, docID uuid.UUID) (replica.Replica, error) {
	e.mu.Lock()
	if r, ok := e.docs[docID]; ok {
		e.mu.Unlock()
		return r, nil
	}
	e.mu.Unlock()

	r := e.replicaFactory()

	snap, err := e.store.LoadSnapshot(ctx, docID)
	switch {
	case err == nil:
		if updates, splitErr := replica.SplitBatch(snap); splitErr == nil {
			for _, u := range updates {
				if len(u) == 0 {
					continue
				}
				if applyErr := r.ApplyUpdate(u); applyErr != nil {
					e.logger.Warn("preload: snapshot update rejected", "doc_id", docID, "error", applyErr)
				}
			}
		} else {
			e.logger.Warn("preload: snapshot did not parse as a batch, treating as a single update", "doc_id", docID)
			if len(snap) > 0 {
				_ = r.ApplyUpdate(snap)
			}
		}
	case errors.Is(err, store.ErrNotFound):
		// No snapshot yet — a brand new document.
	default:
		return nil, fmt.Errorf("session: load snapshot: %w", err)
	}

	deltas, err := e.store.LoadDeltasSince(ctx, docID, 0)
	if err != nil {
		return nil, fmt.Errorf("session: load deltas: %w", err)
	}
	for _, d := range deltas {
		if applyErr := r.ApplyUpdate(d.Payload); applyErr != nil {
			e.logger.Warn("preload: delta rejected", "doc_id", docID, "version", d.Version, "error", applyErr)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.docs[docID]; ok {
		return existing, nil
	}
	e.docs[docID] = r
	return r, nil
}

// releaseReplicaIfEmpty is the "room GC with snapshot write" path: once the
// last peer of a document leaves, its room is torn down, the current
// replica state is flushed to a fresh snapshot, older deltas are
// compacted away, and the in-memory replica is dropped so the next peer to
// join reloads it from that snapshot rather than holding it forever.
func (e *Engine) releaseReplicaIfEmpty(ctx context.Context, docID uuid.UUID) {
	if !e.rooms.RemoveIfEmpty(docID) {
		return
	}

	e.mu.Lock()
	r, ok := e.docs[docID]
	if ok {
		delete(e.docs, docID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	snapshot := r.Diff(nil)
	if _, err := e.store.SaveSnapshot(ctx, docID, snapshot); err != nil {
		e.logger.Error("room gc: snapshot write failed", "doc_id", docID, "error", err)
		return
	}

	meta, err := e.store.Metadata(ctx, docID)
	if err != nil {
		return
	}
	if _, err := e.store.CompactDeltas(ctx, docID, meta.Version); err != nil {
		e.logger.Warn("room gc: delta compaction failed", "doc_id", docID, "error", err)
	}
}

// appendWAL buffers a delta through the write-ahead log, if one is
// configured, flushing it to the store the moment the buffer crosses its
// threshold.
func (e *Engine) appendWAL(ctx context.Context, docID uuid.UUID, payload []byte) {
	if e.wal == nil {
		return
	}
	_, needsFlush, err := e.wal.AppendDelta(docID, payload)
	if err != nil {
		e.logger.Warn("wal append failed", "doc_id", docID, "error", err)
		return
	}
	if needsFlush {
		e.FlushWAL(ctx)
	}
}

// FlushWAL drains the write-ahead log's buffer and persists every entry to
// the store. Safe to call with a nil wal (a no-op) or with nothing
// buffered. A caller typically drives this off wal.Log.NeedsSync on a
// timer in addition to the threshold-triggered flush inside appendWAL.
func (e *Engine) FlushWAL(ctx context.Context) {
	if e.wal == nil {
		return
	}
	for _, entry := range e.wal.Flush() {
		if err := e.store.WalAppendAt(ctx, entry.Sequence, entry.DocID, entry.Persist()); err != nil {
			e.logger.Error("wal flush: persist failed", "seq", entry.Sequence, "error", err)
		}
	}
}

// Close drains any remaining buffered WAL entries to the store. It does
// not close the store or room manager — those outlive a single Engine
// instance in tests and are owned by whoever constructed them.
func (e *Engine) Close(ctx context.Context) {
	if e.wal == nil {
		return
	}
	for _, entry := range e.wal.Close() {
		if err := e.store.WalAppendAt(ctx, entry.Sequence, entry.DocID, entry.Persist()); err != nil {
			e.logger.Error("wal close: persist failed", "seq", entry.Sequence, "error", err)
		}
	}
}
