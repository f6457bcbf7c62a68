package wal

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrLogClosed is returned by every append call once Close has run.
var ErrLogClosed = errors.New("wal: log is closed")

type state int

const (
	stateOpen state = iota
	stateClosed
)

// Config tunes the in-memory buffering policy: how many entries or bytes
// accumulate before an append reports needsFlush, and how long buffered
// entries may sit unflushed before a caller polling NeedsSync should force
// one out-of-band.
type Config struct {
	FlushEntries int
	FlushBytes   int
	SyncInterval time.Duration
}

// DefaultConfig mirrors a write-ahead log's usual defaults in spirit
// (sync-heavy, small batches) scaled for an in-memory staging buffer rather
// than a full BadgerDB-backed journal.
func DefaultConfig() Config {
	return Config{
		FlushEntries: 64,
		FlushBytes:   1 << 20,
		SyncInterval: 500 * time.Millisecond,
	}
}

// Log is the write-ahead log's in-memory buffering layer: callers append
// delta, snapshot, or checkpoint entries and get back the
// sequence number assigned to each, plus whether the buffer has now
// crossed a flush threshold. Flush drains the buffer for the caller to
// persist durably — typically via store.Store.WalAppendAt, keyed on each
// entry's own Sequence, so the store and this buffer always agree on the
// next number to hand out (seeded at Open from store.Store.NextWALSequence).
type Log struct {
	cfg Config

	mu         sync.Mutex
	state      state
	nextSeq    uint64
	buffer     []Entry
	bufferSize int
	lastFlush  time.Time
}

// Open starts a Log whose sequence counter begins at startSeq.
func Open(startSeq uint64, cfg Config) *Log {
	return &Log{
		cfg:       cfg,
		state:     stateOpen,
		nextSeq:   startSeq,
		lastFlush: time.Now(),
	}
}

func (l *Log) append(t EntryType, docID uuid.UUID, payload []byte) (uint64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == stateClosed {
		return 0, false, ErrLogClosed
	}

	seq := l.nextSeq
	l.nextSeq++

	e := Entry{
		Sequence: seq,
		Type:     t,
		DocID:    docID,
		Payload:  payload,
		Checksum: checksum(seq, t, docID, payload),
	}
	l.buffer = append(l.buffer, e)
	l.bufferSize += len(payload)

	needsFlush := len(l.buffer) >= l.cfg.FlushEntries || l.bufferSize >= l.cfg.FlushBytes
	return seq, needsFlush, nil
}

// AppendDelta buffers a delta entry for docID.
func (l *Log) AppendDelta(docID uuid.UUID, payload []byte) (uint64, bool, error) {
	return l.append(EntryDelta, docID, payload)
}

// AppendSnapshot buffers a full-state snapshot entry for docID.
func (l *Log) AppendSnapshot(docID uuid.UUID, payload []byte) (uint64, bool, error) {
	return l.append(EntrySnapshot, docID, payload)
}

// AppendCheckpoint buffers a checkpoint marker for docID. Checkpoints carry
// no payload; they exist so recovery can tell where compaction is safe.
func (l *Log) AppendCheckpoint(docID uuid.UUID) (uint64, bool, error) {
	return l.append(EntryCheckpoint, docID, nil)
}

// Flush drains every buffered entry and resets the flush clock. The caller
// owns durably persisting each returned entry (keyed on its Sequence)
// before it is safe to forget — Flush itself never touches a backing store.
func (l *Log) Flush() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	drained := l.buffer
	l.buffer = nil
	l.bufferSize = 0
	l.lastFlush = time.Now()
	return drained
}

// NeedsSync reports whether SyncInterval has elapsed since the last Flush
// while entries remain buffered. A caller polling this on a timer catches
// low-traffic periods in which the shared buffer, holding entries for all
// documents, never crosses its size/count threshold on its own.
func (l *Log) NeedsSync() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buffer) == 0 {
		return false
	}
	return time.Since(l.lastFlush) >= l.cfg.SyncInterval
}

// Close transitions the log to Closed and returns any entries still
// buffered for a final flush. Every append call after Close returns
// ErrLogClosed.
func (l *Log) Close() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	drained := l.buffer
	l.buffer = nil
	l.bufferSize = 0
	l.state = stateClosed
	return drained
}

// IsClosed reports whether Close has run.
func (l *Log) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == stateClosed
}

// PendingCount reports how many entries are currently buffered, awaiting a
// Flush — used by a caller deciding whether NeedsSync is worth checking at
// all.
func (l *Log) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffer)
}
