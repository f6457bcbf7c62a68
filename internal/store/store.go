// Package store implements the persistence engine: a
// column-segmented key/value store over BadgerDB holding snapshots,
// compressed deltas, per-document metadata, and the write-ahead log's
// durable tail.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/collabmesh/collabd/internal/store/badger"
)

// VersionedDelta pairs a delta's version with its decompressed bytes, as
// returned by LoadDeltasSince.
type VersionedDelta struct {
	Version uint64
	Payload []byte
}

// WALRow is one decoded entry from the WAL column, as returned by
// WalReadSince.
type WALRow struct {
	Seq     uint64
	DocID   uuid.UUID
	Payload []byte
}

// Recorder observes the outcome of a storage operation for instrumentation.
// op is one of the op* constants below. A Store with no Recorder
// configured (the default) runs with no observability hooks at all.
type Recorder interface {
	ObserveStoreOp(op string, err error)
}

// Storage operation names reported to a configured Recorder.
const (
	opStoreDelta    = "store_delta"
	opLoadDeltas    = "load_deltas"
	opSaveSnapshot  = "save_snapshot"
	opLoadSnapshot  = "load_snapshot"
	opCompactDeltas = "compact_deltas"
	opWalAppend     = "wal_append"
)

// Store is the persistence engine. All methods are synchronous; callers
// from concurrent session tasks are expected ("all operations
// are synchronous; callers use them from concurrent tasks").
type Store struct {
	db       *badger.DB
	recorder Recorder

	// nextWALSeq is the process-wide WAL sequence counter, recovered on
	// Open from the highest key in the WAL column ("Sequence
	// recovery").
	nextWALSeq atomic.Uint64
}

// Option configures optional Store behavior at Open time.
type Option func(*Store)

// WithRecorder attaches a Recorder that observes the outcome of the
// operations named by the op* constants (SaveSnapshot, LoadSnapshot,
// StoreDelta, LoadDeltasSince, CompactDeltas, WalAppendAt); the other
// methods report nothing. Used to wire Prometheus counters into the store
// without the store package depending on the metrics package directly.
func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.recorder = r }
}

// Open opens (or creates) a Store backed by a managed badger.DB and
// recovers its WAL sequence counter.
func Open(cfg badger.Config, opts ...Option) (*Store, error) {
	db, err := badger.OpenDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.recoverWALSequence(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// observe reports op's outcome to the configured Recorder, if any.
func (s *Store) observe(op string, err error) {
	if s.recorder != nil {
		s.recorder.ObserveStoreOp(op, err)
	}
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Sync forces durability of all buffered writes.
func (s *Store) Sync() error {
	if err := s.db.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrStorageFailure, err)
	}
	return nil
}

func (s *Store) recoverWALSequence() error {
	var max uint64
	found := false
	err := s.db.View(func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		// Scan the whole WAL column forward and keep the highest sequence
		// seen; recovery runs once per Open, so a full forward scan is
		// simplest and correct.
		for it.Seek(walColumnPrefix); it.ValidForPrefix(walColumnPrefix); it.Next() {
			seq := walSeqFromKey(it.Item().KeyCopy(nil))
			if !found || seq > max {
				max = seq
				found = true
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: WAL sequence recovery: %v", ErrStorageFailure, err)
	}
	if found {
		s.nextWALSeq.Store(max + 1)
	} else {
		s.nextWALSeq.Store(0)
	}
	return nil
}

// now returns the current wall-clock time as Unix milliseconds, the
// timestamp convention metadata.go's DocumentMetadata uses.
func now() int64 {
	return time.Now().UnixMilli()
}

// SaveSnapshot atomically writes the compressed snapshot and bumps
// metadata. The pre-existing delta stream is left intact; callers decide
// when to compact.
func (s *Store) SaveSnapshot(ctx context.Context, docID uuid.UUID, raw []byte) (DocumentMetadata, error) {
	compressed := compress(raw)

	var result DocumentMetadata
	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		meta, err := readMetadata(txn, docID)
		if err != nil && err != ErrNotFound {
			return err
		}
		if err == ErrNotFound {
			meta = DocumentMetadata{DocID: docID, CreatedAtUnix: now()}
		}
		meta.SnapshotSize = int64(len(raw))
		meta.CompressedSize = int64(len(compressed))
		meta.UpdatedAtUnix = now()

		if err := txn.Set(documentKey(docID), compressed); err != nil {
			return err
		}
		encoded, err := encodeMetadata(meta)
		if err != nil {
			return err
		}
		if err := txn.Set(metadataKey(docID), encoded); err != nil {
			return err
		}
		result = meta
		return nil
	})
	if err != nil {
		err = storageErr(err)
	}
	s.observe(opSaveSnapshot, err)
	if err != nil {
		return DocumentMetadata{}, err
	}
	return result, nil
}

// LoadSnapshot returns the most recently saved snapshot for docID, or
// ErrNotFound if none has ever been written.
func (s *Store) LoadSnapshot(ctx context.Context, docID uuid.UUID) ([]byte, error) {
	var out []byte
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(documentKey(docID))
		if err == dgbadger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		decoded, err := decompress(raw)
		if err != nil {
			return err
		}
		out = decoded
		return nil
	})
	if err != nil {
		err = storageErr(err)
	}
	s.observe(opLoadSnapshot, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DocumentExists reports whether a metadata entry exists for docID.
func (s *Store) DocumentExists(ctx context.Context, docID uuid.UUID) (bool, error) {
	exists := false
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		_, err := txn.Get(metadataKey(docID))
		if err == dgbadger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, storageErr(err)
	}
	return exists, nil
}

// StoreDelta atomically writes a compressed delta at the given version and
// bumps metadata (version, delta_count, updated_at). Callers must not reuse
// a version across unrelated deltas; writing the same version twice
// overwrites silently.
func (s *Store) StoreDelta(ctx context.Context, docID uuid.UUID, version uint64, raw []byte) (int, error) {
	compressed := compress(raw)

	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		meta, err := readMetadata(txn, docID)
		if err != nil && err != ErrNotFound {
			return err
		}
		if err == ErrNotFound {
			meta = DocumentMetadata{DocID: docID, CreatedAtUnix: now()}
		}
		if err := txn.Set(deltaKey(docID, version), compressed); err != nil {
			return err
		}
		if version > meta.Version {
			meta.Version = version
		}
		meta.DeltaCount++
		meta.UpdatedAtUnix = now()
		encoded, err := encodeMetadata(meta)
		if err != nil {
			return err
		}
		return txn.Set(metadataKey(docID), encoded)
	})
	if err != nil {
		err = storageErr(err)
	}
	s.observe(opStoreDelta, err)
	if err != nil {
		return 0, err
	}
	return len(compressed), nil
}

// LoadDeltasSince returns every delta with version >= v0, in strictly
// ascending version order — a forward range scan over the delta column's
// big-endian version suffix.
func (s *Store) LoadDeltasSince(ctx context.Context, docID uuid.UUID, v0 uint64) ([]VersionedDelta, error) {
	var out []VersionedDelta
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := deltaPrefix(docID)
		for it.Seek(deltaKey(docID, v0)); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			version := deltaVersionFromKey(item.KeyCopy(nil))
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			decoded, err := decompress(raw)
			if err != nil {
				// A corrupt individual delta is skipped, not fatal to the
				// whole scan; the skip is not logged and no error is
				// returned for it.
				continue
			}
			out = append(out, VersionedDelta{Version: version, Payload: decoded})
		}
		return nil
	})
	if err != nil {
		err = storageErr(err)
	}
	s.observe(opLoadDeltas, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompactDeltas atomically removes every delta with version <= upTo and
// returns how many were removed.
func (s *Store) CompactDeltas(ctx context.Context, docID uuid.UUID, upTo uint64) (int, error) {
	var removed int
	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		prefix := deltaPrefix(docID)

		var toDelete [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if deltaVersionFromKey(key) > upTo {
				break
			}
			toDelete = append(toDelete, key)
		}
		it.Close()

		for _, key := range toDelete {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		meta, err := readMetadata(txn, docID)
		if err != nil && err != ErrNotFound {
			return err
		}
		if err == nil {
			if uint64(len(toDelete)) <= meta.DeltaCount {
				meta.DeltaCount -= uint64(len(toDelete))
			} else {
				meta.DeltaCount = 0
			}
			meta.UpdatedAtUnix = now()
			encoded, err := encodeMetadata(meta)
			if err != nil {
				return err
			}
			if err := txn.Set(metadataKey(docID), encoded); err != nil {
				return err
			}
		}
		removed = len(toDelete)
		return nil
	})
	if err != nil {
		err = storageErr(err)
	}
	s.observe(opCompactDeltas, err)
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// DeleteDocument atomically removes DOCUMENTS, METADATA, and every DELTAS
// row for docID.
func (s *Store) DeleteDocument(ctx context.Context, docID uuid.UUID) error {
	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		if err := txn.Delete(documentKey(docID)); err != nil && err != dgbadger.ErrKeyNotFound {
			return err
		}
		if err := txn.Delete(metadataKey(docID)); err != nil && err != dgbadger.ErrKeyNotFound {
			return err
		}

		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		prefix := deltaPrefix(docID)
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storageErr(err)
	}
	return nil
}

// ListDocuments returns every document with a METADATA entry.
func (s *Store) ListDocuments(ctx context.Context) ([]uuid.UUID, error) {
	var out []uuid.UUID
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(metadataColumnPrefix); it.ValidForPrefix(metadataColumnPrefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			var id uuid.UUID
			copy(id[:], key[1:17])
			out = append(out, id)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return out, nil
}

// WalAppend assigns the next global sequence and writes it, uncompressed,
// in its own transaction. Whether that commit is fsynced follows the
// store's SyncWrites setting: with SyncWrites on, every call is fsynced.
func (s *Store) WalAppend(ctx context.Context, docID uuid.UUID, payload []byte) (uint64, error) {
	seq := s.nextWALSeq.Add(1) - 1
	value := make([]byte, 16+len(payload))
	copy(value[:16], docID[:])
	copy(value[16:], payload)

	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set(walKey(seq), value)
	})
	if err != nil {
		return 0, storageErr(err)
	}
	return seq, nil
}

// NextWALSequence peeks the next sequence number this store would assign,
// without consuming it. A caller that owns its own sequence allocator (the
// write-ahead log in internal/wal) uses this to seed that allocator at
// startup so both agree on the same global counter recovered from the WAL
// column's highest key.
func (s *Store) NextWALSequence() uint64 {
	return s.nextWALSeq.Load()
}

// WalAppendAt writes a WAL row at a caller-assigned sequence number — used
// when an external allocator (internal/wal) already reserved seq via
// NextWALSequence and its own atomic counter, rather than letting the store
// assign one itself as WalAppend does.
func (s *Store) WalAppendAt(ctx context.Context, seq uint64, docID uuid.UUID, payload []byte) error {
	value := make([]byte, 16+len(payload))
	copy(value[:16], docID[:])
	copy(value[16:], payload)

	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set(walKey(seq), value)
	})
	if err != nil {
		err = storageErr(err)
	}
	s.observe(opWalAppend, err)
	if err != nil {
		return err
	}
	// Keep the self-assigning counter from handing out a sequence an
	// external allocator already used.
	for {
		cur := s.nextWALSeq.Load()
		if seq < cur {
			return nil
		}
		if s.nextWALSeq.CompareAndSwap(cur, seq+1) {
			return nil
		}
	}
}

// WalReadSince returns every WAL row with seq >= seq0, in ascending order.
func (s *Store) WalReadSince(ctx context.Context, seq0 uint64) ([]WALRow, error) {
	var out []WALRow
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		it := txn.NewIterator(dgbadger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(walKey(seq0)); it.ValidForPrefix(walColumnPrefix); it.Next() {
			item := it.Item()
			seq := walSeqFromKey(item.KeyCopy(nil))
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if len(value) < 16 {
				continue // corrupt row; skip, do not fail the scan
			}
			var row WALRow
			row.Seq = seq
			copy(row.DocID[:], value[:16])
			row.Payload = append([]byte(nil), value[16:]...)
			out = append(out, row)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return out, nil
}

// WalTruncate removes every WAL row with seq <= upToSeq and returns how
// many were removed.
func (s *Store) WalTruncate(ctx context.Context, upToSeq uint64) (int, error) {
	var removed int
	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var keys [][]byte
		for it.Seek(walColumnPrefix); it.ValidForPrefix(walColumnPrefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if walSeqFromKey(key) > upToSeq {
				break
			}
			keys = append(keys, key)
		}
		it.Close()
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		removed = len(keys)
		return nil
	})
	if err != nil {
		return 0, storageErr(err)
	}
	return removed, nil
}

func readMetadata(txn *dgbadger.Txn, docID uuid.UUID) (DocumentMetadata, error) {
	item, err := txn.Get(metadataKey(docID))
	if err == dgbadger.ErrKeyNotFound {
		return DocumentMetadata{}, ErrNotFound
	}
	if err != nil {
		return DocumentMetadata{}, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return DocumentMetadata{}, err
	}
	return decodeMetadata(raw)
}

// Metadata returns the current metadata record for docID.
func (s *Store) Metadata(ctx context.Context, docID uuid.UUID) (DocumentMetadata, error) {
	var out DocumentMetadata
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		m, err := readMetadata(txn, docID)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return DocumentMetadata{}, storageErr(err)
	}
	return out, nil
}

func storageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDataCorruption) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorageFailure, err)
}
