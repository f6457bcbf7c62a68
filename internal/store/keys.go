package store

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Badger holds a single flat keyspace; the four logical "columns"
// (DOCUMENTS, DELTAS, METADATA, WAL) are carved out of it with a one-byte
// prefix each, the same translation the original Rust crate
// performs from RocksDB column families onto rocksdb's own column-family
// API (logos-collab/src/storage/rocks.rs) — here there is no native CF
// concept in badger, so a prefix stands in for it.
type column byte

const (
	columnDocuments column = 'D'
	columnDeltas    column = 'L'
	columnMetadata  column = 'M'
	columnWAL       column = 'W'
)

func documentKey(docID uuid.UUID) []byte {
	k := make([]byte, 1+16)
	k[0] = byte(columnDocuments)
	copy(k[1:], docID[:])
	return k
}

func metadataKey(docID uuid.UUID) []byte {
	k := make([]byte, 1+16)
	k[0] = byte(columnMetadata)
	copy(k[1:], docID[:])
	return k
}

// deltaKey lays out doc_id[16] ‖ version[8,BE] after the column prefix so
// that a forward scan from deltaPrefix(docID) yields ascending versions
// (the delta key layout).
func deltaKey(docID uuid.UUID, version uint64) []byte {
	k := make([]byte, 1+16+8)
	k[0] = byte(columnDeltas)
	copy(k[1:17], docID[:])
	binary.BigEndian.PutUint64(k[17:25], version)
	return k
}

func deltaPrefix(docID uuid.UUID) []byte {
	k := make([]byte, 1+16)
	k[0] = byte(columnDeltas)
	copy(k[1:], docID[:])
	return k
}

func walKey(seq uint64) []byte {
	k := make([]byte, 1+8)
	k[0] = byte(columnWAL)
	binary.BigEndian.PutUint64(k[1:], seq)
	return k
}

var walColumnPrefix = []byte{byte(columnWAL)}
var documentsColumnPrefix = []byte{byte(columnDocuments)}
var metadataColumnPrefix = []byte{byte(columnMetadata)}
var deltasColumnPrefix = []byte{byte(columnDeltas)}

func deltaVersionFromKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k[17:25])
}

func walSeqFromKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k[1:9])
}

func docIDFromDeltaKey(k []byte) (id uuid.UUID) {
	copy(id[:], k[1:17])
	return id
}
