package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/google/uuid"
)

// EntryType distinguishes the three kinds of record the write-ahead log
// carries. A checkpoint marks that a snapshot elsewhere in the store makes
// every delta before it redundant; it carries no payload of its own.
type EntryType byte

const (
	EntryDelta EntryType = iota + 1
	EntrySnapshot
	EntryCheckpoint
)

func (t EntryType) String() string {
	switch t {
	case EntryDelta:
		return "delta"
	case EntrySnapshot:
		return "snapshot"
	case EntryCheckpoint:
		return "checkpoint"
	default:
		return "unknown"
	}
}

// Entry is one write-ahead log record: sequence, entry type, the document
// it belongs to, its payload, and a checksum guarding all of the above.
// Sequence is also the key the persistence store files this record under;
// encode/decode only carry Type, DocID, Checksum, and Payload, since the
// store's own WAL column already keys on Sequence.
type Entry struct {
	Sequence uint64
	Type     EntryType
	DocID    uuid.UUID
	Payload  []byte
	Checksum uint32
}

// encode lays out type[1] ‖ doc_id[16] ‖ checksum[4,BE] ‖ payload. The
// checksum covers (sequence, type, doc_id, payload) — the same crc32.IEEE
// polynomial the persistence layer's journal uses, computed over a fixed
// binary layout here instead of a gob-encoded blob.
func (e Entry) encode() []byte {
	sum := checksum(e.Sequence, e.Type, e.DocID, e.Payload)
	out := make([]byte, 1+16+4+len(e.Payload))
	out[0] = byte(e.Type)
	copy(out[1:17], e.DocID[:])
	binary.BigEndian.PutUint32(out[17:21], sum)
	copy(out[21:], e.Payload)
	return out
}

func checksum(seq uint64, t EntryType, docID uuid.UUID, payload []byte) uint32 {
	h := crc32.NewIEEE()
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	h.Write(seqBuf[:])
	h.Write([]byte{byte(t)})
	h.Write(docID[:])
	h.Write(payload)
	return h.Sum32()
}

// decode parses a record previously produced by encode, given the sequence
// number it was stored under, and verifies its checksum. A checksum
// mismatch or truncated record is reported as an error, never panics —
// recovery treats this as "skip one entry", not "abort the log".
func decode(seq uint64, raw []byte) (Entry, error) {
	const minLen = 1 + 16 + 4
	if len(raw) < minLen {
		return Entry{}, fmt.Errorf("wal: entry %d shorter than header (%d bytes)", seq, len(raw))
	}

	e := Entry{Sequence: seq, Type: EntryType(raw[0])}
	copy(e.DocID[:], raw[1:17])
	storedSum := binary.BigEndian.Uint32(raw[17:21])
	e.Payload = append([]byte(nil), raw[minLen:]...)
	e.Checksum = storedSum

	if computed := checksum(seq, e.Type, e.DocID, e.Payload); computed != storedSum {
		return Entry{}, fmt.Errorf("wal: entry %d checksum mismatch: stored=%08x computed=%08x", seq, storedSum, computed)
	}
	return e, nil
}
