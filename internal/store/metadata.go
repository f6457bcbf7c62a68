package store

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/google/uuid"
)

// DocumentMetadata tracks a document's durable bookkeeping: its highest
// stored delta version, how many deltas have been written (net of
// compaction), and the most recent snapshot's sizes.
type DocumentMetadata struct {
	DocID          uuid.UUID
	Version        uint64
	DeltaCount     uint64
	SnapshotSize   int64
	CompressedSize int64
	CreatedAtUnix  int64 // milliseconds, matching the original's int64-timestamp convention
	UpdatedAtUnix  int64
}

// encodeMetadata serializes m with gob — a deterministic, self-describing
// format, and the same gob encoding a prior journal implementation
// uses for its own on-disk records.
func encodeMetadata(m DocumentMetadata) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("store: encode metadata: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeMetadata(b []byte) (DocumentMetadata, error) {
	var m DocumentMetadata
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&m); err != nil {
		return DocumentMetadata{}, fmt.Errorf("%w: metadata decode: %v", ErrDataCorruption, err)
	}
	return m, nil
}
