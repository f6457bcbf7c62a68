package replica

import (
	"encoding/binary"
	"errors"
)

// ErrEmptyUpdate is returned by Opaque.ApplyUpdate for a nil or empty update.
var ErrEmptyUpdate = errors.New("replica: update must not be empty")

func encodeCount(n int) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	return b[:]
}

func decodeCount(b []byte) int {
	if len(b) != 8 {
		return -1
	}
	return int(binary.BigEndian.Uint64(b))
}

// ErrTruncatedBatch is returned by SplitBatch when data ends mid-entry.
var ErrTruncatedBatch = errors.New("replica: truncated batch")

// SplitBatch reverses the length-prefixed concatenation Opaque.Diff
// produces, yielding the individual updates a caller should feed to
// ApplyUpdate one at a time.
func SplitBatch(data []byte) ([][]byte, error) {
	var out [][]byte
	for len(data) > 0 {
		if len(data) < 8 {
			return nil, ErrTruncatedBatch
		}
		n := binary.BigEndian.Uint64(data[:8])
		data = data[8:]
		if uint64(len(data)) < n {
			return nil, ErrTruncatedBatch
		}
		out = append(out, data[:n])
		data = data[n:]
	}
	return out, nil
}
