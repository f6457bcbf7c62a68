package store

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/s2"
)

// lengthPrefixSize is the 4-byte original-size prefix this module requires
// on every compressed DOCUMENTS/DELTAS value.
const lengthPrefixSize = 4

// compress encodes b with S2 (a fast block compressor from the same family
// as Snappy, chosen for decompression throughput rather than ratio) and
// prepends the original length so the reader never needs to guess a
// destination buffer size.
func compress(b []byte) []byte {
	var prefix [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(b)))
	encoded := s2.Encode(nil, b)
	out := make([]byte, 0, lengthPrefixSize+len(encoded))
	out = append(out, prefix[:]...)
	out = append(out, encoded...)
	return out
}

// decompress is the inverse of compress. A length mismatch or a corrupt S2
// stream both surface as ErrDataCorruption to the caller.
func decompress(b []byte) ([]byte, error) {
	if len(b) < lengthPrefixSize {
		return nil, fmt.Errorf("%w: value shorter than length prefix", ErrDataCorruption)
	}
	originalLen := binary.BigEndian.Uint32(b[:lengthPrefixSize])
	decoded, err := s2.Decode(make([]byte, 0, originalLen), b[lengthPrefixSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataCorruption, err)
	}
	if uint32(len(decoded)) != originalLen {
		return nil, fmt.Errorf("%w: decompressed length mismatch", ErrDataCorruption)
	}
	return decoded, nil
}
