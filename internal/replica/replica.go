// Package replica defines the narrow interface the session engine and
// persistence store need from whatever CRDT implementation backs a
// document. The merge algebra itself is out of scope here — the server is
// authoritative over storage and fan-out, never over what a delta means.
package replica

import (
	"bytes"
	"sync"
)

// Replica is the contract a real CRDT document implementation would
// satisfy. StateVector summarizes what this replica has already seen, in a
// format only the CRDT implementation understands; Diff computes the
// updates a peer holding stateVector is missing; ApplyUpdate merges a
// remote update into local state.
type Replica interface {
	StateVector() []byte
	ApplyUpdate(update []byte) error
	Diff(stateVector []byte) []byte
}

// Opaque is a minimal Replica sufficient to exercise the session engine and
// persistence store without implementing real CRDT merge semantics: it
// treats every applied update as an opaque, append-only log entry and its
// "state vector" as simply how many entries it has seen. Diff against an
// older state vector replays the entries the caller hasn't seen yet, which
// is enough to drive sync handshakes and delta broadcast in tests without
// pretending to understand the bytes it is relaying.
type Opaque struct {
	mu      sync.Mutex
	updates [][]byte
}

// NewOpaque returns an empty Opaque replica.
func NewOpaque() *Opaque {
	return &Opaque{}
}

// StateVector encodes the number of updates applied so far as an 8-byte
// big-endian count — opaque to any other Replica implementation, and only
// ever compared against another Opaque's own encoding.
func (o *Opaque) StateVector() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	return encodeCount(len(o.updates))
}

// ApplyUpdate appends update to the replica's log. A nil or empty update is
// rejected — there is nothing to merge.
func (o *Opaque) ApplyUpdate(update []byte) error {
	if len(update) == 0 {
		return ErrEmptyUpdate
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updates = append(o.updates, append([]byte(nil), update...))
	return nil
}

// Diff returns every update applied after the point stateVector encodes,
// concatenated with a length prefix per entry so the caller can split them
// back into discrete updates. An unparseable or out-of-range state vector
// is treated as "peer has seen nothing" — the safest fallback, since it
// over-shares rather than silently drops state.
func (o *Opaque) Diff(stateVector []byte) []byte {
	o.mu.Lock()
	defer o.mu.Unlock()

	from := decodeCount(stateVector)
	if from < 0 || from > len(o.updates) {
		from = 0
	}

	var buf bytes.Buffer
	for _, u := range o.updates[from:] {
		buf.Write(encodeCount(len(u)))
		buf.Write(u)
	}
	return buf.Bytes()
}

// Len reports how many updates this replica has applied — test/debug only.
func (o *Opaque) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.updates)
}
