package room

import (
	"sync"

	"github.com/google/uuid"
)

// Manager owns one Room per active document, created on first peer and
// removed once its last peer leaves. The common path (room already exists)
// only ever takes a read lock; creation is the rare path that escalates to
// a write lock.
type Manager struct {
	bufferSize int
	recorder   Recorder

	mu    sync.RWMutex
	rooms map[uuid.UUID]*Room
}

// NewManager creates an empty Manager. bufferSize is the per-peer channel
// capacity every Room it creates will use.
func NewManager(bufferSize int, recorder Recorder) *Manager {
	return &Manager{
		bufferSize: bufferSize,
		recorder:   recorder,
		rooms:      make(map[uuid.UUID]*Room),
	}
}

// GetOrCreate returns the Room for docID, creating it if this is the first
// peer to reference it. Re-checks under the write lock to avoid a duplicate
// room from two callers racing past the read-lock fast path.
func (m *Manager) GetOrCreate(docID uuid.UUID) *Room {
	m.mu.RLock()
	if r, ok := m.rooms[docID]; ok {
		m.mu.RUnlock()
		return r
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[docID]; ok {
		return r
	}
	r := New(docID, m.bufferSize, m.recorder)
	m.rooms[docID] = r
	return r
}

// RemoveIfEmpty deletes the room for docID if it has no peers left,
// reporting whether it did. Called after a peer leaves, so a room's
// lifetime never outlives its last occupant.
func (m *Manager) RemoveIfEmpty(docID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[docID]
	if !ok {
		return false
	}
	if r.PeerCount() > 0 {
		return false
	}
	delete(m.rooms, docID)
	return true
}

// ActiveDocuments lists every document with a live room right now.
func (m *Manager) ActiveDocuments() []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(m.rooms))
	for id := range m.rooms {
		out = append(out, id)
	}
	return out
}

// RoomCount reports how many documents currently have a live room.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Room returns the room for docID if one currently exists, without
// creating it.
func (m *Manager) Room(docID uuid.UUID) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[docID]
	return r, ok
}
