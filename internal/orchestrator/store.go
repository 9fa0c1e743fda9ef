package orchestrator

import "sort"

// Store is the persistence abstraction for stream state. Implementations are
// not required to be safe for concurrent use; the Repository serializes
// access.
type Store interface {
	GetStream(id StreamID) (*StreamState, bool)
	SetStream(s *StreamState)
	DeleteStream(id StreamID) bool
	ListStreamIDs() []StreamID
}

// InMemoryStore keeps streams in a map.
type InMemoryStore struct {
	streams map[StreamID]*StreamState
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{streams: make(map[StreamID]*StreamState)}
}

// GetStream implements Store.GetStream.
func (s *InMemoryStore) GetStream(id StreamID) (*StreamState, bool) {
	st, ok := s.streams[id]
	return st, ok
}

// SetStream implements Store.SetStream.
func (s *InMemoryStore) SetStream(st *StreamState) {
	s.streams[st.ID] = st
}

// DeleteStream implements Store.DeleteStream. It reports whether the stream
// existed.
func (s *InMemoryStore) DeleteStream(id StreamID) bool {
	if _, ok := s.streams[id]; !ok {
		return false
	}
	delete(s.streams, id)
	return true
}

// ListStreamIDs implements Store.ListStreamIDs. IDs are sorted.
func (s *InMemoryStore) ListStreamIDs() []StreamID {
	ids := make([]StreamID, 0, len(s.streams))
	for id := range s.streams {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
