package orchestrator

import (
	"errors"
	"sort"
	"sync"
	"time"

	"live-packager/internal/packager"
)

// Repository defines the concurrency-safe contract for accessing and mutating
// in-memory stream state.
type Repository interface {
	// SetInit stores the input init segment of a rendition, creating the
	// stream and rendition if needed. The packaging session is created with
	// newSession on the first call; later calls only replace the init.
	SetInit(streamID StreamID, renditionID RenditionID, init []byte, newSession func() *packager.LivePackager) error

	// AcquireSession returns the rendition's packaging session and holds its
	// ingest lock until release is called. Callers must call release exactly
	// once when err is nil.
	AcquireSession(streamID StreamID, renditionID RenditionID) (s Session, release func(), err error)

	// RegisterSegment records a packaged segment under the rendition's next
	// sequence number and, the first time one is given, the packaged init
	// segment. It returns the segment with Sequence and Path assigned.
	RegisterSegment(streamID StreamID, renditionID RenditionID, seg Segment, outputInit []byte) (Segment, error)

	// GetRenditionSnapshot returns the rendition's segments sorted by
	// sequence, without payloads. ok is false if the stream or rendition
	// does not exist.
	GetRenditionSnapshot(streamID StreamID, renditionID RenditionID) (snap RenditionSnapshot, ok bool)

	// GetSegment returns a packaged segment including its payload.
	GetSegment(streamID StreamID, renditionID RenditionID, sequence int64) (Segment, error)

	// GetInit returns the packaged init segment of a rendition.
	GetInit(streamID StreamID, renditionID RenditionID) ([]byte, error)

	// EndStream marks a stream and all its renditions as ended. After this,
	// init uploads and new segments for the stream are rejected.
	EndStream(streamID StreamID) error

	// DeleteStream drops a stream and everything it holds. It reports
	// whether the stream existed.
	DeleteStream(streamID StreamID) bool

	// ActiveStreamCount returns the number of streams that are not ended.
	ActiveStreamCount() int
}

// Session is what an ingest needs from a rendition.
type Session struct {
	Packager *packager.LivePackager
	Init     []byte
}

var (
	// ErrStreamEnded is returned when attempting to add to a stream that has
	// already been ended.
	ErrStreamEnded = errors.New("stream has ended")

	// ErrRenditionEnded is returned when attempting to add to a rendition
	// that has already been ended.
	ErrRenditionEnded = errors.New("rendition has ended")

	// ErrRenditionNotFound is returned when the stream or rendition does not
	// exist.
	ErrRenditionNotFound = errors.New("rendition not found")

	// ErrNoInitSegment is returned when a rendition has no init segment yet.
	ErrNoInitSegment = errors.New("no init segment")

	// ErrSegmentNotFound is returned when a segment is not in the store.
	ErrSegmentNotFound = errors.New("segment not found")
)

// InMemoryRepository is a concurrency-safe implementation of Repository over
// a Store; by default an InMemoryStore.
type InMemoryRepository struct {
	mu     sync.RWMutex
	store  Store
	now    func() time.Time
	retain int64
}

// NewInMemoryRepository constructs a new repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store, now: time.Now}
}

// SetRetention bounds the number of packaged segments kept per rendition;
// older segments are dropped as new ones are registered, including any
// already beyond a lowered bound. n <= 0 keeps all.
func (r *InMemoryRepository) SetRetention(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retain = int64(n)
}

// SetInit implements Repository.SetInit.
func (r *InMemoryRepository) SetInit(streamID StreamID, renditionID RenditionID, init []byte, newSession func() *packager.LivePackager) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stream := r.getOrCreateStreamLocked(streamID)
	if stream.Ended {
		return ErrStreamEnded
	}
	rendition := r.getOrCreateRenditionLocked(stream, renditionID)
	if rendition.Ended {
		return ErrRenditionEnded
	}

	if rendition.Packager == nil {
		rendition.Packager = newSession()
		rendition.Config = rendition.Packager.Config()
	}
	rendition.InputInit = append([]byte(nil), init...)
	return nil
}

// AcquireSession implements Repository.AcquireSession.
func (r *InMemoryRepository) AcquireSession(streamID StreamID, renditionID RenditionID) (Session, func(), error) {
	r.mu.RLock()
	rendition, err := r.renditionLocked(streamID, renditionID)
	r.mu.RUnlock()
	if err != nil {
		return Session{}, nil, err
	}

	// Never hold r.mu while waiting on an ingest lock.
	rendition.ingest.Lock()

	r.mu.RLock()
	defer r.mu.RUnlock()

	stream, ok := r.store.GetStream(streamID)
	switch {
	case !ok || stream.Renditions[renditionID] != rendition:
		err = ErrRenditionNotFound
	case stream.Ended:
		err = ErrStreamEnded
	case rendition.Ended:
		err = ErrRenditionEnded
	case rendition.Packager == nil || len(rendition.InputInit) == 0:
		err = ErrNoInitSegment
	}
	if err != nil {
		rendition.ingest.Unlock()
		return Session{}, nil, err
	}

	var once sync.Once
	release := func() { once.Do(rendition.ingest.Unlock) }
	return Session{Packager: rendition.Packager, Init: rendition.InputInit}, release, nil
}

// RegisterSegment implements Repository.RegisterSegment.
func (r *InMemoryRepository) RegisterSegment(streamID StreamID, renditionID RenditionID, seg Segment, outputInit []byte) (Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rendition, err := r.renditionLocked(streamID, renditionID)
	if err != nil {
		return Segment{}, err
	}
	if stream, _ := r.store.GetStream(streamID); stream.Ended {
		return Segment{}, ErrStreamEnded
	}
	if rendition.Ended {
		return Segment{}, ErrRenditionEnded
	}

	if rendition.OutputInit == nil && len(outputInit) > 0 {
		rendition.OutputInit = append([]byte(nil), outputInit...)
	}

	rendition.LastSequence++
	seg.Sequence = rendition.LastSequence
	seg.Path = segmentName(seg.Sequence, rendition.Config.Format.Extension())
	seg.ReceivedAt = r.now().UTC()
	rendition.Segments[seg.Sequence] = seg
	if r.retain > 0 {
		for seq := range rendition.Segments {
			if seq <= seg.Sequence-r.retain {
				delete(rendition.Segments, seq)
			}
		}
	}
	return seg, nil
}

// GetRenditionSnapshot implements Repository.GetRenditionSnapshot.
func (r *InMemoryRepository) GetRenditionSnapshot(streamID StreamID, renditionID RenditionID) (RenditionSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rendition, err := r.renditionLocked(streamID, renditionID)
	if err != nil {
		return RenditionSnapshot{}, false
	}

	snap := RenditionSnapshot{
		Config:  rendition.Config,
		HasInit: rendition.OutputInit != nil,
		Ended:   rendition.Ended,
	}
	if len(rendition.Segments) == 0 {
		return snap, true
	}

	snap.Segments = make([]Segment, 0, len(rendition.Segments))
	for _, seg := range rendition.Segments {
		seg.Data = nil
		snap.Segments = append(snap.Segments, seg)
	}
	sort.Slice(snap.Segments, func(i, j int) bool {
		return snap.Segments[i].Sequence < snap.Segments[j].Sequence
	})
	return snap, true
}

// GetSegment implements Repository.GetSegment.
func (r *InMemoryRepository) GetSegment(streamID StreamID, renditionID RenditionID, sequence int64) (Segment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rendition, err := r.renditionLocked(streamID, renditionID)
	if err != nil {
		return Segment{}, err
	}
	seg, ok := rendition.Segments[sequence]
	if !ok {
		return Segment{}, ErrSegmentNotFound
	}
	return seg, nil
}

// GetInit implements Repository.GetInit.
func (r *InMemoryRepository) GetInit(streamID StreamID, renditionID RenditionID) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rendition, err := r.renditionLocked(streamID, renditionID)
	if err != nil {
		return nil, err
	}
	if rendition.OutputInit == nil {
		return nil, ErrNoInitSegment
	}
	return rendition.OutputInit, nil
}

// EndStream implements Repository.EndStream.
func (r *InMemoryRepository) EndStream(streamID StreamID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stream, exists := r.store.GetStream(streamID)
	if !exists {
		// Treat ending a non-existent stream as a no-op for idempotency.
		return nil
	}
	if stream.Ended {
		return nil
	}

	stream.Ended = true
	for _, rendition := range stream.Renditions {
		rendition.Ended = true
	}
	return nil
}

// DeleteStream implements Repository.DeleteStream.
func (r *InMemoryRepository) DeleteStream(streamID StreamID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.DeleteStream(streamID)
}

// ActiveStreamCount implements Repository.ActiveStreamCount.
func (r *InMemoryRepository) ActiveStreamCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, id := range r.store.ListStreamIDs() {
		if st, ok := r.store.GetStream(id); ok && !st.Ended {
			n++
		}
	}
	return n
}

// renditionLocked looks up an existing rendition. Caller must hold r.mu.
func (r *InMemoryRepository) renditionLocked(streamID StreamID, renditionID RenditionID) (*RenditionState, error) {
	stream, ok := r.store.GetStream(streamID)
	if !ok {
		return nil, ErrRenditionNotFound
	}
	rendition, ok := stream.Renditions[renditionID]
	if !ok {
		return nil, ErrRenditionNotFound
	}
	return rendition, nil
}

// getOrCreateStreamLocked returns an existing stream or creates a new one.
// Caller must hold r.mu in write mode.
func (r *InMemoryRepository) getOrCreateStreamLocked(streamID StreamID) *StreamState {
	if stream, ok := r.store.GetStream(streamID); ok {
		return stream
	}

	stream := &StreamState{
		ID:         streamID,
		Renditions: make(map[RenditionID]*RenditionState),
		CreatedAt:  r.now().UTC(),
	}
	r.store.SetStream(stream)
	return stream
}

// getOrCreateRenditionLocked returns an existing rendition or creates a new one.
// Caller must hold r.mu in write mode.
func (r *InMemoryRepository) getOrCreateRenditionLocked(stream *StreamState, renditionID RenditionID) *RenditionState {
	if rendition, ok := stream.Renditions[renditionID]; ok {
		return rendition
	}

	rendition := &RenditionState{
		ID:       renditionID,
		Segments: make(map[int64]Segment),
	}
	stream.Renditions[renditionID] = rendition
	return rendition
}
