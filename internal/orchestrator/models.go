package orchestrator

import (
	"sync"
	"time"

	"live-packager/internal/packager"
)

// StreamID uniquely identifies a live stream.
type StreamID string

// RenditionID identifies one rendition of a stream (e.g. "720p", "audio-en").
// Each rendition carries a single track and owns one packaging session.
type RenditionID string

// Segment is one packaged media segment. The JSON form is the metadata
// returned to the ingest client; the payload is served separately.
type Segment struct {
	Sequence int64   `json:"sequence"`
	Duration float64 `json:"duration"`
	Path     string  `json:"path"`
	Size     int     `json:"size"`

	Data       []byte    `json:"-"`
	ReceivedAt time.Time `json:"-"`
}

// RenditionState holds all in-memory state for one rendition of a stream.
type RenditionState struct {
	ID     RenditionID
	Config packager.LiveConfig

	// Packager is created with the first input init segment.
	Packager *packager.LivePackager

	// InputInit is the most recent input init segment; OutputInit is the
	// first init segment the packager produced (fMP4 only).
	InputInit  []byte
	OutputInit []byte

	// Segments are keyed by sequence. Sequences start at 1 and only
	// successful ingests consume one, so the playlist has no gaps.
	Segments     map[int64]Segment
	LastSequence int64
	Ended        bool

	// ingest serializes package-and-record so sequence numbers follow
	// packager call order.
	ingest sync.Mutex
}

// StreamState is the top-level in-memory representation of a live stream.
type StreamState struct {
	ID         StreamID
	Renditions map[RenditionID]*RenditionState
	Ended      bool
	CreatedAt  time.Time
}

// RenditionSnapshot is a consistent copy of a rendition's playlist state.
type RenditionSnapshot struct {
	Config   packager.LiveConfig
	Segments []Segment
	HasInit  bool
	Ended    bool
}
