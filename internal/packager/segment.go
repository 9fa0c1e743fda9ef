package packager

import (
	"os"
)

// Segment is one immutable media blob: an init segment or a media segment.
type Segment struct {
	data           []byte
	sequenceNumber uint64
}

// NewSegment copies data into a new Segment.
func NewSegment(data []byte) Segment {
	return Segment{data: append([]byte(nil), data...)}
}

// ReadSegmentFile reads a whole file into a Segment.
func ReadSegmentFile(name string) (Segment, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return Segment{}, err
	}
	return Segment{data: data}, nil
}

// Data returns the segment bytes. Callers must not modify them.
func (s Segment) Data() []byte { return s.data }

// Size returns the segment length in bytes.
func (s Segment) Size() int { return len(s.data) }

// SequenceNumber returns the number assigned by SetSequenceNumber.
func (s Segment) SequenceNumber() uint64 { return s.sequenceNumber }

// SetSequenceNumber tags the segment with n.
func (s *Segment) SetSequenceNumber(n uint64) { s.sequenceNumber = n }

// FullSegment is one contiguous buffer holding an init region followed by a
// data region. Region sizes are derived from the stored boundary, so they
// always add up to the buffer length.
type FullSegment struct {
	buf      []byte
	initSize int
}

// NewFullSegment returns a FullSegment holding copies of init and data.
func NewFullSegment(init, data []byte) *FullSegment {
	fs := &FullSegment{}
	fs.SetInitSegment(init)
	fs.AppendData(data)
	return fs
}

// SetInitSegment discards all content and makes init the init region.
// Slices returned by earlier accessor calls keep their old contents.
func (fs *FullSegment) SetInitSegment(init []byte) {
	fs.buf = append([]byte(nil), init...)
	fs.initSize = len(init)
}

// AppendData grows the data region by data.
func (fs *FullSegment) AppendData(data []byte) {
	fs.buf = append(fs.buf, data...)
}

// Accessor slices are capped at their region's end, so appending to one
// reallocates instead of writing into the next region or into later data.

// Buffer returns the whole buffer, init region first.
func (fs *FullSegment) Buffer() []byte { return fs.buf[:len(fs.buf):len(fs.buf)] }

// InitSegment returns the init region.
func (fs *FullSegment) InitSegment() []byte { return fs.buf[:fs.initSize:fs.initSize] }

// Segment returns the data region.
func (fs *FullSegment) Segment() []byte { return fs.buf[fs.initSize:len(fs.buf):len(fs.buf)] }

// InitSize returns the length of the init region.
func (fs *FullSegment) InitSize() int { return fs.initSize }

// SegmentSize returns the length of the data region.
func (fs *FullSegment) SegmentSize() int { return len(fs.buf) - fs.initSize }

// Size returns the total buffer length.
func (fs *FullSegment) Size() int { return len(fs.buf) }
