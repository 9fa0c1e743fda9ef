package packager

import (
	"strconv"
	"strings"

	"live-packager/internal/vfile"
)

// inputSource serves a FullSegment buffer as a sequential byte stream.
// Each Package call gets a fresh one, so reads always start at offset 0.
type inputSource struct {
	buf []byte
	pos int
}

func newInputSource(in *FullSegment) *inputSource {
	return &inputSource{buf: in.Buffer()}
}

// read copies min(len(p), remaining) bytes and advances the cursor.
// It returns 0 once the buffer is exhausted.
func (s *inputSource) read(_ string, p []byte) (int, error) {
	n := copy(p, s.buf[s.pos:])
	s.pos += n
	return n, nil
}

// outputSink collects one run's output. The data region is the ordered
// concatenation of every media write. The init region is the first
// non-empty init write; later init writes are dropped, since the engine
// may deliver the init segment more than once per run. lastNumber is the
// highest segment number seen in media write names.
type outputSink struct {
	init         []byte
	initCaptured bool
	data         []byte
	writes       int
	lastNumber   uint64
}

func (s *outputSink) writeData(name string, p []byte) (int, error) {
	s.data = append(s.data, p...)
	s.writes++
	if n, ok := segmentNumber(name); ok && n > s.lastNumber {
		s.lastNumber = n
	}
	return len(p), nil
}

// segmentNumber returns the number of an expanded segment name such as
// "12.m4s".
func segmentNumber(name string) (uint64, bool) {
	digits, _, _ := strings.Cut(name, ".")
	n, err := strconv.ParseUint(digits, 10, 64)
	return n, err == nil
}

func (s *outputSink) writeInit(_ string, p []byte) (int, error) {
	if !s.initCaptured && len(p) > 0 {
		s.init = append([]byte(nil), p...)
		s.initCaptured = true
	}
	return len(p), nil
}

// fullSegment assembles the collected output.
func (s *outputSink) fullSegment() *FullSegment {
	return NewFullSegment(s.init, s.data)
}

// bridge is the per-call virtual I/O context: one input source and one
// output sink, exposed to the engine as callback parameters.
type bridge struct {
	in   *inputSource
	out  *outputSink
	data *vfile.CallbackParams
	init *vfile.CallbackParams
}

func newBridge(in *FullSegment) *bridge {
	b := &bridge{
		in:  newInputSource(in),
		out: &outputSink{},
	}
	b.data = &vfile.CallbackParams{
		Read:  b.in.read,
		Write: b.out.writeData,
	}
	b.init = &vfile.CallbackParams{
		Write: b.out.writeInit,
	}
	return b
}
