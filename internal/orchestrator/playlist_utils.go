package orchestrator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// initSegmentURI is the playlist-relative URI of a rendition's init segment.
const initSegmentURI = "init.mp4"

// BuildLivePlaylist converts segments (ordered by sequence ascending) into an
// HLS live playlist. A non-empty mapURI adds #EXT-X-MAP and raises the
// version to 7 as fMP4 segments require. If ended is true, #EXT-X-ENDLIST is
// appended. No segments give a minimal playlist with media sequence 0.
func BuildLivePlaylist(segments []Segment, ended bool, mapURI string) string {
	var b strings.Builder

	version := 3
	if mapURI != "" {
		version = 7
	}
	b.WriteString("#EXTM3U\n")
	fmt.Fprintf(&b, "#EXT-X-VERSION:%d\n", version)

	if len(segments) == 0 {
		b.WriteString("#EXT-X-TARGETDURATION:1\n")
		b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
		if ended {
			b.WriteString("#EXT-X-ENDLIST\n")
		}
		return b.String()
	}

	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", targetDurationFromSegments(segments))
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", segments[0].Sequence)
	if mapURI != "" {
		fmt.Fprintf(&b, "#EXT-X-MAP:URI=%q\n", mapURI)
	}
	b.WriteString("\n")

	for _, seg := range segments {
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n", seg.Duration)
		b.WriteString(seg.Path)
		b.WriteString("\n")
	}

	if ended {
		b.WriteString("#EXT-X-ENDLIST\n")
	}
	return b.String()
}

// targetDurationFromSegments returns the HLS #EXT-X-TARGETDURATION value:
// the ceiling of the maximum segment duration in seconds (integer).
func targetDurationFromSegments(segments []Segment) int {
	max := 0.0
	for _, seg := range segments {
		if seg.Duration > max {
			max = seg.Duration
		}
	}
	if max <= 0 {
		return 1
	}
	return int(math.Ceil(max))
}

// segmentName returns the file name of a packaged segment, e.g. "0042.m4s".
func segmentName(sequence int64, ext string) string {
	return fmt.Sprintf("%04d%s", sequence, ext)
}

// parseSegmentName is the inverse of segmentName.
func parseSegmentName(name, ext string) (int64, bool) {
	digits, ok := strings.CutSuffix(name, ext)
	if !ok || digits == "" {
		return 0, false
	}
	seq, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}
