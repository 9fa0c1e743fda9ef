package packager

import (
	"fmt"
	"math"
	"strings"
)

// OutputFormat is the output container family.
type OutputFormat int

const (
	// FormatFMP4 produces fragmented MP4 with a separate init segment.
	FormatFMP4 OutputFormat = iota
	// FormatTS produces MPEG-TS segments with no init segment.
	FormatTS
)

func (f OutputFormat) String() string {
	switch f {
	case FormatFMP4:
		return "fmp4"
	case FormatTS:
		return "ts"
	default:
		return fmt.Sprintf("OutputFormat(%d)", int(f))
	}
}

// Extension returns the media segment file extension for f.
func (f OutputFormat) Extension() string {
	if f == FormatTS {
		return ".ts"
	}
	return ".m4s"
}

// ParseOutputFormat accepts "fmp4" (or "mp4", "cmaf") and "ts" (or "mpegts").
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fmp4", "mp4", "cmaf":
		return FormatFMP4, nil
	case "ts", "mpegts":
		return FormatTS, nil
	}
	return 0, fmt.Errorf("unknown output format %q", s)
}

// TrackType is the single media kind carried by a session.
type TrackType int

const (
	TrackVideo TrackType = iota
	TrackAudio
)

func (t TrackType) String() string {
	switch t {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	default:
		return fmt.Sprintf("TrackType(%d)", int(t))
	}
}

// ParseTrackType accepts "video" and "audio".
func ParseTrackType(s string) (TrackType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "video":
		return TrackVideo, nil
	case "audio":
		return TrackAudio, nil
	}
	return 0, fmt.Errorf("unknown track type %q", s)
}

// LiveConfig describes one packaging session. It is fixed at construction.
type LiveConfig struct {
	Format             OutputFormat
	TrackType          TrackType
	SegmentDurationSec float64
}

// Validate reports configuration values the engine would reject.
func (c LiveConfig) Validate() error {
	if c.Format != FormatFMP4 && c.Format != FormatTS {
		return fmt.Errorf("invalid output format %v", c.Format)
	}
	if c.TrackType != TrackVideo && c.TrackType != TrackAudio {
		return fmt.Errorf("invalid track type %v", c.TrackType)
	}
	if math.IsNaN(c.SegmentDurationSec) || math.IsInf(c.SegmentDurationSec, 0) || c.SegmentDurationSec <= 0 {
		return fmt.Errorf("segment duration %v must be a positive number of seconds", c.SegmentDurationSec)
	}
	return nil
}
