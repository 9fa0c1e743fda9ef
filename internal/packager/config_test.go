package packager

import (
	"math"
	"testing"
)

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{
		"fmp4": FormatFMP4, "MP4": FormatFMP4, "cmaf": FormatFMP4,
		"ts": FormatTS, " mpegts ": FormatTS,
	} {
		got, err := ParseOutputFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseOutputFormat(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseOutputFormat("webm"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestParseTrackType(t *testing.T) {
	if got, err := ParseTrackType("Video"); err != nil || got != TrackVideo {
		t.Errorf("ParseTrackType(Video) = %v, %v", got, err)
	}
	if got, err := ParseTrackType("audio"); err != nil || got != TrackAudio {
		t.Errorf("ParseTrackType(audio) = %v, %v", got, err)
	}
	if _, err := ParseTrackType("audio+video"); err == nil {
		t.Error("expected error for multiplexed track type")
	}
}

func TestOutputFormat_Extension(t *testing.T) {
	if FormatFMP4.Extension() != ".m4s" || FormatTS.Extension() != ".ts" {
		t.Errorf("extensions: %q %q", FormatFMP4.Extension(), FormatTS.Extension())
	}
}

func TestLiveConfig_Validate(t *testing.T) {
	valid := LiveConfig{Format: FormatTS, TrackType: TrackAudio, SegmentDurationSec: 2.5}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	for name, cfg := range map[string]LiveConfig{
		"zero_duration":     {Format: FormatFMP4, TrackType: TrackVideo},
		"negative_duration": {Format: FormatFMP4, TrackType: TrackVideo, SegmentDurationSec: -5},
		"inf_duration":      {Format: FormatFMP4, TrackType: TrackVideo, SegmentDurationSec: math.Inf(1)},
		"bad_format":        {Format: OutputFormat(7), TrackType: TrackVideo, SegmentDurationSec: 5},
		"bad_track":         {Format: FormatFMP4, TrackType: TrackType(3), SegmentDurationSec: 5},
	} {
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
