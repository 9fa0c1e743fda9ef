package orchestrator

import (
	"bytes"
	"errors"

	"github.com/Eyevinn/mp4ff/mp4"
)

var errNoTiming = errors.New("no timing information")

// mediaDuration returns the presentation span in seconds of a fragmented MP4
// media segment, using the timescale from its init segment.
func mediaDuration(init, media []byte) (float64, error) {
	initFile, err := mp4.DecodeFile(bytes.NewReader(init))
	if err != nil {
		return 0, err
	}
	if initFile.Init == nil || initFile.Init.Moov == nil || len(initFile.Init.Moov.Traks) == 0 {
		return 0, errNoTiming
	}
	trak := initFile.Init.Moov.Traks[0]
	timescale := trak.Mdia.Mdhd.Timescale
	if timescale == 0 {
		return 0, errNoTiming
	}

	trex := &mp4.TrexBox{TrackID: trak.Tkhd.TrackID}
	if mvex := initFile.Init.Moov.Mvex; mvex != nil {
		for _, t := range mvex.Trexs {
			if t.TrackID == trak.Tkhd.TrackID {
				trex = t
			}
		}
	}

	mediaFile, err := mp4.DecodeFile(bytes.NewReader(media))
	if err != nil {
		return 0, err
	}

	var (
		first, end uint64
		seen       bool
	)
	for _, seg := range mediaFile.Segments {
		for _, frag := range seg.Fragments {
			samples, err := frag.GetFullSamples(trex)
			if err != nil {
				return 0, err
			}
			for _, s := range samples {
				if !seen || s.DecodeTime < first {
					first = s.DecodeTime
				}
				if e := s.DecodeTime + uint64(s.Dur); e > end {
					end = e
				}
				seen = true
			}
		}
	}
	if !seen {
		return 0, errNoTiming
	}
	return float64(end-first) / float64(timescale), nil
}
