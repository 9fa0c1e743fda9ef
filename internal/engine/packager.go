package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path"
	"strconv"
	"strings"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/bluenviron/mediacommon/pkg/codecs/mpeg4audio"
)

type outputFormat int

const (
	formatFMP4 outputFormat = iota
	formatTS
)

func (f outputFormat) String() string {
	if f == formatTS {
		return "ts"
	}
	return "fmp4"
}

// Packager is the default Engine. It demuxes a single-track fragmented MP4
// input with mp4ff and remuxes it into fMP4 or MPEG-TS segments.
type Packager struct {
	log *slog.Logger

	params      PackagingParams
	desc        StreamDescriptor
	format      outputFormat
	initialized bool
}

// New returns an uninitialized Packager. If log is nil, slog.Default() is used.
func New(log *slog.Logger) *Packager {
	if log == nil {
		log = slog.Default()
	}
	return &Packager{log: log.With("component", "engine")}
}

// NewFactory returns a Factory producing Packagers that share log.
func NewFactory(log *slog.Logger) Factory {
	return func() Engine { return New(log) }
}

// Initialize implements Engine.Initialize.
func (p *Packager) Initialize(params PackagingParams, descriptors []StreamDescriptor) error {
	if math.IsNaN(params.SegmentDuration) || math.IsInf(params.SegmentDuration, 0) || params.SegmentDuration <= 0 {
		return fmt.Errorf("%w: segment duration %v must be a positive number of seconds", ErrInvalidParams, params.SegmentDuration)
	}
	if len(descriptors) != 1 {
		return fmt.Errorf("%w: expected exactly one stream descriptor, got %d", ErrInvalidDescriptor, len(descriptors))
	}

	d := descriptors[0]
	if d.StreamSelector != SelectorVideo && d.StreamSelector != SelectorAudio {
		return fmt.Errorf("%w: unknown stream selector %q", ErrInvalidDescriptor, d.StreamSelector)
	}
	if d.Input.IsZero() {
		return fmt.Errorf("%w: input is not bound", ErrInvalidDescriptor)
	}
	if d.SegmentTemplate.IsZero() {
		return fmt.Errorf("%w: segment template is not bound", ErrInvalidDescriptor)
	}
	if !strings.Contains(d.SegmentTemplate.Name(), TemplateNumber) {
		return fmt.Errorf("%w: segment template %q has no %s", ErrInvalidDescriptor, d.SegmentTemplate.Name(), TemplateNumber)
	}

	switch ext := path.Ext(d.SegmentTemplate.Name()); ext {
	case ".ts":
		p.format = formatTS
		if !d.Output.IsZero() {
			return fmt.Errorf("%w: MPEG-TS output has no init segment", ErrInvalidDescriptor)
		}
	case ".m4s", ".mp4":
		p.format = formatFMP4
	default:
		return fmt.Errorf("%w: unknown segment extension %q", ErrInvalidDescriptor, ext)
	}

	p.params = params
	p.desc = d
	p.initialized = true
	return nil
}

// Run implements Engine.Run. It reads the whole input, then writes the init
// segment (fMP4 only) followed by every output segment in order.
func (p *Packager) Run(ctx context.Context) error {
	if !p.initialized {
		return ErrNotInitialized
	}

	raw, err := io.ReadAll(p.desc.Input.Reader())
	if err != nil {
		return fmt.Errorf("read input %q: %w", p.desc.Input.Name(), err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty input", ErrUnsupportedInput)
	}

	f, err := mp4.DecodeFile(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: decode: %w", ErrUnsupportedInput, err)
	}
	if !f.IsFragmented() || f.Init == nil || f.Init.Moov == nil {
		return fmt.Errorf("%w: input is not a fragmented mp4", ErrUnsupportedInput)
	}

	trk, err := selectTrack(f.Init, p.desc.StreamSelector)
	if err != nil {
		return err
	}

	samples, err := collectSamples(ctx, f, trk)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return ErrNoSamples
	}

	target := uint64(p.params.SegmentDuration * float64(trk.timescale))
	segments := splitSegments(samples, target, trk.kind == SelectorAudio)

	p.log.Debug("packaging run",
		slog.String("format", p.format.String()),
		slog.String("track", trk.kind),
		slog.Int("samples", len(samples)),
		slog.Int("segments", len(segments)),
		slog.Uint64("first_segment", p.params.SegmentNumber))

	if p.format == formatTS {
		return p.writeTS(ctx, trk, segments)
	}
	return p.writeFMP4(f.Init, trk, segments)
}

func (p *Packager) segmentName(number uint64) string {
	return strings.ReplaceAll(p.desc.SegmentTemplate.Name(), TemplateNumber, strconv.FormatUint(number, 10))
}

// track is the subset of the input track needed for remuxing.
type track struct {
	id        uint32
	timescale uint32
	kind      string
	sps       [][]byte
	pps       [][]byte
	aac       *mpeg4audio.Config
}

func selectTrack(init *mp4.InitSegment, selector string) (*track, error) {
	traks := init.Moov.Traks
	if len(traks) == 0 {
		return nil, fmt.Errorf("%w: init segment has no tracks", ErrUnsupportedInput)
	}
	if len(traks) > 1 {
		return nil, fmt.Errorf("%w: multiplexed input with %d tracks", ErrUnsupportedInput, len(traks))
	}

	trak := traks[0]
	handler := trak.Mdia.Hdlr.HandlerType
	want := "vide"
	if selector == SelectorAudio {
		want = "soun"
	}
	if handler != want {
		return nil, fmt.Errorf("%w: selector %q, input handler %q", ErrTrackNotFound, selector, handler)
	}

	t := &track{
		id:        trak.Tkhd.TrackID,
		timescale: trak.Mdia.Mdhd.Timescale,
		kind:      selector,
	}
	if t.timescale == 0 {
		return nil, fmt.Errorf("%w: track %d has zero timescale", ErrUnsupportedInput, t.id)
	}

	stsd := trak.Mdia.Minf.Stbl.Stsd
	switch selector {
	case SelectorVideo:
		if stsd.AvcX != nil && stsd.AvcX.AvcC != nil {
			t.sps = stsd.AvcX.AvcC.SPSnalus
			t.pps = stsd.AvcX.AvcC.PPSnalus
		}
	case SelectorAudio:
		if stsd.Mp4a != nil && stsd.Mp4a.Esds != nil {
			var cfg mpeg4audio.Config
			asc := stsd.Mp4a.Esds.ESDescriptor.DecConfigDescriptor.DecSpecificInfo.DecConfig
			if err := cfg.Unmarshal(asc); err != nil {
				return nil, fmt.Errorf("%w: audio specific config: %w", ErrUnsupportedInput, err)
			}
			t.aac = &cfg
		}
	}
	return t, nil
}

func findTrex(init *mp4.InitSegment, trackID uint32) *mp4.TrexBox {
	if init.Moov.Mvex != nil {
		for _, trex := range init.Moov.Mvex.Trexs {
			if trex.TrackID == trackID {
				return trex
			}
		}
	}
	return &mp4.TrexBox{TrackID: trackID, DefaultSampleDescriptionIndex: 1}
}

func collectSamples(ctx context.Context, f *mp4.File, trk *track) ([]mp4.FullSample, error) {
	trex := findTrex(f.Init, trk.id)

	var out []mp4.FullSample
	for _, seg := range f.Segments {
		for _, frag := range seg.Fragments {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if len(frag.Moof.Trafs) != 1 {
				return nil, fmt.Errorf("%w: fragment with %d track fragments", ErrUnsupportedInput, len(frag.Moof.Trafs))
			}
			if id := frag.Moof.Traf.Tfhd.TrackID; id != trk.id {
				return nil, fmt.Errorf("%w: fragment for track %d, init has track %d", ErrUnsupportedInput, id, trk.id)
			}
			fss, err := frag.GetFullSamples(trex)
			if err != nil {
				return nil, fmt.Errorf("%w: samples: %w", ErrUnsupportedInput, err)
			}
			out = append(out, fss...)
		}
	}
	return out, nil
}

// splitSegments cuts samples into segments of at least target ticks. Cuts
// only happen on sync samples unless every sample is a valid cut point.
func splitSegments(samples []mp4.FullSample, target uint64, cutAnywhere bool) [][]mp4.FullSample {
	var (
		segments [][]mp4.FullSample
		cur      []mp4.FullSample
		start    uint64
	)
	for _, s := range samples {
		if len(cur) > 0 && (cutAnywhere || s.IsSync()) && s.DecodeTime-start >= target {
			segments = append(segments, cur)
			cur = nil
		}
		if len(cur) == 0 {
			start = s.DecodeTime
		}
		cur = append(cur, s)
	}
	if len(cur) > 0 {
		segments = append(segments, cur)
	}
	return segments
}
