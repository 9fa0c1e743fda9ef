package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"live-packager/internal/engine"
	"live-packager/internal/packager"
	"live-packager/internal/platform/metrics"
)

// DefaultWindowSize is the default number of segments in the sliding window.
const DefaultWindowSize = 6

// ErrInvalidConfig is returned when rendition overrides do not form a valid
// packaging configuration.
var ErrInvalidConfig = errors.New("invalid rendition configuration")

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics enables packaging metrics.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithEngine replaces the engine used by new packaging sessions.
func WithEngine(f engine.Factory) ServiceOption {
	return func(s *Service) { s.engine = f }
}

// Service packages ingested media per rendition and serves the results as
// HLS playlists. Storage is delegated to a Repository.
type Service struct {
	repo       Repository
	windowSize int
	defaults   packager.LiveConfig
	log        *slog.Logger
	metrics    *metrics.Metrics
	engine     engine.Factory
}

// NewService returns a Service over repo. windowSize bounds the playlist
// window; if windowSize <= 0, DefaultWindowSize is used. defaults is the
// packaging configuration of renditions created without overrides.
func NewService(repo Repository, windowSize int, defaults packager.LiveConfig, opts ...ServiceOption) *Service {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	s := &Service{
		repo:       repo,
		windowSize: windowSize,
		defaults:   defaults,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Defaults returns the packaging configuration new renditions start from.
func (s *Service) Defaults() packager.LiveConfig { return s.defaults }

// SetInit stores the input init segment of a rendition. The first call for
// a rendition fixes its packaging configuration to cfg; later calls replace
// the init segment only.
func (s *Service) SetInit(streamID StreamID, renditionID RenditionID, cfg packager.LiveConfig, init []byte) error {
	if len(init) == 0 {
		return fmt.Errorf("%w: empty init segment", packager.ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	log := s.log.With(
		slog.String("stream_id", string(streamID)),
		slog.String("rendition", string(renditionID)))
	return s.repo.SetInit(streamID, renditionID, init, func() *packager.LivePackager {
		log.Info("packaging session created",
			slog.String("format", cfg.Format.String()),
			slog.String("track", cfg.TrackType.String()),
			slog.Float64("segment_duration", cfg.SegmentDurationSec))
		opts := []packager.Option{packager.WithLogger(log)}
		if s.engine != nil {
			opts = append(opts, packager.WithEngine(s.engine))
		}
		return packager.New(cfg, opts...)
	})
}

// Ingest packages one media segment of a rendition with its current init
// segment and records the result under the rendition's next sequence number.
// Packaging errors are returned unchanged for classification with errors.Is.
func (s *Service) Ingest(ctx context.Context, streamID StreamID, renditionID RenditionID, media []byte) (Segment, error) {
	sess, release, err := s.repo.AcquireSession(streamID, renditionID)
	if errors.Is(err, ErrRenditionNotFound) {
		return Segment{}, fmt.Errorf("%w: upload an init segment for %s/%s first", ErrNoInitSegment, streamID, renditionID)
	}
	if err != nil {
		return Segment{}, err
	}
	defer release()

	cfg := sess.Packager.Config()
	in := packager.NewFullSegment(sess.Init, media)

	start := time.Now()
	out, err := sess.Packager.Package(ctx, in)
	elapsed := time.Since(start)
	if err != nil {
		s.recordFailure(err)
		return Segment{}, err
	}

	seg := Segment{
		Duration: cfg.SegmentDurationSec,
		Size:     out.SegmentSize(),
		Data:     out.Segment(),
	}
	if d, err := mediaDuration(sess.Init, media); err == nil && d > 0 {
		seg.Duration = d
	} else if err != nil {
		s.log.Debug("segment duration unavailable, using configured duration",
			slog.String("stream_id", string(streamID)),
			slog.String("rendition", string(renditionID)),
			slog.String("error", err.Error()))
	}

	seg, err = s.repo.RegisterSegment(streamID, renditionID, seg, out.InitSegment())
	if err != nil {
		return Segment{}, err
	}

	if s.metrics != nil {
		s.metrics.ObservePackaged(cfg.Format.String(), cfg.TrackType.String(), in.Size(), out.Size(), elapsed)
	}
	s.log.Debug("segment ingested",
		slog.String("stream_id", string(streamID)),
		slog.String("rendition", string(renditionID)),
		slog.Int64("sequence", seg.Sequence),
		slog.Uint64("packager_segment", sess.Packager.SegmentCount()),
		slog.Int("size", seg.Size))
	return seg, nil
}

func (s *Service) recordFailure(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, packager.ErrInvalidInput):
		s.metrics.IncPackageFailure(metrics.FailureInvalidInput)
	case errors.Is(err, packager.ErrInitialize):
		s.metrics.IncPackageFailure(metrics.FailureInitialize)
	default:
		s.metrics.IncPackageFailure(metrics.FailureRun)
	}
}

// GetPlaylist returns the HLS playlist for the given stream and rendition:
// a contiguous sliding window of at most s.windowSize segments, no gaps.
// fMP4 renditions reference their init segment with #EXT-X-MAP.
func (s *Service) GetPlaylist(streamID StreamID, renditionID RenditionID) (m3u8 string, ok bool) {
	snap, ok := s.repo.GetRenditionSnapshot(streamID, renditionID)
	if !ok {
		return "", false
	}
	mapURI := ""
	if snap.Config.Format == packager.FormatFMP4 && snap.HasInit {
		mapURI = initSegmentURI
	}
	window := contiguousVisibleSegments(snap.Segments, s.windowSize)
	return BuildLivePlaylist(window, snap.Ended, mapURI), true
}

// GetSegment returns a packaged segment by file name, e.g. "0007.ts".
func (s *Service) GetSegment(streamID StreamID, renditionID RenditionID, name string) (Segment, error) {
	snap, ok := s.repo.GetRenditionSnapshot(streamID, renditionID)
	if !ok {
		return Segment{}, ErrRenditionNotFound
	}
	seq, ok := parseSegmentName(name, snap.Config.Format.Extension())
	if !ok {
		return Segment{}, ErrSegmentNotFound
	}
	return s.repo.GetSegment(streamID, renditionID, seq)
}

// GetInit returns the packaged init segment of an fMP4 rendition.
func (s *Service) GetInit(streamID StreamID, renditionID RenditionID) ([]byte, error) {
	return s.repo.GetInit(streamID, renditionID)
}

// EndStream marks the stream as ended; new segments will be rejected.
func (s *Service) EndStream(streamID StreamID) error {
	return s.repo.EndStream(streamID)
}

// DeleteStream drops the stream and its packaged output.
func (s *Service) DeleteStream(streamID StreamID) bool {
	return s.repo.DeleteStream(streamID)
}

// ActiveStreamCount returns the number of streams that are not ended.
func (s *Service) ActiveStreamCount() int {
	return s.repo.ActiveStreamCount()
}

// contiguousVisibleSegments slides the window over segs, then drops
// everything after the first gap so players never see e.g. 42 followed by 44.
// segs must be sorted by Sequence ascending.
func contiguousVisibleSegments(segs []Segment, windowSize int) []Segment {
	if len(segs) == 0 || windowSize <= 0 {
		return nil
	}

	start := 0
	if len(segs) > windowSize {
		start = len(segs) - windowSize
	}
	windowed := segs[start:]

	visible := make([]Segment, 0, len(windowed))
	for i := range windowed {
		if i > 0 && windowed[i].Sequence != windowed[i-1].Sequence+1 {
			break
		}
		visible = append(visible, windowed[i])
	}
	return visible
}
