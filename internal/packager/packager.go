// Package packager repackages live fragmented MP4 input, one init+media pair
// per call, into fMP4 or MPEG-TS output for distribution.
//
// A LivePackager is one session carrying one track. Each Package call wraps
// its input in a fresh virtual I/O bridge, drives one engine run, and
// assembles the engine's writes into an output FullSegment.
package packager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"live-packager/internal/engine"
)

var (
	// ErrInvalidInput is returned when the input has an empty init or data
	// region. The engine is not started and the segment count is unchanged.
	ErrInvalidInput = errors.New("invalid input segment")

	// ErrInitialize is returned when the configuration or the derived stream
	// descriptors are rejected. The segment count is unchanged.
	ErrInitialize = errors.New("packager initialization failed")

	// ErrRun is returned when the engine run fails. The segment count has
	// advanced and no output is returned.
	ErrRun = errors.New("packaging run failed")
)

// Option configures a LivePackager.
type Option func(*LivePackager)

// WithEngine replaces the default engine factory.
func WithEngine(f engine.Factory) Option {
	return func(p *LivePackager) { p.newEngine = f }
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(log *slog.Logger) Option {
	return func(p *LivePackager) {
		if log != nil {
			p.log = log
		}
	}
}

// LivePackager packages the segments of one live session.
//
// Package calls on one instance are serialized; separate instances share
// nothing and may run concurrently.
type LivePackager struct {
	config    LiveConfig
	newEngine engine.Factory
	log       *slog.Logger

	mu           sync.Mutex
	segmentCount uint64
	nextNumber   uint64
	initSegment  Segment
	hasInit      bool
}

// New returns a LivePackager for cfg. Configuration errors surface from
// Package as ErrInitialize.
func New(cfg LiveConfig, opts ...Option) *LivePackager {
	p := &LivePackager{
		config:     cfg,
		log:        slog.Default(),
		nextNumber: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("component", "packager",
		"format", cfg.Format.String(),
		"track", cfg.TrackType.String())
	if p.newEngine == nil {
		p.newEngine = engine.NewFactory(p.log)
	}
	return p
}

// Config returns the session configuration.
func (p *LivePackager) Config() LiveConfig { return p.config }

// SegmentCount returns the number of engine runs attempted so far.
func (p *LivePackager) SegmentCount() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.segmentCount
}

// InitSegment returns the first init segment the session produced, tagged
// with the segment number it was produced with. ok is false until a
// successful fMP4 call has produced one.
func (p *LivePackager) InitSegment() (seg Segment, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initSegment, p.hasInit
}

// Package repackages in and returns the output init and media regions. The
// output init region is empty for MPEG-TS. On error the output is nil.
//
// The segment count advances once per engine run, whether or not the run
// succeeds. Input validation and initialization failures do not advance it.
// Output segment numbers continue after the highest number the previous run
// wrote.
func (p *LivePackager) Package(ctx context.Context, in *FullSegment) (*FullSegment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if in == nil || in.InitSize() == 0 || in.SegmentSize() == 0 {
		return nil, fmt.Errorf("%w: init and data regions must be non-empty", ErrInvalidInput)
	}
	if err := p.config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialize, err)
	}

	b := newBridge(in)
	number := p.nextNumber
	params := engine.PackagingParams{
		SegmentDuration: p.config.SegmentDurationSec,
		SegmentNumber:   number,
	}

	eng := p.newEngine()
	if err := eng.Initialize(params, streamDescriptors(p.config, b.data, b.init)); err != nil {
		p.log.Warn("engine initialization failed", slog.Uint64("segment", number), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", ErrInitialize, err)
	}

	err := eng.Run(ctx)
	p.segmentCount++
	p.nextNumber = max(number, b.out.lastNumber) + 1
	if err != nil {
		p.log.Warn("packaging failed", slog.Uint64("segment", number), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: segment %d: %w", ErrRun, number, err)
	}

	out := b.out.fullSegment()
	if !p.hasInit && out.InitSize() > 0 {
		p.initSegment = NewSegment(out.InitSegment())
		p.initSegment.SetSequenceNumber(number)
		p.hasInit = true
	}

	p.log.Debug("segment packaged",
		slog.Uint64("segment", number),
		slog.Int("input_size", in.Size()),
		slog.Int("init_size", out.InitSize()),
		slog.Int("data_size", out.SegmentSize()),
		slog.Int("writes", b.out.writes),
		slog.Uint64("next_segment", p.nextNumber))

	return out, nil
}
