// Package engine is the muxing engine driven by the live packager. It reads
// a fragmented MP4 input through a virtual file handle and writes fMP4 or
// MPEG-TS segments through other handles.
package engine

import (
	"context"
	"errors"

	"live-packager/internal/vfile"
)

// Stream selectors understood by the engine.
const (
	SelectorVideo = "video"
	SelectorAudio = "audio"
)

// TemplateNumber is replaced by the segment number when segment names are
// derived from a SegmentTemplate handle.
const TemplateNumber = "$Number$"

var (
	// ErrInvalidParams is returned by Initialize for unusable packaging params.
	ErrInvalidParams = errors.New("invalid packaging params")

	// ErrInvalidDescriptor is returned by Initialize for unusable stream descriptors.
	ErrInvalidDescriptor = errors.New("invalid stream descriptor")

	// ErrNotInitialized is returned by Run when Initialize has not succeeded.
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrUnsupportedInput is returned when the input is not a single-track fragmented MP4.
	ErrUnsupportedInput = errors.New("unsupported input")

	// ErrTrackNotFound is returned when no input track matches the stream selector.
	ErrTrackNotFound = errors.New("no track matches stream selector")

	// ErrNoSamples is returned when the input carries no media samples.
	ErrNoSamples = errors.New("input has no media samples")
)

// PackagingParams holds the per-run chunking settings.
type PackagingParams struct {
	// SegmentDuration is the target output segment duration in seconds.
	SegmentDuration float64
	// SegmentNumber is the number given to the first output segment of the run.
	SegmentNumber uint64
}

// StreamDescriptor describes one stream to package.
type StreamDescriptor struct {
	// Input is read until end of stream.
	Input vfile.Handle
	// StreamSelector picks the input track: SelectorVideo or SelectorAudio.
	StreamSelector string
	// Output receives the init segment. Zero when the format has none.
	Output vfile.Handle
	// SegmentTemplate receives media segments. Its name is a pattern
	// containing TemplateNumber.
	SegmentTemplate vfile.Handle
}

// Engine is a single-use muxing run: Initialize once, then Run once.
type Engine interface {
	Initialize(params PackagingParams, descriptors []StreamDescriptor) error
	Run(ctx context.Context) error
}

// Factory returns a fresh Engine.
type Factory func() Engine
