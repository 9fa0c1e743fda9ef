package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"

	"live-packager/internal/engine/enginetest"
	"live-packager/internal/vfile"
)

// harness binds an in-memory input and records every write by name.
type harness struct {
	input    []byte
	pos      int
	initRaw  [][]byte
	segNames []string
	segs     map[string][]byte
}

func newHarness(input []byte) *harness {
	return &harness{input: input, segs: make(map[string][]byte)}
}

func (h *harness) descriptor(selector, template string, withInit bool) StreamDescriptor {
	in := &vfile.CallbackParams{
		Read: func(name string, p []byte) (int, error) {
			n := copy(p, h.input[h.pos:])
			h.pos += n
			return n, nil
		},
		Write: func(name string, p []byte) (int, error) {
			if _, ok := h.segs[name]; !ok {
				h.segNames = append(h.segNames, name)
			}
			h.segs[name] = append(h.segs[name], p...)
			return len(p), nil
		},
	}
	d := StreamDescriptor{
		Input:           vfile.MakeHandle(in, "input"),
		StreamSelector:  selector,
		SegmentTemplate: vfile.MakeHandle(in, template),
	}
	if withInit {
		initParams := &vfile.CallbackParams{
			Write: func(name string, p []byte) (int, error) {
				h.initRaw = append(h.initRaw, append([]byte(nil), p...))
				return len(p), nil
			},
		}
		d.Output = vfile.MakeHandle(initParams, "init.mp4")
	}
	return d
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func videoInput(t *testing.T, samples, gop int) []byte {
	t.Helper()
	init, err := enginetest.VideoInit()
	if err != nil {
		t.Fatalf("VideoInit: %v", err)
	}
	seg, err := enginetest.VideoSegment(1, 0, samples, gop)
	if err != nil {
		t.Fatalf("VideoSegment: %v", err)
	}
	return append(init, seg...)
}

func audioInput(t *testing.T, samples int) []byte {
	t.Helper()
	init, err := enginetest.AudioInit()
	if err != nil {
		t.Fatalf("AudioInit: %v", err)
	}
	seg, err := enginetest.AudioSegment(1, 0, samples)
	if err != nil {
		t.Fatalf("AudioSegment: %v", err)
	}
	return append(init, seg...)
}

func TestPackager_Initialize_rejects(t *testing.T) {
	h := newHarness(nil)
	valid := h.descriptor(SelectorVideo, "$Number$.m4s", true)

	noTemplate := valid
	noTemplate.SegmentTemplate = vfile.Handle{}
	noNumber := valid
	noNumber.SegmentTemplate = valid.SegmentTemplate.WithName("segment.m4s")
	badExt := valid
	badExt.SegmentTemplate = valid.SegmentTemplate.WithName("$Number$.webm")
	badSelector := valid
	badSelector.StreamSelector = "text"
	noInput := valid
	noInput.Input = vfile.Handle{}
	tsWithInit := h.descriptor(SelectorVideo, "$Number$.ts", true)

	cases := []struct {
		name   string
		params PackagingParams
		descs  []StreamDescriptor
		want   error
	}{
		{"zero_duration", PackagingParams{SegmentDuration: 0}, []StreamDescriptor{valid}, ErrInvalidParams},
		{"negative_duration", PackagingParams{SegmentDuration: -1}, []StreamDescriptor{valid}, ErrInvalidParams},
		{"nan_duration", PackagingParams{SegmentDuration: math.NaN()}, []StreamDescriptor{valid}, ErrInvalidParams},
		{"no_descriptors", PackagingParams{SegmentDuration: 5}, nil, ErrInvalidDescriptor},
		{"two_descriptors", PackagingParams{SegmentDuration: 5}, []StreamDescriptor{valid, valid}, ErrInvalidDescriptor},
		{"bad_selector", PackagingParams{SegmentDuration: 5}, []StreamDescriptor{badSelector}, ErrInvalidDescriptor},
		{"no_input", PackagingParams{SegmentDuration: 5}, []StreamDescriptor{noInput}, ErrInvalidDescriptor},
		{"no_template", PackagingParams{SegmentDuration: 5}, []StreamDescriptor{noTemplate}, ErrInvalidDescriptor},
		{"template_without_number", PackagingParams{SegmentDuration: 5}, []StreamDescriptor{noNumber}, ErrInvalidDescriptor},
		{"unknown_extension", PackagingParams{SegmentDuration: 5}, []StreamDescriptor{badExt}, ErrInvalidDescriptor},
		{"ts_with_init_output", PackagingParams{SegmentDuration: 5}, []StreamDescriptor{tsWithInit}, ErrInvalidDescriptor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := New(testLogger()).Initialize(tc.params, tc.descs)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPackager_Run_not_initialized(t *testing.T) {
	if err := New(testLogger()).Run(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestPackager_Run_fmp4_video(t *testing.T) {
	h := newHarness(videoInput(t, 50, 25))
	p := New(testLogger())
	if err := p.Initialize(PackagingParams{SegmentDuration: 5, SegmentNumber: 1},
		[]StreamDescriptor{h.descriptor(SelectorVideo, "$Number$.m4s", true)}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(h.initRaw) != 1 {
		t.Fatalf("expected init written once, got %d writes", len(h.initRaw))
	}
	if len(h.segNames) != 1 || h.segNames[0] != "1.m4s" {
		t.Fatalf("expected one segment 1.m4s, got %v", h.segNames)
	}

	out := append(append([]byte(nil), h.initRaw[0]...), h.segs["1.m4s"]...)
	f, err := mp4.DecodeFile(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if f.Init == nil || len(f.Segments) != 1 || len(f.Segments[0].Fragments) != 1 {
		t.Fatalf("unexpected output structure: init=%v segments=%d", f.Init != nil, len(f.Segments))
	}
	frag := f.Segments[0].Fragments[0]
	if got := frag.Moof.Mfhd.SequenceNumber; got != 1 {
		t.Errorf("moof sequence number: got %d want 1", got)
	}
	samples, err := frag.GetFullSamples(findTrex(f.Init, 1))
	if err != nil {
		t.Fatalf("GetFullSamples: %v", err)
	}
	if len(samples) != 50 {
		t.Errorf("expected 50 samples, got %d", len(samples))
	}
	if !samples[0].IsSync() {
		t.Error("first sample should be sync")
	}
}

func TestPackager_Run_splits_on_duration(t *testing.T) {
	// 50 samples of 40ms, IDR every 25 samples: two 1s groups.
	h := newHarness(videoInput(t, 50, 25))
	p := New(testLogger())
	if err := p.Initialize(PackagingParams{SegmentDuration: 1, SegmentNumber: 7},
		[]StreamDescriptor{h.descriptor(SelectorVideo, "$Number$.m4s", false)}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(h.initRaw) != 0 {
		t.Errorf("no init output bound, got %d writes", len(h.initRaw))
	}
	if len(h.segNames) != 2 || h.segNames[0] != "7.m4s" || h.segNames[1] != "8.m4s" {
		t.Fatalf("expected segments 7.m4s and 8.m4s, got %v", h.segNames)
	}
}

func TestPackager_Run_ts_video(t *testing.T) {
	h := newHarness(videoInput(t, 30, 15))
	p := New(testLogger())
	if err := p.Initialize(PackagingParams{SegmentDuration: 5, SegmentNumber: 3},
		[]StreamDescriptor{h.descriptor(SelectorVideo, "$Number$.ts", false)}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	ts, ok := h.segs["3.ts"]
	if !ok {
		t.Fatalf("expected 3.ts, got %v", h.segNames)
	}
	assertTransportStream(t, ts)
}

func TestPackager_Run_ts_audio(t *testing.T) {
	h := newHarness(audioInput(t, 40))
	p := New(testLogger())
	if err := p.Initialize(PackagingParams{SegmentDuration: 5, SegmentNumber: 1},
		[]StreamDescriptor{h.descriptor(SelectorAudio, "$Number$.ts", false)}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertTransportStream(t, h.segs["1.ts"])
}

func TestPackager_Run_selector_mismatch(t *testing.T) {
	h := newHarness(videoInput(t, 10, 5))
	p := New(testLogger())
	if err := p.Initialize(PackagingParams{SegmentDuration: 5},
		[]StreamDescriptor{h.descriptor(SelectorAudio, "$Number$.m4s", true)}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := p.Run(context.Background()); !errors.Is(err, ErrTrackNotFound) {
		t.Errorf("expected ErrTrackNotFound, got %v", err)
	}
	if len(h.segNames) != 0 || len(h.initRaw) != 0 {
		t.Error("nothing should be written on failure before muxing")
	}
}

func TestPackager_Run_malformed_input(t *testing.T) {
	h := newHarness([]byte("this is not an mp4 file"))
	p := New(testLogger())
	if err := p.Initialize(PackagingParams{SegmentDuration: 5},
		[]StreamDescriptor{h.descriptor(SelectorVideo, "$Number$.m4s", true)}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := p.Run(context.Background()); !errors.Is(err, ErrUnsupportedInput) {
		t.Errorf("expected ErrUnsupportedInput, got %v", err)
	}
}

func TestPackager_Run_init_only(t *testing.T) {
	init, err := enginetest.VideoInit()
	if err != nil {
		t.Fatalf("VideoInit: %v", err)
	}
	h := newHarness(init)
	p := New(testLogger())
	if err := p.Initialize(PackagingParams{SegmentDuration: 5},
		[]StreamDescriptor{h.descriptor(SelectorVideo, "$Number$.m4s", true)}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := p.Run(context.Background()); !errors.Is(err, ErrNoSamples) {
		t.Errorf("expected ErrNoSamples, got %v", err)
	}
}

func TestPackager_Run_cancelled(t *testing.T) {
	h := newHarness(videoInput(t, 10, 5))
	p := New(testLogger())
	if err := p.Initialize(PackagingParams{SegmentDuration: 5},
		[]StreamDescriptor{h.descriptor(SelectorVideo, "$Number$.ts", false)}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSplitSegments(t *testing.T) {
	mk := func(dts uint64, sync bool) mp4.FullSample {
		flags := mp4.NonSyncSampleFlags
		if sync {
			flags = mp4.SyncSampleFlags
		}
		return mp4.FullSample{Sample: mp4.Sample{Flags: flags, Dur: 10}, DecodeTime: dts}
	}
	samples := []mp4.FullSample{
		mk(0, true), mk(10, false), mk(20, false), mk(30, false),
		mk(40, false), mk(50, true), mk(60, false),
	}

	t.Run("waits_for_sync", func(t *testing.T) {
		got := splitSegments(samples, 20, false)
		if len(got) != 2 || len(got[0]) != 5 || len(got[1]) != 2 {
			t.Errorf("unexpected split: %d groups", len(got))
		}
	})

	t.Run("cut_anywhere", func(t *testing.T) {
		got := splitSegments(samples, 20, true)
		if len(got) != 4 {
			t.Errorf("expected 4 groups, got %d", len(got))
		}
	})

	t.Run("target_longer_than_input", func(t *testing.T) {
		if got := splitSegments(samples, 1000, false); len(got) != 1 {
			t.Errorf("expected 1 group, got %d", len(got))
		}
	})
}

func TestRescale(t *testing.T) {
	if got := rescale(90000, 90000); got != 90000 {
		t.Errorf("identity: got %d", got)
	}
	if got := rescale(48000, 48000); got != 90000 {
		t.Errorf("48k one second: got %d", got)
	}
	if got := rescale(1<<33, 90000); got != 0 {
		t.Errorf("wrap at 33 bits: got %d", got)
	}
}

func assertTransportStream(t *testing.T, ts []byte) {
	t.Helper()
	if len(ts) == 0 {
		t.Fatal("empty transport stream")
	}
	if len(ts)%188 != 0 {
		t.Fatalf("transport stream length %d is not a multiple of 188", len(ts))
	}
	for off := 0; off < len(ts); off += 188 {
		if ts[off] != 0x47 {
			t.Fatalf("missing sync byte at offset %d", off)
		}
	}
}
