// Command livepackage packages fragmented MP4 files with one live session,
// optionally writing the results and comparing them against expected output.
//
//	livepackage --init init.mp4 --format ts --out out/ 1.m4s 2.m4s 3.m4s
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"live-packager/internal/packager"
	"live-packager/internal/platform/logger"

	"github.com/spf13/pflag"
)

type options struct {
	initPath    string
	format      string
	track       string
	duration    float64
	expectedDir string
	outDir      string
	debug       bool
	fragments   []string
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 2
	}

	level := "info"
	if opts.debug {
		level = "debug"
	}
	log := logger.NewWriter(stderr, level, "text")

	mismatches, err := packageAll(ctx, opts, stdout, log)
	if err != nil {
		log.Error("packaging failed", "error", err)
		return 1
	}
	if mismatches > 0 {
		log.Error("output differs from expected", "mismatches", mismatches)
		return 1
	}
	return 0
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("livepackage", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.initPath, "init", "i", "", "Input init segment (ftyp+moov)")
	fs.StringVarP(&opts.format, "format", "f", "fmp4", "Output format (fmp4, ts)")
	fs.StringVarP(&opts.track, "track", "t", "video", "Track to package (video, audio)")
	fs.Float64VarP(&opts.duration, "duration", "d", 5, "Target segment duration in seconds")
	fs.StringVarP(&opts.expectedDir, "expected", "e", "", "Directory of expected outputs to compare against")
	fs.StringVarP(&opts.outDir, "out", "o", "", "Directory to write outputs to")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: livepackage --init INIT [options] FRAGMENT...\n\n")
		fmt.Fprintf(stderr, "Packages each fragment in order with one live session.\n")
		fmt.Fprintf(stderr, "Outputs are named NNNN.m4s or NNNN.ts; fMP4 also writes init.mp4.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.fragments = fs.Args()
	if opts.initPath == "" || len(opts.fragments) == 0 {
		fs.Usage()
		return opts, errors.New("--init and at least one fragment are required")
	}
	return opts, nil
}

func packageAll(ctx context.Context, opts options, stdout io.Writer, log *slog.Logger) (mismatches int, err error) {
	format, err := packager.ParseOutputFormat(opts.format)
	if err != nil {
		return 0, err
	}
	track, err := packager.ParseTrackType(opts.track)
	if err != nil {
		return 0, err
	}
	cfg := packager.LiveConfig{Format: format, TrackType: track, SegmentDurationSec: opts.duration}
	if err := cfg.Validate(); err != nil {
		return 0, err
	}

	init, err := packager.ReadSegmentFile(opts.initPath)
	if err != nil {
		return 0, fmt.Errorf("read init: %w", err)
	}
	if opts.outDir != "" {
		if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
			return 0, err
		}
	}

	lp := packager.New(cfg, packager.WithLogger(log))
	for _, path := range opts.fragments {
		frag, err := packager.ReadSegmentFile(path)
		if err != nil {
			return mismatches, fmt.Errorf("read fragment: %w", err)
		}

		out, err := lp.Package(ctx, packager.NewFullSegment(init.Data(), frag.Data()))
		if err != nil {
			return mismatches, fmt.Errorf("%s: %w", path, err)
		}
		name := fmt.Sprintf("%04d%s", lp.SegmentCount(), format.Extension())

		if opts.outDir != "" {
			if err := os.WriteFile(filepath.Join(opts.outDir, name), out.Segment(), 0o644); err != nil {
				return mismatches, err
			}
		}
		if opts.expectedDir != "" && !matchesExpected(filepath.Join(opts.expectedDir, name), out.Segment(), log) {
			mismatches++
		}
		fmt.Fprintf(stdout, "%s\t%s\tinit=%d\tdata=%d\n", path, name, out.InitSize(), out.SegmentSize())
	}

	if seg, ok := lp.InitSegment(); ok {
		if opts.outDir != "" {
			if err := os.WriteFile(filepath.Join(opts.outDir, "init.mp4"), seg.Data(), 0o644); err != nil {
				return mismatches, err
			}
		}
		if opts.expectedDir != "" && !matchesExpected(filepath.Join(opts.expectedDir, "init.mp4"), seg.Data(), log) {
			mismatches++
		}
	}
	return mismatches, nil
}

func matchesExpected(path string, got []byte, log *slog.Logger) bool {
	want, err := os.ReadFile(path)
	if err != nil {
		log.Warn("expected output missing", "file", path, "error", err)
		return false
	}
	if !bytes.Equal(got, want) {
		log.Warn("output mismatch", "file", path, "got_size", len(got), "want_size", len(want))
		return false
	}
	log.Debug("output matches", "file", path)
	return true
}
