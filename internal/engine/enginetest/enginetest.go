// Package enginetest builds small synthetic fragmented MP4 inputs for tests.
package enginetest

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/Eyevinn/mp4ff/aac"
	"github.com/Eyevinn/mp4ff/mp4"
)

// Timescales and sample durations of the generated tracks.
const (
	VideoTimescale      = 90000
	VideoSampleDuration = 3600 // 25 fps
	AudioTimescale      = 48000
	AudioSampleDuration = 1024
)

// SPS and PPS of a 640x480 constrained baseline H.264 stream.
var (
	SPS = []byte{0x67, 0x42, 0xc0, 0x1e, 0xda, 0x02, 0x80, 0xf6, 0x40}
	PPS = []byte{0x68, 0xce, 0x38, 0x80}
)

var (
	idrNALU    = []byte{0x65, 0x88, 0x84, 0x00, 0x10, 0x21, 0x43, 0x65}
	nonIDRNALU = []byte{0x41, 0x9a, 0x24, 0x8c, 0x09, 0x12, 0x34}
	aacFrame   = []byte{0x21, 0x10, 0x05, 0x40, 0x12, 0x80, 0x7c, 0x00}
)

// VideoInit returns an encoded ftyp+moov for one AVC track.
func VideoInit() ([]byte, error) {
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(VideoTimescale, "video", "und")
	if err := init.Moov.Trak.SetAVCDescriptor("avc1", [][]byte{SPS}, [][]byte{PPS}, true); err != nil {
		return nil, err
	}
	return encode(init.Encode)
}

// AudioInit returns an encoded ftyp+moov for one AAC-LC track.
func AudioInit() ([]byte, error) {
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(AudioTimescale, "audio", "und")
	if err := init.Moov.Trak.SetAACDescriptor(aac.AAClc, AudioTimescale); err != nil {
		return nil, err
	}
	return encode(init.Encode)
}

// VideoSegment returns an encoded styp+moof+mdat with n samples starting at
// decode time start. Every gop-th sample is an IDR.
func VideoSegment(seq uint32, start uint64, n, gop int) ([]byte, error) {
	frag, err := mp4.CreateFragment(seq, 1)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		flags := mp4.NonSyncSampleFlags
		nalu := nonIDRNALU
		if gop > 0 && i%gop == 0 {
			flags = mp4.SyncSampleFlags
			nalu = idrNALU
		}
		data := avcc(nalu)
		frag.AddFullSample(mp4.FullSample{
			Sample: mp4.Sample{
				Flags: flags,
				Dur:   VideoSampleDuration,
				Size:  uint32(len(data)),
			},
			DecodeTime: start + uint64(i)*VideoSampleDuration,
			Data:       data,
		})
	}
	return encodeSegment(frag)
}

// AudioSegment returns an encoded styp+moof+mdat with n AAC frames starting
// at decode time start.
func AudioSegment(seq uint32, start uint64, n int) ([]byte, error) {
	frag, err := mp4.CreateFragment(seq, 1)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		frag.AddFullSample(mp4.FullSample{
			Sample: mp4.Sample{
				Flags: mp4.SyncSampleFlags,
				Dur:   AudioSampleDuration,
				Size:  uint32(len(aacFrame)),
			},
			DecodeTime: start + uint64(i)*AudioSampleDuration,
			Data:       aacFrame,
		})
	}
	return encodeSegment(frag)
}

func encodeSegment(frag *mp4.Fragment) ([]byte, error) {
	seg := mp4.NewMediaSegment()
	seg.AddFragment(frag)
	return encode(seg.Encode)
}

func encode(fn func(w io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func avcc(nalu []byte) []byte {
	out := make([]byte, 4+len(nalu))
	binary.BigEndian.PutUint32(out, uint32(len(nalu)))
	copy(out[4:], nalu)
	return out
}
