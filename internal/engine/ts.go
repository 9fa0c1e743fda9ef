package engine

import (
	"context"
	"fmt"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/asticode/go-astits"
	"github.com/bluenviron/mediacommon/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/pkg/codecs/mpeg4audio"
)

const (
	videoPID = 256
	audioPID = 257

	videoStreamID = 224
	audioStreamID = 192

	tsClockRate = 90000
	tsClockMask = 1<<33 - 1
)

// writeTS emits each sample group as a standalone transport stream with its
// own PAT/PMT, so every segment is decodable without an init segment.
func (p *Packager) writeTS(ctx context.Context, trk *track, segments [][]mp4.FullSample) error {
	pid := uint16(videoPID)
	streamType := astits.StreamTypeH264Video
	streamID := uint8(videoStreamID)
	if trk.kind == SelectorAudio {
		if trk.aac == nil {
			return fmt.Errorf("%w: audio track is not AAC", ErrUnsupportedInput)
		}
		pid = audioPID
		streamType = astits.StreamTypeAACAudio
		streamID = audioStreamID
	}

	for i, samples := range segments {
		number := p.params.SegmentNumber + uint64(i)
		name := p.segmentName(number)

		mux := astits.NewMuxer(ctx, p.desc.SegmentTemplate.WithName(name).Writer())
		mux.AddElementaryStream(astits.PMTElementaryStream{
			ElementaryPID: pid,
			StreamType:    streamType,
		})
		mux.SetPCRPID(pid)

		for j, s := range samples {
			if err := ctx.Err(); err != nil {
				return err
			}

			payload, err := trk.tsPayload(s)
			if err != nil {
				return fmt.Errorf("segment %q sample %d: %w", name, j, err)
			}

			pts := rescale(s.PresentationTime(), trk.timescale)
			dts := rescale(s.DecodeTime, trk.timescale)

			oh := &astits.PESOptionalHeader{
				MarkerBits: 2,
			}
			if dts == pts {
				oh.PTSDTSIndicator = astits.PTSDTSIndicatorOnlyPTS
				oh.PTS = &astits.ClockReference{Base: pts}
			} else {
				oh.PTSDTSIndicator = astits.PTSDTSIndicatorBothPresent
				oh.DTS = &astits.ClockReference{Base: dts}
				oh.PTS = &astits.ClockReference{Base: pts}
			}

			randomAccess := j == 0 || trk.kind == SelectorAudio || s.IsSync()

			_, err = mux.WriteData(&astits.MuxerData{
				PID: pid,
				AdaptationField: &astits.PacketAdaptationField{
					RandomAccessIndicator: randomAccess,
				},
				PES: &astits.PESData{
					Header: &astits.PESHeader{
						OptionalHeader: oh,
						StreamID:       streamID,
					},
					Data: payload,
				},
			})
			if err != nil {
				return fmt.Errorf("write segment %q: %w", name, err)
			}
		}
	}
	return nil
}

// tsPayload converts one mp4 sample into its elementary stream form:
// Annex-B access units for H.264, ADTS frames for AAC.
func (t *track) tsPayload(s mp4.FullSample) ([]byte, error) {
	if t.kind == SelectorAudio {
		pkts := mpeg4audio.ADTSPackets{{
			Type:         t.aac.Type,
			SampleRate:   t.aac.SampleRate,
			ChannelCount: t.aac.ChannelCount,
			AU:           s.Data,
		}}
		return pkts.Marshal()
	}

	nalus, err := h264.AVCCUnmarshal(s.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedInput, err)
	}

	filtered := make([][]byte, 0, len(nalus))
	idr := false
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		switch h264.NALUType(nalu[0] & 0x1F) {
		case h264.NALUTypeAccessUnitDelimiter, h264.NALUTypeSPS, h264.NALUTypePPS:
			continue
		case h264.NALUTypeIDR:
			idr = true
		}
		filtered = append(filtered, nalu)
	}

	// AUD first, then parameter sets in front of every IDR.
	au := [][]byte{{byte(h264.NALUTypeAccessUnitDelimiter), 240}}
	if idr {
		au = append(au, t.sps...)
		au = append(au, t.pps...)
	}
	au = append(au, filtered...)

	return h264.AnnexBMarshal(au)
}

func rescale(ticks uint64, timescale uint32) int64 {
	if timescale == tsClockRate {
		return int64(ticks & tsClockMask)
	}
	secs := ticks / uint64(timescale)
	rem := ticks % uint64(timescale)
	v := secs*tsClockRate + rem*tsClockRate/uint64(timescale)
	return int64(v & tsClockMask)
}
