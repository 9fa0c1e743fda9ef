package engine

import (
	"bytes"
	"fmt"

	"github.com/Eyevinn/mp4ff/mp4"
)

// writeFMP4 emits the init segment in one write, then one styp+moof+mdat
// segment per sample group. The moof sequence number is the segment number.
func (p *Packager) writeFMP4(init *mp4.InitSegment, trk *track, segments [][]mp4.FullSample) error {
	if !p.desc.Output.IsZero() {
		var buf bytes.Buffer
		if err := init.Encode(&buf); err != nil {
			return fmt.Errorf("encode init segment: %w", err)
		}
		if _, err := p.desc.Output.Writer().Write(buf.Bytes()); err != nil {
			return fmt.Errorf("write init segment %q: %w", p.desc.Output.Name(), err)
		}
	}

	for i, samples := range segments {
		number := p.params.SegmentNumber + uint64(i)

		frag, err := mp4.CreateFragment(uint32(number), trk.id)
		if err != nil {
			return fmt.Errorf("create fragment %d: %w", number, err)
		}
		for _, s := range samples {
			frag.AddFullSample(s)
		}

		seg := mp4.NewMediaSegment()
		seg.AddFragment(frag)

		name := p.segmentName(number)
		if err := seg.Encode(p.desc.SegmentTemplate.WithName(name).Writer()); err != nil {
			return fmt.Errorf("write segment %q: %w", name, err)
		}
	}
	return nil
}
