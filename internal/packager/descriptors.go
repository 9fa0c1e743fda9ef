package packager

import (
	"live-packager/internal/engine"
	"live-packager/internal/vfile"
)

const (
	inputName       = "input"
	initSegmentName = "init.mp4"
)

func segmentTemplate(cfg LiveConfig) string {
	return engine.TemplateNumber + cfg.Format.Extension()
}

func streamSelector(cfg LiveConfig) string {
	if cfg.TrackType == TrackVideo {
		return engine.SelectorVideo
	}
	return engine.SelectorAudio
}

// streamDescriptors derives the engine's stream descriptors from cfg. The
// init output is bound only for fMP4; MPEG-TS carries its tables per segment.
func streamDescriptors(cfg LiveConfig, data, init *vfile.CallbackParams) []engine.StreamDescriptor {
	d := engine.StreamDescriptor{
		Input:           vfile.MakeHandle(data, inputName),
		StreamSelector:  streamSelector(cfg),
		SegmentTemplate: vfile.MakeHandle(data, segmentTemplate(cfg)),
	}
	if cfg.Format == FormatFMP4 {
		d.Output = vfile.MakeHandle(init, initSegmentName)
	}
	return []engine.StreamDescriptor{d}
}
