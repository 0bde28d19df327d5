package config

import (
	"github.com/xaionaro-go/rawpipeline"
	"github.com/xaionaro-go/rawpipeline/buffermanager"
	"github.com/xaionaro-go/rawpipeline/flow"
	"github.com/xaionaro-go/rawpipeline/types"
	"github.com/xaionaro-go/typing"
)

// EffectiveResolutionScale resolves auto_resolution_scale for a clip of the given resolution.
func (c *Config) EffectiveResolutionScale(frame types.Resolution) types.ResolutionScale {
	if !c.AutoResolutionScale {
		return c.ResolutionScale
	}
	var (
		crop    typing.Optional[buffermanager.Rect]
		outSize typing.Optional[types.Resolution]
	)
	if c.Crop != nil {
		crop = typing.Opt(*c.Crop)
	}
	if c.OutSize != nil {
		outSize = typing.Opt(*c.OutSize)
	}
	return rawpipeline.SelectResolutionScale(frame, crop, outSize)
}

// TaskOptions returns the per-frame options of the flow.
func (c *Config) TaskOptions(frame types.Resolution) []flow.TaskOption {
	opts := []flow.TaskOption{
		flow.OptionResolutionScale(c.EffectiveResolutionScale(frame)),
		flow.OptionDevice(c.Device),
	}
	if c.Crop != nil {
		opts = append(opts, flow.OptionCrop(*c.Crop))
	}
	if c.OutSize != nil {
		opts = append(opts, flow.OptionOutSize(*c.OutSize))
	}
	return opts
}

// FrameRange returns [from, to) clamped to the clip.
func (c *Config) FrameRange(frameCount uint64) (from, to uint64) {
	from = min(c.Frames.From, frameCount)
	to = frameCount
	if c.Frames.Count > 0 {
		to = min(from+c.Frames.Count, frameCount)
	}
	return from, to
}
