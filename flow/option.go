package flow

import (
	"github.com/xaionaro-go/rawpipeline/buffermanager"
	"github.com/xaionaro-go/rawpipeline/types"
	"github.com/xaionaro-go/typing"
)

type taskConfig struct {
	ResolutionScale types.ResolutionScale
	Postprocess     buffermanager.PostprocessParams
}

type TaskOption interface {
	apply(*taskConfig)
}

type TaskOptions []TaskOption

func (s TaskOptions) apply(cfg *taskConfig) {
	for _, opt := range s {
		opt.apply(cfg)
	}
}

func (s TaskOptions) config() taskConfig {
	cfg := taskConfig{
		ResolutionScale: types.ResolutionScaleFull,
	}
	s.apply(&cfg)
	return cfg
}

type OptionResolutionScale types.ResolutionScale

func (opt OptionResolutionScale) apply(cfg *taskConfig) {
	cfg.ResolutionScale = types.ResolutionScale(opt)
}

// OptionCrop is the region to keep, in the coordinates of the full resolution frame.
type OptionCrop buffermanager.Rect

func (opt OptionCrop) apply(cfg *taskConfig) {
	cfg.Postprocess.Crop = typing.Opt(buffermanager.Rect(opt))
}

// OptionOutSize resizes the (cropped) image.
type OptionOutSize types.Resolution

func (opt OptionOutSize) apply(cfg *taskConfig) {
	cfg.Postprocess.OutSize = typing.Opt(types.Resolution(opt))
}

// OptionDevice is where the resulting tensor is placed.
type OptionDevice types.Device

func (opt OptionDevice) apply(cfg *taskConfig) {
	cfg.Postprocess.Device = typing.Opt(types.Device(opt))
}
