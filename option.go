package rawpipeline

import (
	"github.com/xaionaro-go/rawpipeline/types"
	"github.com/xaionaro-go/typing"
)

type config struct {
	DeviceContext typing.Optional[types.DeviceContext]
	CommandQueue  types.CommandQueue
}

type Option interface {
	apply(*config)
}

type Options []Option

func (s Options) apply(cfg *config) {
	for _, opt := range s {
		opt.apply(cfg)
	}
}

func (s Options) config() config {
	cfg := config{}
	s.apply(&cfg)
	return cfg
}

// OptionDeviceContext overrides the device context otherwise taken from the
// calling thread (e.g. cuda.CurrentContext for CUDA devices).
type OptionDeviceContext types.DeviceContext

func (opt OptionDeviceContext) apply(cfg *config) {
	cfg.DeviceContext = typing.Opt(types.DeviceContext(opt))
}

// OptionCommandQueue is the device queue (stream) the codec processes on;
// zero is the default queue.
type OptionCommandQueue types.CommandQueue

func (opt OptionCommandQueue) apply(cfg *config) {
	cfg.CommandQueue = types.CommandQueue(opt)
}
