package simcodec

import (
	"runtime"
	"time"

	"github.com/xaionaro-go/rawpipeline/types"
)

type config struct {
	Workers            int
	Latency            time.Duration
	FailRead           func(frameIndex uint64) bool
	FailDecode         func(frameIndex uint64) bool
	FailProcess        func(frameIndex uint64) bool
	AllocationLimit    uint64
	SupportedPipelines []types.Pipeline
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
	cfg := config{
		Workers:            runtime.NumCPU(),
		SupportedPipelines: []types.Pipeline{types.PipelineCPU, types.PipelineCUDA},
	}
	s.apply(&cfg)
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return cfg
}

// OptionWorkers is the amount of jobs executed simultaneously.
type OptionWorkers int

func (opt OptionWorkers) apply(cfg *config) {
	cfg.Workers = int(opt)
}

// OptionLatency is the upper bound of the time a job takes; the actual value
// is derived from the frame index and the stage, so that frames finish out of order.
type OptionLatency time.Duration

func (opt OptionLatency) apply(cfg *config) {
	cfg.Latency = time.Duration(opt)
}

// OptionFailRead makes the read jobs of the matching frames report E_FAIL.
type OptionFailRead func(frameIndex uint64) bool

func (opt OptionFailRead) apply(cfg *config) {
	cfg.FailRead = opt
}

// OptionFailDecode makes the decode jobs of the matching frames report E_FAIL.
type OptionFailDecode func(frameIndex uint64) bool

func (opt OptionFailDecode) apply(cfg *config) {
	cfg.FailDecode = opt
}

// OptionFailProcess makes the process jobs of the matching frames report E_FAIL.
type OptionFailProcess func(frameIndex uint64) bool

func (opt OptionFailProcess) apply(cfg *config) {
	cfg.FailProcess = opt
}

// OptionAllocationLimit limits the total size of live resources; zero means no limit.
type OptionAllocationLimit uint64

func (opt OptionAllocationLimit) apply(cfg *config) {
	cfg.AllocationLimit = uint64(opt)
}

type OptionSupportedPipelines []types.Pipeline

func (opt OptionSupportedPipelines) apply(cfg *config) {
	cfg.SupportedPipelines = opt
}
