package resource

import (
	"github.com/xaionaro-go/rawpipeline/types"
)

type hostManagerConfig struct {
	ResourceTypes   []types.ResourceType
	AllocationLimit uint64
}

type HostManagerOption interface {
	apply(*hostManagerConfig)
}

type HostManagerOptions []HostManagerOption

func (s HostManagerOptions) apply(cfg *hostManagerConfig) {
	for _, opt := range s {
		opt.apply(cfg)
	}
}

func (s HostManagerOptions) config() hostManagerConfig {
	cfg := hostManagerConfig{
		ResourceTypes: []types.ResourceType{types.ResourceTypeBufferCPU},
	}
	s.apply(&cfg)
	return cfg
}

// OptionResourceTypes sets which resource types are served from the host
// memory (device types are emulated).
type OptionResourceTypes []types.ResourceType

func (opt OptionResourceTypes) apply(cfg *hostManagerConfig) {
	cfg.ResourceTypes = opt
}

// OptionAllocationLimit limits the total amount of live bytes; zero means no limit.
type OptionAllocationLimit uint64

func (opt OptionAllocationLimit) apply(cfg *hostManagerConfig) {
	cfg.AllocationLimit = uint64(opt)
}
