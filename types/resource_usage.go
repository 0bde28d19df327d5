package types

type ResourceUsage uint32

const (
	ResourceUsageReadCPUWriteCPU = ResourceUsage(0x72637763) // 'rcwc'
	ResourceUsageReadGPUWriteGPU = ResourceUsage(0x72677767) // 'rgwg'

	// ResourceUsageReadGPUWriteCPU is a host buffer filled by the CPU and
	// consumed by the device; the engine backs it with page-locked memory.
	ResourceUsageReadGPUWriteCPU = ResourceUsage(0x72677763) // 'rgwc'
	ResourceUsageReadCPUWriteGPU = ResourceUsage(0x72637767) // 'rcwg'
)

func (u ResourceUsage) IsPinned() bool {
	return u == ResourceUsageReadGPUWriteCPU || u == ResourceUsageReadCPUWriteGPU
}

func (u ResourceUsage) String() string {
	return fourCCString(uint32(u))
}
