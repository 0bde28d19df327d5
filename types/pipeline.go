package types

type Pipeline uint32

const (
	PipelineCPU    = Pipeline(0x6370755f) // 'cpu_'
	PipelineCUDA   = Pipeline(0x63756461) // 'cuda'
	PipelineMetal  = Pipeline(0x6d65746c) // 'metl'
	PipelineOpenCL = Pipeline(0x6f70636c) // 'opcl'
)

func (p Pipeline) String() string {
	switch p {
	case PipelineCPU:
		return "cpu"
	case PipelineCUDA:
		return "cuda"
	case PipelineMetal:
		return "metal"
	case PipelineOpenCL:
		return "opencl"
	default:
		return fourCCString(uint32(p))
	}
}

// ResourceType returns the kind of buffers the pipeline processes in.
func (p Pipeline) ResourceType() ResourceType {
	switch p {
	case PipelineCPU:
		return ResourceTypeBufferCPU
	case PipelineCUDA:
		return ResourceTypeBufferCUDA
	case PipelineMetal:
		return ResourceTypeBufferMetal
	case PipelineOpenCL:
		return ResourceTypeBufferOpenCL
	default:
		return ResourceTypeNone
	}
}

// DeviceContext is an opaque handle of a device API context (e.g. a CUcontext).
type DeviceContext uintptr

// CommandQueue is an opaque handle of a device command queue/stream.
type CommandQueue uintptr
