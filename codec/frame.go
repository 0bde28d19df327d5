package codec

import (
	"github.com/xaionaro-go/rawpipeline/codec/resource"
	"github.com/xaionaro-go/rawpipeline/types"
)

// Frame is the result of a read job.
type Frame interface {
	FrameIndex() uint64
	SetResolutionScale(types.ResolutionScale) error
	SetResourceFormat(types.ResourceFormat) error
}

// ProcessedImage is the result of a process job.
type ProcessedImage interface {
	Resource() resource.Resource
	ResourceType() types.ResourceType
	ResourceFormat() types.ResourceFormat
	Width() uint32
	Height() uint32
}
