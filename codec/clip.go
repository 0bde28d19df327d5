package codec

import (
	"context"

	"github.com/xaionaro-go/rawpipeline/codec/resource"
)

type Clip interface {
	FrameCount() uint64
	Width() uint32
	Height() uint32
	FrameRate() float32

	// Post3DLUT returns the color lookup table the clip declares, if any.
	Post3DLUT() (Post3DLUT, bool)

	AsClipEx() (ClipEx, error)
}

// ClipEx is the part of a clip used by the manual decoding flows.
type ClipEx interface {
	BitStreamSizeBytes(ctx context.Context, frameIndex uint64) (uint64, error)
	CreateJobReadFrame(ctx context.Context, frameIndex uint64, bitStream resource.Resource, sizeBytes uint64) (Job, error)
}

type Post3DLUT interface {
	ResourceCPU() resource.Resource
	ResourceSizeBytes() uint64
}
