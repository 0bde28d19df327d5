package codec

import (
	"context"

	"github.com/xaionaro-go/rawpipeline/codec/resource"
	"github.com/xaionaro-go/rawpipeline/types"
)

// ManualDecoder is the sizing oracle shared by both manual flows. Sizes vary
// per frame, so they must be requeried for every frame state.
type ManualDecoder interface {
	FrameStateSizeBytes(ctx context.Context) (uint64, error)
	PopulateFrameStateBuffer(ctx context.Context, frame Frame, frameState resource.Resource, sizeBytes uint64) error
	DecodedSizeBytes(ctx context.Context, frameState resource.Resource) (uint64, error)
	ProcessedSizeBytes(ctx context.Context, frameState resource.Resource) (uint64, error)
	CreateJobDecode(ctx context.Context, frameState, bitStream, decoded resource.Resource) (Job, error)
}

// ManualDecoderFlow1 decodes and processes in the host memory.
type ManualDecoderFlow1 interface {
	ManualDecoder
	CreateJobProcess(ctx context.Context, frameState, decoded, processed, post3DLUT resource.Resource) (Job, error)
}

// ManualDecoderFlow2 decodes on the host and processes on a GPU.
type ManualDecoderFlow2 interface {
	ManualDecoder
	WorkingSizeBytes(ctx context.Context, frameState resource.Resource) (uint64, error)
	CreateJobProcess(
		ctx context.Context,
		devCtx types.DeviceContext,
		queue types.CommandQueue,
		frameState, decoded, working, processed, post3DLUT resource.Resource,
	) (Job, error)
}
