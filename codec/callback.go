package codec

import (
	"context"

	"github.com/xaionaro-go/rawpipeline/types"
)

// Callback is invoked by the engine from threads it controls.
type Callback interface {
	ReadComplete(ctx context.Context, job Job, result types.ResultCode, frame Frame)
	DecodeComplete(ctx context.Context, job Job, result types.ResultCode)
	ProcessComplete(ctx context.Context, job Job, result types.ResultCode, image ProcessedImage)
}
