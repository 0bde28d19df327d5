// codec.go defines the contract of the external raw codec engine.

// Package codec describes the raw codec engine the pipeline drives. The engine
// itself is a black box: it accepts submitted jobs, runs them on its own
// threads and reports completion through a Callback.
package codec

import (
	"context"

	"github.com/xaionaro-go/rawpipeline/codec/resource"
	"github.com/xaionaro-go/rawpipeline/types"
)

type ResourceManager = resource.Manager

type Codec interface {
	// OpenClip fails with types.ErrIO or types.ErrFormat on bad input.
	OpenClip(ctx context.Context, path string) (Clip, error)

	// SetCallback installs the handler of job completions; nil uninstalls it.
	SetCallback(ctx context.Context, callback Callback) error

	// FlushJobs blocks until every submitted job has completed and its callback returned.
	FlushJobs(ctx context.Context) error

	ResourceManager() ResourceManager

	IsPipelineSupported(pipeline types.Pipeline) bool
	SetPipeline(ctx context.Context, pipeline types.Pipeline, devCtx types.DeviceContext, queue types.CommandQueue) error

	ManualDecoderFlow1() (ManualDecoderFlow1, error)
	ManualDecoderFlow2() (ManualDecoderFlow2, error)
}
