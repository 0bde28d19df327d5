// codec.go implements Codec, a software engine running the raw codec job protocol in-process.

// Package simcodec provides an in-process implementation of the codec
// engine contract: jobs are executed on a bounded set of goroutines and
// produce deterministic synthetic pictures. It is used to exercise the
// pipeline without the proprietary engine.
package simcodec

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/rawpipeline/codec"
	"github.com/xaionaro-go/rawpipeline/codec/resource"
	"github.com/xaionaro-go/rawpipeline/helpers/closuresignaler"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/rawpipeline/types"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

// Call is a record of a completed job.
type Call struct {
	Stage      types.Stage
	FrameIndex uint64
	Result     types.ResultCode
}

func (c Call) String() string {
	return fmt.Sprintf("%s#%d:%s", c.Stage, c.FrameIndex, c.Result)
}

type Codec struct {
	*closuresignaler.ClosureSignaler
	config    config
	resources *resource.HostManager
	workerSem chan struct{}
	counters  *types.Counters

	jobsCreated  atomic.Uint64
	jobsReleased atomic.Uint64

	locker            xsync.Mutex
	callback          codec.Callback
	pipeline          types.Pipeline
	deviceContext     types.DeviceContext
	commandQueue      types.CommandQueue
	clips             map[string]ClipInfo
	calls             []Call
	inFlight          int
	changeChanNoJobs  *chan struct{}
	allocatedClipLUTs []resource.Resource
}

var _ codec.Codec = (*Codec)(nil)

func New(opts ...Option) *Codec {
	cfg := Options(opts).config()
	c := &Codec{
		ClosureSignaler: closuresignaler.New(),
		config:          cfg,
		resources: resource.NewHostManager(
			resource.OptionResourceTypes{
				types.ResourceTypeBufferCPU,
				types.ResourceTypeBufferCUDA,
				types.ResourceTypeBufferOpenCL,
				types.ResourceTypeBufferMetal,
			},
			resource.OptionAllocationLimit(cfg.AllocationLimit),
		),
		workerSem:        make(chan struct{}, cfg.Workers),
		counters:         types.NewCounters(),
		pipeline:         types.PipelineCPU,
		clips:            map[string]ClipInfo{},
		changeChanNoJobs: ptr(make(chan struct{})),
	}
	c.OnClose(c.releaseClipLUTs)
	return c
}

func (c *Codec) String() string {
	return fmt.Sprintf("simcodec(workers:%d)", c.config.Workers)
}

func (c *Codec) ResourceManager() codec.ResourceManager {
	return c.resources
}

// HostResources returns the resource manager with its host-side accessors.
func (c *Codec) HostResources() *resource.HostManager {
	return c.resources
}

func (c *Codec) SetCallback(ctx context.Context, callback codec.Callback) error {
	logger.Debugf(ctx, "SetCallback(ctx, %T)", callback)
	c.locker.Do(ctx, func() {
		c.callback = callback
	})
	return nil
}

func (c *Codec) getCallback(ctx context.Context) codec.Callback {
	return xsync.DoR1(ctx, &c.locker, func() codec.Callback {
		return c.callback
	})
}

func (c *Codec) IsPipelineSupported(pipeline types.Pipeline) bool {
	return slices.Contains(c.config.SupportedPipelines, pipeline)
}

func (c *Codec) SetPipeline(
	ctx context.Context,
	pipeline types.Pipeline,
	devCtx types.DeviceContext,
	queue types.CommandQueue,
) error {
	logger.Debugf(ctx, "SetPipeline(ctx, %s, 0x%X, 0x%X)", pipeline, devCtx, queue)
	if !c.IsPipelineSupported(pipeline) {
		return codec.Verify("SetPipeline", types.ResultCodeNotImpl)
	}
	c.locker.Do(ctx, func() {
		c.pipeline = pipeline
		c.deviceContext = devCtx
		c.commandQueue = queue
	})
	return nil
}

func (c *Codec) Pipeline() types.Pipeline {
	return xsync.DoR1(context.Background(), &c.locker, func() types.Pipeline {
		return c.pipeline
	})
}

// FlushJobs waits until every submitted job (including the jobs submitted
// by the callbacks of other jobs) has completed.
func (c *Codec) FlushJobs(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "FlushJobs")
	defer func() { logger.Debugf(ctx, "/FlushJobs: %v", _err) }()
	for {
		ch := xsync.DoR1(ctx, &c.locker, func() <-chan struct{} {
			if c.inFlight == 0 {
				return nil
			}
			return *xatomic.LoadPointer(&c.changeChanNoJobs)
		})
		if ch == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (c *Codec) jobStarted(ctx context.Context, stage types.Stage) {
	c.counters.Stage(stage).Submitted.Increment(0)
	c.locker.Do(ctx, func() {
		c.inFlight++
	})
}

func (c *Codec) jobFinished(ctx context.Context) {
	c.locker.Do(ctx, func() {
		c.inFlight--
		if c.inFlight == 0 {
			close(*xatomic.SwapPointer(&c.changeChanNoJobs, ptr(make(chan struct{}))))
		}
	})
}

func (c *Codec) recordCall(ctx context.Context, call Call, sizeBytes uint64) {
	c.counters.StageCompleted(call.Stage, call.Result, sizeBytes)
	c.locker.Do(ctx, func() {
		c.calls = append(c.calls, call)
	})
}

// Calls returns the log of the completed jobs in completion order.
func (c *Codec) Calls() []Call {
	return xsync.DoR1(context.Background(), &c.locker, func() []Call {
		return slices.Clone(c.calls)
	})
}

// CallsOf returns the stages completed for the frame, in completion order.
func (c *Codec) CallsOf(frameIndex uint64) []types.Stage {
	var stages []types.Stage
	for _, call := range c.Calls() {
		if call.FrameIndex == frameIndex {
			stages = append(stages, call.Stage)
		}
	}
	return stages
}

func (c *Codec) Statistics() types.Statistics {
	return c.counters.ToStats()
}

// JobsCreated returns how many jobs were created and how many of them were released by their submitters.
func (c *Codec) JobsCreated() (created, released uint64) {
	return c.jobsCreated.Load(), c.jobsReleased.Load()
}

func (c *Codec) ManualDecoderFlow1() (codec.ManualDecoderFlow1, error) {
	return &manualDecoderFlow1{manualDecoder{codec: c}}, nil
}

func (c *Codec) ManualDecoderFlow2() (codec.ManualDecoderFlow2, error) {
	return &manualDecoderFlow2{manualDecoder{codec: c}}, nil
}

func (c *Codec) releaseClipLUTs(ctx context.Context) error {
	luts := xsync.DoR1(ctx, &c.locker, func() []resource.Resource {
		luts := c.allocatedClipLUTs
		c.allocatedClipLUTs = nil
		return luts
	})
	var errs []error
	for _, lut := range luts {
		if err := c.resources.ReleaseResource(ctx, 0, 0, lut); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func ptr[T any](v T) *T {
	return &v
}
