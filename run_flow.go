package rawpipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/experimental/errmon"
	"github.com/xaionaro-go/rawpipeline/buffermanager"
	"github.com/xaionaro-go/rawpipeline/codec/resource"
	"github.com/xaionaro-go/rawpipeline/flow"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/rawpipeline/types"
	"github.com/xaionaro-go/xcontext"
)

const DefaultMaxRunningTasks = 3

// RunFlow builds a pool of maxRunningTasks slots decoding into pixelFormat,
// hands the task manager to fn and tears everything down once fn returns:
// queued tasks are cancelled, running ones are cancelled at their next stage
// and consumed, the codec is flushed and the slots are released. Values of
// the tasks fn did not consume are closed.
func (r *FrameImageReader) RunFlow(
	ctx context.Context,
	pixelFormat types.ResourceFormat,
	maxRunningTasks int,
	fn func(context.Context, *flow.TaskManager) error,
) (_err error) {
	logger.Debugf(ctx, "RunFlow(ctx, %s, %d)", pixelFormat, maxRunningTasks)
	defer func() { logger.Debugf(ctx, "/RunFlow(ctx, %s, %d): %v", pixelFormat, maxRunningTasks, _err) }()

	if maxRunningTasks < 1 {
		return types.ErrConfiguration{Reason: fmt.Sprintf("at least one running task is required, got %d", maxRunningTasks)}
	}

	closer := astikit.NewCloser()
	teardownCtx := xcontext.DetachDone(ctx)
	defer func() {
		if err := closer.Close(); err != nil {
			_err = errors.Join(_err, fmt.Errorf("unable to release the slots: %w", err))
		}
	}()

	lut, releaseLUT, err := r.post3DLUT(ctx)
	if err != nil {
		return err
	}
	closer.AddWithError(func() error {
		return releaseLUT(teardownCtx)
	})

	slots := make([]buffermanager.BufferManager, 0, maxRunningTasks)
	for range maxRunningTasks {
		slot, err := r.newSlot(lut, pixelFormat)
		if err != nil {
			return fmt.Errorf("unable to create slot #%d: %w", len(slots), err)
		}
		slots = append(slots, slot)
		closer.AddWithError(func() error {
			return slot.Close(teardownCtx)
		})
	}

	handler := flow.NewHandler()
	taskManager, err := flow.NewTaskManager(handler, r.clip, slots, pixelFormat)
	if err != nil {
		return err
	}
	if err := r.codec.SetCallback(ctx, handler); err != nil {
		return fmt.Errorf("unable to install the callback: %w", err)
	}
	defer func() {
		if err := r.teardown(teardownCtx, taskManager); err != nil {
			_err = errors.Join(_err, err)
		}
	}()

	return fn(ctx, taskManager)
}

func (r *FrameImageReader) newSlot(
	post3DLUT resource.Resource,
	pixelFormat types.ResourceFormat,
) (buffermanager.BufferManager, error) {
	mgr := r.codec.ResourceManager()
	switch r.pipeline {
	case types.PipelineCPU:
		return buffermanager.NewFlow1(r.decoderFlow1, mgr, post3DLUT, pixelFormat)
	case types.PipelineCUDA:
		return buffermanager.NewFlow2(r.decoderFlow2, mgr, post3DLUT, pixelFormat, r.deviceContext, r.commandQueue, r.device)
	default:
		return nil, types.ErrNotImplemented{Err: fmt.Errorf("pipeline %s", r.pipeline)}
	}
}

func (r *FrameImageReader) teardown(
	ctx context.Context,
	taskManager *flow.TaskManager,
) (_err error) {
	logger.Debugf(ctx, "teardown")
	defer func() { logger.Debugf(ctx, "/teardown: %v", _err) }()

	taskManager.ClearQueue(ctx)
	taskManager.Handler().Cancel()
	for _, v := range taskManager.ConsumeRemaining(ctx) {
		if err := v.Close(ctx); err != nil {
			errmon.ObserveErrorCtx(ctx, fmt.Errorf("unable to close an unconsumed image: %w", err))
		}
	}

	var errs []error
	if err := r.codec.FlushJobs(ctx); err != nil {
		errs = append(errs, fmt.Errorf("unable to flush the jobs: %w", err))
	}
	if err := r.codec.SetCallback(ctx, nil); err != nil {
		errs = append(errs, fmt.Errorf("unable to uninstall the callback: %w", err))
	}
	return errors.Join(errs...)
}
