// handler.go implements Handler, the codec callback driving a frame through the read, decode and process stages.

// Package flow binds the codec completion protocol to tasks: a Handler
// advances every frame from one stage to the next and settles its task,
// while TaskManager admits the frames onto the slots.
package flow

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt"
	"github.com/xaionaro-go/rawpipeline/codec"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/rawpipeline/tensor"
	"github.com/xaionaro-go/rawpipeline/types"
	"go.uber.org/atomic"
)

// Handler receives the completions of the jobs from the codec threads.
type Handler struct {
	jobs      *JobData[UserData]
	counters  *types.Counters
	cancelled atomic.Bool
}

var _ codec.Callback = (*Handler)(nil)

func NewHandler() *Handler {
	return &Handler{
		jobs:     NewJobData[UserData](),
		counters: types.NewCounters(),
	}
}

// Cancel makes the handler cancel the tasks of the jobs completing from now
// on instead of advancing them. Jobs already in the codec still run.
func (h *Handler) Cancel() {
	h.cancelled.Store(true)
}

func (h *Handler) IsCancelled() bool {
	return h.cancelled.Load()
}

func (h *Handler) Statistics() types.Statistics {
	return h.counters.ToStats()
}

// JobsInFlight returns the amount of submitted jobs whose completion was not handled yet.
func (h *Handler) JobsInFlight() int {
	return h.jobs.Len(context.Background())
}

func (h *Handler) submit(
	ctx context.Context,
	stage types.Stage,
	job codec.Job,
	ud UserData,
) error {
	h.counters.Stage(stage).Submitted.Increment(0)
	return h.jobs.Submit(ctx, job, ud)
}

func (h *Handler) userData(ctx context.Context, job codec.Job) (UserData, bool) {
	ud, err := h.jobs.Pop(ctx, job)
	if err != nil {
		logger.Errorf(ctx, "%v", err)
		return UserData{}, false
	}
	return ud, true
}

func taskCtx(ctx context.Context, t *Task) context.Context {
	ctx = belt.WithField(ctx, "frame_index", t.Params().FrameIndex)
	return belt.WithField(ctx, "task_id", t.ID().String())
}

// begin recovers the task of the completed job and decides whether its
// pipeline continues.
func (h *Handler) begin(
	ctx context.Context,
	stage types.Stage,
	job codec.Job,
	result types.ResultCode,
	sizeBytes uint64,
) (context.Context, UserData, bool) {
	h.counters.StageCompleted(stage, result, sizeBytes)
	ud, ok := h.userData(ctx, job)
	if !ok {
		return ctx, ud, false
	}
	ctx = taskCtx(ctx, ud.Task)
	switch {
	case ud.Task.IsDone():
		logger.Debugf(ctx, "%s is already %s, dropping the %s result", ud.Task, ud.Task.State(), stage)
		return ctx, ud, false
	case h.IsCancelled(), ud.Task.IsCancelRequested():
		logger.Debugf(ctx, "cancelled after %s", stage)
		h.cancel(ctx, ud.Task)
		return ctx, ud, false
	case !result.IsSuccess():
		h.reject(ctx, ud.Task, codec.StageResult(stage, result))
		return ctx, ud, false
	}
	logger.Debugf(ctx, "%s: %s", stage, result)
	return ctx, ud, true
}

// cancel aborts the task; the caller just popped the last job of the task
// in flight, so the slot buffers are not in use anymore.
func (h *Handler) cancel(ctx context.Context, t *Task) {
	if err := t.Abort(ctx); err != nil {
		logger.Debugf(ctx, "unable to cancel %s: %v", t, err)
		return
	}
	h.counters.TasksCancelled.Add(1)
}

func (h *Handler) reject(ctx context.Context, t *Task, err error) {
	logger.Debugf(ctx, "rejecting %s: %v", t, err)
	if rejectErr := t.Reject(ctx, err); rejectErr != nil {
		logger.Debugf(ctx, "unable to reject %s: %v", t, rejectErr)
		return
	}
	h.counters.TasksRejected.Add(1)
}

func (h *Handler) resolve(ctx context.Context, t *Task, value *tensor.Tensor) {
	if err := t.Resolve(ctx, value); err != nil {
		logger.Debugf(ctx, "unable to resolve %s: %v", t, err)
		if err := value.Close(ctx); err != nil {
			logger.Errorf(ctx, "unable to close the image of %s: %v", t, err)
		}
		return
	}
	h.counters.TasksResolved.Add(1)
}

func (h *Handler) ReadComplete(
	ctx context.Context,
	job codec.Job,
	result types.ResultCode,
	frame codec.Frame,
) {
	ctx, ud, ok := h.begin(ctx, types.StageRead, job, result, 0)
	if !ok {
		return
	}
	params := ud.Task.Params()
	err := func() error {
		if err := frame.SetResolutionScale(params.ResolutionScale); err != nil {
			return fmt.Errorf("unable to set the resolution scale %s: %w", params.ResolutionScale, err)
		}
		if err := frame.SetResourceFormat(params.PixelFormat); err != nil {
			return fmt.Errorf("unable to set the pixel format %s: %w", params.PixelFormat, err)
		}
		if err := ud.Slot.PopulateFrameStateBuffer(ctx, frame); err != nil {
			return err
		}
		decodeJob, err := ud.Slot.CreateDecodeJob(ctx)
		if err != nil {
			return fmt.Errorf("unable to create the decode job: %w", err)
		}
		return h.submit(ctx, types.StageDecode, decodeJob, ud)
	}()
	if err != nil {
		h.reject(ctx, ud.Task, err)
	}
}

func (h *Handler) DecodeComplete(
	ctx context.Context,
	job codec.Job,
	result types.ResultCode,
) {
	ctx, ud, ok := h.begin(ctx, types.StageDecode, job, result, 0)
	if !ok {
		return
	}
	processJob, err := ud.Slot.CreateProcessJob(ctx)
	if err != nil {
		h.reject(ctx, ud.Task, fmt.Errorf("unable to create the process job: %w", err))
		return
	}
	if err := h.submit(ctx, types.StageProcess, processJob, ud); err != nil {
		h.reject(ctx, ud.Task, err)
	}
}

func (h *Handler) ProcessComplete(
	ctx context.Context,
	job codec.Job,
	result types.ResultCode,
	image codec.ProcessedImage,
) {
	var sizeBytes uint64
	if image != nil {
		sizeBytes = image.Resource().SizeBytes
	}
	ctx, ud, ok := h.begin(ctx, types.StageProcess, job, result, sizeBytes)
	if !ok {
		return
	}
	params := ud.Task.Params()
	value, err := ud.Slot.Postprocess(ctx, image, params.ResolutionScale, params.Postprocess)
	if err != nil {
		h.reject(ctx, ud.Task, fmt.Errorf("unable to postprocess: %w", err))
		return
	}
	h.resolve(ctx, ud.Task, value)
}
