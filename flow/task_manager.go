package flow

import (
	"context"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/rawpipeline/buffermanager"
	"github.com/xaionaro-go/rawpipeline/codec"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/rawpipeline/task"
	"github.com/xaionaro-go/rawpipeline/taskmanager"
	"github.com/xaionaro-go/rawpipeline/tensor"
	"github.com/xaionaro-go/rawpipeline/types"
)

// Params are the parameters of decoding one frame.
type Params struct {
	FrameIndex      uint64
	PixelFormat     types.ResourceFormat
	ResolutionScale types.ResolutionScale
	Postprocess     buffermanager.PostprocessParams
}

type Task = task.Task[Params, *tensor.Tensor]

// TaskManager admits frame tasks onto a pool of slots and starts their
// pipelines with read jobs.
type TaskManager struct {
	*taskmanager.TaskManager[Params, *tensor.Tensor, buffermanager.BufferManager]
	handler     *Handler
	clip        codec.Clip
	clipEx      codec.ClipEx
	pixelFormat types.ResourceFormat
}

var _ taskmanager.Starter[Params, *tensor.Tensor, buffermanager.BufferManager] = (*TaskManager)(nil)

func NewTaskManager(
	handler *Handler,
	clip codec.Clip,
	slots []buffermanager.BufferManager,
	pixelFormat types.ResourceFormat,
) (*TaskManager, error) {
	if handler == nil {
		return nil, types.ErrConfiguration{Reason: "no callback handler"}
	}
	clipEx, err := clip.AsClipEx()
	if err != nil {
		return nil, fmt.Errorf("the clip does not support the manual flow: %w", err)
	}
	m := &TaskManager{
		handler:     handler,
		clip:        clip,
		clipEx:      clipEx,
		pixelFormat: pixelFormat,
	}
	m.TaskManager, err = taskmanager.New[Params, *tensor.Tensor](m, slots)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *TaskManager) PixelFormat() types.ResourceFormat {
	return m.pixelFormat
}

func (m *TaskManager) Handler() *Handler {
	return m.handler
}

// EnqueueTask queues the decoding of the frame. The returned task must be
// consumed to free its slot.
func (m *TaskManager) EnqueueTask(
	ctx context.Context,
	frameIndex uint64,
	opts ...TaskOption,
) (_ret *Task, _err error) {
	logger.Tracef(ctx, "EnqueueTask(ctx, %d)", frameIndex)
	defer func() { logger.Tracef(ctx, "/EnqueueTask(ctx, %d): %v %v", frameIndex, _ret, _err) }()

	if frameCount := m.clip.FrameCount(); frameIndex >= frameCount {
		return nil, types.ErrValue{
			Name:   "frame index",
			Value:  frameIndex,
			Reason: fmt.Sprintf("the clip has %d frames", frameCount),
		}
	}
	cfg := TaskOptions(opts).config()
	if cfg.ResolutionScale.Factor() == 0 {
		return nil, types.ErrValue{Name: "resolution scale", Value: cfg.ResolutionScale, Reason: "unknown"}
	}
	params := Params{
		FrameIndex:      frameIndex,
		PixelFormat:     m.pixelFormat,
		ResolutionScale: cfg.ResolutionScale,
		Postprocess:     cfg.Postprocess,
	}
	logger.Tracef(ctx, "params: %s", spew.Sdump(params))

	t := task.New[Params, *tensor.Tensor](m.TaskManager, params)
	m.Enqueue(ctx, t)
	return t, nil
}

// StartTask issues the read job of a task admitted onto the slot.
func (m *TaskManager) StartTask(
	ctx context.Context,
	t *Task,
	slot buffermanager.BufferManager,
) (_err error) {
	ctx = taskCtx(ctx, t)
	logger.Debugf(ctx, "StartTask")
	defer func() { logger.Debugf(ctx, "/StartTask: %v", _err) }()

	job, err := slot.CreateReadJob(ctx, m.clipEx, t.Params().FrameIndex)
	if err != nil {
		return fmt.Errorf("unable to create the read job: %w", err)
	}
	return m.handler.submit(ctx, types.StageRead, job, UserData{Slot: slot, Task: t})
}
