package rawpipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/xaionaro-go/rawpipeline/buffermanager"
	"github.com/xaionaro-go/rawpipeline/codec"
	"github.com/xaionaro-go/rawpipeline/flow"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/rawpipeline/tensor"
	"github.com/xaionaro-go/rawpipeline/types"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
)

// FrameFunc receives the outcome of decoding a frame: either the image or
// the error. The image belongs to the function and must be closed by it.
// A returned error stops the submission of further frames.
type FrameFunc func(ctx context.Context, frameIndex uint64, image *tensor.Tensor, err error) error

// DecodeAll decodes every frame of the clip with at most maxJobs frames in
// flight, without the task machinery of RunFlow. fn is called from the
// codec threads, in the order the frames complete.
func (r *FrameImageReader) DecodeAll(
	ctx context.Context,
	pixelFormat types.ResourceFormat,
	scale types.ResolutionScale,
	maxJobs int,
	fn FrameFunc,
) (_err error) {
	logger.Debugf(ctx, "DecodeAll(ctx, %s, %s, %d)", pixelFormat, scale, maxJobs)
	defer func() { logger.Debugf(ctx, "/DecodeAll(ctx, %s, %s, %d): %v", pixelFormat, scale, maxJobs, _err) }()

	if scale.Factor() == 0 {
		return types.ErrValue{Name: "resolution scale", Value: scale, Reason: "unknown"}
	}
	counter, err := NewJobCounter(maxJobs)
	if err != nil {
		return types.ErrConfiguration{Reason: err.Error()}
	}
	clipEx, err := r.clip.AsClipEx()
	if err != nil {
		return fmt.Errorf("the clip does not support the manual flow: %w", err)
	}

	teardownCtx := xcontext.DetachDone(ctx)
	lut, releaseLUT, err := r.post3DLUT(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := releaseLUT(teardownCtx); err != nil {
			_err = errors.Join(_err, fmt.Errorf("unable to release the 3D LUT: %w", err))
		}
	}()

	submitCtx, stopSubmission := context.WithCancel(ctx)
	defer stopSubmission()
	m := &manualFlow{
		counter:        counter,
		jobs:           flow.NewJobData[manualJob](),
		stopSubmission: stopSubmission,
		slots:          make(chan buffermanager.BufferManager, maxJobs),
		format:         pixelFormat,
		scale:          scale,
		fn:             fn,
	}
	var allSlots []buffermanager.BufferManager
	defer func() {
		if err := types.CloseAll(teardownCtx, allSlots...); err != nil {
			_err = errors.Join(_err, fmt.Errorf("unable to release the slots: %w", err))
		}
	}()
	for range maxJobs {
		slot, err := r.newSlot(lut, pixelFormat)
		if err != nil {
			return fmt.Errorf("unable to create slot #%d: %w", len(allSlots), err)
		}
		allSlots = append(allSlots, slot)
		m.slots <- slot
	}

	if err := r.codec.SetCallback(ctx, m); err != nil {
		return fmt.Errorf("unable to install the callback: %w", err)
	}
	defer func() {
		// once flushed, every frame either finished or lost its user data
		if err := r.codec.FlushJobs(teardownCtx); err != nil {
			_err = errors.Join(_err, fmt.Errorf("unable to flush the jobs: %w", err))
		}
		if lost := counter.CurJobs(); lost > 0 {
			_err = errors.Join(_err, fmt.Errorf("%d frame(s) never completed: %w", lost, flow.ErrUnknownUserData))
		}
		if err := r.codec.SetCallback(teardownCtx, nil); err != nil {
			_err = errors.Join(_err, fmt.Errorf("unable to uninstall the callback: %w", err))
		}
		_err = errors.Join(_err, m.Err())
	}()

	for frameIndex := range r.clip.FrameCount() {
		if m.Err() != nil {
			logger.Debugf(ctx, "stopping the submission at frame #%d", frameIndex)
			break
		}
		if err := counter.StartJob(submitCtx); err != nil {
			if m.Err() != nil {
				break
			}
			return err
		}
		slot := <-m.slots
		if err := m.submitRead(ctx, clipEx, slot, frameIndex); err != nil {
			m.finish(ctx, manualJob{slot: slot, frameIndex: frameIndex}, nil, err)
		}
	}
	return nil
}

type manualJob struct {
	slot       buffermanager.BufferManager
	frameIndex uint64
}

// manualFlow is the codec callback of DecodeAll: every slot serves one
// frame at a time and the jobs are traced back to their frames by jobs.
type manualFlow struct {
	counter        *JobCounter
	jobs           *flow.JobData[manualJob]
	stopSubmission context.CancelFunc
	slots          chan buffermanager.BufferManager
	format         types.ResourceFormat
	scale          types.ResolutionScale
	fn             FrameFunc

	locker xsync.Mutex
	errs   []error
}

var _ codec.Callback = (*manualFlow)(nil)

func (m *manualFlow) Err() error {
	return xsync.DoR1(context.Background(), &m.locker, func() error {
		return errors.Join(m.errs...)
	})
}

// fail records the error and stops the submission of further frames.
func (m *manualFlow) fail(ctx context.Context, err error) {
	m.locker.Do(ctx, func() {
		m.errs = append(m.errs, err)
	})
	m.stopSubmission()
}

func (m *manualFlow) submitRead(
	ctx context.Context,
	clipEx codec.ClipEx,
	slot buffermanager.BufferManager,
	frameIndex uint64,
) error {
	job, err := slot.CreateReadJob(ctx, clipEx, frameIndex)
	if err != nil {
		return fmt.Errorf("unable to create the read job of frame #%d: %w", frameIndex, err)
	}
	return m.jobs.Submit(ctx, job, manualJob{slot: slot, frameIndex: frameIndex})
}

func (m *manualFlow) finish(
	ctx context.Context,
	mj manualJob,
	image *tensor.Tensor,
	err error,
) {
	if err != nil {
		logger.Errorf(ctx, "unable to decode frame #%d: %v", mj.frameIndex, err)
	}
	if fnErr := m.fn(ctx, mj.frameIndex, image, err); fnErr != nil {
		m.fail(ctx, fnErr)
	}
	m.slots <- mj.slot
	m.counter.EndJob(ctx)
}

func (m *manualFlow) userData(ctx context.Context, job codec.Job) (manualJob, bool) {
	mj, err := m.jobs.Pop(ctx, job)
	if err != nil {
		logger.Errorf(ctx, "%v", err)
		m.fail(ctx, err)
		return mj, false
	}
	return mj, true
}

func (m *manualFlow) ReadComplete(
	ctx context.Context,
	job codec.Job,
	result types.ResultCode,
	frame codec.Frame,
) {
	mj, ok := m.userData(ctx, job)
	if !ok {
		return
	}
	logger.Debugf(ctx, "read frame #%d: %s", mj.frameIndex, result)
	if !result.IsSuccess() {
		m.finish(ctx, mj, nil, codec.StageResult(types.StageRead, result))
		return
	}
	err := func() error {
		if err := frame.SetResolutionScale(m.scale); err != nil {
			return err
		}
		if err := frame.SetResourceFormat(m.format); err != nil {
			return err
		}
		if err := mj.slot.PopulateFrameStateBuffer(ctx, frame); err != nil {
			return err
		}
		decodeJob, err := mj.slot.CreateDecodeJob(ctx)
		if err != nil {
			return err
		}
		return m.jobs.Submit(ctx, decodeJob, mj)
	}()
	if err != nil {
		m.finish(ctx, mj, nil, err)
	}
}

func (m *manualFlow) DecodeComplete(
	ctx context.Context,
	job codec.Job,
	result types.ResultCode,
) {
	mj, ok := m.userData(ctx, job)
	if !ok {
		return
	}
	logger.Debugf(ctx, "decoded frame #%d: %s", mj.frameIndex, result)
	if !result.IsSuccess() {
		m.finish(ctx, mj, nil, codec.StageResult(types.StageDecode, result))
		return
	}
	processJob, err := mj.slot.CreateProcessJob(ctx)
	if err == nil {
		err = m.jobs.Submit(ctx, processJob, mj)
	}
	if err != nil {
		m.finish(ctx, mj, nil, err)
	}
}

func (m *manualFlow) ProcessComplete(
	ctx context.Context,
	job codec.Job,
	result types.ResultCode,
	image codec.ProcessedImage,
) {
	mj, ok := m.userData(ctx, job)
	if !ok {
		return
	}
	logger.Debugf(ctx, "processed frame #%d: %s", mj.frameIndex, result)
	if !result.IsSuccess() {
		m.finish(ctx, mj, nil, codec.StageResult(types.StageProcess, result))
		return
	}
	img, err := mj.slot.Postprocess(ctx, image, m.scale, buffermanager.PostprocessParams{})
	m.finish(ctx, mj, img, err)
}
