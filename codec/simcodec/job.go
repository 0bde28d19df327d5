package simcodec

import (
	"context"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/rawpipeline/codec"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/rawpipeline/types"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

type workOutput struct {
	Frame     codec.Frame
	Image     codec.ProcessedImage
	SizeBytes uint64
}

type work interface {
	execute(ctx context.Context) (types.ResultCode, workOutput)
}

type job struct {
	codec      *Codec
	stage      types.Stage
	frameIndex uint64
	work       work

	submitted atomic.Bool
	released  atomic.Bool

	locker      xsync.Mutex
	userData    any
	hasUserData bool
}

var _ codec.Job = (*job)(nil)

func (c *Codec) newJob(stage types.Stage, frameIndex uint64, w work) *job {
	c.jobsCreated.Inc()
	return &job{
		codec:      c,
		stage:      stage,
		frameIndex: frameIndex,
		work:       w,
	}
}

func (j *job) String() string {
	return fmt.Sprintf("Job(%s#%d)", j.stage, j.frameIndex)
}

func (j *job) Submit(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Submit[%s]", j)
	defer func() { logger.Tracef(ctx, "/Submit[%s]: %v", j, _err) }()

	if j.released.Load() {
		return codec.Verify(fmt.Sprintf("%s.Submit", j), types.ResultCodeHandle)
	}
	if j.codec.IsClosed() {
		return codec.Verify(fmt.Sprintf("%s.Submit", j), types.ResultCodeAbort)
	}
	if !j.submitted.CompareAndSwap(false, true) {
		return codec.Verify(fmt.Sprintf("%s.Submit", j), types.ResultCodeUnexpected)
	}

	j.codec.jobStarted(ctx, j.stage)
	ctx = belt.WithField(xcontext.DetachDone(ctx), "job", j.String())
	observability.Go(ctx, func(ctx context.Context) {
		defer j.codec.jobFinished(ctx)
		j.run(ctx)
	})
	return nil
}

func (j *job) run(ctx context.Context) {
	j.codec.workerSem <- struct{}{}
	if d := j.latency(); d > 0 {
		time.Sleep(d)
	}
	var (
		rc  types.ResultCode
		out workOutput
	)
	if j.codec.IsClosed() {
		rc = types.ResultCodeAbort
	} else {
		rc, out = j.work.execute(ctx)
	}
	<-j.codec.workerSem

	j.codec.recordCall(ctx, Call{Stage: j.stage, FrameIndex: j.frameIndex, Result: rc}, out.SizeBytes)
	logger.Tracef(ctx, "%s completed: %s", j, rc)

	cb := j.codec.getCallback(ctx)
	if cb == nil {
		logger.Warnf(ctx, "no callback installed, dropping the completion of %s (%s)", j, rc)
		return
	}
	switch j.stage {
	case types.StageRead:
		cb.ReadComplete(ctx, j, rc, out.Frame)
	case types.StageDecode:
		cb.DecodeComplete(ctx, j, rc)
	case types.StageProcess:
		cb.ProcessComplete(ctx, j, rc, out.Image)
	default:
		logger.Errorf(ctx, "internal error: unexpected stage %s", j.stage)
	}
}

// latency spreads the jobs over [0, Latency] deterministically, so that
// frames admitted in order complete out of order.
func (j *job) latency() time.Duration {
	limit := j.codec.config.Latency
	if limit <= 0 {
		return 0
	}
	h := (j.frameIndex*2654435761 + uint64(j.stage)*40503) % 16
	return limit * time.Duration(h+1) / 16
}

func (j *job) Release() {
	if j.released.CompareAndSwap(false, true) {
		j.codec.jobsReleased.Inc()
	}
}

func (j *job) SetUserData(v any) error {
	j.locker.Do(context.Background(), func() {
		j.userData = v
		j.hasUserData = true
	})
	return nil
}

func (j *job) PopUserData() (any, error) {
	return xsync.DoR2(context.Background(), &j.locker, func() (any, error) {
		if !j.hasUserData {
			return nil, codec.Verify(fmt.Sprintf("%s.PopUserData", j), types.ResultCodeFail)
		}
		v := j.userData
		j.userData, j.hasUserData = nil, false
		return v, nil
	})
}
