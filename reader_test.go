package rawpipeline_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/rawpipeline"
	"github.com/xaionaro-go/rawpipeline/codec/simcodec"
	"github.com/xaionaro-go/rawpipeline/flow"
	"github.com/xaionaro-go/rawpipeline/task"
	"github.com/xaionaro-go/rawpipeline/tensor"
	"github.com/xaionaro-go/rawpipeline/types"
)

func testCtx(t *testing.T) context.Context {
	l := logrus.Default().WithLevel(logger.LevelDebug)
	ctx := logger.CtxWithLogger(context.Background(), l)
	t.Cleanup(func() { belt.Flush(ctx) })
	return ctx
}

func newReader(
	t *testing.T,
	ctx context.Context,
	path string,
	device types.Device,
	codecOpts []simcodec.Option,
	opts ...rawpipeline.Option,
) (*simcodec.Codec, *rawpipeline.FrameImageReader) {
	c := simcodec.New(codecOpts...)
	t.Cleanup(func() { require.NoError(t, c.Close(ctx)) })
	r, err := rawpipeline.NewFrameImageReader(ctx, c, path, device, opts...)
	require.NoError(t, err)
	return c, r
}

func TestNewFrameImageReader(t *testing.T) {
	ctx := testCtx(t)

	t.Run("accessors", func(t *testing.T) {
		_, r := newReader(t, ctx, "sim://4096x2160?frames=10&fps=25", types.DeviceCPU, nil)
		require.Equal(t, uint64(10), r.FrameCount())
		require.Equal(t, uint32(4096), r.FrameWidth())
		require.Equal(t, uint32(2160), r.FrameHeight())
		require.Equal(t, float32(25), r.FrameRate())
		require.Equal(t, types.Rational{Num: 25, Den: 1}, r.FrameRateRational())
		require.Equal(t, 2*time.Second, r.FrameTimestamp(50))
	})

	t.Run("unsupported device", func(t *testing.T) {
		c := simcodec.New()
		defer c.Close(ctx)
		_, err := rawpipeline.NewFrameImageReader(ctx, c, "sim://64x64", types.Device{Type: types.ResourceTypeBufferMetal}, rawpipeline.OptionDeviceContext(1))
		require.ErrorAs(t, err, &types.ErrConfiguration{})
	})

	t.Run("unsupported pipeline", func(t *testing.T) {
		c := simcodec.New(simcodec.OptionSupportedPipelines{types.PipelineCPU})
		defer c.Close(ctx)
		_, err := rawpipeline.NewFrameImageReader(ctx, c, "sim://64x64", types.DeviceCUDA(0), rawpipeline.OptionDeviceContext(1))
		require.ErrorAs(t, err, &types.ErrConfiguration{})
	})

	t.Run("missing clip", func(t *testing.T) {
		c := simcodec.New()
		defer c.Close(ctx)
		_, err := rawpipeline.NewFrameImageReader(ctx, c, "/nonexistent.braw", types.DeviceCPU)
		require.ErrorAs(t, err, &types.ErrIO{})
	})
}

func TestRunFlow(t *testing.T) {
	ctx := testCtx(t)
	c, r := newReader(t, ctx, "sim://256x128?frames=8&lut=true", types.DeviceCPU,
		[]simcodec.Option{simcodec.OptionWorkers(2), simcodec.OptionLatency(3 * time.Millisecond)})
	liveBefore := c.HostResources().Stats().Live

	err := r.RunFlow(ctx, types.ResourceFormatRGBF32Planar, 3, func(ctx context.Context, tm *flow.TaskManager) error {
		var tasks []*flow.Task
		for idx := range r.FrameCount() {
			tsk, err := tm.EnqueueTask(ctx, idx,
				flow.OptionResolutionScale(types.ResolutionScaleHalf),
				flow.OptionCrop{X: 64, Y: 32, Width: 128, Height: 64},
			)
			require.NoError(t, err)
			tasks = append(tasks, tsk)
		}
		require.Equal(t, 3, tm.RunningCount())

		// frames 4..7 are left to the teardown
		for _, tsk := range tasks[:4] {
			img, err := tsk.Consume(ctx)
			require.NoError(t, err)
			require.Equal(t, []int{3, 32, 64}, img.Shape)
			require.Equal(t, types.DataTypeF32, img.DataType)
			require.NoError(t, img.Close(ctx))
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, liveBefore, c.HostResources().Stats().Live)
	require.NoError(t, c.FlushJobs(ctx))
}

func TestRunFlowError(t *testing.T) {
	ctx := testCtx(t)
	c, r := newReader(t, ctx, "sim://64x64?frames=4", types.DeviceCPU,
		[]simcodec.Option{simcodec.OptionLatency(10 * time.Millisecond)})

	errFn := errors.New("stop")
	var tasks []*flow.Task
	err := r.RunFlow(ctx, types.ResourceFormatRGBAU8, 2, func(ctx context.Context, tm *flow.TaskManager) error {
		for idx := range r.FrameCount() {
			tsk, err := tm.EnqueueTask(ctx, idx)
			require.NoError(t, err)
			tasks = append(tasks, tsk)
		}
		return errFn
	})
	require.ErrorIs(t, err, errFn)
	for _, tsk := range tasks {
		require.True(t, tsk.IsDone())
	}
	require.True(t, tasks[3].IsCancelled())
	require.Zero(t, c.HostResources().Stats().Live)

	err = r.RunFlow(ctx, types.ResourceFormatRGBAU8, 0, func(context.Context, *flow.TaskManager) error { return nil })
	require.ErrorAs(t, err, &types.ErrConfiguration{})
}

func TestRunFlowCUDA(t *testing.T) {
	ctx := testCtx(t)
	c, r := newReader(t, ctx, "sim://128x64?frames=3&lut=true", types.DeviceCUDA(0), nil,
		rawpipeline.OptionDeviceContext(0xC0DE))
	require.Equal(t, types.PipelineCUDA, c.Pipeline())
	copiesBefore := c.HostResources().Stats().Copies

	err := r.RunFlow(ctx, types.ResourceFormatRGBAU8, 2, func(ctx context.Context, tm *flow.TaskManager) error {
		for idx := range r.FrameCount() {
			tsk, err := tm.EnqueueTask(ctx, idx)
			require.NoError(t, err)
			img, err := tsk.Consume(ctx)
			require.NoError(t, err)
			require.Equal(t, types.DeviceCUDA(0), img.Device)
			require.Equal(t, []int{64, 128, 4}, img.Shape)
			require.NoError(t, img.Close(ctx))
		}
		return nil
	})
	require.NoError(t, err)
	// one copy of the LUT plus one host-to-device copy per frame
	require.Equal(t, copiesBefore+1+3, c.HostResources().Stats().Copies)
}

func TestReadRange(t *testing.T) {
	ctx := testCtx(t)
	_, r := newReader(t, ctx, "sim://64x32?frames=12", types.DeviceCPU,
		[]simcodec.Option{simcodec.OptionWorkers(4), simcodec.OptionLatency(4 * time.Millisecond)})

	var got []uint64
	err := r.RunFlow(ctx, types.ResourceFormatRGBAU8, 3, func(ctx context.Context, tm *flow.TaskManager) error {
		return rawpipeline.ReadRange(ctx, tm, 2, 11, 5, func(ctx context.Context, frameIndex uint64, img *tensor.Tensor) error {
			defer img.Close(ctx)
			require.Equal(t, float64(simcodec.PatternValue(frameIndex, 1, 1, 2)), img.At(1, 1, 2))
			got = append(got, frameIndex)
			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 3, 4, 5, 6, 7, 8, 9, 10}, got)

	err = r.RunFlow(ctx, types.ResourceFormatRGBAU8, 1, func(ctx context.Context, tm *flow.TaskManager) error {
		return rawpipeline.ReadRange(ctx, tm, 0, 2, 0, nil)
	})
	require.ErrorAs(t, err, &types.ErrValue{})
}

func TestReadRangeFailure(t *testing.T) {
	ctx := testCtx(t)
	c, r := newReader(t, ctx, "sim://64x32?frames=6", types.DeviceCPU,
		[]simcodec.Option{simcodec.OptionFailDecode(func(frameIndex uint64) bool { return frameIndex == 3 })})

	var got []uint64
	err := r.RunFlow(ctx, types.ResourceFormatRGBAU8, 2, func(ctx context.Context, tm *flow.TaskManager) error {
		return rawpipeline.ReadRange(ctx, tm, 0, 6, 2, func(ctx context.Context, frameIndex uint64, img *tensor.Tensor) error {
			got = append(got, frameIndex)
			return img.Close(ctx)
		})
	})
	var codecErr types.ErrCodec
	require.ErrorAs(t, err, &codecErr)
	require.Equal(t, types.StageDecode, codecErr.Stage)
	// frame 2 is delivered unless frame 3 fails before it completes
	require.GreaterOrEqual(t, len(got), 2)
	require.Equal(t, []uint64{0, 1, 2}[:len(got)], got)
	require.Zero(t, c.HostResources().Stats().Live)
}

func TestReadRangeTwiceInOneFlow(t *testing.T) {
	ctx := testCtx(t)
	c, r := newReader(t, ctx, "sim://64x32?frames=8", types.DeviceCPU,
		[]simcodec.Option{simcodec.OptionWorkers(3), simcodec.OptionLatency(3 * time.Millisecond)})

	errStop := errors.New("stop")
	var got []uint64
	err := r.RunFlow(ctx, types.ResourceFormatRGBAU8, 3, func(ctx context.Context, tm *flow.TaskManager) error {
		err := rawpipeline.ReadRange(ctx, tm, 0, 4, 3, func(ctx context.Context, frameIndex uint64, img *tensor.Tensor) error {
			require.NoError(t, img.Close(ctx))
			return errStop
		})
		require.ErrorIs(t, err, errStop)
		require.Zero(t, tm.RunningCount())
		require.Zero(t, tm.QueuedCount())

		return rawpipeline.ReadRange(ctx, tm, 4, 8, 3, func(ctx context.Context, frameIndex uint64, img *tensor.Tensor) error {
			defer img.Close(ctx)
			require.Equal(t, float64(simcodec.PatternValue(frameIndex, 1, 1, 2)), img.At(1, 1, 2))
			got = append(got, frameIndex)
			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{4, 5, 6, 7}, got)
	require.Zero(t, c.HostResources().Stats().Live)
}

func TestDecodeAll(t *testing.T) {
	ctx := testCtx(t)
	c, r := newReader(t, ctx, "sim://128x64?frames=6", types.DeviceCPU,
		[]simcodec.Option{
			simcodec.OptionWorkers(3),
			simcodec.OptionLatency(2 * time.Millisecond),
			simcodec.OptionFailDecode(func(frameIndex uint64) bool { return frameIndex == 2 }),
		})

	var (
		locker sync.Mutex
		done   []uint64
		failed []uint64
	)
	err := r.DecodeAll(ctx, types.ResourceFormatRGBAU8, types.ResolutionScaleQuarter, 2,
		func(ctx context.Context, frameIndex uint64, img *tensor.Tensor, err error) error {
			locker.Lock()
			defer locker.Unlock()
			if err != nil {
				var codecErr types.ErrCodec
				if errors.As(err, &codecErr) && codecErr.Stage == types.StageDecode {
					failed = append(failed, frameIndex)
				}
				return nil
			}
			defer img.Close(ctx)
			if len(img.Shape) != 3 || img.Shape[0] != 16 || img.Shape[1] != 32 {
				return errors.New("unexpected shape")
			}
			done = append(done, frameIndex)
			return nil
		},
	)
	require.NoError(t, err)
	sort.Slice(done, func(i, j int) bool { return done[i] < done[j] })
	require.Equal(t, []uint64{0, 1, 3, 4, 5}, done)
	require.Equal(t, []uint64{2}, failed)
	require.Zero(t, c.HostResources().Stats().Live)
	require.Equal(t, []types.Stage{types.StageRead, types.StageDecode}, c.CallsOf(2))
}

func TestDecodeAllStopsOnError(t *testing.T) {
	ctx := testCtx(t)
	c, r := newReader(t, ctx, "sim://32x32?frames=20", types.DeviceCPU,
		[]simcodec.Option{simcodec.OptionWorkers(1)})

	errStop := errors.New("stop")
	err := r.DecodeAll(ctx, types.ResourceFormatRGBAU8, types.ResolutionScaleFull, 1,
		func(ctx context.Context, frameIndex uint64, img *tensor.Tensor, err error) error {
			if img != nil {
				img.Close(ctx)
			}
			if frameIndex == 1 {
				return errStop
			}
			return nil
		},
	)
	require.ErrorIs(t, err, errStop)
	require.Empty(t, c.CallsOf(19))
	require.Zero(t, c.HostResources().Stats().Live)
}

func TestDecodeAllUnknownUserData(t *testing.T) {
	ctx := testCtx(t)
	c, r := newReader(t, ctx, "sim://32x32?frames=20", types.DeviceCPU,
		[]simcodec.Option{simcodec.OptionWorkers(2)})

	clipEx, err := r.Clip().AsClipEx()
	require.NoError(t, err)
	size, err := clipEx.BitStreamSizeBytes(ctx, 0)
	require.NoError(t, err)
	bitStream, err := c.HostResources().CreateResource(ctx, 0, 0, size, types.ResourceTypeBufferCPU, types.ResourceUsageReadCPUWriteCPU)
	require.NoError(t, err)

	err = r.DecodeAll(ctx, types.ResourceFormatRGBAU8, types.ResolutionScaleFull, 2,
		func(ctx context.Context, frameIndex uint64, img *tensor.Tensor, err error) error {
			if img != nil {
				img.Close(ctx)
			}
			if frameIndex != 0 {
				return nil
			}
			job, err := clipEx.CreateJobReadFrame(ctx, 0, bitStream, size)
			if err != nil {
				return err
			}
			defer job.Release()
			if err := job.SetUserData("not a token"); err != nil {
				return err
			}
			return job.Submit(ctx)
		},
	)
	require.ErrorIs(t, err, flow.ErrUnknownUserData)
	require.NoError(t, c.HostResources().ReleaseResource(ctx, 0, 0, bitStream))
	require.Zero(t, c.HostResources().Stats().Live)
}

func TestDecodeAllValidation(t *testing.T) {
	ctx := testCtx(t)
	_, r := newReader(t, ctx, "sim://32x32", types.DeviceCPU, nil)

	err := r.DecodeAll(ctx, types.ResourceFormatRGBAU8, types.ResolutionScaleFull, 0, nil)
	require.ErrorAs(t, err, &types.ErrConfiguration{})
	err = r.DecodeAll(ctx, types.ResourceFormatRGBAU8, 0, 1, nil)
	require.ErrorAs(t, err, &types.ErrValue{})
}

func TestTaskStatesAfterTeardown(t *testing.T) {
	ctx := testCtx(t)
	_, r := newReader(t, ctx, "sim://32x32?frames=3", types.DeviceCPU, nil)

	var first *flow.Task
	require.NoError(t, r.RunFlow(ctx, types.ResourceFormatRGBAU8, 1, func(ctx context.Context, tm *flow.TaskManager) error {
		var err error
		first, err = tm.EnqueueTask(ctx, 0)
		return err
	}))
	require.True(t, first.IsConsumed())
	_, err := first.Consume(ctx)
	require.ErrorIs(t, err, task.ErrConsumed)
}
