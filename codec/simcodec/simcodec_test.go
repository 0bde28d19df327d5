package simcodec

import (
	"context"
	"testing"
	"time"

	assertT "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/rawpipeline/codec"
	"github.com/xaionaro-go/rawpipeline/codec/resource"
	"github.com/xaionaro-go/rawpipeline/types"
	"go.uber.org/atomic"
)

type Dummy struct {
	ReadCompleteFn    func(ctx context.Context, job codec.Job, result types.ResultCode, frame codec.Frame)
	DecodeCompleteFn  func(ctx context.Context, job codec.Job, result types.ResultCode)
	ProcessCompleteFn func(ctx context.Context, job codec.Job, result types.ResultCode, image codec.ProcessedImage)

	ReadCompleteCallCount    atomic.Int64
	DecodeCompleteCallCount  atomic.Int64
	ProcessCompleteCallCount atomic.Int64
}

var _ codec.Callback = (*Dummy)(nil)

func (d *Dummy) ReadComplete(ctx context.Context, job codec.Job, result types.ResultCode, frame codec.Frame) {
	d.ReadCompleteCallCount.Inc()
	if d.ReadCompleteFn != nil {
		d.ReadCompleteFn(ctx, job, result, frame)
	}
}

func (d *Dummy) DecodeComplete(ctx context.Context, job codec.Job, result types.ResultCode) {
	d.DecodeCompleteCallCount.Inc()
	if d.DecodeCompleteFn != nil {
		d.DecodeCompleteFn(ctx, job, result)
	}
}

func (d *Dummy) ProcessComplete(ctx context.Context, job codec.Job, result types.ResultCode, image codec.ProcessedImage) {
	d.ProcessCompleteCallCount.Inc()
	if d.ProcessCompleteFn != nil {
		d.ProcessCompleteFn(ctx, job, result, image)
	}
}

func TestParseClipURL(t *testing.T) {
	info, err := ParseClipURL("sim://4096x2160?frames=100&fps=23.976&lut=true")
	require.NoError(t, err)
	require.Equal(t, types.Resolution{Width: 4096, Height: 2160}, info.Resolution)
	require.Equal(t, uint64(100), info.FrameCount)
	require.InDelta(t, 23.976, info.FrameRate, 0.001)
	require.True(t, info.Post3DLUT)

	info, err = ParseClipURL("sim://640x480")
	require.NoError(t, err)
	require.Equal(t, uint64(defaultFrameCount), info.FrameCount)
	require.False(t, info.Post3DLUT)

	_, err = ParseClipURL("/tmp/clip.braw")
	require.ErrorAs(t, err, &types.ErrIO{})

	for _, path := range []string{
		"sim://abc",
		"sim://0x480",
		"sim://640x480?frames=many",
		"sim://640x480?fps=-1",
		"sim://640x480?lut=maybe",
	} {
		_, err = ParseClipURL(path)
		require.ErrorAs(t, err, &types.ErrFormat{}, path)
	}
}

func TestOpenClip(t *testing.T) {
	ctx := context.Background()
	c := New()

	c.AddClip("registered", ClipInfo{Resolution: types.Resolution{Width: 32, Height: 16}, FrameCount: 3, FrameRate: 25})
	clip, err := c.OpenClip(ctx, "registered")
	require.NoError(t, err)
	require.Equal(t, uint64(3), clip.FrameCount())
	require.Equal(t, uint32(32), clip.Width())
	require.Equal(t, uint32(16), clip.Height())
	_, hasLUT := clip.Post3DLUT()
	require.False(t, hasLUT)

	clip, err = c.OpenClip(ctx, "sim://64x64?lut=1")
	require.NoError(t, err)
	lut, hasLUT := clip.Post3DLUT()
	require.True(t, hasLUT)
	require.Equal(t, uint64(17*17*17*3*4), lut.ResourceSizeBytes())
	require.Equal(t, 1, c.HostResources().Stats().Live)

	require.NoError(t, c.Close(ctx))
	require.Zero(t, c.HostResources().Stats().Live)

	_, err = c.OpenClip(ctx, "registered")
	require.ErrorAs(t, err, &types.ErrCodec{})
}

func TestSetPipeline(t *testing.T) {
	ctx := context.Background()
	c := New(OptionSupportedPipelines{types.PipelineCPU})
	require.True(t, c.IsPipelineSupported(types.PipelineCPU))
	require.False(t, c.IsPipelineSupported(types.PipelineCUDA))

	err := c.SetPipeline(ctx, types.PipelineCUDA, 0, 0)
	var codecErr types.ErrCodec
	require.ErrorAs(t, err, &codecErr)
	require.Equal(t, types.ResultCodeNotImpl, codecErr.Code)
	require.Equal(t, types.PipelineCPU, c.Pipeline())
}

type chain struct {
	t         *testing.T
	codec     *Codec
	decoder   codec.ManualDecoderFlow1
	scale     types.ResolutionScale
	format    types.ResourceFormat
	frameSt   resource.Resource
	bitStream resource.Resource
	decoded   resource.Resource
	processed resource.Resource
	images    chan codec.ProcessedImage
}

func (ch *chain) alloc(ctx context.Context, size uint64) resource.Resource {
	res, err := ch.codec.ResourceManager().CreateResource(ctx, 0, 0, size, types.ResourceTypeBufferCPU, types.ResourceUsageReadCPUWriteCPU)
	require.NoError(ch.t, err)
	return res
}

func (ch *chain) callback() *Dummy {
	return &Dummy{
		ReadCompleteFn: func(ctx context.Context, _ codec.Job, result types.ResultCode, frame codec.Frame) {
			if !assertT.True(ch.t, result.IsSuccess(), result) {
				return
			}
			assertT.NoError(ch.t, frame.SetResolutionScale(ch.scale))
			assertT.NoError(ch.t, frame.SetResourceFormat(ch.format))
			assertT.NoError(ch.t, ch.decoder.PopulateFrameStateBuffer(ctx, frame, ch.frameSt, frameStateSizeBytes))
			size, err := ch.decoder.DecodedSizeBytes(ctx, ch.frameSt)
			assertT.NoError(ch.t, err)
			if ch.decoded.SizeBytes < size {
				ch.decoded = ch.alloc(ctx, size)
			}
			job, err := ch.decoder.CreateJobDecode(ctx, ch.frameSt, ch.bitStream, ch.decoded)
			if assertT.NoError(ch.t, err) {
				assertT.NoError(ch.t, job.Submit(ctx))
				job.Release()
			}
		},
		DecodeCompleteFn: func(ctx context.Context, _ codec.Job, result types.ResultCode) {
			if !assertT.True(ch.t, result.IsSuccess(), result) {
				return
			}
			size, err := ch.decoder.ProcessedSizeBytes(ctx, ch.frameSt)
			assertT.NoError(ch.t, err)
			ch.processed = ch.alloc(ctx, size)
			job, err := ch.decoder.CreateJobProcess(ctx, ch.frameSt, ch.decoded, ch.processed, resource.None())
			if assertT.NoError(ch.t, err) {
				assertT.NoError(ch.t, job.Submit(ctx))
				job.Release()
			}
		},
		ProcessCompleteFn: func(ctx context.Context, _ codec.Job, result types.ResultCode, image codec.ProcessedImage) {
			assertT.True(ch.t, result.IsSuccess(), result)
			ch.images <- image
		},
	}
}

func TestManualFlow1Chain(t *testing.T) {
	ctx := context.Background()
	c := New(OptionWorkers(2), OptionLatency(time.Millisecond))
	defer c.Close(ctx)

	clip, err := c.OpenClip(ctx, "sim://64x32?frames=4")
	require.NoError(t, err)
	clipEx, err := clip.AsClipEx()
	require.NoError(t, err)
	decoder, err := c.ManualDecoderFlow1()
	require.NoError(t, err)

	ch := &chain{
		t:       t,
		codec:   c,
		decoder: decoder,
		scale:   types.ResolutionScaleHalf,
		format:  types.ResourceFormatRGBU16Planar,
		images:  make(chan codec.ProcessedImage, 1),
	}
	ch.frameSt = ch.alloc(ctx, frameStateSizeBytes)
	cb := ch.callback()
	require.NoError(t, c.SetCallback(ctx, cb))

	size, err := clipEx.BitStreamSizeBytes(ctx, 3)
	require.NoError(t, err)
	ch.bitStream = ch.alloc(ctx, size)
	job, err := clipEx.CreateJobReadFrame(ctx, 3, ch.bitStream, size)
	require.NoError(t, err)
	require.NoError(t, job.Submit(ctx))
	job.Release()

	image := <-ch.images
	require.NoError(t, c.FlushJobs(ctx))

	require.Equal(t, uint32(32), image.Width())
	require.Equal(t, uint32(16), image.Height())
	require.Equal(t, types.ResourceFormatRGBU16Planar, image.ResourceFormat())
	require.True(t, image.Resource().SameMemory(ch.processed))

	buf, err := c.HostResources().Map(image.Resource())
	require.NoError(t, err)
	// channel 1, y=2, x=5 of a planar U16 image
	elem := (1*16+2)*32 + 5
	got := uint16(buf[elem*2]) | uint16(buf[elem*2+1])<<8
	require.Equal(t, uint16(PatternValue(3, 5, 2, 1))*257, got)

	require.Equal(t, []types.Stage{types.StageRead, types.StageDecode, types.StageProcess}, c.CallsOf(3))
	created, released := c.JobsCreated()
	require.Equal(t, uint64(3), created)
	require.Equal(t, uint64(3), released)

	stats := c.Statistics()
	require.Equal(t, uint64(1), stats.Read.Succeeded.Count)
	require.Equal(t, uint64(1), stats.Process.Succeeded.Count)
	require.Equal(t, ch.processed.SizeBytes, stats.Process.Succeeded.Bytes)
}

func TestFailRead(t *testing.T) {
	ctx := context.Background()
	c := New(OptionFailRead(func(frameIndex uint64) bool { return frameIndex == 1 }))
	defer c.Close(ctx)

	results := make(chan types.ResultCode, 1)
	cb := &Dummy{
		ReadCompleteFn: func(ctx context.Context, _ codec.Job, result types.ResultCode, frame codec.Frame) {
			assertT.Nil(t, frame)
			results <- result
		},
	}
	require.NoError(t, c.SetCallback(ctx, cb))

	clip, err := c.OpenClip(ctx, "sim://16x16")
	require.NoError(t, err)
	clipEx, err := clip.AsClipEx()
	require.NoError(t, err)
	size, err := clipEx.BitStreamSizeBytes(ctx, 1)
	require.NoError(t, err)
	bitStream, err := c.ResourceManager().CreateResource(ctx, 0, 0, size, types.ResourceTypeBufferCPU, types.ResourceUsageReadCPUWriteCPU)
	require.NoError(t, err)

	job, err := clipEx.CreateJobReadFrame(ctx, 1, bitStream, size)
	require.NoError(t, err)
	require.NoError(t, job.Submit(ctx))
	job.Release()

	require.Equal(t, types.ResultCodeFail, <-results)
	require.NoError(t, c.FlushJobs(ctx))
	require.Zero(t, cb.DecodeCompleteCallCount.Load())
	require.Equal(t, uint64(1), c.Statistics().Read.Failed.Count)
}

func TestJobProtocol(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close(ctx)

	clip, err := c.OpenClip(ctx, "sim://16x16?frames=2")
	require.NoError(t, err)
	clipEx, err := clip.AsClipEx()
	require.NoError(t, err)

	_, err = clipEx.CreateJobReadFrame(ctx, 2, resource.Resource{Handle: 1}, 1)
	require.ErrorAs(t, err, &types.ErrCodec{})
	_, err = clipEx.CreateJobReadFrame(ctx, 0, resource.None(), 1)
	require.ErrorAs(t, err, &types.ErrCodec{})

	size, err := clipEx.BitStreamSizeBytes(ctx, 0)
	require.NoError(t, err)
	bitStream, err := c.ResourceManager().CreateResource(ctx, 0, 0, size, types.ResourceTypeBufferCPU, types.ResourceUsageReadCPUWriteCPU)
	require.NoError(t, err)

	job, err := clipEx.CreateJobReadFrame(ctx, 0, bitStream, size)
	require.NoError(t, err)

	_, err = job.PopUserData()
	require.Error(t, err)
	require.NoError(t, job.SetUserData(42))
	v, err := job.PopUserData()
	require.NoError(t, err)
	require.Equal(t, 42, v)

	// no callback is installed: the completion is dropped, but the job still finishes
	require.NoError(t, job.Submit(ctx))
	require.ErrorAs(t, job.Submit(ctx), &types.ErrCodec{})
	job.Release()
	require.NoError(t, c.FlushJobs(ctx))

	released, err := clipEx.CreateJobReadFrame(ctx, 0, bitStream, size)
	require.NoError(t, err)
	released.Release()
	require.ErrorAs(t, released.Submit(ctx), &types.ErrCodec{})
}

func TestFlushJobsContextDone(t *testing.T) {
	ctx := context.Background()
	c := New(OptionWorkers(1), OptionLatency(100*time.Millisecond))
	defer c.Close(ctx)

	clip, err := c.OpenClip(ctx, "sim://16x16")
	require.NoError(t, err)
	clipEx, err := clip.AsClipEx()
	require.NoError(t, err)
	size, err := clipEx.BitStreamSizeBytes(ctx, 0)
	require.NoError(t, err)
	bitStream, err := c.ResourceManager().CreateResource(ctx, 0, 0, size, types.ResourceTypeBufferCPU, types.ResourceUsageReadCPUWriteCPU)
	require.NoError(t, err)
	job, err := clipEx.CreateJobReadFrame(ctx, 0, bitStream, size)
	require.NoError(t, err)
	require.NoError(t, job.Submit(ctx))
	job.Release()

	shortCtx, cancel := context.WithTimeout(ctx, time.Millisecond)
	defer cancel()
	require.ErrorIs(t, c.FlushJobs(shortCtx), context.DeadlineExceeded)
	require.NoError(t, c.FlushJobs(ctx))
}

func TestFrameSetters(t *testing.T) {
	f := &frame{resolutionScale: types.ResolutionScaleFull, resourceFormat: types.ResourceFormatRGBAU8}
	require.ErrorAs(t, f.SetResolutionScale(types.ResolutionScale(1)), &types.ErrCodec{})
	require.ErrorAs(t, f.SetResourceFormat(types.ResourceFormat(1)), &types.ErrCodec{})
	require.NoError(t, f.SetResolutionScale(types.ResolutionScaleEighth))
	require.NoError(t, f.SetResourceFormat(types.ResourceFormatBGRAF32))
	require.Equal(t, types.ResolutionScaleEighth, f.resolutionScale)
	require.Equal(t, types.ResourceFormatBGRAF32, f.resourceFormat)
}
